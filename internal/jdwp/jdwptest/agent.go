// Package jdwptest provides a scripted jdwp agent for testing code built on
// package jdwp. The agent listens on a loopback TCP port, answers the
// handshake and IDSizes itself, and hands every other command to the
// handler registered for it. All identifiers are 8 bytes wide.
package jdwptest

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Error codes the agent commonly replies with.
const (
	ErrInvalidThread  uint16 = 10
	ErrNotFound       uint16 = 41
	ErrNotImplemented uint16 = 99
)

const (
	headerSize = 11
	flagReply  = 0x80
)

// Command is one command packet received from the client.
type Command struct {
	ID  uint32
	Set uint8
	Cmd uint8

	data []byte
}

// Args returns a decoder over the command's payload.
func (c *Command) Args() *Decoder {
	return &Decoder{buf: c.data}
}

// Handler answers one command. It runs on the agent's serving goroutine.
type Handler func(a *Agent, c *Command)

// Agent is a fake target VM.
type Agent struct {
	t  testing.TB
	ln net.Listener

	mu       sync.Mutex
	handlers map[[2]uint8]Handler
	conn     net.Conn

	wmu       sync.Mutex
	eventID   atomic.Uint32
	requestID atomic.Int32

	// Received carries every command after the handshake, IDSizes included.
	Received  chan *Command
	// Connected is closed once a client has completed the handshake.
	Connected chan struct{}

	state agentState
}

// NewAgent starts an agent that accepts one client. It is shut down when the
// test ends.
func NewAgent(t testing.TB) *Agent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("jdwptest: listen: %v", err)
	}
	a := &Agent{
		t:         t,
		ln:        ln,
		handlers:  make(map[[2]uint8]Handler),
		Received:  make(chan *Command, 1024),
		Connected: make(chan struct{}),
	}
	a.state.init()
	a.Handle(1, 7, func(a *Agent, c *Command) {
		a.Reply(c, NewEncoder().I32(8).I32(8).I32(8).I32(8).I32(8))
	})
	a.Handle(1, 1, func(a *Agent, c *Command) {
		a.Reply(c, NewEncoder().Str("jdwptest agent").I32(17).I32(0).Str("17.0.0").Str("jdwptest VM"))
	})
	a.serveDefaults()
	go a.accept()
	t.Cleanup(a.Close)
	return a
}

// Addr returns the host:port the agent listens on.
func (a *Agent) Addr() string {
	return a.ln.Addr().String()
}

// Handle registers h for command set/cmd, replacing any earlier handler.
func (a *Agent) Handle(set, cmd uint8, h Handler) *Agent {
	a.mu.Lock()
	a.handlers[[2]uint8{set, cmd}] = h
	a.mu.Unlock()
	return a
}

// Close stops listening and drops the client connection.
func (a *Agent) Close() {
	a.ln.Close()
	a.mu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.mu.Unlock()
}

func (a *Agent) accept() {
	conn, err := a.ln.Accept()
	if err != nil {
		return
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	hs := make([]byte, len("JDWP-Handshake"))
	if _, err := io.ReadFull(conn, hs); err != nil {
		return
	}
	if _, err := conn.Write(hs); err != nil {
		return
	}
	close(a.Connected)
	a.serve(conn)
}

func (a *Agent) serve(conn net.Conn) {
	var length [4]byte
	for {
		if _, err := io.ReadFull(conn, length[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(length[:])
		if n < headerSize {
			return
		}
		rest := make([]byte, n-4)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		if rest[4]&flagReply != 0 {
			continue
		}
		c := &Command{
			ID:   binary.BigEndian.Uint32(rest[0:4]),
			Set:  rest[5],
			Cmd:  rest[6],
			data: rest[headerSize-4:],
		}
		select {
		case a.Received <- c:
		default:
		}

		a.mu.Lock()
		h := a.handlers[[2]uint8{c.Set, c.Cmd}]
		a.mu.Unlock()
		if h == nil {
			a.ReplyError(c, ErrNotImplemented)
			continue
		}
		h(a, c)
	}
}

func (a *Agent) write(id uint32, flags uint8, b9, b10 uint8, data []byte) {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return
	}
	b := make([]byte, headerSize, headerSize+len(data))
	binary.BigEndian.PutUint32(b[0:4], uint32(headerSize+len(data)))
	binary.BigEndian.PutUint32(b[4:8], id)
	b[8], b[9], b[10] = flags, b9, b10
	b = append(b, data...)

	a.wmu.Lock()
	defer a.wmu.Unlock()
	conn.Write(b)
}

// Reply answers c with the encoded payload, which may be nil.
func (a *Agent) Reply(c *Command, e *Encoder) {
	var data []byte
	if e != nil {
		data = e.Bytes()
	}
	a.write(c.ID, flagReply, 0, 0, data)
}

// ReplyError answers c with a protocol error code.
func (a *Agent) ReplyError(c *Command, code uint16) {
	a.write(c.ID, flagReply, uint8(code>>8), uint8(code), nil)
}

// Event sends a composite event packet. e holds the event count and the
// events, without the suspend policy.
func (a *Agent) Event(policy uint8, e *Encoder) {
	data := append([]byte{policy}, e.Bytes()...)
	a.write(1<<30+a.eventID.Add(1), 0, 64, 100, data)
}

// Hangup closes the client connection as a dying VM would.
func (a *Agent) Hangup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
}

// Wait returns the next received command.
func (a *Agent) Wait() *Command {
	a.t.Helper()
	select {
	case c := <-a.Received:
		return c
	case <-time.After(5 * time.Second):
		a.t.Fatal("jdwptest: timed out waiting for a command")
		return nil
	}
}

// WaitFor returns the next received command set/cmd, skipping others.
func (a *Agent) WaitFor(set, cmd uint8) *Command {
	a.t.Helper()
	for {
		if c := a.Wait(); c.Set == set && c.Cmd == cmd {
			return c
		}
	}
}

// Encoder builds reply and event payloads.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

func (e *Encoder) U8(v uint8) *Encoder {
	e.buf.WriteByte(v)
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}
	return e.U8(0)
}

func (e *Encoder) I32(v int32) *Encoder {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	e.buf.Write(b[:])
	return e
}

func (e *Encoder) I64(v int64) *Encoder {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	e.buf.Write(b[:])
	return e
}

// ID writes an identifier of any kind.
func (e *Encoder) ID(v uint64) *Encoder { return e.I64(int64(v)) }

func (e *Encoder) Str(s string) *Encoder {
	e.I32(int32(len(s)))
	e.buf.WriteString(s)
	return e
}

// Location writes a code location in a class.
func (e *Encoder) Location(class, method, index uint64) *Encoder {
	return e.U8(1).ID(class).ID(method).I64(int64(index))
}

// Value writes a tagged value.
func (e *Encoder) Value(v Value) *Encoder {
	e.U8(v.Tag)
	switch v.Tag {
	case 'Z':
		return e.Bool(v.Num != 0)
	case 'B':
		return e.U8(uint8(v.Num))
	case 'C', 'S':
		return e.U8(uint8(v.Num >> 8)).U8(uint8(v.Num))
	case 'I', 'F':
		return e.I32(int32(v.Num))
	}
	return e.ID(uint64(v.Num))
}

// Value is a tagged value: the number itself for integral primitives, or
// the object ID for references.
type Value struct {
	Tag byte
	Num int64
}

// Constructors for common values.
func Int(n int32) Value      { return Value{Tag: 'I', Num: int64(n)} }
func Str(id uint64) Value    { return Value{Tag: 's', Num: int64(id)} }
func Object(id uint64) Value { return Value{Tag: 'L', Num: int64(id)} }
func Null() Value            { return Value{Tag: 'L'} }

// Decoder reads command payloads.
type Decoder struct {
	buf []byte
	off int
}

func (d *Decoder) next(n int) []byte {
	if d.off+n > len(d.buf) {
		d.off = len(d.buf)
		return make([]byte, n)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) U8() uint8      { return d.next(1)[0] }
func (d *Decoder) Bool() bool     { return d.U8() != 0 }
func (d *Decoder) I32() int32     { return int32(binary.BigEndian.Uint32(d.next(4))) }
func (d *Decoder) I64() int64     { return int64(binary.BigEndian.Uint64(d.next(8))) }
func (d *Decoder) ID() uint64     { return uint64(d.I64()) }
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) Str() string {
	n := int(d.I32())
	return string(d.next(n))
}

// Value reads a tagged value.
func (d *Decoder) Value() Value {
	v := Value{Tag: d.U8()}
	switch v.Tag {
	case 'Z', 'B':
		v.Num = int64(d.U8())
	case 'C', 'S':
		v.Num = int64(int16(binary.BigEndian.Uint16(d.next(2))))
	case 'I', 'F':
		v.Num = int64(d.I32())
	default:
		v.Num = d.I64()
	}
	return v
}
