package jdwp

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// fakeSizes deliberately mixes widths so tests catch code that assumes
// 8-byte identifiers.
var fakeSizes = IDSizes{
	FieldIDSize:         4,
	MethodIDSize:        4,
	ObjectIDSize:        8,
	ReferenceTypeIDSize: 8,
	FrameIDSize:         8,
}

func testLogger() (*logrus.Entry, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

// hasLog reports whether the hook captured an entry at level with msg.
func hasLog(hook *logtest.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// offlineConn is a connection with no transport, for exercising the codec,
// cache and dispatcher directly.
func offlineConn(t *testing.T) (*Conn, *logtest.Hook) {
	t.Helper()
	log, hook := testLogger()
	c := &Conn{sizes: fakeSizes, log: log, done: make(chan struct{})}
	c.cache = newCache(c)
	c.requests = newRequestManager(c)
	c.state.Store(int32(StateConnected))
	return c, hook
}

type vmHandler func(vm *fakeVM, p *packet)

// fakeVM is a scripted target on the far end of a net.Pipe. It answers the
// handshake and IDSizes itself and hands every other command to the
// handler registered for it.
type fakeVM struct {
	t        *testing.T
	tr       *Transport
	decoder  *Conn
	handlers map[cmd]vmHandler
	received chan *packet

	// echo replaces the handshake reply when set.
	echo string
	// beforeIDSizes runs before the IDSizes reply is written.
	beforeIDSizes func(vm *fakeVM)
}

func newFakeVM(t *testing.T) *fakeVM {
	decoder, _ := offlineConn(t)
	return &fakeVM{
		t:        t,
		decoder:  decoder,
		handlers: make(map[cmd]vmHandler),
		received: make(chan *packet, 256),
	}
}

func (vm *fakeVM) on(c cmd, h vmHandler) *fakeVM {
	vm.handlers[c] = h
	return vm
}

// start opens a client connection to the fake VM. The connection is closed
// when the test ends.
func (vm *fakeVM) start(cfg Config) (*Conn, *logtest.Hook) {
	vm.t.Helper()
	c, hook, err := vm.open(cfg)
	require.NoError(vm.t, err)
	vm.t.Cleanup(func() { c.Close() })
	return c, hook
}

func (vm *fakeVM) open(cfg Config) (*Conn, *logtest.Hook, error) {
	client, server := net.Pipe()
	vm.tr = NewTransport(server)
	vm.t.Cleanup(func() { vm.tr.Close() })
	go vm.serve()

	log, hook := testLogger()
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Open(ctx, NewTransport(client), cfg)
	return c, hook, err
}

func (vm *fakeVM) serve() {
	hs := make([]byte, len(DefaultHandshake))
	if _, err := io.ReadFull(vm.tr.reader, hs); err != nil {
		return
	}
	if vm.echo != "" {
		hs = []byte(vm.echo)
	}
	vm.tr.mu.Lock()
	vm.tr.writer.Write(hs)
	vm.tr.writer.Flush()
	vm.tr.mu.Unlock()

	for {
		p, err := vm.tr.readPacket()
		if err != nil {
			return
		}
		if p.cmd == cmdVirtualMachineIDSizes {
			if vm.beforeIDSizes != nil {
				vm.beforeIDSizes(vm)
			}
			vm.reply(p, func(w *writer) {
				w.i32(int32(fakeSizes.FieldIDSize))
				w.i32(int32(fakeSizes.MethodIDSize))
				w.i32(int32(fakeSizes.ObjectIDSize))
				w.i32(int32(fakeSizes.ReferenceTypeIDSize))
				w.i32(int32(fakeSizes.FrameIDSize))
			})
			continue
		}
		vm.received <- p
		if h := vm.handlers[p.cmd]; h != nil {
			h(vm, p)
		}
	}
}

// args returns a reader over a command's payload.
func (vm *fakeVM) args(p *packet) *reader {
	return newReader(vm.decoder, p.data)
}

func (vm *fakeVM) reply(p *packet, build func(w *writer)) {
	w := newWriter(fakeSizes)
	if build != nil {
		build(w)
	}
	vm.tr.writePacket(&packet{id: p.id, flags: flagReply, data: w.bytes()})
}

func (vm *fakeVM) replyError(p *packet, code ErrorCode) {
	vm.tr.writePacket(&packet{id: p.id, flags: flagReply, errorCode: code})
}

// event sends a composite event packet with the given policy. build writes
// the event count and events.
func (vm *fakeVM) event(policy SuspendPolicy, build func(w *writer)) {
	w := newWriter(fakeSizes)
	w.u8(uint8(policy))
	build(w)
	vm.tr.writePacket(&packet{id: 1 << 30, cmd: cmdEventComposite, data: w.bytes()})
}

// wait returns the next command the fake VM received.
func (vm *fakeVM) wait() *packet {
	vm.t.Helper()
	select {
	case p := <-vm.received:
		return p
	case <-time.After(5 * time.Second):
		vm.t.Fatal("timed out waiting for a command")
		return nil
	}
}

// waitFor returns the next command of kind c, skipping any others.
func (vm *fakeVM) waitFor(c cmd) *packet {
	vm.t.Helper()
	for {
		if p := vm.wait(); p.cmd == c {
			return p
		}
	}
}

// Identifiers of the class served by serveMainClass.
const (
	mainTypeID   = ReferenceTypeID(10)
	mainMethodID = MethodID(3)
)

// serveMainClass answers metadata queries for a class com.example.Main with
// one method, main, whose line table maps lines 5 to 7 and whose variable
// table holds args, count and total.
func serveMainClass(vm *fakeVM) *fakeVM {
	return vm.
		on(cmdReferenceTypeSignature, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) { w.str("Lcom/example/Main;") })
		}).
		on(cmdReferenceTypeMethods, func(vm *fakeVM, p *packet) {
			vm.reply(p, writeMainMethods)
		}).
		on(cmdMethodLineTable, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i64(0)
				w.i64(20)
				w.i32(4)
				// Out of order on purpose; the client sorts by index.
				w.i64(8)
				w.i32(6)
				w.i64(0)
				w.i32(5)
				w.i64(4)
				w.i32(6)
				w.i64(12)
				w.i32(7)
			})
		}).
		on(cmdMethodVariableTable, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(1)
				w.i32(3)
				for _, v := range []Variable{
					{CodeIndex: 0, Name: "args", Signature: "[Ljava/lang/String;", Length: 20, Slot: 0},
					{CodeIndex: 4, Name: "count", Signature: "I", Length: 16, Slot: 1},
					{CodeIndex: 12, Name: "total", Signature: "J", Length: 8, Slot: 2},
				} {
					w.i64(int64(v.CodeIndex))
					w.str(v.Name)
					w.str(v.Signature)
					w.i32(v.Length)
					w.i32(v.Slot)
				}
			})
		})
}

// writeMainMethods writes the method list of com.example.Main.
func writeMainMethods(w *writer) {
	w.i32(1)
	w.methodID(mainMethodID)
	w.str("main")
	w.str("([Ljava/lang/String;)V")
	w.i32(0x0009)
}

// writeLocation writes a class location in wire form.
func writeLocation(w *writer, typeID ReferenceTypeID, method MethodID, index uint64) {
	w.u8(uint8(TypeTagClass))
	w.refTypeID(typeID)
	w.methodID(method)
	w.i64(int64(index))
}

// recorder is a listener that keeps every event set it sees.
type recorder struct {
	mu   sync.Mutex
	sets []*EventSet
}

func (r *recorder) listen(set *EventSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, set)
	return nil
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, s := range r.sets {
		out = append(out, s.Events...)
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, e := range r.events() {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
