// Package jdwp implements a client for the Java Debug Wire Protocol (JDWP).
//
// JDWP is the protocol a debugger speaks to a Java virtual machine started
// with the jdwp agent. This package provides:
//   - Transport: handshake and length-prefixed packet framing over a stream
//   - Conn: request/reply correlation, event dispatch and the mirror cache
//   - Mirrors: typed local stand-ins for remote threads, types, objects
//     and frames
//   - RequestManager: event request lifecycle (breakpoints, steps, class
//     prepare, exceptions, watchpoints)
//
// The protocol is described at:
// https://docs.oracle.com/en/java/javase/17/docs/specs/jdwp/jdwp-spec.html
package jdwp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

const (
	// DefaultHandshake is the string both sides exchange before any packet.
	DefaultHandshake = "JDWP-Handshake"

	// DefaultMaxPacketSize bounds the length a peer may announce.
	DefaultMaxPacketSize = 16 << 20
)

// Transport frames packets over a byte stream. Writes are serialized;
// reads must come from a single goroutine.
type Transport struct {
	conn          io.ReadWriteCloser
	reader        *bufio.Reader
	writer        *bufio.Writer
	mu            sync.Mutex
	maxPacketSize int

	closeOnce sync.Once
	closeErr  error
}

// Dial opens a TCP connection to a listening jdwp agent. The handshake is
// not performed.
func Dial(ctx context.Context, address string) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.ConnectFailed(address, err)
	}
	return NewTransport(conn), nil
}

// NewTransport wraps an open stream.
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		writer:        bufio.NewWriter(conn),
		maxPacketSize: DefaultMaxPacketSize,
	}
}

// NewPipeTransport builds a transport from separate read and write streams,
// such as a child process's stdout and stdin.
func NewPipeTransport(r io.ReadCloser, w io.WriteCloser) *Transport {
	return NewTransport(&pipeRWC{reader: r, writer: w})
}

type pipeRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (p *pipeRWC) Read(b []byte) (int, error)  { return p.reader.Read(b) }
func (p *pipeRWC) Write(b []byte) (int, error) { return p.writer.Write(b) }

func (p *pipeRWC) Close() error {
	err1 := p.writer.Close()
	err2 := p.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// SetMaxPacketSize changes the largest packet readPacket accepts.
func (t *Transport) SetMaxPacketSize(n int) {
	if n >= headerSize {
		t.maxPacketSize = n
	}
}

// Handshake sends s and requires the peer to echo it back exactly.
// Cancelling ctx aborts the exchange by closing the transport.
func (t *Transport) Handshake(ctx context.Context, s string) error {
	if dl, ok := ctx.Deadline(); ok {
		if d, ok := t.conn.(interface{ SetDeadline(time.Time) error }); ok {
			_ = d.SetDeadline(dl)
			defer d.SetDeadline(time.Time{})
		}
	}
	stop := context.AfterFunc(ctx, func() { t.Close() })
	defer stop()

	t.mu.Lock()
	_, err := t.writer.WriteString(s)
	if err == nil {
		err = t.writer.Flush()
	}
	t.mu.Unlock()
	if err != nil {
		return errors.HandshakeFailed(s, nil, contextErr(ctx, err))
	}

	got := make([]byte, len(s))
	n, err := io.ReadFull(t.reader, got)
	if err != nil {
		return errors.HandshakeFailed(s, got[:n], contextErr(ctx, err))
	}
	if !bytes.Equal(got, []byte(s)) {
		return errors.HandshakeFailed(s, got, nil)
	}
	return nil
}

// contextErr prefers the context's error when it caused err.
func contextErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// writePacket writes one packet.
func (t *Transport) writePacket(p *packet) error {
	b := p.encode()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.writer.Write(b); err != nil {
		return err
	}
	return t.writer.Flush()
}

// readPacket reads one packet. A length outside [header, max] is a
// ProtocolError after which the stream is no longer framed.
func (t *Transport) readPacket() (*packet, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(t.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < headerSize || int64(length) > int64(t.maxPacketSize) {
		return nil, errors.ProtocolError("packet length %d outside [%d, %d]", length, headerSize, t.maxPacketSize)
	}
	b := make([]byte, length)
	copy(b, lenBuf[:])
	if _, err := io.ReadFull(t.reader, b[4:]); err != nil {
		return nil, err
	}
	return decodePacket(b)
}

// Close closes the underlying stream. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
