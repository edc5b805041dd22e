package jdwp

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateHandshaking State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config controls how a connection is opened.
type Config struct {
	// Handshake overrides DefaultHandshake.
	Handshake string

	// MaxPacketSize overrides DefaultMaxPacketSize.
	MaxPacketSize int

	// IDSizes skips negotiation when the widths are known in advance.
	IDSizes *IDSizes

	// Logger receives protocol diagnostics. Defaults to the standard logger.
	Logger *logrus.Entry

	// Listeners are subscribed before the reader starts, so they also see
	// events the target sent during negotiation.
	Listeners []Listener
}

type reply struct {
	p   *packet
	err error
}

// Conn is an open debugging connection to one target VM. It correlates
// commands with replies, dispatches events and owns the mirror cache.
// All methods are safe for concurrent use.
type Conn struct {
	transport *Transport
	log       *logrus.Entry
	sizes     IDSizes
	cache     *Cache
	requests  *RequestManager
	listeners listeners

	state       atomic.Int32
	closing     atomic.Bool
	vmSuspended atomic.Bool

	mu      sync.Mutex
	nextID  uint32
	pending map[uint32]chan reply
	cause   error

	done chan struct{}
	wg   sync.WaitGroup
}

// Attach dials address and opens a connection over it.
func Attach(ctx context.Context, address string, cfg Config) (*Conn, error) {
	t, err := Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg.Logger = cfg.Logger.WithField("address", address)
	return Open(ctx, t, cfg)
}

// Open performs the handshake on t, negotiates identifier sizes and starts
// the reader goroutine. On failure t is closed.
func Open(ctx context.Context, t *Transport, cfg Config) (*Conn, error) {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Conn{
		transport: t,
		log:       log.WithField("component", "jdwp"),
		pending:   make(map[uint32]chan reply),
		done:      make(chan struct{}),
	}
	c.cache = newCache(c)
	c.requests = newRequestManager(c)
	c.state.Store(int32(StateHandshaking))

	if cfg.MaxPacketSize > 0 {
		t.SetMaxPacketSize(cfg.MaxPacketSize)
	}
	handshake := cfg.Handshake
	if handshake == "" {
		handshake = DefaultHandshake
	}
	fail := func(err error) (*Conn, error) {
		c.state.Store(int32(StateDisconnected))
		c.pending = nil
		t.Close()
		close(c.done)
		return nil, err
	}
	if err := t.Handshake(ctx, handshake); err != nil {
		return fail(err)
	}

	var early []*packet
	if cfg.IDSizes != nil {
		if !cfg.IDSizes.valid() {
			return fail(errors.ProtocolError("invalid identifier sizes %+v", *cfg.IDSizes))
		}
		c.sizes = *cfg.IDSizes
	} else {
		sizes, stashed, err := c.negotiate(ctx)
		if err != nil {
			return fail(err)
		}
		c.sizes, early = sizes, stashed
	}

	for _, l := range cfg.Listeners {
		c.Subscribe(l)
	}
	c.state.Store(int32(StateConnected))
	c.log.WithField("idSizes", fmt.Sprintf("%+v", c.sizes)).Debug("connected")
	c.wg.Add(1)
	go c.readLoop(early)
	return c, nil
}

// negotiate sends VirtualMachine.IDSizes and reads until its reply. Event
// packets that arrive first are returned for replay once the sizes needed
// to decode them are known.
func (c *Conn) negotiate(ctx context.Context) (IDSizes, []*packet, error) {
	stop := context.AfterFunc(ctx, func() { c.transport.Close() })
	defer stop()

	c.nextID++
	id := c.nextID
	if err := c.transport.writePacket(&packet{id: id, cmd: cmdVirtualMachineIDSizes}); err != nil {
		return IDSizes{}, nil, errors.Disconnected(contextErr(ctx, err))
	}
	var early []*packet
	for {
		p, err := c.transport.readPacket()
		if err != nil {
			var de *errors.DebugError
			if !stderrors.As(err, &de) {
				err = errors.Disconnected(contextErr(ctx, err))
			}
			return IDSizes{}, nil, err
		}
		if !p.isReply() {
			early = append(early, p)
			continue
		}
		if p.id != id {
			c.log.WithError(errors.ProtocolError("reply %d matches no pending command", p.id)).Warn("dropping reply")
			continue
		}
		if p.errorCode != ErrNone {
			return IDSizes{}, nil, errors.RemoteError(cmdVirtualMachineIDSizes.String(), int(p.errorCode), p.errorCode.String())
		}
		r := newReader(c, p.data)
		sizes := IDSizes{
			FieldIDSize:         int(r.i32()),
			MethodIDSize:        int(r.i32()),
			ObjectIDSize:        int(r.i32()),
			ReferenceTypeIDSize: int(r.i32()),
			FrameIDSize:         int(r.i32()),
		}
		if r.err != nil {
			return IDSizes{}, nil, r.err
		}
		if !sizes.valid() {
			return IDSizes{}, nil, errors.ProtocolError("invalid identifier sizes %+v", sizes)
		}
		return sizes, early, nil
	}
}

// send writes a command and waits for its reply. A disconnected connection
// fails immediately. Cancelling ctx stops the wait; a late reply is then
// dropped as unmatched.
func (c *Conn) send(ctx context.Context, cm cmd, data []byte) (*reader, error) {
	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.pending == nil {
		cause := c.cause
		c.mu.Unlock()
		return nil, errors.Disconnected(cause)
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	p := &packet{id: id, cmd: cm, data: data}
	if c.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		c.log.Tracef("-> %v", p)
	}
	if err := c.transport.writePacket(p); err != nil {
		c.forget(id)
		// The reader observes the closed stream and tears the connection down.
		c.transport.Close()
		return nil, errors.Disconnected(err)
	}

	select {
	case rep := <-ch:
		if rep.err != nil {
			return nil, rep.err
		}
		if rep.p.errorCode != ErrNone {
			return nil, errors.RemoteError(cm.String(), int(rep.p.errorCode), rep.p.errorCode.String())
		}
		return newReader(c, rep.p.data), nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Conn) forget(id uint32) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// call builds a command payload, sends it and parses the reply.
func (c *Conn) call(ctx context.Context, cm cmd, build func(*writer), parse func(*reader)) error {
	w := newWriter(c.sizes)
	if build != nil {
		build(w)
	}
	r, err := c.send(ctx, cm, w.bytes())
	if err != nil {
		return err
	}
	if parse != nil {
		parse(r)
	}
	if r.err != nil {
		c.log.WithError(r.err).Warnf("malformed %v reply", cm)
		return r.err
	}
	return nil
}

// readLoop is the only reader of the transport.
func (c *Conn) readLoop(early []*packet) {
	defer c.wg.Done()

	for _, p := range early {
		c.handlePacket(p)
	}
	for {
		p, err := c.transport.readPacket()
		if err != nil {
			c.terminate(err)
			return
		}
		c.handlePacket(p)
	}
}

// handlePacket routes a reply to its waiter or decodes and dispatches an
// event packet.
func (c *Conn) handlePacket(p *packet) {
	if c.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		c.log.Tracef("<- %v", p)
	}
	if p.isReply() {
		c.mu.Lock()
		ch, ok := c.pending[p.id]
		delete(c.pending, p.id)
		c.mu.Unlock()
		if !ok {
			c.log.WithError(errors.ProtocolError("reply %d matches no pending command", p.id)).Warn("dropping reply")
			return
		}
		ch <- reply{p: p}
		return
	}

	if p.cmd != cmdEventComposite {
		c.log.WithError(errors.ProtocolError("unexpected command %v from target", p.cmd)).Warn("dropping packet")
		return
	}
	set, err := decodeEvents(newReader(c, p.data))
	if err != nil {
		c.log.WithError(err).Warn("dropping malformed event packet")
		return
	}
	c.dispatch(set)
}

// terminate runs once, on the reader goroutine, when the stream ends. Every
// pending command is resolved with Disconnected and the state is made
// terminal in one critical section, so no command can register after the
// sweep. Then listeners see VMDisconnected.
func (c *Conn) terminate(err error) {
	var cause error
	if !c.closing.Load() {
		cause = err
	}

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.cause = cause
	for _, ch := range pending {
		ch <- reply{err: errors.Disconnected(cause)}
	}
	c.state.Store(int32(StateDisconnected))
	c.mu.Unlock()

	c.transport.Close()
	if cause != nil {
		c.log.WithError(cause).Info("connection lost")
	} else {
		c.log.Debug("connection closed")
	}

	c.vmSuspended.Store(false)
	c.dispatch(&EventSet{
		SuspendPolicy: SuspendNone,
		Events:        []Event{&VMDisconnectedEvent{Cause: cause}},
	})
	close(c.done)
}

// Close shuts the connection down and waits for the reader goroutine to
// exit. Pending commands fail with Disconnected. Close must not be called
// from an event listener.
func (c *Conn) Close() error {
	c.closing.Store(true)
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

// Done is closed once the connection is disconnected and VMDisconnected has
// been delivered.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns why the connection was lost, or nil while connected and after
// a client-initiated Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

func (c *Conn) State() State { return State(c.state.Load()) }

// IDSizes returns the negotiated identifier widths.
func (c *Conn) IDSizes() IDSizes { return c.sizes }

// Cache returns the connection's mirror cache.
func (c *Conn) Cache() *Cache { return c.cache }

// Requests returns the connection's event request manager.
func (c *Conn) Requests() *RequestManager { return c.requests }

// remoteCode extracts the target's error code from err.
func remoteCode(err error) (ErrorCode, bool) {
	code, ok := errors.RemoteCode(err)
	return ErrorCode(code), ok
}

// IsRemote reports whether err is a target-reported failure with the given
// error code.
func IsRemote(err error, code ErrorCode) bool {
	got, ok := remoteCode(err)
	return ok && got == code
}
