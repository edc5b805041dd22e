package jdwp

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

func replyVersion(vm *fakeVM, p *packet) {
	vm.reply(p, func(w *writer) {
		w.str("Fake VM")
		w.i32(17)
		w.i32(0)
		w.str("17.0.2")
		w.str("FakeSpot")
	})
}

func threadMirror(c *Conn, id ObjectID) *ThreadMirror {
	return c.Cache().Resolve(KindThread, uint64(id)).(*ThreadMirror)
}

func TestOpenNegotiatesIDSizes(t *testing.T) {
	vm := newFakeVM(t).on(cmdVirtualMachineVersion, replyVersion)
	c, _ := vm.start(Config{})

	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, fakeSizes, c.IDSizes())

	v, err := c.Version(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "FakeSpot", v.VMName)
	assert.Equal(t, 17, v.JDWPMajor)
}

func TestOpenWithKnownIDSizesSkipsNegotiation(t *testing.T) {
	vm := newFakeVM(t).on(cmdVirtualMachineVersion, replyVersion)
	sizes := fakeSizes
	c, _ := vm.start(Config{IDSizes: &sizes})

	_, err := c.Version(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, cmdVirtualMachineVersion, vm.wait().cmd)
}

func TestOpenRejectsInvalidIDSizes(t *testing.T) {
	vm := newFakeVM(t)
	_, _, err := vm.open(Config{IDSizes: &IDSizes{FieldIDSize: 3}})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrProtocol))
}

func TestHandshakeMismatch(t *testing.T) {
	vm := newFakeVM(t)
	vm.echo = "JDWP-Handshakx"
	c, _, err := vm.open(Config{})
	require.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, stderrors.Is(err, errors.ErrHandshakeFailed))
	assert.Contains(t, err.Error(), "JDWP-Handshakx")
}

func TestConcurrentCommandsWithOutOfOrderReplies(t *testing.T) {
	const n = 16
	var held []*packet
	vm := newFakeVM(t).on(cmdThreadReferenceName, func(vm *fakeVM, p *packet) {
		held = append(held, p)
		if len(held) < n {
			return
		}
		for i := len(held) - 1; i >= 0; i-- {
			q := held[i]
			id := vm.args(q).objectID()
			vm.reply(q, func(w *writer) { w.str(fmt.Sprintf("worker-%d", id)) })
		}
	})
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	names := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			name, err := threadMirror(c, ObjectID(i+1)).Name(gctx)
			names[i] = name
			return err
		})
	}
	require.NoError(t, g.Wait())

	for i, name := range names {
		assert.Equal(t, fmt.Sprintf("worker-%d", i+1), name)
	}
	c.mu.Lock()
	assert.Empty(t, c.pending)
	c.mu.Unlock()
}

func TestRemoteErrorCarriesCode(t *testing.T) {
	vm := newFakeVM(t).on(cmdThreadReferenceName, func(vm *fakeVM, p *packet) {
		vm.replyError(p, ErrInvalidThread)
	})
	c, _ := vm.start(Config{})

	_, err := threadMirror(c, 9).Name(testContext(t))
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrRemote))
	assert.True(t, IsRemote(err, ErrInvalidThread))
	assert.False(t, IsRemote(err, ErrInvalidObject))
	assert.Contains(t, err.Error(), "INVALID_THREAD")
	assert.Equal(t, StateConnected, c.State())
}

func TestUnmatchedReplyIsDropped(t *testing.T) {
	vm := newFakeVM(t).on(cmdVirtualMachineVersion, replyVersion)
	c, hook := vm.start(Config{})

	require.NoError(t, vm.tr.writePacket(&packet{id: 9999, flags: flagReply}))
	_, err := c.Version(testContext(t))
	require.NoError(t, err)

	assert.True(t, hasLog(hook, logrus.WarnLevel, "dropping reply"))
	assert.Equal(t, StateConnected, c.State())
}

func TestUnexpectedCommandFromTargetIsDropped(t *testing.T) {
	vm := newFakeVM(t).on(cmdVirtualMachineVersion, replyVersion)
	c, hook := vm.start(Config{})

	require.NoError(t, vm.tr.writePacket(&packet{id: 77, cmd: cmd{99, 1}}))
	_, err := c.Version(testContext(t))
	require.NoError(t, err)

	assert.True(t, hasLog(hook, logrus.WarnLevel, "dropping packet"))
	assert.Equal(t, StateConnected, c.State())
}

func TestCancelledCommandDropsLateReply(t *testing.T) {
	held := make(chan *packet, 1)
	vm := newFakeVM(t).
		on(cmdThreadReferenceName, func(vm *fakeVM, p *packet) { held <- p }).
		on(cmdVirtualMachineVersion, replyVersion)
	c, hook := vm.start(Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := threadMirror(c, 1).Name(ctx)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))

	p := <-held
	vm.reply(p, func(w *writer) { w.str("late") })
	_, err = c.Version(testContext(t))
	require.NoError(t, err)

	assert.True(t, hasLog(hook, logrus.WarnLevel, "dropping reply"))
	c.mu.Lock()
	assert.Empty(t, c.pending)
	c.mu.Unlock()
}

func TestCloseFailsPendingCommands(t *testing.T) {
	const k = 4
	vm := newFakeVM(t).on(cmdThreadReferenceName, func(*fakeVM, *packet) {})
	rec := &recorder{}
	c, _ := vm.start(Config{Listeners: []Listener{rec.listen}})
	ctx := testContext(t)

	errs := make(chan error, k)
	for i := 0; i < k; i++ {
		go func(id ObjectID) {
			_, err := threadMirror(c, id).Name(ctx)
			errs <- err
		}(ObjectID(i + 1))
	}
	for i := 0; i < k; i++ {
		vm.wait()
	}

	require.NoError(t, c.Close())
	for i := 0; i < k; i++ {
		err := <-errs
		assert.True(t, stderrors.Is(err, errors.ErrDisconnected), "got %v", err)
	}

	_, err := c.Version(ctx)
	assert.True(t, stderrors.Is(err, errors.ErrDisconnected))

	assert.Equal(t, StateDisconnected, c.State())
	assert.NoError(t, c.Err())
	assert.Equal(t, 1, rec.count(VMDisconnected))
	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}

	// A second Close is harmless and delivers nothing new.
	c.Close()
	assert.Equal(t, 1, rec.count(VMDisconnected))
}

func TestTargetHangupRecordsCause(t *testing.T) {
	vm := newFakeVM(t)
	rec := &recorder{}
	c, hook := vm.start(Config{Listeners: []Listener{rec.listen}})

	vm.tr.Close()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection did not notice the hangup")
	}

	assert.Error(t, c.Err())
	assert.True(t, hasLog(hook, logrus.InfoLevel, "connection lost"))
	events := rec.events()
	require.Len(t, events, 1)
	assert.Error(t, events[0].(*VMDisconnectedEvent).Cause)
}

func TestOversizedPacketTearsDownConnection(t *testing.T) {
	vm := newFakeVM(t)
	c, _ := vm.start(Config{MaxPacketSize: 64})

	vm.tr.writePacket(&packet{id: 1, flags: flagReply, data: make([]byte, 100)})
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection survived an oversized packet")
	}
	assert.True(t, stderrors.Is(c.Err(), errors.ErrProtocol))
}

func TestEventsBeforeIDSizesAreReplayed(t *testing.T) {
	vm := newFakeVM(t)
	vm.beforeIDSizes = func(vm *fakeVM) {
		vm.event(SuspendAll, func(w *writer) {
			w.i32(1)
			w.u8(uint8(VMStart))
			w.i32(0)
			w.objectID(1)
		})
	}
	rec := &recorder{}
	c, _ := vm.start(Config{Listeners: []Listener{rec.listen}})

	require.Eventually(t, func() bool { return rec.count(VMStart) == 1 }, 5*time.Second, 10*time.Millisecond)
	start := rec.events()[0].(*VMStartEvent)
	assert.Equal(t, ObjectID(1), start.Thread.ID())
	assert.True(t, start.Thread.Suspended())
	assert.True(t, c.Suspended())
}

func TestMalformedEventPacketIsDropped(t *testing.T) {
	vm := newFakeVM(t).on(cmdVirtualMachineVersion, replyVersion)
	rec := &recorder{}
	c, hook := vm.start(Config{Listeners: []Listener{rec.listen}})

	vm.event(SuspendNone, func(w *writer) {
		w.i32(1)
		w.u8(99)
		w.i32(0)
	})
	_, err := c.Version(testContext(t))
	require.NoError(t, err)

	assert.True(t, hasLog(hook, logrus.WarnLevel, "dropping malformed event packet"))
	assert.Empty(t, rec.events())
}
