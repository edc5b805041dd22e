package jdwp

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestResolveReturnsOneMirrorPerID(t *testing.T) {
	c, _ := offlineConn(t)

	a := c.cache.Resolve(KindThread, 5)
	b := c.cache.Resolve(KindThread, 5)
	assert.Same(t, a, b)

	// Kinds are separate namespaces.
	obj := c.cache.Resolve(KindObject, 5)
	assert.IsType(t, &ObjectMirror{}, obj)
	assert.NotSame(t, a, obj)

	assert.IsType(t, &StringMirror{}, c.cache.Resolve(KindString, 6))
	assert.IsType(t, &ArrayMirror{}, c.cache.Resolve(KindArray, 7))
	assert.IsType(t, &ClassLoaderMirror{}, c.cache.Resolve(KindClassLoader, 8))
	assert.IsType(t, &ClassObjectMirror{}, c.cache.Resolve(KindClassObject, 9))
	assert.IsType(t, &ThreadGroupMirror{}, c.cache.Resolve(KindThreadGroup, 10))
	assert.Equal(t, 7, c.cache.Len())
}

func TestResolveIsSafeUnderConcurrency(t *testing.T) {
	c, _ := offlineConn(t)
	const n = 32
	got := make([]Mirror, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			got[i] = c.cache.Resolve(KindThread, 99)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, m := range got[1:] {
		assert.Same(t, got[0], m)
	}
}

func TestTypeMirrorKeepsFirstTag(t *testing.T) {
	c, _ := offlineConn(t)
	typ := c.cache.typeMirror(TypeTagInterface, 4)
	assert.Same(t, typ, c.cache.typeMirror(TypeTagClass, 4))
	assert.Equal(t, TypeTagInterface, typ.TypeTag())
}

func TestEvictionYieldsFreshMirror(t *testing.T) {
	c, _ := offlineConn(t)
	typ := c.cache.typeMirror(TypeTagClass, 10)
	c.cache.noteSignature(typ, "Lcom/example/Main;")
	assert.Equal(t, "com.example.Main", typ.String())

	assert.Equal(t, 1, c.cache.evictSignature("Lcom/example/Main;"))
	assert.Equal(t, 0, c.cache.evictSignature("Lcom/example/Main;"))

	fresh := c.cache.typeMirror(TypeTagClass, 10)
	assert.NotSame(t, typ, fresh)
	_, ok := fresh.signature.get()
	assert.False(t, ok)
}

func TestStaleMirrorIsNotReindexed(t *testing.T) {
	c, _ := offlineConn(t)
	stale := c.cache.typeMirror(TypeTagClass, 10)
	c.cache.noteSignature(stale, "Lcom/example/Main;")
	c.cache.evictSignature("Lcom/example/Main;")
	fresh := c.cache.typeMirror(TypeTagClass, 10)

	// A late signature for the evicted instance must not evict the new one.
	c.cache.noteSignature(stale, "Lcom/example/Old;")
	assert.Equal(t, 0, c.cache.evictSignature("Lcom/example/Old;"))
	assert.Same(t, fresh, c.cache.typeMirror(TypeTagClass, 10))
}

func TestMethodsAreFetchedOnce(t *testing.T) {
	var calls atomic.Int32
	vm := serveMainClass(newFakeVM(t)).on(cmdReferenceTypeMethods, func(vm *fakeVM, p *packet) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		vm.reply(p, writeMainMethods)
	})
	c, _ := vm.start(Config{})
	typ := c.cache.typeMirror(TypeTagClass, mainTypeID)
	ctx := testContext(t)

	const n = 8
	results := make([][]*Method, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			m, err := typ.Methods(gctx)
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Same(t, results[0][0], r[0])
	}
	m := results[0][0]
	assert.Equal(t, "main", m.Name)
	assert.True(t, m.IsStatic())
	assert.False(t, m.IsNative())
}

func TestMetadataErrorsAreNotMemoized(t *testing.T) {
	var calls atomic.Int32
	vm := newFakeVM(t).on(cmdReferenceTypeSignature, func(vm *fakeVM, p *packet) {
		if calls.Add(1) == 1 {
			vm.replyError(p, ErrInvalidClass)
			return
		}
		vm.reply(p, func(w *writer) { w.str("Lcom/example/Main;") })
	})
	c, _ := vm.start(Config{})
	typ := c.cache.typeMirror(TypeTagClass, mainTypeID)
	ctx := testContext(t)

	_, err := typ.Signature(ctx)
	assert.True(t, IsRemote(err, ErrInvalidClass))

	name, err := typ.Name(ctx)
	require.NoError(t, err)
	assert.Equal(t, "com.example.Main", name)

	_, err = typ.Signature(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassQueriesSeedSignatures(t *testing.T) {
	vm := newFakeVM(t).
		on(cmdVirtualMachineAllClasses, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(2)
				w.u8(uint8(TypeTagClass))
				w.refTypeID(mainTypeID)
				w.str("Lcom/example/Main;")
				w.i32(int32(StatusPrepared | StatusVerified))
				w.u8(uint8(TypeTagInterface))
				w.refTypeID(11)
				w.str("Ljava/lang/Runnable;")
				w.i32(int32(StatusPrepared))
			})
		}).
		on(cmdVirtualMachineClassesBySignature, func(vm *fakeVM, p *packet) {
			sig := vm.args(p).str()
			vm.reply(p, func(w *writer) {
				if sig != "Lcom/example/Main;" {
					w.i32(0)
					return
				}
				w.i32(1)
				w.u8(uint8(TypeTagClass))
				w.refTypeID(mainTypeID)
				w.i32(int32(StatusPrepared))
			})
		})
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	classes, err := c.AllClasses(ctx)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, TypeTagInterface, classes[1].Type.TypeTag())

	// The signature came with the listing, so this needs no round trip.
	sig, err := classes[0].Type.Signature(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Lcom/example/Main;", sig)

	found, err := c.ClassesByName(ctx, "com.example.Main")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Same(t, classes[0].Type, found[0])

	none, err := c.ClassesByName(ctx, "com.example.Missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.Equal(t, cmdVirtualMachineAllClasses, vm.wait().cmd)
	assert.Equal(t, cmdVirtualMachineClassesBySignature, vm.wait().cmd)
	assert.Equal(t, cmdVirtualMachineClassesBySignature, vm.wait().cmd)
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	vm := serveMainClass(newFakeVM(t)).on(cmdReferenceTypeMethods, func(vm *fakeVM, p *packet) {
		calls.Add(1)
		<-release
		vm.reply(p, writeMainMethods)
	})
	c, _ := vm.start(Config{})
	typ := c.cache.typeMirror(TypeTagClass, mainTypeID)
	ctx := testContext(t)

	first, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		_, err := typ.Methods(first)
		errc <- err
	}()
	vm.waitFor(cmdReferenceTypeMethods)
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	// The fetch is still in flight; a live caller joins it.
	var methods []*Method
	var g errgroup.Group
	g.Go(func() error {
		var err error
		methods, err = typ.Methods(ctx)
		return err
	})
	close(release)
	require.NoError(t, g.Wait())

	require.Len(t, methods, 1)
	assert.Equal(t, "main", methods[0].Name)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnloadEvictsTypeSeenOnlyThroughLocation(t *testing.T) {
	vm := serveMainClass(newFakeVM(t))
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	w := newWriter(fakeSizes)
	writeLocation(w, mainTypeID, mainMethodID, 4)
	r := newReader(c, w.bytes())
	loc := r.location()
	require.NoError(t, r.err)
	typ := loc.Type

	methods, err := typ.Methods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 1)

	c.dispatch(&EventSet{Events: []Event{&ClassUnloadEvent{Signature: "Lcom/example/Main;"}}})

	fresh := c.cache.typeMirror(TypeTagClass, mainTypeID)
	assert.NotSame(t, typ, fresh)
	_, ok := fresh.methods.get()
	assert.False(t, ok)
}
