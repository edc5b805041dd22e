package jdwp

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramesAndVisibleVariables(t *testing.T) {
	vm := serveMainClass(newFakeVM(t)).
		on(cmdThreadReferenceFrames, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(2)
				w.frameID(1000)
				writeLocation(w, mainTypeID, mainMethodID, 8)
				w.frameID(1001)
				writeLocation(w, mainTypeID, mainMethodID, 12)
			})
		}).
		on(cmdStackFrameGetValues, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(2)
				w.u8(uint8(TagArray))
				w.objectID(100)
				w.u8(uint8(TagInt))
				w.i32(5)
			})
		})
	c, _ := vm.start(Config{})
	ctx := testContext(t)
	thread := threadMirror(c, 7)

	frames, err := thread.Frames(ctx, 0, -1)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, FrameID(1000), frames[0].ID)
	assert.Equal(t, 1, frames[1].Depth)
	assert.Same(t, thread, frames[0].Thread)
	assert.Same(t, frames[0].Location.Type, frames[1].Location.Type)

	line, err := frames[0].Location.Line(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, line)

	vars, err := frames[0].VisibleVariables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "args", vars[0].Name)
	assert.True(t, vars[0].Argument)
	assert.Equal(t, "count", vars[1].Name)
	assert.False(t, vars[1].Argument)

	deeper, err := frames[1].VisibleVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, deeper, 3)

	values, err := frames[0].Values(ctx, vars)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.IsType(t, &ArrayMirror{}, values[0])
	assert.Equal(t, IntValue(5), values[1])

	get := vm.args(vm.waitFor(cmdStackFrameGetValues))
	assert.Equal(t, ObjectID(7), get.objectID())
	assert.Equal(t, FrameID(1000), get.frameID())
	assert.Equal(t, int32(2), get.i32())
	assert.Equal(t, int32(0), get.i32())
	assert.Equal(t, uint8(TagArray), get.u8())
	assert.Equal(t, int32(1), get.i32())
	assert.Equal(t, uint8(TagInt), get.u8())
	require.NoError(t, get.err)

	missing, err := frames[0].VariableByName(ctx, "total")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSetVariableChecksType(t *testing.T) {
	vm := serveMainClass(newFakeVM(t)).on(cmdStackFrameSetValues, func(vm *fakeVM, p *packet) {
		vm.reply(p, nil)
	})
	c, _ := vm.start(Config{})
	ctx := testContext(t)
	typ := c.cache.typeMirror(TypeTagClass, mainTypeID)
	frame := &StackFrame{
		Thread:   threadMirror(c, 7),
		ID:       1000,
		Location: Location{TypeTag: TypeTagClass, Type: typ, MethodID: mainMethodID, Index: 8},
	}

	count, err := frame.VariableByName(ctx, "count")
	require.NoError(t, err)
	require.NotNil(t, count)

	assert.Error(t, frame.SetVariable(ctx, count, BooleanValue(true)))
	require.NoError(t, frame.SetVariable(ctx, count, IntValue(9)))

	set := vm.args(vm.waitFor(cmdStackFrameSetValues))
	assert.Equal(t, ObjectID(7), set.objectID())
	assert.Equal(t, FrameID(1000), set.frameID())
	assert.Equal(t, int32(1), set.i32())
	assert.Equal(t, int32(1), set.i32())
	assert.Equal(t, IntValue(9), set.value())
	require.NoError(t, set.err)
	assert.Len(t, vm.received, 0)
}

func TestArrayRegions(t *testing.T) {
	vm := newFakeVM(t).on(cmdArrayReferenceGetValues, func(vm *fakeVM, p *packet) {
		id := vm.args(p).objectID()
		vm.reply(p, func(w *writer) {
			if id == 100 {
				w.u8(uint8(TagInt))
				w.i32(3)
				w.i32(1)
				w.i32(2)
				w.i32(3)
				return
			}
			w.u8(uint8(TagObject))
			w.i32(2)
			w.u8(uint8(TagString))
			w.objectID(200)
			w.u8(uint8(TagObject))
			w.objectID(0)
		})
	})
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	ints := c.cache.Resolve(KindArray, 100).(*ArrayMirror)
	got, err := ints.GetValues(ctx, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []Value{IntValue(1), IntValue(2), IntValue(3)}, got)

	objs := c.cache.Resolve(KindArray, 101).(*ArrayMirror)
	got, err = objs.GetValues(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Same(t, c.cache.Resolve(KindString, 200), got[0])
	assert.True(t, IsNull(got[1]))
}

func TestStringValueIsMemoized(t *testing.T) {
	var calls atomic.Int32
	vm := newFakeVM(t).
		on(cmdStringReferenceValue, func(vm *fakeVM, p *packet) {
			calls.Add(1)
			vm.reply(p, func(w *writer) { w.str("hello") })
		}).
		on(cmdVirtualMachineCreateString, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) { w.objectID(300) })
		})
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	s := c.cache.Resolve(KindString, 200).(*StringMirror)
	for i := 0; i < 3; i++ {
		v, err := s.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, `"hello"`, s.String())

	created, err := c.CreateString(ctx, "made here")
	require.NoError(t, err)
	v, err := created.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "made here", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestThreadStateTracking(t *testing.T) {
	ack := func(vm *fakeVM, p *packet) { vm.reply(p, nil) }
	vm := newFakeVM(t).
		on(cmdVirtualMachineAllThreads, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(2)
				w.objectID(1)
				w.objectID(2)
			})
		}).
		on(cmdThreadReferenceStatus, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(int32(ThreadWait))
				w.i32(1)
			})
		}).
		on(cmdVirtualMachineSuspend, ack).
		on(cmdVirtualMachineResume, ack).
		on(cmdThreadReferenceResume, ack)
	c, _ := vm.start(Config{})
	ctx := testContext(t)

	threads, err := c.AllThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)

	require.NoError(t, c.Suspend(ctx))
	assert.True(t, c.Suspended())
	assert.True(t, threads[0].Suspended())
	assert.True(t, threads[1].Suspended())

	require.NoError(t, threads[0].Resume(ctx))
	assert.False(t, threads[0].Suspended())
	assert.True(t, threads[1].Suspended())
	assert.True(t, c.Suspended())
	assert.True(t, threadMirror(c, 3).Suspended())

	status, suspended, err := threads[1].Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, ThreadWait, status)
	assert.True(t, suspended)

	require.NoError(t, c.Resume(ctx))
	assert.False(t, c.Suspended())
	assert.False(t, threads[1].Suspended())
}

func TestStaticFieldsWalkSuperclasses(t *testing.T) {
	const baseID = ReferenceTypeID(20)
	vm := newFakeVM(t).
		on(cmdReferenceTypeSignature, func(vm *fakeVM, p *packet) {
			id := vm.args(p).refTypeID()
			vm.reply(p, func(w *writer) {
				if id == mainTypeID {
					w.str("Lcom/example/Main;")
				} else {
					w.str("Lcom/example/Base;")
				}
			})
		}).
		on(cmdReferenceTypeFields, func(vm *fakeVM, p *packet) {
			id := vm.args(p).refTypeID()
			vm.reply(p, func(w *writer) {
				if id == mainTypeID {
					w.i32(0)
					return
				}
				w.i32(1)
				w.fieldID(5)
				w.str("LIMIT")
				w.str("I")
				w.i32(0x0008)
			})
		}).
		on(cmdClassTypeSuperclass, func(vm *fakeVM, p *packet) {
			id := vm.args(p).refTypeID()
			vm.reply(p, func(w *writer) {
				if id == mainTypeID {
					w.refTypeID(baseID)
				} else {
					w.refTypeID(0)
				}
			})
		}).
		on(cmdReferenceTypeGetValues, func(vm *fakeVM, p *packet) {
			vm.reply(p, func(w *writer) {
				w.i32(1)
				w.u8(uint8(TagInt))
				w.i32(64)
			})
		})
	c, _ := vm.start(Config{})
	ctx := testContext(t)
	typ := c.cache.typeMirror(TypeTagClass, mainTypeID)

	f, err := typ.FieldByName(ctx, "LIMIT")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.IsStatic())
	assert.Equal(t, baseID, f.Type.ID())

	vals, err := f.Type.GetValues(ctx, []*Field{f})
	require.NoError(t, err)
	assert.Equal(t, []Value{IntValue(64)}, vals)

	missing, err := typ.FieldByName(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, f.Type.SetValues(ctx, []*Field{f}, []Value{LongValue(1)}))
}
