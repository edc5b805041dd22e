package jdwp

import (
	"context"
	"fmt"
)

// StackFrame is one activation on a suspended thread's stack. Frames are
// valid only until the thread resumes and are never cached.
type StackFrame struct {
	Thread   *ThreadMirror
	ID       FrameID
	Depth    int
	Location Location
}

func (f *StackFrame) String() string {
	return fmt.Sprintf("%v frame %d at %v", f.Thread, f.Depth, f.Location)
}

// Slot names a local variable slot and the tag its value is read with.
type Slot struct {
	Index int32
	Tag   Tag
}

// signatureTag returns the value tag used to read a slot of the given
// signature.
func signatureTag(sig string) Tag {
	if sig == "" {
		return TagObject
	}
	t := Tag(sig[0])
	if t == TagArray {
		return TagArray
	}
	if t.Size() == 0 && t != TagVoid {
		return TagObject
	}
	return t
}

// GetValues reads local variable slots of the frame.
func (f *StackFrame) GetValues(ctx context.Context, slots []Slot) ([]Value, error) {
	c := f.Thread.conn
	out := make([]Value, 0, len(slots))
	err := c.call(ctx, cmdStackFrameGetValues,
		func(w *writer) {
			w.objectID(f.Thread.id)
			w.frameID(f.ID)
			w.i32(int32(len(slots)))
			for _, s := range slots {
				w.i32(s.Index)
				w.u8(uint8(s.Tag))
			}
		},
		func(r *reader) {
			n := r.count()
			for i := 0; i < n && r.err == nil; i++ {
				out = append(out, r.value())
			}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetValue writes a local variable slot of the frame.
func (f *StackFrame) SetValue(ctx context.Context, slot int32, v Value) error {
	return f.Thread.conn.call(ctx, cmdStackFrameSetValues,
		func(w *writer) {
			w.objectID(f.Thread.id)
			w.frameID(f.ID)
			w.i32(1)
			w.i32(slot)
			w.value(v)
		}, nil)
}

// ThisObject returns the receiver of the frame's method, or NullValue for
// static and native methods.
func (f *StackFrame) ThisObject(ctx context.Context) (Value, error) {
	var v Value
	err := f.Thread.conn.call(ctx, cmdStackFrameThisObject,
		func(w *writer) {
			w.objectID(f.Thread.id)
			w.frameID(f.ID)
		},
		func(r *reader) { v = r.taggedObject() })
	return v, err
}

// VisibleVariables returns the variables live at the frame's location, in
// variable-table order.
func (f *StackFrame) VisibleVariables(ctx context.Context) ([]*Variable, error) {
	m, err := f.Location.Method(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	vars, err := m.Variables(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Variable
	for _, v := range vars {
		if v.liveAt(f.Location.Index) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Values reads the given variables of the frame.
func (f *StackFrame) Values(ctx context.Context, vars []*Variable) ([]Value, error) {
	slots := make([]Slot, len(vars))
	for i, v := range vars {
		slots[i] = Slot{Index: v.Slot, Tag: signatureTag(v.Signature)}
	}
	return f.GetValues(ctx, slots)
}

// VariableByName returns the visible variable called name, or nil.
func (f *StackFrame) VariableByName(ctx context.Context, name string) (*Variable, error) {
	vars, err := f.VisibleVariables(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, nil
}

// SetVariable assigns v to a visible variable after checking its type.
func (f *StackFrame) SetVariable(ctx context.Context, variable *Variable, v Value) error {
	if !assignable(variable.Signature, v) {
		return fmt.Errorf("cannot assign %v value to %s of type %s", v.Tag(), variable.Name, variable.Signature)
	}
	return f.SetValue(ctx, variable.Slot, v)
}
