package jdwp

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// objectRef is the state and behavior shared by every object mirror.
type objectRef struct {
	conn *Conn
	id   ObjectID
}

func (o *objectRef) ID() ObjectID             { return o.id }
func (o *objectRef) mirrorID() uint64         { return uint64(o.id) }
func (o *objectRef) write(w *writer)          { w.objectID(o.id) }
func (o *objectRef) describe(k string) string { return fmt.Sprintf("%s#%d", k, o.id) }

// ReferenceType returns the runtime type of the object.
func (o *objectRef) ReferenceType(ctx context.Context) (*TypeMirror, error) {
	var t *TypeMirror
	err := o.conn.call(ctx, cmdObjectReferenceReferenceType,
		func(w *writer) { w.objectID(o.id) },
		func(r *reader) { t = r.typeRef() })
	return t, err
}

// GetValues reads instance fields of the object.
func (o *objectRef) GetValues(ctx context.Context, fields []*Field) ([]Value, error) {
	out := make([]Value, 0, len(fields))
	err := o.conn.call(ctx, cmdObjectReferenceGetValues,
		func(w *writer) {
			w.objectID(o.id)
			w.i32(int32(len(fields)))
			for _, f := range fields {
				w.fieldID(f.ID)
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

// SetValues writes instance fields of the object.
func (o *objectRef) SetValues(ctx context.Context, fields []*Field, values []Value) error {
	if len(fields) != len(values) {
		return fmt.Errorf("%d fields but %d values", len(fields), len(values))
	}
	for i, f := range fields {
		if !assignable(f.Signature, values[i]) {
			return fmt.Errorf("cannot assign %v value to field %s of type %s", values[i].Tag(), f.Name, f.Signature)
		}
	}
	return o.conn.call(ctx, cmdObjectReferenceSetValues,
		func(w *writer) {
			w.objectID(o.id)
			w.i32(int32(len(fields)))
			for i, f := range fields {
				w.fieldID(f.ID)
				values[i].write(w)
			}
		}, nil)
}

// DisableCollection prevents the target from garbage collecting the object.
func (o *objectRef) DisableCollection(ctx context.Context) error {
	return o.conn.call(ctx, cmdObjectReferenceDisableCollection,
		func(w *writer) { w.objectID(o.id) }, nil)
}

func (o *objectRef) EnableCollection(ctx context.Context) error {
	return o.conn.call(ctx, cmdObjectReferenceEnableCollection,
		func(w *writer) { w.objectID(o.id) }, nil)
}

func (o *objectRef) IsCollected(ctx context.Context) (bool, error) {
	var collected bool
	err := o.conn.call(ctx, cmdObjectReferenceIsCollected,
		func(w *writer) { w.objectID(o.id) },
		func(r *reader) { collected = r.boolean() })
	return collected, err
}

// ObjectMirror is a plain object instance.
type ObjectMirror struct{ objectRef }

func (*ObjectMirror) Kind() MirrorKind { return KindObject }
func (*ObjectMirror) Tag() Tag         { return TagObject }
func (o *ObjectMirror) String() string { return o.describe("object") }

// ArrayMirror is an array instance.
type ArrayMirror struct{ objectRef }

func (*ArrayMirror) Kind() MirrorKind { return KindArray }
func (*ArrayMirror) Tag() Tag         { return TagArray }
func (a *ArrayMirror) String() string { return a.describe("array") }

func (a *ArrayMirror) Length(ctx context.Context) (int, error) {
	var n int
	err := a.conn.call(ctx, cmdArrayReferenceLength,
		func(w *writer) { w.objectID(a.id) },
		func(r *reader) { n = int(r.i32()) })
	return n, err
}

// GetValues reads length elements starting at first. Primitive arrays come
// back untagged on the wire; object arrays carry a tag per element.
func (a *ArrayMirror) GetValues(ctx context.Context, first, length int) ([]Value, error) {
	var out []Value
	err := a.conn.call(ctx, cmdArrayReferenceGetValues,
		func(w *writer) {
			w.objectID(a.id)
			w.i32(int32(first))
			w.i32(int32(length))
		},
		func(r *reader) {
			tag := r.tag()
			n := r.count()
			out = make([]Value, 0, n)
			for i := 0; i < n && r.err == nil; i++ {
				if tag.IsObject() {
					out = append(out, r.value())
				} else {
					out = append(out, r.untagged(tag))
				}
			}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetValues writes values into the array starting at first.
func (a *ArrayMirror) SetValues(ctx context.Context, first int, values []Value) error {
	return a.conn.call(ctx, cmdArrayReferenceSetValues,
		func(w *writer) {
			w.objectID(a.id)
			w.i32(int32(first))
			w.i32(int32(len(values)))
			for _, v := range values {
				v.write(w)
			}
		}, nil)
}

// StringMirror is a java.lang.String instance. Its contents are immutable
// and memoized after the first read.
type StringMirror struct {
	objectRef
	sf    singleflight.Group
	value lazy[string]
}

func (*StringMirror) Kind() MirrorKind { return KindString }
func (*StringMirror) Tag() Tag         { return TagString }
func (s *StringMirror) String() string {
	if v, ok := s.value.get(); ok {
		return fmt.Sprintf("%q", v)
	}
	return s.describe("string")
}

func (s *StringMirror) Value(ctx context.Context) (string, error) {
	return load(ctx, &s.sf, "value", &s.value, func(ctx context.Context) (string, error) {
		var v string
		err := s.conn.call(ctx, cmdStringReferenceValue,
			func(w *writer) { w.objectID(s.id) },
			func(r *reader) { v = r.str() })
		return v, err
	})
}

// ThreadMirror is a java.lang.Thread instance. Besides the remote calls it
// tracks whether the client believes the thread is suspended.
type ThreadMirror struct {
	objectRef
	suspended atomic.Bool
}

func (*ThreadMirror) Kind() MirrorKind { return KindThread }
func (*ThreadMirror) Tag() Tag         { return TagThread }
func (t *ThreadMirror) String() string { return t.describe("thread") }

// Suspended reports the client's view of the thread: set by suspending
// events and Suspend, cleared by Resume. A thread mirror created while the
// VM is suspended starts out suspended.
func (t *ThreadMirror) Suspended() bool { return t.suspended.Load() }

func (t *ThreadMirror) Name(ctx context.Context) (string, error) {
	var name string
	err := t.conn.call(ctx, cmdThreadReferenceName,
		func(w *writer) { w.objectID(t.id) },
		func(r *reader) { name = r.str() })
	return name, err
}

func (t *ThreadMirror) Suspend(ctx context.Context) error {
	err := t.conn.call(ctx, cmdThreadReferenceSuspend,
		func(w *writer) { w.objectID(t.id) }, nil)
	if err == nil {
		t.suspended.Store(true)
	}
	return err
}

// Resume resumes this thread only. Conn.Suspended is left unchanged, so
// threads first seen later still start out suspended.
func (t *ThreadMirror) Resume(ctx context.Context) error {
	err := t.conn.call(ctx, cmdThreadReferenceResume,
		func(w *writer) { w.objectID(t.id) }, nil)
	if err == nil {
		t.suspended.Store(false)
	}
	return err
}

// Status returns the thread's execution state and whether the target
// reports it suspended.
func (t *ThreadMirror) Status(ctx context.Context) (ThreadStatus, bool, error) {
	var status ThreadStatus
	var suspend SuspendStatus
	err := t.conn.call(ctx, cmdThreadReferenceStatus,
		func(w *writer) { w.objectID(t.id) },
		func(r *reader) {
			status = ThreadStatus(r.i32())
			suspend = SuspendStatus(r.i32())
		})
	return status, suspend&suspendStatusSuspended != 0, err
}

func (t *ThreadMirror) ThreadGroup(ctx context.Context) (*ThreadGroupMirror, error) {
	var g *ThreadGroupMirror
	err := t.conn.call(ctx, cmdThreadReferenceThreadGroup,
		func(w *writer) { w.objectID(t.id) },
		func(r *reader) {
			if id := r.objectID(); r.err == nil && id != 0 {
				g = t.conn.cache.Resolve(KindThreadGroup, uint64(id)).(*ThreadGroupMirror)
			}
		})
	return g, err
}

// Frames returns up to length frames starting at start, innermost first.
// A length of -1 returns all remaining frames. The thread must be suspended.
func (t *ThreadMirror) Frames(ctx context.Context, start, length int) ([]*StackFrame, error) {
	var out []*StackFrame
	err := t.conn.call(ctx, cmdThreadReferenceFrames,
		func(w *writer) {
			w.objectID(t.id)
			w.i32(int32(start))
			w.i32(int32(length))
		},
		func(r *reader) {
			n := r.count()
			for i := 0; i < n && r.err == nil; i++ {
				f := &StackFrame{Thread: t, Depth: start + i}
				f.ID = r.frameID()
				f.Location = r.location()
				out = append(out, f)
			}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *ThreadMirror) FrameCount(ctx context.Context) (int, error) {
	var n int
	err := t.conn.call(ctx, cmdThreadReferenceFrameCount,
		func(w *writer) { w.objectID(t.id) },
		func(r *reader) { n = int(r.i32()) })
	return n, err
}

// SuspendCount returns how many pending suspends the target holds for the
// thread.
func (t *ThreadMirror) SuspendCount(ctx context.Context) (int, error) {
	var n int
	err := t.conn.call(ctx, cmdThreadReferenceSuspendCount,
		func(w *writer) { w.objectID(t.id) },
		func(r *reader) { n = int(r.i32()) })
	return n, err
}

// ThreadGroupMirror is a java.lang.ThreadGroup instance.
type ThreadGroupMirror struct{ objectRef }

func (*ThreadGroupMirror) Kind() MirrorKind { return KindThreadGroup }
func (*ThreadGroupMirror) Tag() Tag         { return TagThreadGroup }
func (g *ThreadGroupMirror) String() string { return g.describe("group") }

func (g *ThreadGroupMirror) Name(ctx context.Context) (string, error) {
	var name string
	err := g.conn.call(ctx, cmdThreadGroupReferenceName,
		func(w *writer) { w.objectID(g.id) },
		func(r *reader) { name = r.str() })
	return name, err
}

// Parent returns the enclosing group, or nil for a top-level group.
func (g *ThreadGroupMirror) Parent(ctx context.Context) (*ThreadGroupMirror, error) {
	var parent *ThreadGroupMirror
	err := g.conn.call(ctx, cmdThreadGroupReferenceParent,
		func(w *writer) { w.objectID(g.id) },
		func(r *reader) {
			if id := r.objectID(); r.err == nil && id != 0 {
				parent = g.conn.cache.Resolve(KindThreadGroup, uint64(id)).(*ThreadGroupMirror)
			}
		})
	return parent, err
}

// ClassLoaderMirror is a java.lang.ClassLoader instance.
type ClassLoaderMirror struct{ objectRef }

func (*ClassLoaderMirror) Kind() MirrorKind { return KindClassLoader }
func (*ClassLoaderMirror) Tag() Tag         { return TagClassLoader }
func (l *ClassLoaderMirror) String() string { return l.describe("loader") }

// ClassObjectMirror is a java.lang.Class instance.
type ClassObjectMirror struct{ objectRef }

func (*ClassObjectMirror) Kind() MirrorKind { return KindClassObject }
func (*ClassObjectMirror) Tag() Tag         { return TagClassObject }
func (c *ClassObjectMirror) String() string { return c.describe("class") }

// ReflectedType returns the type the class object represents.
func (c *ClassObjectMirror) ReflectedType(ctx context.Context) (*TypeMirror, error) {
	var t *TypeMirror
	err := c.conn.call(ctx, cmdClassObjectReferenceReflectedType,
		func(w *writer) { w.objectID(c.id) },
		func(r *reader) { t = r.typeRef() })
	return t, err
}
