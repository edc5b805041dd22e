package jdwp

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// lazy is a memoized value that is set at most once with a non-error result.
type lazy[T any] struct {
	mu sync.Mutex
	ok bool
	v  T
}

func (l *lazy[T]) get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.ok
}

func (l *lazy[T]) set(v T) {
	l.mu.Lock()
	l.v, l.ok = v, true
	l.mu.Unlock()
}

// load returns the memoized value in l, fetching it on first use. Concurrent
// callers for the same key share one round trip. Errors are not memoized.
// The shared fetch is detached from any one caller's cancellation; each
// caller stops waiting when its own ctx is done.
func load[T any](ctx context.Context, g *singleflight.Group, key string, l *lazy[T], fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := l.get(); ok {
		return v, nil
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := g.DoChan(key, func() (interface{}, error) {
		if v, ok := l.get(); ok {
			return v, nil
		}
		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		l.set(v)
		return v, nil
	})
	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// loadMeta is load for structural metadata of t. The signature is fetched
// first so that every mirror holding metadata can be evicted when its class
// unloads.
func loadMeta[T any](ctx context.Context, t *TypeMirror, key string, l *lazy[T], fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := l.get(); ok {
		return v, nil
	}
	return load(ctx, &t.sf, key, l, func(ctx context.Context) (T, error) {
		if _, err := t.Signature(ctx); err != nil {
			var zero T
			return zero, err
		}
		return fetch(ctx)
	})
}

// Modifier bits shared by types, fields and methods.
const (
	modStatic = 0x0008
	modNative = 0x0100
)

// TypeMirror mirrors a class, interface or array type loaded in the target.
// Its metadata is fetched on first use and kept for the life of the
// connection.
type TypeMirror struct {
	conn *Conn
	id   ReferenceTypeID
	tag  TypeTag

	sf          singleflight.Group
	signature   lazy[string]
	sourceFile  lazy[string]
	modifiers   lazy[int32]
	superclass  lazy[*TypeMirror]
	interfaces  lazy[[]*TypeMirror]
	fields      lazy[[]*Field]
	methods     lazy[[]*Method]
	classObject lazy[*ClassObjectMirror]
}

func (t *TypeMirror) Kind() MirrorKind    { return KindType }
func (t *TypeMirror) mirrorID() uint64    { return uint64(t.id) }
func (t *TypeMirror) ID() ReferenceTypeID { return t.id }

// TypeTag reports whether t is a class, interface or array. It is zero when
// the type was first seen without a tag.
func (t *TypeMirror) TypeTag() TypeTag { return t.tag }

func (t *TypeMirror) String() string {
	if sig, ok := t.signature.get(); ok {
		return SignatureToName(sig)
	}
	return fmt.Sprintf("type#%d", t.id)
}

// Signature returns the JNI signature, such as "Ljava/lang/String;".
func (t *TypeMirror) Signature(ctx context.Context) (string, error) {
	return load(ctx, &t.sf, "signature", &t.signature, func(ctx context.Context) (string, error) {
		var sig string
		err := t.conn.call(ctx, cmdReferenceTypeSignature,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) { sig = r.str() })
		if err != nil {
			return "", err
		}
		t.conn.cache.noteSignature(t, sig)
		return sig, nil
	})
}

// Name returns the Java source name, such as "java.lang.String".
func (t *TypeMirror) Name(ctx context.Context) (string, error) {
	sig, err := t.Signature(ctx)
	if err != nil {
		return "", err
	}
	return SignatureToName(sig), nil
}

func (t *TypeMirror) SourceFile(ctx context.Context) (string, error) {
	return loadMeta(ctx, t, "sourceFile", &t.sourceFile, func(ctx context.Context) (string, error) {
		var name string
		err := t.conn.call(ctx, cmdReferenceTypeSourceFile,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) { name = r.str() })
		return name, err
	})
}

func (t *TypeMirror) Modifiers(ctx context.Context) (int32, error) {
	return loadMeta(ctx, t, "modifiers", &t.modifiers, func(ctx context.Context) (int32, error) {
		var bits int32
		err := t.conn.call(ctx, cmdReferenceTypeModifiers,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) { bits = r.i32() })
		return bits, err
	})
}

// Status returns the current preparation state. It changes over time and is
// not memoized.
func (t *TypeMirror) Status(ctx context.Context) (ClassStatus, error) {
	var status ClassStatus
	err := t.conn.call(ctx, cmdReferenceTypeStatus,
		func(w *writer) { w.refTypeID(t.id) },
		func(r *reader) { status = ClassStatus(r.i32()) })
	return status, err
}

// ClassLoader returns the defining loader, or NullValue for the bootstrap
// loader.
func (t *TypeMirror) ClassLoader(ctx context.Context) (Value, error) {
	var v Value
	err := t.conn.call(ctx, cmdReferenceTypeClassLoader,
		func(w *writer) { w.refTypeID(t.id) },
		func(r *reader) { v = r.untagged(TagClassLoader) })
	return v, err
}

// Superclass returns the direct superclass, or nil for java.lang.Object,
// interfaces and arrays.
func (t *TypeMirror) Superclass(ctx context.Context) (*TypeMirror, error) {
	if t.tag == TypeTagInterface || t.tag == TypeTagArray {
		return nil, nil
	}
	return loadMeta(ctx, t, "superclass", &t.superclass, func(ctx context.Context) (*TypeMirror, error) {
		var super *TypeMirror
		err := t.conn.call(ctx, cmdClassTypeSuperclass,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) {
				if id := r.refTypeID(); r.err == nil && id != 0 {
					super = t.conn.cache.typeMirror(TypeTagClass, id)
				}
			})
		return super, err
	})
}

// Interfaces returns the directly implemented interfaces.
func (t *TypeMirror) Interfaces(ctx context.Context) ([]*TypeMirror, error) {
	return loadMeta(ctx, t, "interfaces", &t.interfaces, func(ctx context.Context) ([]*TypeMirror, error) {
		var out []*TypeMirror
		err := t.conn.call(ctx, cmdReferenceTypeInterfaces,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) {
				n := r.count()
				for i := 0; i < n && r.err == nil; i++ {
					id := r.refTypeID()
					if r.err == nil {
						out = append(out, t.conn.cache.typeMirror(TypeTagInterface, id))
					}
				}
			})
		return out, err
	})
}

// ClassObject returns the java.lang.Class instance for t.
func (t *TypeMirror) ClassObject(ctx context.Context) (*ClassObjectMirror, error) {
	return loadMeta(ctx, t, "classObject", &t.classObject, func(ctx context.Context) (*ClassObjectMirror, error) {
		var obj *ClassObjectMirror
		err := t.conn.call(ctx, cmdReferenceTypeClassObject,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) {
				if id := r.objectID(); r.err == nil && id != 0 {
					obj = t.conn.cache.Resolve(KindClassObject, uint64(id)).(*ClassObjectMirror)
				}
			})
		return obj, err
	})
}

// Field is a field declared by a reference type.
type Field struct {
	Type      *TypeMirror
	ID        FieldID
	Name      string
	Signature string
	ModBits   int32
}

func (f *Field) IsStatic() bool { return f.ModBits&modStatic != 0 }

func (f *Field) String() string { return fmt.Sprintf("%v.%s", f.Type, f.Name) }

// Fields returns the fields declared by t, excluding inherited ones.
func (t *TypeMirror) Fields(ctx context.Context) ([]*Field, error) {
	return loadMeta(ctx, t, "fields", &t.fields, func(ctx context.Context) ([]*Field, error) {
		var out []*Field
		err := t.conn.call(ctx, cmdReferenceTypeFields,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) {
				n := r.count()
				for i := 0; i < n && r.err == nil; i++ {
					f := &Field{Type: t}
					f.ID = r.fieldID()
					f.Name = r.str()
					f.Signature = r.str()
					f.ModBits = r.i32()
					out = append(out, f)
				}
			})
		return out, err
	})
}

// FieldByName looks the field up in t and then its superclasses.
func (t *TypeMirror) FieldByName(ctx context.Context, name string) (*Field, error) {
	for cur := t; cur != nil; {
		fields, err := cur.Fields(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.Name == name {
				return f, nil
			}
		}
		if cur, err = cur.Superclass(ctx); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// GetValues reads static fields of t.
func (t *TypeMirror) GetValues(ctx context.Context, fields []*Field) ([]Value, error) {
	out := make([]Value, 0, len(fields))
	err := t.conn.call(ctx, cmdReferenceTypeGetValues,
		func(w *writer) {
			w.refTypeID(t.id)
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

// SetValues writes static fields of a class. Each value must match the
// field's signature.
func (t *TypeMirror) SetValues(ctx context.Context, fields []*Field, values []Value) error {
	if len(fields) != len(values) {
		return fmt.Errorf("%d fields but %d values", len(fields), len(values))
	}
	for i, f := range fields {
		if !assignable(f.Signature, values[i]) {
			return fmt.Errorf("cannot assign %v value to field %s of type %s", values[i].Tag(), f.Name, f.Signature)
		}
	}
	return t.conn.call(ctx, cmdClassTypeSetValues,
		func(w *writer) {
			w.refTypeID(t.id)
			w.i32(int32(len(fields)))
			for i, f := range fields {
				w.fieldID(f.ID)
				values[i].write(w)
			}
		}, nil)
}

// Method is a method declared by a reference type.
type Method struct {
	Type      *TypeMirror
	ID        MethodID
	Name      string
	Signature string
	ModBits   int32

	lines lazy[*LineTable]
	vars  lazy[[]*Variable]
}

func (m *Method) IsStatic() bool { return m.ModBits&modStatic != 0 }
func (m *Method) IsNative() bool { return m.ModBits&modNative != 0 }

func (m *Method) String() string { return fmt.Sprintf("%v.%s%s", m.Type, m.Name, m.Signature) }

// Methods returns the methods declared by t, excluding inherited ones.
func (t *TypeMirror) Methods(ctx context.Context) ([]*Method, error) {
	return loadMeta(ctx, t, "methods", &t.methods, func(ctx context.Context) ([]*Method, error) {
		var out []*Method
		err := t.conn.call(ctx, cmdReferenceTypeMethods,
			func(w *writer) { w.refTypeID(t.id) },
			func(r *reader) {
				n := r.count()
				for i := 0; i < n && r.err == nil; i++ {
					m := &Method{Type: t}
					m.ID = r.methodID()
					m.Name = r.str()
					m.Signature = r.str()
					m.ModBits = r.i32()
					out = append(out, m)
				}
			})
		return out, err
	})
}

// MethodByID returns the declared method with the given ID, or nil.
func (t *TypeMirror) MethodByID(ctx context.Context, id MethodID) (*Method, error) {
	methods, err := t.Methods(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range methods {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

// MethodsByName returns the declared methods named name, in declaration order.
func (t *TypeMirror) MethodsByName(ctx context.Context, name string) ([]*Method, error) {
	methods, err := t.Methods(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Method
	for _, m := range methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out, nil
}

// LocationsOfLine returns the first code location of line in each declared
// method that contains it. Methods without line information are skipped.
func (t *TypeMirror) LocationsOfLine(ctx context.Context, line int) ([]Location, error) {
	methods, err := t.Methods(ctx)
	if err != nil {
		return nil, err
	}
	var out []Location
	for _, m := range methods {
		locs, err := m.LocationsOfLine(ctx, line)
		if err != nil {
			if code, ok := remoteCode(err); ok && code == ErrAbsentInformation {
				continue
			}
			return nil, err
		}
		out = append(out, locs...)
	}
	return out, nil
}

// LineEntry maps a code index to a source line.
type LineEntry struct {
	Index uint64
	Line  int
}

// LineTable is a method's code range and its line entries, sorted by index.
// Native methods report Start and End as -1 and have no entries.
type LineTable struct {
	Start int64
	End   int64
	Lines []LineEntry
}

func (m *Method) LineTable(ctx context.Context) (*LineTable, error) {
	key := fmt.Sprintf("method/%d/lines", m.ID)
	return load(ctx, &m.Type.sf, key, &m.lines, func(ctx context.Context) (*LineTable, error) {
		lt := &LineTable{}
		err := m.Type.conn.call(ctx, cmdMethodLineTable,
			func(w *writer) {
				w.refTypeID(m.Type.id)
				w.methodID(m.ID)
			},
			func(r *reader) {
				lt.Start = r.i64()
				lt.End = r.i64()
				n := r.count()
				for i := 0; i < n && r.err == nil; i++ {
					idx := uint64(r.i64())
					line := int(r.i32())
					lt.Lines = append(lt.Lines, LineEntry{Index: idx, Line: line})
				}
			})
		if err != nil {
			return nil, err
		}
		sort.SliceStable(lt.Lines, func(i, j int) bool { return lt.Lines[i].Index < lt.Lines[j].Index })
		return lt, nil
	})
}

// LocationsOfLine returns the lowest code index mapped to line, or none.
func (m *Method) LocationsOfLine(ctx context.Context, line int) ([]Location, error) {
	lt, err := m.LineTable(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range lt.Lines {
		if e.Line == line {
			return []Location{m.location(e.Index)}, nil
		}
	}
	return nil, nil
}

// LineOf returns the source line for a code index, or -1 when unknown.
func (m *Method) LineOf(ctx context.Context, index uint64) (int, error) {
	lt, err := m.LineTable(ctx)
	if err != nil {
		if code, ok := remoteCode(err); ok && code == ErrAbsentInformation {
			return -1, nil
		}
		return -1, err
	}
	line := -1
	for _, e := range lt.Lines {
		if e.Index > index {
			break
		}
		line = e.Line
	}
	return line, nil
}

func (m *Method) location(index uint64) Location {
	tag := m.Type.tag
	if tag == 0 {
		tag = TypeTagClass
	}
	return Location{TypeTag: tag, Type: m.Type, MethodID: m.ID, Index: index}
}

// Variable is a local variable or argument from a method's variable table.
// It is live for code indices in [CodeIndex, CodeIndex+Length).
type Variable struct {
	CodeIndex uint64
	Name      string
	Signature string
	Length    int32
	Slot      int32
	Argument  bool
}

func (v *Variable) liveAt(index uint64) bool {
	return index >= v.CodeIndex && index < v.CodeIndex+uint64(v.Length)
}

// Variables returns the method's variable table. Classes compiled without
// debug information fail with ABSENT_INFORMATION.
func (m *Method) Variables(ctx context.Context) ([]*Variable, error) {
	key := fmt.Sprintf("method/%d/vars", m.ID)
	return load(ctx, &m.Type.sf, key, &m.vars, func(ctx context.Context) ([]*Variable, error) {
		var out []*Variable
		err := m.Type.conn.call(ctx, cmdMethodVariableTable,
			func(w *writer) {
				w.refTypeID(m.Type.id)
				w.methodID(m.ID)
			},
			func(r *reader) {
				args := int(r.i32())
				n := r.count()
				for i := 0; i < n && r.err == nil; i++ {
					v := &Variable{}
					v.CodeIndex = uint64(r.i64())
					v.Name = r.str()
					v.Signature = r.str()
					v.Length = r.i32()
					v.Slot = r.i32()
					v.Argument = int(v.Slot) < args
					out = append(out, v)
				}
			})
		return out, err
	})
}

// Location is a code position: a method of a type and a code index within
// it. The zero Location means "no location".
type Location struct {
	TypeTag  TypeTag
	Type     *TypeMirror
	MethodID MethodID
	Index    uint64
}

// IsZero reports whether l is the protocol's null location.
func (l Location) IsZero() bool { return l.Type == nil }

// Method resolves the location's method.
func (l Location) Method(ctx context.Context) (*Method, error) {
	if l.Type == nil {
		return nil, nil
	}
	return l.Type.MethodByID(ctx, l.MethodID)
}

// Line returns the source line of l, or -1 when unknown.
func (l Location) Line(ctx context.Context) (int, error) {
	m, err := l.Method(ctx)
	if err != nil || m == nil {
		return -1, err
	}
	return m.LineOf(ctx, l.Index)
}

func (l Location) String() string {
	if l.Type == nil {
		return "<no location>"
	}
	return fmt.Sprintf("%v:method#%d@%d", l.Type, l.MethodID, l.Index)
}
