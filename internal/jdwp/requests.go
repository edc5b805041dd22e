package jdwp

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
)

// ErrRequestDeleted is returned when enabling a deleted event request.
var ErrRequestDeleted = stderrors.New("jdwp: event request was deleted")

// Modifier narrows the events an event request reports.
type Modifier interface {
	modKind() uint8
	write(w *writer)
}

type (
	// CountModifier reports only the nth occurrence, after which the
	// request expires.
	CountModifier int32
	// ConditionalModifier is reserved by the protocol.
	ConditionalModifier int32
	// ThreadOnlyModifier restricts events to one thread.
	ThreadOnlyModifier struct{ Thread *ThreadMirror }
	// ClassOnlyModifier restricts events to a type and its subtypes.
	ClassOnlyModifier struct{ Type *TypeMirror }
	// ClassMatchModifier restricts events to classes whose name matches a
	// pattern such as "com.example.*".
	ClassMatchModifier string
	// ClassExcludeModifier excludes classes whose name matches a pattern.
	ClassExcludeModifier string
	// LocationOnlyModifier restricts events to one code location.
	LocationOnlyModifier struct{ Location Location }
	// ExceptionOnlyModifier restricts exception events by type (nil for
	// any) and by whether they are caught.
	ExceptionOnlyModifier struct {
		Type     *TypeMirror
		Caught   bool
		Uncaught bool
	}
	// FieldOnlyModifier restricts watchpoint events to one field.
	FieldOnlyModifier struct {
		Type  *TypeMirror
		Field FieldID
	}
	// StepModifier describes a single-step request.
	StepModifier struct {
		Thread *ThreadMirror
		Size   StepSize
		Depth  StepDepth
	}
	// InstanceOnlyModifier restricts events to those whose "this" is the
	// given object.
	InstanceOnlyModifier struct{ Object ObjectID }
	// SourceNameMatchModifier restricts class-prepare events to classes
	// whose source name matches a pattern.
	SourceNameMatchModifier string
)

func (CountModifier) modKind() uint8           { return 1 }
func (ConditionalModifier) modKind() uint8     { return 2 }
func (ThreadOnlyModifier) modKind() uint8      { return 3 }
func (ClassOnlyModifier) modKind() uint8       { return 4 }
func (ClassMatchModifier) modKind() uint8      { return 5 }
func (ClassExcludeModifier) modKind() uint8    { return 6 }
func (LocationOnlyModifier) modKind() uint8    { return 7 }
func (ExceptionOnlyModifier) modKind() uint8   { return 8 }
func (FieldOnlyModifier) modKind() uint8       { return 9 }
func (StepModifier) modKind() uint8            { return 10 }
func (InstanceOnlyModifier) modKind() uint8    { return 11 }
func (SourceNameMatchModifier) modKind() uint8 { return 12 }

func (m CountModifier) write(w *writer)        { w.i32(int32(m)) }
func (m ConditionalModifier) write(w *writer)  { w.i32(int32(m)) }
func (m ThreadOnlyModifier) write(w *writer)   { w.objectID(m.Thread.id) }
func (m ClassOnlyModifier) write(w *writer)    { w.refTypeID(m.Type.id) }
func (m ClassMatchModifier) write(w *writer)   { w.str(string(m)) }
func (m ClassExcludeModifier) write(w *writer) { w.str(string(m)) }
func (m LocationOnlyModifier) write(w *writer) { w.location(m.Location) }

func (m ExceptionOnlyModifier) write(w *writer) {
	var id ReferenceTypeID
	if m.Type != nil {
		id = m.Type.id
	}
	w.refTypeID(id)
	w.boolean(m.Caught)
	w.boolean(m.Uncaught)
}

func (m FieldOnlyModifier) write(w *writer) {
	w.refTypeID(m.Type.id)
	w.fieldID(m.Field)
}

func (m StepModifier) write(w *writer) {
	w.objectID(m.Thread.id)
	w.i32(int32(m.Size))
	w.i32(int32(m.Depth))
}

func (m InstanceOnlyModifier) write(w *writer)    { w.objectID(m.Object) }
func (m SourceNameMatchModifier) write(w *writer) { w.str(string(m)) }

// EventRequest describes a set of events the client wants reported. It is
// inert until enabled; the target assigns its ID on each enable.
type EventRequest struct {
	Kind          EventKind
	SuspendPolicy SuspendPolicy
	Modifiers     []Modifier

	mu      sync.Mutex
	id      RequestID
	enabled bool
	deleted bool
}

// ID returns the target-assigned ID, or 0 when the request is not enabled.
func (r *EventRequest) ID() RequestID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

func (r *EventRequest) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *EventRequest) Deleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleted
}

func (r *EventRequest) String() string {
	return fmt.Sprintf("EventRequest{kind: %v, policy: %v, id: %d}", r.Kind, r.SuspendPolicy, r.ID())
}

// RequestManager tracks the event requests of one connection and maps
// target-assigned IDs back to them.
type RequestManager struct {
	conn *Conn

	mu   sync.RWMutex
	byID map[RequestID]*EventRequest
	all  map[*EventRequest]struct{}
}

func newRequestManager(c *Conn) *RequestManager {
	return &RequestManager{
		conn: c,
		byID: make(map[RequestID]*EventRequest),
		all:  make(map[*EventRequest]struct{}),
	}
}

// CreateRequest builds a request descriptor. Nothing is sent to the target.
func (m *RequestManager) CreateRequest(kind EventKind, policy SuspendPolicy, mods ...Modifier) *EventRequest {
	r := &EventRequest{Kind: kind, SuspendPolicy: policy, Modifiers: mods}
	m.mu.Lock()
	m.all[r] = struct{}{}
	m.mu.Unlock()
	return r
}

// Enable installs r in the target. Enabling an enabled request is a no-op.
func (m *RequestManager) Enable(ctx context.Context, r *EventRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return ErrRequestDeleted
	}
	if r.enabled {
		return nil
	}
	var id RequestID
	err := m.conn.call(ctx, cmdEventRequestSet,
		func(w *writer) {
			w.u8(uint8(r.Kind))
			w.u8(uint8(r.SuspendPolicy))
			w.i32(int32(len(r.Modifiers)))
			for _, mod := range r.Modifiers {
				w.u8(mod.modKind())
				mod.write(w)
			}
		},
		func(rd *reader) { id = RequestID(rd.i32()) })
	if err != nil {
		return err
	}
	r.id, r.enabled = id, true
	m.mu.Lock()
	m.byID[id] = r
	m.mu.Unlock()
	m.conn.log.WithField("request", id).Debugf("enabled %v request", r.Kind)
	return nil
}

// Disable removes r from the target. Disabling a disabled request is a
// no-op; a request the target already expired is treated as disabled.
func (m *RequestManager) Disable(ctx context.Context, r *EventRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m.disableLocked(ctx, r)
}

func (m *RequestManager) disableLocked(ctx context.Context, r *EventRequest) error {
	if !r.enabled {
		return nil
	}
	err := m.conn.call(ctx, cmdEventRequestClear,
		func(w *writer) {
			w.u8(uint8(r.Kind))
			w.i32(int32(r.id))
		}, nil)
	if err != nil && !IsRemote(err, ErrNotFound) {
		return err
	}
	m.mu.Lock()
	if m.byID[r.id] == r {
		delete(m.byID, r.id)
	}
	m.mu.Unlock()
	r.id, r.enabled = 0, false
	return nil
}

// Delete disables r if needed and discards it. Deleting an unknown or
// already deleted request is a no-op.
func (m *RequestManager) Delete(ctx context.Context, r *EventRequest) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil
	}
	if err := m.disableLocked(ctx, r); err != nil {
		return err
	}
	r.deleted = true
	m.mu.Lock()
	delete(m.all, r)
	m.mu.Unlock()
	return nil
}

// Lookup returns the enabled request with the given target ID, or nil.
func (m *RequestManager) Lookup(id RequestID) *EventRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byID[id]
}

// Requests returns the live (not deleted) requests of the given kind.
func (m *RequestManager) Requests(kind EventKind) []*EventRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*EventRequest
	for r := range m.all {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// ClearAllBreakpoints removes every breakpoint from the target and deletes
// the local breakpoint requests.
func (m *RequestManager) ClearAllBreakpoints(ctx context.Context) error {
	if err := m.conn.call(ctx, cmdEventRequestClearAllBreakpoints, nil, nil); err != nil {
		return err
	}
	for _, r := range m.Requests(Breakpoint) {
		r.mu.Lock()
		m.mu.Lock()
		if r.enabled && m.byID[r.id] == r {
			delete(m.byID, r.id)
		}
		delete(m.all, r)
		m.mu.Unlock()
		r.id, r.enabled, r.deleted = 0, false, true
		r.mu.Unlock()
	}
	return nil
}

// create builds and enables a request in one step.
func (m *RequestManager) create(ctx context.Context, kind EventKind, policy SuspendPolicy, mods ...Modifier) (*EventRequest, error) {
	r := m.CreateRequest(kind, policy, mods...)
	if err := m.Enable(ctx, r); err != nil {
		m.mu.Lock()
		delete(m.all, r)
		m.mu.Unlock()
		return nil, err
	}
	return r, nil
}

// SetBreakpoint enables a breakpoint at loc. Extra filters, such as a class
// or thread restriction, follow the location modifier on the wire.
func (m *RequestManager) SetBreakpoint(ctx context.Context, loc Location, policy SuspendPolicy, filters ...Modifier) (*EventRequest, error) {
	mods := append([]Modifier{LocationOnlyModifier{Location: loc}}, filters...)
	return m.create(ctx, Breakpoint, policy, mods...)
}

// StepRequest enables a single step on thread. The count filter expires the
// request in the target after the first step; callers still Delete it.
func (m *RequestManager) StepRequest(ctx context.Context, thread *ThreadMirror, size StepSize, depth StepDepth, policy SuspendPolicy) (*EventRequest, error) {
	return m.create(ctx, SingleStep, policy,
		StepModifier{Thread: thread, Size: size, Depth: depth},
		CountModifier(1))
}

// ClassPrepareRequest reports classes whose name matches pattern as they are
// prepared.
func (m *RequestManager) ClassPrepareRequest(ctx context.Context, pattern string, policy SuspendPolicy) (*EventRequest, error) {
	return m.create(ctx, ClassPrepare, policy, ClassMatchModifier(pattern))
}

// ExceptionRequest reports thrown exceptions of typ, or of any type when typ
// is nil.
func (m *RequestManager) ExceptionRequest(ctx context.Context, typ *TypeMirror, caught, uncaught bool, policy SuspendPolicy) (*EventRequest, error) {
	return m.create(ctx, Exception, policy, ExceptionOnlyModifier{Type: typ, Caught: caught, Uncaught: uncaught})
}

// WatchField reports reads (FieldAccess) or writes (FieldModification) of a
// field.
func (m *RequestManager) WatchField(ctx context.Context, kind EventKind, f *Field, policy SuspendPolicy) (*EventRequest, error) {
	if kind != FieldAccess && kind != FieldModification {
		return nil, fmt.Errorf("watch kind must be FieldAccess or FieldModification, got %v", kind)
	}
	return m.create(ctx, kind, policy, FieldOnlyModifier{Type: f.Type, Field: f.ID})
}
