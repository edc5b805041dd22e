package jdwp

import (
	"fmt"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

// EventSet is one composite event packet: the events the target reported
// together and the suspend policy it applied.
type EventSet struct {
	SuspendPolicy SuspendPolicy
	Events        []Event
}

func (s *EventSet) String() string {
	return fmt.Sprintf("EventSet{policy: %v, events: %v}", s.SuspendPolicy, s.Events)
}

// Event is the interface implemented by all events raised by the VM.
type Event interface {
	Kind() EventKind
	// RequestID is the ID the target assigned to the originating request,
	// or 0 for automatically generated events.
	RequestID() RequestID
	// Request is the originating request, or nil when it is unknown.
	Request() *EventRequest
	base() *eventBase
}

type eventBase struct {
	requestID RequestID
	request   *EventRequest
}

func (e *eventBase) RequestID() RequestID   { return e.requestID }
func (e *eventBase) Request() *EventRequest { return e.request }
func (e *eventBase) base() *eventBase       { return e }

// threadEvent is embedded by events that occur on a thread.
type threadEvent struct {
	Thread *ThreadMirror
}

func (e *threadEvent) eventThread() *ThreadMirror { return e.Thread }

// EventThread returns the thread an event occurred on, or nil.
func EventThread(e Event) *ThreadMirror {
	if te, ok := e.(interface{ eventThread() *ThreadMirror }); ok {
		return te.eventThread()
	}
	return nil
}

// EventLocation returns the code location of an event, or the zero Location.
func EventLocation(e Event) Location {
	switch e := e.(type) {
	case *SingleStepEvent:
		return e.Location
	case *BreakpointEvent:
		return e.Location
	case *ExceptionEvent:
		return e.Location
	case *MethodEntryEvent:
		return e.Location
	case *MethodExitEvent:
		return e.Location
	case *MethodExitWithReturnValueEvent:
		return e.Location
	case *FieldAccessEvent:
		return e.Location
	case *FieldModificationEvent:
		return e.Location
	case *MonitorContendedEnterEvent:
		return e.Location
	case *MonitorContendedEnteredEvent:
		return e.Location
	case *MonitorWaitEvent:
		return e.Location
	case *MonitorWaitedEvent:
		return e.Location
	}
	return Location{}
}

// SingleStepEvent is raised when a step request completes.
type SingleStepEvent struct {
	eventBase
	threadEvent
	Location Location
}

// BreakpointEvent is raised when a breakpoint is hit.
type BreakpointEvent struct {
	eventBase
	threadEvent
	Location Location
}

// ExceptionEvent is raised when an exception is thrown. CatchLocation is
// zero when the exception is not caught.
type ExceptionEvent struct {
	eventBase
	threadEvent
	Location      Location
	Exception     Value
	CatchLocation Location
}

// ThreadStartEvent is raised when a thread starts.
type ThreadStartEvent struct {
	eventBase
	threadEvent
}

// ThreadDeathEvent is raised when a thread ends.
type ThreadDeathEvent struct {
	eventBase
	threadEvent
}

// ClassPrepareEvent is raised when a class is prepared.
type ClassPrepareEvent struct {
	eventBase
	threadEvent
	Type      *TypeMirror
	Signature string
	Status    ClassStatus
}

// ClassUnloadEvent is raised when a class is unloaded.
type ClassUnloadEvent struct {
	eventBase
	Signature string
}

// FieldAccessEvent is raised when a watched field is read. Object is
// NullValue for static fields.
type FieldAccessEvent struct {
	eventBase
	threadEvent
	Location Location
	Type     *TypeMirror
	Field    FieldID
	Object   Value
}

// FieldModificationEvent is raised when a watched field is written.
type FieldModificationEvent struct {
	eventBase
	threadEvent
	Location Location
	Type     *TypeMirror
	Field    FieldID
	Object   Value
	NewValue Value
}

// MethodEntryEvent is raised when a method is entered.
type MethodEntryEvent struct {
	eventBase
	threadEvent
	Location Location
}

// MethodExitEvent is raised when a method returns.
type MethodExitEvent struct {
	eventBase
	threadEvent
	Location Location
}

// MethodExitWithReturnValueEvent is raised when a method returns, with the
// value it returned.
type MethodExitWithReturnValueEvent struct {
	eventBase
	threadEvent
	Location    Location
	ReturnValue Value
}

// MonitorContendedEnterEvent is raised when a thread blocks entering a
// monitor held by another thread.
type MonitorContendedEnterEvent struct {
	eventBase
	threadEvent
	Monitor  Value
	Location Location
}

// MonitorContendedEnteredEvent is raised when a thread enters a monitor
// after waiting for it.
type MonitorContendedEnteredEvent struct {
	eventBase
	threadEvent
	Monitor  Value
	Location Location
}

// MonitorWaitEvent is raised when a thread is about to wait on a monitor.
type MonitorWaitEvent struct {
	eventBase
	threadEvent
	Monitor  Value
	Location Location
	Timeout  int64
}

// MonitorWaitedEvent is raised when a thread finishes waiting on a monitor.
type MonitorWaitedEvent struct {
	eventBase
	threadEvent
	Monitor  Value
	Location Location
	TimedOut bool
}

// VMStartEvent is raised when the target VM has initialized.
type VMStartEvent struct {
	eventBase
	threadEvent
}

// VMDeathEvent is raised when the target VM is about to exit.
type VMDeathEvent struct {
	eventBase
}

// VMDisconnectedEvent is generated locally, once, when the connection is
// lost or closed. Cause is nil after a client-initiated Close.
type VMDisconnectedEvent struct {
	eventBase
	Cause error
}

func (*SingleStepEvent) Kind() EventKind                { return SingleStep }
func (*BreakpointEvent) Kind() EventKind                { return Breakpoint }
func (*ExceptionEvent) Kind() EventKind                 { return Exception }
func (*ThreadStartEvent) Kind() EventKind               { return ThreadStart }
func (*ThreadDeathEvent) Kind() EventKind               { return ThreadDeath }
func (*ClassPrepareEvent) Kind() EventKind              { return ClassPrepare }
func (*ClassUnloadEvent) Kind() EventKind               { return ClassUnload }
func (*FieldAccessEvent) Kind() EventKind               { return FieldAccess }
func (*FieldModificationEvent) Kind() EventKind         { return FieldModification }
func (*MethodEntryEvent) Kind() EventKind               { return MethodEntry }
func (*MethodExitEvent) Kind() EventKind                { return MethodExit }
func (*MethodExitWithReturnValueEvent) Kind() EventKind { return MethodExitWithReturnValue }
func (*MonitorContendedEnterEvent) Kind() EventKind     { return MonitorContendedEnter }
func (*MonitorContendedEnteredEvent) Kind() EventKind   { return MonitorContendedEntered }
func (*MonitorWaitEvent) Kind() EventKind               { return MonitorWait }
func (*MonitorWaitedEvent) Kind() EventKind             { return MonitorWaited }
func (*VMStartEvent) Kind() EventKind                   { return VMStart }
func (*VMDeathEvent) Kind() EventKind                   { return VMDeath }
func (*VMDisconnectedEvent) Kind() EventKind            { return VMDisconnected }

// decodeEvents parses the payload of an Event.Composite command.
func decodeEvents(r *reader) (*EventSet, error) {
	set := &EventSet{SuspendPolicy: SuspendPolicy(r.u8())}
	if r.err == nil && set.SuspendPolicy > SuspendAll {
		return nil, errors.ProtocolError("unknown suspend policy %d", uint8(set.SuspendPolicy))
	}
	n := r.count()
	for i := 0; i < n && r.err == nil; i++ {
		kind := EventKind(r.u8())
		b := eventBase{requestID: RequestID(r.i32())}
		if r.err != nil {
			break
		}
		var ev Event
		switch kind {
		case SingleStep:
			e := &SingleStepEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			ev = e
		case Breakpoint:
			e := &BreakpointEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			ev = e
		case Exception:
			e := &ExceptionEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			e.Exception = r.taggedObject()
			e.CatchLocation = r.location()
			ev = e
		case ThreadStart:
			e := &ThreadStartEvent{eventBase: b}
			e.Thread = r.thread()
			ev = e
		case ThreadDeath:
			e := &ThreadDeathEvent{eventBase: b}
			e.Thread = r.thread()
			ev = e
		case ClassPrepare:
			e := &ClassPrepareEvent{eventBase: b}
			e.Thread = r.thread()
			e.Type = r.typeRef()
			e.Signature = r.str()
			e.Status = ClassStatus(r.i32())
			if r.err == nil {
				r.conn.cache.noteSignature(e.Type, e.Signature)
			}
			ev = e
		case ClassUnload:
			e := &ClassUnloadEvent{eventBase: b}
			e.Signature = r.str()
			ev = e
		case FieldAccess:
			e := &FieldAccessEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			e.Type = r.typeRef()
			e.Field = r.fieldID()
			e.Object = r.taggedObject()
			ev = e
		case FieldModification:
			e := &FieldModificationEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			e.Type = r.typeRef()
			e.Field = r.fieldID()
			e.Object = r.taggedObject()
			e.NewValue = r.value()
			ev = e
		case MethodEntry:
			e := &MethodEntryEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			ev = e
		case MethodExit:
			e := &MethodExitEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			ev = e
		case MethodExitWithReturnValue:
			e := &MethodExitWithReturnValueEvent{eventBase: b}
			e.Thread = r.thread()
			e.Location = r.location()
			e.ReturnValue = r.value()
			ev = e
		case MonitorContendedEnter:
			e := &MonitorContendedEnterEvent{eventBase: b}
			e.Thread = r.thread()
			e.Monitor = r.taggedObject()
			e.Location = r.location()
			ev = e
		case MonitorContendedEntered:
			e := &MonitorContendedEnteredEvent{eventBase: b}
			e.Thread = r.thread()
			e.Monitor = r.taggedObject()
			e.Location = r.location()
			ev = e
		case MonitorWait:
			e := &MonitorWaitEvent{eventBase: b}
			e.Thread = r.thread()
			e.Monitor = r.taggedObject()
			e.Location = r.location()
			e.Timeout = r.i64()
			ev = e
		case MonitorWaited:
			e := &MonitorWaitedEvent{eventBase: b}
			e.Thread = r.thread()
			e.Monitor = r.taggedObject()
			e.Location = r.location()
			e.TimedOut = r.boolean()
			ev = e
		case VMStart:
			e := &VMStartEvent{eventBase: b}
			e.Thread = r.thread()
			ev = e
		case VMDeath:
			ev = &VMDeathEvent{eventBase: b}
		default:
			return nil, errors.ProtocolError("unsupported event kind %v in composite event", kind)
		}
		set.Events = append(set.Events, ev)
	}
	if r.err != nil {
		return nil, r.err
	}
	return set, nil
}
