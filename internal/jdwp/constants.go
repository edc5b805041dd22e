package jdwp

import "fmt"

// Tag identifies the wire layout of a value.
type Tag uint8

const (
	TagArray       = Tag('[')
	TagByte        = Tag('B')
	TagChar        = Tag('C')
	TagObject      = Tag('L')
	TagFloat       = Tag('F')
	TagDouble      = Tag('D')
	TagInt         = Tag('I')
	TagLong        = Tag('J')
	TagShort       = Tag('S')
	TagVoid        = Tag('V')
	TagBoolean     = Tag('Z')
	TagString      = Tag('s')
	TagThread      = Tag('t')
	TagThreadGroup = Tag('g')
	TagClassLoader = Tag('l')
	TagClassObject = Tag('c')
)

// Valid reports whether t is one of the protocol's value tags.
func (t Tag) Valid() bool {
	switch t {
	case TagArray, TagByte, TagChar, TagObject, TagFloat, TagDouble, TagInt, TagLong,
		TagShort, TagVoid, TagBoolean, TagString, TagThread, TagThreadGroup,
		TagClassLoader, TagClassObject:
		return true
	}
	return false
}

// IsObject reports whether values with this tag are object references.
func (t Tag) IsObject() bool {
	switch t {
	case TagArray, TagObject, TagString, TagThread, TagThreadGroup, TagClassLoader, TagClassObject:
		return true
	}
	return false
}

// Size returns the untagged payload width of a primitive tag, or 0 for
// object tags, whose width is the connection's object ID size.
func (t Tag) Size() int {
	switch t {
	case TagByte, TagBoolean:
		return 1
	case TagChar, TagShort:
		return 2
	case TagFloat, TagInt:
		return 4
	case TagDouble, TagLong:
		return 8
	}
	return 0
}

func (t Tag) String() string {
	if t.Valid() {
		return string(rune(t))
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// TypeTag identifies the kind of a reference type.
type TypeTag uint8

const (
	TypeTagClass     = TypeTag(1)
	TypeTagInterface = TypeTag(2)
	TypeTagArray     = TypeTag(3)
)

func (t TypeTag) String() string {
	switch t {
	case TypeTagClass:
		return "Class"
	case TypeTagInterface:
		return "Interface"
	case TypeTagArray:
		return "Array"
	}
	return fmt.Sprintf("TypeTag(%d)", uint8(t))
}

// EventKind identifies the kind of an event and of an event request.
type EventKind uint8

const (
	SingleStep                = EventKind(1)
	Breakpoint                = EventKind(2)
	FramePop                  = EventKind(3)
	Exception                 = EventKind(4)
	UserDefined               = EventKind(5)
	ThreadStart               = EventKind(6)
	ThreadDeath               = EventKind(7)
	ClassPrepare              = EventKind(8)
	ClassUnload               = EventKind(9)
	ClassLoad                 = EventKind(10)
	FieldAccess               = EventKind(20)
	FieldModification         = EventKind(21)
	ExceptionCatch            = EventKind(30)
	MethodEntry               = EventKind(40)
	MethodExit                = EventKind(41)
	MethodExitWithReturnValue = EventKind(42)
	MonitorContendedEnter     = EventKind(43)
	MonitorContendedEntered   = EventKind(44)
	MonitorWait               = EventKind(45)
	MonitorWaited             = EventKind(46)
	VMStart                   = EventKind(90)
	VMDeath                   = EventKind(99)
	VMDisconnected            = EventKind(100)
)

var eventKindNames = map[EventKind]string{
	SingleStep:                "SingleStep",
	Breakpoint:                "Breakpoint",
	FramePop:                  "FramePop",
	Exception:                 "Exception",
	UserDefined:               "UserDefined",
	ThreadStart:               "ThreadStart",
	ThreadDeath:               "ThreadDeath",
	ClassPrepare:              "ClassPrepare",
	ClassUnload:               "ClassUnload",
	ClassLoad:                 "ClassLoad",
	FieldAccess:               "FieldAccess",
	FieldModification:         "FieldModification",
	ExceptionCatch:            "ExceptionCatch",
	MethodEntry:               "MethodEntry",
	MethodExit:                "MethodExit",
	MethodExitWithReturnValue: "MethodExitWithReturnValue",
	MonitorContendedEnter:     "MonitorContendedEnter",
	MonitorContendedEntered:   "MonitorContendedEntered",
	MonitorWait:               "MonitorWait",
	MonitorWaited:             "MonitorWaited",
	VMStart:                   "VMStart",
	VMDeath:                   "VMDeath",
	VMDisconnected:            "VMDisconnected",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// SuspendPolicy describes which threads the target halts when an event fires.
type SuspendPolicy uint8

const (
	SuspendNone        = SuspendPolicy(0)
	SuspendEventThread = SuspendPolicy(1)
	SuspendAll         = SuspendPolicy(2)
)

func (p SuspendPolicy) String() string {
	switch p {
	case SuspendNone:
		return "None"
	case SuspendEventThread:
		return "EventThread"
	case SuspendAll:
		return "All"
	}
	return fmt.Sprintf("SuspendPolicy(%d)", uint8(p))
}

// StepSize is the granularity of a step request.
type StepSize int32

const (
	StepMin  = StepSize(0)
	StepLine = StepSize(1)
)

// StepDepth is the direction of a step request.
type StepDepth int32

const (
	StepInto = StepDepth(0)
	StepOver = StepDepth(1)
	StepOut  = StepDepth(2)
)

func (d StepDepth) String() string {
	switch d {
	case StepInto:
		return "into"
	case StepOver:
		return "over"
	case StepOut:
		return "out"
	}
	return fmt.Sprintf("StepDepth(%d)", int32(d))
}

// ThreadStatus is the execution state reported by ThreadReference.Status.
type ThreadStatus int32

const (
	ThreadZombie   = ThreadStatus(0)
	ThreadRunning  = ThreadStatus(1)
	ThreadSleeping = ThreadStatus(2)
	ThreadMonitor  = ThreadStatus(3)
	ThreadWait     = ThreadStatus(4)
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadZombie:
		return "zombie"
	case ThreadRunning:
		return "running"
	case ThreadSleeping:
		return "sleeping"
	case ThreadMonitor:
		return "monitor"
	case ThreadWait:
		return "wait"
	}
	return fmt.Sprintf("ThreadStatus(%d)", int32(s))
}

// SuspendStatus is a bitmask; bit 0 set means suspended.
type SuspendStatus int32

const suspendStatusSuspended = SuspendStatus(1)

// ClassStatus is a bitmask of class preparation states.
type ClassStatus int32

const (
	StatusVerified    = ClassStatus(1)
	StatusPrepared    = ClassStatus(2)
	StatusInitialized = ClassStatus(4)
	StatusError       = ClassStatus(8)
)

// ErrorCode is an error reported in a reply header.
type ErrorCode uint16

var errorCodeNames = map[ErrorCode]string{
	0:   "NONE",
	10:  "INVALID_THREAD",
	11:  "INVALID_THREAD_GROUP",
	12:  "INVALID_PRIORITY",
	13:  "THREAD_NOT_SUSPENDED",
	14:  "THREAD_SUSPENDED",
	15:  "THREAD_NOT_ALIVE",
	20:  "INVALID_OBJECT",
	21:  "INVALID_CLASS",
	22:  "CLASS_NOT_PREPARED",
	23:  "INVALID_METHODID",
	24:  "INVALID_LOCATION",
	25:  "INVALID_FIELDID",
	30:  "INVALID_FRAMEID",
	31:  "NO_MORE_FRAMES",
	32:  "OPAQUE_FRAME",
	33:  "NOT_CURRENT_FRAME",
	34:  "TYPE_MISMATCH",
	35:  "INVALID_SLOT",
	40:  "DUPLICATE",
	41:  "NOT_FOUND",
	50:  "INVALID_MONITOR",
	51:  "NOT_MONITOR_OWNER",
	52:  "INTERRUPT",
	60:  "INVALID_CLASS_FORMAT",
	61:  "CIRCULAR_CLASS_DEFINITION",
	62:  "FAILS_VERIFICATION",
	63:  "ADD_METHOD_NOT_IMPLEMENTED",
	64:  "SCHEMA_CHANGE_NOT_IMPLEMENTED",
	65:  "INVALID_TYPESTATE",
	66:  "HIERARCHY_CHANGE_NOT_IMPLEMENTED",
	67:  "DELETE_METHOD_NOT_IMPLEMENTED",
	68:  "UNSUPPORTED_VERSION",
	69:  "NAMES_DONT_MATCH",
	70:  "CLASS_MODIFIERS_CHANGE_NOT_IMPLEMENTED",
	71:  "METHOD_MODIFIERS_CHANGE_NOT_IMPLEMENTED",
	99:  "NOT_IMPLEMENTED",
	100: "NULL_POINTER",
	101: "ABSENT_INFORMATION",
	102: "INVALID_EVENT_TYPE",
	103: "ILLEGAL_ARGUMENT",
	110: "OUT_OF_MEMORY",
	111: "ACCESS_DENIED",
	112: "VM_DEAD",
	113: "INTERNAL",
	115: "UNATTACHED_THREAD",
	500: "INVALID_TAG",
	502: "ALREADY_INVOKING",
	503: "INVALID_INDEX",
	504: "INVALID_LENGTH",
	506: "INVALID_STRING",
	507: "INVALID_CLASS_LOADER",
	508: "INVALID_ARRAY",
	509: "TRANSPORT_LOAD",
	510: "TRANSPORT_INIT",
	511: "NATIVE_METHOD",
	512: "INVALID_COUNT",
}

const (
	ErrNone               = ErrorCode(0)
	ErrInvalidThread      = ErrorCode(10)
	ErrThreadNotSuspended = ErrorCode(13)
	ErrInvalidObject      = ErrorCode(20)
	ErrInvalidClass       = ErrorCode(21)
	ErrInvalidSlot        = ErrorCode(35)
	ErrNotFound           = ErrorCode(41)
	ErrNotImplemented     = ErrorCode(99)
	ErrAbsentInformation  = ErrorCode(101)
	ErrVMDead             = ErrorCode(112)
)

func (e ErrorCode) String() string {
	if name, ok := errorCodeNames[e]; ok {
		return name
	}
	return fmt.Sprintf("ERROR_%d", uint16(e))
}

// IDSizes holds the widths, in bytes, of the variable-sized identifiers.
type IDSizes struct {
	FieldIDSize         int
	MethodIDSize        int
	ObjectIDSize        int
	ReferenceTypeIDSize int
	FrameIDSize         int
}

func (s IDSizes) valid() bool {
	for _, n := range []int{s.FieldIDSize, s.MethodIDSize, s.ObjectIDSize, s.ReferenceTypeIDSize, s.FrameIDSize} {
		if n < 1 || n > 8 {
			return false
		}
	}
	return true
}

// DefaultIDSizes are the widths used by HotSpot on 64-bit platforms.
var DefaultIDSizes = IDSizes{8, 8, 8, 8, 8}

// Identifier types. Their wire width comes from IDSizes.
type (
	ObjectID        uint64
	ReferenceTypeID uint64
	MethodID        uint64
	FieldID         uint64
	FrameID         uint64
	RequestID       uint32
)
