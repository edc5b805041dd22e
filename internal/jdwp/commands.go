package jdwp

import "fmt"

// cmdSet is the namespace for a command identifier.
type cmdSet uint8

// cmdID is a command in a command set.
type cmdID uint8

type cmd struct {
	set cmdSet
	id  cmdID
}

func (c cmd) String() string {
	if name, ok := cmdNames[c]; ok {
		return fmt.Sprintf("%v.%v", c.set, name)
	}
	return fmt.Sprintf("%v.%d", c.set, c.id)
}

const (
	cmdSetVirtualMachine       = cmdSet(1)
	cmdSetReferenceType        = cmdSet(2)
	cmdSetClassType            = cmdSet(3)
	cmdSetMethod               = cmdSet(6)
	cmdSetObjectReference      = cmdSet(9)
	cmdSetStringReference      = cmdSet(10)
	cmdSetThreadReference      = cmdSet(11)
	cmdSetThreadGroupReference = cmdSet(12)
	cmdSetArrayReference       = cmdSet(13)
	cmdSetEventRequest         = cmdSet(15)
	cmdSetStackFrame           = cmdSet(16)
	cmdSetClassObjectReference = cmdSet(17)
	cmdSetEvent                = cmdSet(64)
)

var cmdSetNames = map[cmdSet]string{
	cmdSetVirtualMachine:       "VirtualMachine",
	cmdSetReferenceType:        "ReferenceType",
	cmdSetClassType:            "ClassType",
	cmdSetMethod:               "Method",
	cmdSetObjectReference:      "ObjectReference",
	cmdSetStringReference:      "StringReference",
	cmdSetThreadReference:      "ThreadReference",
	cmdSetThreadGroupReference: "ThreadGroupReference",
	cmdSetArrayReference:       "ArrayReference",
	cmdSetEventRequest:         "EventRequest",
	cmdSetStackFrame:           "StackFrame",
	cmdSetClassObjectReference: "ClassObjectReference",
	cmdSetEvent:                "Event",
}

func (c cmdSet) String() string {
	if name, ok := cmdSetNames[c]; ok {
		return name
	}
	return fmt.Sprint(int(c))
}

var (
	cmdVirtualMachineVersion              = cmd{cmdSetVirtualMachine, 1}
	cmdVirtualMachineClassesBySignature   = cmd{cmdSetVirtualMachine, 2}
	cmdVirtualMachineAllClasses           = cmd{cmdSetVirtualMachine, 3}
	cmdVirtualMachineAllThreads           = cmd{cmdSetVirtualMachine, 4}
	cmdVirtualMachineTopLevelThreadGroups = cmd{cmdSetVirtualMachine, 5}
	cmdVirtualMachineDispose              = cmd{cmdSetVirtualMachine, 6}
	cmdVirtualMachineIDSizes              = cmd{cmdSetVirtualMachine, 7}
	cmdVirtualMachineSuspend              = cmd{cmdSetVirtualMachine, 8}
	cmdVirtualMachineResume               = cmd{cmdSetVirtualMachine, 9}
	cmdVirtualMachineExit                 = cmd{cmdSetVirtualMachine, 10}
	cmdVirtualMachineCreateString         = cmd{cmdSetVirtualMachine, 11}
	cmdVirtualMachineCapabilities         = cmd{cmdSetVirtualMachine, 12}

	cmdReferenceTypeSignature   = cmd{cmdSetReferenceType, 1}
	cmdReferenceTypeClassLoader = cmd{cmdSetReferenceType, 2}
	cmdReferenceTypeModifiers   = cmd{cmdSetReferenceType, 3}
	cmdReferenceTypeFields      = cmd{cmdSetReferenceType, 4}
	cmdReferenceTypeMethods     = cmd{cmdSetReferenceType, 5}
	cmdReferenceTypeGetValues   = cmd{cmdSetReferenceType, 6}
	cmdReferenceTypeSourceFile  = cmd{cmdSetReferenceType, 7}
	cmdReferenceTypeStatus      = cmd{cmdSetReferenceType, 9}
	cmdReferenceTypeInterfaces  = cmd{cmdSetReferenceType, 10}
	cmdReferenceTypeClassObject = cmd{cmdSetReferenceType, 11}

	cmdClassTypeSuperclass = cmd{cmdSetClassType, 1}
	cmdClassTypeSetValues  = cmd{cmdSetClassType, 2}

	cmdMethodLineTable     = cmd{cmdSetMethod, 1}
	cmdMethodVariableTable = cmd{cmdSetMethod, 2}

	cmdObjectReferenceReferenceType     = cmd{cmdSetObjectReference, 1}
	cmdObjectReferenceGetValues         = cmd{cmdSetObjectReference, 2}
	cmdObjectReferenceSetValues         = cmd{cmdSetObjectReference, 3}
	cmdObjectReferenceDisableCollection = cmd{cmdSetObjectReference, 7}
	cmdObjectReferenceEnableCollection  = cmd{cmdSetObjectReference, 8}
	cmdObjectReferenceIsCollected       = cmd{cmdSetObjectReference, 9}

	cmdStringReferenceValue = cmd{cmdSetStringReference, 1}

	cmdThreadReferenceName         = cmd{cmdSetThreadReference, 1}
	cmdThreadReferenceSuspend      = cmd{cmdSetThreadReference, 2}
	cmdThreadReferenceResume       = cmd{cmdSetThreadReference, 3}
	cmdThreadReferenceStatus       = cmd{cmdSetThreadReference, 4}
	cmdThreadReferenceThreadGroup  = cmd{cmdSetThreadReference, 5}
	cmdThreadReferenceFrames       = cmd{cmdSetThreadReference, 6}
	cmdThreadReferenceFrameCount   = cmd{cmdSetThreadReference, 7}
	cmdThreadReferenceSuspendCount = cmd{cmdSetThreadReference, 12}

	cmdThreadGroupReferenceName   = cmd{cmdSetThreadGroupReference, 1}
	cmdThreadGroupReferenceParent = cmd{cmdSetThreadGroupReference, 2}

	cmdArrayReferenceLength    = cmd{cmdSetArrayReference, 1}
	cmdArrayReferenceGetValues = cmd{cmdSetArrayReference, 2}
	cmdArrayReferenceSetValues = cmd{cmdSetArrayReference, 3}

	cmdEventRequestSet                 = cmd{cmdSetEventRequest, 1}
	cmdEventRequestClear               = cmd{cmdSetEventRequest, 2}
	cmdEventRequestClearAllBreakpoints = cmd{cmdSetEventRequest, 3}

	cmdStackFrameGetValues  = cmd{cmdSetStackFrame, 1}
	cmdStackFrameSetValues  = cmd{cmdSetStackFrame, 2}
	cmdStackFrameThisObject = cmd{cmdSetStackFrame, 3}

	cmdClassObjectReferenceReflectedType = cmd{cmdSetClassObjectReference, 1}

	cmdEventComposite = cmd{cmdSetEvent, 100}
)

var cmdNames = map[cmd]string{}

func init() {
	register := func(c cmd, n string) {
		if _, e := cmdNames[c]; e {
			panic("command already registered")
		}
		cmdNames[c] = n
	}
	register(cmdVirtualMachineVersion, "Version")
	register(cmdVirtualMachineClassesBySignature, "ClassesBySignature")
	register(cmdVirtualMachineAllClasses, "AllClasses")
	register(cmdVirtualMachineAllThreads, "AllThreads")
	register(cmdVirtualMachineTopLevelThreadGroups, "TopLevelThreadGroups")
	register(cmdVirtualMachineDispose, "Dispose")
	register(cmdVirtualMachineIDSizes, "IDSizes")
	register(cmdVirtualMachineSuspend, "Suspend")
	register(cmdVirtualMachineResume, "Resume")
	register(cmdVirtualMachineExit, "Exit")
	register(cmdVirtualMachineCreateString, "CreateString")
	register(cmdVirtualMachineCapabilities, "Capabilities")

	register(cmdReferenceTypeSignature, "Signature")
	register(cmdReferenceTypeClassLoader, "ClassLoader")
	register(cmdReferenceTypeModifiers, "Modifiers")
	register(cmdReferenceTypeFields, "Fields")
	register(cmdReferenceTypeMethods, "Methods")
	register(cmdReferenceTypeGetValues, "GetValues")
	register(cmdReferenceTypeSourceFile, "SourceFile")
	register(cmdReferenceTypeStatus, "Status")
	register(cmdReferenceTypeInterfaces, "Interfaces")
	register(cmdReferenceTypeClassObject, "ClassObject")

	register(cmdClassTypeSuperclass, "Superclass")
	register(cmdClassTypeSetValues, "SetValues")

	register(cmdMethodLineTable, "LineTable")
	register(cmdMethodVariableTable, "VariableTable")

	register(cmdObjectReferenceReferenceType, "ReferenceType")
	register(cmdObjectReferenceGetValues, "GetValues")
	register(cmdObjectReferenceSetValues, "SetValues")
	register(cmdObjectReferenceDisableCollection, "DisableCollection")
	register(cmdObjectReferenceEnableCollection, "EnableCollection")
	register(cmdObjectReferenceIsCollected, "IsCollected")

	register(cmdStringReferenceValue, "Value")

	register(cmdThreadReferenceName, "Name")
	register(cmdThreadReferenceSuspend, "Suspend")
	register(cmdThreadReferenceResume, "Resume")
	register(cmdThreadReferenceStatus, "Status")
	register(cmdThreadReferenceThreadGroup, "ThreadGroup")
	register(cmdThreadReferenceFrames, "Frames")
	register(cmdThreadReferenceFrameCount, "FrameCount")
	register(cmdThreadReferenceSuspendCount, "SuspendCount")

	register(cmdThreadGroupReferenceName, "Name")
	register(cmdThreadGroupReferenceParent, "Parent")

	register(cmdArrayReferenceLength, "Length")
	register(cmdArrayReferenceGetValues, "GetValues")
	register(cmdArrayReferenceSetValues, "SetValues")

	register(cmdEventRequestSet, "Set")
	register(cmdEventRequestClear, "Clear")
	register(cmdEventRequestClearAllBreakpoints, "ClearAllBreakpoints")

	register(cmdStackFrameGetValues, "GetValues")
	register(cmdStackFrameSetValues, "SetValues")
	register(cmdStackFrameThisObject, "ThisObject")

	register(cmdClassObjectReferenceReflectedType, "ReflectedType")

	register(cmdEventComposite, "Composite")
}
