package jdwp

import (
	"context"
	stderrors "errors"

	"github.com/ctagard/jdwp-mcp/internal/errors"
)

// Version describes the target VM and its protocol version.
type Version struct {
	Description string
	JDWPMajor   int
	JDWPMinor   int
	VMVersion   string
	VMName      string
}

func (c *Conn) Version(ctx context.Context) (*Version, error) {
	v := &Version{}
	err := c.call(ctx, cmdVirtualMachineVersion, nil, func(r *reader) {
		v.Description = r.str()
		v.JDWPMajor = int(r.i32())
		v.JDWPMinor = int(r.i32())
		v.VMVersion = r.str()
		v.VMName = r.str()
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ClassInfo is one entry of AllClasses.
type ClassInfo struct {
	Type      *TypeMirror
	Signature string
	Status    ClassStatus
}

// AllClasses returns every reference type currently loaded by the target.
func (c *Conn) AllClasses(ctx context.Context) ([]ClassInfo, error) {
	var out []ClassInfo
	err := c.call(ctx, cmdVirtualMachineAllClasses, nil, func(r *reader) {
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			var ci ClassInfo
			ci.Type = r.typeRef()
			ci.Signature = r.str()
			ci.Status = ClassStatus(r.i32())
			if r.err == nil {
				c.cache.noteSignature(ci.Type, ci.Signature)
				out = append(out, ci)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClassesBySignature returns the loaded types with the given JNI signature.
// More than one class loader may define the same name.
func (c *Conn) ClassesBySignature(ctx context.Context, sig string) ([]*TypeMirror, error) {
	var out []*TypeMirror
	err := c.call(ctx, cmdVirtualMachineClassesBySignature,
		func(w *writer) { w.str(sig) },
		func(r *reader) {
			n := r.count()
			for i := 0; i < n && r.err == nil; i++ {
				t := r.typeRef()
				r.i32() // status
				if r.err == nil {
					c.cache.noteSignature(t, sig)
					out = append(out, t)
				}
			}
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClassesByName is ClassesBySignature for a Java class name.
func (c *Conn) ClassesByName(ctx context.Context, name string) ([]*TypeMirror, error) {
	return c.ClassesBySignature(ctx, NameToSignature(name))
}

func (c *Conn) AllThreads(ctx context.Context) ([]*ThreadMirror, error) {
	var out []*ThreadMirror
	err := c.call(ctx, cmdVirtualMachineAllThreads, nil, func(r *reader) {
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			if t := r.thread(); t != nil {
				out = append(out, t)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Conn) TopLevelThreadGroups(ctx context.Context) ([]*ThreadGroupMirror, error) {
	var out []*ThreadGroupMirror
	err := c.call(ctx, cmdVirtualMachineTopLevelThreadGroups, nil, func(r *reader) {
		n := r.count()
		for i := 0; i < n && r.err == nil; i++ {
			if id := r.objectID(); r.err == nil && id != 0 {
				out = append(out, c.cache.Resolve(KindThreadGroup, uint64(id)).(*ThreadGroupMirror))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Suspend suspends every thread in the target.
func (c *Conn) Suspend(ctx context.Context) error {
	if err := c.call(ctx, cmdVirtualMachineSuspend, nil, nil); err != nil {
		return err
	}
	c.vmSuspended.Store(true)
	for _, t := range c.cache.threads() {
		t.suspended.Store(true)
	}
	return nil
}

// Resume resumes every thread in the target.
func (c *Conn) Resume(ctx context.Context) error {
	if err := c.call(ctx, cmdVirtualMachineResume, nil, nil); err != nil {
		return err
	}
	c.vmSuspended.Store(false)
	for _, t := range c.cache.threads() {
		t.suspended.Store(false)
	}
	return nil
}

// Suspended reports whether the client believes the whole VM is suspended:
// set by Suspend and suspend-all events, cleared by Resume. Resuming single
// threads does not clear it.
func (c *Conn) Suspended() bool { return c.vmSuspended.Load() }

// Dispose detaches from the target, which keeps running, and closes the
// connection.
func (c *Conn) Dispose(ctx context.Context) error {
	err := c.call(ctx, cmdVirtualMachineDispose, nil, nil)
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	return err
}

// Exit terminates the target with the given exit code and closes the
// connection. The target may drop the connection before replying; that is
// not an error.
func (c *Conn) Exit(ctx context.Context, code int) error {
	err := c.call(ctx, cmdVirtualMachineExit, func(w *writer) { w.i32(int32(code)) }, nil)
	if stderrors.Is(err, errors.ErrDisconnected) {
		err = nil
	}
	c.Close()
	return err
}

// CreateString creates a string in the target.
func (c *Conn) CreateString(ctx context.Context, s string) (*StringMirror, error) {
	var sm *StringMirror
	err := c.call(ctx, cmdVirtualMachineCreateString,
		func(w *writer) { w.str(s) },
		func(r *reader) {
			if id := r.objectID(); r.err == nil && id != 0 {
				sm = c.cache.Resolve(KindString, uint64(id)).(*StringMirror)
			}
		})
	if err != nil {
		return nil, err
	}
	if sm == nil {
		return nil, errors.ProtocolError("CreateString returned a null reference")
	}
	sm.value.set(s)
	return sm, nil
}

// Capabilities lists optional features the target supports.
type Capabilities struct {
	CanWatchFieldModification     bool
	CanWatchFieldAccess           bool
	CanGetBytecodes               bool
	CanGetSyntheticAttribute      bool
	CanGetOwnedMonitorInfo        bool
	CanGetCurrentContendedMonitor bool
	CanGetMonitorInfo             bool
}

func (c *Conn) Capabilities(ctx context.Context) (*Capabilities, error) {
	caps := &Capabilities{}
	err := c.call(ctx, cmdVirtualMachineCapabilities, nil, func(r *reader) {
		caps.CanWatchFieldModification = r.boolean()
		caps.CanWatchFieldAccess = r.boolean()
		caps.CanGetBytecodes = r.boolean()
		caps.CanGetSyntheticAttribute = r.boolean()
		caps.CanGetOwnedMonitorInfo = r.boolean()
		caps.CanGetCurrentContendedMonitor = r.boolean()
		caps.CanGetMonitorInfo = r.boolean()
	})
	if err != nil {
		return nil, err
	}
	return caps, nil
}
