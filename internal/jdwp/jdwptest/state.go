package jdwptest

import (
	"sort"
	"sync"
)

const (
	errInvalidObject       uint16 = 20
	errInvalidFrameID      uint16 = 30
	errInvalidClass        uint16 = 21
	errInvalidMethodID     uint16 = 23
	errAbsentInformation   uint16 = 101
	threadStatusRunning    int32  = 1
	suspendStatusSuspended int32  = 1
)

// Class is a loaded class the agent describes.
type Class struct {
	ID        uint64
	Signature string
	Source    string
	Methods   []Method
}

// Method is a declared method with its line and variable tables.
type Method struct {
	ID        uint64
	Name      string
	Signature string
	Modifiers int32
	Lines     []Line
	ArgSlots  int32
	Vars      []Var
}

// Line maps a code index to a source line.
type Line struct {
	Index uint64
	Line  int32
}

// Var is a variable table entry.
type Var struct {
	Index     uint64
	Name      string
	Signature string
	Length    int32
	Slot      int32
}

// Thread is a live thread and its stack, innermost frame first.
type Thread struct {
	ID     uint64
	Name   string
	Status int32
	Frames []Frame
}

// Frame is one stack frame. Locals maps slots to values.
type Frame struct {
	ID     uint64
	Class  uint64
	Method uint64
	Index  uint64
	This   Value
	Locals map[int32]Value
}

// Loc is a code location named by a request.
type Loc struct {
	Class  uint64
	Method uint64
	Index  uint64
}

// Request is an event request the client installed.
type Request struct {
	ID     int32
	Kind   uint8
	Policy uint8

	Count      int32
	ClassMatch string
	Location   *Loc
	Thread     uint64
	StepSize   int32
	StepDepth  int32
}

type agentState struct {
	mu         sync.Mutex
	classes    map[uint64]*Class
	threads    []*Thread
	strings    map[uint64]string
	objects    map[uint64]uint64
	requests   map[int32]*Request
	nextString uint64
	resumes    int
	suspends   int
	disposed   bool
	exitCode   *int32
}

func (s *agentState) init() {
	s.classes = make(map[uint64]*Class)
	s.strings = make(map[uint64]string)
	s.objects = make(map[uint64]uint64)
	s.requests = make(map[int32]*Request)
	s.nextString = 5000
}

// AddClass makes c visible to class queries.
func (a *Agent) AddClass(c Class) *Agent {
	a.state.mu.Lock()
	a.state.classes[c.ID] = &c
	a.state.mu.Unlock()
	return a
}

// AddThread makes t visible to thread queries.
func (a *Agent) AddThread(t Thread) *Agent {
	a.state.mu.Lock()
	a.state.threads = append(a.state.threads, &t)
	a.state.mu.Unlock()
	return a
}

// AddString registers a java.lang.String instance.
func (a *Agent) AddString(id uint64, s string) *Agent {
	a.state.mu.Lock()
	a.state.strings[id] = s
	a.state.mu.Unlock()
	return a
}

// AddObject registers an object instance of the given class.
func (a *Agent) AddObject(id, class uint64) *Agent {
	a.state.mu.Lock()
	a.state.objects[id] = class
	a.state.mu.Unlock()
	return a
}

// Requests returns the installed event requests ordered by ID.
func (a *Agent) Requests() []Request {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	out := make([]Request, 0, len(a.state.requests))
	for _, r := range a.state.requests {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RequestsOf returns the installed requests of one event kind.
func (a *Agent) RequestsOf(kind uint8) []Request {
	var out []Request
	for _, r := range a.Requests() {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

// Resumes returns how many VirtualMachine.Resume commands were received.
func (a *Agent) Resumes() int {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	return a.state.resumes
}

// Disposed reports whether the client sent VirtualMachine.Dispose.
func (a *Agent) Disposed() bool {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	return a.state.disposed
}

// ExitCode returns the code of a VirtualMachine.Exit command, if any.
func (a *Agent) ExitCode() (int32, bool) {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	if a.state.exitCode == nil {
		return 0, false
	}
	return *a.state.exitCode, true
}

// Local returns the current value of a frame slot.
func (a *Agent) Local(frame uint64, slot int32) (Value, bool) {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()
	f := a.state.frame(frame)
	if f == nil {
		return Value{}, false
	}
	v, ok := f.Locals[slot]
	return v, ok
}

func (s *agentState) thread(id uint64) *Thread {
	for _, t := range s.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *agentState) frame(id uint64) *Frame {
	for _, t := range s.threads {
		for i := range t.Frames {
			if t.Frames[i].ID == id {
				return &t.Frames[i]
			}
		}
	}
	return nil
}

func (s *agentState) method(class, method uint64) *Method {
	c := s.classes[class]
	if c == nil {
		return nil
	}
	for i := range c.Methods {
		if c.Methods[i].ID == method {
			return &c.Methods[i]
		}
	}
	return nil
}

func (s *agentState) sortedClasses() []*Class {
	out := make([]*Class, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// serveDefaults registers handlers backed by the agent's state.
func (a *Agent) serveDefaults() {
	s := &a.state
	ack := func(a *Agent, c *Command) { a.Reply(c, nil) }

	a.Handle(1, 2, func(a *Agent, c *Command) {
		sig := c.Args().Str()
		s.mu.Lock()
		e := NewEncoder()
		var found []*Class
		for _, cl := range s.sortedClasses() {
			if cl.Signature == sig {
				found = append(found, cl)
			}
		}
		s.mu.Unlock()
		e.I32(int32(len(found)))
		for _, cl := range found {
			e.U8(1).ID(cl.ID).I32(7)
		}
		a.Reply(c, e)
	})
	a.Handle(1, 3, func(a *Agent, c *Command) {
		s.mu.Lock()
		classes := s.sortedClasses()
		s.mu.Unlock()
		e := NewEncoder().I32(int32(len(classes)))
		for _, cl := range classes {
			e.U8(1).ID(cl.ID).Str(cl.Signature).I32(7)
		}
		a.Reply(c, e)
	})
	a.Handle(1, 4, func(a *Agent, c *Command) {
		s.mu.Lock()
		e := NewEncoder().I32(int32(len(s.threads)))
		for _, t := range s.threads {
			e.ID(t.ID)
		}
		s.mu.Unlock()
		a.Reply(c, e)
	})
	a.Handle(1, 6, func(a *Agent, c *Command) {
		s.mu.Lock()
		s.disposed = true
		s.mu.Unlock()
		a.Reply(c, nil)
	})
	a.Handle(1, 8, func(a *Agent, c *Command) {
		s.mu.Lock()
		s.suspends++
		s.mu.Unlock()
		a.Reply(c, nil)
	})
	a.Handle(1, 9, func(a *Agent, c *Command) {
		s.mu.Lock()
		s.resumes++
		s.mu.Unlock()
		a.Reply(c, nil)
	})
	a.Handle(1, 10, func(a *Agent, c *Command) {
		code := c.Args().I32()
		s.mu.Lock()
		s.exitCode = &code
		s.mu.Unlock()
		a.Reply(c, nil)
	})
	a.Handle(1, 11, func(a *Agent, c *Command) {
		text := c.Args().Str()
		s.mu.Lock()
		s.nextString++
		id := s.nextString
		s.strings[id] = text
		s.mu.Unlock()
		a.Reply(c, NewEncoder().ID(id))
	})

	a.Handle(2, 1, func(a *Agent, c *Command) {
		s.mu.Lock()
		cl := s.classes[c.Args().ID()]
		s.mu.Unlock()
		if cl == nil {
			a.ReplyError(c, errInvalidClass)
			return
		}
		a.Reply(c, NewEncoder().Str(cl.Signature))
	})
	a.Handle(2, 5, func(a *Agent, c *Command) {
		s.mu.Lock()
		defer s.mu.Unlock()
		cl := s.classes[c.Args().ID()]
		if cl == nil {
			a.ReplyError(c, errInvalidClass)
			return
		}
		e := NewEncoder().I32(int32(len(cl.Methods)))
		for _, m := range cl.Methods {
			e.ID(m.ID).Str(m.Name).Str(m.Signature).I32(m.Modifiers)
		}
		a.Reply(c, e)
	})
	a.Handle(2, 7, func(a *Agent, c *Command) {
		s.mu.Lock()
		cl := s.classes[c.Args().ID()]
		s.mu.Unlock()
		if cl == nil || cl.Source == "" {
			a.ReplyError(c, errAbsentInformation)
			return
		}
		a.Reply(c, NewEncoder().Str(cl.Source))
	})

	a.Handle(6, 1, func(a *Agent, c *Command) {
		args := c.Args()
		s.mu.Lock()
		m := s.method(args.ID(), args.ID())
		s.mu.Unlock()
		if m == nil {
			a.ReplyError(c, errInvalidMethodID)
			return
		}
		var end uint64
		for _, l := range m.Lines {
			if l.Index >= end {
				end = l.Index + 1
			}
		}
		e := NewEncoder().I64(0).I64(int64(end)).I32(int32(len(m.Lines)))
		for _, l := range m.Lines {
			e.I64(int64(l.Index)).I32(l.Line)
		}
		a.Reply(c, e)
	})
	a.Handle(6, 2, func(a *Agent, c *Command) {
		args := c.Args()
		s.mu.Lock()
		m := s.method(args.ID(), args.ID())
		s.mu.Unlock()
		if m == nil || m.Vars == nil {
			a.ReplyError(c, errAbsentInformation)
			return
		}
		e := NewEncoder().I32(m.ArgSlots).I32(int32(len(m.Vars)))
		for _, v := range m.Vars {
			e.I64(int64(v.Index)).Str(v.Name).Str(v.Signature).I32(v.Length).I32(v.Slot)
		}
		a.Reply(c, e)
	})

	a.Handle(9, 1, func(a *Agent, c *Command) {
		id := c.Args().ID()
		s.mu.Lock()
		class, ok := s.objects[id]
		s.mu.Unlock()
		if !ok {
			a.ReplyError(c, errInvalidObject)
			return
		}
		a.Reply(c, NewEncoder().U8(1).ID(class))
	})
	a.Handle(10, 1, func(a *Agent, c *Command) {
		s.mu.Lock()
		text, ok := s.strings[c.Args().ID()]
		s.mu.Unlock()
		if !ok {
			a.ReplyError(c, errInvalidObject)
			return
		}
		a.Reply(c, NewEncoder().Str(text))
	})

	a.Handle(11, 1, func(a *Agent, c *Command) {
		s.mu.Lock()
		t := s.thread(c.Args().ID())
		s.mu.Unlock()
		if t == nil {
			a.ReplyError(c, ErrInvalidThread)
			return
		}
		a.Reply(c, NewEncoder().Str(t.Name))
	})
	a.Handle(11, 2, ack)
	a.Handle(11, 3, ack)
	a.Handle(11, 4, func(a *Agent, c *Command) {
		s.mu.Lock()
		t := s.thread(c.Args().ID())
		s.mu.Unlock()
		if t == nil {
			a.ReplyError(c, ErrInvalidThread)
			return
		}
		status := t.Status
		if status == 0 {
			status = threadStatusRunning
		}
		a.Reply(c, NewEncoder().I32(status).I32(suspendStatusSuspended))
	})
	a.Handle(11, 6, func(a *Agent, c *Command) {
		args := c.Args()
		id, start, length := args.ID(), int(args.I32()), int(args.I32())
		s.mu.Lock()
		defer s.mu.Unlock()
		t := s.thread(id)
		if t == nil {
			a.ReplyError(c, ErrInvalidThread)
			return
		}
		frames := t.Frames
		if start > len(frames) {
			start = len(frames)
		}
		frames = frames[start:]
		if length >= 0 && length < len(frames) {
			frames = frames[:length]
		}
		e := NewEncoder().I32(int32(len(frames)))
		for _, f := range frames {
			e.ID(f.ID).Location(f.Class, f.Method, f.Index)
		}
		a.Reply(c, e)
	})
	a.Handle(11, 7, func(a *Agent, c *Command) {
		s.mu.Lock()
		t := s.thread(c.Args().ID())
		s.mu.Unlock()
		if t == nil {
			a.ReplyError(c, ErrInvalidThread)
			return
		}
		a.Reply(c, NewEncoder().I32(int32(len(t.Frames))))
	})

	a.Handle(15, 1, func(a *Agent, c *Command) {
		r := parseRequest(c.Args())
		r.ID = a.requestID.Add(1)
		s.mu.Lock()
		s.requests[r.ID] = r
		s.mu.Unlock()
		a.Reply(c, NewEncoder().I32(r.ID))
	})
	a.Handle(15, 2, func(a *Agent, c *Command) {
		args := c.Args()
		args.U8()
		id := args.I32()
		s.mu.Lock()
		_, ok := s.requests[id]
		delete(s.requests, id)
		s.mu.Unlock()
		if !ok {
			a.ReplyError(c, ErrNotFound)
			return
		}
		a.Reply(c, nil)
	})
	a.Handle(15, 3, func(a *Agent, c *Command) {
		s.mu.Lock()
		for id, r := range s.requests {
			if r.Kind == 2 {
				delete(s.requests, id)
			}
		}
		s.mu.Unlock()
		a.Reply(c, nil)
	})

	a.Handle(16, 1, func(a *Agent, c *Command) {
		args := c.Args()
		args.ID()
		s.mu.Lock()
		defer s.mu.Unlock()
		f := s.frame(args.ID())
		if f == nil {
			a.ReplyError(c, errInvalidFrameID)
			return
		}
		n := int(args.I32())
		e := NewEncoder().I32(int32(n))
		for i := 0; i < n; i++ {
			slot, tag := args.I32(), args.U8()
			v, ok := f.Locals[slot]
			if !ok {
				v = Value{Tag: tag}
			}
			e.Value(v)
		}
		a.Reply(c, e)
	})
	a.Handle(16, 2, func(a *Agent, c *Command) {
		args := c.Args()
		args.ID()
		s.mu.Lock()
		defer s.mu.Unlock()
		f := s.frame(args.ID())
		if f == nil {
			a.ReplyError(c, errInvalidFrameID)
			return
		}
		n := int(args.I32())
		for i := 0; i < n; i++ {
			slot := args.I32()
			if f.Locals == nil {
				f.Locals = make(map[int32]Value)
			}
			f.Locals[slot] = args.Value()
		}
		a.Reply(c, nil)
	})
	a.Handle(16, 3, func(a *Agent, c *Command) {
		args := c.Args()
		args.ID()
		s.mu.Lock()
		f := s.frame(args.ID())
		s.mu.Unlock()
		if f == nil {
			a.ReplyError(c, errInvalidFrameID)
			return
		}
		this := f.This
		if this.Tag == 0 {
			this = Null()
		}
		a.Reply(c, NewEncoder().Value(this))
	})
}

// parseRequest decodes an EventRequest.Set payload.
func parseRequest(d *Decoder) *Request {
	r := &Request{Kind: d.U8(), Policy: d.U8()}
	n := int(d.I32())
	for i := 0; i < n && d.Remaining() > 0; i++ {
		switch d.U8() {
		case 1:
			r.Count = d.I32()
		case 2:
			d.I32()
		case 3:
			r.Thread = d.ID()
		case 4, 11:
			d.ID()
		case 5:
			r.ClassMatch = d.Str()
		case 6, 12:
			d.Str()
		case 7:
			d.U8()
			r.Location = &Loc{Class: d.ID(), Method: d.ID(), Index: uint64(d.I64())}
		case 8:
			d.ID()
			d.Bool()
			d.Bool()
		case 9:
			d.ID()
			d.ID()
		case 10:
			r.Thread = d.ID()
			r.StepSize = d.I32()
			r.StepDepth = d.I32()
		}
	}
	return r
}
