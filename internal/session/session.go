// Package session manages debug sessions with target JVMs.
//
// A Session owns one jdwp connection and, when it launched the target, the
// JVM process. It keeps the caller-facing view of the target: its status,
// line breakpoints (including ones deferred until their class loads), step
// requests, and the stop events a caller has not collected yet. Events are
// consumed from a jdwp.EventQueue on the session's own goroutine, so
// handling them may issue commands.
//
// The Manager creates sessions by launching or attaching, enforces the
// session limit and terminates idle sessions.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/adapters"
	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// maxPendingEvents bounds the stop events kept for WaitForEvent.
const maxPendingEvents = 64

// Session represents an active debug session
type Session struct {
	ID        string
	Target    string
	Address   string
	Launched  bool
	CreatedAt time.Time

	conn         *jdwp.Conn
	proc         *adapters.Process
	queue        *jdwp.EventQueue
	log          *logrus.Entry
	replyTimeout time.Duration

	mu         sync.RWMutex
	status     types.SessionStatus
	vm         string
	lastActive time.Time
	events     []types.EventInfo
	lastEvent  *types.EventInfo
	changed    chan struct{}
	steps      map[*jdwp.ThreadMirror]*jdwp.EventRequest

	// bpMu serializes breakpoint changes, which talk to the target.
	bpMu           sync.Mutex
	breakpoints    map[int]*breakpoint
	nextBreakpoint int

	pumpDone chan struct{}
}

func newSession(id, target string, log *logrus.Entry, replyTimeout time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Target:       target,
		CreatedAt:    now,
		log:          log,
		replyTimeout: replyTimeout,
		status:       types.SessionStatusInitializing,
		lastActive:   now,
		changed:      make(chan struct{}),
		steps:        make(map[*jdwp.ThreadMirror]*jdwp.EventRequest),
		breakpoints:  make(map[int]*breakpoint),
		pumpDone:     make(chan struct{}),
	}
}

// start adopts an open connection and begins consuming its events.
func (s *Session) start(conn *jdwp.Conn, proc *adapters.Process, queueSize int) {
	s.conn = conn
	s.proc = proc
	s.queue = jdwp.NewEventQueue(conn, queueSize)

	s.mu.Lock()
	if s.status == types.SessionStatusInitializing {
		if conn.Suspended() {
			s.status = types.SessionStatusStopped
		} else {
			s.status = types.SessionStatusRunning
		}
	}
	s.mu.Unlock()

	go s.pump()
}

// opContext bounds one operation against the target by the reply timeout.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.replyTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.replyTimeout)
}

// Status returns the session status
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// setStatusLocked records a new status and wakes waiters. s.mu must be held.
func (s *Session) setStatusLocked(status types.SessionStatus) {
	if s.status == types.SessionStatusTerminated || s.status == status {
		return
	}
	s.status = status
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) setStatus(status types.SessionStatus) {
	s.mu.Lock()
	s.setStatusLocked(status)
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// observe runs on the connection's reader for every event set. It only
// updates local state; anything that needs the target happens in pump.
func (s *Session) observe(set *jdwp.EventSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range set.Events {
		switch ev.Kind() {
		case jdwp.VMDeath, jdwp.VMDisconnected:
			s.setStatusLocked(types.SessionStatusTerminated)
		case jdwp.Breakpoint, jdwp.SingleStep, jdwp.Exception, jdwp.VMStart:
			if set.SuspendPolicy != jdwp.SuspendNone {
				s.setStatusLocked(types.SessionStatusStopped)
			}
		}
	}
	return nil
}

// pump consumes queued event sets until the connection is gone.
func (s *Session) pump() {
	defer close(s.pumpDone)
	for {
		set, err := s.queue.Next(context.Background())
		if err != nil {
			s.mu.Lock()
			s.setStatusLocked(types.SessionStatusTerminated)
			s.mu.Unlock()
			return
		}
		s.handle(set)
	}
}

// handle processes one event set on the pump goroutine.
func (s *Session) handle(set *jdwp.EventSet) {
	ctx, cancel := s.opContext(context.Background())
	defer cancel()

	onlyPrepare := len(set.Events) > 0
	for _, ev := range set.Events {
		switch e := ev.(type) {
		case *jdwp.ClassPrepareEvent:
			s.installDeferred(ctx, e)
			continue
		case *jdwp.SingleStepEvent:
			s.clearStep(ctx, e.Thread)
		case *jdwp.ThreadDeathEvent:
			s.clearStep(ctx, e.Thread)
		}
		onlyPrepare = false

		if info, ok := s.describeEvent(ctx, ev); ok {
			s.record(info)
		}
	}

	// Deferred breakpoints suspend only the loading thread; let it go again.
	if onlyPrepare && set.SuspendPolicy == jdwp.SuspendEventThread {
		if thread := jdwp.EventThread(set.Events[0]); thread != nil {
			if err := thread.Resume(ctx); err != nil {
				s.log.WithError(err).Warn("failed to resume thread after class prepare")
			}
		}
	}
}

// record queues a stop event for WaitForEvent.
func (s *Session) record(info types.EventInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxPendingEvents {
		s.events = s.events[1:]
	}
	s.events = append(s.events, info)
	last := info
	s.lastEvent = &last
	close(s.changed)
	s.changed = make(chan struct{})
	s.log.WithField("event", info.Kind).Debug("recorded stop event")
}

// WaitForEvent returns the oldest stop event not yet collected, waiting
// until one arrives, the session ends or ctx is done.
func (s *Session) WaitForEvent(ctx context.Context) (*types.EventInfo, error) {
	s.touch()
	for {
		s.mu.Lock()
		if len(s.events) > 0 {
			info := s.events[0]
			s.events = s.events[1:]
			s.mu.Unlock()
			return &info, nil
		}
		if s.status == types.SessionStatusTerminated {
			s.mu.Unlock()
			return nil, errors.Disconnected(s.conn.Err())
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// LastEvent returns the most recent stop event, or nil.
func (s *Session) LastEvent() *types.EventInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastEvent == nil {
		return nil
	}
	info := *s.lastEvent
	return &info
}

// Info returns a summary of the session
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := types.SessionInfo{
		SessionID: s.ID,
		Status:    s.status,
		Address:   s.Address,
		Target:    s.Target,
		VM:        s.vm,
		Launched:  s.Launched,
	}
	if s.proc != nil {
		info.PID = s.proc.PID()
	}
	return info
}

// Output returns target output written at or after offset and the offset
// to continue from. Attached sessions have no output.
func (s *Session) Output(offset int64) (string, int64) {
	if s.proc == nil {
		return "", 0
	}
	return s.proc.Output.ReadFrom(offset)
}

// Resume resumes every thread in the target
func (s *Session) Resume(ctx context.Context) error {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.resume(ctx)
}

// resume marks the session running before the command is sent, so a stop
// event that beats the reply is not overwritten.
func (s *Session) resume(ctx context.Context) error {
	s.mu.Lock()
	prev := s.status
	s.setStatusLocked(types.SessionStatusRunning)
	s.mu.Unlock()

	if err := s.conn.Resume(ctx); err != nil {
		s.mu.Lock()
		if s.status == types.SessionStatusRunning {
			s.setStatusLocked(prev)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Suspend suspends every thread in the target
func (s *Session) Suspend(ctx context.Context) error {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.conn.Suspend(ctx); err != nil {
		return err
	}
	s.setStatus(types.SessionStatusStopped)
	return nil
}

// stepDepths maps caller-facing names to step depths.
var stepDepths = map[string]jdwp.StepDepth{
	"into": jdwp.StepInto,
	"over": jdwp.StepOver,
	"out":  jdwp.StepOut,
}

// Step steps threadID by one line and resumes the target. The stop is
// reported as a SingleStep event.
func (s *Session) Step(ctx context.Context, threadID uint64, depth string) error {
	s.touch()
	d, ok := stepDepths[depth]
	if !ok {
		return errors.InvalidParameter("depth", depth, "into, over or out")
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	thread := s.thread(threadID)
	s.clearStep(ctx, thread)

	req, err := s.conn.Requests().StepRequest(ctx, thread, jdwp.StepLine, d, jdwp.SuspendAll)
	if err != nil {
		if jdwp.IsRemote(err, jdwp.ErrInvalidThread) {
			return errors.ThreadNotFound(threadID)
		}
		return errors.StepFailed(depth, err)
	}
	s.mu.Lock()
	s.steps[thread] = req
	s.mu.Unlock()

	if err := s.resume(ctx); err != nil {
		return errors.StepFailed(depth, err)
	}
	return nil
}

// clearStep deletes the step request of thread, if any. The target allows
// only one per thread.
func (s *Session) clearStep(ctx context.Context, thread *jdwp.ThreadMirror) {
	if thread == nil {
		return
	}
	s.mu.Lock()
	req := s.steps[thread]
	delete(s.steps, thread)
	s.mu.Unlock()
	if err := s.conn.Requests().Delete(ctx, req); err != nil {
		s.log.WithError(err).Debug("failed to delete step request")
	}
}

// BreakOnExceptions stops the target when an exception of className (or
// any class when empty) is thrown.
func (s *Session) BreakOnExceptions(ctx context.Context, className string, caught, uncaught bool) error {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var typ *jdwp.TypeMirror
	if className != "" {
		classes, err := s.conn.ClassesByName(ctx, className)
		if err != nil {
			return err
		}
		if len(classes) == 0 {
			return errors.ClassNotFound(className)
		}
		typ = classes[0]
	}
	_, err := s.conn.Requests().ExceptionRequest(ctx, typ, caught, uncaught, jdwp.SuspendAll)
	return err
}

func (s *Session) thread(id uint64) *jdwp.ThreadMirror {
	return s.conn.Cache().Resolve(jdwp.KindThread, id).(*jdwp.ThreadMirror)
}

// Threads lists the live threads of the target
func (s *Session) Threads(ctx context.Context) ([]types.ThreadInfo, error) {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	threads, err := s.conn.AllThreads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ThreadInfo, 0, len(threads))
	for _, t := range threads {
		name, err := t.Name(ctx)
		if jdwp.IsRemote(err, jdwp.ErrInvalidThread) {
			continue
		}
		if err != nil {
			return nil, err
		}
		status, suspended, err := t.Status(ctx)
		if jdwp.IsRemote(err, jdwp.ErrInvalidThread) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, types.ThreadInfo{
			ID:        uint64(t.ID()),
			Name:      name,
			Status:    status.String(),
			Suspended: suspended,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Stack returns up to count frames of a suspended thread starting at
// start. A count of -1 returns all of them.
func (s *Session) Stack(ctx context.Context, threadID uint64, start, count int) ([]types.StackFrame, error) {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	frames, err := s.thread(threadID).Frames(ctx, start, count)
	if err != nil {
		return nil, threadError(threadID, err)
	}
	out := make([]types.StackFrame, 0, len(frames))
	for _, f := range frames {
		sf, err := describeFrame(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, nil
}

// frame returns frame index of a suspended thread.
func (s *Session) frame(ctx context.Context, threadID uint64, index int) (*jdwp.StackFrame, error) {
	frames, err := s.thread(threadID).Frames(ctx, index, 1)
	if err != nil {
		if jdwp.IsRemote(err, jdwp.ErrInvalidThread) || jdwp.IsRemote(err, jdwp.ErrThreadNotSuspended) {
			return nil, threadError(threadID, err)
		}
		return nil, errors.FrameNotFound(threadID, index).WithCause(err)
	}
	if len(frames) == 0 {
		return nil, errors.FrameNotFound(threadID, index)
	}
	return frames[0], nil
}

// Variables returns the visible locals of a frame, preceded by "this" in
// instance methods.
func (s *Session) Variables(ctx context.Context, threadID uint64, frameIndex int) ([]types.Variable, error) {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	f, err := s.frame(ctx, threadID, frameIndex)
	if err != nil {
		return nil, err
	}

	var out []types.Variable
	this, err := f.ThisObject(ctx)
	if err != nil {
		return nil, err
	}
	if !jdwp.IsNull(this) {
		typeName, text := formatValue(ctx, this)
		out = append(out, types.Variable{Name: "this", Type: typeName, Value: text})
	}

	vars, err := f.VisibleVariables(ctx)
	if err != nil {
		if jdwp.IsRemote(err, jdwp.ErrAbsentInformation) {
			return out, nil
		}
		return nil, err
	}
	values, err := f.Values(ctx, vars)
	if err != nil {
		return nil, err
	}
	for i, v := range vars {
		_, text := formatValue(ctx, values[i])
		out = append(out, types.Variable{
			Name:     v.Name,
			Type:     jdwp.SignatureToName(v.Signature),
			Value:    text,
			Argument: v.Argument,
		})
	}
	return out, nil
}

// SetVariable assigns text, parsed according to the variable's type, to a
// local in a frame. Strings may be given quoted or bare.
func (s *Session) SetVariable(ctx context.Context, threadID uint64, frameIndex int, name, text string) (*types.Variable, error) {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	f, err := s.frame(ctx, threadID, frameIndex)
	if err != nil {
		return nil, err
	}
	v, err := f.VariableByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, errors.VariableNotFound(name)
	}

	value, err := s.parseValue(ctx, v.Signature, text)
	if err != nil {
		return nil, errors.InvalidParameter("value", text, "a literal of type "+jdwp.SignatureToName(v.Signature))
	}
	if err := f.SetVariable(ctx, v, value); err != nil {
		return nil, err
	}
	_, shown := formatValue(ctx, value)
	return &types.Variable{Name: v.Name, Type: jdwp.SignatureToName(v.Signature), Value: shown, Argument: v.Argument}, nil
}

// parseValue converts text to a value for a slot of signature sig,
// creating a string in the target when needed.
func (s *Session) parseValue(ctx context.Context, sig, text string) (jdwp.Value, error) {
	if sig == stringSignature && text != "null" {
		str, err := s.conn.CreateString(ctx, unquote(text))
		if err != nil {
			return nil, err
		}
		return str, nil
	}
	return jdwp.ParseValue(sig, text)
}

// Classes lists loaded classes whose name contains filter
func (s *Session) Classes(ctx context.Context, filter string) ([]types.ClassInfo, error) {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	all, err := s.conn.AllClasses(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ClassInfo
	for _, c := range all {
		name := jdwp.SignatureToName(c.Signature)
		if !matchesFilter(name, filter) {
			continue
		}
		out = append(out, types.ClassInfo{
			Name:   name,
			Kind:   typeKind(c.Type.TypeTag()),
			Status: classStatus(c.Status),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Snapshot describes the target in one call: its threads and, when a thread
// is stopped, that thread's stack and the locals of its top frame. A zero
// threadID picks the thread of the last stop event.
func (s *Session) Snapshot(ctx context.Context, threadID uint64, maxFrames int) (*types.DebugSnapshot, error) {
	threads, err := s.Threads(ctx)
	if err != nil {
		return nil, err
	}
	snap := &types.DebugSnapshot{
		SessionID: s.ID,
		Status:    s.Status(),
		Threads:   threads,
		LastEvent: s.LastEvent(),
	}
	if threadID == 0 && snap.LastEvent != nil {
		threadID = snap.LastEvent.ThreadID
	}
	if threadID == 0 || snap.Status != types.SessionStatusStopped {
		return snap, nil
	}

	snap.Thread = threadID
	if snap.Frames, err = s.Stack(ctx, threadID, 0, maxFrames); err != nil {
		return nil, err
	}
	if len(snap.Frames) > 0 {
		if snap.Variables, err = s.Variables(ctx, threadID, 0); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// terminate ends the session. The target is killed when the session
// launched it or when kill is set; otherwise it is released to run on.
func (s *Session) terminate(kill bool) {
	ctx, cancel := s.opContext(context.Background())
	defer cancel()

	if s.conn != nil {
		var err error
		if kill || s.Launched {
			err = s.conn.Exit(ctx, 1)
		} else {
			err = s.conn.Dispose(ctx)
		}
		if err != nil {
			s.log.WithError(err).Debug("failed to release target")
		}
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Debug("failed to close connection")
		}
		s.queue.Close()
	}
	if s.proc != nil {
		if err := s.proc.Kill(); err != nil {
			s.log.WithError(err).WithField("pid", s.proc.PID()).Warn("failed to kill process group")
		}
	}
	s.setStatus(types.SessionStatusTerminated)
	s.log.Info("session terminated")
}
