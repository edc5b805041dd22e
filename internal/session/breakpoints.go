package session

import (
	"context"
	"sort"

	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// breakpoint is one line breakpoint. It is pending while prepare is set:
// the class was not loaded when it was created.
type breakpoint struct {
	id       int
	class    string
	line     int
	requests []*jdwp.EventRequest
	prepare  *jdwp.EventRequest
	message  string
}

func (b *breakpoint) info() types.Breakpoint {
	return types.Breakpoint{
		ID:        b.id,
		Class:     b.class,
		Line:      b.line,
		Verified:  len(b.requests) > 0,
		Locations: len(b.requests),
		Message:   b.message,
	}
}

// SetBreakpoint sets a breakpoint at line of className. When the class is
// not loaded yet the breakpoint is installed once it is prepared.
func (s *Session) SetBreakpoint(ctx context.Context, className string, line int) (*types.Breakpoint, error) {
	s.touch()
	if className == "" {
		return nil, errors.MissingParameter("class", "fully qualified class name, e.g. com.example.Main")
	}
	if line <= 0 {
		return nil, errors.InvalidParameter("line", line, "a positive line number")
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.bpMu.Lock()
	defer s.bpMu.Unlock()

	classes, err := s.conn.ClassesByName(ctx, className)
	if err != nil {
		return nil, err
	}

	bp := &breakpoint{class: className, line: line}
	if len(classes) == 0 {
		bp.prepare, err = s.conn.Requests().ClassPrepareRequest(ctx, className, jdwp.SuspendEventThread)
		if err != nil {
			return nil, errors.BreakpointFailed(className, line, err.Error())
		}
		bp.message = "pending until the class is loaded"
	} else if err := s.install(ctx, bp, classes); err != nil {
		return nil, err
	}

	s.nextBreakpoint++
	bp.id = s.nextBreakpoint
	s.breakpoints[bp.id] = bp
	s.log.WithField("breakpoint", bp.id).WithField("class", className).WithField("line", line).Info("breakpoint set")

	info := bp.info()
	return &info, nil
}

// install sets bp at every location of its line in classes. s.bpMu must be
// held.
func (s *Session) install(ctx context.Context, bp *breakpoint, classes []*jdwp.TypeMirror) error {
	var locs []jdwp.Location
	for _, t := range classes {
		l, err := t.LocationsOfLine(ctx, bp.line)
		if jdwp.IsRemote(err, jdwp.ErrAbsentInformation) {
			return errors.BreakpointFailed(bp.class, bp.line, "class was compiled without line number information")
		}
		if err != nil {
			return errors.BreakpointFailed(bp.class, bp.line, err.Error())
		}
		locs = append(locs, l...)
	}
	if len(locs) == 0 {
		return errors.BreakpointFailed(bp.class, bp.line, "no executable code at this line")
	}

	for _, loc := range locs {
		req, err := s.conn.Requests().SetBreakpoint(ctx, loc, jdwp.SuspendAll)
		if err != nil {
			for _, r := range bp.requests {
				_ = s.conn.Requests().Delete(ctx, r)
			}
			bp.requests = nil
			return errors.BreakpointFailed(bp.class, bp.line, err.Error())
		}
		bp.requests = append(bp.requests, req)
	}
	bp.message = ""
	return nil
}

// installDeferred installs the pending breakpoints of a newly prepared
// class.
func (s *Session) installDeferred(ctx context.Context, e *jdwp.ClassPrepareEvent) {
	name := jdwp.SignatureToName(e.Signature)

	s.bpMu.Lock()
	defer s.bpMu.Unlock()
	for _, bp := range s.breakpoints {
		if bp.prepare == nil || bp.class != name {
			continue
		}
		log := s.log.WithField("breakpoint", bp.id).WithField("class", name)
		if err := s.install(ctx, bp, []*jdwp.TypeMirror{e.Type}); err != nil {
			bp.message = err.Error()
			log.WithError(err).Warn("failed to install deferred breakpoint")
		} else {
			log.Info("deferred breakpoint installed")
		}
		if err := s.conn.Requests().Delete(ctx, bp.prepare); err != nil {
			log.WithError(err).Debug("failed to delete class prepare request")
		}
		bp.prepare = nil
	}
}

// RemoveBreakpoint clears a breakpoint set by SetBreakpoint
func (s *Session) RemoveBreakpoint(ctx context.Context, id int) error {
	s.touch()
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	s.bpMu.Lock()
	defer s.bpMu.Unlock()

	bp, ok := s.breakpoints[id]
	if !ok {
		return errors.InvalidParameter("breakpointId", id, "the id of a breakpoint listed by jdwp_breakpoint")
	}
	for _, r := range append(bp.requests, bp.prepare) {
		if err := s.conn.Requests().Delete(ctx, r); err != nil {
			return err
		}
	}
	delete(s.breakpoints, id)
	return nil
}

// Breakpoints lists the session's breakpoints by id
func (s *Session) Breakpoints() []types.Breakpoint {
	s.bpMu.Lock()
	defer s.bpMu.Unlock()

	out := make([]types.Breakpoint, 0, len(s.breakpoints))
	for _, bp := range s.breakpoints {
		out = append(out, bp.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// breakpointFor returns the id of the breakpoint owning req, or 0.
func (s *Session) breakpointFor(req *jdwp.EventRequest) int {
	if req == nil {
		return 0
	}
	s.bpMu.Lock()
	defer s.bpMu.Unlock()
	for _, bp := range s.breakpoints {
		for _, r := range bp.requests {
			if r == req {
				return bp.id
			}
		}
	}
	return 0
}
