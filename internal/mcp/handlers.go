package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/session"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

const (
	defaultWaitSeconds = 30
	defaultMaxFrames   = 20
)

// Session Management Handlers

func (s *Server) handleLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanLaunch() {
		return toolError(errors.PermissionDenied("launch", string(s.config.Mode)))
	}

	req := types.LaunchRequest{
		Language:    types.Language(request.GetString("language", "")),
		MainClass:   request.GetString("mainClass", ""),
		Jar:         request.GetString("jar", ""),
		Classpath:   request.GetStringSlice("classpath", nil),
		Args:        request.GetStringSlice("args", nil),
		VMArgs:      request.GetStringSlice("vmArgs", nil),
		Cwd:         request.GetString("cwd", ""),
		StopOnEntry: request.GetBool("stopOnEntry", false),
	}
	if req.MainClass == "" && req.Jar == "" {
		return toolError(errors.MissingParameter("mainClass",
			"Specify the fully qualified main class (e.g. com.example.Main) or an executable jar."))
	}

	if env := request.GetString("env", ""); env != "" {
		if err := json.Unmarshal([]byte(env), &req.Env); err != nil {
			return toolError(errors.InvalidParameter("env", env, "a JSON object of strings"))
		}
	}

	for _, spec := range request.GetStringSlice("breakpoints", nil) {
		bp, err := parseBreakpointSpec(spec)
		if err != nil {
			return toolError(err)
		}
		req.Breakpoints = append(req.Breakpoints, bp)
	}

	sess, err := s.sessions.Launch(ctx, req)
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"session":     sess.Info(),
		"breakpoints": sess.Breakpoints(),
	})
}

func (s *Server) handleAttach(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanAttach() {
		return toolError(errors.PermissionDenied("attach", string(s.config.Mode)))
	}

	port, err := request.RequireFloat("port")
	if err != nil {
		return toolError(errors.MissingParameter("port",
			"Specify the port from the target's -agentlib:jdwp address option."))
	}

	sess, err := s.sessions.Attach(ctx, types.AttachRequest{
		Host: request.GetString("host", ""),
		Port: int(port),
	})
	if err != nil {
		return toolError(err)
	}

	return jsonResult(sess.Info())
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(missingSessionID())
	}

	terminateDebuggee := request.GetBool("terminateDebuggee", false)

	if err := s.sessions.Terminate(sessionID, terminateDebuggee); err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    types.SessionStatusTerminated,
	})
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"sessions": s.sessions.List(),
	})
}

// Inspection Handlers

func (s *Server) handleSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	threadID, err := optionalThreadID(request)
	if err != nil {
		return toolError(err)
	}

	maxFrames := defaultMaxFrames
	if n, err := request.RequireFloat("maxFrames"); err == nil {
		maxFrames = int(n)
	}

	snap, err := sess.Snapshot(ctx, threadID, maxFrames)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(snap)
}

func (s *Server) handleThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	threads, err := sess.Threads(ctx)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"threads": threads,
	})
}

func (s *Server) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, threadID, err := s.getSessionThread(request)
	if err != nil {
		return toolError(err)
	}

	start := int(request.GetFloat("startFrame", 0))
	levels := int(request.GetFloat("levels", -1))
	if levels == 0 {
		levels = -1
	}

	frames, err := sess.Stack(ctx, threadID, start, levels)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"threadId": threadID,
		"frames":   frames,
	})
}

func (s *Server) handleVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, threadID, err := s.getSessionThread(request)
	if err != nil {
		return toolError(err)
	}

	frameIndex := int(request.GetFloat("frameIndex", 0))

	vars, err := sess.Variables(ctx, threadID, frameIndex)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"threadId":   threadID,
		"frameIndex": frameIndex,
		"variables":  vars,
	})
}

func (s *Server) handleClasses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	classes, err := sess.Classes(ctx, request.GetString("filter", ""))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"classes": classes,
	})
}

func (s *Server) handleWaitEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	ctx, cancel := toolContext(ctx, request.GetFloat("timeout", defaultWaitSeconds))
	defer cancel()

	event, err := sess.WaitForEvent(ctx)
	if stderrors.Is(err, context.DeadlineExceeded) {
		return jsonResult(map[string]interface{}{
			"sessionId": sess.ID,
			"status":    sess.Status(),
			"timedOut":  true,
		})
	}
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Status(),
		"event":     event,
	})
}

func (s *Server) handleOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	output, next := sess.Output(int64(request.GetFloat("offset", 0)))
	return jsonResult(map[string]interface{}{
		"output": output,
		"next":   next,
	})
}

func (s *Server) handleBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	return jsonResult(map[string]interface{}{
		"breakpoints": sess.Breakpoints(),
	})
}

// Control Handlers

func (s *Server) handleBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	switch action := request.GetString("action", "set"); action {
	case "set":
		className, err := request.RequireString("class")
		if err != nil {
			return toolError(errors.MissingParameter("class", "Specify the fully qualified class name, e.g. com.example.Main."))
		}
		line, err := request.RequireFloat("line")
		if err != nil {
			return toolError(errors.MissingParameter("line", "Specify the source line to break on."))
		}
		bp, err := sess.SetBreakpoint(ctx, className, int(line))
		if err != nil {
			return toolError(err)
		}
		return jsonResult(bp)

	case "remove":
		id, err := request.RequireFloat("breakpointId")
		if err != nil {
			return toolError(errors.MissingParameter("breakpointId", "Use jdwp_breakpoints to list breakpoint IDs."))
		}
		if err := sess.RemoveBreakpoint(ctx, int(id)); err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]interface{}{
			"breakpointId": int(id),
			"removed":      true,
		})

	default:
		return toolError(errors.InvalidParameter("action", action, "set or remove"))
	}
}

func (s *Server) handleExceptionBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	className := request.GetString("class", "")
	caught := request.GetBool("caught", false)
	uncaught := request.GetBool("uncaught", true)

	if err := sess.BreakOnExceptions(ctx, className, caught, uncaught); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"class":    className,
		"caught":   caught,
		"uncaught": uncaught,
	})
}

func (s *Server) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanExecute() {
		return toolError(errors.PermissionDenied("execute", string(s.config.Mode)))
	}

	sess, threadID, err := s.getSessionThread(request)
	if err != nil {
		return toolError(err)
	}

	depth := request.GetString("depth", "over")
	if err := sess.Step(ctx, threadID, depth); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"threadId": threadID,
		"depth":    depth,
		"status":   sess.Status(),
	})
}

func (s *Server) handleResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanExecute() {
		return toolError(errors.PermissionDenied("execute", string(s.config.Mode)))
	}

	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	if err := sess.Resume(ctx); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Status(),
	})
}

func (s *Server) handleSuspend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	if err := sess.Suspend(ctx); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"sessionId": sess.ID,
		"status":    sess.Status(),
	})
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanModifyVariables() {
		return toolError(errors.PermissionDenied("modify", string(s.config.Mode)))
	}

	sess, threadID, err := s.getSessionThread(request)
	if err != nil {
		return toolError(err)
	}

	name, err := request.RequireString("name")
	if err != nil {
		return toolError(errors.MissingParameter("name", "Use jdwp_variables to list the frame's variables."))
	}
	value, err := request.RequireString("value")
	if err != nil {
		return toolError(errors.MissingParameter("value", "Specify the new value as a Java literal."))
	}

	v, err := sess.SetVariable(ctx, threadID, int(request.GetFloat("frameIndex", 0)), name, value)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(v)
}

func (s *Server) handleRunToLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanExecute() {
		return toolError(errors.PermissionDenied("execute", string(s.config.Mode)))
	}

	sess, err := s.getSession(request)
	if err != nil {
		return toolError(err)
	}

	className, err := request.RequireString("class")
	if err != nil {
		return toolError(errors.MissingParameter("class", "Specify the fully qualified class name, e.g. com.example.Main."))
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return toolError(errors.MissingParameter("line", "Specify the source line to run to."))
	}

	// Set a temporary breakpoint
	bp, err := sess.SetBreakpoint(ctx, className, int(line))
	if err != nil {
		return toolError(err)
	}
	defer func() {
		if err := sess.RemoveBreakpoint(context.Background(), bp.ID); err != nil {
			s.log.WithError(err).WithField("breakpoint", bp.ID).Warn("failed to remove temporary breakpoint")
		}
	}()

	if err := sess.Resume(ctx); err != nil {
		return toolError(err)
	}

	waitCtx, cancel := toolContext(ctx, request.GetFloat("timeout", defaultWaitSeconds))
	defer cancel()

	event, err := sess.WaitForEvent(waitCtx)
	if stderrors.Is(err, context.DeadlineExceeded) {
		return toolError(errors.Timeout("run to line", int(request.GetFloat("timeout", defaultWaitSeconds))))
	}
	if err != nil {
		return toolError(err)
	}

	snap, err := sess.Snapshot(ctx, event.ThreadID, defaultMaxFrames)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]interface{}{
		"reached":  event.Breakpoint == bp.ID,
		"event":    event,
		"snapshot": snap,
	})
}

// Helper functions

func missingSessionID() error {
	return errors.MissingParameter("sessionId", "Provide the sessionId returned from jdwp_launch or jdwp_attach. Use jdwp_list_sessions to see active sessions.")
}

func (s *Server) getSession(request mcp.CallToolRequest) (*session.Session, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, missingSessionID()
	}
	return s.sessions.Get(sessionID)
}

func (s *Server) getSessionThread(request mcp.CallToolRequest) (*session.Session, uint64, error) {
	sess, err := s.getSession(request)
	if err != nil {
		return nil, 0, err
	}
	if _, err := request.RequireFloat("threadId"); err != nil {
		return nil, 0, errors.MissingParameter("threadId", "Use jdwp_threads to list thread IDs.")
	}
	threadID, err := optionalThreadID(request)
	if err != nil {
		return nil, 0, err
	}
	return sess, threadID, nil
}

// optionalThreadID returns the threadId argument, or zero when it is absent.
func optionalThreadID(request mcp.CallToolRequest) (uint64, error) {
	id := request.GetFloat("threadId", 0)
	if id < 0 || id != float64(uint64(id)) {
		return 0, errors.InvalidParameter("threadId", id, "a thread ID from jdwp_threads")
	}
	return uint64(id), nil
}

// parseBreakpointSpec parses Class:line, e.g. com.example.Main:42.
func parseBreakpointSpec(spec string) (types.BreakpointSpec, error) {
	i := strings.LastIndex(spec, ":")
	if i <= 0 {
		return types.BreakpointSpec{}, errors.InvalidParameter("breakpoints", spec, "Class:line, e.g. com.example.Main:42")
	}
	line, err := strconv.Atoi(spec[i+1:])
	if err != nil || line <= 0 {
		return types.BreakpointSpec{}, errors.InvalidParameter("breakpoints", spec, "Class:line, e.g. com.example.Main:42")
	}
	return types.BreakpointSpec{Class: spec[:i], Line: line}, nil
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(errors.FromError(err).Error()), nil
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
