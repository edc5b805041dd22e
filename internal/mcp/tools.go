package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug API
func (s *Server) registerTools() {
	// Session Management (both modes)
	s.registerLaunch()
	s.registerAttach()
	s.registerDisconnect()
	s.registerListSessions()

	// Inspection (both modes)
	s.registerSnapshot()
	s.registerThreads()
	s.registerStack()
	s.registerVariables()
	s.registerClasses()
	s.registerWaitEvent()
	s.registerOutput()
	s.registerBreakpoints()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerBreakpoint()
		s.registerExceptionBreakpoint()
		s.registerStep()
		s.registerResume()
		s.registerSuspend()
		s.registerSetVariable()
		s.registerRunToLine()
	}
}

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("sessionId",
		mcp.Required(),
		mcp.Description("Session ID returned by jdwp_launch or jdwp_attach"),
	)
}

func threadIDParam(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description("Thread ID from jdwp_threads or a stop event")}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithNumber("threadId", opts...)
}

// Session Management Tools

func (s *Server) registerLaunch() {
	tool := mcp.NewTool("jdwp_launch",
		mcp.WithDescription("Start a JVM suspended under the JDWP agent and attach to it. Returns the sessionId needed by every other tool. Breakpoints given here are installed before the program runs; use stopOnEntry=true to keep it suspended until jdwp_resume."),
		mcp.WithString("language",
			mcp.Description("JVM language: java (default), kotlin or scala"),
		),
		mcp.WithString("mainClass",
			mcp.Description("Fully qualified main class, e.g. com.example.Main. Use this or jar."),
		),
		mcp.WithString("jar",
			mcp.Description("Executable jar to run with java -jar. Use this or mainClass."),
		),
		mcp.WithArray("classpath",
			mcp.Description("Classpath entries"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("args",
			mcp.Description("Program arguments"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("vmArgs",
			mcp.Description("Extra JVM options, e.g. -Xmx512m"),
			mcp.WithStringItems(),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithString("env",
			mcp.Description("JSON object of extra environment variables. Example: {\"APP_ENV\": \"test\"}"),
		),
		mcp.WithArray("breakpoints",
			mcp.Description("Breakpoints as Class:line, e.g. com.example.Main:42"),
			mcp.WithStringItems(),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Keep the VM suspended after launch (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleLaunch)
}

func (s *Server) registerAttach() {
	tool := mcp.NewTool("jdwp_attach",
		mcp.WithDescription("Attach to a JVM started with -agentlib:jdwp=transport=dt_socket,server=y,address=<port>."),
		mcp.WithString("host",
			mcp.Description("Host the JVM listens on (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Required(),
			mcp.Description("JDWP port"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleAttach)
}

func (s *Server) registerDisconnect() {
	tool := mcp.NewTool("jdwp_disconnect",
		mcp.WithDescription("End a debug session. Attached JVMs keep running unless terminateDebuggee is set; launched JVMs are always stopped."),
		sessionIDParam(),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Exit the target JVM (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDisconnect)
}

func (s *Server) registerListSessions() {
	tool := mcp.NewTool("jdwp_list_sessions",
		mcp.WithDescription("List active debug sessions"),
	)
	s.mcpServer.AddTool(tool, s.handleListSessions)
}

// Inspection Tools

func (s *Server) registerSnapshot() {
	tool := mcp.NewTool("jdwp_snapshot",
		mcp.WithDescription("Get the debug state in one call: threads, the last stop event and, when stopped, the stack and locals of the stopped thread."),
		sessionIDParam(),
		threadIDParam(false),
		mcp.WithNumber("maxFrames",
			mcp.Description("Maximum stack frames to return (default: 20)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSnapshot)
}

func (s *Server) registerThreads() {
	tool := mcp.NewTool("jdwp_threads",
		mcp.WithDescription("List the target's threads with their status"),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleThreads)
}

func (s *Server) registerStack() {
	tool := mcp.NewTool("jdwp_stack",
		mcp.WithDescription("Get the call stack of a suspended thread, innermost frame first"),
		sessionIDParam(),
		threadIDParam(true),
		mcp.WithNumber("startFrame",
			mcp.Description("Index of the first frame (default: 0)"),
		),
		mcp.WithNumber("levels",
			mcp.Description("Number of frames to return (default: all)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStack)
}

func (s *Server) registerVariables() {
	tool := mcp.NewTool("jdwp_variables",
		mcp.WithDescription("Get 'this' and the visible local variables of a frame in a suspended thread"),
		sessionIDParam(),
		threadIDParam(true),
		mcp.WithNumber("frameIndex",
			mcp.Description("Frame index from jdwp_stack (default: 0)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleVariables)
}

func (s *Server) registerClasses() {
	tool := mcp.NewTool("jdwp_classes",
		mcp.WithDescription("List loaded classes. The filter is a substring, or a glob such as com.example.* when it contains wildcards."),
		sessionIDParam(),
		mcp.WithString("filter",
			mcp.Description("Class name filter"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleClasses)
}

func (s *Server) registerWaitEvent() {
	tool := mcp.NewTool("jdwp_wait_event",
		mcp.WithDescription("Wait for the next stop event (breakpoint, step, exception) or for the VM to exit."),
		sessionIDParam(),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait (default: 30)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleWaitEvent)
}

func (s *Server) registerOutput() {
	tool := mcp.NewTool("jdwp_output",
		mcp.WithDescription("Read stdout and stderr of a launched program. Pass the returned next offset to read only new output."),
		sessionIDParam(),
		mcp.WithNumber("offset",
			mcp.Description("Offset to read from (default: 0)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleOutput)
}

func (s *Server) registerBreakpoints() {
	tool := mcp.NewTool("jdwp_breakpoints",
		mcp.WithDescription("List the session's breakpoints, including ones pending until their class loads"),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpoints)
}

// Control Tools

func (s *Server) registerBreakpoint() {
	tool := mcp.NewTool("jdwp_breakpoint",
		mcp.WithDescription("Set or remove a line breakpoint. Breakpoints in classes that are not loaded yet are installed when the class loads."),
		sessionIDParam(),
		mcp.WithString("action",
			mcp.Description("'set' (default) or 'remove'"),
		),
		mcp.WithString("class",
			mcp.Description("Fully qualified class name, for 'set'"),
		),
		mcp.WithNumber("line",
			mcp.Description("Source line, for 'set'"),
		),
		mcp.WithNumber("breakpointId",
			mcp.Description("Breakpoint ID, for 'remove'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpoint)
}

func (s *Server) registerExceptionBreakpoint() {
	tool := mcp.NewTool("jdwp_exception_breakpoint",
		mcp.WithDescription("Stop when an exception is thrown"),
		sessionIDParam(),
		mcp.WithString("class",
			mcp.Description("Exception class, e.g. java.lang.IllegalStateException. Omit for all exceptions."),
		),
		mcp.WithBoolean("caught",
			mcp.Description("Stop on caught exceptions (default: false)"),
		),
		mcp.WithBoolean("uncaught",
			mcp.Description("Stop on uncaught exceptions (default: true)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleExceptionBreakpoint)
}

func (s *Server) registerStep() {
	tool := mcp.NewTool("jdwp_step",
		mcp.WithDescription("Step a suspended thread by one line and resume. Use jdwp_wait_event to see where it stopped."),
		sessionIDParam(),
		threadIDParam(true),
		mcp.WithString("depth",
			mcp.Description("'over' (default), 'into' or 'out'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStep)
}

func (s *Server) registerResume() {
	tool := mcp.NewTool("jdwp_resume",
		mcp.WithDescription("Resume every thread in the target"),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleResume)
}

func (s *Server) registerSuspend() {
	tool := mcp.NewTool("jdwp_suspend",
		mcp.WithDescription("Suspend every thread in the target"),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleSuspend)
}

func (s *Server) registerSetVariable() {
	tool := mcp.NewTool("jdwp_set_variable",
		mcp.WithDescription("Set a local variable in a frame. Values are Java literals: 42, 1.5, true, 'c', or a quoted string for String variables."),
		sessionIDParam(),
		threadIDParam(true),
		mcp.WithNumber("frameIndex",
			mcp.Description("Frame index from jdwp_stack (default: 0)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Variable name"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New value"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSetVariable)
}

func (s *Server) registerRunToLine() {
	tool := mcp.NewTool("jdwp_run_to_line",
		mcp.WithDescription("Resume until a line is reached, then return a snapshot of the stopped thread. Uses a temporary breakpoint."),
		sessionIDParam(),
		mcp.WithString("class",
			mcp.Required(),
			mcp.Description("Fully qualified class name"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("Source line"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Seconds to wait (default: 30)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleRunToLine)
}
