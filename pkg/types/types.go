// Package types defines shared data types used across the JDWP-MCP server.
//
// This package provides type definitions for:
//   - Language: JVM languages a launched program may be written in
//   - SessionStatus: Debug session states (initializing, running, stopped, terminated)
//   - Request types: LaunchRequest, AttachRequest
//   - Info types: SessionInfo, ThreadInfo, StackFrame, Variable, Breakpoint, EventInfo
//
// These are the shapes returned to MCP clients as JSON. They carry plain
// values only; the live mirrors stay inside the session layer.
package types

// Language represents a JVM language. All of them debug through the same
// JDWP agent, so the language only affects defaults and messages.
type Language string

const (
	LanguageJava   Language = "java"
	LanguageKotlin Language = "kotlin"
	LanguageScala  Language = "scala"
)

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusStopped      SessionStatus = "stopped"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// LaunchRequest represents a request to start a JVM under the debug agent
type LaunchRequest struct {
	Language  Language          `json:"language,omitempty"`
	MainClass string            `json:"mainClass,omitempty"`
	Jar       string            `json:"jar,omitempty"`
	Classpath []string          `json:"classpath,omitempty"`
	Args      []string          `json:"args,omitempty"`
	VMArgs    []string          `json:"vmArgs,omitempty"`
	Cwd       string            `json:"cwd,omitempty"`
	Env       map[string]string `json:"env,omitempty"`

	// Breakpoints are installed before the program starts running.
	Breakpoints []BreakpointSpec `json:"breakpoints,omitempty"`

	// StopOnEntry keeps the VM suspended until the first resume.
	StopOnEntry bool `json:"stopOnEntry,omitempty"`
}

// BreakpointSpec names a source line in a class, e.g. com.example.Main:42
type BreakpointSpec struct {
	Class string `json:"class"`
	Line  int    `json:"line"`
}

// Target names the program being launched, for logs and session listings.
func (r LaunchRequest) Target() string {
	if r.MainClass != "" {
		return r.MainClass
	}
	return r.Jar
}

// AttachRequest represents a request to attach to a JVM already listening
// for a debugger
type AttachRequest struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Address   string        `json:"address"`
	PID       int           `json:"pid,omitempty"`
	Target    string        `json:"target,omitempty"`
	VM        string        `json:"vm,omitempty"`
	Launched  bool          `json:"launched"`
}

// ThreadInfo represents information about a thread
type ThreadInfo struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Suspended bool   `json:"suspended"`
}

// StackFrame represents a stack frame
type StackFrame struct {
	Index  int    `json:"index"`
	Class  string `json:"class"`
	Method string `json:"method"`
	Source string `json:"source,omitempty"`
	Line   int    `json:"line"`
}

// Variable represents a local variable, argument, or field value
type Variable struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Argument bool   `json:"argument,omitempty"`
}

// Breakpoint represents a line breakpoint. Pending breakpoints wait for
// their class to be prepared.
type Breakpoint struct {
	ID        int    `json:"id"`
	Class     string `json:"class"`
	Line      int    `json:"line"`
	Verified  bool   `json:"verified"`
	Locations int    `json:"locations"`
	Message   string `json:"message,omitempty"`
}

// ClassInfo describes one loaded reference type
type ClassInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Status string `json:"status,omitempty"`
}

// EventInfo describes one event that stopped or ended the target
type EventInfo struct {
	Kind       string `json:"kind"`
	ThreadID   uint64 `json:"threadId,omitempty"`
	ThreadName string `json:"threadName,omitempty"`
	Class      string `json:"class,omitempty"`
	Method     string `json:"method,omitempty"`
	Line       int    `json:"line,omitempty"`
	Breakpoint int    `json:"breakpoint,omitempty"`
	Exception  string `json:"exception,omitempty"`
	Caught     bool   `json:"caught,omitempty"`
}

// DebugSnapshot represents the state of one stopped thread
type DebugSnapshot struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	Threads   []ThreadInfo  `json:"threads"`
	Thread    uint64        `json:"thread,omitempty"`
	Frames    []StackFrame  `json:"frames,omitempty"`
	Variables []Variable    `json:"variables,omitempty"`
	LastEvent *EventInfo    `json:"lastEvent,omitempty"`
}
