// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes JVM debugging through MCP tools that can be used by
// AI assistants and other MCP clients:
//
// Session Management (always available):
//   - jdwp_launch: Start a JVM under the debug agent
//   - jdwp_attach: Attach to a JVM listening for a debugger
//   - jdwp_disconnect: End a session
//   - jdwp_list_sessions: List active sessions
//
// Inspection (always available):
//   - jdwp_snapshot: Threads, stack and locals in one call
//   - jdwp_threads, jdwp_stack, jdwp_variables, jdwp_classes
//   - jdwp_wait_event: Block until the target stops or dies
//   - jdwp_output: Read the launched program's output
//   - jdwp_breakpoints: List breakpoints
//
// Control (full mode only):
//   - jdwp_breakpoint: Set or remove a line breakpoint
//   - jdwp_exception_breakpoint: Stop when exceptions are thrown
//   - jdwp_step: Step into/over/out
//   - jdwp_resume, jdwp_suspend: Resume or suspend the VM
//   - jdwp_set_variable: Modify a local variable
//   - jdwp_run_to_line: Run until a line is reached
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/adapters"
	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/session"
	"github.com/ctagard/jdwp-mcp/internal/version"
)

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer *server.MCPServer
	sessions  *session.Manager
	config    *config.Config
	log       *logrus.Entry
}

// NewServer creates a new JDWP-MCP server
func NewServer(cfg *config.Config, log *logrus.Entry) *Server {
	mcpServer := server.NewMCPServer(
		version.Name,
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		sessions:  session.NewManager(cfg, adapters.NewRegistry(cfg), log),
		config:    cfg,
		log:       log,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close ends every session
func (s *Server) Close() {
	s.sessions.Close()
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

// toolContext bounds a handler that waits on the target. Zero means no
// bound beyond the request's own context.
func toolContext(ctx context.Context, seconds float64) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, secondsDuration(seconds))
}
