package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// JavaAdapter implements the Adapter interface for the java launcher
type JavaAdapter struct {
	javaPath  string
	extraArgs []string
}

// NewJavaAdapter creates a new java launcher adapter
func NewJavaAdapter(cfg config.JavaConfig) *JavaAdapter {
	javaPath := cfg.Path
	if javaPath == "" {
		javaPath = "java"
	}

	return &JavaAdapter{
		javaPath:  javaPath,
		extraArgs: cfg.ExtraArgs,
	}
}

// Language returns the language this adapter supports
func (j *JavaAdapter) Language() types.Language {
	return types.LanguageJava
}

// agentOption returns the -agentlib option that makes the target listen on
// address. The VM always starts suspended so breakpoints can be set before
// any user code runs; the session resumes it unless StopOnEntry is set.
func agentOption(address string) string {
	return "-agentlib:jdwp=transport=dt_socket,server=y,suspend=y,address=" + address
}

// BuildCommandLine builds the launcher arguments for req
func (j *JavaAdapter) BuildCommandLine(req types.LaunchRequest, address string) ([]string, error) {
	switch {
	case req.MainClass == "" && req.Jar == "":
		return nil, fmt.Errorf("either mainClass or jar is required")
	case req.MainClass != "" && req.Jar != "":
		return nil, fmt.Errorf("mainClass and jar are mutually exclusive")
	}

	args := []string{agentOption(address)}
	args = append(args, j.extraArgs...)
	args = append(args, req.VMArgs...)

	if len(req.Classpath) > 0 {
		args = append(args, "-cp", strings.Join(req.Classpath, string(os.PathListSeparator)))
	}

	if req.Jar != "" {
		args = append(args, "-jar", req.Jar)
	} else {
		args = append(args, req.MainClass)
	}

	return append(args, req.Args...), nil
}

// Spawn starts a JVM with the debug agent listening on a free local port
func (j *JavaAdapter) Spawn(ctx context.Context, req types.LaunchRequest) (string, *Process, error) {
	port, err := findAvailablePort()
	if err != nil {
		return "", nil, fmt.Errorf("failed to find available port: %w", err)
	}

	address := fmt.Sprintf("127.0.0.1:%d", port)

	args, err := j.BuildCommandLine(req, address)
	if err != nil {
		return "", nil, err
	}

	cmd := exec.CommandContext(ctx, j.javaPath, args...)
	cmd.Env = append(os.Environ(), envList(req.Env)...)
	// Explicitly disconnect stdin to prevent TTY issues when run as MCP server.
	cmd.Stdin = nil
	// The MCP protocol owns our stdout, so the target's output is captured.
	output := NewOutputBuffer(defaultOutputLimit)
	cmd.Stdout = output
	cmd.Stderr = output
	setProcAttr(cmd)

	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}

	proc, err := StartProcess(cmd, output)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start %s: %w", j.javaPath, err)
	}
	proc.Address = address

	return address, proc, nil
}

// envList renders env as KEY=value entries in a stable order
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
