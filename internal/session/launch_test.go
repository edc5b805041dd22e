//go:build unix

package session

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/jdwp-mcp/internal/adapters"
	"github.com/ctagard/jdwp-mcp/internal/jdwp/jdwptest"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// agentAdapter stands in for a JVM launcher: it runs a placeholder process
// and points the session at a scripted agent.
type agentAdapter struct {
	agent *jdwptest.Agent
}

func (f *agentAdapter) Language() types.Language { return types.LanguageJava }

func (f *agentAdapter) BuildCommandLine(req types.LaunchRequest, address string) ([]string, error) {
	return []string{"30"}, nil
}

func (f *agentAdapter) Spawn(ctx context.Context, req types.LaunchRequest) (string, *adapters.Process, error) {
	output := adapters.NewOutputBuffer(1024)
	cmd := exec.CommandContext(ctx, "sh", "-c", "echo started; exec sleep 30")
	cmd.Stdout = output
	proc, err := adapters.StartProcess(cmd, output)
	if err != nil {
		return "", nil, err
	}
	proc.Address = f.agent.Addr()
	return proc.Address, proc, nil
}

func launchManager(t *testing.T, a *jdwptest.Agent) *Manager {
	m, _ := newTestManager(t, testConfig())
	m.registry.Register(types.LanguageJava, &agentAdapter{agent: a})
	return m
}

func TestManager_Launch(t *testing.T) {
	a := jdwptest.NewAgent(t)
	populate(a)
	m := launchManager(t, a)
	ctx := testContext(t)

	s, err := m.Launch(ctx, types.LaunchRequest{
		MainClass:   "com.example.Main",
		Breakpoints: []types.BreakpointSpec{{Class: "com.example.Main", Line: 12}},
	})
	require.NoError(t, err)

	info := s.Info()
	assert.True(t, info.Launched)
	assert.NotZero(t, info.PID)
	assert.Equal(t, "com.example.Main", info.Target)
	assert.Equal(t, a.Addr(), info.Address)
	assert.Equal(t, types.SessionStatusRunning, info.Status)

	// The breakpoint goes in before the VM is resumed.
	require.Len(t, a.RequestsOf(2), 1)
	assert.Equal(t, 1, a.Resumes())
	assert.Len(t, s.Breakpoints(), 1)

	assert.Eventually(t, func() bool {
		text, _ := s.Output(0)
		return text == "started\n"
	}, testTimeout, pollInterval)

	require.NoError(t, m.Terminate(s.ID, false))
	_, exited := a.ExitCode()
	assert.True(t, exited)
	assert.Eventually(t, s.proc.Exited, testTimeout, pollInterval)
}

func TestManager_LaunchStopOnEntry(t *testing.T) {
	a := jdwptest.NewAgent(t)
	populate(a)
	m := launchManager(t, a)

	s, err := m.Launch(testContext(t), types.LaunchRequest{MainClass: "com.example.Main", StopOnEntry: true})
	require.NoError(t, err)
	assert.Zero(t, a.Resumes())
	assert.NotEqual(t, types.SessionStatusTerminated, s.Status())
}
