package session

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/jdwp-mcp/internal/adapters"
	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp/jdwptest"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

const (
	testTimeout  = 5 * time.Second
	pollInterval = 10 * time.Millisecond
)

// Fixture identifiers.
const (
	mainClassID  = 100
	laterClassID = 101
	mainMethodID = 200
	runMethodID  = 201
	mainThreadID = 1000
	workerID     = 1001
	runFrameID   = 3000
	mainFrameID  = 3001
	receiverID   = 4000
	greetingID   = 6001
)

// populate gives the agent a small program: com.example.Main stopped in
// run(), called from main(), plus a sleeping worker thread.
func populate(a *jdwptest.Agent) {
	a.AddClass(jdwptest.Class{
		ID:        mainClassID,
		Signature: "Lcom/example/Main;",
		Source:    "Main.java",
		Methods: []jdwptest.Method{
			{
				ID:        mainMethodID,
				Name:      "main",
				Signature: "([Ljava/lang/String;)V",
				Modifiers: 9,
				Lines:     []jdwptest.Line{{Index: 0, Line: 10}, {Index: 4, Line: 11}, {Index: 8, Line: 12}},
				ArgSlots:  1,
				Vars: []jdwptest.Var{
					{Index: 0, Name: "args", Signature: "[Ljava/lang/String;", Length: 12, Slot: 0},
					{Index: 4, Name: "count", Signature: "I", Length: 8, Slot: 1},
					{Index: 4, Name: "greeting", Signature: "Ljava/lang/String;", Length: 8, Slot: 2},
				},
			},
			{
				ID:        runMethodID,
				Name:      "run",
				Signature: "()V",
				Modifiers: 1,
				Lines:     []jdwptest.Line{{Index: 0, Line: 20}, {Index: 3, Line: 21}},
				Vars:      []jdwptest.Var{},
			},
		},
	})
	a.AddThread(jdwptest.Thread{
		ID:   mainThreadID,
		Name: "main",
		Frames: []jdwptest.Frame{
			{ID: runFrameID, Class: mainClassID, Method: runMethodID, Index: 3, This: jdwptest.Object(receiverID)},
			{ID: mainFrameID, Class: mainClassID, Method: mainMethodID, Index: 4, Locals: map[int32]jdwptest.Value{
				1: jdwptest.Int(42),
				2: jdwptest.Str(greetingID),
			}},
		},
	})
	a.AddThread(jdwptest.Thread{ID: workerID, Name: "worker", Status: 2})
	a.AddObject(receiverID, mainClassID)
	a.AddString(greetingID, "hello")
}

func testLogger() (*logrus.Entry, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

func hasLog(hook *logtest.Hook, level logrus.Level, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.JDWP.ReplyTimeout = config.Duration(5 * time.Second)
	cfg.JDWP.DialTimeout = config.Duration(5 * time.Second)
	return cfg
}

func newTestManager(t *testing.T, cfg *config.Config) (*Manager, *logtest.Hook) {
	t.Helper()
	log, hook := testLogger()
	m := NewManager(cfg, adapters.NewRegistry(cfg), log)
	t.Cleanup(m.Close)
	return m, hook
}

func attachRequest(t *testing.T, a *jdwptest.Agent) types.AttachRequest {
	t.Helper()
	host, port, err := net.SplitHostPort(a.Addr())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	return types.AttachRequest{Host: host, Port: n}
}

// attached returns a session attached to a populated agent.
func attached(t *testing.T) (*Session, *jdwptest.Agent, *Manager) {
	t.Helper()
	a := jdwptest.NewAgent(t)
	populate(a)
	m, _ := newTestManager(t, testConfig())

	s, err := m.Attach(context.Background(), attachRequest(t, a))
	require.NoError(t, err)
	return s, a, m
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	var de *errors.DebugError
	require.True(t, stderrors.As(err, &de), "expected a DebugError, got %v", err)
	require.Equal(t, code, de.Code)
}

// breakpointHit sends a breakpoint event for request id at a code index of
// main().
func breakpointHit(a *jdwptest.Agent, requestID int32, index uint64) {
	a.Event(2, jdwptest.NewEncoder().
		I32(1).
		U8(2).I32(requestID).ID(mainThreadID).Location(mainClassID, mainMethodID, index))
}
