package session

import (
	stderrors "errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp/jdwptest"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

func TestManager_AttachAndGet(t *testing.T) {
	a := jdwptest.NewAgent(t)
	m, hook := newTestManager(t, testConfig())

	s, err := m.Attach(testContext(t), attachRequest(t, a))
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.True(t, hasLog(hook, logrus.InfoLevel, "session attached"))

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, s.ID, list[0].SessionID)
	assert.Equal(t, a.Addr(), list[0].Address)
}

func TestManager_GetUnknown(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	_, err := m.Get("nope")
	requireCode(t, err, errors.CodeSessionNotFound)
}

func TestManager_AttachInvalidPort(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	_, err := m.Attach(testContext(t), types.AttachRequest{Port: 70000})
	requireCode(t, err, errors.CodeInvalidParameter)
}

func TestManager_AttachRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	m, _ := newTestManager(t, testConfig())
	_, err = m.Attach(testContext(t), types.AttachRequest{Port: port})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConnectFailed))

	// A failed attach does not hold a slot.
	assert.Empty(t, m.List())
	assert.Zero(t, m.pending)
}

func TestManager_SessionLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 1
	m, _ := newTestManager(t, cfg)

	first := jdwptest.NewAgent(t)
	_, err := m.Attach(testContext(t), attachRequest(t, first))
	require.NoError(t, err)

	second := jdwptest.NewAgent(t)
	_, err = m.Attach(testContext(t), attachRequest(t, second))
	requireCode(t, err, errors.CodeSessionLimitReached)
}

func TestManager_TerminateDetaches(t *testing.T) {
	a := jdwptest.NewAgent(t)
	m, _ := newTestManager(t, testConfig())
	s, err := m.Attach(testContext(t), attachRequest(t, a))
	require.NoError(t, err)

	require.NoError(t, m.Terminate(s.ID, false))
	assert.True(t, a.Disposed())
	_, killed := a.ExitCode()
	assert.False(t, killed)
	assert.Equal(t, types.SessionStatusTerminated, s.Status())

	_, err = m.Get(s.ID)
	requireCode(t, err, errors.CodeSessionNotFound)
	err = m.Terminate(s.ID, false)
	requireCode(t, err, errors.CodeSessionNotFound)
}

func TestManager_TerminateKills(t *testing.T) {
	a := jdwptest.NewAgent(t)
	m, _ := newTestManager(t, testConfig())
	s, err := m.Attach(testContext(t), attachRequest(t, a))
	require.NoError(t, err)

	require.NoError(t, m.Terminate(s.ID, true))
	code, ok := a.ExitCode()
	require.True(t, ok)
	assert.Equal(t, int32(1), code)
	assert.False(t, a.Disposed())
}

func TestManager_ExpireIdle(t *testing.T) {
	a := jdwptest.NewAgent(t)
	cfg := testConfig()
	cfg.SessionTimeout = config.Duration(time.Minute)
	m, hook := newTestManager(t, cfg)
	s, err := m.Attach(testContext(t), attachRequest(t, a))
	require.NoError(t, err)

	m.expireIdle(time.Now())
	assert.Len(t, m.List(), 1)

	m.expireIdle(time.Now().Add(2 * time.Minute))
	assert.Empty(t, m.List())
	assert.True(t, a.Disposed())
	assert.Equal(t, types.SessionStatusTerminated, s.Status())
	assert.True(t, hasLog(hook, logrus.InfoLevel, "session expired"))
}

func TestManager_Close(t *testing.T) {
	a := jdwptest.NewAgent(t)
	m, _ := newTestManager(t, testConfig())
	s, err := m.Attach(testContext(t), attachRequest(t, a))
	require.NoError(t, err)

	m.Close()
	assert.Empty(t, m.List())
	assert.Equal(t, types.SessionStatusTerminated, s.Status())
	assert.True(t, a.Disposed())
}

func TestManager_LaunchUnknownLanguage(t *testing.T) {
	m, _ := newTestManager(t, testConfig())

	_, err := m.Launch(testContext(t), types.LaunchRequest{Language: "cobol", MainClass: "Main"})
	requireCode(t, err, errors.CodeInvalidParameter)
}
