package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionStatusConstants verifies session status constant values.
func TestSessionStatusConstants(t *testing.T) {
	tests := []struct {
		status   SessionStatus
		expected string
	}{
		{SessionStatusInitializing, "initializing"},
		{SessionStatusRunning, "running"},
		{SessionStatusStopped, "stopped"},
		{SessionStatusTerminated, "terminated"},
	}

	for _, tc := range tests {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, string(tc.status))
		})
	}
}

func TestLaunchRequest_Target(t *testing.T) {
	assert.Equal(t, "com.example.Main", LaunchRequest{MainClass: "com.example.Main", Jar: "app.jar"}.Target())
	assert.Equal(t, "app.jar", LaunchRequest{Jar: "app.jar"}.Target())
	assert.Empty(t, LaunchRequest{}.Target())
}

// TestLaunchRequest_JSON verifies the field names clients send.
func TestLaunchRequest_JSON(t *testing.T) {
	data := []byte(`{
		"language": "kotlin",
		"mainClass": "com.example.MainKt",
		"classpath": ["build/classes"],
		"vmArgs": ["-Xmx256m"],
		"env": {"APP_ENV": "test"},
		"breakpoints": [{"class": "com.example.MainKt", "line": 7}],
		"stopOnEntry": true
	}`)

	var req LaunchRequest
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, LaunchRequest{
		Language:    LanguageKotlin,
		MainClass:   "com.example.MainKt",
		Classpath:   []string{"build/classes"},
		VMArgs:      []string{"-Xmx256m"},
		Env:         map[string]string{"APP_ENV": "test"},
		Breakpoints: []BreakpointSpec{{Class: "com.example.MainKt", Line: 7}},
		StopOnEntry: true,
	}, req)
}

func TestEventInfo_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(EventInfo{Kind: "vm_death"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"vm_death"}`, string(data))
}
