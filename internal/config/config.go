// Package config provides configuration management for the JDWP-MCP server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: control launch, attach, modify, and execute operations
//   - JVM launcher settings: the java binary and extra arguments
//   - Protocol settings: handshake, timeouts, packet and queue limits
//   - Safety limits: maximum sessions and session timeout
//
// Configuration can be loaded from a JSON file or use sensible defaults.
// The readonly mode exposes only inspection tools, while full mode enables
// all debugging capabilities including execution control.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/jdwp"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only inspection tools
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Duration is a time.Duration that reads from JSON as either a string such
// as "30m" or a number of nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

// Config holds the server configuration
type Config struct {
	// Capability levels
	Mode         CapabilityMode `json:"mode"`
	AllowLaunch  bool           `json:"allowLaunch"`
	AllowAttach  bool           `json:"allowAttach"`
	AllowModify  bool           `json:"allowModify"`
	AllowExecute bool           `json:"allowExecute"`

	// JVM launcher settings
	Java JavaConfig `json:"java"`

	// Wire protocol settings
	JDWP JDWPConfig `json:"jdwp"`

	// Limits for safety
	MaxSessions    int      `json:"maxSessions"`
	SessionTimeout Duration `json:"sessionTimeout"`

	// LogLevel is a logrus level name: trace, debug, info, warn or error.
	LogLevel string `json:"logLevel"`
}

// JavaConfig holds settings for launching target JVMs
type JavaConfig struct {
	Path      string   `json:"path"`
	ExtraArgs []string `json:"extraArgs"`
}

// JDWPConfig holds wire protocol settings applied to every connection
type JDWPConfig struct {
	Handshake      string   `json:"handshake"`
	DialTimeout    Duration `json:"dialTimeout"`
	ReplyTimeout   Duration `json:"replyTimeout"`
	MaxPacketSize  int      `json:"maxPacketSize"`
	EventQueueSize int      `json:"eventQueueSize"`
}

// findJava locates the java launcher, preferring JAVA_HOME over PATH
func findJava() string {
	if home := os.Getenv("JAVA_HOME"); home != "" {
		candidate := filepath.Join(home, "bin", "java")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath("java"); err == nil {
		return path
	}
	// Fall back to default name (will fail if not in PATH, but provides clear error)
	return "java"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:           ModeFull,
		AllowLaunch:    true,
		AllowAttach:    true,
		AllowModify:    true,
		AllowExecute:   true,
		MaxSessions:    10,
		SessionTimeout: Duration(30 * time.Minute),
		LogLevel:       "info",
		Java: JavaConfig{
			Path: findJava(),
		},
		JDWP: JDWPConfig{
			Handshake:      jdwp.DefaultHandshake,
			DialTimeout:    Duration(10 * time.Second),
			ReplyTimeout:   Duration(30 * time.Second),
			MaxPacketSize:  jdwp.DefaultMaxPacketSize,
			EventQueueSize: 256,
		},
	}
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports settings that cannot work
func (c *Config) Validate() error {
	if c.Mode != ModeReadOnly && c.Mode != ModeFull {
		return fmt.Errorf("invalid mode %q: expected readonly or full", c.Mode)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("maxSessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.JDWP.Handshake == "" {
		return fmt.Errorf("jdwp.handshake must not be empty")
	}
	if c.JDWP.MaxPacketSize < 11 {
		return fmt.Errorf("jdwp.maxPacketSize %d is smaller than a packet header", c.JDWP.MaxPacketSize)
	}
	if c.JDWP.EventQueueSize < 0 {
		return fmt.Errorf("jdwp.eventQueueSize must not be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level, defaulting to info
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// ConnConfig builds the protocol connection settings for one session
func (c *Config) ConnConfig(log *logrus.Entry) jdwp.Config {
	return jdwp.Config{
		Handshake:     c.JDWP.Handshake,
		MaxPacketSize: c.JDWP.MaxPacketSize,
		Logger:        log,
	}
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanLaunch returns true if launching target JVMs is allowed
func (c *Config) CanLaunch() bool {
	return c.AllowLaunch
}

// CanAttach returns true if attaching to running JVMs is allowed
func (c *Config) CanAttach() bool {
	return c.AllowAttach
}

// CanModifyVariables returns true if variable modification is allowed
func (c *Config) CanModifyVariables() bool {
	return c.Mode == ModeFull && c.AllowModify
}

// CanExecute returns true if resuming and stepping the target is allowed
func (c *Config) CanExecute() bool {
	return c.Mode == ModeFull && c.AllowExecute
}
