// Package adapters starts target JVMs under the JDWP agent and connects to
// them.
//
// The Adapter interface describes how a launcher for one language builds
// its command line and spawns the process. Every JVM language shares the
// same agent, so the Registry maps Java, Kotlin and Scala to one
// JavaAdapter. Connect and SpawnAndConnect dial the agent with retries,
// because a freshly started JVM needs a moment before it listens.
package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/jdwp-mcp/internal/config"
	"github.com/ctagard/jdwp-mcp/internal/errors"
	"github.com/ctagard/jdwp-mcp/internal/jdwp"
	"github.com/ctagard/jdwp-mcp/pkg/types"
)

// Adapter defines the interface for language-specific JVM launchers
type Adapter interface {
	// Language returns the language this adapter supports
	Language() types.Language

	// Spawn starts the target with its debug agent listening and returns
	// the address to attach to.
	Spawn(ctx context.Context, req types.LaunchRequest) (address string, proc *Process, err error)

	// BuildCommandLine returns the launcher arguments (without the java
	// binary) for req with the agent listening on address.
	BuildCommandLine(req types.LaunchRequest, address string) ([]string, error)
}

// Registry holds all registered adapters
type Registry struct {
	adapters map[types.Language]Adapter
}

// NewRegistry creates a new adapter registry with all supported adapters
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		adapters: make(map[types.Language]Adapter),
	}

	// Kotlin and Scala compile to ordinary class files and run on the same
	// launcher.
	java := NewJavaAdapter(cfg.Java)
	r.adapters[types.LanguageJava] = java
	r.adapters[types.LanguageKotlin] = java
	r.adapters[types.LanguageScala] = java

	return r
}

// Get returns the adapter for a language. An empty language means Java.
func (r *Registry) Get(lang types.Language) (Adapter, error) {
	if lang == "" {
		lang = types.LanguageJava
	}
	adapter, ok := r.adapters[lang]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for language: %s", lang)
	}
	return adapter, nil
}

// Register registers an adapter for a language, overriding any existing adapter
func (r *Registry) Register(lang types.Language, adapter Adapter) {
	r.adapters[lang] = adapter
}

// retryDelay is the pause between attach attempts.
const retryDelay = 200 * time.Millisecond

// Connect attaches to the agent at address, retrying while the connection
// is refused. Handshake and protocol failures are not retried.
func Connect(ctx context.Context, address string, cfg jdwp.Config, maxRetries int) (*jdwp.Conn, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		var conn *jdwp.Conn
		conn, err = jdwp.Attach(ctx, address, cfg)
		if err == nil {
			return conn, nil
		}
		if !stderrors.Is(err, errors.ErrConnectFailed) || ctx.Err() != nil {
			return nil, err
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, err
		}
	}
	return nil, err
}

// SpawnAndConnect spawns the target and returns a connection to it. The
// process is killed if the connection cannot be made.
func SpawnAndConnect(ctx context.Context, adapter Adapter, req types.LaunchRequest, cfg jdwp.Config) (*jdwp.Conn, *Process, error) {
	address, proc, err := adapter.Spawn(ctx, req)
	if err != nil {
		return nil, nil, errors.LaunchFailed(req.Target(), err)
	}

	// Stop retrying as soon as the JVM exits, e.g. on a bad option.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-cctx.Done():
		}
	}()

	// 25 retries * 200ms = 5 seconds max wait
	conn, err := Connect(cctx, address, cfg, 25)
	if err != nil {
		if proc.Exited() {
			err = fmt.Errorf("target exited before accepting a debugger (%s): %s", proc.ExitStatus(), proc.Output.Tail(512))
		} else if kerr := proc.Kill(); kerr != nil {
			logger(cfg).WithError(kerr).Warn("failed to kill target after attach failure")
		}
		return nil, nil, errors.LaunchFailed(req.Target(), err)
	}

	return conn, proc, nil
}

func logger(cfg jdwp.Config) *logrus.Entry {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr := listener.Addr().(*net.TCPAddr)
	return addr.Port, nil
}
