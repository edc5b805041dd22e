// Package version provides version information.
package version

import (
	"fmt"

	"github.com/ctagard/jdwp-mcp/internal/jdwp"
)

const (
	// Name is the server name reported to MCP clients
	Name = "jdwp-mcp"

	// Version is the current version of jdwp-mcp
	Version = "0.1.0"
)

// String describes the build for -version output
func String() string {
	return fmt.Sprintf("%s version %s (handshake %q)", Name, Version, jdwp.DefaultHandshake)
}
