package universal

import "strings"

// RenderEnvironment identifies which side of the render boundary a pass runs
// on. It is fixed for the duration of a pass.
type RenderEnvironment int

const (
	// EnvironmentClient is the browser-side pass that restores snapshots.
	EnvironmentClient RenderEnvironment = iota
	// EnvironmentServer is the pass that fetches data and extracts snapshots.
	EnvironmentServer
)

func (e RenderEnvironment) String() string {
	switch e {
	case EnvironmentServer:
		return "server"
	default:
		return "client"
	}
}

// IsServer reports whether e is the server environment.
func (e RenderEnvironment) IsServer() bool {
	return e == EnvironmentServer
}

// ParseRenderEnvironment converts "server"/"ssr" into EnvironmentServer. Any
// other value, including the empty string, is a client pass.
func ParseRenderEnvironment(value string) RenderEnvironment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "server", "ssr":
		return EnvironmentServer
	default:
		return EnvironmentClient
	}
}

// EnvironmentDetector reports whether the current pass renders on the server.
// Implementations must answer the same way for the whole pass.
type EnvironmentDetector interface {
	IsServer() bool
}

// EnvironmentFunc adapts a function to EnvironmentDetector.
type EnvironmentFunc func() bool

// IsServer implements EnvironmentDetector.
func (f EnvironmentFunc) IsServer() bool {
	if f == nil {
		return false
	}
	return f()
}

// StaticEnvironment returns a detector that always reports env.
func StaticEnvironment(env RenderEnvironment) EnvironmentDetector {
	return env
}

// Detect resolves a detector into a RenderEnvironment. A nil detector is a
// client pass.
func Detect(detector EnvironmentDetector) RenderEnvironment {
	if detector != nil && detector.IsServer() {
		return EnvironmentServer
	}
	return EnvironmentClient
}
