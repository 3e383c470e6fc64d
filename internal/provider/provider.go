// Package provider defines the Services Facade (spec §4.6): the small,
// read-only API surface a language module (and, indirectly through it, a
// plugin) sees during initialization and callback execution. The
// interfaces here are implemented by internal/orchestrator, which is the
// only component with enough state to answer them; this package exists
// on its own so neither internal/orchestrator's callers nor a language
// module implementation need to import the orchestrator package itself,
// mirroring the handle-to-implementation pattern spec §9 calls for.
package provider

// Severity mirrors the levels the host's logging sink (an external
// collaborator, per spec §1) accepts.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// HostConfig is the immutable, read-only path configuration the embedder
// supplies at startup (spec §6, "Environment and paths"). The core never
// reads environment variables or a config file itself.
type HostConfig struct {
	BasePath    string
	ConfigsPath string
	DataPath    string
	LogsPath    string
}

// PluginRef is a non-owning handle to a peer plugin, valid only for the
// duration of the callback in which it was acquired (spec §5, Shared-
// resource policy).
type PluginRef interface {
	Name() string
	IsRunning() bool
}

// Provider is the facade a language module receives as the first
// argument to Initialize, and that it may retain (as a weak reference)
// for the lifetime of its own callbacks.
type Provider interface {
	// Log records a message at the given severity through the host's
	// logging sink.
	Log(severity Severity, message string)

	// Config returns the immutable host path configuration.
	Config() HostConfig

	// FindPlugin looks up a peer plugin by name, whatever its state.
	FindPlugin(name string) (PluginRef, bool)

	// FindMethod looks up a named exported method on a peer plugin,
	// returning the native address the plugin's language module reported
	// for that method from on_plugin_load (no JIT trampoline is built for
	// it), or ok=false if the plugin or method does not exist or the
	// plugin is neither Loaded nor Running.
	FindMethod(pluginName, methodName string) (nativeAddr uintptr, ok bool)

	// PreferOwnSymbols reports whether the loader should be asked to
	// prefer a module's own symbols over already-loaded ones with the
	// same name (affects the loader's flag composition, e.g. DeepBind).
	PreferOwnSymbols() bool
}
