package orchestrator

import (
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/nativeloader"
)

// ModuleState is the Module lifecycle state machine from spec §3:
// NotLoaded -> Loaded on successful init, Loaded -> NotLoaded on
// shutdown, and any state -> Error on failure; Error is terminal until
// an explicit reset. Skipped is this host's extension of §3 to modules:
// §4.5 already requires that "all packages that depend on" a failed
// unit be marked Skipped, and a package is either a Module or a Plugin,
// so a Module with a hard dependency on a failed Module needs the same
// terminal, non-Error marker Plugin already has — see cascadeSkipDependents.
type ModuleState string

const (
	ModuleNotLoaded ModuleState = "NotLoaded"
	ModuleLoaded    ModuleState = "Loaded"
	ModuleError     ModuleState = "Error"
	ModuleSkipped   ModuleState = "Skipped"
	ModuleUnknown   ModuleState = "Unknown"
)

// PluginState is the Plugin lifecycle state machine from spec §3:
// NotLoaded -> Loaded -> Running -> Terminating -> Unloaded, with Error
// reachable from any transition and Skipped assigned when a transitive
// dependency ended in Error or Skipped.
type PluginState string

const (
	PluginNotLoaded  PluginState = "NotLoaded"
	PluginLoaded     PluginState = "Loaded"
	PluginRunning    PluginState = "Running"
	PluginTerminating PluginState = "Terminating"
	PluginUnloaded   PluginState = "Unloaded"
	PluginSkipped    PluginState = "Skipped"
	PluginError      PluginState = "Error"
)

// Module is the runtime entity owning a loaded shared library (or, for a
// builtin in-process module, no assembly at all), the language module
// vtable it exposes, and the set of plugins currently bound to it.
type Module struct {
	Name         string
	Manifest     *manifest.ModuleManifest
	VTable       LanguageModule
	Capabilities CapabilityTable
	State        ModuleState
	SkipReason   string
	BoundPlugins map[string]bool
	Assembly     *nativeloader.Assembly // nil for an in-process builtin module
}

// Plugin is the runtime entity owning back-references to its Module
// (non-owning; the plugin never outlives the module's Loaded state) and
// the language module vtable responsible for it.
type Plugin struct {
	Name         string
	Manifest     *manifest.PluginManifest
	ModuleName   string
	VTable       LanguageModule
	Capabilities CapabilityTable
	UserData     uintptr
	Methods      []MethodBinding
	State        PluginState
	SkipReason   string
}

func (p *Plugin) IsRunning() bool { return p.State == PluginRunning }
