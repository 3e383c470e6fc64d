// Package orchestrator drives modules and plugins through their
// lifecycle states (spec §4.5): discover, validate, resolve, initialize
// modules, load plugins, export methods, start plugins, update pump,
// shutdown — enforcing preconditions and propagating failures with
// cascade-skip semantics. It is grounded on the phased startup sequence
// and registry/discovery patterns of internal/plugins/runtime_v2.go and
// internal/plugins/discovery.go, generalized from StreamSpace's single
// Go-plugin model to the polyglot module/plugin split spec §3 describes.
package orchestrator

import (
	"time"

	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/provider"
)

// CapabilityTable declares which optional lifecycle callbacks a module or
// plugin implements, so the orchestrator never calls an absent method.
type CapabilityTable struct {
	HasUpdate       bool
	HasPluginStart  bool
	HasPluginUpdate bool
	HasPluginEnd    bool
	HasMethodExport bool
}

// MethodBinding pairs a declared Method with the native function pointer
// the owning language module bound it to.
type MethodBinding struct {
	Method     manifest.Method
	NativeAddr uintptr
}

// InitResult is returned by a successful LanguageModule.Initialize.
type InitResult struct {
	Capabilities CapabilityTable
}

// LoadResult is returned by a successful LanguageModule.OnPluginLoad.
type LoadResult struct {
	Methods      []MethodBinding
	UserData     uintptr
	Capabilities CapabilityTable
}

// LanguageModule is the vtable a shared library embedding a language
// runtime must implement (spec §6): the library exports a well-known
// symbol, GetLanguageModule, returning one of these. Every method here
// runs on the host thread and is host-thread-synchronous; none may
// block indefinitely without blocking the host (spec §5).
type LanguageModule interface {
	Initialize(p provider.Provider, module ModuleHandle) (InitResult, error)
	Shutdown()
	OnUpdate(dt time.Duration)
	OnPluginLoad(plugin PluginHandle) (LoadResult, error)
	OnPluginStart(plugin PluginHandle)
	OnPluginUpdate(plugin PluginHandle, dt time.Duration)
	OnPluginEnd(plugin PluginHandle)
	OnMethodExport(plugin PluginHandle)
	IsDebugBuild() bool
}

// LanguageModuleFactory produces a LanguageModule instance; it is the Go
// type a native module's GetLanguageModule symbol is expected to satisfy,
// and the type builtin (in-process) modules register under, mirroring
// internal/plugins/registry.go's GlobalPluginRegistry factory pattern.
type LanguageModuleFactory func() LanguageModule

// ModuleHandle is a non-owning reference to a registered Module, valid
// only for the duration of the callback in which it was received.
type ModuleHandle struct {
	name string
	orch *Orchestrator
}

func (h ModuleHandle) Name() string { return h.name }

// PluginHandle is a non-owning reference to a registered Plugin.
type PluginHandle struct {
	name string
	orch *Orchestrator
}

func (h PluginHandle) Name() string { return h.name }
