package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/streamspace/plugify/internal/eventbus"
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/nativeloader"
	"github.com/streamspace/plugify/internal/provider"
	"github.com/streamspace/plugify/internal/resolvecache"
)

// ManifestSource is the external collaborator the Discover phase asks
// for the current manifest set (spec §1's "manifest discovery
// (external)"); reading a config directory, a database, or a remote
// registry are all valid implementations and none of them are this
// package's concern.
type ManifestSource interface {
	Discover(ctx context.Context) ([]manifest.Manifest, error)
}

// Options configures a single Run.
type Options struct {
	Platform         manifest.Platform
	Config           provider.HostConfig
	PreferOwnSymbols bool
	AllowPartialLoad bool // if true, Run proceeds past blocking dependency issues instead of aborting
	Events           *eventbus.Bus      // optional; nil disables phase/state event publishing
	ResolveCache     *resolvecache.Cache // optional; nil or disabled skips the resolver cache entirely
}

// Orchestrator owns the Module/Plugin registries exclusively (spec §5):
// external accessors only ever receive handles, never raw state.
type Orchestrator struct {
	log    zerolog.Logger
	loader nativeloader.Loader

	mu              sync.RWMutex
	modules         map[string]*Module
	plugins         map[string]*Plugin
	languageOwners  map[string]string // language -> owning module name
	builtinFactories map[string]LanguageModuleFactory

	loadOrder []string // the last successful resolver load order, modules and plugins mixed

	opts Options
}

// New creates an Orchestrator. loader is the shared-library loader used
// for any ModuleManifest not satisfied by a registered builtin factory.
func New(log zerolog.Logger, loader nativeloader.Loader, opts Options) *Orchestrator {
	return &Orchestrator{
		log:              log.With().Str("component", "orchestrator").Logger(),
		loader:           loader,
		modules:          make(map[string]*Module),
		plugins:          make(map[string]*Plugin),
		languageOwners:   make(map[string]string),
		builtinFactories: make(map[string]LanguageModuleFactory),
		opts:             opts,
	}
}

// RegisterBuiltinModule registers an in-process language module factory
// under a module package name, so that module never needs an actual
// shared library on disk. Mirrors internal/plugins/registry.go's
// GlobalPluginRegistry.Register.
func (o *Orchestrator) RegisterBuiltinModule(name string, factory LanguageModuleFactory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.builtinFactories[name] = factory
}

// Module returns the current state of a registered module by name.
func (o *Orchestrator) Module(name string) (*Module, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.modules[name]
	return m, ok
}

// Plugin returns the current state of a registered plugin by name.
func (o *Orchestrator) Plugin(name string) (*Plugin, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.plugins[name]
	return p, ok
}

// LoadOrder returns the last successful resolver load order.
func (o *Orchestrator) LoadOrder() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.loadOrder))
	copy(out, o.loadOrder)
	return out
}

// ModuleSnapshot is a point-in-time, read-only view of a Module safe to
// hand to an external caller (the admin API) without exposing the
// live *Module or its VTable/Assembly handles.
type ModuleSnapshot struct {
	Name         string
	State        string
	BoundPlugins []string
}

// PluginSnapshot is a point-in-time, read-only view of a Plugin.
type PluginSnapshot struct {
	Name       string
	ModuleName string
	State      string
	SkipReason string
}

// Snapshot returns a read-only view of every registered module and
// plugin, for an external inspector (spec §9 supplements a read-only
// operational surface as a dropped-feature addition).
func (o *Orchestrator) Snapshot() ([]ModuleSnapshot, []PluginSnapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	modules := make([]ModuleSnapshot, 0, len(o.modules))
	for _, m := range o.modules {
		bound := make([]string, 0, len(m.BoundPlugins))
		for name := range m.BoundPlugins {
			bound = append(bound, name)
		}
		modules = append(modules, ModuleSnapshot{Name: m.Name, State: string(m.State), BoundPlugins: bound})
	}

	plugins := make([]PluginSnapshot, 0, len(o.plugins))
	for _, p := range o.plugins {
		plugins = append(plugins, PluginSnapshot{Name: p.Name, ModuleName: p.ModuleName, State: string(p.State), SkipReason: p.SkipReason})
	}

	return modules, plugins
}

func (o *Orchestrator) now() time.Time { return time.Now() }

// emitModuleState publishes a module state transition if an event bus
// is configured; a no-op otherwise.
func (o *Orchestrator) emitModuleState(name string, state ModuleState, reason string) {
	if o.opts.Events != nil {
		o.opts.Events.PublishModuleState(name, string(state), reason)
	}
}

// emitPluginState publishes a plugin state transition if an event bus
// is configured; a no-op otherwise.
func (o *Orchestrator) emitPluginState(name string, state PluginState, reason string) {
	if o.opts.Events != nil {
		o.opts.Events.PublishPluginState(name, string(state), reason)
	}
}
