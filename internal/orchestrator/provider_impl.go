package orchestrator

import (
	"github.com/streamspace/plugify/internal/provider"
)

// newProviderFor returns the Services Facade a language module named
// owner sees during its own callbacks. Every orchestrator-owned module
// gets its own facade instance so a future per-module sandboxing policy
// (spec §9, Open Question) has somewhere to hang a per-owner allow-list
// without changing the Provider interface.
func (o *Orchestrator) newProviderFor(owner string) provider.Provider {
	return &boundProvider{orch: o, owner: owner}
}

type boundProvider struct {
	orch  *Orchestrator
	owner string
}

func (p *boundProvider) Log(severity provider.Severity, message string) {
	event := p.orch.log.Info()
	switch severity {
	case provider.SeverityDebug:
		event = p.orch.log.Debug()
	case provider.SeverityWarn:
		event = p.orch.log.Warn()
	case provider.SeverityError:
		event = p.orch.log.Error()
	}
	event.Str("owner", p.owner).Msg(message)
}

func (p *boundProvider) Config() provider.HostConfig {
	return p.orch.opts.Config
}

func (p *boundProvider) FindPlugin(name string) (provider.PluginRef, bool) {
	plug, ok := p.orch.Plugin(name)
	if !ok {
		return nil, false
	}
	return pluginRef{plug}, true
}

// pluginRef adapts *Plugin (which has a Name field) to provider.PluginRef
// (which wants a Name method); Plugin cannot implement the interface
// directly since a field and a method can't share a selector name.
type pluginRef struct{ p *Plugin }

func (r pluginRef) Name() string    { return r.p.Name }
func (r pluginRef) IsRunning() bool { return r.p.IsRunning() }

// FindMethod resolves methods on a plugin that has at least reached
// Loaded: a method is published the moment on_plugin_load hands its
// native address to the orchestrator, which is exactly what lets an
// on_method_export callback (phase 6, run while every plugin is still
// Loaded and strictly before phase 7 starts any of them) resolve a
// peer's exported method via this same call — spec §4.6's cross-plugin
// call restriction names on_method_export as the one pre-start callback
// that can do this. Plugins in any earlier or later state (NotLoaded,
// Error, Skipped, Terminating, Unloaded) have nothing published.
func (p *boundProvider) FindMethod(pluginName, methodName string) (uintptr, bool) {
	plug, ok := p.orch.Plugin(pluginName)
	if !ok || (plug.State != PluginLoaded && plug.State != PluginRunning) {
		return 0, false
	}
	for _, binding := range plug.Methods {
		if binding.Method.Name == methodName {
			return binding.NativeAddr, true
		}
	}
	return 0, false
}

func (p *boundProvider) PreferOwnSymbols() bool {
	return p.orch.opts.PreferOwnSymbols
}
