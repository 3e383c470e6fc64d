package orchestrator

import "time"

// Tick drives phase 8 of spec §4.5, the steady-state update pump: every
// Loaded module with HasUpdate gets one OnUpdate call, in load order,
// followed by every Running plugin with HasPluginUpdate, also in load
// order. A module's update always runs before any plugin update so a
// module can react to a frame boundary before its plugins observe it.
func (o *Orchestrator) Tick(dt time.Duration) {
	order := o.LoadOrder()

	for _, name := range order {
		m, ok := o.Module(name)
		if !ok || m.State != ModuleLoaded || !m.Capabilities.HasUpdate {
			continue
		}
		o.guardedCall(name, "module-update", func() error {
			m.VTable.OnUpdate(dt)
			return nil
		})
	}

	for _, name := range order {
		p, ok := o.Plugin(name)
		if !ok || p.State != PluginRunning || !p.Capabilities.HasPluginUpdate {
			continue
		}
		o.guardedCall(name, "plugin-update", func() error {
			p.VTable.OnPluginUpdate(PluginHandle{name: name, orch: o}, dt)
			return nil
		})
	}
}

// Shutdown drives phase 9: plugins end in reverse load order
// (Terminating, then Unloaded), followed by modules in reverse load
// order (Shutdown, then the owning assembly is released). A module is
// only unloaded once every plugin it owns has reached a terminal state,
// matching the plugins -> trampolines -> modules -> assemblies teardown
// order internal/nativeloader.Unload documents.
func (o *Orchestrator) Shutdown() {
	order := o.LoadOrder()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		p, ok := o.Plugin(name)
		if !ok || (p.State != PluginRunning && p.State != PluginLoaded) {
			continue
		}
		o.setPluginState(name, PluginTerminating, "")
		if p.Capabilities.HasPluginEnd {
			o.guardedCall(name, "plugin-end", func() error {
				p.VTable.OnPluginEnd(PluginHandle{name: name, orch: o})
				return nil
			})
		}
		o.setPluginState(name, PluginUnloaded, "")
	}

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		m, ok := o.Module(name)
		if !ok || m.State != ModuleLoaded {
			continue
		}
		o.guardedCall(name, "shutdown", func() error {
			m.VTable.Shutdown()
			return nil
		})

		o.mu.Lock()
		m.State = ModuleNotLoaded
		o.mu.Unlock()
		o.emitModuleState(name, ModuleNotLoaded, "")

		if m.Assembly != nil {
			if err := o.loader.Unload(m.Assembly); err != nil {
				o.log.Warn().Str("module", name).Err(err).Msg("failed to unload assembly")
			}
		}
	}
}
