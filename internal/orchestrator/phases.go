package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/streamspace/plugify/internal/apperrors"
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/nativeloader"
	"github.com/streamspace/plugify/internal/resolver"
)

// manifestSetDigest hashes a validated manifest set's name/version pairs,
// sorted for order-independence, so two Runs over an identical set of
// packages hash identically regardless of discovery order.
func manifestSetDigest(manifests []manifest.Manifest) string {
	keys := make([]string, len(manifests))
	for i, m := range manifests {
		keys[i] = m.PackageName() + "@" + m.PackageVersion().String()
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run drives phases 1-7 of spec §4.5: discover, validate, resolve,
// initialize modules, load plugins, export methods, start plugins. It
// always returns a report, even when it aborts partway through: the
// report records everything that happened before the abort.
func (o *Orchestrator) Run(ctx context.Context, source ManifestSource) (*InitializationReport, error) {
	report := &InitializationReport{}

	// Phase 1: Discover.
	start := time.Now()
	discovered, err := source.Discover(ctx)
	report.recordTiming("discover", start)
	o.emitPhase("discover", report)
	if err != nil {
		report.Aborted = true
		report.AbortedAt = "discover"
		return report, fmt.Errorf("discover: %w", err)
	}

	// Phase 2: Validate.
	start = time.Now()
	validation := manifest.ValidateSet(discovered, o.opts.Platform)
	report.recordTiming("validate", start)
	o.emitPhase("validate", report)
	report.Validation = &validationSummary{
		AcceptedCount: len(validation.Accepted),
		Errors:        validation.Errors,
	}
	for _, verr := range validation.Errors {
		o.log.Warn().Str("subject", verr.Subject).Str("message", verr.Message).Msg("manifest rejected during validation")
	}

	// Phase 3: Resolve. A configured resolver cache is consulted first,
	// keyed by a digest of the accepted manifest set, so repeated Runs
	// over the same package set (a host replica restarting, a dev-loop
	// reload) skip the solver entirely.
	start = time.Now()
	digest := manifestSetDigest(validation.Accepted)
	depReport, cacheHit := o.lookupResolveCache(ctx, digest)
	if !cacheHit {
		depReport = resolver.Resolve(validation.Accepted, o.opts.Platform)
		o.storeResolveCache(ctx, digest, depReport)
	}
	report.recordTiming("resolve", start)
	o.emitPhase("resolve", report)
	report.Dependency = depReport

	if depReport.HasBlockingIssues() && !o.opts.AllowPartialLoad {
		report.Aborted = true
		report.AbortedAt = "resolve"
		o.log.Error().Int("blockers", countBlockers(depReport)).Msg("aborting startup: blocking dependency issues and partial load is not permitted")
		return report, nil
	}

	byName := make(map[string]manifest.Manifest, len(validation.Accepted))
	for _, m := range validation.Accepted {
		byName[m.PackageName()] = m
	}

	o.mu.Lock()
	o.loadOrder = append([]string(nil), depReport.LoadOrder...)
	o.mu.Unlock()

	// Phase 4: Initialize modules, in resolver order. LoadOrder is
	// topological, so a module's hard dependencies have already been
	// processed (and their outcome recorded) by the time its own turn
	// comes up; a dependency that already ended in Error or Skipped
	// means this module is skipped outright rather than attempted.
	start = time.Now()
	for _, name := range depReport.LoadOrder {
		mm, ok := byName[name].(*manifest.ModuleManifest)
		if !ok {
			continue
		}
		var outcome UnitOutcome
		if failed, reason := o.dependencyFailed(name, depReport); failed {
			outcome = o.skipModuleDirect(mm, reason)
		} else {
			outcome = o.initializeModule(mm, depReport)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	report.recordTiming("initialize-modules", start)
	o.emitPhase("initialize-modules", report)

	// Phase 5: Load plugins, in resolver order. Same topological
	// ordering argument as phase 4 applies to a plugin's explicit
	// manifest Dependency edges.
	start = time.Now()
	for _, name := range depReport.LoadOrder {
		pm, ok := byName[name].(*manifest.PluginManifest)
		if !ok {
			continue
		}
		var outcome UnitOutcome
		if failed, reason := o.dependencyFailed(name, depReport); failed {
			outcome = o.skipPluginDirect(pm, reason)
		} else {
			outcome = o.loadPlugin(pm, depReport)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}
	report.recordTiming("load-plugins", start)
	o.emitPhase("load-plugins", report)

	// Phase 6: Export methods, in load order.
	start = time.Now()
	for _, name := range depReport.LoadOrder {
		p, ok := o.Plugin(name)
		if !ok || p.State != PluginLoaded || !p.Capabilities.HasMethodExport {
			continue
		}
		o.guardedCall(p.Name, "export-methods", func() error {
			p.VTable.OnMethodExport(PluginHandle{name: p.Name, orch: o})
			return nil
		})
	}
	report.recordTiming("export-methods", start)
	o.emitPhase("export-methods", report)

	// Phase 7: Start plugins, in load order.
	start = time.Now()
	for _, name := range depReport.LoadOrder {
		p, ok := o.Plugin(name)
		if !ok || p.State != PluginLoaded || !p.Capabilities.HasPluginStart {
			if ok && p.State == PluginLoaded {
				// No start hook declared: the plugin is still considered
				// running once loaded and exported.
				o.setPluginState(p.Name, PluginRunning, "")
			}
			continue
		}
		err := o.guardedCall(p.Name, "plugin-start", func() error {
			p.VTable.OnPluginStart(PluginHandle{name: p.Name, orch: o})
			return nil
		})
		if err != nil {
			o.setPluginState(p.Name, PluginError, "")
			o.cascadeSkipDependents(p.Name, depReport)
			continue
		}
		o.setPluginState(p.Name, PluginRunning, "")
	}
	report.recordTiming("start-plugins", start)
	o.emitPhase("start-plugins", report)

	return report, nil
}

// emitPhase publishes the timing just recorded for phase, if an event
// bus is configured.
func (o *Orchestrator) emitPhase(phase string, report *InitializationReport) {
	if o.opts.Events == nil || len(report.Timings) == 0 {
		return
	}
	last := report.Timings[len(report.Timings)-1]
	if last.Phase == phase {
		o.opts.Events.PublishPhase(phase, last.Duration)
	}
}

// lookupResolveCache consults the configured resolver cache, if any; a
// nil cache, a disabled cache, and a cache miss all report cacheHit=false.
func (o *Orchestrator) lookupResolveCache(ctx context.Context, digest string) (*resolver.DependencyReport, bool) {
	if o.opts.ResolveCache == nil || !o.opts.ResolveCache.IsEnabled() {
		return nil, false
	}
	cached, found, err := o.opts.ResolveCache.Get(ctx, digest)
	if err != nil {
		o.log.Warn().Err(err).Msg("resolver cache lookup failed, resolving directly")
		return nil, false
	}
	if found {
		o.log.Debug().Str("digest", digest).Msg("resolver cache hit")
	}
	return cached, found
}

// storeResolveCache saves a freshly computed report, if a resolver
// cache is configured; failures are logged and otherwise ignored since
// the cache is purely an optimization.
func (o *Orchestrator) storeResolveCache(ctx context.Context, digest string, report *resolver.DependencyReport) {
	if o.opts.ResolveCache == nil || !o.opts.ResolveCache.IsEnabled() {
		return
	}
	if err := o.opts.ResolveCache.Set(ctx, digest, report, resolveCacheTTL); err != nil {
		o.log.Warn().Err(err).Msg("failed to store resolver cache entry")
	}
}

const resolveCacheTTL = 10 * time.Minute

func countBlockers(r *resolver.DependencyReport) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.IsBlocker {
			n++
		}
	}
	return n
}

// initializeModule performs phase 4 for a single module.
func (o *Orchestrator) initializeModule(mm *manifest.ModuleManifest, depReport *resolver.DependencyReport) UnitOutcome {
	name := mm.Name
	module := &Module{Name: name, Manifest: mm, State: ModuleNotLoaded, BoundPlugins: map[string]bool{}}

	o.mu.Lock()
	o.modules[name] = module
	o.languageOwners[mm.Language] = name
	o.mu.Unlock()

	vtable, asm, err := o.resolveLanguageModule(mm)
	if err != nil {
		o.failModule(module, err, depReport)
		return UnitOutcome{Name: name, Kind: "module", State: string(ModuleError), Error: err}
	}
	module.VTable = vtable
	module.Assembly = asm

	if debugMismatch(vtable) {
		lerr := &apperrors.LifecycleError{Unit: name, Phase: "initialize", Message: "module build flavor does not match host build flavor"}
		o.failModule(module, lerr, depReport)
		return UnitOutcome{Name: name, Kind: "module", State: string(ModuleError), Error: lerr}
	}

	var result InitResult
	callErr := o.guardedCall(name, "initialize", func() error {
		r, err := vtable.Initialize(o.newProviderFor(name), ModuleHandle{name: name, orch: o})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if callErr != nil {
		o.failModule(module, callErr, depReport)
		return UnitOutcome{Name: name, Kind: "module", State: string(ModuleError), Error: callErr}
	}

	module.Capabilities = result.Capabilities
	module.State = ModuleLoaded
	o.emitModuleState(name, ModuleLoaded, "")
	return UnitOutcome{Name: name, Kind: "module", State: string(ModuleLoaded)}
}

// failModule marks m Error and cascades Skipped to every module or
// plugin with a hard manifest dependency (transitively) on m, per spec
// §4.5: "On failure the module enters Error and all packages that
// depend on it are marked Skipped."
func (o *Orchestrator) failModule(m *Module, err error, depReport *resolver.DependencyReport) {
	o.mu.Lock()
	m.State = ModuleError
	o.mu.Unlock()
	o.log.Error().Str("module", m.Name).Err(err).Msg("module failed to initialize")
	o.emitModuleState(m.Name, ModuleError, err.Error())
	o.cascadeSkipDependents(m.Name, depReport)
}

// resolveLanguageModule finds the LanguageModule implementation for mm:
// a registered builtin factory takes precedence over dynamic loading.
func (o *Orchestrator) resolveLanguageModule(mm *manifest.ModuleManifest) (LanguageModule, *nativeloader.Assembly, error) {
	o.mu.RLock()
	factory, isBuiltin := o.builtinFactories[mm.Name]
	o.mu.RUnlock()
	if isBuiltin {
		return factory(), nil, nil
	}

	flags := nativeloader.Now
	if o.opts.PreferOwnSymbols {
		flags |= nativeloader.DeepBind
	}
	if mm.ForceLoad {
		flags |= nativeloader.Global
	}

	asm, err := o.loader.Load(mm.RuntimeLibraryPath, flags, mm.SearchDirectories)
	if err != nil {
		return nil, nil, err
	}
	sym, err := o.loader.SymbolValue(asm, "GetLanguageModule")
	if err != nil {
		return nil, asm, err
	}
	ctor, ok := sym.(func() LanguageModule)
	if !ok {
		return nil, asm, &apperrors.LoaderError{Path: mm.RuntimeLibraryPath, Message: "GetLanguageModule has an unexpected signature"}
	}
	return ctor(), asm, nil
}

// debugMismatch is a placeholder for the "assert the host's build
// flavor matches the module's" check in spec §4.5: on platforms where
// this is detectable the host's own debug/release flavor would be
// compared against vtable.IsDebugBuild(); this build does not vary by
// flavor, so the check always passes.
func debugMismatch(vtable LanguageModule) bool { return false }

// loadPlugin performs phase 5 for a single plugin.
func (o *Orchestrator) loadPlugin(pm *manifest.PluginManifest, depReport *resolver.DependencyReport) UnitOutcome {
	name := pm.Name

	o.mu.RLock()
	ownerName, hasOwner := o.languageOwners[pm.Language]
	o.mu.RUnlock()

	plugin := &Plugin{Name: name, Manifest: pm, ModuleName: ownerName, State: PluginNotLoaded}
	o.mu.Lock()
	o.plugins[name] = plugin
	o.mu.Unlock()

	if !hasOwner {
		lerr := &apperrors.LifecycleError{Unit: name, Phase: "load", Message: "no module declares responsibility for language " + pm.Language}
		o.setPluginState(name, PluginError, "")
		o.cascadeSkipDependents(name, depReport)
		return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginError), Error: lerr}
	}

	module, _ := o.Module(ownerName)
	if module == nil || module.State != ModuleLoaded {
		o.setPluginState(name, PluginSkipped, "owning module "+ownerName+" is not Loaded")
		o.cascadeSkipDependents(name, depReport)
		return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginSkipped)}
	}
	plugin.VTable = module.VTable

	var result LoadResult
	callErr := o.guardedCall(name, "on-plugin-load", func() error {
		r, err := module.VTable.OnPluginLoad(PluginHandle{name: name, orch: o})
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if callErr != nil {
		o.setPluginState(name, PluginError, "")
		o.cascadeSkipDependents(name, depReport)
		return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginError), Error: callErr}
	}

	if err := validateLoadResult(pm, result); err != nil {
		lerr := &apperrors.LifecycleError{Unit: name, Phase: "load", Message: err.Error()}
		o.setPluginState(name, PluginError, "")
		o.cascadeSkipDependents(name, depReport)
		return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginError), Error: lerr}
	}

	plugin.Methods = result.Methods
	plugin.UserData = result.UserData
	plugin.Capabilities = result.Capabilities
	plugin.State = PluginLoaded
	o.emitPluginState(name, PluginLoaded, "")

	o.mu.Lock()
	module.BoundPlugins[name] = true
	o.mu.Unlock()

	return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginLoaded)}
}

// validateLoadResult checks that the methods OnPluginLoad returned
// correspond one-for-one, in order, to the plugin's declared exports,
// and that every native address is non-null.
func validateLoadResult(pm *manifest.PluginManifest, result LoadResult) error {
	if len(result.Methods) != len(pm.Methods) {
		return fmt.Errorf("on_plugin_load returned %d methods, manifest declares %d", len(result.Methods), len(pm.Methods))
	}
	for i, binding := range result.Methods {
		if binding.Method.Name != pm.Methods[i].Name {
			return fmt.Errorf("method %d: on_plugin_load returned %q, manifest declares %q", i, binding.Method.Name, pm.Methods[i].Name)
		}
		if binding.NativeAddr == 0 {
			return fmt.Errorf("method %q: native address is null", binding.Method.Name)
		}
	}
	return nil
}

func (o *Orchestrator) setPluginState(name string, state PluginState, reason string) {
	o.mu.Lock()
	if p, ok := o.plugins[name]; ok {
		p.State = state
		if reason != "" {
			p.SkipReason = reason
		}
	}
	o.mu.Unlock()
	o.emitPluginState(name, state, reason)
}

// dependencyFailed reports whether any of name's hard dependencies (per
// depReport.Edges) already ended in Error or Skipped, checking both
// o.modules and o.plugins since a hard dependency can be either kind of
// package. Phase 4/5 consult this before attempting a unit at all, which
// is what actually catches a module-depends-on-module edge: by the time
// cascadeSkipDependents runs for a failed dependency, a not-yet-reached
// dependent has no map entry yet for it to mark.
func (o *Orchestrator) dependencyFailed(name string, depReport *resolver.DependencyReport) (bool, string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, dep := range depReport.Edges[name] {
		if m, ok := o.modules[dep]; ok && (m.State == ModuleError || m.State == ModuleSkipped) {
			return true, "depends on " + dep + " which failed"
		}
		if p, ok := o.plugins[dep]; ok && (p.State == PluginError || p.State == PluginSkipped) {
			return true, "depends on " + dep + " which failed"
		}
	}
	return false, ""
}

// skipModuleDirect registers mm's module entry as Skipped without
// attempting initialization, for a module whose hard dependency already
// failed before this module's turn in the load order.
func (o *Orchestrator) skipModuleDirect(mm *manifest.ModuleManifest, reason string) UnitOutcome {
	name := mm.Name
	module := &Module{Name: name, Manifest: mm, State: ModuleSkipped, SkipReason: reason, BoundPlugins: map[string]bool{}}
	o.mu.Lock()
	o.modules[name] = module
	o.mu.Unlock()
	o.emitModuleState(name, ModuleSkipped, reason)
	return UnitOutcome{Name: name, Kind: "module", State: string(ModuleSkipped)}
}

// skipPluginDirect is skipModuleDirect's counterpart for a plugin.
func (o *Orchestrator) skipPluginDirect(pm *manifest.PluginManifest, reason string) UnitOutcome {
	name := pm.Name
	o.mu.RLock()
	ownerName := o.languageOwners[pm.Language]
	o.mu.RUnlock()
	plugin := &Plugin{Name: name, Manifest: pm, ModuleName: ownerName, State: PluginSkipped, SkipReason: reason}
	o.mu.Lock()
	o.plugins[name] = plugin
	o.mu.Unlock()
	o.emitPluginState(name, PluginSkipped, reason)
	return UnitOutcome{Name: name, Kind: "plugin", State: string(PluginSkipped)}
}

// cascadeSkipDependents marks every package (module or plugin) whose
// hard dependency (transitively) is name as Skipped, per spec §4.5: "On
// failure the module enters Error and all packages that depend on it
// are marked Skipped." It walks the resolver's edge map, which holds only
// hard (required) manifest Dependency edges. A plugin bound to a failed
// module only through its language has no such edge; loadPlugin marks it
// Skipped when phase 5 reaches it.
func (o *Orchestrator) cascadeSkipDependents(name string, depReport *resolver.DependencyReport) {
	if depReport == nil {
		return
	}
	dependents := make(map[string][]string)
	for pkg, deps := range depReport.Edges {
		for _, d := range deps {
			dependents[d] = append(dependents[d], pkg)
		}
	}

	reason := "depends on " + name + " which failed"
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dependent := range dependents[cur] {
			if o.skipPlugin(dependent, reason) || o.skipModule(dependent, reason) {
				queue = append(queue, dependent)
			}
		}
	}
}

// skipPlugin marks dependent Skipped if it names a known, non-terminal
// plugin, reporting whether it made a change (so the cascade continues
// walking through it).
func (o *Orchestrator) skipPlugin(dependent, reason string) bool {
	o.mu.Lock()
	p, ok := o.plugins[dependent]
	alreadyTerminal := ok && (p.State == PluginSkipped || p.State == PluginError)
	if ok && !alreadyTerminal {
		p.State = PluginSkipped
		p.SkipReason = reason
	}
	o.mu.Unlock()
	if !ok || alreadyTerminal {
		return false
	}
	o.emitPluginState(dependent, PluginSkipped, reason)
	return true
}

// skipModule is skipPlugin's counterpart for o.modules, covering a
// Module with an explicit manifest Dependency on a Module that failed
// to initialize.
func (o *Orchestrator) skipModule(dependent, reason string) bool {
	o.mu.Lock()
	m, ok := o.modules[dependent]
	alreadyTerminal := ok && (m.State == ModuleSkipped || m.State == ModuleError)
	if ok && !alreadyTerminal {
		m.State = ModuleSkipped
		m.SkipReason = reason
	}
	o.mu.Unlock()
	if !ok || alreadyTerminal {
		return false
	}
	o.emitModuleState(dependent, ModuleSkipped, reason)
	return true
}

// guardedCall invokes fn, converting any panic a language module's
// callback raises into a LifecycleError (spec §9: exceptions across the
// native boundary are forbidden and must be converted at every vtable
// call site).
func (o *Orchestrator) guardedCall(unit, phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &apperrors.LifecycleError{Unit: unit, Phase: phase, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	if callErr := fn(); callErr != nil {
		return &apperrors.LifecycleError{Unit: unit, Phase: phase, Message: callErr.Error(), Err: callErr}
	}
	return nil
}
