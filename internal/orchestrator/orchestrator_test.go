package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/nativeloader"
	"github.com/streamspace/plugify/internal/provider"
	"github.com/streamspace/plugify/internal/resolvecache"
	"github.com/streamspace/plugify/internal/semver"
)

// fakeManifestSource returns a fixed manifest set, mirroring how a real
// filesystem or registry-backed ManifestSource would behave.
type fakeManifestSource struct {
	manifests []manifest.Manifest
	err       error
}

func (s *fakeManifestSource) Discover(ctx context.Context) ([]manifest.Manifest, error) {
	return s.manifests, s.err
}

// fakeLanguageModule is a minimal in-process LanguageModule for tests
// that never touch a real shared library.
type fakeLanguageModule struct {
	name string

	initErr   error
	loadErr   error
	methods   []MethodBinding
	updates   int
	started   []string
	ended     []string
	shutdowns int

	onMethodExport func(plugin PluginHandle)
}

func (f *fakeLanguageModule) Initialize(p provider.Provider, module ModuleHandle) (InitResult, error) {
	if f.initErr != nil {
		return InitResult{}, f.initErr
	}
	return InitResult{Capabilities: CapabilityTable{HasUpdate: true, HasPluginStart: true, HasPluginUpdate: true, HasPluginEnd: true, HasMethodExport: true}}, nil
}

func (f *fakeLanguageModule) Shutdown() { f.shutdowns++ }

func (f *fakeLanguageModule) OnUpdate(dt time.Duration) { f.updates++ }

func (f *fakeLanguageModule) OnPluginLoad(plugin PluginHandle) (LoadResult, error) {
	if f.loadErr != nil {
		return LoadResult{}, f.loadErr
	}
	return LoadResult{
		Methods:      f.methods,
		Capabilities: CapabilityTable{HasPluginStart: true, HasPluginUpdate: true, HasPluginEnd: true, HasMethodExport: true},
	}, nil
}

func (f *fakeLanguageModule) OnPluginStart(plugin PluginHandle) { f.started = append(f.started, plugin.Name()) }
func (f *fakeLanguageModule) OnPluginEnd(plugin PluginHandle)   { f.ended = append(f.ended, plugin.Name()) }
func (f *fakeLanguageModule) OnPluginUpdate(plugin PluginHandle, dt time.Duration) {}

func (f *fakeLanguageModule) OnMethodExport(plugin PluginHandle) {
	if f.onMethodExport != nil {
		f.onMethodExport(plugin)
	}
}
func (f *fakeLanguageModule) IsDebugBuild() bool                                   { return false }

func moduleManifest(name, language string) *manifest.ModuleManifest {
	return moduleManifestWithDeps(name, language)
}

func moduleManifestWithDeps(name, language string, deps ...manifest.Dependency) *manifest.ModuleManifest {
	return &manifest.ModuleManifest{
		Common:             manifest.Common{Name: name, Version: semver.MustParse("1.0.0"), Dependencies: deps},
		Language:           language,
		RuntimeLibraryPath: "builtin",
	}
}

func pluginManifest(name, language string, deps ...manifest.Dependency) *manifest.PluginManifest {
	return &manifest.PluginManifest{
		Common:   manifest.Common{Name: name, Version: semver.MustParse("1.0.0"), Dependencies: deps},
		Language: language,
		Entry:    "main",
		Methods: []manifest.Method{
			{Name: "run", Return: manifest.Property{Type: manifest.Int32}},
		},
	}
}

func newTestOrchestrator() *Orchestrator {
	return New(zerolog.Nop(), nativeloader.New(), Options{Platform: "linux"})
}

func TestRunInitializesModuleThenLoadsAndStartsPlugin(t *testing.T) {
	lm := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x1000}}}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	require.False(t, report.Aborted)

	mod, ok := o.Module("mod-a")
	require.True(t, ok)
	assert.Equal(t, ModuleLoaded, mod.State)

	plug, ok := o.Plugin("plugin-a")
	require.True(t, ok)
	assert.Equal(t, PluginRunning, plug.State)
	assert.Contains(t, lm.started, "plugin-a")
}

func TestRunAbortsOnBlockingDependencyIssue(t *testing.T) {
	o := newTestOrchestrator()
	source := &fakeManifestSource{manifests: []manifest.Manifest{
		pluginManifest("plugin-a", "lua", manifest.Dependency{Name: "missing-thing", Optional: false}),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, report.Aborted)
	assert.Equal(t, "resolve", report.AbortedAt)
}

func TestRunModuleInitFailureSkipsDependentPlugin(t *testing.T) {
	lm := &fakeLanguageModule{initErr: assertErr("boom")}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	require.False(t, report.Aborted)

	mod, _ := o.Module("mod-a")
	assert.Equal(t, ModuleError, mod.State)

	plug, ok := o.Plugin("plugin-a")
	require.True(t, ok)
	assert.Equal(t, PluginSkipped, plug.State)
}

func TestRunPluginDependencyCascadeSkip(t *testing.T) {
	lm := &fakeLanguageModule{loadErr: assertErr("load failed")}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
		pluginManifest("plugin-b", "lua", manifest.Dependency{Name: "plugin-a", Optional: false}),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	require.False(t, report.Aborted)

	a, _ := o.Plugin("plugin-a")
	assert.Equal(t, PluginError, a.State)

	b, ok := o.Plugin("plugin-b")
	require.True(t, ok)
	assert.Equal(t, PluginSkipped, b.State)
	assert.Contains(t, b.SkipReason, "plugin-a")
}

// TestRunModuleDependencyCascadeSkip covers spec §4.5's "all packages
// that depend on" a failed unit being marked Skipped for the
// module-depends-on-module case: mod-b declares an explicit manifest
// Dependency on mod-a, which fails to initialize.
func TestRunModuleDependencyCascadeSkip(t *testing.T) {
	a := &fakeLanguageModule{initErr: assertErr("boom")}
	b := &fakeLanguageModule{}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return a })
	o.RegisterBuiltinModule("mod-b", func() LanguageModule { return b })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		moduleManifestWithDeps("mod-b", "python", manifest.Dependency{Name: "mod-a", Optional: false}),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	require.False(t, report.Aborted)

	modA, _ := o.Module("mod-a")
	assert.Equal(t, ModuleError, modA.State)

	modB, ok := o.Module("mod-b")
	require.True(t, ok)
	assert.Equal(t, ModuleSkipped, modB.State)
	assert.Contains(t, modB.SkipReason, "mod-a")
}

// TestOnMethodExportCanFindPeerMethod proves spec §4.6's cross-plugin
// call window: FindMethod must resolve a peer's exported method from
// inside an on_method_export callback, which phase 6 runs while every
// plugin is still Loaded, strictly before any plugin reaches Running in
// phase 7.
func TestOnMethodExportCanFindPeerMethod(t *testing.T) {
	lmA := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x4242}}}
	var observedAddr uintptr
	var observedOK bool
	var observedPeerState PluginState
	lmB := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x9999}}}
	lmB.onMethodExport = func(plugin PluginHandle) {
		peer, ok := plugin.orch.Plugin("plugin-a")
		if ok {
			observedPeerState = peer.State
		}
		provider := plugin.orch.newProviderFor(plugin.name)
		observedAddr, observedOK = provider.FindMethod("plugin-a", "run")
	}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lmA })
	o.RegisterBuiltinModule("mod-b", func() LanguageModule { return lmB })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		moduleManifest("mod-b", "python"),
		pluginManifest("plugin-a", "lua"),
		pluginManifest("plugin-b", "python"),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	require.False(t, report.Aborted)

	assert.Equal(t, PluginLoaded, observedPeerState, "plugin-a must still be Loaded, not yet Running, during phase 6")
	assert.True(t, observedOK, "FindMethod must resolve a peer's method during on_method_export")
	assert.Equal(t, uintptr(0x4242), observedAddr)
}

func TestTickUpdatesLoadedModule(t *testing.T) {
	lm := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x1000}}}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
	}}
	_, err := o.Run(context.Background(), source)
	require.NoError(t, err)

	o.Tick(16 * time.Millisecond)
	assert.Equal(t, 1, lm.updates)
}

func TestShutdownEndsPluginAndShutsDownModule(t *testing.T) {
	lm := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x1000}}}

	o := newTestOrchestrator()
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
	}}
	_, err := o.Run(context.Background(), source)
	require.NoError(t, err)

	o.Shutdown()

	plug, _ := o.Plugin("plugin-a")
	assert.Equal(t, PluginUnloaded, plug.State)
	assert.Contains(t, lm.ended, "plugin-a")

	mod, _ := o.Module("mod-a")
	assert.Equal(t, ModuleNotLoaded, mod.State)
	assert.Equal(t, 1, lm.shutdowns)
}

func TestRunWithDisabledResolveCacheResolvesDirectly(t *testing.T) {
	cache, err := resolvecache.New(resolvecache.Config{Enabled: false})
	require.NoError(t, err)

	lm := &fakeLanguageModule{methods: []MethodBinding{{Method: manifest.Method{Name: "run"}, NativeAddr: 0x1000}}}
	o := New(zerolog.Nop(), nativeloader.New(), Options{Platform: "linux", ResolveCache: cache})
	o.RegisterBuiltinModule("mod-a", func() LanguageModule { return lm })

	source := &fakeManifestSource{manifests: []manifest.Manifest{
		moduleManifest("mod-a", "lua"),
		pluginManifest("plugin-a", "lua"),
	}}

	report, err := o.Run(context.Background(), source)
	require.NoError(t, err)
	assert.False(t, report.Aborted)
	assert.Equal(t, []string{"mod-a", "plugin-a"}, report.Dependency.LoadOrder)
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
