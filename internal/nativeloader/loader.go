// Package nativeloader wraps OS-level shared-library loading: open/close,
// symbol resolution, section lookup and byte-pattern scanning, per
// spec §4.1. It is grounded on the teacher's use of the standard library's
// plugin package in internal/plugins/discovery.go for open/symbol, with
// section and scan support layered on top via debug/elf, debug/macho and
// debug/pe for the platforms those formats describe.
package nativeloader

import (
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"sync"

	"github.com/streamspace/plugify/internal/apperrors"
)

// Flag composes the load-time option set; unrecognized flags on a
// platform that lacks them are silently ignored rather than rejected.
type Flag uint32

const (
	Lazy Flag = 1 << iota
	Now
	Global
	Local
	DeepBind
	NoLoad
	SearchUserDirs
	SearchSystem
	SearchDllLoadDir
)

// Section is an image section's address and size as declared in the
// image file's own section headers; Base is not relocated to where the
// runtime actually mapped the library.
type Section struct {
	Name string
	Base uintptr
	Size uint64
}

// Assembly is an opened shared library as seen by the loader.
type Assembly struct {
	Path  string
	Flags Flag

	mu       sync.RWMutex
	plug     *plugin.Plugin
	sections map[string]Section
	raw      map[string][]byte // per-section contents read from the file, used by Scan
	closed   bool
}

// Loader is the abstraction the orchestrator and JIT builder depend on;
// it is implemented by *osLoader below, and may be replaced by a fake in
// tests that never touch an actual shared library.
type Loader interface {
	Load(path string, flags Flag, searchDirs []string) (*Assembly, error)
	Symbol(asm *Assembly, name string) (uintptr, error)
	// SymbolValue looks up a symbol and returns it as the typed Go value
	// plugin.Lookup resolved, for callers (the orchestrator) that need
	// to type-assert a factory function rather than just its address —
	// the same pattern internal/plugins/discovery.go's
	// getPluginHandler used to recover a `func() PluginHandler`.
	SymbolValue(asm *Assembly, name string) (any, error)
	Section(asm *Assembly, name string) (Section, bool)
	Scan(asm *Assembly, pattern []byte, mask string, start uintptr, section string) (uintptr, bool)
	Unload(asm *Assembly) error
}

type osLoader struct{}

// New returns the platform loader backed by the standard library's
// plugin package and debug/{elf,macho,pe} for section introspection.
func New() Loader { return &osLoader{} }

// Load opens a shared library. On platforms/architectures where the
// standard library's plugin package is unsupported, Load returns a
// LoaderError and no Assembly, so Section/Scan are not available for
// that image either. Section metadata is read from the file only after
// plugin.Open succeeds; a NoLoad Assembly has no sections.
func (l *osLoader) Load(path string, flags Flag, searchDirs []string) (*Assembly, error) {
	resolved, err := resolvePath(path, flags, searchDirs)
	if err != nil {
		return nil, &apperrors.LoaderError{Path: path, Message: err.Error(), Err: err}
	}

	if flags&NoLoad != 0 {
		// Validate that the image exists and is readable without
		// actually linking it into the process.
		if _, err := os.Stat(resolved); err != nil {
			return nil, &apperrors.LoaderError{Path: resolved, Message: "image not found", Err: err}
		}
		return &Assembly{Path: resolved, Flags: flags, sections: map[string]Section{}}, nil
	}

	p, err := plugin.Open(resolved)
	if err != nil {
		return nil, &apperrors.LoaderError{Path: resolved, Message: "failed to open shared library", Err: err}
	}

	asm := &Assembly{Path: resolved, Flags: flags, plug: p}
	asm.sections, asm.raw, err = readSections(resolved)
	if err != nil {
		// Section metadata is best-effort: a library still loads even
		// if we can't parse its own image format for section/scan use.
		asm.sections = map[string]Section{}
	}
	return asm, nil
}

func resolvePath(path string, flags Flag, searchDirs []string) (string, error) {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	if flags&SearchUserDirs != 0 {
		for _, dir := range searchDirs {
			candidate := filepath.Join(dir, path)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("shared library %q not found in any search directory", path)
}

// Symbol looks up an exported symbol by name. The returned value is the
// address of the Go variable/function plugin.Lookup resolved, expressed
// as a uintptr for uniformity with the native-pointer contract the rest
// of the core expects; callers that need to call through it go via
// internal/jit, which knows how to turn a *Method's declared native_addr
// into a callable trampoline.
func (l *osLoader) Symbol(asm *Assembly, name string) (uintptr, error) {
	asm.mu.RLock()
	defer asm.mu.RUnlock()
	if asm.closed {
		return 0, &apperrors.LoaderError{Path: asm.Path, Message: "assembly is unloaded"}
	}
	if asm.plug == nil {
		return 0, &apperrors.LoaderError{Path: asm.Path, Message: "assembly opened with NoLoad; no symbols available"}
	}
	sym, err := asm.plug.Lookup(name)
	if err != nil {
		return 0, &apperrors.LoaderError{Path: asm.Path, Message: "symbol " + name + " not found", Err: err}
	}
	return symbolAddress(sym), nil
}

func (l *osLoader) SymbolValue(asm *Assembly, name string) (any, error) {
	asm.mu.RLock()
	defer asm.mu.RUnlock()
	if asm.closed {
		return nil, &apperrors.LoaderError{Path: asm.Path, Message: "assembly is unloaded"}
	}
	if asm.plug == nil {
		return nil, &apperrors.LoaderError{Path: asm.Path, Message: "assembly opened with NoLoad; no symbols available"}
	}
	sym, err := asm.plug.Lookup(name)
	if err != nil {
		return nil, &apperrors.LoaderError{Path: asm.Path, Message: "symbol " + name + " not found", Err: err}
	}
	return sym, nil
}

func (l *osLoader) Section(asm *Assembly, name string) (Section, bool) {
	asm.mu.RLock()
	defer asm.mu.RUnlock()
	s, ok := asm.sections[name]
	return s, ok
}

// Scan performs a byte-pattern scan with a wildcard mask ('?' = any byte,
// 'x' = exact match) inside the named section, starting at start (an
// offset into the section, or 0 for the beginning). The scan runs over
// that section's own bytes only — a request for ".rdata" never touches
// ".text"'s contents, even though both are file-offset-relative to the
// same image.
func (l *osLoader) Scan(asm *Assembly, pattern []byte, mask string, start uintptr, section string) (uintptr, bool) {
	asm.mu.RLock()
	defer asm.mu.RUnlock()
	sec, ok := asm.sections[section]
	if !ok || len(pattern) == 0 || len(pattern) != len(mask) {
		return 0, false
	}
	data := asm.raw[section]
	if data == nil {
		return 0, false
	}

	for offset := int(start); offset+len(pattern) <= len(data); offset++ {
		if matchesAt(data, offset, pattern, mask) {
			return sec.Base + uintptr(offset), true
		}
	}
	return 0, false
}

func matchesAt(data []byte, offset int, pattern []byte, mask string) bool {
	for i := range pattern {
		if mask[i] == '?' {
			continue
		}
		if data[offset+i] != pattern[i] {
			return false
		}
	}
	return true
}

// Unload releases the library. Per spec §4.1, subsequent symbol lookups
// are undefined; Go's plugin package never actually unmaps a loaded
// plugin (it has no Close), so Unload here only marks the Assembly
// unusable from the loader's side — the caller (the orchestrator) is
// responsible for releasing every trampoline and peer reference that
// points into this assembly before calling Unload, per the
// plugins -> trampolines -> modules -> assemblies teardown order.
func (l *osLoader) Unload(asm *Assembly) error {
	asm.mu.Lock()
	defer asm.mu.Unlock()
	asm.closed = true
	asm.plug = nil
	asm.raw = nil
	return nil
}

func readSections(path string) (map[string]Section, map[string][]byte, error) {
	switch runtime.GOOS {
	case "linux", "android":
		return readELFSections(path)
	case "darwin", "ios":
		return readMachOSections(path)
	case "windows":
		return readPESections(path)
	default:
		return map[string]Section{}, nil, fmt.Errorf("unsupported platform %s for section introspection", runtime.GOOS)
	}
}

func readELFSections(path string) (map[string]Section, map[string][]byte, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sections := make(map[string]Section, len(f.Sections))
	raw := make(map[string][]byte, len(f.Sections))
	for _, s := range f.Sections {
		sections[s.Name] = Section{Name: s.Name, Base: uintptr(s.Addr), Size: s.Size}
		if data, err := s.Data(); err == nil {
			raw[s.Name] = data
		}
	}
	return sections, raw, nil
}

func readMachOSections(path string) (map[string]Section, map[string][]byte, error) {
	f, err := macho.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sections := make(map[string]Section, len(f.Sections))
	raw := make(map[string][]byte, len(f.Sections))
	for _, s := range f.Sections {
		sections[s.Name] = Section{Name: s.Name, Base: uintptr(s.Addr), Size: uint64(s.Size)}
		if data, err := s.Data(); err == nil {
			raw[s.Name] = data
		}
	}
	return sections, raw, nil
}

func readPESections(path string) (map[string]Section, map[string][]byte, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sections := make(map[string]Section, len(f.Sections))
	raw := make(map[string][]byte, len(f.Sections))
	for _, s := range f.Sections {
		sections[s.Name] = Section{Name: s.Name, Base: uintptr(s.VirtualAddress), Size: uint64(s.VirtualSize)}
		if data, err := s.Data(); err == nil {
			raw[s.Name] = data
		}
	}
	return sections, raw, nil
}
