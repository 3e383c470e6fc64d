package jit

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/streamspace/plugify/internal/apperrors"
	"github.com/streamspace/plugify/internal/manifest"
)

// HostCallback is the host's language-agnostic callback shape from
// spec §6: it receives the method being invoked, the opaque user_data
// supplied at Build time, the packed argument Slots, the argument count,
// and a return Slot buffer to fill. A by-reference parameter's Slot holds
// the caller's own pointer, so whatever the callback writes through it
// lands directly in the caller's storage; the trampoline makes no copy
// of its own, and the callback does not need to know anything about the
// caller's registers or stack.
type HostCallback func(method *manifest.Method, userData unsafe.Pointer, args []Slot, ret []Slot)

// Trampoline is a built native function pointer plus the bookkeeping the
// runtime needs to keep it alive and to release it at teardown.
type Trampoline struct {
	Method  *manifest.Method
	Address uintptr // the native function pointer; valid until Release

	runtime *Runtime
	slot    int
}

// Release invalidates the trampoline. Trampolines are owned by the JIT
// runtime and are only meaningfully released in bulk, when the runtime
// that emitted them is destroyed (spec §3, Ownership) — the Release
// method exists for the rare case a single method is being replaced
// ahead of full teardown.
func (t *Trampoline) Release() {
	t.runtime.release(t.slot)
}

// Builder is the spec §4.4 contract: translate a Method + HostCallback +
// user_data into a native function pointer of the declared signature.
// Builder is implemented by *Runtime.
type Builder interface {
	Build(method *manifest.Method, cb HostCallback, userData unsafe.Pointer) (*Trampoline, error)
}

// dispatchEntry is what the shared dispatcher (dispatch, below)
// looks up by slot index when a per-method micro-stub jumps into it.
type dispatchEntry struct {
	method   *manifest.Method
	cb       HostCallback
	userData unsafe.Pointer
}

// Runtime is the process-wide JIT runtime: explicit init on first
// trampoline request, explicit teardown at host shutdown after all
// plugins have unloaded (spec §9, "Global state"). It is internally
// synchronized so a new trampoline may be requested from any thread;
// the function pointers it produces require no further synchronization
// to call.
type Runtime struct {
	mu      sync.Mutex
	entries []*dispatchEntry // indexed by slot; nil once released
	pages   []*codePage
}

// NewRuntime creates a JIT runtime. Call Close when the host has
// unloaded every plugin and module that might still reference a
// trampoline this runtime produced.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// Build validates method against the ABI rules in spec §4.4 and, if
// supported, emits a native trampoline. No partial function pointer is
// ever published: on any validation failure Build returns a JitError and
// no code is emitted.
func (r *Runtime) Build(method *manifest.Method, cb HostCallback, userData unsafe.Pointer) (*Trampoline, error) {
	if err := validateMethod(method); err != nil {
		return nil, err
	}
	conv, err := resolveConvention(method.CallingConvention)
	if err != nil {
		return nil, &apperrors.JitError{Method: method.Name, Message: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.allocSlot(&dispatchEntry{method: method, cb: cb, userData: userData})
	addr, err := r.emit(slot, method, conv)
	if err != nil {
		r.entries[slot] = nil
		return nil, &apperrors.JitError{Method: method.Name, Message: err.Error()}
	}

	return &Trampoline{Method: method, Address: addr, runtime: r, slot: slot}, nil
}

func (r *Runtime) allocSlot(e *dispatchEntry) int {
	for i, existing := range r.entries {
		if existing == nil {
			r.entries[i] = e
			return i
		}
	}
	r.entries = append(r.entries, e)
	return len(r.entries) - 1
}

func (r *Runtime) release(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= 0 && slot < len(r.entries) {
		r.entries[slot] = nil
	}
}

// Close releases every JIT-allocated executable page. It must only be
// called once every trampoline this runtime produced is provably
// unreachable (all plugins unloaded).
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, p := range r.pages {
		if err := p.free(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.pages = nil
	r.entries = nil
	return firstErr
}

func validateMethod(m *manifest.Method) error {
	if m == nil {
		return &apperrors.JitError{Method: "<nil>", Message: "method must not be nil"}
	}
	for i, p := range m.Parameters {
		if !validateShape(p) {
			return &apperrors.JitError{Method: m.Name, Message: fmt.Sprintf("parameter %d has an unsupported shape for type %q", i, p.Type)}
		}
	}
	if !validateShape(m.Return) {
		return &apperrors.JitError{Method: m.Name, Message: fmt.Sprintf("return has an unsupported shape for type %q", m.Return.Type)}
	}
	return nil
}

// Convention is the resolved calling convention a trampoline was built
// for.
type Convention string

const (
	CDecl      Convention = "cdecl"
	StdCall    Convention = "stdcall"
	FastCall   Convention = "fastcall"
	ThisCall   Convention = "thiscall"
	VectorCall Convention = "vectorcall"
)

func resolveConvention(declared string) (Convention, error) {
	switch Convention(declared) {
	case "":
		return CDecl, nil // host default on every platform this runtime targets
	case CDecl, StdCall, FastCall, ThisCall, VectorCall:
		return Convention(declared), nil
	default:
		return "", fmt.Errorf("unrecognized calling convention %q", declared)
	}
}

// dispatch is the single Go-side entry point every JIT-emitted micro-stub
// calls into once it has spilled its caller's arguments into a Slot
// buffer. The stub calls dispatchBridge (dispatch_amd64.s), which
// forwards to dispatchBridgeGo (bridge_amd64.go), which calls dispatch,
// so raw machine code reaches Go without cgo.
func dispatch(slot int32, args []Slot, ret []Slot) {
	globalRuntimeRegistry.mu.Lock()
	rt := globalRuntimeRegistry.byPage[slot]
	globalRuntimeRegistry.mu.Unlock()
	if rt == nil {
		return
	}

	rt.mu.Lock()
	var e *dispatchEntry
	if int(slot) < len(rt.entries) {
		e = rt.entries[slot]
	}
	rt.mu.Unlock()
	if e == nil {
		return
	}

	e.cb(e.method, e.userData, args, ret)
}

// globalRuntimeRegistry lets the shared assembly dispatcher (which only
// knows a process-wide slot index, not a *Runtime) find which Runtime
// owns a given slot. Indexing by slot is safe across Runtimes because
// Runtime.emit reserves a disjoint slot range per runtime instance at
// page-allocation time.
var globalRuntimeRegistry = struct {
	mu     sync.Mutex
	byPage map[int32]*Runtime
}{byPage: map[int32]*Runtime{}}
