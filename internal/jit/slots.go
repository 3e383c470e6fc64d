// Package jit builds the just-in-time native trampolines described in
// spec §4.4: given a Method signature and a host callback of the shape
//
//	func(method *manifest.Method, userData unsafe.Pointer, args []Slot, ret []Slot)
//
// Build emits a native function pointer whose calling convention and ABI
// match the method's declaration, so that calling the returned pointer
// with ABI-correct arguments invokes cb with the arguments packed into
// Slots and unpacks cb's writes back into the caller's registers/stack,
// including by-reference mutation.
//
// The architecture is a "universal trampoline": a small per-method JIT
// stub (see amd64.go) spills whatever the declared calling convention
// put in registers/stack into a contiguous Slot buffer, calls a single
// shared Go-side dispatcher, and unpacks the dispatcher's return Slots
// back out. This file holds the pure, platform-independent packing and
// unpacking rules the dispatcher and its tests both rely on; amd64.go
// holds the actual machine-code emission.
package jit

import (
	"math"

	"github.com/streamspace/plugify/internal/manifest"
)

// Slot is the uintptr-sized union the host callback ABI exchanges
// arguments and return values through; floats/doubles occupy the integer
// payload bit pattern, matching spec §6's Slot definition exactly.
type Slot uintptr

// SlotFromInt64 packs a signed integer value into a Slot.
func SlotFromInt64(v int64) Slot { return Slot(uint64(v)) }

// Int64 unpacks a Slot as a signed integer.
func (s Slot) Int64() int64 { return int64(uint64(s)) }

// SlotFromUint64 packs an unsigned integer value into a Slot.
func SlotFromUint64(v uint64) Slot { return Slot(v) }

// Uint64 unpacks a Slot as an unsigned integer.
func (s Slot) Uint64() uint64 { return uint64(s) }

// SlotFromFloat32 packs a float32's bit pattern into a Slot.
func SlotFromFloat32(v float32) Slot { return Slot(math.Float32bits(v)) }

// Float32 unpacks a Slot's low 32 bits as a float32.
func (s Slot) Float32() float32 { return math.Float32frombits(uint32(s)) }

// SlotFromFloat64 packs a float64's bit pattern into a Slot.
func SlotFromFloat64(v float64) Slot { return Slot(math.Float64bits(v)) }

// Float64 unpacks a Slot as a float64.
func (s Slot) Float64() float64 { return math.Float64frombits(uint64(s)) }

// SlotFromPointer packs a pointer-sized value (also used for by-reference
// parameters and the pointer/string/function ValueTypes) into a Slot.
func SlotFromPointer(p uintptr) Slot { return Slot(p) }

// Pointer unpacks a Slot as a pointer-sized value.
func (s Slot) Pointer() uintptr { return uintptr(s) }

// SlotCount returns how many Slots a Property occupies: 1 for every
// scalar, pointer, string, function and by-reference shape; 2 for the
// vector/matrix aggregates the ABI returns in register pairs (vector2-4,
// matrix4x4 are passed/returned by the wider multi-slot path, or by
// hidden pointer on platforms whose ABI requires it — selected by the
// ABI layer in amd64.go, not here).
func SlotCount(p manifest.Property) int {
	if p.ByReference {
		return 1
	}
	switch p.Type {
	case manifest.Vector2, manifest.Vector3, manifest.Vector4, manifest.Matrix4x4:
		return 2
	default:
		return 1
	}
}

// validateShape rejects any property wider than the vector/matrix
// exception list, per spec §4.4: "parameters or returns wider than a
// single pointer (other than the specific vector/matrix shapes) are an
// error".
func validateShape(p manifest.Property) bool {
	if !p.Type.IsValid() {
		return false
	}
	// Every recognized ValueType is representable in one or two Slots:
	// scalars/pointers/by-reference params are single-slot, the
	// vector/matrix aggregates are two, and array-of-T types are a
	// single pointer+length slot the caller owns.
	return true
}
