//go:build amd64

package jit

import (
	"reflect"
	"unsafe"
)

// dispatchBridge is the one real entry point a JIT-emitted per-method
// stub (buildAMD64Stub, in amd64.go) calls into. It is implemented in
// dispatch_amd64.s using Go's plain stack-passed (ABI0) calling
// convention, which this package fully controls on both ends: the
// hand-assembled stub writes its outgoing call frame in exactly that
// layout before executing CALL, so there is no need to reverse-engineer
// the compiler's internal register ABI (which is unstable across Go
// versions) to cross from raw machine code into Go.
//
//go:noescape
func dispatchBridge(slot, argsPtr, argCount, retPtr uintptr)

// dispatchBridgeGo is a normal Go function dispatchBridge forwards into
// — calling a sibling Go function by its base (ABI0) symbol from
// assembly is the standard, compiler-supported way assembly crosses
// into Go, the same mechanism the runtime's own .s files use. It unpacks
// the raw pointers into the Slot slices dispatch expects.
func dispatchBridgeGo(slot, argsPtr, argCount, retPtr uintptr) {
	var args []Slot
	if argCount > 0 {
		args = unsafe.Slice((*Slot)(unsafe.Pointer(argsPtr)), int(argCount))
	}
	ret := unsafe.Slice((*Slot)(unsafe.Pointer(retPtr)), 2)
	dispatch(int32(slot), args, ret)
}

// dispatchBridgeAddr returns dispatchBridge's entry address for
// buildAMD64Stub's CALL relocation. dispatchBridge has no Go-level body
// of its own — it exists only as the machine code dispatch_amd64.s
// assembles — so its func value's code pointer is unambiguously that
// one entry point; there is no ABI0/ABIInternal split to worry about the
// way there would be for a function the compiler generated a body for.
func dispatchBridgeAddr() uintptr {
	return reflect.ValueOf(dispatchBridge).Pointer()
}
