//go:build amd64

package jit

import (
	"testing"
	"unsafe"

	"github.com/streamspace/plugify/internal/manifest"
)

// TestTrampolineAddressExecutesRealMachineCode is scenario 5 exercised
// through the actual JIT-emitted bytes, not the Go dispatcher directly:
// it builds a real *Trampoline for "int add(int a, int b)" and invokes
// Trampoline.Address as a genuine SysV-convention native function
// pointer via callThroughAMD64. This is what catches a CALL rel32 whose
// displacement was never patched to the dispatcher's real address —
// TestDispatchInvokesCallbackWithPackedArgs alone cannot, since it calls
// dispatch directly.
func TestTrampolineAddressExecutesRealMachineCode(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	method := addMethod()
	var gotArgCount int
	cb := func(m *manifest.Method, userData unsafe.Pointer, args []Slot, ret []Slot) {
		gotArgCount = len(args)
		ret[0] = SlotFromInt64(args[0].Int64() + args[1].Int64())
	}

	tramp, err := rt.Build(method, cb, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := callThroughAMD64(tramp.Address, 3, 4)
	if int64(got) != 7 {
		t.Errorf("trampoline(3, 4) = %d, want 7", int64(got))
	}
	if gotArgCount != 2 {
		t.Errorf("arg_count observed by callback = %d, want 2", gotArgCount)
	}
}

// TestTrampolineAddressByReferenceMutation is scenario 6 through real
// machine code: a by-reference int parameter whose callback writes 42
// through the pointer is visible to the caller once the real native
// call returns.
func TestTrampolineAddressByReferenceMutation(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	method := &manifest.Method{
		Name:       "write42",
		Parameters: []manifest.Property{{Type: manifest.Int32, ByReference: true}},
		Return:     manifest.Property{Type: manifest.Void},
	}
	cb := func(m *manifest.Method, userData unsafe.Pointer, args []Slot, ret []Slot) {
		ptr := (*int32)(unsafe.Pointer(args[0].Pointer()))
		*ptr = 42
	}

	tramp, err := rt.Build(method, cb, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var callerVar int32 = 0
	callThroughAMD64(tramp.Address, uintptr(unsafe.Pointer(&callerVar)), 0)

	if callerVar != 42 {
		t.Errorf("caller variable = %d, want 42", callerVar)
	}
}

// TestTrampolineAddressSixIntegerArguments exercises the R8/R9 spill
// path (the fifth and sixth SysV integer argument registers), which
// needs REX.R rather than REX.B to encode correctly — see
// movRegToStack's doc comment.
func TestTrampolineAddressSixIntegerArguments(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()

	method := &manifest.Method{
		Name: "sum6",
		Parameters: []manifest.Property{
			{Type: manifest.Int32}, {Type: manifest.Int32}, {Type: manifest.Int32},
			{Type: manifest.Int32}, {Type: manifest.Int32}, {Type: manifest.Int32},
		},
		Return: manifest.Property{Type: manifest.Int32},
	}
	cb := func(m *manifest.Method, userData unsafe.Pointer, args []Slot, ret []Slot) {
		var sum int64
		for _, a := range args {
			sum += a.Int64()
		}
		ret[0] = SlotFromInt64(sum)
	}

	tramp, err := rt.Build(method, cb, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := callThroughAMD64Six(tramp.Address, 1, 2, 3, 4, 5, 6)
	if int64(got) != 21 {
		t.Errorf("sum6(1..6) = %d, want 21", int64(got))
	}
}
