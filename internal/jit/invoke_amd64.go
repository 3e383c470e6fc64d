//go:build amd64

package jit

// callThroughAMD64 invokes fn as a genuine SysV AMD64 function taking
// two integer arguments in RDI/RSI and returning an integer in RAX — the
// exact convention buildAMD64Stub's emitted stubs present to their own
// caller. It exists so tests can prove a JIT-built Trampoline.Address is
// a real, callable native function pointer rather than only exercising
// the Go dispatcher directly; implemented in invoke_amd64.s.
//
//go:noescape
func callThroughAMD64(fn, a0, a1 uintptr) uintptr

// callThroughAMD64Six is callThroughAMD64 extended to all six SysV
// integer argument registers (RDI, RSI, RDX, RCX, R8, R9), used to prove
// the fifth/sixth argument's R8/R9 spill encoding (movRegToStack) is
// correct through real machine code, not just the direct dispatch path.
//
//go:noescape
func callThroughAMD64Six(fn, a0, a1, a2, a3, a4, a5 uintptr) uintptr
