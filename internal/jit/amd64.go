//go:build amd64

package jit

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/streamspace/plugify/internal/manifest"
	"golang.org/x/sys/unix"
)

// This file emits the actual per-method native trampoline for amd64. The
// current emitter supports the System V integer/pointer argument class
// only (the scalar integers, bool, char8/16, pointer, string and
// function slots, and by-reference parameters of any type, all of which
// are single pointer-sized slots): spec §4.4 explicitly allows any
// unsupported ABI/type combination to fail with a JitError rather than
// publish a partial function, so float/double/vector/matrix arguments
// and returns are rejected here rather than mis-emitted. Widening this
// to the SSE argument class and the vector/matrix register-pair return
// rules is mechanical but unimplemented.
//
// The emitted stub spills the first N integer argument registers
// (RDI, RSI, RDX, RCX, R8, R9 in System V order — the same registers
// under any of cdecl/fastcall/stdcall/thiscall/vectorcall's integer
// class on this platform) into a Slot buffer on its own stack frame,
// writes (slot, argsPtr, argCount, retPtr) into a second, adjacent frame
// region using Go's plain stack-passed (ABI0) calling convention, and
// CALLs dispatchBridge (dispatch_amd64.s) with that frame. dispatchBridge
// forwards into dispatchBridgeGo, a normal Go function, which builds the
// Slot slices and invokes the registered HostCallback. The emitted CALL's
// rel32 displacement is patched with dispatchBridge's real address once
// the stub is placed in its code page — see emit below — rather than
// left as a placeholder. The stub then loads the return buffer's first
// slot into RAX before returning. By-reference parameters need no
// special handling here: the pointer itself is the slot value, and the
// callback mutates the pointee directly.
const pageSize = 4096

type codePage struct {
	mem    []byte
	offset int
}

func newCodePage() (*codePage, error) {
	mem, err := unix.Mmap(-1, 0, pageSize, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap executable page: %w", err)
	}
	return &codePage{mem: mem}, nil
}

func (p *codePage) write(code []byte) (uintptr, error) {
	if p.offset+len(code) > len(p.mem) {
		return 0, fmt.Errorf("code page exhausted (need %d bytes, %d remaining)", len(code), len(p.mem)-p.offset)
	}
	copy(p.mem[p.offset:], code)
	addr := uintptr(unsafe.Pointer(&p.mem[p.offset]))
	p.offset += len(code)
	return addr, nil
}

func (p *codePage) free() error {
	if p.mem == nil {
		return nil
	}
	err := unix.Munmap(p.mem)
	p.mem = nil
	return err
}

func (r *Runtime) currentPage(need int) (*codePage, error) {
	if len(r.pages) > 0 {
		last := r.pages[len(r.pages)-1]
		if last.offset+need <= len(last.mem) {
			return last, nil
		}
	}
	page, err := newCodePage()
	if err != nil {
		return nil, err
	}
	r.pages = append(r.pages, page)
	return page, nil
}

func isIntegerClass(p manifest.Property) bool {
	if p.ByReference {
		return true
	}
	switch p.Type {
	case manifest.Int8, manifest.Int16, manifest.Int32, manifest.Int64,
		manifest.UInt8, manifest.UInt16, manifest.UInt32, manifest.UInt64,
		manifest.Bool, manifest.Char8, manifest.Char16,
		manifest.Pointer, manifest.String, manifest.Function, manifest.Any:
		return true
	default:
		return false
	}
}

func isIntegerClassOrVoid(p manifest.Property) bool {
	return p.Type == manifest.Void || isIntegerClass(p)
}

// emit writes the machine code for method into the runtime's current
// code page, patches its CALL to dispatchBridge's real address, and
// returns the stub's entry address.
func (r *Runtime) emit(slot int, method *manifest.Method, conv Convention) (uintptr, error) {
	if len(method.Parameters) > 6 {
		return 0, fmt.Errorf("amd64 emitter supports at most 6 register arguments, method declares %d", len(method.Parameters))
	}
	for i, p := range method.Parameters {
		if !isIntegerClass(p) {
			return 0, fmt.Errorf("parameter %d: amd64 emitter does not support value type %q", i, p.Type)
		}
	}
	if !isIntegerClassOrVoid(method.Return) {
		return 0, fmt.Errorf("return: amd64 emitter does not support value type %q", method.Return.Type)
	}

	code, callOffset := buildAMD64Stub(int32(slot), len(method.Parameters), method.Return.Type != manifest.Void)

	page, err := r.currentPage(len(code))
	if err != nil {
		return 0, err
	}
	addr, err := page.write(code)
	if err != nil {
		return 0, err
	}

	patchCallRel32(addr, callOffset, dispatchBridgeAddr())

	globalRuntimeRegistry.mu.Lock()
	globalRuntimeRegistry.byPage[int32(slot)] = r
	globalRuntimeRegistry.mu.Unlock()

	return addr, nil
}

// patchCallRel32 overwrites the 4-byte displacement of the 5-byte
// "E8 rel32" CALL instruction that buildAMD64Stub left zeroed at
// callOffset within the stub now resident at addr, so it actually
// targets target instead of whatever bytes happen to follow it in the
// code page.
func patchCallRel32(addr uintptr, callOffset int, target uintptr) {
	instrEnd := addr + uintptr(callOffset) + 5
	rel32 := int32(int64(target) - int64(instrEnd))
	patch := unsafe.Slice((*byte)(unsafe.Pointer(addr+uintptr(callOffset)+1)), 4)
	binary.LittleEndian.PutUint32(patch, uint32(rel32))
}

// sysvIntRegs is the System V AMD64 integer argument register order.
var sysvIntRegs = []byte{0x7 /*RDI*/, 0x6 /*RSI*/, 0x2 /*RDX*/, 0x1 /*RCX*/, 0x8 /*R8*/, 0x9 /*R9*/}

// buildAMD64Stub assembles the per-method trampoline body described in
// the package comment above and returns it alongside the byte offset of
// its CALL instruction's opcode, so emit can patch the displacement once
// the stub has a real address.
//
// Stack frame layout, relative to rbp, from the prologue's "sub rsp,
// frameSize" down to rsp:
//
//	rbp-8 .. rbp-argBufSize      spilled SysV integer argument registers
//	rbp-argBufSize-8/-16         2-slot return buffer
//	rbp-frameSize .. rbp-frameSize+24  outgoing (slot, argsPtr, argCount,
//	                                    retPtr) frame for dispatchBridge,
//	                                    written directly at [rsp..rsp+32)
//	                                    since rsp == rbp-frameSize
func buildAMD64Stub(slot int32, argCount int, hasReturn bool) (code []byte, callOffset int) {
	emit := func(b ...byte) { code = append(code, b...) }

	argBufSize := int32(8 * argCount)
	frameSize := argBufSize + 48 // +16 return buffer, +32 outgoing call frame
	retBufOffset := -(argBufSize + 16)
	argBufOffset := -argBufSize // == 0 when argCount == 0; never dereferenced in that case

	// push rbp; mov rbp, rsp
	emit(0x55, 0x48, 0x89, 0xE5)

	// sub rsp, frameSize
	emit(0x48, 0x81, 0xEC)
	code = append(code, leBytes4(frameSize)...)

	// Spill each integer argument register to [rbp + argBufOffset + 8*i].
	for i := 0; i < argCount; i++ {
		offset := argBufOffset + int32(8*i)
		emit(movRegToStack(sysvIntRegs[i], offset)...)
	}

	// Build dispatchBridge's outgoing (slot, argsPtr, argCount, retPtr)
	// frame directly at [rsp..rsp+32), which is exactly [rbp-frameSize,
	// rbp-frameSize+32) since rsp == rbp-frameSize here.

	// mov qword [rsp], imm32 (slot, sign-extended)
	emit(0x48, 0xC7, 0x04, 0x24)
	code = append(code, leBytes4(slot)...)

	// lea rax, [rbp + argBufOffset] ; argsPtr
	emit(0x48, 0x8D, 0x85)
	code = append(code, leBytes4(argBufOffset)...)
	// mov [rsp+8], rax
	emit(0x48, 0x89, 0x44, 0x24, 0x08)

	// mov qword [rsp+16], imm32 (argCount)
	emit(0x48, 0xC7, 0x44, 0x24, 0x10)
	code = append(code, leBytes4(int32(argCount))...)

	// lea rax, [rbp + retBufOffset] ; retPtr
	emit(0x48, 0x8D, 0x85)
	code = append(code, leBytes4(retBufOffset)...)
	// mov [rsp+24], rax
	emit(0x48, 0x89, 0x44, 0x24, 0x18)

	callOffset = len(code)
	emit(0xE8, 0x00, 0x00, 0x00, 0x00) // call rel32; patched by emit() once the stub has a real address

	if hasReturn {
		// mov rax, [rbp + retBufOffset]
		emit(0x48, 0x8B, 0x85)
		code = append(code, leBytes4(retBufOffset)...)
	}

	// leave; ret
	emit(0xC9, 0xC3)

	return code, callOffset
}

// movRegToStack encodes "mov [rbp+offset], reg" for one of the SysV
// integer argument registers. reg is the source operand, so registers
// R8-R15 (numbers >= 8) need REX.R, the extension bit for ModRM's reg
// field — not REX.B, which extends rm/base/index and would be wrong
// here since the memory operand's base is always RBP (never extended).
func movRegToStack(reg byte, offset int32) []byte {
	rex := byte(0x48)
	if reg >= 8 {
		rex |= 0x04 // REX.R
	}
	modrm := byte(0x85) | (reg&0x7)<<3
	out := []byte{rex, 0x89, modrm}
	return append(out, leBytes4(offset)...)
}

func leBytes4(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
