//go:build !amd64

package jit

import "github.com/streamspace/plugify/internal/manifest"

// codePage is an opaque handle on architectures this emitter does not
// yet target; free is a no-op since no memory was ever mapped.
type codePage struct{}

func (p *codePage) free() error { return nil }

func (r *Runtime) currentPage(need int) (*codePage, error) { return &codePage{}, nil }

func (r *Runtime) emit(slot int, method *manifest.Method, conv Convention) (uintptr, error) {
	return 0, errUnsupportedArch(method.Name)
}

func errUnsupportedArch(method string) error {
	return &unsupportedArchError{method: method}
}

type unsupportedArchError struct{ method string }

func (e *unsupportedArchError) Error() string {
	return "jit: " + e.method + ": no trampoline emitter is registered for this architecture"
}
