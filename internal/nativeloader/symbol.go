package nativeloader

import (
	"reflect"
	"unsafe"
)

// symbolAddress recovers the underlying code/data address of a symbol
// resolved through plugin.Lookup. For a function-typed symbol this is
// the address plugin.Plugin itself resolved from the shared object's
// symbol table; for a variable-typed symbol it is the address of the
// variable.
func symbolAddress(sym any) uintptr {
	v := reflect.ValueOf(sym)
	switch v.Kind() {
	case reflect.Ptr:
		return v.Pointer()
	case reflect.Func:
		return v.Pointer()
	default:
		// plugin.Lookup always yields a pointer or a func value for the
		// exported identifiers this loader cares about; anything else
		// has no single address to report.
		return uintptr(unsafe.Pointer(&sym))
	}
}
