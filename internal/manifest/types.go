// Package manifest holds the immutable descriptive metadata and typed
// method signatures shared across the plugify core: the resolver consumes
// Dependency/Conflict declarations, the orchestrator consumes the
// Module/PluginManifest discriminated union, and the JIT trampoline
// builder consumes Method/Property.
//
// Deserialization from JSON is an external collaborator's job (see
// spec §6); this package only defines the value types and the structural
// validation every manifest must pass before the orchestrator will touch
// it, mirroring the shape of internal/models/plugin.go's PluginManifest
// this was adapted from.
package manifest

import (
	"fmt"
	"sort"

	"github.com/streamspace/plugify/internal/semver"
)

// ValueType is the closed enumeration used as the lingua franca for
// cross-language method signatures.
type ValueType string

const (
	Void ValueType = "void"

	Int8   ValueType = "int8"
	Int16  ValueType = "int16"
	Int32  ValueType = "int32"
	Int64  ValueType = "int64"
	UInt8  ValueType = "uint8"
	UInt16 ValueType = "uint16"
	UInt32 ValueType = "uint32"
	UInt64 ValueType = "uint64"

	Bool   ValueType = "bool"
	Char8  ValueType = "char8"
	Char16 ValueType = "char16"
	Float  ValueType = "float"
	Double ValueType = "double"

	Pointer  ValueType = "pointer"
	String   ValueType = "string"
	Function ValueType = "function"

	Vector2   ValueType = "vector2"
	Vector3   ValueType = "vector3"
	Vector4   ValueType = "vector4"
	Matrix4x4 ValueType = "matrix4x4"

	Any ValueType = "any"

	ArrayInt8   ValueType = "int8[]"
	ArrayInt16  ValueType = "int16[]"
	ArrayInt32  ValueType = "int32[]"
	ArrayInt64  ValueType = "int64[]"
	ArrayUInt8  ValueType = "uint8[]"
	ArrayUInt16 ValueType = "uint16[]"
	ArrayUInt32 ValueType = "uint32[]"
	ArrayUInt64 ValueType = "uint64[]"
	ArrayBool   ValueType = "bool[]"
	ArrayChar8  ValueType = "char8[]"
	ArrayChar16 ValueType = "char16[]"
	ArrayFloat  ValueType = "float[]"
	ArrayDouble ValueType = "double[]"
	ArrayString ValueType = "string[]"
	ArrayAny    ValueType = "any[]"
)

var validValueTypes = map[ValueType]bool{
	Void: true, Int8: true, Int16: true, Int32: true, Int64: true,
	UInt8: true, UInt16: true, UInt32: true, UInt64: true,
	Bool: true, Char8: true, Char16: true, Float: true, Double: true,
	Pointer: true, String: true, Function: true,
	Vector2: true, Vector3: true, Vector4: true, Matrix4x4: true, Any: true,
	ArrayInt8: true, ArrayInt16: true, ArrayInt32: true, ArrayInt64: true,
	ArrayUInt8: true, ArrayUInt16: true, ArrayUInt32: true, ArrayUInt64: true,
	ArrayBool: true, ArrayChar8: true, ArrayChar16: true, ArrayFloat: true,
	ArrayDouble: true, ArrayString: true, ArrayAny: true,
}

// IsValid reports whether t is one of the closed set of recognized types.
func (t ValueType) IsValid() bool { return validValueTypes[t] }

// IsIntegerScalar reports whether t is one of the signed/unsigned integer
// scalars; Property.Enum may only be set on a Property of such a type.
func (t ValueType) IsIntegerScalar() bool {
	switch t {
	case Int8, Int16, Int32, Int64, UInt8, UInt16, UInt32, UInt64:
		return true
	default:
		return false
	}
}

// Enum describes a named integer enumeration attached to a Property.
type Enum struct {
	Name   string
	Values map[string]int64
}

// Property describes one parameter or return slot of a Method.
type Property struct {
	Type        ValueType
	ByReference bool
	Prototype   *Method // set only when Type == Function
	Enum        *Enum   // set only when Type is an integer scalar
}

// Method is the canonical cross-language signature consumed by the JIT
// trampoline builder.
type Method struct {
	Name              string
	FunctionSymbol    string
	CallingConvention string // cdecl, stdcall, fastcall, thiscall, vectorcall, "" = host default
	Parameters        []Property
	Return            Property
	VariadicIndex     uint8 // 255 = not variadic
}

const NotVariadic uint8 = 255

// FindPrototype searches depth-first through m's parameter properties'
// prototypes and the return property's prototype for a Method named name,
// returning the first match.
func (m *Method) FindPrototype(name string) *Method {
	if m == nil {
		return nil
	}
	if m.Name == name {
		return m
	}
	visited := map[*Method]bool{m: true}
	return findPrototypeRec(m, name, visited)
}

func findPrototypeRec(m *Method, name string, visited map[*Method]bool) *Method {
	for i := range m.Parameters {
		if proto := m.Parameters[i].Prototype; proto != nil {
			if proto.Name == name {
				return proto
			}
			if !visited[proto] {
				visited[proto] = true
				if found := findPrototypeRec(proto, name, visited); found != nil {
					return found
				}
			}
		}
	}
	if proto := m.Return.Prototype; proto != nil {
		if proto.Name == name {
			return proto
		}
		if !visited[proto] {
			visited[proto] = true
			if found := findPrototypeRec(proto, name, visited); found != nil {
				return found
			}
		}
	}
	return nil
}

// Dependency names a required (or optional) package and the version
// constraints it must satisfy.
type Dependency struct {
	Name       string
	Constraint []semver.Constraint
	Optional   bool
}

// Conflict names a package whose matching versions this manifest refuses
// to coexist with.
type Conflict struct {
	Name       string
	Constraint []semver.Constraint
	Reason     string
}

// Obsolete names an older package this manifest supersedes: when a
// package matching Name and Constraint is also present in the resolved
// set, the resolver raises a non-blocking apperrors.IssueObsoleted; both
// packages still load side by side.
type Obsolete struct {
	Name       string
	Constraint []semver.Constraint
}

// Kind discriminates the Manifest union.
type Kind string

const (
	KindModule Kind = "module"
	KindPlugin Kind = "plugin"
)

// Common holds the fields shared by every manifest kind.
type Common struct {
	Name         string
	Version      semver.Version
	Description  string
	Author       string
	Website      string
	License      string
	Platforms    []string // empty means "all platforms"
	Dependencies []Dependency
	Conflicts    []Conflict
	Obsoletes    []Obsolete
	SourcePath   string
}

// ModuleManifest describes a language module: a native shared library
// embedding a language runtime.
type ModuleManifest struct {
	Common
	Language            string
	RuntimeLibraryPath  string
	SearchDirectories   []string
	ForceLoad           bool
}

func (m *ModuleManifest) Kind() Kind { return KindModule }

// PluginManifest describes a plugin: an extension unit activated through
// its declared language's module.
type PluginManifest struct {
	Common
	Language string
	Entry    string // language-specific entry point identifier
	Methods  []Method
}

func (p *PluginManifest) Kind() Kind { return KindPlugin }

// Manifest is the discriminated union of ModuleManifest and
// PluginManifest; the resolver and orchestrator both operate uniformly on
// this interface, treating either as a "package".
type Manifest interface {
	Kind() Kind
	PackageName() string
	PackageVersion() semver.Version
	PackageDependencies() []Dependency
	PackageConflicts() []Conflict
	PackageObsoletes() []Obsolete
	PackagePlatforms() []string
}

func (c Common) PackageName() string                  { return c.Name }
func (c Common) PackageVersion() semver.Version        { return c.Version }
func (c Common) PackageDependencies() []Dependency     { return c.Dependencies }
func (c Common) PackageConflicts() []Conflict          { return c.Conflicts }
func (c Common) PackageObsoletes() []Obsolete          { return c.Obsoletes }
func (c Common) PackagePlatforms() []string            { return c.Platforms }

// SortManifests orders manifests by name ascending, the stable order the
// resolver and reports use for deterministic output.
func SortManifests(ms []Manifest) {
	sort.Slice(ms, func(i, j int) bool {
		return ms[i].PackageName() < ms[j].PackageName()
	})
}

// Equal reports whether two Common blocks hold identical fields; two
// manifests are equal iff all fields (including the kind-specific ones,
// checked by the caller) are equal.
func (c Common) Equal(o Common) bool {
	if c.Name != o.Name || !c.Version.Equal(o.Version) || c.Description != o.Description ||
		c.Author != o.Author || c.Website != o.Website || c.License != o.License ||
		c.SourcePath != o.SourcePath {
		return false
	}
	return stringSliceEqual(c.Platforms, o.Platforms) &&
		dependenciesEqual(c.Dependencies, o.Dependencies) &&
		conflictsEqual(c.Conflicts, o.Conflicts) &&
		obsoletesEqual(c.Obsoletes, o.Obsoletes)
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func constraintsEqual(a, b []semver.Constraint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dependenciesEqual(a, b []Dependency) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Optional != b[i].Optional ||
			!constraintsEqual(a[i].Constraint, b[i].Constraint) {
			return false
		}
	}
	return true
}

func conflictsEqual(a, b []Conflict) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Reason != b[i].Reason ||
			!constraintsEqual(a[i].Constraint, b[i].Constraint) {
			return false
		}
	}
	return true
}

func obsoletesEqual(a, b []Obsolete) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !constraintsEqual(a[i].Constraint, b[i].Constraint) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for error messages and logging.
func (c Common) String() string {
	return fmt.Sprintf("%s@%s", c.Name, c.Version)
}
