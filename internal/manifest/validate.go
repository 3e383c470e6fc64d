package manifest

import (
	"fmt"

	"github.com/streamspace/plugify/internal/apperrors"
)

// Platform is the current host's platform token, compared against a
// manifest's declared Platforms set during validation.
type Platform string

// ValidationReport collects every ValidationError produced while
// validating a manifest set, and the subset of manifests that passed.
type ValidationReport struct {
	Accepted []Manifest
	Errors   []*apperrors.ValidationError
}

func (r *ValidationReport) OK() bool { return len(r.Errors) == 0 }

// ValidateSet validates a full manifest set against the current platform,
// rejecting duplicate names and structurally illegal manifests. It is
// idempotent: calling it twice on the same input yields the same report.
func ValidateSet(manifests []Manifest, platform Platform) *ValidationReport {
	report := &ValidationReport{}
	seen := make(map[string]bool, len(manifests))

	for _, m := range manifests {
		name := m.PackageName()
		if seen[name] {
			report.Errors = append(report.Errors, &apperrors.ValidationError{
				Subject: name,
				Message: "duplicate manifest name",
			})
			continue
		}
		seen[name] = true

		if err := validateOne(m, platform); err != nil {
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Accepted = append(report.Accepted, m)
	}

	SortManifests(report.Accepted)
	return report
}

func validateOne(m Manifest, platform Platform) *apperrors.ValidationError {
	name := m.PackageName()

	if name == "" {
		return &apperrors.ValidationError{Subject: "<unnamed>", Message: "manifest name must not be empty"}
	}

	if !platformMatches(m.PackagePlatforms(), platform) {
		return &apperrors.ValidationError{
			Subject: name,
			Message: fmt.Sprintf("manifest does not declare support for platform %q", platform),
		}
	}

	switch mm := m.(type) {
	case *ModuleManifest:
		if mm.Language == "" {
			return &apperrors.ValidationError{Subject: name, Message: "module manifest missing language"}
		}
		if mm.RuntimeLibraryPath == "" {
			return &apperrors.ValidationError{Subject: name, Message: "module manifest missing runtime_library_path"}
		}
	case *PluginManifest:
		if mm.Language == "" {
			return &apperrors.ValidationError{Subject: name, Message: "plugin manifest missing language"}
		}
		if mm.Entry == "" {
			return &apperrors.ValidationError{Subject: name, Message: "plugin manifest missing entry"}
		}
		for i := range mm.Methods {
			if err := validateMethod(&mm.Methods[i]); err != nil {
				return &apperrors.ValidationError{Subject: name, Message: err.Error()}
			}
		}
	default:
		return &apperrors.ValidationError{Subject: name, Message: "unrecognized manifest kind"}
	}

	return nil
}

// platformMatches implements "the package is considered only if the
// current platform token is in P, or P is empty".
func platformMatches(declared []string, current Platform) bool {
	if len(declared) == 0 {
		return true
	}
	for _, p := range declared {
		if Platform(p) == current {
			return true
		}
	}
	return false
}

func validateMethod(m *Method) error {
	if m.Name == "" {
		return fmt.Errorf("method missing name")
	}
	if m.VariadicIndex != NotVariadic && int(m.VariadicIndex) > len(m.Parameters) {
		return fmt.Errorf("method %s: variadic_index %d out of range for %d parameters", m.Name, m.VariadicIndex, len(m.Parameters))
	}
	for i := range m.Parameters {
		if err := validateProperty(&m.Parameters[i]); err != nil {
			return fmt.Errorf("method %s: parameter %d: %w", m.Name, i, err)
		}
	}
	if err := validateProperty(&m.Return); err != nil {
		return fmt.Errorf("method %s: return: %w", m.Name, err)
	}
	return checkPrototypeAcyclic(m, map[*Method]bool{m: true})
}

func validateProperty(p *Property) error {
	if !p.Type.IsValid() {
		return fmt.Errorf("unrecognized value type %q", p.Type)
	}
	if p.Prototype != nil && p.Type != Function {
		return fmt.Errorf("prototype set on non-function property of type %q", p.Type)
	}
	if p.Enum != nil && !p.Type.IsIntegerScalar() {
		return fmt.Errorf("enum set on non-integer-scalar property of type %q", p.Type)
	}
	return nil
}

// checkPrototypeAcyclic walks m's prototype graph depth-first, failing if
// a Method is reachable from itself through Property.Prototype links.
func checkPrototypeAcyclic(m *Method, stack map[*Method]bool) error {
	check := func(proto *Method) error {
		if proto == nil {
			return nil
		}
		if stack[proto] {
			return fmt.Errorf("cyclic method prototype involving %q", proto.Name)
		}
		stack[proto] = true
		defer delete(stack, proto)
		return checkPrototypeAcyclic(proto, stack)
	}
	for i := range m.Parameters {
		if err := check(m.Parameters[i].Prototype); err != nil {
			return err
		}
	}
	return check(m.Return.Prototype)
}
