// Package apperrors defines the typed error values surfaced by the plugify
// core. Manifest validation, library loading, dependency resolution,
// trampoline building and lifecycle callbacks report failures as one of
// these kinds, so an embedder can branch on Code without string-matching
// messages. internal/semver's parse errors are plain fmt errors.
package apperrors

import "fmt"

// Code identifies an error kind independent of its message, so an embedder
// can branch on it without string-matching.
type Code string

const (
	CodeLoader     Code = "LOADER_ERROR"
	CodeValidation Code = "VALIDATION_ERROR"
	CodeDependency Code = "DEPENDENCY_ISSUE"
	CodeJit        Code = "JIT_ERROR"
	CodeLifecycle  Code = "LIFECYCLE_ERROR"
)

// LoaderError reports a failure opening a shared library, resolving a
// symbol, or composing an illegal flag combination.
type LoaderError struct {
	Path    string
	Message string
	Err     error
}

func (e *LoaderError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("loader: %s", e.Message)
	}
	return fmt.Sprintf("loader: %s: %s", e.Path, e.Message)
}

func (e *LoaderError) Unwrap() error { return e.Err }
func (e *LoaderError) Code() Code    { return CodeLoader }

// ValidationError reports a manifest that fails a structural invariant:
// duplicate name, illegal property shape, or a platform mismatch.
type ValidationError struct {
	Subject string // the offending manifest or package name
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Subject, e.Message)
}
func (e *ValidationError) Code() Code { return CodeValidation }

// IssueKind enumerates the shapes a dependency problem can take.
type IssueKind string

const (
	IssueMissing         IssueKind = "missing"
	IssueVersionConflict IssueKind = "version-conflict"
	IssueMutualConflict  IssueKind = "mutual-conflict"
	IssueObsoleted       IssueKind = "obsoleted"
	IssueCycle           IssueKind = "cycle"
)

// DependencyIssue is one entry of a DependencyReport: a single blocker or
// warning discovered while resolving a manifest set.
type DependencyIssue struct {
	Kind        IssueKind
	IsBlocker   bool
	Package     string   // the package the issue is attached to
	Involved    string   // the other package involved, if any
	Message     string   // human description
	SuggestedFix string  // optional
	CycleMembers []string // populated only for IssueCycle
}

func (i *DependencyIssue) Error() string {
	return fmt.Sprintf("dependency: %s: %s", i.Package, i.Message)
}
func (i *DependencyIssue) Code() Code { return CodeDependency }

// JitError reports an ABI or parameter shape the trampoline builder cannot
// express: no partial function pointer is ever published when this occurs.
type JitError struct {
	Method  string
	Message string
}

func (e *JitError) Error() string {
	return fmt.Sprintf("jit: %s: %s", e.Method, e.Message)
}
func (e *JitError) Code() Code { return CodeJit }

// LifecycleError wraps a failure returned (or panicked) by a language
// module's callback. Exceptions never cross the language-module boundary
// as anything else: a host-side guard converts them into this kind.
type LifecycleError struct {
	Unit    string // module or plugin name
	Phase   string // which lifecycle phase was running
	Message string
	Err     error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle: %s during %s: %s", e.Unit, e.Phase, e.Message)
}
func (e *LifecycleError) Unwrap() error { return e.Err }
func (e *LifecycleError) Code() Code    { return CodeLifecycle }

// CascadeSkipped is not an error: it is the status recorded against a unit
// that was never attempted because a prerequisite of its failed or was
// itself skipped. Callers that want error semantics should test
// errors.As against the other kinds instead.
type CascadeSkipped struct {
	Unit   string
	Reason string // name of the first failed ancestor, or a cycle description
}

func (s *CascadeSkipped) Error() string {
	return fmt.Sprintf("%s skipped: %s", s.Unit, s.Reason)
}
