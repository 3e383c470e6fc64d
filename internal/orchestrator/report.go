package orchestrator

import (
	"time"

	"github.com/streamspace/plugify/internal/apperrors"
	"github.com/streamspace/plugify/internal/resolver"
)

// PhaseTiming records how long one phase of the startup sequence took;
// supplements spec §4.5's "the orchestrator tracks per-unit timings" with
// a concrete, reportable shape.
type PhaseTiming struct {
	Phase    string
	Start    time.Time
	Duration time.Duration
}

// UnitOutcome is the orchestrator's per-module/per-plugin verdict after a
// Run, independent of the resolver's installability verdict: a package
// can be resolver-installable yet still fail during Initialize/OnLoad.
type UnitOutcome struct {
	Name  string
	Kind  string // "module" or "plugin"
	State string
	Error error // a *apperrors.LifecycleError or *apperrors.LoaderError, or nil
}

// InitializationReport is the orchestrator's combined output for a Run:
// the validation and dependency reports plus what actually happened
// during Initialize/Load/Start.
type InitializationReport struct {
	Validation *validationSummary
	Dependency *resolver.DependencyReport
	Outcomes   []UnitOutcome
	Timings    []PhaseTiming
	Aborted    bool
	AbortedAt  string // phase name, if Aborted
}

// validationSummary avoids importing manifest's ValidationReport verbatim
// so the orchestrator report stays self-contained for JSON encoding.
type validationSummary struct {
	AcceptedCount int
	Errors        []*apperrors.ValidationError
}

func (r *InitializationReport) recordTiming(phase string, start time.Time) {
	r.Timings = append(r.Timings, PhaseTiming{Phase: phase, Start: start, Duration: time.Since(start)})
}
