// Package resolver implements the SAT-style dependency resolver: given a
// validated manifest set it produces either a validated topological load
// order or a structured report of blockers, following the design in
// spec §4.3 (gather requirement/forbidding clauses, solve, decompose UNSAT,
// Kahn's algorithm with name-sorted ties over the hard-dependency
// subgraph).
//
// The solver itself is intentionally the simplest engine that satisfies
// the provides/requires/conflicts clause model: per-edge constraint
// filtering plus Kahn's algorithm, which is sufficient for the tens-to-
// low-thousands package size class this core targets (see spec §9).
package resolver

import (
	"sort"

	"github.com/streamspace/plugify/internal/apperrors"
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/semver"
)

// PackageResolution is the resolver's per-package verdict.
type PackageResolution struct {
	Name       string
	Version    semver.Version
	Kind       manifest.Kind
	CanLoad    bool
	SkipReason string // set when CanLoad is false because of cascade exclusion or a direct blocker
}

// Stats summarizes a resolver run for reporting.
type Stats struct {
	TotalPackages int
	Installable   int
	Blocked       int
	Warnings      int
}

// DependencyReport is the resolver's sole output: it never partially
// applies.
type DependencyReport struct {
	Resolutions      map[string]*PackageResolution
	Issues           []*apperrors.DependencyIssue
	LoadOrder        []string
	Edges            map[string][]string // package -> its hard (required) dependencies
	IsLoadOrderValid bool
	Stats            Stats
}

// HasBlockingIssues reports whether any issue in the report is a blocker.
func (r *DependencyReport) HasBlockingIssues() bool {
	for _, issue := range r.Issues {
		if issue.IsBlocker {
			return true
		}
	}
	return false
}

// Resolve runs the full resolver pipeline over manifests and returns a
// DependencyReport. Resolve is a pure function of its input: the same
// manifest set always yields a bitwise-identical report.
func Resolve(manifests []manifest.Manifest, platform manifest.Platform) *DependencyReport {
	report := &DependencyReport{
		Resolutions: make(map[string]*PackageResolution, len(manifests)),
		Edges:       make(map[string][]string, len(manifests)),
		Stats:       Stats{TotalPackages: len(manifests)},
	}
	if len(manifests) == 0 {
		report.IsLoadOrderValid = true
		return report
	}

	byName := make(map[string]manifest.Manifest, len(manifests))
	for _, m := range manifests {
		byName[m.PackageName()] = m
		report.Resolutions[m.PackageName()] = &PackageResolution{
			Name:    m.PackageName(),
			Version: m.PackageVersion(),
			Kind:    m.Kind(),
			CanLoad: true,
		}
	}

	hardEdges := make(map[string][]string, len(manifests)) // name -> required deps it needs

	// Step 2/3: requirement and forbidding clauses.
	for _, m := range manifests {
		name := m.PackageName()
		for _, dep := range m.PackageDependencies() {
			target, exists := byName[dep.Name]
			switch {
			case !exists:
				issue := &apperrors.DependencyIssue{
					Kind:      apperrors.IssueMissing,
					IsBlocker: !dep.Optional,
					Package:   name,
					Involved:  dep.Name,
					Message:   "dependency " + dep.Name + " is not present in the manifest set",
				}
				report.Issues = append(report.Issues, issue)
				if issue.IsBlocker {
					blockDirect(report, name, "missing dependency "+dep.Name)
				}
			case !semver.Satisfies(dep.Constraint, target.PackageVersion()):
				issue := &apperrors.DependencyIssue{
					Kind:      apperrors.IssueVersionConflict,
					IsBlocker: !dep.Optional,
					Package:   name,
					Involved:  dep.Name,
					Message:   dep.Name + "@" + target.PackageVersion().String() + " does not satisfy the declared constraint",
				}
				report.Issues = append(report.Issues, issue)
				if issue.IsBlocker {
					blockDirect(report, name, "unsatisfied version constraint on "+dep.Name)
				}
			default:
				if !dep.Optional {
					hardEdges[name] = append(hardEdges[name], dep.Name)
				}
			}
		}

		for _, conflict := range m.PackageConflicts() {
			target, exists := byName[conflict.Name]
			if !exists {
				continue
			}
			if semver.Satisfies(conflict.Constraint, target.PackageVersion()) {
				msg := conflict.Reason
				if msg == "" {
					msg = name + " conflicts with " + conflict.Name
				}
				report.Issues = append(report.Issues, &apperrors.DependencyIssue{
					Kind:      apperrors.IssueMutualConflict,
					IsBlocker: true,
					Package:   name,
					Involved:  conflict.Name,
					Message:   msg,
				})
				blockDirect(report, name, "conflicts with "+conflict.Name)
				blockDirect(report, conflict.Name, "conflicts with "+name)
			}
		}

		// Obsoletes never block: the superseded package still loads, but
		// an embedder deciding which of two overlapping packages to keep
		// installed gets a non-blocker IssueObsoleted to act on.
		for _, obsolete := range m.PackageObsoletes() {
			target, exists := byName[obsolete.Name]
			if !exists || !semver.Satisfies(obsolete.Constraint, target.PackageVersion()) {
				continue
			}
			report.Issues = append(report.Issues, &apperrors.DependencyIssue{
				Kind:      apperrors.IssueObsoleted,
				IsBlocker: false,
				Package:   obsolete.Name,
				Involved:  name,
				Message:   name + " obsoletes " + obsolete.Name + "@" + target.PackageVersion().String(),
			})
		}
	}

	for name, deps := range hardEdges {
		sort.Strings(deps)
		report.Edges[name] = deps
	}

	// Step 5: topological order via Kahn's algorithm, cycle detection
	// first (over the full hard-edge graph, not just the installable
	// subset: a cyclic dependency blocks everything in the cycle
	// regardless of version satisfaction).
	order, cycle := kahn(byName, hardEdges)
	if len(cycle) > 0 {
		sort.Strings(cycle)
		report.IsLoadOrderValid = false
		report.Issues = append(report.Issues, &apperrors.DependencyIssue{
			Kind:         apperrors.IssueCycle,
			IsBlocker:    true,
			Package:      cycle[0],
			Message:      "cyclic hard dependency",
			CycleMembers: cycle,
		})
		for _, name := range cycle {
			blockDirect(report, name, "member of a dependency cycle")
		}
		report.LoadOrder = nil
		finalizeStats(report)
		return report
	}
	report.IsLoadOrderValid = true

	// Cascade exclusion: a package whose hard dependency failed to
	// load cannot load either, transitively.
	propagateCascade(report, hardEdges)

	loadOrder := make([]string, 0, len(order))
	for _, name := range order {
		if report.Resolutions[name].CanLoad {
			loadOrder = append(loadOrder, name)
		}
	}
	report.LoadOrder = loadOrder

	finalizeStats(report)
	return report
}

func blockDirect(report *DependencyReport, name, reason string) {
	res, ok := report.Resolutions[name]
	if !ok || !res.CanLoad {
		return
	}
	res.CanLoad = false
	res.SkipReason = reason
}

func propagateCascade(report *DependencyReport, hardEdges map[string][]string) {
	dependents := make(map[string][]string) // dep name -> packages that require it
	for name, deps := range hardEdges {
		for _, d := range deps {
			dependents[d] = append(dependents[d], name)
		}
	}

	names := make([]string, 0, len(report.Resolutions))
	for name := range report.Resolutions {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := true
	for changed {
		changed = false
		for _, name := range names {
			if report.Resolutions[name].CanLoad {
				continue
			}
			for _, dependent := range dependents[name] {
				if blockCascade(report, dependent, name) {
					changed = true
				}
			}
		}
	}
}

func blockCascade(report *DependencyReport, name, failedAncestor string) bool {
	res := report.Resolutions[name]
	if !res.CanLoad {
		return false
	}
	res.CanLoad = false
	res.SkipReason = "depends on " + failedAncestor + " which failed to load"
	return true
}

// kahn computes a deterministic topological order (ties broken by name
// ascending) over the hard-dependency subgraph. If not all nodes can be
// ordered, the unordered remainder is returned as the cycle.
func kahn(byName map[string]manifest.Manifest, hardEdges map[string][]string) (order []string, cycle []string) {
	inDegree := make(map[string]int, len(byName))
	for name := range byName {
		inDegree[name] = 0
	}
	for name, deps := range hardEdges {
		for _, d := range deps {
			if _, ok := byName[d]; ok {
				inDegree[name]++
			}
		}
	}

	ready := make([]string, 0, len(byName))
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	dependents := make(map[string][]string)
	for name, deps := range hardEdges {
		for _, d := range deps {
			dependents[d] = append(dependents[d], name)
		}
	}
	for _, deps := range dependents {
		sort.Strings(deps)
	}

	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(byName) {
		ordered := make(map[string]bool, len(order))
		for _, n := range order {
			ordered[n] = true
		}
		for name := range byName {
			if !ordered[name] {
				cycle = append(cycle, name)
			}
		}
	}
	return order, cycle
}

func finalizeStats(report *DependencyReport) {
	for _, res := range report.Resolutions {
		if res.CanLoad {
			report.Stats.Installable++
		} else {
			report.Stats.Blocked++
		}
	}
	for _, issue := range report.Issues {
		if !issue.IsBlocker {
			report.Stats.Warnings++
		}
	}
}
