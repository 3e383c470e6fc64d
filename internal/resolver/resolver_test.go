package resolver

import (
	"testing"

	"github.com/streamspace/plugify/internal/apperrors"
	"github.com/streamspace/plugify/internal/manifest"
	"github.com/streamspace/plugify/internal/semver"
)

func pkg(name, version string, deps ...manifest.Dependency) manifest.Manifest {
	return &manifest.PluginManifest{
		Common: manifest.Common{
			Name:         name,
			Version:      semver.MustParse(version),
			Dependencies: deps,
		},
		Language: "python",
		Entry:    "main:Plugin",
	}
}

func dep(name, constraint string, optional bool) manifest.Dependency {
	var cs []semver.Constraint
	if constraint != "" {
		c, err := semver.ParseConstraint(constraint)
		if err != nil {
			panic(err)
		}
		cs = []semver.Constraint{c}
	}
	return manifest.Dependency{Name: name, Constraint: cs, Optional: optional}
}

// Scenario 1: A -> B -> C, all 1.0.0, no conflicts. Expected order [C, B, A].
func TestResolveChainOrder(t *testing.T) {
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("B", "", false)),
		pkg("B", "1.0.0", dep("C", "", false)),
		pkg("C", "1.0.0"),
	}
	report := Resolve(manifests, "linux-x64")
	if report.HasBlockingIssues() {
		t.Fatalf("unexpected blockers: %v", report.Issues)
	}
	want := []string{"C", "B", "A"}
	if len(report.LoadOrder) != len(want) {
		t.Fatalf("load order = %v, want %v", report.LoadOrder, want)
	}
	for i, name := range want {
		if report.LoadOrder[i] != name {
			t.Errorf("position %d: got %s, want %s", i, report.LoadOrder[i], name)
		}
	}
}

// Scenario 2: A depends on B >= 2.0.0, B is 1.4.0. VersionConflict blocker
// on A; B still loads; A is excluded from the load order.
func TestResolveVersionConflictBlocksDependentOnly(t *testing.T) {
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("B", ">=2.0.0", false)),
		pkg("B", "1.4.0"),
	}
	report := Resolve(manifests, "linux-x64")
	if !report.HasBlockingIssues() {
		t.Fatal("expected a blocking issue")
	}
	found := false
	for _, issue := range report.Issues {
		if issue.Kind == apperrors.IssueVersionConflict && issue.Package == "A" {
			found = true
		}
	}
	if !found {
		t.Error("expected a VersionConflict issue attached to A")
	}
	if report.Resolutions["B"].CanLoad != true {
		t.Error("B should still be installable")
	}
	if report.Resolutions["A"].CanLoad != false {
		t.Error("A should not be installable")
	}
	for _, name := range report.LoadOrder {
		if name == "A" {
			t.Error("A should not appear in the load order")
		}
	}
}

// Scenario 3: A depends on missing X, optional. A loads; report contains a
// warning, not a blocker.
func TestResolveOptionalMissingDependencyIsWarningOnly(t *testing.T) {
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("X", "", true)),
	}
	report := Resolve(manifests, "linux-x64")
	if report.HasBlockingIssues() {
		t.Fatalf("unexpected blockers: %v", report.Issues)
	}
	if len(report.Issues) != 1 || report.Issues[0].IsBlocker {
		t.Fatalf("expected exactly one warning issue, got %v", report.Issues)
	}
	if !report.Resolutions["A"].CanLoad {
		t.Error("A should still be installable")
	}
	if len(report.LoadOrder) != 1 || report.LoadOrder[0] != "A" {
		t.Errorf("load order = %v, want [A]", report.LoadOrder)
	}
}

// Scenario 4: cycle A -> B -> A. is_load_order_valid = false; cycle names
// [A, B]; nothing loads.
func TestResolveCycleInvalidatesLoadOrder(t *testing.T) {
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("B", "", false)),
		pkg("B", "1.0.0", dep("A", "", false)),
	}
	report := Resolve(manifests, "linux-x64")
	if report.IsLoadOrderValid {
		t.Fatal("expected is_load_order_valid = false")
	}
	if len(report.LoadOrder) != 0 {
		t.Errorf("expected empty load order, got %v", report.LoadOrder)
	}
	var cycleIssue *apperrors.DependencyIssue
	for _, issue := range report.Issues {
		if issue.Kind == apperrors.IssueCycle {
			cycleIssue = issue
		}
	}
	if cycleIssue == nil {
		t.Fatal("expected a cycle issue")
	}
	want := []string{"A", "B"}
	if len(cycleIssue.CycleMembers) != len(want) {
		t.Fatalf("cycle members = %v, want %v", cycleIssue.CycleMembers, want)
	}
	for i, name := range want {
		if cycleIssue.CycleMembers[i] != name {
			t.Errorf("cycle member %d: got %s, want %s", i, cycleIssue.CycleMembers[i], name)
		}
	}
}

func TestResolveEmptyManifestSet(t *testing.T) {
	report := Resolve(nil, "linux-x64")
	if len(report.LoadOrder) != 0 || report.HasBlockingIssues() || !report.IsLoadOrderValid {
		t.Fatalf("expected empty, valid, blocker-free report, got %+v", report)
	}
}

func TestResolveCascadeSkipsTransitiveDependent(t *testing.T) {
	// A -> B -> C, C is missing its own required dependency so C is
	// blocked directly; B and A must cascade-skip.
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("B", "", false)),
		pkg("B", "1.0.0", dep("C", "", false)),
		pkg("C", "1.0.0", dep("missing-dep", "", false)),
	}
	report := Resolve(manifests, "linux-x64")
	for _, name := range []string{"A", "B", "C"} {
		if report.Resolutions[name].CanLoad {
			t.Errorf("%s should have been cascade-skipped", name)
		}
	}
	if report.Resolutions["A"].SkipReason == "" || report.Resolutions["B"].SkipReason == "" {
		t.Error("cascade-skipped packages should carry a skip reason")
	}
	if len(report.LoadOrder) != 0 {
		t.Errorf("expected empty load order, got %v", report.LoadOrder)
	}
}

func TestResolveDeterministicOrder(t *testing.T) {
	manifests := []manifest.Manifest{
		pkg("A", "1.0.0", dep("B", "", false), dep("C", "", false)),
		pkg("B", "1.0.0"),
		pkg("C", "1.0.0"),
	}
	first := Resolve(manifests, "linux-x64")
	second := Resolve(manifests, "linux-x64")
	if len(first.LoadOrder) != len(second.LoadOrder) {
		t.Fatal("two runs over the same input produced different length orders")
	}
	for i := range first.LoadOrder {
		if first.LoadOrder[i] != second.LoadOrder[i] {
			t.Fatalf("non-deterministic order: %v vs %v", first.LoadOrder, second.LoadOrder)
		}
	}
	// B and C are siblings with no edge between them; ties break by name.
	if first.LoadOrder[0] != "B" || first.LoadOrder[1] != "C" {
		t.Errorf("expected name-sorted tie break [B, C, A], got %v", first.LoadOrder)
	}
}

// TestResolveObsoleteIsNonBlockingIssue: A declares it obsoletes B@1.0.0,
// and B@1.0.0 is present. Both still load (obsoleting never blocks), but
// the report carries a non-blocker IssueObsoleted naming B as superseded
// by A.
func TestResolveObsoleteIsNonBlockingIssue(t *testing.T) {
	a := &manifest.PluginManifest{
		Common: manifest.Common{
			Name:    "A",
			Version: semver.MustParse("2.0.0"),
			Obsoletes: []manifest.Obsolete{
				{Name: "B", Constraint: mustConstraint("<2.0.0")},
			},
		},
		Language: "python",
		Entry:    "main:Plugin",
	}
	manifests := []manifest.Manifest{a, pkg("B", "1.0.0")}

	report := Resolve(manifests, "linux-x64")
	if report.HasBlockingIssues() {
		t.Fatalf("obsoletes must never block: %v", report.Issues)
	}
	if !report.Resolutions["A"].CanLoad || !report.Resolutions["B"].CanLoad {
		t.Fatal("both the obsoleting and obsoleted package must still load")
	}

	var found *apperrors.DependencyIssue
	for _, issue := range report.Issues {
		if issue.Kind == apperrors.IssueObsoleted {
			found = issue
		}
	}
	if found == nil {
		t.Fatal("expected an IssueObsoleted entry")
	}
	if found.IsBlocker {
		t.Error("IssueObsoleted must not be a blocker")
	}
	if found.Package != "B" || found.Involved != "A" {
		t.Errorf("issue = %+v, want Package=B Involved=A", found)
	}
}

func mustConstraint(s string) []semver.Constraint {
	c, err := semver.ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return []semver.Constraint{c}
}
