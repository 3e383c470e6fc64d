package manifest

import (
	"testing"

	"github.com/streamspace/plugify/internal/semver"
)

func plugin(name string) *PluginManifest {
	return &PluginManifest{
		Common:   Common{Name: name, Version: semver.MustParse("1.0.0")},
		Language: "python",
		Entry:    "main:Plugin",
	}
}

func TestValidateSetRejectsDuplicateNames(t *testing.T) {
	report := ValidateSet([]Manifest{plugin("a"), plugin("a")}, "linux-x64")
	if report.OK() {
		t.Fatal("expected duplicate name to be rejected")
	}
	if len(report.Accepted) != 1 {
		t.Fatalf("expected exactly one accepted manifest, got %d", len(report.Accepted))
	}
}

func TestValidateSetPlatformMismatch(t *testing.T) {
	p := plugin("a")
	p.Platforms = []string{"windows-x64"}
	report := ValidateSet([]Manifest{p}, "linux-x64")
	if report.OK() {
		t.Fatal("expected platform mismatch to be rejected")
	}
}

func TestValidateSetEmptyPlatformsMatchesAny(t *testing.T) {
	report := ValidateSet([]Manifest{plugin("a")}, "linux-x64")
	if !report.OK() {
		t.Fatalf("unexpected errors: %v", report.Errors)
	}
}

func TestValidatePropertyPrototypeOnlyOnFunction(t *testing.T) {
	p := plugin("a")
	p.Methods = []Method{{
		Name: "f",
		Parameters: []Property{
			{Type: Int32, Prototype: &Method{Name: "cb"}},
		},
		Return: Property{Type: Void},
	}}
	report := ValidateSet([]Manifest{p}, "linux-x64")
	if report.OK() {
		t.Fatal("expected prototype-on-non-function to be rejected")
	}
}

func TestValidateMethodRejectsCyclicPrototype(t *testing.T) {
	inner := &Method{Name: "inner"}
	outer := &Method{Name: "outer", Return: Property{Type: Function, Prototype: inner}}
	inner.Return = Property{Type: Function, Prototype: outer}

	p := plugin("a")
	p.Methods = []Method{*outer}
	report := ValidateSet([]Manifest{p}, "linux-x64")
	if report.OK() {
		t.Fatal("expected cyclic prototype to be rejected")
	}
}

func TestFindPrototypeDepthFirst(t *testing.T) {
	leaf := &Method{Name: "leaf"}
	mid := &Method{Name: "mid", Parameters: []Property{{Type: Function, Prototype: leaf}}}
	root := &Method{Name: "root", Return: Property{Type: Function, Prototype: mid}}

	if found := root.FindPrototype("leaf"); found != leaf {
		t.Errorf("expected to find leaf method, got %v", found)
	}
	if found := root.FindPrototype("missing"); found != nil {
		t.Errorf("expected nil for missing name, got %v", found)
	}
}

func TestSortManifestsByName(t *testing.T) {
	ms := []Manifest{plugin("c"), plugin("a"), plugin("b")}
	SortManifests(ms)
	want := []string{"a", "b", "c"}
	for i, m := range ms {
		if m.PackageName() != want[i] {
			t.Errorf("position %d: got %s, want %s", i, m.PackageName(), want[i])
		}
	}
}
