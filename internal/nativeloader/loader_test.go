package nativeloader

import (
	"os"
	"testing"
)

func TestMatchesAtExactAndWildcard(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	if !matchesAt(data, 0, []byte{0xDE, 0xAD}, "xx") {
		t.Error("expected exact match at offset 0")
	}
	if !matchesAt(data, 1, []byte{0x00, 0xBE}, "?x") {
		t.Error("expected wildcard match at offset 1")
	}
	if matchesAt(data, 0, []byte{0xFF, 0xAD}, "xx") {
		t.Error("expected mismatch")
	}
}

func TestScanFindsPatternInSection(t *testing.T) {
	asm := &Assembly{
		Path: "fixture",
		sections: map[string]Section{
			".text":  {Name: ".text", Base: 0x1000, Size: 5},
			".rdata": {Name: ".rdata", Base: 0x2000, Size: 4},
		},
		raw: map[string][]byte{
			".text":  {0x90, 0x90, 0xDE, 0xAD, 0xC3},
			".rdata": {0x11, 0x22, 0xDE, 0xAD},
		},
	}
	loader := &osLoader{}

	addr, ok := loader.Scan(asm, []byte{0xDE, 0xAD}, "xx", 0, ".text")
	if !ok {
		t.Fatal("expected pattern to be found")
	}
	if addr != 0x1000+2 {
		t.Errorf("address = %#x, want %#x", addr, 0x1000+2)
	}

	if _, ok := loader.Scan(asm, []byte{0xFF, 0xFF}, "xx", 0, ".text"); ok {
		t.Error("expected pattern not to be found")
	}

	if _, ok := loader.Scan(asm, []byte{0xDE}, "x", 0, "missing-section"); ok {
		t.Error("expected lookup against a missing section to fail")
	}
}

// TestScanIsScopedToRequestedSection proves Scan never falls back to
// scanning .text's bytes when asked for a different section: .rdata and
// .text here share the same pattern at different addresses, and a scan
// of .rdata must report .rdata's base, not .text's.
func TestScanIsScopedToRequestedSection(t *testing.T) {
	asm := &Assembly{
		Path: "fixture",
		sections: map[string]Section{
			".text":  {Name: ".text", Base: 0x1000, Size: 4},
			".rdata": {Name: ".rdata", Base: 0x9000, Size: 4},
		},
		raw: map[string][]byte{
			".text":  {0xDE, 0xAD, 0xBE, 0xEF},
			".rdata": {0xDE, 0xAD, 0xBE, 0xEF},
		},
	}
	loader := &osLoader{}

	addr, ok := loader.Scan(asm, []byte{0xDE, 0xAD}, "xx", 0, ".rdata")
	if !ok {
		t.Fatal("expected pattern to be found in .rdata")
	}
	if addr != 0x9000 {
		t.Errorf("address = %#x, want %#x (.rdata's base, not .text's)", addr, 0x9000)
	}
}

func TestUnloadMarksAssemblyClosed(t *testing.T) {
	asm := &Assembly{Path: "fixture", sections: map[string]Section{}}
	loader := &osLoader{}
	if err := loader.Unload(asm); err != nil {
		t.Fatalf("Unload returned an error: %v", err)
	}
	if _, err := loader.Symbol(asm, "anything"); err == nil {
		t.Error("expected Symbol lookup on an unloaded assembly to fail")
	}
}

func TestSectionLookupMissing(t *testing.T) {
	asm := &Assembly{Path: "fixture", sections: map[string]Section{}}
	loader := &osLoader{}
	if _, ok := loader.Section(asm, ".rdata"); ok {
		t.Error("expected missing section lookup to report not-found")
	}
}

func TestResolvePathSearchDirs(t *testing.T) {
	dir := t.TempDir()
	full := dir + "/mod.so"
	if err := os.WriteFile(full, nil, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	resolved, err := resolvePath("mod.so", SearchUserDirs, []string{dir})
	if err != nil {
		t.Fatalf("resolvePath error: %v", err)
	}
	if resolved != full {
		t.Errorf("resolved = %q, want %q", resolved, full)
	}
}
