package semver

import "testing"

func TestParseVersionRoundTrip(t *testing.T) {
	cases := []string{"1.0.0", "0.2.3", "1.2.3-beta.1", "1.2.3+build.5", "1.2.3-rc.1+build.9"}
	for _, s := range cases {
		v, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", s, err)
		}
		if got := v.String(); got != s {
			t.Errorf("round trip: Parse(%q).String() = %q", s, got)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	if !MustParse("1.0.0").LessThan(MustParse("1.0.1")) {
		t.Error("1.0.0 should be less than 1.0.1")
	}
	if !MustParse("2.0.0").GreaterThan(MustParse("1.9.9")) {
		t.Error("2.0.0 should be greater than 1.9.9")
	}
	if !MustParse("1.0.0").Equal(MustParse("1.0.0")) {
		t.Error("equal versions should compare equal")
	}
}

func TestConstraintParseRoundTrip(t *testing.T) {
	cases := []string{"", "==1.0.0", "!=2.0.0", ">1.0.0", ">=1.0.0", "<2.0.0", "<=2.0.0", "~>1.4.0"}
	for _, s := range cases {
		c, err := ParseConstraint(s)
		if err != nil {
			t.Fatalf("ParseConstraint(%q) error: %v", s, err)
		}
		if got := c.String(); got != s {
			t.Errorf("round trip: ParseConstraint(%q).String() = %q", s, got)
		}
	}
}

func TestConstraintSatisfiesAny(t *testing.T) {
	c, _ := ParseConstraint("")
	if !c.Satisfies(MustParse("9.9.9")) {
		t.Error("empty constraint should satisfy any version")
	}
}

func TestCompatibleUpperBound(t *testing.T) {
	tests := []struct {
		constraint string
		satisfies  []string
		violates   []string
	}{
		{"~>1.4.0", []string{"1.4.0", "1.9.9"}, []string{"2.0.0", "1.3.9"}},
		{"~>0.2.3", []string{"0.2.3", "0.2.99"}, []string{"0.3.0", "0.2.2"}},
		{"~>0.0.3", []string{"0.0.3"}, []string{"0.0.4", "0.0.2"}},
	}
	for _, tc := range tests {
		c, err := ParseConstraint(tc.constraint)
		if err != nil {
			t.Fatalf("ParseConstraint(%q): %v", tc.constraint, err)
		}
		for _, s := range tc.satisfies {
			if !c.Satisfies(MustParse(s)) {
				t.Errorf("%s should satisfy %s", s, tc.constraint)
			}
		}
		for _, s := range tc.violates {
			if c.Satisfies(MustParse(s)) {
				t.Errorf("%s should NOT satisfy %s", s, tc.constraint)
			}
		}
	}
}

func TestParseConstraintsEmpty(t *testing.T) {
	cs, err := ParseConstraints(nil)
	if err != nil || cs != nil {
		t.Errorf("ParseConstraints(nil) = %v, %v; want nil, nil", cs, err)
	}
	if !Satisfies(cs, MustParse("1.0.0")) {
		t.Error("empty constraint list should satisfy any version")
	}
}
