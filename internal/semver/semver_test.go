package semver

import "testing"

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		rng     string
		version string
		want    bool
	}{
		{"^1.0.0", "1.0.0", true},
		{"^1.0.0", "1.2.5", true},
		{"^1.0.0", "1.9.9", true},
		{"^1.0.0", "2.0.0", false},
		{"^1.0.0", "0.9.0", false},
		{"^1.2.3", "1.2.2", false},
		{"^0.2.3", "0.2.5", true},
		{"^0.2.3", "0.3.0", false},
		{"^0.2.3", "0.2.1", false},
		{"^0.0.3", "0.0.3", true},
		{"^0.0.3", "0.0.4", false},
		{"~1.2.0", "1.2.0", true},
		{"~1.2.0", "1.2.5", true},
		{"~1.2.0", "1.3.0", false},
		{"~1.2.0", "2.0.0", false},
		{">=1.5.0", "1.5.0", true},
		{">=1.5.0", "3.0.0", true},
		{">=1.5.0", "1.4.9", false},
		{"1.0.0", "1.0.0", true},
		{"1.0.0", "1.0.1", false},
		{"*", "4.5.6", true},
		{"", "0.0.1", true},
		{"^1.0.0", "garbage", false},
		{"^nope", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.rng+" "+tt.version, func(t *testing.T) {
			if got := IsCompatible(tt.rng, tt.version); got != tt.want {
				t.Errorf("IsCompatible(%q, %q) = %v, want %v", tt.rng, tt.version, got, tt.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.1", "1.0.0", 1},
		{"1.10.0", "1.9.0", 1},
		{"v2.0.0", "1.9.9", 1},
		{"1.0.0-beta", "1.0.0", 0},
		{"junk", "1.0.0", -1},
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestHasUpdate(t *testing.T) {
	if !HasUpdate("1.0.0", "1.1.0") {
		t.Error("1.1.0 should be an update over 1.0.0")
	}
	if HasUpdate("1.1.0", "1.1.0") {
		t.Error("equal versions are not an update")
	}
	if HasUpdate("", "1.0.0") {
		t.Error("unknown installed version never reports an update")
	}
}

func TestPatterns(t *testing.T) {
	for _, v := range []string{"1.0.0", "1.0.0-alpha.1", "1.0.0+build.5", "10.20.30-rc.1+sha.abc"} {
		if !StrictPattern.MatchString(v) {
			t.Errorf("StrictPattern should match %q", v)
		}
	}
	for _, v := range []string{"not-a-version", "1.0", "01.0.0", "v1.0.0"} {
		if StrictPattern.MatchString(v) {
			t.Errorf("StrictPattern should not match %q", v)
		}
	}
	for _, r := range []string{"*", "1.0.0", "^1.0.0", "~2.1.0", ">=1.0.0", "^1.0.0 || ^2.0.0"} {
		if !RangePattern.MatchString(r) {
			t.Errorf("RangePattern should match %q", r)
		}
	}
	for _, r := range []string{"latest", "^1", "1.x", "|| 1.0.0"} {
		if RangePattern.MatchString(r) {
			t.Errorf("RangePattern should not match %q", r)
		}
	}
}
