package capabilities

import "testing"

func TestRegionsOverlap(t *testing.T) {
	cases := []struct {
		name     string
		a, b     FirmwareRegion
		expected bool
	}{
		{"disjoint", FirmwareRegion{Offset: 0, Length: 64}, FirmwareRegion{Offset: 64, Length: 64}, false},
		{"identical", FirmwareRegion{Offset: 0, Length: 64}, FirmwareRegion{Offset: 0, Length: 64}, true},
		{"a starts inside b", FirmwareRegion{Offset: 32, Length: 64}, FirmwareRegion{Offset: 0, Length: 64}, true},
		{"b starts inside a", FirmwareRegion{Offset: 0, Length: 64}, FirmwareRegion{Offset: 32, Length: 64}, true},
		{"adjacent, no overlap", FirmwareRegion{Offset: 0, Length: 32}, FirmwareRegion{Offset: 32, Length: 32}, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := RegionsOverlap(c.a, c.b); got != c.expected {
				t.Fatalf("RegionsOverlap(%+v, %+v) = %v, want %v", c.a, c.b, got, c.expected)
			}
			if got := RegionsOverlap(c.b, c.a); got != c.expected {
				t.Fatalf("RegionsOverlap is not symmetric for %+v, %+v", c.a, c.b)
			}
		})
	}
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	Zeroize(buf)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %v", i, buf)
		}
	}
}

func TestAuthOutcomeGood(t *testing.T) {
	if !(AuthOutcome{Kind: AuthGood}).Good() {
		t.Fatal("AuthGood outcome should be Good()")
	}
	if (AuthOutcome{Kind: AuthBadSignature}).Good() {
		t.Fatal("AuthBadSignature outcome should not be Good()")
	}
}
