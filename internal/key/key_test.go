package key

import "testing"

func TestGenerateShape(t *testing.T) {
	k, err := Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !Valid(k) {
		t.Fatalf("Generate() = %q, not a valid stable key", k)
	}
}

func TestGenerateUniqueAcrossCalls(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		k, err := Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[k] {
			t.Fatalf("Generate() produced duplicate key %q within 1000 draws", k)
		}
		seen[k] = true
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0123456789ab", true},
		{"deadbeefcafe", true},
		{"", false},
		{"too-short", false},
		{"0123456789abcd", false},
		{"0123456789AB", false},
		{"0123456789g!", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.in); got != tc.want {
			t.Errorf("Valid(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
