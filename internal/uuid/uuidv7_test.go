package uuid

import "testing"

func TestNew_IsVersion7AndOrdered(t *testing.T) {
	a := New()
	b := New()

	if !IsValid(a) || !IsValid(b) {
		t.Fatalf("expected valid UUIDs, got %q and %q", a, b)
	}
	if a[14] != '7' {
		t.Errorf("expected version 7, got %q", a)
	}
	if a >= b {
		t.Errorf("expected %s to sort before %s", a, b)
	}
}

func TestParse(t *testing.T) {
	got, err := Parse(" 0190A2B3-C4D5-7E6F-8A9B-0C1D2E3F4A5B ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "0190a2b3-c4d5-7e6f-8a9b-0c1d2e3f4a5b" {
		t.Errorf("expected lowercase canonical form, got %s", got)
	}

	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error for invalid UUID")
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0190a2b3-c4d5-7e6f-8a9b-0c1d2e3f4a5b", true},
		{"0190a2b3c4d57e6f8a9b0c1d2e3f4a5b", false},
		{"urn:uuid:0190a2b3-c4d5-7e6f-8a9b-0c1d2e3f4a5b", false},
		{"nobody", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.in); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
