package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"buyer@example.com", true},
		{"имя@пример.рф", true},
		{"", false},
		{"not-an-email", false},
		{"a@", false},
	}

	for _, tt := range tests {
		if got := IsValidEmail(tt.email); got != tt.want {
			t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestIsValidQuantity(t *testing.T) {
	if IsValidQuantity(0) {
		t.Errorf("zero quantity must be invalid")
	}
	if IsValidQuantity(-1) {
		t.Errorf("negative quantity must be invalid")
	}
	if !IsValidQuantity(1) {
		t.Errorf("quantity 1 must be valid")
	}
}

func TestIsValidPercent(t *testing.T) {
	for _, p := range []int{0, 10, 100} {
		if !IsValidPercent(p) {
			t.Errorf("percent %d must be valid", p)
		}
	}
	for _, p := range []int{-1, 101} {
		if IsValidPercent(p) {
			t.Errorf("percent %d must be invalid", p)
		}
	}
}
