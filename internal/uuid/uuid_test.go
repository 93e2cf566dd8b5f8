package uuid

import "testing"

// TestNewProducesValidV4 verifies generated IDs pass the strict validator.
func TestNewProducesValidV4(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("Generated ID is not a valid v4 UUID: %s", id)
		}
		if seen[id] {
			t.Fatalf("Generated duplicate ID: %s", id)
		}
		seen[id] = true
	}
}

// TestIsValid verifies the strict v4 format check.
func TestIsValid(t *testing.T) {
	valid := []string{
		"550e8400-e29b-41d4-a716-446655440000",
		"550E8400-E29B-41D4-A716-446655440000",
	}
	for _, s := range valid {
		if !IsValid(s) {
			t.Errorf("Expected %q to be valid", s)
		}
	}

	invalid := []string{
		"",
		"not-a-uuid",
		"550e8400e29b41d4a716446655440000",        // no dashes
		"550e8400-e29b-11d4-a716-446655440000",    // v1
		"550e8400-e29b-41d4-c716-446655440000",    // bad variant
		"550e8400-e29b-41d4-a716-44665544000",     // short
		"g50e8400-e29b-41d4-a716-446655440000",    // non-hex
	}
	for _, s := range invalid {
		if IsValid(s) {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
}

// TestValidate verifies the error form.
func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Expected generated ID to validate: %v", err)
	}
	if err := Validate("nope"); err == nil {
		t.Error("Expected error for invalid ID")
	}
}
