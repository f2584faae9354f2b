package booking

import "testing"

func TestNormalizePhoneCanonicalForm(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"5551234567",
		"555-123-4567",
		"(555) 123-4567",
		"555.123.4567",
		" 555 123 4567 ",
	}
	for _, in := range inputs {
		got, err := NormalizePhone(in)
		if err != nil {
			t.Fatalf("NormalizePhone(%q) error = %v", in, err)
		}
		if got != "5551234567" {
			t.Fatalf("NormalizePhone(%q) = %q, expected 5551234567", in, got)
		}
	}
}

func TestNormalizePhoneRejectsWrongDigitCount(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "555-1234", "15551234567", "abc"} {
		if _, err := NormalizePhone(in); err == nil {
			t.Fatalf("NormalizePhone(%q) expected error, got none", in)
		}
	}
}
