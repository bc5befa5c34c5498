package validation

import (
	"testing"
)

func TestIsValidCurrency(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"USD", true},
		{"EUR", true},
		{"TRY", true},

		// Invalid cases
		{"usd", false},
		{"US", false},
		{"USDT", false},
		{"U5D", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidCurrency(tc.code)
		if result != tc.valid {
			t.Errorf("IsValidCurrency(%q) = %v, want %v", tc.code, result, tc.valid)
		}
	}
}

func TestIsValidMerchantCategory(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"7995", true},
		{"5411", true},
		{"0001", true},

		{"799", false},
		{"79954", false},
		{"79a5", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidMerchantCategory(tc.code)
		if result != tc.valid {
			t.Errorf("IsValidMerchantCategory(%q) = %v, want %v", tc.code, result, tc.valid)
		}
	}
}

func TestIsValidCountry(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"US", true},
		{"TR", true},
		{"us", false},
		{"USA", false},
		{"", false},
	}

	for _, tc := range tests {
		result := IsValidCountry(tc.code)
		if result != tc.valid {
			t.Errorf("IsValidCountry(%q) = %v, want %v", tc.code, result, tc.valid)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	errors := Validate(
		Required("transactionId", "txn_001"),
		ValidCurrency("currency", "USD"),
		PositiveAmount("amount", 42.50),
	)
	if len(errors) != 0 {
		t.Errorf("expected no errors, got %v", errors)
	}

	errors = Validate(
		Required("transactionId", ""),
		ValidCurrency("currency", "usd"),
		PositiveAmount("amount", -1),
		MaxAmount("amount", 200000, 100000),
	)
	if len(errors) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(errors), errors)
	}
}

func TestOneOf(t *testing.T) {
	if err := OneOf("type", "purchase", "purchase", "withdrawal", "transfer")(); err != nil {
		t.Errorf("expected purchase to be allowed, got %v", err)
	}
	if err := OneOf("type", "refund", "purchase", "withdrawal", "transfer")(); err == nil {
		t.Error("expected refund to be rejected")
	}
	if err := OneOf("type", "", "purchase")(); err != nil {
		t.Errorf("empty value should pass OneOf, got %v", err)
	}
}

func TestValidationErrorsError(t *testing.T) {
	var empty ValidationErrors
	if empty.Error() != "validation failed" {
		t.Errorf("unexpected message: %q", empty.Error())
	}

	errs := ValidationErrors{{Field: "amount", Message: "must be greater than zero"}}
	if errs.Error() != "amount: must be greater than zero" {
		t.Errorf("unexpected message: %q", errs.Error())
	}
}
