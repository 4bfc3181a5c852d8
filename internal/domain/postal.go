package domain

import (
	"strconv"
	"strings"
)

// IsPostalCode reports whether s is a five-digit German postal code.
func IsPostalCode(s string) bool {
	if len(s) != 5 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidatePostalCode trims s and returns it if it is a valid postal code.
func ValidatePostalCode(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewInputError(field, "is required")
	}
	if !IsPostalCode(s) {
		return "", NewInputError(field, "must be a 5-digit postal code, got %q", s)
	}
	return s, nil
}

// postalZone returns the leading two digits of a validated postal code.
func postalZone(code string) int {
	n, _ := strconv.Atoi(code[:2])
	return n
}
