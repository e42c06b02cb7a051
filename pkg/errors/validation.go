package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// ValidatePackageName validates a package name for safety and correctness.
// It rejects names that could be used for path traversal or injection attacks
// when the name is spliced into registry URLs.
//
// The validation rules are intentionally conservative:
//   - No empty names
//   - No control characters
//   - No path traversal sequences (.., //, etc.)
//   - No null bytes
//   - Maximum length of 256 characters
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"//",   // Double slash
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidPackage, "package name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// nugetPackageIDRegex matches NuGet package ids: letters, digits, '.', '-'
// and '_', starting with a letter, digit or underscore.
var nugetPackageIDRegex = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9._-]*$`)

// ValidateNuGetPackageID validates a NuGet package id (max 100 characters).
func ValidateNuGetPackageID(id string) error {
	if err := ValidatePackageName(id); err != nil {
		return err
	}

	if len(id) > 100 {
		return New(ErrCodeInvalidPackage, "NuGet package id too long (max 100 characters)")
	}

	if !nugetPackageIDRegex.MatchString(id) {
		return New(ErrCodeInvalidPackage, "invalid NuGet package id: %q", id)
	}

	return nil
}

// ValidateDays validates a look-back window in days.
func ValidateDays(days, max int) error {
	if days <= 0 {
		return New(ErrCodeInvalidInput, "days must be positive, got %d", days)
	}
	if days > max {
		return New(ErrCodeInvalidInput, "days must be at most %d, got %d", max, days)
	}
	return nil
}
