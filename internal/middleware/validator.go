package middleware

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Input validation and sanitization utilities

// MaxInputLen is the longest IOC string accepted from a request.
const MaxInputLen = 2048

// ValidateInput sanitizes one IOC string and checks its length.
func ValidateInput(input string) (string, error) {
	s := SanitizeString(input)
	if s == "" {
		return "", fmt.Errorf("input cannot be empty")
	}
	if len(s) > MaxInputLen {
		return "", fmt.Errorf("input too long (max %d bytes)", MaxInputLen)
	}
	return s, nil
}

// ValidateRisk normalizes a risk filter to Low/Medium/High ("" = any).
func ValidateRisk(risk string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(risk)) {
	case "":
		return "", nil
	case "low":
		return "Low", nil
	case "medium":
		return "Medium", nil
	case "high":
		return "High", nil
	default:
		return "", fmt.Errorf("invalid risk: %s (allowed: Low, Medium, High)", risk)
	}
}

// ValidateScanType normalizes a type filter to url/hash ("" = any).
func ValidateScanType(t string) (string, error) {
	switch s := strings.ToLower(strings.TrimSpace(t)); s {
	case "", "url", "hash":
		return s, nil
	default:
		return "", fmt.Errorf("invalid type: %s (allowed: url, hash)", t)
	}
}

// ValidateFileName strips directories from an uploaded file name.
func ValidateFileName(name string) string {
	name = SanitizeString(name)
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 50 // default
	}
	if limit > 500 {
		return 500 // max limit
	}
	return limit
}

// ValidateOffset clamps negative offsets to 0.
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
