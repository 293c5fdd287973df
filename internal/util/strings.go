// Package util provides common utility functions used across the oauth1-oob module.
// These utilities handle string manipulation for logging and other shared operations
// that don't fit into domain-specific packages.
package util

// TokenLogLength is the number of characters of a token value that may appear in logs.
// It gives enough uniqueness for debugging while keeping the value itself secret.
const TokenLogLength = 8

// SafeTruncate safely truncates a string to maxLen characters without panicking.
// Returns the original string if it's shorter than maxLen, otherwise returns
// the first maxLen characters. This prevents index out of bounds errors when
// logging sensitive data like tokens, where only a prefix should be shown.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("very-long-token-abc123", 8) // Returns: "very-lon"
//	SafeTruncate("short", 10)                  // Returns: "short"
//	SafeTruncate("test", -1)                   // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TokenPrefix returns the log-safe prefix of a token value.
func TokenPrefix(token string) string {
	return SafeTruncate(token, TokenLogLength)
}
