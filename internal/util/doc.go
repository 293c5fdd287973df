// Package util provides common utility functions used across the oauth1-oob module.
//
// Key utilities:
//   - SafeTruncate: Safely truncates strings for logging token prefixes
//   - TokenPrefix: The canonical log-safe prefix of a token value
package util
