// Package testutil provides testing utilities for the oauth1-oob module: a
// controllable clock and builders for signed OAuth 1.0a requests.
package testutil
