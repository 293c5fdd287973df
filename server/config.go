package server

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	// MinClientKeyLength and MaxClientKeyLength bound the registered client key.
	MinClientKeyLength = 20
	MaxClientKeyLength = 30

	// VerifierLength is the number of digits in an out-of-band verifier.
	VerifierLength = 6
)

// Config holds authorization server configuration
type Config struct {
	// ClientKey and ClientSecret identify the single registered client.
	ClientKey    string
	ClientSecret string

	// NonceWindow is the maximum distance between oauth_timestamp and the
	// server clock. Default: 300s
	NonceWindow time.Duration

	// NonceRetention is how long accepted (timestamp, nonce) pairs are kept.
	// Must not be shorter than NonceWindow. Default: 350s
	NonceRetention time.Duration

	// RequestTokenTTL bounds how long an unexchanged request token lives.
	// Default: 10 minutes
	RequestTokenTTL time.Duration

	// AccessTokenTTL bounds how long access tokens are valid. Zero means no expiry.
	AccessTokenTTL time.Duration

	// AllowReauthorization lets a resource owner authorize an already
	// authorized request token again, replacing its verifier.
	// Default: false
	AllowReauthorization bool

	// ForceHTTPS makes the signature base URL use https regardless of how the
	// request arrived, for deployments behind TLS-terminating infrastructure
	// that does not set X-Forwarded-Proto.
	ForceHTTPS bool

	// TrustProxy enables trusting X-Forwarded-For, X-Real-IP and X-Forwarded-Proto.
	// Only enable behind a reverse proxy you control.
	TrustProxy bool

	// TrustedProxyCount is the number of trusted proxies in front of this server.
	// Default: 1
	TrustedProxyCount int
}

// applySecureDefaults fills in zero values and validates the result.
func applySecureDefaults(config *Config, logger *slog.Logger) (*Config, error) {
	if config.NonceWindow == 0 {
		config.NonceWindow = 300 * time.Second
	}
	if config.NonceRetention == 0 {
		config.NonceRetention = config.NonceWindow + 50*time.Second
	}
	if config.RequestTokenTTL == 0 {
		config.RequestTokenTTL = 10 * time.Minute
	}
	if config.TrustedProxyCount == 0 {
		config.TrustedProxyCount = 1
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	logSecurityWarnings(config, logger)
	return config, nil
}

func validateConfig(config *Config) error {
	if n := len(config.ClientKey); n < MinClientKeyLength || n > MaxClientKeyLength {
		return fmt.Errorf("client key must be %d-%d characters, got %d", MinClientKeyLength, MaxClientKeyLength, n)
	}
	if config.ClientSecret == "" {
		return fmt.Errorf("client secret is required")
	}
	if config.NonceWindow < time.Second {
		return fmt.Errorf("nonce window must be at least one second")
	}
	if config.NonceRetention < config.NonceWindow {
		return fmt.Errorf("nonce retention (%s) must not be shorter than nonce window (%s)",
			config.NonceRetention, config.NonceWindow)
	}
	if config.RequestTokenTTL < 0 || config.AccessTokenTTL < 0 {
		return fmt.Errorf("token TTLs must not be negative")
	}
	if config.TrustedProxyCount < 0 {
		return fmt.Errorf("trusted proxy count must not be negative")
	}
	return nil
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.AllowReauthorization {
		logger.Warn("Re-authorization of authorized request tokens is enabled",
			"risk", "a second authorization silently replaces the first verifier")
	}
	if config.TrustProxy {
		logger.Info("Trusting proxy headers for client IP and scheme",
			"trusted_proxy_count", config.TrustedProxyCount)
	}
}
