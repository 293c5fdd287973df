package oauth1

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/giantswarm/oauth1-oob/security"
	"github.com/giantswarm/oauth1-oob/server"
	"github.com/giantswarm/oauth1-oob/signature"
)

// EnvPrefix is prepended to every configuration variable.
const EnvPrefix = "OAUTH1_"

// DefaultCertLocations are searched in order when no TLS files are configured.
var DefaultCertLocations = []TLSFiles{
	{CertFile: "/app/certs/cert.pem", KeyFile: "/app/certs/key.pem"},
	{CertFile: "cert.pem", KeyFile: "key.pem"},
}

// Config holds all environment-based configuration for the server process.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":9090"`

	// The single registered client. The key must be 20-30 characters.
	ClientKey    string `env:"CLIENT_KEY"`
	ClientSecret string `env:"CLIENT_SECRET"`
	// PEM public key enabling RSA-SHA1 for the client.
	ClientRSAPublicKey string `env:"CLIENT_RSA_PUBLIC_KEY"`
	// Comma-separated signature methods to refuse, e.g. "PLAINTEXT".
	DisabledSignatureMethods []string `env:"DISABLED_SIGNATURE_METHODS"`

	// Transport
	TLSEnabled        bool   `env:"TLS_ENABLED" envDefault:"true"`
	TLSCertFile       string `env:"TLS_CERT_FILE"`
	TLSKeyFile        string `env:"TLS_KEY_FILE"`
	ForceHTTPS        bool   `env:"FORCE_HTTPS" envDefault:"true"`
	TrustProxy        bool   `env:"TRUST_PROXY" envDefault:"false"`
	TrustedProxyCount int    `env:"TRUSTED_PROXY_COUNT" envDefault:"1"`

	// Replay protection and token lifetimes
	NonceWindow          time.Duration `env:"NONCE_WINDOW" envDefault:"300s"`
	NonceRetention       time.Duration `env:"NONCE_RETENTION" envDefault:"350s"`
	RequestTokenTTL      time.Duration `env:"REQUEST_TOKEN_TTL" envDefault:"10m"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"0s"`
	AllowReauthorization bool          `env:"ALLOW_REAUTHORIZATION" envDefault:"false"`

	// Per-IP rate limiting. A zero rate disables it.
	RateLimit      int `env:"RATE_LIMIT" envDefault:"10"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Secret encryption at rest. The base64 key wins over the passphrase.
	EncryptionKey        string `env:"ENCRYPTION_KEY"`
	EncryptionPassphrase string `env:"ENCRYPTION_PASSPHRASE"`

	AuditLogging   bool `env:"AUDIT_LOGGING" envDefault:"true"`
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// TLSFiles is a certificate and key pair on disk.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

// warnInsecureEnvFile warns when a .env file holding the client secret is
// readable by group or others.
func warnInsecureEnvFile(logger *slog.Logger) {
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(".env")
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		logger.Warn(".env file has insecure permissions", "mode", fmt.Sprintf("%04o", mode), "recommended", "0600")
	}
}

// LoadConfig reads configuration from OAUTH1_ environment variables, after
// loading a .env file if present.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_ = godotenv.Load()
	warnInsecureEnvFile(logger)

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if n := len(c.ClientKey); n < server.MinClientKeyLength || n > server.MaxClientKeyLength {
		return fmt.Errorf("%sCLIENT_KEY must be %d-%d characters", EnvPrefix, server.MinClientKeyLength, server.MaxClientKeyLength)
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("%sCLIENT_SECRET is required", EnvPrefix)
	}
	if c.NonceRetention < c.NonceWindow {
		return fmt.Errorf("%sNONCE_RETENTION must not be shorter than %sNONCE_WINDOW", EnvPrefix, EnvPrefix)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("%sTLS_CERT_FILE and %sTLS_KEY_FILE must be set together", EnvPrefix, EnvPrefix)
	}
	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	for _, method := range c.DisabledSignatureMethods {
		switch method {
		case signature.MethodHMACSHA1, signature.MethodHMACSHA256, signature.MethodPlaintext, signature.MethodRSASHA1:
		default:
			return fmt.Errorf("%sDISABLED_SIGNATURE_METHODS: unknown method %q", EnvPrefix, method)
		}
	}
	return nil
}

// ServerConfig converts the process configuration into the server's.
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		ClientKey:            c.ClientKey,
		ClientSecret:         c.ClientSecret,
		NonceWindow:          c.NonceWindow,
		NonceRetention:       c.NonceRetention,
		RequestTokenTTL:      c.RequestTokenTTL,
		AccessTokenTTL:       c.AccessTokenTTL,
		AllowReauthorization: c.AllowReauthorization,
		ForceHTTPS:           c.ForceHTTPS,
		TrustProxy:           c.TrustProxy,
		TrustedProxyCount:    c.TrustedProxyCount,
	}
}

// SignatureEngine builds the verifier for the configured client.
func (c *Config) SignatureEngine() (*signature.Engine, error) {
	engine := signature.NewEngine()
	if c.ClientRSAPublicKey != "" {
		key, err := signature.ParseRSAPublicKey([]byte(c.ClientRSAPublicKey))
		if err != nil {
			return nil, fmt.Errorf("parsing %sCLIENT_RSA_PUBLIC_KEY: %w", EnvPrefix, err)
		}
		engine.SetRSAPublicKey(key)
	}
	for _, method := range c.DisabledSignatureMethods {
		engine.Disable(method)
	}
	return engine, nil
}

// Encryptor builds the secret encryptor. Without a key or passphrase it
// returns a disabled encryptor.
func (c *Config) Encryptor() (*security.Encryptor, error) {
	var key []byte
	var err error
	switch {
	case c.EncryptionKey != "":
		key, err = security.KeyFromBase64(c.EncryptionKey)
	case c.EncryptionPassphrase != "":
		key, err = security.KeyFromPassphrase(c.EncryptionPassphrase, c.ClientKey)
	}
	if err != nil {
		return nil, fmt.Errorf("loading encryption key: %w", err)
	}
	return security.NewEncryptor(key)
}

// ResolveTLSFiles returns the configured certificate pair, or the first of
// DefaultCertLocations present on disk. ok is false when TLS is disabled.
func (c *Config) ResolveTLSFiles() (files TLSFiles, ok bool, err error) {
	if !c.TLSEnabled {
		return TLSFiles{}, false, nil
	}
	if c.TLSCertFile != "" {
		return TLSFiles{CertFile: c.TLSCertFile, KeyFile: c.TLSKeyFile}, true, nil
	}
	for _, candidate := range DefaultCertLocations {
		if fileExists(candidate.CertFile) && fileExists(candidate.KeyFile) {
			return candidate, true, nil
		}
	}
	return TLSFiles{}, false, fmt.Errorf("TLS is enabled but no certificate was found; set %sTLS_CERT_FILE and %sTLS_KEY_FILE or %sTLS_ENABLED=false",
		EnvPrefix, EnvPrefix, EnvPrefix)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
