package oauth1

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth1-oob/signature"
)

const (
	testClientKey    = "ClientKeyMustBeLongEnough00001"
	testClientSecret = "ClientSecretMustBeLongEnough01"
)

// setClientEnv sets the minimum env vars for a valid config.
func setClientEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPrefix+"CLIENT_KEY", testClientKey)
	t.Setenv(EnvPrefix+"CLIENT_SECRET", testClientSecret)
}

func TestLoadConfig_Defaults(t *testing.T) {
	setClientEnv(t)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 300*time.Second, cfg.NonceWindow)
	assert.Equal(t, 350*time.Second, cfg.NonceRetention)
	assert.Equal(t, 10*time.Minute, cfg.RequestTokenTTL)
	assert.Zero(t, cfg.AccessTokenTTL)
	assert.True(t, cfg.TLSEnabled)
	assert.True(t, cfg.ForceHTTPS)
	assert.False(t, cfg.TrustProxy)
	assert.False(t, cfg.AllowReauthorization)
	assert.True(t, cfg.AuditLogging)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setClientEnv(t)
	t.Setenv(EnvPrefix+"LISTEN_ADDR", "127.0.0.1:8443")
	t.Setenv(EnvPrefix+"NONCE_WINDOW", "60s")
	t.Setenv(EnvPrefix+"NONCE_RETENTION", "90s")
	t.Setenv(EnvPrefix+"ALLOW_REAUTHORIZATION", "true")
	t.Setenv(EnvPrefix+"DISABLED_SIGNATURE_METHODS", "PLAINTEXT,HMAC-SHA256")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8443", cfg.ListenAddr)
	assert.Equal(t, time.Minute, cfg.NonceWindow)
	assert.True(t, cfg.AllowReauthorization)
	assert.Equal(t, []string{"PLAINTEXT", "HMAC-SHA256"}, cfg.DisabledSignatureMethods)

	srvCfg := cfg.ServerConfig()
	assert.Equal(t, testClientKey, srvCfg.ClientKey)
	assert.Equal(t, 90*time.Second, srvCfg.NonceRetention)
	assert.True(t, srvCfg.AllowReauthorization)
	assert.True(t, srvCfg.ForceHTTPS)

	engine, err := cfg.SignatureEngine()
	require.NoError(t, err)
	assert.False(t, engine.Supports(signature.MethodPlaintext))
	assert.True(t, engine.Supports(signature.MethodHMACSHA1))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ClientKey:      testClientKey,
			ClientSecret:   testClientSecret,
			NonceWindow:    300 * time.Second,
			NonceRetention: 350 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"short key", func(c *Config) { c.ClientKey = "tooshort" }, "CLIENT_KEY"},
		{"long key", func(c *Config) { c.ClientKey = testClientKey + "X" }, "CLIENT_KEY"},
		{"missing secret", func(c *Config) { c.ClientSecret = "" }, "CLIENT_SECRET"},
		{"retention below window", func(c *Config) { c.NonceRetention = time.Minute }, "NONCE_RETENTION"},
		{"cert without key", func(c *Config) { c.TLSCertFile = "cert.pem" }, "TLS_KEY_FILE"},
		{"unknown method", func(c *Config) { c.DisabledSignatureMethods = []string{"MD5"} }, "MD5"},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_SignatureEngine_RSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	cfg := &Config{ClientRSAPublicKey: string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))}
	engine, err := cfg.SignatureEngine()
	require.NoError(t, err)
	assert.True(t, engine.Supports(signature.MethodRSASHA1))

	cfg.ClientRSAPublicKey = "not a key"
	_, err = cfg.SignatureEngine()
	assert.Error(t, err)
}

func TestConfig_Encryptor(t *testing.T) {
	cfg := &Config{ClientKey: testClientKey}
	enc, err := cfg.Encryptor()
	require.NoError(t, err)
	assert.False(t, enc.IsEnabled())

	cfg.EncryptionPassphrase = "correct horse battery staple"
	enc, err = cfg.Encryptor()
	require.NoError(t, err)
	assert.True(t, enc.IsEnabled())

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(key)
	enc, err = cfg.Encryptor()
	require.NoError(t, err)
	assert.True(t, enc.IsEnabled())

	cfg.EncryptionKey = "c2hvcnQ="
	_, err = cfg.Encryptor()
	assert.Error(t, err)
}

func TestConfig_ResolveTLSFiles(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, ok, err := (&Config{}).ResolveTLSFiles()
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("explicit", func(t *testing.T) {
		files, ok, err := (&Config{TLSEnabled: true, TLSCertFile: "/x/c.pem", TLSKeyFile: "/x/k.pem"}).ResolveTLSFiles()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, TLSFiles{CertFile: "/x/c.pem", KeyFile: "/x/k.pem"}, files)
	})

	t.Run("search", func(t *testing.T) {
		dir := t.TempDir()
		cert, key := filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")

		saved := DefaultCertLocations
		t.Cleanup(func() { DefaultCertLocations = saved })
		DefaultCertLocations = []TLSFiles{
			{CertFile: filepath.Join(dir, "missing", "cert.pem"), KeyFile: filepath.Join(dir, "missing", "key.pem")},
			{CertFile: cert, KeyFile: key},
		}

		_, _, err := (&Config{TLSEnabled: true}).ResolveTLSFiles()
		require.Error(t, err, "no files yet")

		require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
		require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))

		files, ok, err := (&Config{TLSEnabled: true}).ResolveTLSFiles()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, cert, files.CertFile)
	})
}
