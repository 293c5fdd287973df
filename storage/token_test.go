package storage

import (
	"testing"

	"github.com/giantswarm/oauth1-oob/security"
)

func TestEncryptSecret_Disabled(t *testing.T) {
	got, err := EncryptSecret("secret", nil)
	if err != nil || got != "secret" {
		t.Errorf("EncryptSecret() = %q, %v; want passthrough", got, err)
	}
	got, err = DecryptSecret("secret", nil)
	if err != nil || got != "secret" {
		t.Errorf("DecryptSecret() = %q, %v; want passthrough", got, err)
	}
}

func TestEncryptSecret_RoundTrip(t *testing.T) {
	key, _ := security.GenerateKey()
	enc, err := security.NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	sealed, err := EncryptSecret("secret", enc)
	if err != nil {
		t.Fatalf("EncryptSecret() error = %v", err)
	}
	if sealed == "secret" {
		t.Fatal("value was not encrypted")
	}

	plain, err := DecryptSecret(sealed, enc)
	if err != nil || plain != "secret" {
		t.Errorf("DecryptSecret() = %q, %v", plain, err)
	}

	if empty, _ := EncryptSecret("", enc); empty != "" {
		t.Error("empty values should stay empty")
	}
}

func TestToken_IsAuthorizedRequest(t *testing.T) {
	tests := []struct {
		name  string
		token *Token
		want  bool
	}{
		{"nil", nil, false},
		{"unauthorized", &Token{Kind: KindRequest, Status: StatusUnauthorized}, false},
		{"authorized without verifier", &Token{Kind: KindRequest, Status: StatusAuthorized}, false},
		{"authorized", &Token{Kind: KindRequest, Status: StatusAuthorized, Verifier: "123456"}, true},
		{"access token", &Token{Kind: KindAccess, Status: StatusAuthorized, Verifier: "123456"}, false},
		{"consumed", &Token{Kind: KindRequest, Status: StatusConsumed, Verifier: "123456"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.IsAuthorizedRequest(); got != tt.want {
				t.Errorf("IsAuthorizedRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToken_Clone(t *testing.T) {
	orig := &Token{Value: "v", Secret: "s"}
	c := orig.Clone()
	c.Secret = "changed"
	if orig.Secret != "s" {
		t.Error("Clone() must not share state")
	}
	var nilToken *Token
	if nilToken.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}
