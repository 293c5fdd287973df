package server

import (
	"context"
	"errors"
	"testing"

	"github.com/giantswarm/oauth1-oob/internal/testutil"
	"github.com/giantswarm/oauth1-oob/signature"
	"github.com/giantswarm/oauth1-oob/storage/memory"
)

func newTestValidator(t *testing.T) (*Validator, *memory.ReplayGuard, *signature.Client) {
	t.Helper()
	clock := testutil.NewMockTime(testutil.TestEpoch)

	store := memory.New()
	store.SetClock(clock)
	store.RegisterClient(testutil.ClientKey)
	t.Cleanup(store.Stop)

	guard := memory.NewReplayGuard()
	guard.SetClock(clock)

	v := NewValidator(testutil.ClientKey, testutil.ClientSecret, store, guard, signature.NewEngine())
	return v, guard, testutil.NewClient(clock)
}

func TestValidator_DuplicateProtocolParams(t *testing.T) {
	v, _, client := newTestValidator(t)

	r := testutil.SignedHTTPRequest(t, client, requestTokenURL+"?oauth_nonce=other", "", "", "",
		map[string]string{signature.ParamCallback: signature.CallbackOOB})
	req := testutil.Parse(t, r)

	_, err := v.Validate(context.Background(), StepRequestToken, req)
	if !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("Validate() error = %v, want %v", err, ErrMalformedRequest)
	}
}

func TestValidator_FormBodyParamsAreSigned(t *testing.T) {
	v, _, client := newTestValidator(t)

	r := testutil.SignedHTTPRequest(t, client, requestTokenURL, "scope=read", "", "",
		map[string]string{signature.ParamCallback: signature.CallbackOOB})
	req := testutil.Parse(t, r)

	if _, err := v.Validate(context.Background(), StepRequestToken, req); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	req.Body[0].Value = "write"
	if _, err := v.Validate(context.Background(), StepRequestToken, req); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered Validate() error = %v, want %v", err, ErrBadSignature)
	}
}

func TestValidator_CommitOnce(t *testing.T) {
	v, guard, client := newTestValidator(t)

	req := testutil.SignedRequest(t, client, requestTokenURL, "", "",
		map[string]string{signature.ParamCallback: signature.CallbackOOB})

	// two validations of the same request race to commit
	first, err := v.Validate(context.Background(), StepRequestToken, req)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	second, err := v.Validate(context.Background(), StepRequestToken, req)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if guard.Len() != 0 {
		t.Fatal("Validate must not record the nonce")
	}

	if err := v.Commit(first); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if err := v.Commit(second); !errors.Is(err, ErrReplayOrExpired) {
		t.Fatalf("second Commit() error = %v, want %v", err, ErrReplayOrExpired)
	}
}

func TestValidator_ExchangeRequiresVerifierParam(t *testing.T) {
	v, _, client := newTestValidator(t)

	req := testutil.SignedRequest(t, client, accessTokenURL, "some-token", "secret", nil)
	if _, err := v.Validate(context.Background(), StepAccessToken, req); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("Validate() error = %v, want %v", err, ErrMalformedRequest)
	}
}
