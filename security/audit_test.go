package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestAuditor_LogEventHashesToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	a := NewAuditor(logger, true)
	a.SetClock(&stepClock{now: time.Unix(1_700_000_000, 0)})

	a.LogEvent(Event{
		Type:      EventAccessTokenIssued,
		ClientKey: "client-1",
		Token:     "very-secret-token-value",
	})

	out := buf.String()
	if !strings.Contains(out, EventAccessTokenIssued) {
		t.Errorf("log output missing event type: %s", out)
	}
	if strings.Contains(out, "very-secret-token-value") {
		t.Error("raw token must not be logged")
	}
	if !strings.Contains(out, "token_hash=") {
		t.Error("token hash should be logged")
	}
}

func TestAuditor_Disabled(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), false)

	a.LogAuthFailure("client-1", "192.0.2.1", "exchange", "bad_signature")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor wrote output: %s", buf.String())
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var a *Auditor
	a.LogEvent(Event{Type: EventAuthFailure})
}

func TestHashForLogging(t *testing.T) {
	if hashForLogging("") != "<empty>" {
		t.Error("empty input should be marked as empty")
	}
	h1 := hashForLogging("abc")
	if h1 == "" || h1 != hashForLogging("abc") {
		t.Error("hash should be stable and non-empty")
	}
}
