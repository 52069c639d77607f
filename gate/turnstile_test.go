package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mkoval/formgate/ratelimit"
)

func testVerifier(endpoint string) *turnstileVerifier {
	return &turnstileVerifier{
		secret:   "s3cret",
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
}

func TestTurnstileVerifySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("secret") != "s3cret" {
			t.Errorf("missing secret, got form %v", r.PostForm)
		}
		if r.PostForm.Get("response") != "tok" {
			t.Errorf("missing response token, got form %v", r.PostForm)
		}
		if r.PostForm.Get("remoteip") != "10.0.0.1" {
			t.Errorf("missing remoteip, got form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	result, err := testVerifier(srv.URL).Verify(context.Background(), "tok", "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatal("expected success")
	}
}

func TestTurnstileVerifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":false,"error-codes":["invalid-input-response"]}`))
	}))
	defer srv.Close()

	result, err := testVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected rejection")
	}
	if len(result.ErrorCodes) != 1 || result.ErrorCodes[0] != "invalid-input-response" {
		t.Fatalf("unexpected error codes: %v", result.ErrorCodes)
	}
}

func TestTurnstileVerifyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testVerifier(srv.URL).Verify(context.Background(), "tok", "")
	if err == nil {
		t.Fatal("expected a transport error")
	}
}

type stubVerifier struct {
	result *VerifyResult
	err    error
}

func (v stubVerifier) Verify(ctx context.Context, token, remoteIP string) (*VerifyResult, error) {
	return v.result, v.err
}

func challengeGate(t *testing.T, failOpen bool, v Verifier) *Gate {
	t.Helper()
	cfg := testConfig()
	cfg.TurnstileEnabled = true
	cfg.TurnstileSecret = "s3cret"
	cfg.TurnstileFailOpen = failOpen

	g := New(cfg, ratelimit.Open(filepath.Join(t.TempDir(), "rate_limit.json")))
	g.verifier = v
	return g
}

func TestVerifyChallengeFailsClosed(t *testing.T) {
	g := challengeGate(t, false, stubVerifier{err: errors.New("connection refused")})

	err := g.VerifyChallenge(context.Background(), "tok", "10.0.0.1")
	challenge := &ChallengeError{}
	if !errors.As(err, &challenge) {
		t.Fatalf("expected ChallengeError, got %v", err)
	}
	if !challenge.Unavailable {
		t.Fatal("service outage must be marked Unavailable")
	}
}

func TestVerifyChallengeFailsOpen(t *testing.T) {
	g := challengeGate(t, true, stubVerifier{err: errors.New("connection refused")})

	if err := g.VerifyChallenge(context.Background(), "tok", "10.0.0.1"); err != nil {
		t.Fatalf("fail-open outage must pass: %s", err)
	}
}

func TestVerifyChallengeBadToken(t *testing.T) {
	g := challengeGate(t, true, stubVerifier{result: &VerifyResult{
		Success:    false,
		ErrorCodes: []string{"invalid-input-response"},
	}})

	// fail-open only covers outages, not rejections
	err := g.VerifyChallenge(context.Background(), "tok", "10.0.0.1")
	challenge := &ChallengeError{}
	if !errors.As(err, &challenge) {
		t.Fatalf("expected ChallengeError, got %v", err)
	}
	if challenge.Unavailable {
		t.Fatal("a rejected token is not an outage")
	}
	if len(challenge.Reasons) != 1 || challenge.Reasons[0] != "invalid-input-response" {
		t.Fatalf("unexpected reasons: %v", challenge.Reasons)
	}
}
