package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	siteverifyURL    = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	verifyTimeout    = 10 * time.Second
	reasonMissing    = "missing-input-response"
	reasonUnreachble = "verification-service-unavailable"
)

// Verifier checks a challenge token against a verification service.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (*VerifyResult, error)
}

// VerifyResult is the verification service's answer.
type VerifyResult struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

type turnstileVerifier struct {
	secret   string
	endpoint string
	client   *http.Client
}

// NewTurnstileVerifier returns a Verifier backed by the Cloudflare Turnstile
// siteverify endpoint.
func NewTurnstileVerifier(secret string) Verifier {
	return &turnstileVerifier{
		secret:   secret,
		endpoint: siteverifyURL,
		client:   &http.Client{Timeout: verifyTimeout},
	}
}

func (v *turnstileVerifier) Verify(ctx context.Context, token, remoteIP string) (*VerifyResult, error) {
	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &VerifyResult{}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	return result, nil
}
