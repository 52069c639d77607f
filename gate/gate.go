// Package gate guards the submission and upload endpoints against bots and
// rushed entries. It owns no state of its own: challenge verification is
// delegated to a Verifier, quota accounting to the ratelimit store, and the
// fill-time heuristic to the request's declared start timestamp.
package gate

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mkoval/formgate/config"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/ratelimit"
)

type Gate struct {
	cfg      config.Config
	store    *ratelimit.Store
	verifier Verifier

	now func() time.Time
}

func New(cfg config.Config, store *ratelimit.Store) *Gate {
	g := &Gate{cfg: cfg, store: store, now: time.Now}
	if cfg.TurnstileEnabled && cfg.TurnstileSecret != "" {
		g.verifier = NewTurnstileVerifier(cfg.TurnstileSecret)
	}
	return g
}

// VerifyChallenge validates a Turnstile token. When the feature is disabled
// (or no secret is configured) every request passes. A missing token fails
// immediately. An unreachable verification service fails closed unless
// -turnstile-fail-open was set.
func (g *Gate) VerifyChallenge(ctx context.Context, token, ip string) error {
	if !g.cfg.TurnstileEnabled {
		return nil
	}
	if token == "" {
		return &ChallengeError{Reasons: []string{reasonMissing}}
	}
	if g.verifier == nil {
		// enabled but no secret configured: skip (development setup)
		return nil
	}

	result, err := g.verifier.Verify(ctx, token, ip)
	if err != nil {
		if g.cfg.TurnstileFailOpen {
			log.Warnf("gate.challenge: service unreachable, failing open: %s", err)
			return nil
		}
		log.Errorf("gate.challenge: service unreachable: %s", err)
		return &ChallengeError{Reasons: []string{reasonUnreachble}, Unavailable: true}
	}

	if !result.Success {
		return &ChallengeError{Reasons: result.ErrorCodes}
	}
	return nil
}

// CheckSubmissionRate fails with a RateLimitError when ip has exhausted its
// daily submission quota. No state is committed: the caller records the
// submission only after it was persisted.
func (g *Gate) CheckSubmissionRate(ip string) error {
	if !g.cfg.RateLimitEnabled || ip == "" {
		return nil
	}
	err := g.store.CheckSubmission(ip, g.cfg.MaxSubmissionsPerDay)
	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		return &RateLimitError{Max: g.cfg.MaxSubmissionsPerDay, Kind: "submission"}
	}
	return err
}

// RecordSubmission commits a submission against ip's quota. Call it only
// after the submission was successfully persisted, so a failed persistence
// never consumes quota.
func (g *Gate) RecordSubmission(ip, surveyCode string) {
	if !g.cfg.RateLimitEnabled || ip == "" {
		return
	}
	if err := g.store.RecordSubmission(ip, surveyCode); err != nil {
		log.Errorf("gate.record_submission: %s", err)
	}
}

// CheckUploadRate mirrors CheckSubmissionRate for uploads.
func (g *Gate) CheckUploadRate(ip string) error {
	if !g.cfg.RateLimitEnabled || ip == "" {
		return nil
	}
	err := g.store.CheckUpload(ip, g.cfg.MaxUploadsPerDay())
	if errors.Is(err, ratelimit.ErrLimitExceeded) {
		return &RateLimitError{Max: g.cfg.MaxUploadsPerDay(), Kind: "upload"}
	}
	return err
}

// RecordUpload commits an upload against ip's quota, after the file was
// stored.
func (g *Gate) RecordUpload(ip string) {
	if !g.cfg.RateLimitEnabled || ip == "" {
		return
	}
	if err := g.store.RecordUpload(ip); err != nil {
		log.Errorf("gate.record_upload: %s", err)
	}
}

// CheckFillDuration computes how long the form took to fill. A nil start
// means the client opted out of timing: the check is skipped and 0 is
// returned. On success the elapsed seconds are returned even when the check
// is disabled, so callers can persist them as a metric.
func (g *Gate) CheckFillDuration(start *float64) (float64, error) {
	if start == nil {
		return 0, nil
	}

	elapsed := float64(g.now().UnixNano())/float64(time.Second) - *start
	if g.cfg.TimeCheckEnabled && elapsed < float64(g.cfg.MinSubmitSeconds) {
		return elapsed, &TooFastError{Elapsed: elapsed}
	}
	return elapsed, nil
}

// ClientAddress resolves the client IP behind a Cloudflare-fronted reverse
// proxy chain. The precedence order matters: CF-Connecting-IP first, then
// the first X-Forwarded-For entry, then X-Real-IP, then the raw connection
// address.
func ClientAddress(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return ""
}
