package gate

import (
	"fmt"
	"strings"
)

// ChallengeError reports a failed or impossible challenge verification.
// Unavailable distinguishes a broken verification service from a bad token.
type ChallengeError struct {
	Reasons     []string
	Unavailable bool
}

func (e *ChallengeError) Error() string {
	if e.Unavailable {
		return "challenge verification service unavailable"
	}
	if len(e.Reasons) == 0 {
		return "challenge verification failed"
	}
	return "challenge verification failed: " + strings.Join(e.Reasons, ", ")
}

// RateLimitError reports an exhausted daily quota. Max echoes the configured
// limit so user-facing messages can state it.
type RateLimitError struct {
	Max  int
	Kind string // "submission" or "upload"
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many %ss: at most %d per IP per day", e.Kind, e.Max)
}

// TooFastError reports a submission below the minimum plausible fill time.
type TooFastError struct {
	Elapsed float64
}

func (e *TooFastError) Error() string {
	return fmt.Sprintf("submitted too fast (%.1fs)", e.Elapsed)
}
