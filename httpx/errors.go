package httpx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mkoval/formgate/gate"
	"github.com/mkoval/formgate/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log a debug message, and send an HTTP response with status 404 and default text
func LogNotFound(w http.ResponseWriter, code string, id any) {
	log.Debugf("%s: not found (%v)", code, id)
	w.WriteHeader(http.StatusNotFound)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// LogGateError translates a submission gate failure into its user-facing
// response: 400 for bad tokens and rushed submissions, 429 for exhausted
// quotas, 500 when the verification service is down.
func LogGateError(w http.ResponseWriter, code string, err error) {
	var (
		challengeErr *gate.ChallengeError
		rateErr      *gate.RateLimitError
		tooFastErr   *gate.TooFastError
	)

	switch {
	case errors.As(err, &challengeErr):
		status := http.StatusBadRequest
		if challengeErr.Unavailable {
			status = http.StatusInternalServerError
		}
		LogStatusMsg(w, status, log.WarnLevel, code, "%s", challengeErr.Error())
	case errors.As(err, &rateErr):
		LogStatusMsg(w, http.StatusTooManyRequests, log.WarnLevel, code, "%s", rateErr.Error())
	case errors.As(err, &tooFastErr):
		LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "%s", tooFastErr.Error())
	default:
		LogInternalError(w, code, err)
	}
}
