package routes

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mkoval/formgate/app"
	"github.com/mkoval/formgate/gate"
	"github.com/mkoval/formgate/httpx"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/metrics"
	"github.com/mkoval/formgate/model"
)

func PublicGetActiveSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := app.QueryRowContext(r.Context(), `
			SELECT id, code, title, description, is_active, is_random, COALESCE(random_count, 0)
			FROM survey
			WHERE is_active = 1
			ORDER BY updated_at DESC
			LIMIT 1`,
		).Scan(
			&survey.ID, &survey.Code, &survey.Title, &survey.Description,
			&survey.IsActive, &survey.IsRandom, &survey.RandomCount,
		)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_active_survey", "active")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_active_survey", err)
			return
		}

		survey.Questions, err = loadQuestions(r.Context(), app.DB, survey.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_active_survey.questions", err)
			return
		}

		render.JSON(w, r, publicSurveyView(survey))
	}
}

func PublicGetSurveyByCode(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		survey, err := loadSurveyByCode(r.Context(), app.DB, code)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey", code)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}
		if !survey.IsActive {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "get_survey.inactive", "survey is closed")
			return
		}

		render.JSON(w, r, publicSurveyView(survey))
	}
}

type submissionRequest struct {
	PlayerName     string         `json:"player_name"`
	StartTime      *float64       `json:"start_time"`
	TurnstileToken string         `json:"turnstile_token"`
	Answers        []model.Answer `json:"answers"`
}

func PublicSubmitSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		survey, err := loadSurveyByCode(r.Context(), app.DB, code)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "submit_survey", code)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.submit_survey.get_survey", err)
			return
		}
		if !survey.IsActive {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit_survey.inactive", "survey is closed")
			return
		}

		submission := submissionRequest{}
		err = render.DecodeJSON(r.Body, &submission)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if submission.PlayerName == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit_survey.player_name", "missing player_name")
			return
		}
		if err := validateAnswers(survey, submission.Answers); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "submit_survey.answers", "%s", err)
			return
		}

		// the gate runs before anything is persisted; quota is committed
		// only after the insert succeeds
		ip := gate.ClientAddress(r)

		if err := app.Gate.VerifyChallenge(r.Context(), submission.TurnstileToken, ip); err != nil {
			metrics.GateRejectionsTotal.WithLabelValues("challenge").Inc()
			httpx.LogGateError(w, "gate.challenge", err)
			return
		}
		if err := app.Gate.CheckSubmissionRate(ip); err != nil {
			metrics.GateRejectionsTotal.WithLabelValues("rate_limit").Inc()
			httpx.LogGateError(w, "gate.submission_rate", err)
			return
		}
		elapsed, err := app.Gate.CheckFillDuration(submission.StartTime)
		if err != nil {
			metrics.GateRejectionsTotal.WithLabelValues("too_fast").Inc()
			httpx.LogGateError(w, "gate.fill_duration", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var submissionId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO submission (survey_id, player_name, ip, fill_duration)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			survey.ID,
			submission.PlayerName,
			ip,
			elapsed,
		).Scan(&submissionId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO answer (submission_id, question_id, content)
			VALUES (?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.answers.prepare", err)
			return
		}
		defer stmt.Close()

		for _, a := range submission.Answers {
			_, err := stmt.ExecContext(r.Context(), submissionId, a.QuestionID, string(a.Content))
			if err != nil {
				httpx.LogInternalError(w, "db.insert_submission.answers.insert", err)
				return
			}
		}

		// claim uploaded files named in the answers, so cleanup can tie
		// them to this submission
		for _, a := range submission.Answers {
			for _, ref := range model.ImageRefs(a.Content) {
				_, err := tx.ExecContext(r.Context(), `
					UPDATE uploaded_file SET submission_id = ?
					WHERE stored_name = ? AND submission_id IS NULL`,
					submissionId,
					model.ImageFilename(ref),
				)
				if err != nil {
					httpx.LogInternalError(w, "db.insert_submission.claim_upload", err)
					return
				}
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.commit", err)
			return
		}

		app.Gate.RecordSubmission(ip, survey.Code)
		metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": submissionId,
		})
	}
}

func PublicSecurityConfig(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minSubmitTime := 0
		if app.TimeCheckEnabled {
			minSubmitTime = app.MinSubmitSeconds
		}
		render.JSON(w, r, map[string]any{
			"turnstile_enabled":  app.TurnstileEnabled,
			"time_check_enabled": app.TimeCheckEnabled,
			"min_submit_time":    minSubmitTime,
		})
	}
}

func loadSurveyByCode(ctx context.Context, db *sql.DB, code string) (survey model.Survey, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT id, code, title, description, is_active, is_random, COALESCE(random_count, 0)
		FROM survey
		WHERE code = ?`,
		code,
	).Scan(
		&survey.ID, &survey.Code, &survey.Title, &survey.Description,
		&survey.IsActive, &survey.IsRandom, &survey.RandomCount,
	)
	if err != nil {
		return
	}

	survey.Questions, err = loadQuestions(ctx, db, survey.ID)
	return
}

func loadQuestions(ctx context.Context, db *sql.DB, surveyId int) ([]model.Question, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, title, description, type, COALESCE(options, ''), is_required, is_pinned, ord
		FROM question
		WHERE survey_id = ?
		ORDER BY ord, id`,
		surveyId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{}
		var opts string
		err = rows.Scan(&q.ID, &q.Title, &q.Description, &q.Type, &opts, &q.IsRequired, &q.IsPinned, &q.Order)
		if err != nil {
			return nil, err
		}
		if opts != "" {
			q.Options = []byte(opts)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// publicSurveyView strips internal fields and applies random sampling: with
// is_random set, pinned questions always appear and non-pinned ones are
// drawn to fill random_count, ordered by their configured position.
func publicSurveyView(survey model.Survey) model.Survey {
	questions := survey.Questions
	if survey.IsRandom && survey.RandomCount > 0 {
		var pinned, unpinned []model.Question
		for _, q := range questions {
			if q.IsPinned {
				pinned = append(pinned, q)
			} else {
				unpinned = append(unpinned, q)
			}
		}

		remaining := survey.RandomCount - len(pinned)
		if remaining < 0 {
			remaining = 0
		}
		if remaining > len(unpinned) {
			remaining = len(unpinned)
		}

		rand.Shuffle(len(unpinned), func(i, j int) {
			unpinned[i], unpinned[j] = unpinned[j], unpinned[i]
		})
		questions = append(pinned, unpinned[:remaining]...)
		sort.Slice(questions, func(i, j int) bool { return questions[i].Order < questions[j].Order })
	}

	return model.Survey{
		Code:        survey.Code,
		Title:       survey.Title,
		Description: survey.Description,
		IsActive:    survey.IsActive,
		Questions:   questions,
	}
}
