package routes

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mkoval/formgate/app"
	"github.com/mkoval/formgate/httpx"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/model"
)

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if survey.Title == "" {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "create_survey.title", "missing title")
			return
		}
		if survey.Code == "" {
			survey.Code = strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var surveyId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO survey (code, title, description, is_active, is_random, random_count)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			survey.Code,
			survey.Title,
			survey.Description,
			survey.IsActive,
			survey.IsRandom,
			nullablePositive(survey.RandomCount),
		).Scan(&surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		if err := insertQuestions(r.Context(), tx, surveyId, survey.Questions); err != nil {
			httpx.LogInternalError(w, "db.insert_survey.questions", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":   surveyId,
			"code": survey.Code,
		})
	}
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT s.id, s.code, s.title, s.description, s.is_active, s.is_random,
				COALESCE(s.random_count, 0),
				s.created_at, s.updated_at,
				(SELECT COUNT(*) FROM question q WHERE q.survey_id = s.id),
				(SELECT COUNT(*) FROM submission sub WHERE sub.survey_id = s.id)
			FROM survey s
			ORDER BY s.id`,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.list_surveys", err)
			return
		}
		defer rows.Close()

		items := []map[string]any{}
		for rows.Next() {
			s := model.Survey{}
			var questionCount, submissionCount int
			err = rows.Scan(
				&s.ID, &s.Code, &s.Title, &s.Description, &s.IsActive, &s.IsRandom,
				&s.RandomCount, &s.CreatedAt, &s.UpdatedAt,
				&questionCount, &submissionCount,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.list_surveys.scan", err)
				return
			}
			items = append(items, map[string]any{
				"id": s.ID, "code": s.Code, "title": s.Title,
				"description": s.Description, "is_active": s.IsActive,
				"is_random": s.IsRandom, "random_count": s.RandomCount,
				"created_at": s.CreatedAt, "updated_at": s.UpdatedAt,
				"question_count": questionCount, "submission_count": submissionCount,
			})
		}
		if err := rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.list_surveys.rows", err)
			return
		}

		render.JSON(w, r, items)
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = app.QueryRowContext(r.Context(), `
			SELECT id, code, title, description, is_active, is_random, COALESCE(random_count, 0),
				created_at, updated_at
			FROM survey
			WHERE id = ?`,
			surveyId,
		).Scan(
			&survey.ID, &survey.Code, &survey.Title, &survey.Description,
			&survey.IsActive, &survey.IsRandom, &survey.RandomCount,
			&survey.CreatedAt, &survey.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}

		survey.Questions, err = loadQuestions(r.Context(), app.DB, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.questions", err)
			return
		}

		render.JSON(w, r, survey)
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		result, err := tx.ExecContext(r.Context(), `
			UPDATE survey
			SET title = ?, description = ?, is_active = ?, is_random = ?, random_count = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			survey.Title,
			survey.Description,
			survey.IsActive,
			survey.IsRandom,
			nullablePositive(survey.RandomCount),
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey", err)
			return
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			httpx.LogNotFound(w, "update_survey", surveyId)
			return
		}

		// questions are replaced wholesale; answers keep their question ids
		_, err = tx.ExecContext(r.Context(), "DELETE FROM question WHERE survey_id = ?", surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.delete_questions", err)
			return
		}
		if err := insertQuestions(r.Context(), tx, surveyId, survey.Questions); err != nil {
			httpx.LogInternalError(w, "db.update_survey.questions", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		result, err := app.ExecContext(r.Context(), "DELETE FROM survey WHERE id = ?", surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey", err)
			return
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			httpx.LogNotFound(w, "delete_survey", surveyId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ActivateSurvey makes one survey the active one, deactivating the rest.
func ActivateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		result, err := tx.ExecContext(r.Context(), `
			UPDATE survey SET is_active = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.activate_survey", err)
			return
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			httpx.LogNotFound(w, "activate_survey", surveyId)
			return
		}

		_, err = tx.ExecContext(r.Context(), "UPDATE survey SET is_active = 0 WHERE id != ?", surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.activate_survey.deactivate", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.activate_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, size := pagination(r)

		filter := " WHERE 1=1"
		args := []any{}
		if status := r.URL.Query().Get("status"); status != "" {
			if status != model.StatusPending && status != model.StatusApproved && status != model.StatusRejected {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "list_submissions.status", "invalid status %q", status)
				return
			}
			filter += " AND sub.status = ?"
			args = append(args, status)
		}
		if player := r.URL.Query().Get("player_name"); player != "" {
			filter += " AND sub.player_name = ?"
			args = append(args, player)
		}

		var total int
		err := app.QueryRowContext(r.Context(),
			"SELECT COUNT(*) FROM submission sub"+filter, args...,
		).Scan(&total)
		if err != nil {
			httpx.LogInternalError(w, "db.list_submissions.count", err)
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT sub.id, sub.survey_id, s.title, sub.player_name, sub.status,
				sub.created_at, sub.reviewed_at
			FROM submission sub
			JOIN survey s ON (s.id = sub.survey_id)`+filter+`
			ORDER BY sub.id DESC
			LIMIT ? OFFSET ?`,
			append(args, size, (page-1)*size)...,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.list_submissions", err)
			return
		}
		defer rows.Close()

		items := []map[string]any{}
		for rows.Next() {
			sub := model.Submission{}
			var surveyTitle string
			err = rows.Scan(
				&sub.ID, &sub.SurveyID, &surveyTitle, &sub.PlayerName, &sub.Status,
				&sub.CreatedAt, &sub.ReviewedAt,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.list_submissions.scan", err)
				return
			}
			items = append(items, map[string]any{
				"id": sub.ID, "survey_id": sub.SurveyID, "survey_title": surveyTitle,
				"player_name": sub.PlayerName, "status": sub.Status,
				"created_at": sub.CreatedAt, "reviewed_at": sub.ReviewedAt,
			})
		}
		if err := rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.list_submissions.rows", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"items": items,
			"page":  page,
			"size":  size,
			"total": total,
			"pages": (total + size - 1) / size,
		})
	}
}

func SubmissionStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := map[string]int{}
		rows, err := app.QueryContext(r.Context(),
			"SELECT status, COUNT(*) FROM submission GROUP BY status",
		)
		if err != nil {
			httpx.LogInternalError(w, "db.submission_stats", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				status string
				count  int
			)
			if err := rows.Scan(&status, &count); err != nil {
				httpx.LogInternalError(w, "db.submission_stats.scan", err)
				return
			}
			counts[status] = count
		}
		if err := rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.submission_stats.rows", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"pending":  counts[model.StatusPending],
			"approved": counts[model.StatusApproved],
			"rejected": counts[model.StatusRejected],
			"total":    counts[model.StatusPending] + counts[model.StatusApproved] + counts[model.StatusRejected],
		})
	}
}

func GetSubmissionById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		sub := model.Submission{}
		err = app.QueryRowContext(r.Context(), `
			SELECT id, survey_id, player_name, COALESCE(ip, ''), COALESCE(fill_duration, 0),
				first_viewed_at, status, reviewed_at, COALESCE(review_note, ''), created_at
			FROM submission
			WHERE id = ?`,
			submissionId,
		).Scan(
			&sub.ID, &sub.SurveyID, &sub.PlayerName, &sub.IP, &sub.FillDuration,
			&sub.FirstViewedAt, &sub.Status, &sub.ReviewedAt, &sub.ReviewNote, &sub.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_submission", submissionId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission", err)
			return
		}

		// reviewers see how long a submission sat unread
		if sub.FirstViewedAt == nil {
			now := time.Now().UTC()
			_, err = app.ExecContext(r.Context(),
				"UPDATE submission SET first_viewed_at = ? WHERE id = ? AND first_viewed_at IS NULL",
				now, submissionId,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.get_submission.mark_viewed", err)
				return
			}
			sub.FirstViewedAt = &now
		}

		rows, err := app.QueryContext(r.Context(),
			"SELECT id, question_id, content FROM answer WHERE submission_id = ? ORDER BY id",
			submissionId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submission.answers", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			a := model.Answer{}
			var content string
			if err := rows.Scan(&a.ID, &a.QuestionID, &content); err != nil {
				httpx.LogInternalError(w, "db.get_submission.answers.scan", err)
				return
			}
			a.Content = []byte(content)
			sub.Answers = append(sub.Answers, a)
		}
		if err := rows.Err(); err != nil {
			httpx.LogInternalError(w, "db.get_submission.answers.rows", err)
			return
		}

		render.JSON(w, r, sub)
	}
}

type reviewRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func ReviewSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		submissionId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		review := reviewRequest{}
		err = render.DecodeJSON(r.Body, &review)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if review.Status != model.StatusApproved && review.Status != model.StatusRejected {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "review_submission.status",
				"status must be %q or %q", model.StatusApproved, model.StatusRejected)
			return
		}

		result, err := app.ExecContext(r.Context(), `
			UPDATE submission
			SET status = ?, review_note = ?, reviewed_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			review.Status,
			review.Note,
			submissionId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.review_submission", err)
			return
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			httpx.LogNotFound(w, "review_submission", submissionId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// RunCleanup triggers the retention cleanup synchronously and returns its
// stats. Safe to call repeatedly: already-cleaned submissions contribute
// nothing.
func RunCleanup(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := app.Cleanup.Run(r.Context())
		if err != nil {
			httpx.LogInternalError(w, "cleanup.run", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"submissions_cleaned":  stats.SubmissionsCleaned,
			"answers_deleted":      stats.AnswersDeleted,
			"files_deleted":        stats.FilesDeleted,
			"orphan_files_deleted": stats.OrphanFilesDeleted,
			"space_freed":          stats.FreedHuman(),
		})
	}
}

func RateLimitStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, app.Store.Stats())
	}
}

func insertQuestions(ctx context.Context, tx *sql.Tx, surveyId int, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question (survey_id, title, description, type, options, is_required, is_pinned, ord)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, q := range questions {
		ord := q.Order
		if ord == 0 {
			ord = i
		}
		var opts any
		if len(q.Options) > 0 {
			opts = string(q.Options)
		}
		_, err := stmt.ExecContext(ctx, surveyId, q.Title, q.Description, q.Type, opts, q.IsRequired, q.IsPinned, ord)
		if err != nil {
			return err
		}
	}
	return nil
}

func nullablePositive(n int) any {
	if n > 0 {
		return n
	}
	return nil
}

func pagination(r *http.Request) (page, size int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ = strconv.Atoi(r.URL.Query().Get("size"))
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return
}
