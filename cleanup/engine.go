// Package cleanup purges the content of reviewed submissions on a schedule.
// Answer rows, their referenced images and the matching uploaded_file
// records are deleted; the submission rows survive as audit metadata. A
// second sweep removes upload-directory files no database row references
// once they exceed an age threshold.
package cleanup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mkoval/formgate/config"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/metrics"
	"github.com/mkoval/formgate/model"
)

const errBackoff = time.Hour

type Engine struct {
	db  *sql.DB
	cfg config.Config

	now func() time.Time
}

func NewEngine(db *sql.DB, cfg config.Config) *Engine {
	return &Engine{db: db, cfg: cfg, now: time.Now}
}

// Run executes both sweeps once and returns the aggregate counters. It is
// idempotent: submissions cleaned by an earlier run contribute nothing.
// Individual file deletion failures are logged and swallowed.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	log.Info("cleanup: starting run")
	stats := Stats{}

	reviewed, err := e.sweepReviewed(ctx)
	stats.add(reviewed)
	if err != nil {
		return stats, err
	}

	orphans, err := e.sweepOrphans(ctx)
	stats.add(orphans)
	if err != nil {
		return stats, err
	}

	metrics.CleanupRuns.Inc()
	metrics.CleanupFilesDeleted.Add(float64(stats.FilesDeleted + stats.OrphanFilesDeleted))
	metrics.CleanupBytesFreed.Add(float64(stats.BytesFreed))

	log.Infof("cleanup: done: %d submissions, %d answers, %d files, %d orphans, freed %s",
		stats.SubmissionsCleaned, stats.AnswersDeleted, stats.FilesDeleted,
		stats.OrphanFilesDeleted, stats.FreedHuman())
	return stats, nil
}

// uploadFilename reports whether name is a plain file name directly under
// the upload directory. Answer content is client-supplied: references that
// reach outside the directory must never be deleted.
func uploadFilename(name string) bool {
	return name != "" && name != ".." && !strings.ContainsAny(name, `/\`)
}

// removeFile deletes a file best-effort, returning its size when it was
// actually removed.
func (e *Engine) removeFile(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, false
	}
	if err := os.Remove(path); err != nil {
		log.Warnf("cleanup.remove_file: %s: %s", path, err)
		return 0, false
	}
	return info.Size(), true
}

func (e *Engine) sweepReviewed(ctx context.Context) (stats Stats, err error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT id FROM submission
		WHERE status IN (?, ?)
			AND reviewed_at IS NOT NULL`,
		model.StatusApproved, model.StatusRejected,
	)
	if err != nil {
		return
	}
	defer rows.Close()

	var reviewed []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return
		}
		reviewed = append(reviewed, id)
	}
	if err = rows.Err(); err != nil {
		return
	}

	for _, submissionId := range reviewed {
		var cleaned Stats
		cleaned, err = e.cleanSubmission(ctx, submissionId)
		stats.add(cleaned)
		if err != nil {
			return
		}
	}

	for _, submissionId := range reviewed {
		var cleaned Stats
		cleaned, err = e.cleanUploadRecords(ctx, submissionId)
		stats.add(cleaned)
		if err != nil {
			return
		}
	}
	return
}

// cleanSubmission deletes one reviewed submission's answers and the images
// they reference. A submission whose answers are already gone contributes
// zero.
func (e *Engine) cleanSubmission(ctx context.Context, submissionId int) (stats Stats, err error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT content FROM answer WHERE submission_id = ?",
		submissionId,
	)
	if err != nil {
		return
	}
	defer rows.Close()

	var contents [][]byte
	for rows.Next() {
		var content []byte
		if err = rows.Scan(&content); err != nil {
			return
		}
		contents = append(contents, content)
	}
	if err = rows.Err(); err != nil {
		return
	}

	if len(contents) == 0 {
		return
	}

	for _, content := range contents {
		for _, ref := range model.ImageRefs(content) {
			name := model.ImageFilename(ref)
			if !uploadFilename(name) {
				log.Warnf("cleanup.image_ref: ignoring %q", ref)
				continue
			}
			path := filepath.Join(e.cfg.UploadDir, name)
			if size, ok := e.removeFile(path); ok {
				stats.FilesDeleted++
				stats.BytesFreed += size
			}
		}
	}

	_, err = e.db.ExecContext(ctx,
		"DELETE FROM answer WHERE submission_id = ?",
		submissionId,
	)
	if err != nil {
		return
	}

	stats.AnswersDeleted += len(contents)
	stats.SubmissionsCleaned++
	return
}

// cleanUploadRecords deletes the uploaded_file rows linked to a reviewed
// submission, and their backing files when still present. Files uploaded
// but never referenced through an answer are caught here.
func (e *Engine) cleanUploadRecords(ctx context.Context, submissionId int) (stats Stats, err error) {
	rows, err := e.db.QueryContext(ctx,
		"SELECT id, file_path FROM uploaded_file WHERE submission_id = ?",
		submissionId,
	)
	if err != nil {
		return
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var (
			id   int
			path string
		)
		if err = rows.Scan(&id, &path); err != nil {
			return
		}
		ids = append(ids, id)

		if size, ok := e.removeFile(path); ok {
			stats.FilesDeleted++
			stats.BytesFreed += size
		}
	}
	if err = rows.Err(); err != nil {
		return
	}

	for _, id := range ids {
		if _, err = e.db.ExecContext(ctx, "DELETE FROM uploaded_file WHERE id = ?", id); err != nil {
			return
		}
	}
	return
}

// sweepOrphans removes upload-directory files unknown to the database once
// they are older than the configured threshold. Known names come from both
// uploaded_file rows and image references inside answer contents; a file
// referenced anywhere is never touched, regardless of age.
func (e *Engine) sweepOrphans(ctx context.Context) (stats Stats, err error) {
	entries, err := os.ReadDir(e.cfg.UploadDir)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}

	known, err := e.knownFilenames(ctx)
	if err != nil {
		return
	}

	threshold := time.Duration(e.cfg.OrphanFileHours) * time.Hour
	now := e.now()

	for _, entry := range entries {
		if entry.IsDir() || known[entry.Name()] {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= threshold {
			continue
		}

		path := filepath.Join(e.cfg.UploadDir, entry.Name())
		if size, ok := e.removeFile(path); ok {
			stats.OrphanFilesDeleted++
			stats.BytesFreed += size
		}
	}
	return
}

func (e *Engine) knownFilenames(ctx context.Context) (map[string]bool, error) {
	known := map[string]bool{}

	rows, err := e.db.QueryContext(ctx, "SELECT stored_name FROM uploaded_file")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		known[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	answerRows, err := e.db.QueryContext(ctx, "SELECT content FROM answer")
	if err != nil {
		return nil, err
	}
	defer answerRows.Close()
	for answerRows.Next() {
		var content []byte
		if err := answerRows.Scan(&content); err != nil {
			return nil, err
		}
		for _, ref := range model.ImageRefs(content) {
			if name := model.ImageFilename(ref); uploadFilename(name) {
				known[name] = true
			}
		}
	}
	return known, answerRows.Err()
}
