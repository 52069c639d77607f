package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Survey struct {
	ID          int        `json:"id,omitempty"`
	Code        string     `json:"code"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	IsRandom    bool       `json:"is_random"`
	RandomCount int        `json:"random_count,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at,omitempty"`
	Questions   []Question `json:"questions"`
}

// Question types: single, multiple, boolean, text, image.
type Question struct {
	ID          int             `json:"id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Options     json.RawMessage `json:"options,omitempty"`
	IsRequired  bool            `json:"is_required"`
	IsPinned    bool            `json:"is_pinned,omitempty"`
	Order       int             `json:"order"`
}

// Submission status values. Once a submission leaves StatusPending and
// ReviewedAt is set, its answers and files become eligible for cleanup;
// the submission row itself is audit metadata and is never deleted.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Submission struct {
	ID            int        `json:"id"`
	SurveyID      int        `json:"survey_id"`
	PlayerName    string     `json:"player_name"`
	IP            string     `json:"ip,omitempty"`
	FillDuration  float64    `json:"fill_duration,omitempty"`
	FirstViewedAt *time.Time `json:"first_viewed_at,omitempty"`
	Status        string     `json:"status"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewNote    string     `json:"review_note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	Answers       []Answer   `json:"answers,omitempty"`
}

// Answer content is a free-form JSON payload whose shape depends on the
// question type, e.g. {"value":"A"}, {"values":["A","B"]}, {"text":"..."}
// or {"images":["/uploads/xxx.jpg"]}.
type Answer struct {
	ID         int             `json:"id,omitempty"`
	QuestionID int             `json:"question_id"`
	Content    json.RawMessage `json:"content"`
}

type UploadedFile struct {
	ID           int       `json:"id"`
	Filename     string    `json:"filename"`
	StoredName   string    `json:"stored_name"`
	FilePath     string    `json:"file_path"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	SubmissionID *int      `json:"submission_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImageRefs extracts the image references embedded in an answer content
// payload. Payloads without an "images" list yield nil.
func ImageRefs(content []byte) []string {
	var payload struct {
		Images []string `json:"images"`
	}
	if err := json.Unmarshal(content, &payload); err != nil {
		return nil
	}
	return payload.Images
}

// ImageFilename strips the public upload prefix from an image reference,
// leaving the stored file name.
func ImageFilename(ref string) string {
	return strings.TrimPrefix(ref, "/uploads/")
}
