package cleanup

import "fmt"

// Stats aggregates the counters of one cleanup run.
type Stats struct {
	SubmissionsCleaned int   `json:"submissions_cleaned"`
	AnswersDeleted     int   `json:"answers_deleted"`
	FilesDeleted       int   `json:"files_deleted"`
	OrphanFilesDeleted int   `json:"orphan_files_deleted"`
	BytesFreed         int64 `json:"bytes_freed"`
}

func (s *Stats) add(other Stats) {
	s.SubmissionsCleaned += other.SubmissionsCleaned
	s.AnswersDeleted += other.AnswersDeleted
	s.FilesDeleted += other.FilesDeleted
	s.OrphanFilesDeleted += other.OrphanFilesDeleted
	s.BytesFreed += other.BytesFreed
}

// FreedHuman renders BytesFreed for log lines and admin responses.
func (s Stats) FreedHuman() string {
	switch {
	case s.BytesFreed >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(s.BytesFreed)/(1<<20))
	case s.BytesFreed >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(s.BytesFreed)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", s.BytesFreed)
	}
}
