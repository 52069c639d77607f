// Package ratelimit implements the per-IP rolling 24h counters behind the
// submission gate. Counters live in a single JSON file with an in-memory
// mirror; one mutex serializes every load-check-record sequence, so the
// store is race-free within a process but must not be shared between
// processes without an external lock.
package ratelimit

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mkoval/formgate/log"
)

const window = 24 * time.Hour

// ErrLimitExceeded is returned by the Check* operations when an IP has used
// up its daily quota.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// record is the tag shared by the two rate record shapes: submissions carry
// the targeted survey code, uploads are bare timestamps.
type record interface {
	when() float64
}

type submissionRecord struct {
	T      float64 `json:"t"`
	Survey string  `json:"survey,omitempty"`
}

func (r submissionRecord) when() float64 { return r.T }

type uploadRecord float64

func (r uploadRecord) when() float64 { return float64(r) }

type snapshot struct {
	Submissions map[string][]submissionRecord `json:"submissions"`
	Uploads     map[string][]uploadRecord     `json:"uploads"`
}

// Store is the persistent counter store. The zero value is not usable, use
// Open.
type Store struct {
	path string

	mu     sync.Mutex
	loaded bool
	dirty  bool
	cache  snapshot

	now func() time.Time
}

// Open returns a store backed by the file at path. The file is read lazily
// on first use; a missing or corrupt file resets the counters instead of
// failing.
func Open(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// prune returns only the records newer than cutoff. It never reuses the
// input's backing array: callers prune on read without committing.
func prune[R record](records []R, cutoff float64) []R {
	kept := make([]R, 0, len(records))
	for _, r := range records {
		if r.when() > cutoff {
			kept = append(kept, r)
		}
	}
	return kept
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.cache = snapshot{
		Submissions: map[string][]submissionRecord{},
		Uploads:     map[string][]uploadRecord{},
	}

	content, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("ratelimit.load: %s", err)
		}
		return
	}

	var snap snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		// corrupt counter file: reset instead of crashing
		log.Warnf("ratelimit.load.corrupt: resetting counters: %s", err)
		return
	}
	if snap.Submissions != nil {
		s.cache.Submissions = snap.Submissions
	}
	if snap.Uploads != nil {
		s.cache.Uploads = snap.Uploads
	}
}

func (s *Store) saveIfDirty() error {
	if !s.dirty {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	content, err := json.MarshalIndent(s.cache, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, content, 0644); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

func (s *Store) cutoff() float64 {
	return float64(s.now().Add(-window).UnixNano()) / float64(time.Second)
}

func (s *Store) unixNow() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}

// CheckSubmission fails with ErrLimitExceeded when ip already has max or
// more non-expired submission records. It commits no state: call
// RecordSubmission after the guarded action succeeds.
func (s *Store) CheckSubmission(ip string, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	records := prune(s.cache.Submissions[ip], s.cutoff())
	if len(records) >= max {
		return ErrLimitExceeded
	}
	return nil
}

// RecordSubmission appends a submission record for ip and persists the
// store.
func (s *Store) RecordSubmission(ip, surveyCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	records := prune(s.cache.Submissions[ip], s.cutoff())
	records = append(records, submissionRecord{T: s.unixNow(), Survey: surveyCode})
	s.cache.Submissions[ip] = records

	s.dirty = true
	return s.saveIfDirty()
}

// CheckUpload mirrors CheckSubmission for the upload counters.
func (s *Store) CheckUpload(ip string, max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	records := prune(s.cache.Uploads[ip], s.cutoff())
	if len(records) >= max {
		return ErrLimitExceeded
	}
	return nil
}

// RecordUpload appends an upload record for ip and persists the store.
func (s *Store) RecordUpload(ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	records := prune(s.cache.Uploads[ip], s.cutoff())
	records = append(records, uploadRecord(s.unixNow()))
	s.cache.Uploads[ip] = records

	s.dirty = true
	return s.saveIfDirty()
}

type Stats struct {
	ActiveSubmissionIPs int `json:"active_submission_ips"`
	ActiveUploadIPs     int `json:"active_upload_ips"`
	TotalIPsTracked     int `json:"total_ips_tracked"`
}

// Stats reports how many IPs have non-expired records, for the admin
// dashboard.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	cutoff := s.cutoff()
	stats := Stats{}

	tracked := map[string]bool{}
	for ip, records := range s.cache.Submissions {
		tracked[ip] = true
		if len(prune(records, cutoff)) > 0 {
			stats.ActiveSubmissionIPs++
		}
	}
	for ip, records := range s.cache.Uploads {
		tracked[ip] = true
		if len(prune(records, cutoff)) > 0 {
			stats.ActiveUploadIPs++
		}
	}
	stats.TotalIPsTracked = len(tracked)
	return stats
}
