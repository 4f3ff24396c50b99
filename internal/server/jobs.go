package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/grantforge/grantforge/internal/agent/core"
)

// Job statuses. processing is the initial state; completed and error are
// terminal for one submission.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Job is what a status poll sees
type Job struct {
	Status  string             `json:"status"`
	Result  core.GrantDocument `json:"result,omitempty"`
	Message string             `json:"message,omitempty"`
}

// JobStore holds the single persisted result slot. The completed result
// lives in a scratch file whose existence is the completion signal, so a
// restarted process still serves the last finished run. Writes go through
// a temp file and rename so a poll never observes a torn result.
//
// The store is deliberately single-slot: concurrent submissions are not
// isolated and the last write wins.
type JobStore struct {
	mu      sync.Mutex
	path    string
	failure string
	logger  *log.Logger
}

// NewJobStore creates the store backed by <dataDir>/temp_result.json
func NewJobStore(dataDir string) (*JobStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &JobStore{
		path:   filepath.Join(dataDir, "temp_result.json"),
		logger: log.New(log.Writer(), "[JOBS] ", log.LstdFlags),
	}, nil
}

// Begin clears the slot for a fresh submission
func (s *JobStore) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failure = ""
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing previous result: %w", err)
	}
	return nil
}

// Complete persists the finished document into the slot
func (s *JobStore) Complete(doc core.GrantDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		s.failure = fmt.Sprintf("could not encode result: %v", err)
		s.logger.Printf("encode result: %v", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.failure = fmt.Sprintf("could not persist result: %v", err)
		s.logger.Printf("write result: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.failure = fmt.Sprintf("could not persist result: %v", err)
		s.logger.Printf("rename result: %v", err)
		return
	}
	s.failure = ""
}

// Fail marks the current submission as failed
func (s *JobStore) Fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = msg
}

// Snapshot returns the current slot state. A read error on the persisted
// result is returned to the caller and leaves the slot untouched.
func (s *JobStore) Snapshot() (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != "" {
		return Job{Status: StatusError, Message: s.failure}, nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return Job{Status: StatusProcessing, Message: "Grant generation is still in progress"}, nil
	}
	if err != nil {
		return Job{}, fmt.Errorf("reading result file: %w", err)
	}

	var result core.GrantDocument
	if err := json.Unmarshal(data, &result); err != nil {
		return Job{}, fmt.Errorf("decoding result file: %w", err)
	}
	return Job{Status: StatusCompleted, Result: result}, nil
}
