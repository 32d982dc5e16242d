package client

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExportSummary contains the results of an export run.
type ExportSummary struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	RunID           uuid.UUID `json:"run_id"`
	ExpectedRecords int64     `json:"expected_records"`
	Blocks          int       `json:"blocks"`
	Rows            int       `json:"rows"`
	StreamedValues  int       `json:"streamed_values"`

	// Err is the error that stopped the run, nil if it completed.
	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`

	mu sync.RWMutex
}

// newExportSummary creates a summary stamped with the current time.
func newExportSummary() *ExportSummary {
	return &ExportSummary{Start: time.Now()}
}

// started records the run the summary belongs to.
func (s *ExportSummary) started(run *ExportRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunID = run.ID()
	s.ExpectedRecords = run.RecordCount()
}

// blockFetched counts a non-empty block.
func (s *ExportSummary) blockFetched(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Blocks++
	s.Rows += rows
}

// valueStreamed counts a long-text value resolved by streaming.
// It may be called from several goroutines.
func (s *ExportSummary) valueStreamed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StreamedValues++
}

// finish stamps the end time and the terminating error, if any.
func (s *ExportSummary) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.End = time.Now()
	s.Err = err
	if err != nil {
		s.Error = err.Error()
	}
}

// Duration returns how long the run took.
func (s *ExportSummary) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.End.IsZero() {
		return time.Since(s.Start)
	}
	return s.End.Sub(s.Start)
}

// Complete reports whether the run ended without error and returned the
// number of records announced at initialization.
func (s *ExportSummary) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Err == nil && !s.End.IsZero() && int64(s.Rows) == s.ExpectedRecords
}
