package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the final outcome of an ETL run.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
)

// RunStats accumulates the counters of one ETL run. It is created when the run
// starts, updated as stages complete and finalized before being returned.
type RunStats struct {
	RunID              string        `json:"run_id"`
	ItemsLoaded        int           `json:"items_loaded"`
	ActorsLoaded       int           `json:"actors_loaded"`
	InteractionsLoaded int           `json:"interactions_loaded"`
	Errors             int           `json:"errors"`
	Status             RunStatus     `json:"status"`
	ErrorMessage       string        `json:"error_message,omitempty"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
	Duration           time.Duration `json:"-"`
	DurationSeconds    float64       `json:"duration_seconds"`
}

// NewRunStats starts a fresh accumulator.
func NewRunStats() *RunStats {
	return &RunStats{
		RunID:     uuid.NewString(),
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
}

// Finalize stamps the end time and the outcome. An empty message means success.
func (s *RunStats) Finalize(errMsg string) {
	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
	s.DurationSeconds = s.Duration.Seconds()
	if errMsg != "" {
		s.Status = StatusFailed
		s.ErrorMessage = errMsg
		return
	}
	s.Status = StatusSuccess
}

// Succeeded reports whether the run finished cleanly.
func (s *RunStats) Succeeded() bool {
	return s.Status == StatusSuccess
}
