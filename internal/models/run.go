package models

import "time"

// Run statuses stored in the run registry.
const (
	RunQueued  = "queued"
	RunRunning = "running"
	RunDone    = "done"
	RunError   = "error"
)

// RunReport summarises one pipeline execution.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Fetched    int       `json:"fetched"`
	New        int       `json:"new"`
	Cleaned    int       `json:"cleaned"`
	Loaded     int       `json:"loaded"`
	FirstRun   bool      `json:"first_run"`
	Error      string    `json:"error,omitempty"`
	ErrorClass string    `json:"error_class,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
