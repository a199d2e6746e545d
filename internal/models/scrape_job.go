package models

import "time"

// ScrapeJob is the persisted record of one dispatched scrape run. Records
// live in a Redis hash keyed by job id; log lines live in a separate list
// per job.
type ScrapeJob struct {
	ID            string     `json:"id"`
	Config        string     `json:"config"`
	Spider        string     `json:"spider"`
	Status        string     `json:"status"`
	StopRequested bool       `json:"stop_requested,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ReturnCode    *int       `json:"returncode,omitempty"`
}

// Job status constants. A worker writes exactly one terminal status; there is
// no transition out of a terminal status without a fresh enqueue.
const (
	JobStatusPending                   = "pending"
	JobStatusRunning                   = "running"
	JobStatusFinished                  = "finished"
	JobStatusFinishedWithParsingErrors = "finished_with_parsing_errors"
	JobStatusFailed                    = "failed"
	JobStatusFailedWithParsingErrors   = "failed_with_parsing_errors"
	JobStatusStopped                   = "stopped"
)

// IsTerminal reports whether the job has reached a final status.
func (j *ScrapeJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusFinished, JobStatusFinishedWithParsingErrors,
		JobStatusFailed, JobStatusFailedWithParsingErrors, JobStatusStopped:
		return true
	}
	return false
}

// Succeeded reports whether the job finished without a process failure.
func (j *ScrapeJob) Succeeded() bool {
	return j.Status == JobStatusFinished || j.Status == JobStatusFinishedWithParsingErrors
}
