package entity

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisJob is the audit row of one analysis request. It never carries the
// uploaded document or the generated report.
type AnalysisJob struct {
	ID               uuid.UUID  `json:"id"`
	Filename         string     `json:"filename"`
	Category         string     `json:"category,omitempty"`
	PromptVersion    string     `json:"prompt_version"`
	Model            string     `json:"model"`
	Status           string     `json:"status"`
	PageCount        int        `json:"page_count"`
	ResultKind       string     `json:"result_kind,omitempty"`
	PlagiarismScore  *float64   `json:"plagiarism_score,omitempty"`
	ClarityScore     *int       `json:"clarity_score,omitempty"`
	ReadabilityScore *int       `json:"readability_score,omitempty"`
	TodoList         []string   `json:"todo_list,omitempty"`
	Warnings         int        `json:"warnings"`
	EmailsSent       int        `json:"emails_sent"`
	EmailsFailed     int        `json:"emails_failed"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// Duration is zero while the job is running.
func (j AnalysisJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}
