package constants

// JobStatus is the canonical status for rows in analysis_job.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusRunning   JobStatus = "RUNNING"   // in progress
	JobStatusExtracted JobStatus = "EXTRACTED" // text pulled out of the PDF
	JobStatusGenerated JobStatus = "GENERATED" // model answered and the answer was parsed
	JobStatusRendered  JobStatus = "RENDERED"  // report PDF built
	JobStatusDelivered JobStatus = "DELIVERED" // emails dispatched, possibly with per-recipient failures
	JobStatusFailed    JobStatus = "FAILED"    // terminal failure
	JobStatusCanceled  JobStatus = "CANCELED"  // caller went away, result discarded
)
