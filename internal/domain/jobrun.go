package domain

import "time"

// JobStatus is the lifecycle state of one ETL cycle.
type JobStatus string

const (
	JobRunning JobStatus = "RUNNING"
	JobSuccess JobStatus = "SUCCESS"
	JobPartial JobStatus = "PARTIAL" // some records dropped or quarantined, at least one upserted
	JobFailed  JobStatus = "FAILED"
)

// Committed reports whether a run reached a terminal state that may have
// advanced the checkpoint.
func (s JobStatus) Committed() bool {
	return s == JobSuccess || s == JobPartial
}

// MaxJobErrorLen bounds the error message persisted with a failed run.
const MaxJobErrorLen = 1000

// JobRun records one ETL cycle for one source.
// Corresponds to job_runs table in PostgreSQL.
type JobRun struct {
	ID                 int64
	Source             Source
	Status             JobStatus
	StartedAt          time.Time
	FinishedAt         *time.Time
	RecordsSeen        int
	RecordsDropped     int // malformed records the adapter discarded
	RecordsQuarantined int // records held back by drift blocking
	RecordsUpserted    int
	Checkpoint         *time.Time // high-water mark reached by this run
	Error              string     // truncated to MaxJobErrorLen
}

// TruncateJobError bounds err for persistence. Returns "" for nil.
func TruncateJobError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > MaxJobErrorLen {
		msg = msg[:MaxJobErrorLen]
	}
	return msg
}
