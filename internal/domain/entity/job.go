package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending      JobStatus = "PENDING"
	JobStatusExtracting   JobStatus = "EXTRACTING"
	JobStatusRequesting   JobStatus = "REQUESTING"
	JobStatusInterpreting JobStatus = "INTERPRETING"
	JobStatusCompleted    JobStatus = "COMPLETED"
	JobStatusFailed       JobStatus = "FAILED"
)

// validTransitions encodes the pipeline state machine. FAILED is
// reachable from any non-terminal state; both COMPLETED and FAILED are
// terminal. An in-flight state may fall back to PENDING, which is how
// a job abandoned by a crashed worker re-enters the pipeline.
var validTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:      {JobStatusExtracting, JobStatusFailed},
	JobStatusExtracting:   {JobStatusRequesting, JobStatusPending, JobStatusFailed},
	JobStatusRequesting:   {JobStatusInterpreting, JobStatusPending, JobStatusFailed},
	JobStatusInterpreting: {JobStatusCompleted, JobStatusPending, JobStatusFailed},
	JobStatusCompleted:    {},
	JobStatusFailed:       {},
}

// AnalysisJob tracks one video submission through the authenticity
// pipeline.
type AnalysisJob struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	ContentType   string
	FileSize      int64
	Status        JobStatus
	FrameCount    int
	VideoDuration float64
	Verdict       *Verdict
	ReportKey     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewAnalysisJob(userID, videoKey, contentType string, fileSize int64) *AnalysisJob {
	now := time.Now().UTC()
	return &AnalysisJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		ContentType: contentType,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *AnalysisJob) advance(to JobStatus) error {
	for _, allowed := range validTransitions[j.Status] {
		if allowed == to {
			j.Status = to
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("illegal job transition %s -> %s", j.Status, to)
}

func (j *AnalysisJob) MarkExtracting() error   { return j.advance(JobStatusExtracting) }
func (j *AnalysisJob) MarkRequesting() error   { return j.advance(JobStatusRequesting) }
func (j *AnalysisJob) MarkInterpreting() error { return j.advance(JobStatusInterpreting) }

func (j *AnalysisJob) MarkCompleted(v *Verdict, reportKey string, frameCount int, duration float64) error {
	if err := j.advance(JobStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.Verdict = v
	j.ReportKey = reportKey
	j.FrameCount = frameCount
	j.VideoDuration = duration
	j.ErrorMessage = ""
	j.CompletedAt = &now
	return nil
}

func (j *AnalysisJob) MarkFailed(errMsg string) error {
	if err := j.advance(JobStatusFailed); err != nil {
		return err
	}
	// a failed submission never carries a verdict
	j.Verdict = nil
	j.ErrorMessage = errMsg
	return nil
}

// InFlight reports whether the job currently owns the pipeline. A
// duplicate request for an in-flight job is dropped by the use case.
func (j *AnalysisJob) InFlight() bool {
	switch j.Status {
	case JobStatusExtracting, JobStatusRequesting, JobStatusInterpreting:
		return true
	}
	return false
}

func (j *AnalysisJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Stale reports whether an in-flight job has gone longer than
// olderThan without a state transition. A stale job's worker is gone;
// it will never settle on its own.
func (j *AnalysisJob) Stale(olderThan time.Duration) bool {
	return j.InFlight() && time.Since(j.UpdatedAt) > olderThan
}

// Recover returns an abandoned in-flight job to PENDING so a
// redelivered request can run the pipeline again.
func (j *AnalysisJob) Recover() error {
	if err := j.advance(JobStatusPending); err != nil {
		return err
	}
	j.ErrorMessage = ""
	return nil
}
