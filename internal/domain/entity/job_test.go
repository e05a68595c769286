package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobWalksThePipelineInOrder(t *testing.T) {
	job := NewAnalysisJob("user-1", "user-1/video.mp4", "video/mp4", 2048)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.False(t, job.InFlight())

	require.NoError(t, job.MarkExtracting())
	assert.True(t, job.InFlight())

	require.NoError(t, job.MarkRequesting())
	require.NoError(t, job.MarkInterpreting())

	verdict := &Verdict{IsAuthentic: true, Confidence: 88, Issues: []string{}, Details: "clean"}
	require.NoError(t, job.MarkCompleted(verdict, "user-1/evidence.zip", 5, 12.5))

	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.True(t, job.Terminal())
	assert.Equal(t, verdict, job.Verdict)
	assert.Equal(t, 5, job.FrameCount)
	assert.NotNil(t, job.CompletedAt)
}

func TestJobRejectsSkippedStages(t *testing.T) {
	job := NewAnalysisJob("u", "k", "video/mp4", 0)

	assert.Error(t, job.MarkRequesting(), "cannot request before extracting")
	assert.Error(t, job.MarkInterpreting())
	assert.Error(t, job.MarkCompleted(&Verdict{}, "", 0, 0))
}

func TestJobFailableFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range []func(j *AnalysisJob){
		func(j *AnalysisJob) {},
		func(j *AnalysisJob) { _ = j.MarkExtracting() },
		func(j *AnalysisJob) { _ = j.MarkExtracting(); _ = j.MarkRequesting() },
		func(j *AnalysisJob) {
			_ = j.MarkExtracting()
			_ = j.MarkRequesting()
			_ = j.MarkInterpreting()
		},
	} {
		job := NewAnalysisJob("u", "k", "video/mp4", 0)
		setup(job)

		require.NoError(t, job.MarkFailed("boom"))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, "boom", job.ErrorMessage)
		assert.Nil(t, job.Verdict)
	}
}

func TestJobTerminalStatesAreSticky(t *testing.T) {
	job := NewAnalysisJob("u", "k", "video/mp4", 0)
	require.NoError(t, job.MarkFailed("boom"))

	assert.Error(t, job.MarkExtracting())
	assert.Error(t, job.MarkFailed("again"))

	done := NewAnalysisJob("u", "k", "video/mp4", 0)
	require.NoError(t, done.MarkExtracting())
	require.NoError(t, done.MarkRequesting())
	require.NoError(t, done.MarkInterpreting())
	require.NoError(t, done.MarkCompleted(&Verdict{Issues: []string{}}, "", 1, 1))

	assert.Error(t, done.MarkFailed("too late"))
	assert.Error(t, done.MarkExtracting())
}

func TestJobStaleness(t *testing.T) {
	job := NewAnalysisJob("u", "k", "video/mp4", 0)
	assert.False(t, job.Stale(time.Minute), "PENDING jobs are never stale")

	require.NoError(t, job.MarkExtracting())
	assert.False(t, job.Stale(time.Minute), "a fresh transition is not stale")

	job.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	assert.True(t, job.Stale(30*time.Minute))

	require.NoError(t, job.MarkFailed("boom"))
	job.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	assert.False(t, job.Stale(30*time.Minute), "terminal jobs are never stale")
}

func TestJobRecoverReturnsAbandonedJobToPending(t *testing.T) {
	job := NewAnalysisJob("u", "k", "video/mp4", 0)
	require.NoError(t, job.MarkExtracting())
	require.NoError(t, job.MarkRequesting())

	require.NoError(t, job.Recover())
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Empty(t, job.ErrorMessage)

	// the recovered job walks the whole pipeline again
	require.NoError(t, job.MarkExtracting())
	require.NoError(t, job.MarkRequesting())
	require.NoError(t, job.MarkInterpreting())
	require.NoError(t, job.MarkCompleted(&Verdict{Issues: []string{}}, "", 1, 1))
}

func TestJobRecoverRejectsSettledAndPendingJobs(t *testing.T) {
	pending := NewAnalysisJob("u", "k", "video/mp4", 0)
	assert.Error(t, pending.Recover())

	failed := NewAnalysisJob("u", "k", "video/mp4", 0)
	require.NoError(t, failed.MarkFailed("boom"))
	assert.Error(t, failed.Recover())
}
