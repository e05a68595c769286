package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/port"
)

type fakeRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*entity.AnalysisJob
	updateErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: make(map[uuid.UUID]*entity.AnalysisJob)}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.AnalysisJob) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	return r.Create(context.Background(), job)
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	cp := *job
	return &cp, nil
}

type fakeSampler struct {
	err error
}

func (s *fakeSampler) Sample(_ context.Context, _ string, n int) (*port.SampleResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	frames := make(entity.FrameSet, n)
	for i := range frames {
		frames[i] = entity.Frame{
			Timestamp: float64(i+1) * 1.5,
			DataURI:   "data:image/jpeg;base64,ZGF0YQ==",
		}
	}
	return &port.SampleResult{Frames: frames, VideoDuration: float64(n+1) * 1.5, Width: 320, Height: 240}, nil
}

type fakeGateway struct {
	response string
	err      error
	requests []entity.AnalysisRequest
}

func (g *fakeGateway) Infer(_ context.Context, req entity.AnalysisRequest) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

type fakeBundler struct{}

func (b *fakeBundler) Bundle(_ context.Context, _ entity.FrameSet, report []byte) ([]byte, error) {
	return report, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	statuses []entity.AnalysisStatusMessage
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var status entity.AnalysisStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.statuses = append(p.statuses, status)
	return nil
}

func (p *fakePublisher) observed() []entity.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.JobStatus, len(p.statuses))
	for i, s := range p.statuses {
		out[i] = s.Status
	}
	return out
}

type fakeDLQ struct {
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	emails []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, userEmail, _, _, _ string) error {
	n.emails = append(n.emails, userEmail)
	return nil
}

type fixture struct {
	uc        *AnalyzeVideoUseCase
	repo      *fakeRepo
	storage   *fakeStorageAdapter
	gateway   *fakeGateway
	sampler   *fakeSampler
	publisher *fakePublisher
	dlq       *fakeDLQ
	notifier  *fakeNotifier
}

type fakeStorageAdapter struct {
	downloads []string
	reports   []string
}

func (s *fakeStorageAdapter) DownloadVideo(_ context.Context, objectKey, _ string) error {
	s.downloads = append(s.downloads, objectKey)
	return nil
}

func (s *fakeStorageAdapter) UploadReport(_ context.Context, objectKey string, _ io.Reader, _ int64) error {
	s.reports = append(s.reports, objectKey)
	return nil
}

func newFixture(t *testing.T, gateway *fakeGateway, sampler *fakeSampler) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newFakeRepo(),
		storage:   &fakeStorageAdapter{},
		gateway:   gateway,
		sampler:   sampler,
		publisher: &fakePublisher{},
		dlq:       &fakeDLQ{},
		notifier:  &fakeNotifier{},
	}
	f.uc = NewAnalyzeVideoUseCase(
		f.repo, f.storage, f.sampler, f.gateway, &fakeBundler{},
		f.publisher, f.dlq, f.notifier,
		zap.NewNop(),
		AnalyzeVideoConfig{TempDir: t.TempDir(), SampleCount: 5},
	)
	return f
}

func requestMessage(jobID uuid.UUID) []byte {
	msg := entity.AnalysisRequestMessage{
		JobID:       jobID,
		UserID:      "user-1",
		VideoKey:    "user-1/video.mp4",
		ContentType: "video/mp4",
		FileSize:    1024,
		UserEmail:   "user@example.com",
	}
	data, _ := json.Marshal(msg)
	return data
}

func TestExecuteHappyPath(t *testing.T) {
	gateway := &fakeGateway{response: `{"isAuthentic":true,"confidence":95,"issues":[],"details":"ok"}`}
	f := newFixture(t, gateway, &fakeSampler{})

	jobID := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(jobID)))

	job, err := f.repo.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Verdict)
	assert.True(t, job.Verdict.IsAuthentic)
	assert.Equal(t, float64(95), job.Verdict.Confidence)
	assert.Equal(t, 5, job.FrameCount)

	assert.Equal(t, []entity.JobStatus{
		entity.JobStatusExtracting,
		entity.JobStatusRequesting,
		entity.JobStatusInterpreting,
		entity.JobStatusCompleted,
	}, f.publisher.observed())

	// one request, instruction names the frame count, frames in order
	require.Len(t, gateway.requests, 1)
	assert.Contains(t, gateway.requests[0].Instruction, "5 frames")
	assert.Len(t, gateway.requests[0].Frames, 5)

	assert.Empty(t, f.dlq.reasons)
	assert.Empty(t, f.notifier.emails)
	require.Len(t, f.storage.reports, 1)
	assert.Contains(t, f.storage.reports[0], jobID.String())
}

func TestExecuteUnparseableModelReplyStillCompletes(t *testing.T) {
	gateway := &fakeGateway{response: "I believe this video is a deepfake with visible artifacts."}
	f := newFixture(t, gateway, &fakeSampler{})

	jobID := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(jobID)))

	job, err := f.repo.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Verdict)
	assert.False(t, job.Verdict.IsAuthentic)
	assert.Equal(t, float64(70), job.Verdict.Confidence)
}

func TestExecuteRateLimitedFailsWithSpecificMessage(t *testing.T) {
	gateway := &fakeGateway{err: &port.RateLimitError{}}
	f := newFixture(t, gateway, &fakeSampler{})

	jobID := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(jobID)))

	job, err := f.repo.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Nil(t, job.Verdict)
	assert.Contains(t, job.ErrorMessage, "try again later")

	statuses := f.publisher.observed()
	require.NotEmpty(t, statuses)
	assert.Equal(t, entity.JobStatusFailed, statuses[len(statuses)-1])

	assert.Len(t, f.dlq.reasons, 1)
	assert.Equal(t, []string{"user@example.com"}, f.notifier.emails)
}

func TestExecuteMediaLoadFailure(t *testing.T) {
	sampler := &fakeSampler{err: &port.MediaLoadError{Path: "x", Err: fmt.Errorf("bad container")}}
	f := newFixture(t, &fakeGateway{}, sampler)

	jobID := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(jobID)))

	job, err := f.repo.FindByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "could not be decoded")
}

func TestExecuteRejectsNonVideoSubmission(t *testing.T) {
	f := newFixture(t, &fakeGateway{}, &fakeSampler{})

	msg := entity.AnalysisRequestMessage{
		JobID:       uuid.New(),
		UserID:      "user-1",
		VideoKey:    "user-1/cat.png",
		ContentType: "image/png",
	}
	data, _ := json.Marshal(msg)
	require.NoError(t, f.uc.Execute(context.Background(), data))

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "only video submissions")

	// the pipeline was never entered
	assert.Empty(t, f.storage.downloads)
}

func TestExecuteDropsDuplicateInFlightRequest(t *testing.T) {
	f := newFixture(t, &fakeGateway{}, &fakeSampler{})

	job := entity.NewAnalysisJob("user-1", "user-1/video.mp4", "video/mp4", 1024)
	require.NoError(t, job.MarkExtracting())
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(job.ID)))

	assert.Empty(t, f.publisher.observed())
	assert.Empty(t, f.storage.downloads)

	persisted, err := f.repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusExtracting, persisted.Status)
}

func TestExecutePersistFailureGoesToDLQAndErrors(t *testing.T) {
	gateway := &fakeGateway{response: `{"isAuthentic":true,"confidence":95,"issues":[],"details":"ok"}`}
	f := newFixture(t, gateway, &fakeSampler{})
	f.repo.updateErr = fmt.Errorf("connection refused")

	jobID := uuid.New()
	err := f.uc.Execute(context.Background(), requestMessage(jobID))
	require.Error(t, err, "an infra fault must nack the delivery")

	// the submission leaves a trace even though the row was lost
	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "persist_error")
	assert.Contains(t, f.dlq.reasons[0], "connection refused")
}

func TestExecuteReclaimsStaleAbandonedJob(t *testing.T) {
	gateway := &fakeGateway{response: `{"isAuthentic":true,"confidence":95,"issues":[],"details":"ok"}`}
	f := newFixture(t, gateway, &fakeSampler{})

	// a worker died mid-run two hours ago
	job := entity.NewAnalysisJob("user-1", "user-1/video.mp4", "video/mp4", 1024)
	require.NoError(t, job.MarkExtracting())
	job.UpdatedAt = job.UpdatedAt.Add(-2 * time.Hour)
	require.NoError(t, f.repo.Create(context.Background(), job))

	require.NoError(t, f.uc.Execute(context.Background(), requestMessage(job.ID)))

	persisted, err := f.repo.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, persisted.Status)
	require.NotNil(t, persisted.Verdict)

	assert.Equal(t, []entity.JobStatus{
		entity.JobStatusExtracting,
		entity.JobStatusRequesting,
		entity.JobStatusInterpreting,
		entity.JobStatusCompleted,
	}, f.publisher.observed())
}

func TestExecuteMalformedMessageGoesToDLQ(t *testing.T) {
	f := newFixture(t, &fakeGateway{}, &fakeSampler{})

	require.NoError(t, f.uc.Execute(context.Background(), []byte("not json")))

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
}
