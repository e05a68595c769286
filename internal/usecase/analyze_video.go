package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/trueframe/trueframe-analysis-service/internal/analysis"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/port"
	"github.com/trueframe/trueframe-analysis-service/internal/infra/metrics"
)

// AnalyzeVideoUseCase sequences one submission through the pipeline:
// download, sample, infer, interpret. Any stage failure becomes a
// FAILED job with a human-readable message; nothing is retried.
type AnalyzeVideoUseCase struct {
	repo        port.JobRepository
	storage     port.VideoStorage
	sampler     port.FrameSampler
	gateway     port.InferenceGateway
	bundler     port.EvidenceBundler
	publisher   port.StatusPublisher
	dlq         port.DLQPublisher
	notifier    port.FailureNotifier
	logger      *zap.Logger
	tempDir     string
	sampleCount int
	staleAfter  time.Duration
}

type AnalyzeVideoConfig struct {
	TempDir     string
	SampleCount int
	// StaleAfter is how long an in-flight job may sit without a state
	// transition before a redelivered request is allowed to reclaim it.
	StaleAfter time.Duration
}

const defaultStaleAfter = 30 * time.Minute

func NewAnalyzeVideoUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	sampler port.FrameSampler,
	gateway port.InferenceGateway,
	bundler port.EvidenceBundler,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg AnalyzeVideoConfig,
) *AnalyzeVideoUseCase {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &AnalyzeVideoUseCase{
		repo:        repo,
		storage:     storage,
		sampler:     sampler,
		gateway:     gateway,
		bundler:     bundler,
		publisher:   publisher,
		dlq:         dlq,
		notifier:    notifier,
		logger:      logger,
		tempDir:     cfg.TempDir,
		sampleCount: cfg.SampleCount,
		staleAfter:  cfg.StaleAfter,
	}
}

func (uc *AnalyzeVideoUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "AnalyzeVideoUseCase.Execute")
	defer span.End()

	var msg entity.AnalysisRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.JobID == uuid.Nil {
		uc.logger.Error("message carries no job id", zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "missing job id")
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewAnalysisJob(msg.UserID, msg.VideoKey, msg.ContentType, msg.FileSize)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "persist_error: "+err.Error())
			return fmt.Errorf("create job: %w", err)
		}
	}

	// One pipeline run owns a job. Redelivered or duplicated requests
	// for a job that is in flight or already settled are dropped —
	// unless the in-flight job went stale, meaning its worker died
	// mid-run and the redelivery is the only way it will ever settle.
	if job.InFlight() {
		if !job.Stale(uc.staleAfter) {
			log.Warn("duplicate analysis request ignored, job already in flight",
				zap.String("status", string(job.Status)))
			return nil
		}
		log.Warn("reclaiming abandoned job",
			zap.String("status", string(job.Status)),
			zap.Time("updated_at", job.UpdatedAt))
		if err := job.Recover(); err != nil {
			return err
		}
		if err := uc.repo.Update(ctx, job); err != nil {
			log.Error("failed to persist job recovery", zap.Error(err))
			_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "persist_error: "+err.Error())
			return fmt.Errorf("recover job: %w", err)
		}
	}
	if job.Terminal() {
		log.Warn("analysis request ignored, job already settled",
			zap.String("status", string(job.Status)))
		return nil
	}

	// Submission boundary: only video media enters the pipeline.
	if !strings.HasPrefix(msg.ContentType, "video/") {
		return uc.fail(ctx, job, msg, rawMsg,
			fmt.Sprintf("unsupported media type %q: only video submissions are accepted", msg.ContentType), log)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	totalTimer := time.Now()
	if err := uc.runPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}
	metrics.StageDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *AnalyzeVideoUseCase) runPipeline(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Extracting covers fetching the source and sampling frames.
	if err := uc.advance(ctx, job, rawMsg, job.MarkExtracting, log); err != nil {
		return err
	}

	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input.video")
	if err := uc.storage.DownloadVideo(ctxDl, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.fail(ctx, job, msg, rawMsg, "the submitted video could not be retrieved", log)
	}
	spanDl.End()
	metrics.StageDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	smStart := time.Now()
	ctxSm, spanSm := tracer.Start(ctx, "sample_frames")
	sampled, err := uc.sampler.Sample(ctxSm, videoPath, uc.sampleCount)
	if err != nil {
		spanSm.End()
		log.Error("frame sampling failed", zap.Error(err))
		return uc.fail(ctx, job, msg, rawMsg, describeError(err), log)
	}
	spanSm.End()
	metrics.StageDuration.WithLabelValues("sample").Observe(time.Since(smStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(sampled.Frames)))

	if err := uc.advance(ctx, job, rawMsg, job.MarkRequesting, log); err != nil {
		return err
	}

	req, err := analysis.BuildRequest(sampled.Frames)
	if err != nil {
		log.Error("request build failed", zap.Error(err))
		return uc.fail(ctx, job, msg, rawMsg, describeError(err), log)
	}

	infStart := time.Now()
	ctxInf, spanInf := tracer.Start(ctx, "infer")
	rawText, err := uc.gateway.Infer(ctxInf, req)
	if err != nil {
		spanInf.End()
		log.Error("inference failed", zap.Error(err))
		return uc.fail(ctx, job, msg, rawMsg, describeError(err), log)
	}
	spanInf.End()
	metrics.StageDuration.WithLabelValues("infer").Observe(time.Since(infStart).Seconds())

	if err := uc.advance(ctx, job, rawMsg, job.MarkInterpreting, log); err != nil {
		return err
	}

	// Interpretation is total: degraded structure, never failure.
	verdict := analysis.Interpret(rawText)

	reportKey := uc.storeEvidence(ctx, job, msg, sampled.Frames, rawText, &verdict, log)

	if err := job.MarkCompleted(&verdict, reportKey, len(sampled.Frames), sampled.VideoDuration); err != nil {
		return err
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "persist_error: "+err.Error())
		return fmt.Errorf("update job completed: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	if verdict.IsAuthentic {
		metrics.VerdictsTotal.WithLabelValues("authentic").Inc()
	} else {
		metrics.VerdictsTotal.WithLabelValues("manipulated").Inc()
	}

	log.Info("analysis completed",
		zap.Bool("is_authentic", verdict.IsAuthentic),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("frame_count", len(sampled.Frames)),
		zap.Float64("duration_secs", sampled.VideoDuration),
	)

	return nil
}

// storeEvidence uploads the audit bundle. Failures here are logged but
// never fail the submission; the verdict stands without the artifact.
func (uc *AnalyzeVideoUseCase) storeEvidence(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	frames entity.FrameSet,
	rawText string,
	verdict *entity.Verdict,
	log *zap.Logger,
) string {
	report, err := json.Marshal(struct {
		JobID       uuid.UUID      `json:"job_id"`
		VideoKey    string         `json:"video_key"`
		Verdict     entity.Verdict `json:"verdict"`
		RawResponse string         `json:"raw_response"`
		Timestamps  []float64      `json:"frame_timestamps"`
	}{
		JobID:       job.ID,
		VideoKey:    msg.VideoKey,
		Verdict:     *verdict,
		RawResponse: rawText,
		Timestamps:  frameTimestamps(frames),
	})
	if err != nil {
		log.Warn("failed to encode evidence report", zap.Error(err))
		return ""
	}

	bundle, err := uc.bundler.Bundle(ctx, frames, report)
	if err != nil {
		log.Warn("failed to build evidence bundle", zap.Error(err))
		return ""
	}

	reportKey := fmt.Sprintf("%s/evidence_%s.zip", msg.UserID, job.ID.String())
	if err := uc.storage.UploadReport(ctx, reportKey, bytes.NewReader(bundle), int64(len(bundle))); err != nil {
		log.Warn("failed to upload evidence bundle", zap.Error(err))
		return ""
	}
	return reportKey
}

// advance applies a state transition, persists it and publishes the
// progress milestone. A persist failure is an infra fault, not a
// pipeline verdict: the raw message is copied to the DLQ so the
// submission leaves a trace even though the job row could not record
// it, and the returned error nacks the delivery.
func (uc *AnalyzeVideoUseCase) advance(ctx context.Context, job *entity.AnalysisJob, rawMsg []byte, transition func() error, log *zap.Logger) error {
	if err := transition(); err != nil {
		return err
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to persist job transition", zap.Error(err), zap.String("status", string(job.Status)))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "persist_error: "+err.Error())
		return fmt.Errorf("update job to %s: %w", job.Status, err)
	}
	uc.publishStatus(ctx, job, log)
	return nil
}

// fail settles the submission: the job carries the message, the raw
// request goes to the DLQ and the user is notified when reachable.
// The delivery itself is acked (nil) so nothing is retried.
func (uc *AnalyzeVideoUseCase) fail(
	ctx context.Context,
	job *entity.AnalysisJob,
	msg entity.AnalysisRequestMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	if err := job.MarkFailed(errMsg); err != nil {
		log.Error("failed to mark job FAILED", zap.Error(err))
	}
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to persist FAILED job", zap.Error(err))
	}
	uc.publishStatus(ctx, job, log)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)
	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}
	return nil
}

func (uc *AnalyzeVideoUseCase) publishStatus(ctx context.Context, job *entity.AnalysisJob, log *zap.Logger) {
	statusMsg := entity.AnalysisStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		VideoKey:     job.VideoKey,
		Verdict:      job.Verdict,
		ReportKey:    job.ReportKey,
		FrameCount:   job.FrameCount,
		Duration:     job.VideoDuration,
		ErrorMessage: job.ErrorMessage,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// describeError maps a pipeline error to the message shown to the
// user. Unknown errors keep their own description; an empty one gets a
// generic fallback.
func describeError(err error) string {
	var (
		mediaErr *port.MediaLoadError
		seekErr  *port.SeekTimeoutError
		emptyErr *port.EmptyFrameSetError
		rateErr  *port.RateLimitError
		quotaErr *port.QuotaExceededError
		gwErr    *port.GatewayError
	)
	switch {
	case errors.As(err, &mediaErr):
		return "the submitted file could not be decoded as a video"
	case errors.As(err, &seekErr):
		return fmt.Sprintf("the video could not be read at %.1fs; the file may be truncated or corrupt", seekErr.Timestamp)
	case errors.As(err, &emptyErr):
		return "no frames could be sampled from the video"
	case errors.As(err, &rateErr):
		return "the analysis service is handling too many requests right now, please try again later"
	case errors.As(err, &quotaErr):
		return "the analysis quota has been exhausted"
	case errors.As(err, &gwErr):
		return fmt.Sprintf("the analysis model is unavailable (upstream status %d)", gwErr.StatusCode)
	}
	if err == nil || err.Error() == "" {
		return "video analysis failed"
	}
	return err.Error()
}

func frameTimestamps(frames entity.FrameSet) []float64 {
	out := make([]float64, len(frames))
	for i, f := range frames {
		out[i] = f.Timestamp
	}
	return out
}
