package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (
			id, user_id, video_key, content_type, report_key, status,
			frame_count, file_size, video_duration,
			is_authentic, confidence, issues, details,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	isAuth, confidence, issues, details := verdictColumns(job.Verdict)

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.VideoKey, job.ContentType, job.ReportKey, string(job.Status),
		job.FrameCount, job.FileSize, job.VideoDuration,
		isAuth, confidence, issues, details,
		job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.AnalysisJob) error {
	query := `
		UPDATE analysis_jobs SET
			status=$2, report_key=$3, frame_count=$4, video_duration=$5,
			is_authentic=$6, confidence=$7, issues=$8, details=$9,
			error_message=$10, updated_at=$11, completed_at=$12
		WHERE id=$1`

	isAuth, confidence, issues, details := verdictColumns(job.Verdict)

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.ReportKey, job.FrameCount, job.VideoDuration,
		isAuth, confidence, issues, details,
		job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update analysis job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error) {
	query := `
		SELECT id, user_id, video_key, content_type, report_key, status,
			frame_count, file_size, video_duration,
			is_authentic, confidence, issues, details,
			error_message, created_at, updated_at, completed_at
		FROM analysis_jobs WHERE id=$1`

	job := &entity.AnalysisJob{}
	var (
		status     string
		isAuth     *bool
		confidence *float64
		issues     []string
		details    *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.VideoKey, &job.ContentType, &job.ReportKey, &status,
		&job.FrameCount, &job.FileSize, &job.VideoDuration,
		&isAuth, &confidence, &issues, &details,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find analysis job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)

	if isAuth != nil && confidence != nil {
		verdict := &entity.Verdict{
			IsAuthentic: *isAuth,
			Confidence:  *confidence,
			Issues:      issues,
		}
		if verdict.Issues == nil {
			verdict.Issues = []string{}
		}
		if details != nil {
			verdict.Details = *details
		}
		job.Verdict = verdict
	}
	return job, nil
}

func verdictColumns(v *entity.Verdict) (isAuth *bool, confidence *float64, issues []string, details *string) {
	if v == nil {
		return nil, nil, nil, nil
	}
	return &v.IsAuthentic, &v.Confidence, v.Issues, &v.Details
}
