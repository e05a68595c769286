package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.AnalysisJob) error
	Update(ctx context.Context, job *entity.AnalysisJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.AnalysisJob, error)
}
