package port

import (
	"context"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

// InferenceGateway performs one round trip to the hosted multimodal
// model and returns the raw response text. It never retries; retry
// policy, if any, belongs to the caller.
type InferenceGateway interface {
	Infer(ctx context.Context, req entity.AnalysisRequest) (string, error)
}
