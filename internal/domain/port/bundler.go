package port

import (
	"context"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

// EvidenceBundler packages the sampled frames and the analysis report
// into a single archive for audit storage.
type EvidenceBundler interface {
	Bundle(ctx context.Context, frames entity.FrameSet, report []byte) ([]byte, error)
}
