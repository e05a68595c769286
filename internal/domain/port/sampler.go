package port

import (
	"context"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
)

// SampleResult carries the sampled frames plus the source metadata the
// job record needs.
type SampleResult struct {
	Frames        entity.FrameSet
	VideoDuration float64
	Width         int
	Height        int
}

// FrameSampler produces exactly n frames at evenly spaced interior
// timestamps, in ascending capture order. Seeks are strictly
// sequential; one Sample call owns the decoder for its duration.
type FrameSampler interface {
	Sample(ctx context.Context, videoPath string, n int) (*SampleResult, error)
}
