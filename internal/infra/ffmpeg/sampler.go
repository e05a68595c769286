package ffmpeg

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/port"
)

// mjpegQuality is ffmpeg's 2-31 quantizer scale; 4 lands near JPEG
// quality 0.8. Fixed so repeated runs produce comparable payloads.
const mjpegQuality = "4"

type Sampler struct {
	seekTimeout time.Duration
	logger      *zap.Logger
}

func NewSampler(seekTimeout time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{seekTimeout: seekTimeout, logger: logger}
}

// Sample probes the source and captures n frames at evenly spaced
// interior timestamps: duration/(n+1) * k for k = 1..n. The endpoints
// are never sampled, which skips black start frames and outro cards.
// Seeks run strictly one at a time and each is bounded by the
// configured seek timeout.
func (s *Sampler) Sample(ctx context.Context, videoPath string, n int) (*port.SampleResult, error) {
	if n < 1 {
		return nil, fmt.Errorf("sample count must be at least 1, got %d", n)
	}

	meta, err := s.probe(ctx, videoPath)
	if err != nil {
		return nil, &port.MediaLoadError{Path: videoPath, Err: err}
	}
	if meta.Duration <= 0 {
		return nil, &port.MediaLoadError{
			Path: videoPath,
			Err:  fmt.Errorf("source reports non-positive duration %.3f", meta.Duration),
		}
	}

	timestamps := SampleTimestamps(meta.Duration, n)
	frames := make(entity.FrameSet, 0, n)
	for _, ts := range timestamps {
		data, err := s.captureFrame(ctx, videoPath, ts)
		if err != nil {
			return nil, err
		}
		frames = append(frames, entity.Frame{
			Timestamp: ts,
			DataURI:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
		})
	}

	s.logger.Info("frames sampled",
		zap.Int("count", len(frames)),
		zap.Float64("video_duration", meta.Duration),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)

	return &port.SampleResult{
		Frames:        frames,
		VideoDuration: meta.Duration,
		Width:         meta.Width,
		Height:        meta.Height,
	}, nil
}

// SampleTimestamps divides duration into n+1 equal intervals and
// returns the n interior boundaries, ascending.
func SampleTimestamps(duration float64, n int) []float64 {
	step := duration / float64(n+1)
	out := make([]float64, n)
	for k := 1; k <= n; k++ {
		out[k-1] = step * float64(k)
	}
	return out
}

// captureFrame seeks to ts and decodes a single frame to an in-memory
// JPEG at the source's native dimensions.
func (s *Sampler) captureFrame(ctx context.Context, videoPath string, ts float64) ([]byte, error) {
	seekCtx, cancel := context.WithTimeout(ctx, s.seekTimeout)
	defer cancel()

	cmd := exec.CommandContext(seekCtx, "ffmpeg",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", mjpegQuality,
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(seekCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &port.SeekTimeoutError{Timestamp: ts}
	}
	if err != nil {
		return nil, fmt.Errorf("ffmpeg seek to %.3fs: %w, output: %s", ts, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", ts)
	}
	return stdout.Bytes(), nil
}
