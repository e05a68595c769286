// Package analysis holds the model-facing core of the pipeline: the
// instruction prompt the frames are submitted with, and the
// interpretation of the model's loosely structured reply into a
// Verdict.
package analysis

import (
	"fmt"

	"github.com/trueframe/trueframe-analysis-service/internal/domain/entity"
	"github.com/trueframe/trueframe-analysis-service/internal/domain/port"
)

// instructionTemplate is a versioned contract with the model: its
// wording steers what the model returns, so any edit is an interface
// change, not a cosmetic one.
const instructionTemplate = `You are a deepfake detection expert. Analyze these %d frames extracted from a single video at evenly spaced timestamps and determine whether the video is authentic or manipulated.

Examine the frames for:
1. Facial inconsistencies (unnatural expressions, asymmetry, warping)
2. Temporal inconsistencies between frames (flickering, morphing, identity drift)
3. Lighting and shadow inconsistencies
4. Edge artifacts around faces or objects
5. Texture anomalies (overly smooth or distorted skin, blurring)

Respond with a single JSON object in exactly this format:
{"isAuthentic": true or false, "confidence": an integer from 0 to 100, "issues": ["list of specific issues found, empty if none"], "details": "a short explanation of your assessment"}`

// BuildRequest composes the instruction and the sampled frames into
// one request. Pure and total for any non-empty frame set; frame order
// is preserved as-is.
func BuildRequest(frames entity.FrameSet) (entity.AnalysisRequest, error) {
	if len(frames) == 0 {
		return entity.AnalysisRequest{}, &port.EmptyFrameSetError{}
	}
	return entity.AnalysisRequest{
		Instruction: fmt.Sprintf(instructionTemplate, len(frames)),
		Frames:      frames,
	}, nil
}
