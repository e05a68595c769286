package entity

// Frame is one still image captured from a video. DataURI holds the
// complete JPEG payload (data:image/jpeg;base64,...) so a frame never
// depends on the lifetime of the source file.
type Frame struct {
	Timestamp float64 `json:"timestamp"`
	DataURI   string  `json:"-"`
}

// FrameSet is the ordered set of frames submitted together for one
// analysis. Order is capture order and is meaningful downstream.
type FrameSet []Frame

// AnalysisRequest binds the instruction text and the sampled frames
// for a single inference call. Built fresh per submission.
type AnalysisRequest struct {
	Instruction string
	Frames      FrameSet
}

// Verdict is the structured authenticity result. Every interpretation
// path converges on this shape.
type Verdict struct {
	IsAuthentic bool     `json:"isAuthentic"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
	Details     string   `json:"details"`
}
