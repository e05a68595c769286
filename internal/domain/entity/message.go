package entity

import "github.com/google/uuid"

// AnalysisRequestMessage is the inbound message from the analysis.request queue.
type AnalysisRequestMessage struct {
	JobID       uuid.UUID `json:"job_id"`
	UserID      string    `json:"user_id"`
	VideoKey    string    `json:"video_key"`
	ContentType string    `json:"content_type"`
	FileSize    int64     `json:"file_size"`
	UserEmail   string    `json:"user_email"`
}

// AnalysisStatusMessage is published to the analysis.status queue on
// every pipeline state transition so the frontend can drive its
// progress indicator.
type AnalysisStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	UserID       string    `json:"user_id"`
	Status       JobStatus `json:"status"`
	VideoKey     string    `json:"video_key"`
	Verdict      *Verdict  `json:"verdict,omitempty"`
	ReportKey    string    `json:"report_key,omitempty"`
	FrameCount   int       `json:"frame_count,omitempty"`
	Duration     float64   `json:"duration_seconds,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
