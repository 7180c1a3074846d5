package types

import (
	"time"

	"github.com/killallgit/echonote-api/internal/models"
)

// Status constants for API responses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BaseResponse contains fields common to all API responses
type BaseResponse struct {
	Status  string `json:"status"`  // One of the Status constants above
	Message string `json:"message"` // Human-readable message
}

// ErrorResponse for detailed error information
type ErrorResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`   // Error code/type
	Details interface{} `json:"details,omitempty"` // Additional error details
}

// UploadResponse is returned once a recording is stored and its job queued
type UploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// Segment is one speaker turn on the recording timeline
type Segment struct {
	Speaker int     `json:"speaker"`
	Start   float64 `json:"start"` // Seconds
	End     float64 `json:"end"`   // Seconds
	Text    string  `json:"text"`
}

// Transcript is the client view of a transcript job
type Transcript struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Language         string     `json:"language"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	Progress         int        `json:"progress"`
	Duration         float64    `json:"duration,omitempty"` // Seconds
	ChunkCount       int        `json:"chunk_count,omitempty"`
	SpeakerCount     int        `json:"speaker_count"`
	Transcript       string     `json:"transcript,omitempty"`
	Segments         []Segment  `json:"segments,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	ActionItems      []string   `json:"action_items,omitempty"`
	Warning          string     `json:"warning,omitempty"`
	ErrorKind        string     `json:"error_kind,omitempty"`
	Error            string     `json:"error,omitempty"`
	CancelRequested  bool       `json:"cancel_requested,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// TranscriptResponse wraps a single transcript
type TranscriptResponse struct {
	BaseResponse
	Transcript Transcript `json:"transcript"`
}

// TranscriptsResponse for transcript lists
type TranscriptsResponse struct {
	BaseResponse
	Transcripts []Transcript `json:"transcripts"`
	Count       int          `json:"count"` // Number of results in this response
	Total       int64        `json:"total"`
	Offset      int          `json:"offset,omitempty"`
}

// UsagePeriod is the billed usage for one month
type UsagePeriod struct {
	PeriodStart        time.Time `json:"period_start"`
	SecondsTranscribed int64     `json:"seconds_transcribed"`
	JobsCompleted      int64     `json:"jobs_completed"`
}

// UsageResponse reports the current period and recent history
type UsageResponse struct {
	BaseResponse
	Current UsagePeriod   `json:"current"`
	History []UsagePeriod `json:"history"`
}

// ToTranscript converts a job for the API. Segments are only included
// when withSegments is set.
func ToTranscript(job *models.TranscriptJob, withSegments bool) Transcript {
	t := Transcript{
		ID:               job.ID,
		Status:           string(job.Status),
		Language:         string(job.Language),
		OriginalFilename: job.OriginalFilename,
		Progress:         job.Progress,
		Duration:         job.TotalDuration.Seconds(),
		ChunkCount:       job.ChunkCount,
		SpeakerCount:     job.SpeakerCount,
		Summary:          job.SummaryText,
		ActionItems:      job.ActionItems,
		Warning:          job.Warning,
		ErrorKind:        job.ErrorKind,
		Error:            job.Error,
		CancelRequested:  job.CancelRequested,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}

	if withSegments {
		t.Transcript = job.TranscriptText
		t.Segments = make([]Segment, 0, len(job.Segments))
		for _, s := range job.Segments {
			t.Segments = append(t.Segments, Segment{
				Speaker: s.Speaker + 1,
				Start:   s.Start.Seconds(),
				End:     s.End.Seconds(),
				Text:    s.Text,
			})
		}
	}

	return t
}

// ToUsagePeriod converts a usage record for the API
func ToUsagePeriod(r models.UsageRecord) UsagePeriod {
	return UsagePeriod{
		PeriodStart:        r.PeriodStart,
		SecondsTranscribed: r.SecondsTranscribed,
		JobsCompleted:      r.JobsCompleted,
	}
}
