package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the status of a transcription job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// rank orders statuses so transitions can only move forward.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusDone, JobStatusError:
		return 2
	default:
		return -1
	}
}

// IsTerminal returns true for done and error
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// CanTransitionTo reports whether moving from s to next is allowed.
// pending may go straight to error (cancellation before dispatch).
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s.IsTerminal() || s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s == JobStatusPending && next == JobStatusDone {
		return false
	}
	return next.rank() > s.rank()
}

// Language is a supported transcription language
type Language string

const (
	LanguageItalian Language = "it"
	LanguageEnglish Language = "en"
)

// IsSupported returns true for it and en
func (l Language) IsSupported() bool {
	return l == LanguageItalian || l == LanguageEnglish
}

// TranscriptJob is one user's request to transcribe and summarize a recording
type TranscriptJob struct {
	ID               string         `json:"id" gorm:"primaryKey;size:36"`
	UserID           string         `json:"user_id" gorm:"not null;index:idx_transcript_jobs_user_created"`
	Language         Language       `json:"language" gorm:"size:2;not null"`
	AudioLocator     string         `json:"audio_locator" gorm:"not null"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	Status           JobStatus      `json:"status" gorm:"default:'pending';index"`
	Progress         int            `json:"progress" gorm:"default:0"` // 0-100
	TotalDuration    time.Duration  `json:"total_duration"`
	ChunkCount       int            `json:"chunk_count"`
	SpeakerCount     int            `json:"speaker_count"`
	TranscriptText   string         `json:"transcript_text,omitempty" gorm:"type:text"`
	Segments         GlobalSegments `json:"segments,omitempty" gorm:"type:json"`
	SummaryText      string         `json:"summary_text,omitempty" gorm:"type:text"`
	ActionItems      ActionItems    `json:"action_items,omitempty" gorm:"type:json"`
	Warning          string         `json:"warning,omitempty"`
	ErrorKind        string         `json:"error_kind,omitempty"`
	Error            string         `json:"error,omitempty"`
	WorkerID         string         `json:"worker_id,omitempty"`
	CancelRequested  bool           `json:"cancel_requested" gorm:"default:false"`
	UsageRecorded    bool           `json:"-" gorm:"default:false"`
	CreatedAt        time.Time      `json:"created_at" gorm:"index:idx_transcript_jobs_user_created"`
	UpdatedAt        time.Time      `json:"updated_at"`
	StartedAt        *time.Time     `json:"started_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (TranscriptJob) TableName() string {
	return "transcript_jobs"
}

// IsTerminal returns true if the job is in a terminal state
func (j *TranscriptJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// CanProcess returns true if the job is ready to be dispatched
func (j *TranscriptJob) CanProcess() bool {
	return j.Status == JobStatusPending && !j.CancelRequested
}

// ActionItems is the list of follow-ups extracted by the summarizer
type ActionItems []string

// Value implements driver.Valuer interface for ActionItems
func (a ActionItems) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface for ActionItems
func (a *ActionItems) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}
	bytes, err := toBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, a)
}

// GlobalSegments is the stitched transcript in time order
type GlobalSegments []GlobalSegment

// Value implements driver.Valuer interface for GlobalSegments
func (s GlobalSegments) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner interface for GlobalSegments
func (s *GlobalSegments) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	bytes, err := toBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, s)
}

// SQLite hands JSON columns back as either []byte or string.
func toBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("type assertion to []byte failed")
	}
}
