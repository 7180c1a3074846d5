package models

import "time"

// ChunkState is the processing state of one planned chunk
type ChunkState string

const (
	ChunkStatePending   ChunkState = "pending"
	ChunkStateSucceeded ChunkState = "succeeded"
	ChunkStateFailed    ChunkState = "failed"
)

// IsTerminal returns true once the chunk has succeeded or failed
func (s ChunkState) IsTerminal() bool {
	return s == ChunkStateSucceeded || s == ChunkStateFailed
}

// AudioChunk is a planned slice [StartOffset, StartOffset+Duration) of a job's audio
type AudioChunk struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	JobID        string        `json:"job_id" gorm:"size:36;not null;uniqueIndex:idx_audio_chunks_job_seq"`
	Seq          int           `json:"seq" gorm:"not null;uniqueIndex:idx_audio_chunks_job_seq"`
	StartOffset  time.Duration `json:"start_offset"`
	Duration     time.Duration `json:"duration"`
	State        ChunkState    `json:"state" gorm:"default:'pending'"`
	RetryCount   int           `json:"retry_count" gorm:"default:0"`
	SegmentCount int           `json:"segment_count" gorm:"default:0"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (AudioChunk) TableName() string {
	return "audio_chunks"
}

// End returns the exclusive end offset of the chunk
func (c AudioChunk) End() time.Duration {
	return c.StartOffset + c.Duration
}
