package models

import "time"

// UsageRecord accumulates transcribed seconds per user per billing period
type UsageRecord struct {
	UserID             string    `json:"user_id" gorm:"primaryKey;size:64"`
	PeriodStart        time.Time `json:"period_start" gorm:"primaryKey"`
	SecondsTranscribed int64     `json:"seconds_transcribed" gorm:"not null;default:0"`
	JobsCompleted      int64     `json:"jobs_completed" gorm:"not null;default:0"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UsageRecord) TableName() string {
	return "usage_records"
}

// PeriodStart returns the billing period containing t: the first day of its UTC month.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// All returns every model managed by migrations
func All() []any {
	return []any{
		&TranscriptJob{},
		&AudioChunk{},
		&UsageRecord{},
	}
}

// TableNames lists the tables created by migrations, in migration order
func TableNames() []string {
	return []string{
		TranscriptJob{}.TableName(),
		AudioChunk{}.TableName(),
		UsageRecord{}.TableName(),
	}
}
