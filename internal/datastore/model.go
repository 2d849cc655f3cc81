package datastore

import (
	"time"
)

// TranscriptRecord is one completed pipeline cycle persisted for later
// retrieval: the transcript plus its language analysis and timing.
type TranscriptRecord struct {
	ID               string    `gorm:"primaryKey"`
	Timestamp        time.Time `gorm:"index:idx_transcripts_timestamp"`
	Transcript       string
	Language         string
	Sentiment        string `gorm:"index:idx_transcripts_sentiment"`
	Confidence       float64
	ProcessingTimeMs float64
	ClipPath         string
	CreatedAt        time.Time
}

func (TranscriptRecord) TableName() string {
	return "transcripts"
}
