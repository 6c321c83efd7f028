package model

import "time"

// SpotStatusLog is one immutable audit row per accepted sensor message.
// The ingestion pipeline only appends; it never reads these back.
type SpotStatusLog struct {
	ID        int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	SpotID    int       `gorm:"not null;index" json:"spot_id"`
	Status    string    `gorm:"size:20;not null" json:"status"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
}
