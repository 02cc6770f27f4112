package database

import (
	"time"
)

// PlayHistory records one track that started playing on a device.
type PlayHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Target    string    `gorm:"index;not null" json:"target"`
	VideoID   string    `gorm:"not null" json:"video_id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist,omitempty"`
	StartedAt time.Time `gorm:"index" json:"started_at"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryFilter narrows history queries.
type HistoryFilter struct {
	Target string `json:"target,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}
