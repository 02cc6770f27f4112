package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// HistoryStore persists and queries playback history.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a history store on the given connection.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record stores a playback start event.
func (s *HistoryStore) Record(target, videoID, title, artist string) error {
	entry := PlayHistory{
		Target:    target,
		VideoID:   videoID,
		Title:     title,
		Artist:    artist,
		StartedAt: time.Now(),
	}
	if err := s.db.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to record playback: %w", err)
	}
	return nil
}

// Recent returns history entries, newest first.
func (s *HistoryStore) Recent(filter HistoryFilter) ([]PlayHistory, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}

	query := s.db.Model(&PlayHistory{}).Order("started_at DESC").Limit(limit)
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Target != "" {
		query = query.Where("target = ?", filter.Target)
	}

	var entries []PlayHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return entries, nil
}
