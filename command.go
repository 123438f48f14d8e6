package eventflow

import (
	"context"
	"time"
)

type gormCommand struct {
	ID          string `gorm:"primaryKey"`
	StreamID    string `gorm:"index"`
	ProcessedAt time.Time
}

// TableName returns gorm table name
func (gc *gormCommand) TableName() string { return "command" }

// IsCommandProcessed reports whether a command with the given id has been
// committed. The unique index on the command table is the authoritative
// idempotency guard - in-memory caches layered on top are an optimisation
func (s *Store) IsCommandProcessed(ctx context.Context, id string) (bool, error) {
	var count int64

	err := s.db.
		WithContext(ctx).
		Model(&gormCommand{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
