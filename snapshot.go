package eventflow

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Snapshot is a persisted materialisation of aggregate state at a known
// stream version. Snapshots are pure caches - they can always be rebuilt
// by replaying the journal
type Snapshot struct {
	StreamID string
	Version  int64
	State    []byte
}

type gormSnapshot struct {
	StreamID  string `gorm:"primaryKey"`
	Version   int64
	State     datatypes.JSON
	UpdatedAt time.Time
}

// TableName returns gorm table name
func (gs *gormSnapshot) TableName() string { return "snapshot" }

// GetSnapshot fetches the persisted snapshot for the given stream or
// ErrSnapshotNotFound if none has been stored yet
func (s *Store) GetSnapshot(ctx context.Context, stream string) (*Snapshot, error) {
	var snap gormSnapshot

	err := s.db.
		WithContext(ctx).
		Where("stream_id = ?", stream).
		First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSnapshotNotFound
		}

		return nil, err
	}

	return &Snapshot{
		StreamID: snap.StreamID,
		Version:  snap.Version,
		State:    snap.State,
	}, nil
}

// PutSnapshots upserts the provided snapshots, replacing the stored row of
// each stream with the provided one. Versions are not compared, so a lower
// version written later overwrites a higher one. Used by the buffered
// snapshot cache to flush dirty entries in batches
func (s *Store) PutSnapshots(ctx context.Context, snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	rows := make([]gormSnapshot, len(snaps))

	for i, snap := range snaps {
		rows[i] = gormSnapshot{
			StreamID:  snap.StreamID,
			Version:   snap.Version,
			State:     datatypes.JSON(snap.State),
			UpdatedAt: time.Now().UTC(),
		}
	}

	return s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stream_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "state", "updated_at"}),
		}).
		Create(&rows).Error
}

// PutSnapshot upserts a single snapshot
func (s *Store) PutSnapshot(ctx context.Context, snap Snapshot) error {
	return s.PutSnapshots(ctx, []Snapshot{snap})
}
