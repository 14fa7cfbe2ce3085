package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchchat/internal/db"
)

// ConnectionRepository stores the single relationship row per user pair.
type ConnectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(database *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: database}
}

// Create inserts a pending connection initiated by actor.
// Returns false when the pair already has a row, whatever its status.
func (r *ConnectionRepository) Create(ctx context.Context, actor, peer uint64) (bool, error) {
	low, high := db.OrderPair(actor, peer)
	c := db.Connection{
		UserLowID:   low,
		UserHighID:  high,
		InitiatorID: actor,
		Status:      db.ConnectionPending,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&c)
	return res.RowsAffected == 1, res.Error
}

func (r *ConnectionRepository) Get(ctx context.Context, a, b uint64) (*db.Connection, error) {
	low, high := db.OrderPair(a, b)
	var c db.Connection
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Respond moves a pending request from requester to status.
//
// Behavior:
//   - Runs in one transaction; the update is conditional on the row still
//     being pending and initiated by requester.
//   - Returns gorm.ErrRecordNotFound when no such request exists, so a second
//     response to the same request is rejected.
//   - Returns the updated row.
func (r *ConnectionRepository) Respond(ctx context.Context, actor, requester uint64, status string) (*db.Connection, error) {
	low, high := db.OrderPair(actor, requester)
	var out db.Connection
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Connection{}).
			Where("user_low_id = ? AND user_high_id = ?", low, high).
			Where("status = ? AND initiator_id = ?", db.ConnectionPending, requester).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("user_low_id = ? AND user_high_id = ?", low, high).First(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List pages through the user's connections, optionally filtered by status.
func (r *ConnectionRepository) List(ctx context.Context, userID uint64, status string, offset, limit int) ([]db.Connection, int64, error) {
	scope := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&db.Connection{}).
			Where("(user_low_id = ? OR user_high_id = ?)", userID, userID)
		if status != "" {
			q = q.Where("status = ?", status)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []db.Connection
	err := scope().Order("updated_at DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// Delete removes the pair row. Returns false when there was nothing to remove.
func (r *ConnectionRepository) Delete(ctx context.Context, a, b uint64) (bool, error) {
	low, high := db.OrderPair(a, b)
	res := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ?", low, high).
		Delete(&db.Connection{})
	return res.RowsAffected == 1, res.Error
}
