package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchchat/internal/db"
)

// MatchRepository owns match rows. Every state change is a conditional
// UPDATE whose affected-row count tells the caller whether it performed the
// transition.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// Ensure creates a pending match for the pair unless a live one exists.
//
// Behavior:
//   - Relies on the (user_low_id, user_high_id, live_slot) unique index.
//   - Returns (match, true) when this call inserted the row.
//   - Returns (existing, false) when the pair already had a live match.
//
// Example:
//
//	m, created, err := repo.Ensure(ctx, 1, 2, 1, 100, []uint64{1})
func (r *MatchRepository) Ensure(ctx context.Context, a, b, initiator uint64, pct int, notified []uint64) (*db.Match, bool, error) {
	low, high := db.OrderPair(a, b)
	m := db.Match{
		UserLowID:       low,
		UserHighID:      high,
		InitiatorID:     initiator,
		Status:          db.MatchPending,
		MatchPercentage: pct,
		NotifiedUsers:   notified,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low_id"}, {Name: "user_high_id"}, {Name: "live_slot"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 && m.ID != 0 {
		return &m, true, nil
	}

	existing, err := r.GetLiveByPair(ctx, low, high)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetLiveByPair returns the non-deleted match for an unordered pair.
func (r *MatchRepository) GetLiveByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	low, high := db.OrderPair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? AND user_high_id = ? AND is_deleted = ?", low, high, false).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// LivePeers returns which of peers already share a live match with userID.
func (r *MatchRepository) LivePeers(ctx context.Context, userID uint64, peers []uint64) (map[uint64]uint64, error) {
	out := make(map[uint64]uint64)
	if len(peers) == 0 {
		return out, nil
	}
	var rows []db.Match
	err := r.db.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("((user_low_id = ? AND user_high_id IN ?) OR (user_high_id = ? AND user_low_id IN ?))", userID, peers, userID, peers).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, m := range rows {
		out[m.Peer(userID)] = m.ID
	}
	return out, nil
}

// Get returns a live match by id.
func (r *MatchRepository) Get(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).Where("id = ? AND is_deleted = ?", id, false).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Accept adds userID to the accepted set of a pending match and opens the
// chat when that completes the set, in one transaction.
//
// Behavior:
//   - changed is false when the user had already accepted or the match is
//     no longer pending.
//   - opened is true for exactly one caller per match: the one whose
//     acceptance completed the set.
//   - No committed state has both acceptances with the chat still closed.
func (r *MatchRepository) Accept(ctx context.Context, m *db.Match, userID uint64) (changed, opened bool, err error) {
	col := "low_accepted"
	if userID == m.UserHighID {
		col = "high_accepted"
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Match{}).
			Where("id = ? AND status = ? AND is_deleted = ?", m.ID, db.MatchPending, false).
			Where(col+" = ?", false).
			Update(col, true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true

		res = tx.Model(&db.Match{}).
			Where("id = ? AND is_deleted = ? AND chat_enabled = ?", m.ID, false, false).
			Where("low_accepted = ? AND high_accepted = ?", true, true).
			Updates(map[string]any{
				"status":       db.MatchAccepted,
				"chat_enabled": true,
			})
		if res.Error != nil {
			return res.Error
		}
		opened = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, false, err
	}
	return changed, opened, nil
}

// Reject moves a pending match to rejected.
func (r *MatchRepository) Reject(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("id = ? AND status = ? AND is_deleted = ?", id, db.MatchPending, false).
		Update("status", db.MatchRejected)
	return res.RowsAffected == 1, res.Error
}

// SoftDelete hides the match and frees the pair slot for a future match.
func (r *MatchRepository) SoftDelete(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"is_deleted": true,
			"live_slot":  gorm.Expr("id"),
		})
	return res.RowsAffected == 1, res.Error
}

// ListChatEnabled returns the user's open chats, most recent message first.
func (r *MatchRepository) ListChatEnabled(ctx context.Context, userID uint64) ([]db.Match, error) {
	var out []db.Match
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?)", userID, userID).
		Where("chat_enabled = ? AND is_deleted = ?", true, false).
		Order("last_message_at DESC, updated_at DESC").
		Find(&out).Error
	return out, err
}

// CountAwaiting counts pending matches the user has not accepted yet.
func (r *MatchRepository) CountAwaiting(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("status = ? AND is_deleted = ?", db.MatchPending, false).
		Where("((user_low_id = ? AND low_accepted = ?) OR (user_high_id = ? AND high_accepted = ?))", userID, false, userID, false).
		Count(&n).Error
	return n, err
}
