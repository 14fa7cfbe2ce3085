package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchchat/internal/db"
)

// MessageRepository stores chat messages and their read sets.
type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(database *gorm.DB) *MessageRepository {
	return &MessageRepository{db: database}
}

// Create persists msg unless its client message id is already taken.
//
// Behavior:
//   - Insert, sender read row and the match last-message summary are one
//     transaction.
//   - Returns false without touching anything when the key already exists;
//     the caller looks the stored message up with GetByClientID.
func (r *MessageRepository) Create(ctx context.Context, msg *db.Message) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_message_id"}},
			DoNothing: true,
		}).Create(msg)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || msg.ID == 0 {
			return nil
		}
		created = true

		read := db.ReadReceipt{MessageID: msg.ID, UserID: msg.SenderID, ReadAt: msg.CreatedAt}
		if err := tx.Create(&read).Error; err != nil {
			return err
		}
		return tx.Model(&db.Match{}).Where("id = ?", msg.MatchID).Updates(map[string]any{
			"last_message_text":      msg.Text,
			"last_message_sender_id": msg.SenderID,
			"last_message_at":        msg.CreatedAt,
		}).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id uint64) (*db.Message, error) {
	var m db.Message
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) GetByClientID(ctx context.Context, clientID string) (*db.Message, error) {
	var m db.Message
	if err := r.db.WithContext(ctx).Where("client_message_id = ?", clientID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListBefore returns up to limit messages older than the (before, beforeID)
// cursor, newest first. A zero before starts at the newest message; a zero
// beforeID compares on created_at alone.
func (r *MessageRepository) ListBefore(ctx context.Context, matchID uint64, before time.Time, beforeID uint64, limit int) ([]db.Message, error) {
	q := r.db.WithContext(ctx).Where("match_id = ?", matchID)
	switch {
	case before.IsZero():
	case beforeID == 0:
		q = q.Where("created_at < ?", before)
	default:
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", before, before, beforeID)
	}
	var out []db.Message
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ListAfter returns every message created after since, oldest first.
func (r *MessageRepository) ListAfter(ctx context.Context, matchID uint64, since time.Time) ([]db.Message, error) {
	var out []db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND created_at > ?", matchID, since).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// MarkDelivered moves a message from sent to delivered.
// Returns false when the message was in any other state.
func (r *MessageRepository) MarkDelivered(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.Message{}).
		Where("id = ? AND status = ?", id, db.MessageSent).
		Update("status", db.MessageDelivered)
	return res.RowsAffected == 1, res.Error
}

// AddReader adds userID to the message's read set and marks it read.
// Returns false when the user was already in the set.
func (r *MessageRepository) AddReader(ctx context.Context, id, userID uint64, at time.Time) (bool, error) {
	added := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&db.ReadReceipt{MessageID: id, UserID: userID, ReadAt: at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		added = true
		return tx.Model(&db.Message{}).Where("id = ?", id).Update("status", db.MessageRead).Error
	})
	return added, err
}

// Readers returns the read set of each message.
func (r *MessageRepository) Readers(ctx context.Context, ids []uint64) (map[uint64][]uint64, error) {
	out := make(map[uint64][]uint64, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []db.ReadReceipt
	if err := r.db.WithContext(ctx).Where("message_id IN ?", ids).Order("read_at, user_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, rd := range rows {
		out[rd.MessageID] = append(out[rd.MessageID], rd.UserID)
	}
	return out, nil
}

// UnreadCounts counts, per match, messages from others that userID has not read.
func (r *MessageRepository) UnreadCounts(ctx context.Context, matchIDs []uint64, userID uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(matchIDs))
	if len(matchIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		MatchID uint64
		N       int64
	}
	err := r.db.WithContext(ctx).Table("messages AS m").
		Select("m.match_id AS match_id, COUNT(*) AS n").
		Where("m.match_id IN ? AND m.sender_id <> ?", matchIDs, userID).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)", userID).
		Group("m.match_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.MatchID] = row.N
	}
	return out, nil
}
