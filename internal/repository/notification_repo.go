package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/db"
)

// NotificationRepository stores per-user notifications.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

// CreateBatch inserts all rows in one statement.
func (r *NotificationRepository) CreateBatch(ctx context.Context, rows []db.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// List returns one page of the user's notifications, newest first, with the total.
func (r *NotificationRepository) List(ctx context.Context, userID uint64, offset, limit int) ([]db.Notification, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.Notification{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []db.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, total, err
}

// Get returns a notification only when userID owns it.
func (r *NotificationRepository) Get(ctx context.Context, id, userID uint64) (*db.Notification, error) {
	var n db.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkRead flips is_read for the owner. Returns false when it was already read
// or the row does not belong to userID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID uint64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", id, userID, false).
		Update("is_read", true)
	return res.RowsAffected == 1, res.Error
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}
