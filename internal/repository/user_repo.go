package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchchat/internal/db"
)

// UserRepository provides data access for users and their device tokens.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) Create(ctx context.Context, u *db.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Traits").First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Preload("Traits").Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetMany loads users by id with their traits; missing ids are simply
// absent from the map.
func (r *UserRepository) GetMany(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Preload("Traits").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Update writes the given columns. Callers build the map from an explicit
// patch type, never from raw request input.
func (r *UserRepository) Update(ctx context.Context, id uint64, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordOTPAttempt increments the attempt counter in the database rather
// than writing back a value read earlier.
func (r *UserRepository) RecordOTPAttempt(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Updates(map[string]any{
		"otp_attempts":        gorm.Expr("otp_attempts + 1"),
		"otp_last_attempt_at": at,
	}).Error
}

// TouchActive stamps last_active_at.
func (r *UserRepository) TouchActive(ctx context.Context, id uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&db.User{}).Where("id = ?", id).Update("last_active_at", at).Error
}

// UpsertDevice binds a push token to a user; a token moves to the latest owner.
func (r *UserRepository) UpsertDevice(ctx context.Context, userID uint64, token, platform string) error {
	d := db.DeviceToken{UserID: userID, Token: token, Platform: platform}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
		}).
		Create(&d).Error
}

// DeviceTokens returns push tokens grouped by user.
func (r *UserRepository) DeviceTokens(ctx context.Context, userIDs []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string)
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []db.DeviceToken
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, d := range rows {
		out[d.UserID] = append(out[d.UserID], d.Token)
	}
	return out, nil
}
