package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/db"
)

// QuestionRepository reads the question catalog.
type QuestionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(database *gorm.DB) *QuestionRepository {
	return &QuestionRepository{db: database}
}

// ListActive returns active, non-deleted questions by display order.
func (r *QuestionRepository) ListActive(ctx context.Context) ([]db.Question, error) {
	var qs []db.Question
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND is_deleted = ?", true, false).
		Order("sort_order ASC, id ASC").
		Find(&qs).Error
	return qs, err
}

// ActiveByID indexes ListActive by id.
func (r *QuestionRepository) ActiveByID(ctx context.Context) (map[uint64]db.Question, error) {
	qs, err := r.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]db.Question, len(qs))
	for _, q := range qs {
		out[q.ID] = q
	}
	return out, nil
}
