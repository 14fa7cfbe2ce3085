package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/matchchat/internal/db"
)

// ResponseRepository stores questionnaire responses and runs the
// compatibility query over them.
type ResponseRepository struct {
	db *gorm.DB
}

func NewResponseRepository(database *gorm.DB) *ResponseRepository {
	return &ResponseRepository{db: database}
}

// Replace upserts the user's response header and replaces every answer.
//
// Behavior:
//   - The header row keeps its id across resubmissions, so the matcher's
//     cursor stays stable for existing users.
//   - Old answers are deleted and the new set inserted in the same transaction.
func (r *ResponseRepository) Replace(ctx context.Context, resp *db.UserResponse, answers []db.ResponseAnswer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"gender", "mandatory_questions_completed", "updated_at"}),
		}).Create(resp).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", resp.UserID).Delete(&db.ResponseAnswer{}).Error; err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		return tx.Create(&answers).Error
	})
}

// Get returns the user's response header and answers.
func (r *ResponseRepository) Get(ctx context.Context, userID uint64) (*db.UserResponse, []db.ResponseAnswer, error) {
	var resp db.UserResponse
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&resp).Error; err != nil {
		return nil, nil, err
	}
	answers, err := r.Answers(ctx, []uint64{userID})
	if err != nil {
		return nil, nil, err
	}
	return &resp, answers[userID], nil
}

// Answers loads answers grouped by user.
func (r *ResponseRepository) Answers(ctx context.Context, userIDs []uint64) (map[uint64][]db.ResponseAnswer, error) {
	out := make(map[uint64][]db.ResponseAnswer, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []db.ResponseAnswer
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Order("question_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, a := range rows {
		out[a.UserID] = append(out[a.UserID], a)
	}
	return out, nil
}

// Criterion is one answer a candidate must share.
type Criterion struct {
	QuestionID uint64
	Value      string
}

// CandidateQuery describes a compatibility search.
type CandidateQuery struct {
	RequesterID uint64
	Gender      string
	Criteria    []Criterion
	// BeforeID continues below a previous page; 0 starts from the newest.
	BeforeID uint64
	Limit    int
}

// FindCandidates returns peers compatible with the query, newest first.
//
// Behavior:
//   - Same gender criterion, mandatory questions completed, user still exists.
//   - For every criterion the peer has an identical answer row.
//   - No criteria → every same-gender, mandatory-complete peer.
//   - Keyset pagination on the monotonic response id (DESC).
//
// Example:
//
//	repo.FindCandidates(ctx, CandidateQuery{RequesterID: 1, Gender: "female", Limit: 11})
func (r *ResponseRepository) FindCandidates(ctx context.Context, q CandidateQuery) ([]db.UserResponse, error) {
	query := r.db.WithContext(ctx).
		Model(&db.UserResponse{}).
		Where("user_responses.user_id <> ?", q.RequesterID).
		Where("user_responses.gender = ?", q.Gender).
		Where("user_responses.mandatory_questions_completed = ?", true).
		Where("EXISTS (SELECT 1 FROM users u WHERE u.id = user_responses.user_id)")

	for _, c := range q.Criteria {
		query = query.Where(`EXISTS (
			SELECT 1 FROM response_answers a
			WHERE a.user_id = user_responses.user_id
			  AND a.question_id = ?
			  AND a.value = ?)`, c.QuestionID, c.Value)
	}

	if q.BeforeID > 0 {
		query = query.Where("user_responses.id < ?", q.BeforeID)
	}

	var out []db.UserResponse
	err := query.Order("user_responses.id DESC").Limit(q.Limit).Find(&out).Error
	return out, err
}

// SetGender keeps the stored match criterion in step with the profile.
func (r *ResponseRepository) SetGender(ctx context.Context, userID uint64, gender string) error {
	return r.db.WithContext(ctx).Model(&db.UserResponse{}).
		Where("user_id = ?", userID).
		Update("gender", gender).Error
}
