package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/db"
)

// PersonalityRepository reads the trait catalog and owns user_traits.
type PersonalityRepository struct {
	db *gorm.DB
}

func NewPersonalityRepository(database *gorm.DB) *PersonalityRepository {
	return &PersonalityRepository{db: database}
}

func (r *PersonalityRepository) List(ctx context.Context) ([]db.Personality, error) {
	var out []db.Personality
	err := r.db.WithContext(ctx).Order("name ASC").Find(&out).Error
	return out, err
}

// SetTraits replaces the user's traits with ids. ok is false, and nothing is
// written, when any id is not in the catalog. Duplicate ids collapse.
func (r *PersonalityRepository) SetTraits(ctx context.Context, userID uint64, ids []uint64) (ok bool, err error) {
	uniq := make([]uint64, 0, len(ids))
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(uniq) > 0 {
			var known int64
			if err := tx.Model(&db.Personality{}).Where("id IN ?", uniq).Count(&known).Error; err != nil {
				return err
			}
			if int(known) != len(uniq) {
				return nil
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&db.UserTrait{}).Error; err != nil {
			return err
		}
		if len(uniq) > 0 {
			rows := make([]db.UserTrait, len(uniq))
			for i, id := range uniq {
				rows[i] = db.UserTrait{UserID: userID, PersonalityID: id}
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		ok = true
		return nil
	})
	return ok, err
}
