package profile

import (
	"context"
	"strings"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/utils/validation"
)

const birthdayLayout = "2006-01-02"

// Summary is the public face of a user shown to matches and connections.
type Summary struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	Gender   string `json:"gender,omitempty"`
	City     string   `json:"city,omitempty"`
	Traits   []string `json:"traits,omitempty"`
}

func Summarize(u db.User) Summary {
	s := Summary{ID: u.ID, Name: u.Name, Nickname: u.Nickname, Gender: u.Gender, City: u.City}
	for _, t := range u.Traits {
		s.Traits = append(s.Traits, t.Name)
	}
	return s
}

// Trait is one catalog entry.
type Trait struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

func traitsOf(ps []db.Personality) []Trait {
	out := make([]Trait, 0, len(ps))
	for _, p := range ps {
		out = append(out, Trait{ID: p.ID, Name: p.Name})
	}
	return out
}

// Profile is the owner's view of their account.
type Profile struct {
	ID                 uint64     `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Nickname           string     `json:"nickname"`
	Birthday           string     `json:"birthday,omitempty"`
	Gender             string     `json:"gender"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	Traits             []Trait    `json:"traits"`
	IsProfileCompleted bool       `json:"isProfileCompleted"`
	IsEmailVerified    bool       `json:"isEmailVerified"`
	LastActiveAt       *time.Time `json:"lastActiveAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// FromUser builds the owner view of u.
func FromUser(u *db.User) *Profile {
	p := &Profile{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Nickname:           u.Nickname,
		Gender:             u.Gender,
		City:               u.City,
		State:              u.State,
		Traits:             traitsOf(u.Traits),
		IsProfileCompleted: u.IsProfileCompleted,
		IsEmailVerified:    u.IsEmailVerified,
		LastActiveAt:       u.LastActiveAt,
		CreatedAt:          u.CreatedAt,
	}
	if u.Birthday != nil {
		p.Birthday = u.Birthday.Format(birthdayLayout)
	}
	return p
}

// Patch lists the fields a user may change. Nil fields are left alone.
type Patch struct {
	Nickname *string `json:"nickname" validate:"omitempty,max=64"`
	Birthday *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Gender   *string `json:"gender" validate:"omitempty,oneof=male female other"`
	City     *string `json:"city" validate:"omitempty,max=64"`
	State    *string `json:"state" validate:"omitempty,max=64"`
	// Traits replaces the whole set; an empty list clears it.
	Traits *[]uint64 `json:"traits" validate:"omitempty,max=10,dive,gt=0"`
}

type DeviceRequest struct {
	Token    string `json:"token" validate:"required,max=255"`
	Platform string `json:"platform" validate:"omitempty,oneof=ios android web"`
}

// Service serves profile reads and edits and device registration.
type Service struct {
	appCtx        *app.AppContext
	users         *repository.UserRepository
	responses     *repository.ResponseRepository
	personalities *repository.PersonalityRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:        appCtx,
		users:         repository.NewUserRepository(appCtx.DB),
		responses:     repository.NewResponseRepository(appCtx.DB),
		personalities: repository.NewPersonalityRepository(appCtx.DB),
	}
}

// Personalities lists the trait catalog by name.
func (s *Service) Personalities(ctx context.Context) ([]Trait, error) {
	ps, err := s.personalities.List(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return traitsOf(ps), nil
}

func (s *Service) GetProfile(ctx context.Context, userID uint64) (*Profile, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return FromUser(u), nil
}

// UpdateProfile applies p and recomputes is_profile_completed.
//
// Behavior:
//   - Only non-nil fields are written.
//   - A gender change is copied to the questionnaire criterion as well.
//   - Traits must all come from the catalog; they do not count toward
//     completion.
func (s *Service) UpdateProfile(ctx context.Context, userID uint64, p Patch) (*Profile, error) {
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	cols := map[string]any{}
	if p.Nickname != nil {
		u.Nickname = strings.TrimSpace(*p.Nickname)
		cols["nickname"] = u.Nickname
	}
	if p.Birthday != nil {
		bd, err := time.Parse(birthdayLayout, *p.Birthday)
		if err != nil {
			return nil, svcErr.Validation("birthday must be YYYY-MM-DD")
		}
		u.Birthday = &bd
		cols["birthday"] = bd
	}
	genderChanged := false
	if p.Gender != nil && *p.Gender != u.Gender {
		u.Gender = *p.Gender
		cols["gender"] = u.Gender
		genderChanged = true
	}
	if p.City != nil {
		u.City = strings.TrimSpace(*p.City)
		cols["city"] = u.City
	}
	if p.State != nil {
		u.State = strings.TrimSpace(*p.State)
		cols["state"] = u.State
	}
	if p.Traits != nil {
		ok, err := s.personalities.SetTraits(ctx, userID, *p.Traits)
		if err != nil {
			s.appCtx.Logger.Error("trait update failed", "user_id", userID, "err", err)
			return nil, svcErr.Map(err)
		}
		if !ok {
			return nil, svcErr.Validation("unknown trait")
		}
	}
	if len(cols) == 0 {
		if p.Traits != nil {
			return s.GetProfile(ctx, userID)
		}
		return FromUser(u), nil
	}
	u.IsProfileCompleted = u.Nickname != "" && u.Birthday != nil && u.Gender != "" && u.City != "" && u.State != ""
	cols["is_profile_completed"] = u.IsProfileCompleted

	if err := s.users.Update(ctx, userID, cols); err != nil {
		s.appCtx.Logger.Error("profile update failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	if genderChanged {
		if err := s.responses.SetGender(ctx, userID, u.Gender); err != nil {
			return nil, svcErr.Map(err)
		}
	}
	return s.GetProfile(ctx, userID)
}

// RegisterDevice binds a push token to the user.
func (s *Service) RegisterDevice(ctx context.Context, userID uint64, req DeviceRequest) error {
	if err := validation.Struct(req); err != nil {
		return err
	}
	if err := s.users.UpsertDevice(ctx, userID, req.Token, req.Platform); err != nil {
		return svcErr.Map(err)
	}
	return nil
}
