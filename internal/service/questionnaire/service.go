package questionnaire

import (
	"context"
	"time"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/utils/validation"
)

// QuestionView is a catalog entry as shown to clients.
type QuestionView struct {
	ID          uint64              `json:"id"`
	Text        string              `json:"text"`
	Category    string              `json:"category"`
	Options     []db.QuestionOption `json:"options"`
	IsMandatory bool                `json:"isMandatory"`
	SortOrder   int                 `json:"sortOrder"`
}

// Catalog splits active questions by whether they must be answered.
type Catalog struct {
	Mandatory []QuestionView `json:"mandatory"`
	Optional  []QuestionView `json:"optional"`
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID uint64 `json:"questionId" validate:"required"`
	Answer     string `json:"answer" validate:"required,max=64"`
	Preference string `json:"preference" validate:"omitempty,oneof=same any"`
}

type SubmitRequest struct {
	Responses []AnswerInput `json:"responses" validate:"required,min=1,dive"`
}

// MatchCriteria is what the matcher compares: the gender plus every answer
// the user wants shared.
type MatchCriteria struct {
	Gender  string            `json:"gender"`
	Answers map[uint64]string `json:"answers"`
}

// Responses is the user's stored questionnaire.
type Responses struct {
	ResponseID                  uint64            `json:"responseId"`
	UserID                      uint64            `json:"userId"`
	AnswerMap                   map[uint64]string `json:"answerMap"`
	PreferenceMap               map[uint64]string `json:"preferenceMap"`
	MatchCriteria               MatchCriteria     `json:"matchCriteria"`
	MandatoryQuestionsCompleted bool              `json:"mandatoryQuestionsCompleted"`
	UpdatedAt                   time.Time         `json:"updatedAt"`
}

// Service manages the question catalog and user answers.
type Service struct {
	appCtx    *app.AppContext
	questions *repository.QuestionRepository
	responses *repository.ResponseRepository
	users     *repository.UserRepository
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		questions: repository.NewQuestionRepository(appCtx.DB),
		responses: repository.NewResponseRepository(appCtx.DB),
		users:     repository.NewUserRepository(appCtx.DB),
	}
}

// GetQuestions returns active questions in display order.
func (s *Service) GetQuestions(ctx context.Context) (*Catalog, error) {
	qs, err := s.questions.ListActive(ctx)
	if err != nil {
		s.appCtx.Logger.Error("ListActive failed", "err", err)
		return nil, svcErr.Map(err)
	}
	out := &Catalog{Mandatory: []QuestionView{}, Optional: []QuestionView{}}
	for _, q := range qs {
		v := QuestionView{
			ID:          q.ID,
			Text:        q.Text,
			Category:    q.Category,
			Options:     q.Options,
			IsMandatory: q.IsMandatory,
			SortOrder:   q.SortOrder,
		}
		if q.IsMandatory {
			out.Mandatory = append(out.Mandatory, v)
		} else {
			out.Optional = append(out.Optional, v)
		}
	}
	return out, nil
}

// SubmitResponses replaces the user's answers.
//
// Behavior:
//   - Every question must be active and the answer one of its option values.
//   - A question may appear once; preference defaults to "any".
//   - The user's profile gender becomes the match criterion, so it must be set.
//   - mandatoryQuestionsCompleted is true when every active mandatory
//     question is answered.
func (s *Service) SubmitResponses(ctx context.Context, userID uint64, req SubmitRequest) (*Responses, error) {
	s.appCtx.Logger.Debug("SubmitResponses called", "user_id", userID, "answers", len(req.Responses))

	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if u.Gender == "" {
		return nil, svcErr.Validation("set your gender in the profile before answering")
	}

	active, err := s.questions.ActiveByID(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	answers := make([]db.ResponseAnswer, 0, len(req.Responses))
	seen := make(map[uint64]bool, len(req.Responses))
	for _, in := range req.Responses {
		q, ok := active[in.QuestionID]
		if !ok {
			return nil, svcErr.Validation("question %d does not exist", in.QuestionID)
		}
		if seen[in.QuestionID] {
			return nil, svcErr.Validation("question %d answered twice", in.QuestionID)
		}
		seen[in.QuestionID] = true
		if !q.HasOption(in.Answer) {
			return nil, svcErr.Validation("%q is not an option of question %d", in.Answer, in.QuestionID)
		}
		pref := in.Preference
		if pref == "" {
			pref = db.PreferenceAny
		}
		answers = append(answers, db.ResponseAnswer{
			UserID:     userID,
			QuestionID: in.QuestionID,
			Value:      in.Answer,
			Preference: pref,
		})
	}

	complete := true
	for id, q := range active {
		if q.IsMandatory && !seen[id] {
			complete = false
			break
		}
	}

	resp := &db.UserResponse{UserID: userID, Gender: u.Gender, MandatoryQuestionsCompleted: complete}
	if err := s.responses.Replace(ctx, resp, answers); err != nil {
		s.appCtx.Logger.Error("Replace responses failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}
	return s.GetUserResponses(ctx, userID)
}

// GetUserResponses returns the stored answers and derived maps.
func (s *Service) GetUserResponses(ctx context.Context, userID uint64) (*Responses, error) {
	resp, answers, err := s.responses.Get(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return BuildResponses(resp, answers), nil
}

// BuildResponses derives the answer, preference and criteria maps.
func BuildResponses(resp *db.UserResponse, answers []db.ResponseAnswer) *Responses {
	out := &Responses{
		ResponseID:                  resp.ID,
		UserID:                      resp.UserID,
		AnswerMap:                   make(map[uint64]string, len(answers)),
		PreferenceMap:               make(map[uint64]string, len(answers)),
		MatchCriteria:               MatchCriteria{Gender: resp.Gender, Answers: map[uint64]string{}},
		MandatoryQuestionsCompleted: resp.MandatoryQuestionsCompleted,
		UpdatedAt:                   resp.UpdatedAt,
	}
	for _, a := range answers {
		out.AnswerMap[a.QuestionID] = a.Value
		out.PreferenceMap[a.QuestionID] = a.Preference
		if a.Preference == db.PreferenceSame {
			out.MatchCriteria.Answers[a.QuestionID] = a.Value
		}
	}
	return out
}
