package matcher

import (
	"context"
	"errors"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/metrics"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/notify"
	"github.com/oggyb/matchchat/internal/service/profile"
	"github.com/oggyb/matchchat/internal/utils/pagination"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Candidate is one compatible user and the outcome of pairing with them.
type Candidate struct {
	ResponseID uint64            `json:"responseId"`
	User       profile.Summary   `json:"user"`
	Answers    map[uint64]string `json:"answers"`
	MatchID    uint64            `json:"matchId,omitempty"`
	Created    bool              `json:"created"`
	Error      string            `json:"error,omitempty"`
}

type Pagination struct {
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
	Limit      int    `json:"limit"`
}

type Result struct {
	Matches    []Candidate `json:"matches"`
	Pagination Pagination  `json:"pagination"`
}

// Service finds compatible users and opens pending matches with them.
type Service struct {
	appCtx    *app.AppContext
	responses *repository.ResponseRepository
	matches   *repository.MatchRepository
	users     *repository.UserRepository
	notify    *notify.Service
}

func NewService(appCtx *app.AppContext, notifications *notify.Service) *Service {
	return &Service{
		appCtx:    appCtx,
		responses: repository.NewResponseRepository(appCtx.DB),
		matches:   repository.NewMatchRepository(appCtx.DB),
		users:     repository.NewUserRepository(appCtx.DB),
		notify:    notifications,
	}
}

// Criteria turns the answers marked "same" into query criteria.
func Criteria(answers []db.ResponseAnswer) []repository.Criterion {
	var out []repository.Criterion
	for _, a := range answers {
		if a.Preference == db.PreferenceSame {
			out = append(out, repository.Criterion{QuestionID: a.QuestionID, Value: a.Value})
		}
	}
	return out
}

// FindMatches returns one page of compatible users.
//
// Behavior:
//   - The requester must have completed every mandatory question.
//   - Candidates share the requester's gender criterion and every "same"
//     answer; with no "same" answers any mandatory-complete peer qualifies.
//   - Newest responses first; cursor continues below the last response id.
//   - Peers already sharing a live match are returned with that match id.
//     Every other candidate gets a pending match (created once per pair) and
//     a "New Match!" notification. A failing candidate carries its error and
//     the rest of the page still runs.
//
// Example:
//
//	svc.FindMatches(ctx, 42, "", 10)
func (s *Service) FindMatches(ctx context.Context, userID uint64, cursor string, limit int) (*Result, error) {
	s.appCtx.Logger.Debug("FindMatches called", "user_id", userID, "cursor", cursor, "limit", limit)

	resp, answers, err := s.responses.Get(ctx, userID)
	if err != nil {
		if errors.Is(svcErr.Map(err), svcErr.ErrNotFound) {
			return nil, svcErr.Validation("complete the questionnaire before matching")
		}
		return nil, svcErr.Map(err)
	}
	if !resp.MandatoryQuestionsCompleted {
		return nil, svcErr.Validation("answer every mandatory question before matching")
	}

	cur, err := pagination.Decode(cursor)
	if err != nil {
		return nil, svcErr.Validation("invalid cursor")
	}
	limit = pagination.Limit(limit, defaultLimit, maxLimit)

	rows, err := s.responses.FindCandidates(ctx, repository.CandidateQuery{
		RequesterID: userID,
		Gender:      resp.Gender,
		Criteria:    Criteria(answers),
		BeforeID:    cur.LastID,
		Limit:       limit + 1,
	})
	if err != nil {
		s.appCtx.Logger.Error("FindCandidates failed", "user_id", userID, "err", err)
		return nil, svcErr.Map(err)
	}

	out := &Result{Matches: []Candidate{}, Pagination: Pagination{Limit: limit}}
	if len(rows) > limit {
		rows = rows[:limit]
		out.Pagination.HasMore = true
	}
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]uint64, len(rows))
	for i, r := range rows {
		ids[i] = r.UserID
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	peerAnswers, err := s.responses.Answers(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	live, err := s.matches.LivePeers(ctx, userID, ids)
	if err != nil {
		// Ensure still resolves existing matches one by one
		s.appCtx.Logger.Warn("LivePeers failed", "user_id", userID, "err", err)
		live = nil
	}

	for _, r := range rows {
		c := Candidate{
			ResponseID: r.ID,
			User:       profile.Summarize(users[r.UserID]),
			Answers:    make(map[uint64]string),
		}
		for _, a := range peerAnswers[r.UserID] {
			c.Answers[a.QuestionID] = a.Value
		}
		if id, ok := live[r.UserID]; ok {
			c.MatchID = id
		} else {
			s.pair(ctx, userID, &c)
		}
		out.Matches = append(out.Matches, c)
	}

	if out.Pagination.HasMore {
		next, err := pagination.Encode(pagination.Cursor{LastID: rows[len(rows)-1].ID})
		if err != nil {
			return nil, svcErr.Storage(err, "encode cursor")
		}
		out.Pagination.NextCursor = next
	}

	s.appCtx.Logger.Debug("FindMatches result", "user_id", userID, "count", len(out.Matches), "has_more", out.Pagination.HasMore)
	return out, nil
}

func (s *Service) pair(ctx context.Context, userID uint64, c *Candidate) {
	m, created, err := s.matches.Ensure(ctx, userID, c.User.ID, userID, 100, []uint64{userID})
	if err != nil {
		s.appCtx.Logger.Error("ensure match failed", "user_id", userID, "peer", c.User.ID, "err", err)
		c.Error = svcErr.PublicMessage(svcErr.Map(err))
		return
	}
	c.MatchID = m.ID
	c.Created = created
	if !created {
		return
	}
	metrics.MatchTransitions.WithLabelValues("created").Inc()

	_, err = s.notify.Send(ctx, notify.Notice{
		Recipients: []uint64{c.User.ID},
		Type:       db.NotificationMatch,
		Title:      "New Match!",
		Message:    "You have a new match! Check it out.",
		Data:       map[string]any{"matchId": m.ID, "userId": userID},
	})
	if err != nil {
		s.appCtx.Logger.Error("new match notification failed", "match_id", m.ID, "err", err)
		c.Error = svcErr.PublicMessage(err)
	}
}
