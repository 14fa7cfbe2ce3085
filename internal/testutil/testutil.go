// Package testutil builds a fully wired AppContext over in-memory SQLite and
// miniredis, with recording fakes in place of the realtime hub and the
// outbound senders.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/cache"
	"github.com/oggyb/matchchat/internal/config"
	"github.com/oggyb/matchchat/internal/db"
	"github.com/oggyb/matchchat/internal/logger"
	"github.com/oggyb/matchchat/internal/push"
	"github.com/oggyb/matchchat/internal/repository"
)

// Env is one isolated test world.
type Env struct {
	App    *app.AppContext
	DB     *gorm.DB
	Redis  *miniredis.Miniredis
	Events *Recorder
	Push   *PushRecorder
	Mail   *MailRecorder
}

var nameCleaner = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// OpenDB returns a migrated in-memory database private to the test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", nameCleaner.Replace(t.Name()), uuid.NewString())
	database, err := db.Open(sqlite.Open(dsn), "silent")
	require.NoError(t, err)

	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

// NewEnv wires an AppContext with seeded questions and personalities.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	database := OpenDB(t)
	_, err := db.SeedQuestions(database)
	require.NoError(t, err)
	_, err = db.SeedPersonalities(database)
	require.NoError(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.App.ENV = "test"
	cfg.DB.Driver = "sqlite"
	cfg.Redis.Addr = mr.Addr()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Push.Endpoint = ""
	cfg.Mail.Endpoint = ""

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = rc.Close() })

	events := NewRecorder()
	appCtx := app.New(cfg, database, rc, logger.Discard(), events)

	pushes := &PushRecorder{}
	mails := &MailRecorder{}
	appCtx.Push = pushes
	appCtx.Mail = mails

	return &Env{
		App:    appCtx,
		DB:     database,
		Redis:  mr,
		Events: events,
		Push:   pushes,
		Mail:   mails,
	}
}

// Event is one recorded emission.
type Event struct {
	UserID uint64
	Name   string
	Data   any
}

// Recorder is a realtime.Emitter that remembers every emission. Users marked
// online report delivery; everyone else is treated as disconnected.
type Recorder struct {
	mu     sync.Mutex
	online map[uint64]bool
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{online: make(map[uint64]bool)}
}

func (r *Recorder) Emit(userID uint64, event string, data any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{UserID: userID, Name: event, Data: data})
	return r.online[userID]
}

func (r *Recorder) SetOnline(userID uint64, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online[userID] = online
}

// Events returns a snapshot of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns emissions of one event, optionally for one user (0 = any).
func (r *Recorder) Named(event string, userID uint64) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == event && (userID == 0 || e.UserID == userID) {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// PushCall is one recorded push send.
type PushCall struct {
	Tokens []string
	Msg    push.Message
}

// PushRecorder is a push.Sender that records calls and returns Err.
type PushRecorder struct {
	mu    sync.Mutex
	Err   error
	calls []PushCall
}

func (p *PushRecorder) Send(_ context.Context, tokens []string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, PushCall{Tokens: append([]string(nil), tokens...), Msg: msg})
	return p.Err
}

func (p *PushRecorder) Calls() []PushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PushCall(nil), p.calls...)
}

// Mail is one recorded OTP email.
type Mail struct {
	To, Name, Code string
}

// MailRecorder is a mailer.Sender that records calls and returns Err.
type MailRecorder struct {
	mu   sync.Mutex
	Err  error
	sent []Mail
}

func (m *MailRecorder) SendOTP(_ context.Context, to, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Mail{To: to, Name: name, Code: code})
	return m.Err
}

func (m *MailRecorder) Sent() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

// Last returns the most recent mail, failing the test when none was sent.
func (m *MailRecorder) Last(t *testing.T) Mail {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent, "no mail sent")
	return sent[len(sent)-1]
}

// CreateUser inserts a verified user with password "password".
func (e *Env) CreateUser(t *testing.T, name, gender string) *db.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	u := &db.User{
		Name:            name,
		Email:           strings.ToLower(name) + "@example.com",
		PasswordHash:    string(hash),
		Gender:          gender,
		IsEmailVerified: true,
	}
	require.NoError(t, e.DB.Create(u).Error)
	return u
}

// Answer is shorthand for one questionnaire answer, addressed by sort order
// (1 = alcohol, 2 = bedtime, ...).
type Answer struct {
	Question   int
	Value      string
	Preference string
}

// QuestionID resolves a sort position to the seeded question id.
func (e *Env) QuestionID(t *testing.T, sortOrder int) uint64 {
	t.Helper()
	var q db.Question
	require.NoError(t, e.DB.Where("sort_order = ?", sortOrder).First(&q).Error)
	return q.ID
}

// Respond stores a questionnaire response directly, bypassing validation.
func (e *Env) Respond(t *testing.T, u *db.User, mandatoryDone bool, answers ...Answer) *db.UserResponse {
	t.Helper()
	resp := &db.UserResponse{UserID: u.ID, Gender: u.Gender, MandatoryQuestionsCompleted: mandatoryDone}
	rows := make([]db.ResponseAnswer, 0, len(answers))
	for _, a := range answers {
		pref := a.Preference
		if pref == "" {
			pref = db.PreferenceAny
		}
		rows = append(rows, db.ResponseAnswer{
			UserID:     u.ID,
			QuestionID: e.QuestionID(t, a.Question),
			Value:      a.Value,
			Preference: pref,
		})
	}
	repo := repository.NewResponseRepository(e.DB)
	require.NoError(t, repo.Replace(context.Background(), resp, rows))

	out, _, err := repo.Get(context.Background(), u.ID)
	require.NoError(t, err)
	return out
}

// ChatMatch creates a match between a and b with chat already enabled.
func (e *Env) ChatMatch(t *testing.T, a, b *db.User) *db.Match {
	t.Helper()
	low, high := db.OrderPair(a.ID, b.ID)
	m := &db.Match{
		UserLowID:       low,
		UserHighID:      high,
		InitiatorID:     a.ID,
		Status:          db.MatchAccepted,
		MatchPercentage: 100,
		LowAccepted:     true,
		HighAccepted:    true,
		ChatEnabled:     true,
	}
	require.NoError(t, e.DB.Create(m).Error)
	return m
}

// Token issues a bearer token for userID.
func (e *Env) Token(t *testing.T, userID uint64) string {
	t.Helper()
	tok, _, err := e.App.Tokens.Issue(userID)
	require.NoError(t, err)
	return tok
}
