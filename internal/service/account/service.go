package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/matchchat/internal/app"
	"github.com/oggyb/matchchat/internal/db"
	svcErr "github.com/oggyb/matchchat/internal/errors"
	"github.com/oggyb/matchchat/internal/repository"
	"github.com/oggyb/matchchat/internal/service/profile"
	"github.com/oggyb/matchchat/internal/utils/validation"
)

// OTP limits.
const (
	otpTTL = 10 * time.Minute

	maxVerifyAttempts = 5
	verifyWindow      = 15 * time.Minute
	verifyGap         = 30 * time.Second

	maxResends   = 3
	resendWindow = time.Hour
	resendGap    = time.Minute
)

type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=128"`
	Email    string `json:"email" validate:"required,email,max=191"`
	Password string `json:"password" validate:"required,min=8,max=72,strongpassword"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Pending is returned while an email still awaits verification.
type Pending struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Session is returned once the user is authenticated.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      *profile.Profile `json:"user"`
}

// Service runs signup, email verification and login.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	now    func() time.Time
	cost   int
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		now:    func() time.Time { return time.Now().UTC() },
		cost:   bcrypt.DefaultCost,
	}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// lookup returns the user for email, or nil when there is none.
func (s *Service) lookup(ctx context.Context, email string) (*db.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	err = svcErr.Map(err)
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// throttle applies a "max per window, min gap" rule. count is reset once
// the window since last has passed; the returned count is what to store.
func throttle(count int, last *time.Time, now time.Time, limit int, window, gap time.Duration) (int, time.Duration) {
	if last == nil {
		return count, 0
	}
	elapsed := now.Sub(*last)
	if count >= limit {
		if elapsed < window {
			return count, window - elapsed
		}
		count = 0
	}
	if elapsed < gap {
		return count, gap - elapsed
	}
	return count, 0
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// issueOTP creates a fresh code and returns it with the columns that store it.
func (s *Service) issueOTP(now time.Time, resendCount int) (string, map[string]any, error) {
	code, err := generateOTP()
	if err != nil {
		return "", nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", nil, err
	}
	return code, map[string]any{
		"otp_code_hash":       string(hash),
		"otp_generated_at":    now,
		"otp_attempts":        0,
		"otp_last_attempt_at": nil,
		"otp_resend_count":    resendCount,
		"otp_last_resend_at":  now,
	}, nil
}

// Signup registers an email and mails a verification code.
//
// Behavior:
//   - A verified account with the email is a conflict.
//   - An unverified one is refreshed with the new name, password and code,
//     subject to the resend limits.
//   - A mail failure is logged; the caller can ask for a resend.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*Pending, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	s.appCtx.Logger.Debug("Signup called", "email", req.Email)

	existing, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsEmailVerified {
		return nil, svcErr.Conflict("email already registered")
	}

	now := s.now()
	resends := 0
	if existing != nil {
		var wait time.Duration
		resends, wait = throttle(existing.OTP.ResendCount, existing.OTP.LastResendAt, now, maxResends, resendWindow, resendGap)
		if wait > 0 {
			return nil, svcErr.RateLimited(wait, "too many signup attempts, try again later")
		}
	}

	pw, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, cols, err := s.issueOTP(now, resends+1)
	if err != nil {
		return nil, fmt.Errorf("issue otp: %w", err)
	}
	cols["name"] = req.Name
	cols["password_hash"] = string(pw)

	if existing == nil {
		u := &db.User{Name: req.Name, Email: req.Email, PasswordHash: string(pw)}
		if err := s.users.Create(ctx, u); err != nil {
			s.appCtx.Logger.Error("create user failed", "email", req.Email, "err", err)
			return nil, svcErr.Map(err)
		}
		existing = u
	}
	if err := s.users.Update(ctx, existing.ID, cols); err != nil {
		return nil, svcErr.Map(err)
	}

	if err := s.appCtx.Mail.SendOTP(ctx, req.Email, req.Name, code); err != nil {
		s.appCtx.Logger.Error("otp email failed", "email", req.Email, "err", svcErr.Transient(err, "send otp"))
	}
	return &Pending{Email: req.Email, Message: "Please verify your email with the OTP sent to your email address"}, nil
}

// VerifyEmail checks the code and, on success, marks the email verified and
// opens a session.
//
// Behavior:
//   - At most 5 attempts per 15 minutes and one per 30 seconds; every
//     attempt counts, right or wrong.
//   - Codes expire 10 minutes after they were issued.
func (s *Service) VerifyEmail(ctx context.Context, req VerifyRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.Validation("invalid email")
	}
	if u.IsEmailVerified {
		return nil, svcErr.Validation("email already verified")
	}

	now := s.now()
	attempts, wait := throttle(u.OTP.Attempts, u.OTP.LastAttemptAt, now, maxVerifyAttempts, verifyWindow, verifyGap)
	if wait > 0 {
		return nil, svcErr.RateLimited(wait, "too many verification attempts, try again later")
	}
	if attempts != u.OTP.Attempts {
		if err := s.users.Update(ctx, u.ID, map[string]any{"otp_attempts": attempts}); err != nil {
			return nil, svcErr.Map(err)
		}
	}
	if err := s.users.RecordOTPAttempt(ctx, u.ID, now); err != nil {
		return nil, svcErr.Map(err)
	}

	if u.OTP.CodeHash == "" || u.OTP.GeneratedAt == nil || now.Sub(*u.OTP.GeneratedAt) > otpTTL {
		return nil, svcErr.Validation("OTP has expired")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.OTP.CodeHash), []byte(req.OTP)) != nil {
		return nil, svcErr.Validation("invalid OTP")
	}

	err = s.users.Update(ctx, u.ID, map[string]any{
		"is_email_verified":   true,
		"otp_code_hash":       "",
		"otp_generated_at":    nil,
		"otp_attempts":        0,
		"otp_last_attempt_at": nil,
		"otp_resend_count":    0,
		"otp_last_resend_at":  nil,
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return s.session(ctx, u.ID)
}

// ResendOTP mails a new code: at most 3 per hour, one per minute. A mail
// failure is logged and still counts as a resend.
func (s *Service) ResendOTP(ctx context.Context, req EmailRequest) (*Pending, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, svcErr.Validation("invalid email")
	}
	if u.IsEmailVerified {
		return nil, svcErr.Validation("email already verified")
	}

	now := s.now()
	resends, wait := throttle(u.OTP.ResendCount, u.OTP.LastResendAt, now, maxResends, resendWindow, resendGap)
	if wait > 0 {
		return nil, svcErr.RateLimited(wait, "too many OTP requests, try again later")
	}
	code, cols, err := s.issueOTP(now, resends+1)
	if err != nil {
		return nil, fmt.Errorf("issue otp: %w", err)
	}
	if err := s.users.Update(ctx, u.ID, cols); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.appCtx.Mail.SendOTP(ctx, u.Email, u.Name, code); err != nil {
		s.appCtx.Logger.Error("otp email failed", "email", u.Email, "err", svcErr.Transient(err, "send otp"))
	}
	return &Pending{Email: u.Email, Message: "New OTP has been sent to your email address"}, nil
}

// Login checks credentials of a verified account.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.lookup(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, svcErr.Validation("invalid email or password")
	}
	if !u.IsEmailVerified {
		return nil, svcErr.Validation("email not verified")
	}
	if err := s.users.TouchActive(ctx, u.ID, s.now()); err != nil {
		s.appCtx.Logger.Warn("touch last active failed", "user_id", u.ID, "err", err)
	}
	return s.session(ctx, u.ID)
}

func (s *Service) session(ctx context.Context, userID uint64) (*Session, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	token, exp, err := s.appCtx.Tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: profile.FromUser(u)}, nil
}
