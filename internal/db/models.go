package db

import (
	"time"

	"gorm.io/datatypes"
)

// User holds identity, profile and OTP verification state.
type User struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement"`
	Name               string     `gorm:"size:128;not null"`
	Email              string     `gorm:"size:191;uniqueIndex;not null"`
	PasswordHash       string     `gorm:"size:255;not null"`
	Nickname           string     `gorm:"size:64"`
	Birthday           *time.Time `gorm:"type:date"`
	Gender             string     `gorm:"size:16;index"`
	City               string     `gorm:"size:64"`
	State              string     `gorm:"size:64"`
	IsProfileCompleted bool       `gorm:"not null;default:false"`
	IsEmailVerified    bool       `gorm:"not null;default:false"`
	OTP                OTPState   `gorm:"embedded;embeddedPrefix:otp_"`
	LastActiveAt       *time.Time
	Traits             []Personality `gorm:"many2many:user_traits"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Personality is one entry of the trait catalog shown on profiles.
type Personality struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:64;not null;uniqueIndex"`
	CreatedAt time.Time
}

// UserTrait is the join row behind User.Traits.
type UserTrait struct {
	UserID        uint64 `gorm:"primaryKey;autoIncrement:false"`
	PersonalityID uint64 `gorm:"primaryKey;autoIncrement:false;index"`
}

// OTPState is the email verification state embedded in users.
type OTPState struct {
	CodeHash      string `gorm:"size:255"`
	GeneratedAt   *time.Time
	Attempts      int `gorm:"not null;default:0"`
	LastAttemptAt *time.Time
	ResendCount   int `gorm:"not null;default:0"`
	LastResendAt  *time.Time
}

// DeviceToken is a push address owned by a user.
type DeviceToken struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	UserID    uint64 `gorm:"not null;index"`
	Token     string `gorm:"size:255;not null;uniqueIndex"`
	Platform  string `gorm:"size:16"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	ConnectionPending  = "pending"
	ConnectionAccepted = "accepted"
	ConnectionBlocked  = "blocked"
)

// Connection is one row per unordered pair, so both sides always agree.
type Connection struct {
	UserLowID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	UserHighID  uint64 `gorm:"primaryKey;autoIncrement:false;index"`
	InitiatorID uint64 `gorm:"not null"`
	Status      string `gorm:"size:16;not null;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Peer returns the other side of the connection.
func (c Connection) Peer(userID uint64) uint64 {
	if c.UserLowID == userID {
		return c.UserHighID
	}
	return c.UserLowID
}

// QuestionOption is a selectable answer.
type QuestionOption struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

type Question struct {
	ID          uint64           `gorm:"primaryKey;autoIncrement"`
	Text        string           `gorm:"size:255;not null"`
	Category    string           `gorm:"size:32;not null"`
	Options     []QuestionOption `gorm:"serializer:json;type:text"`
	IsMandatory bool             `gorm:"not null;default:false"`
	SortOrder   int              `gorm:"not null;default:0"`
	IsActive    bool             `gorm:"not null"`
	IsDeleted   bool             `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasOption reports whether value is one of the question's option values.
func (q Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

const (
	PreferenceSame = "same"
	PreferenceAny  = "any"
)

// UserResponse is the questionnaire header row. ID is monotonic and serves as
// the matcher's pagination cursor; Gender is the match criterion.
type UserResponse struct {
	ID                          uint64 `gorm:"primaryKey;autoIncrement"`
	UserID                      uint64 `gorm:"not null;uniqueIndex"`
	Gender                      string `gorm:"size:16;not null;index:idx_response_lookup,priority:1"`
	MandatoryQuestionsCompleted bool   `gorm:"not null;default:false;index:idx_response_lookup,priority:2"`
	CreatedAt                   time.Time
	UpdatedAt                   time.Time
}

// ResponseAnswer is one answer with its matching preference.
type ResponseAnswer struct {
	UserID     uint64 `gorm:"primaryKey;autoIncrement:false"`
	QuestionID uint64 `gorm:"primaryKey;autoIncrement:false;index:idx_answer_value,priority:1"`
	Value      string `gorm:"size:64;not null;index:idx_answer_value,priority:2"`
	Preference string `gorm:"size:8;not null"`
}

const (
	MatchPending  = "pending"
	MatchAccepted = "accepted"
	MatchRejected = "rejected"
)

// LastMessage is the chat summary embedded in matches.
type LastMessage struct {
	Text     string `gorm:"type:text"`
	SenderID uint64
	At       *time.Time `gorm:"index"`
}

// Match pairs two users. The pair is stored ordered (low, high); LiveSlot is 0
// while the match is live and is set to ID on soft delete, which keeps the
// unique index satisfied for at most one live row per pair.
type Match struct {
	ID              uint64      `gorm:"primaryKey;autoIncrement"`
	UserLowID       uint64      `gorm:"not null;uniqueIndex:ux_match_pair,priority:1"`
	UserHighID      uint64      `gorm:"not null;uniqueIndex:ux_match_pair,priority:2;index"`
	LiveSlot        uint64      `gorm:"not null;default:0;uniqueIndex:ux_match_pair,priority:3"`
	InitiatorID     uint64      `gorm:"not null"`
	Status          string      `gorm:"size:16;not null;index"`
	MatchPercentage int         `gorm:"not null;default:0"`
	NotifiedUsers   []uint64    `gorm:"serializer:json;type:text"`
	LowAccepted     bool        `gorm:"not null;default:false"`
	HighAccepted    bool        `gorm:"not null;default:false"`
	ChatEnabled     bool        `gorm:"not null;default:false"`
	LastMessage     LastMessage `gorm:"embedded;embeddedPrefix:last_message_"`
	IsDeleted       bool        `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Users returns both participants, low id first.
func (m Match) Users() []uint64 { return []uint64{m.UserLowID, m.UserHighID} }

// Has reports whether userID participates in the match.
func (m Match) Has(userID uint64) bool {
	return userID != 0 && (m.UserLowID == userID || m.UserHighID == userID)
}

// Peer returns the other participant.
func (m Match) Peer(userID uint64) uint64 {
	if m.UserLowID == userID {
		return m.UserHighID
	}
	return m.UserLowID
}

// AcceptedBy lists participants that accepted, as a set.
func (m Match) AcceptedBy() []uint64 {
	out := make([]uint64, 0, 2)
	if m.LowAccepted {
		out = append(out, m.UserLowID)
	}
	if m.HighAccepted {
		out = append(out, m.UserHighID)
	}
	return out
}

// OrderPair returns (low, high) for an unordered pair.
func OrderPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

const (
	MessageSending   = "sending"
	MessageSent      = "sent"
	MessageDelivered = "delivered"
	MessageRead      = "read"
	MessageFailed    = "failed"
)

type Message struct {
	ID              uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID         uint64    `gorm:"not null;index:idx_message_match_created,priority:1"`
	SenderID        uint64    `gorm:"not null"`
	Text            string    `gorm:"type:text;not null"`
	ClientMessageID string    `gorm:"size:128;not null;uniqueIndex"`
	Status          string    `gorm:"size:16;not null"`
	CreatedAt       time.Time `gorm:"index:idx_message_match_created,priority:2"`
	UpdatedAt       time.Time
}

// ReadReceipt is one element of a message's readBy set.
type ReadReceipt struct {
	MessageID uint64 `gorm:"primaryKey;autoIncrement:false"`
	UserID    uint64 `gorm:"primaryKey;autoIncrement:false;index"`
	ReadAt    time.Time
}

func (ReadReceipt) TableName() string { return "message_reads" }

const (
	NotificationMatch   = "match"
	NotificationMessage = "message"
	NotificationSystem  = "system"
)

type Notification struct {
	ID        uint64            `gorm:"primaryKey;autoIncrement"`
	UserID    uint64            `gorm:"not null;index:idx_notification_user,priority:1"`
	Type      string            `gorm:"size:16;not null"`
	Title     string            `gorm:"size:128;not null"`
	Message   string            `gorm:"size:512;not null"`
	Data      datatypes.JSONMap `gorm:"type:json"`
	IsRead    bool              `gorm:"not null;default:false;index:idx_notification_user,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Personality{},
		&User{},
		&UserTrait{},
		&DeviceToken{},
		&Connection{},
		&Question{},
		&UserResponse{},
		&ResponseAnswer{},
		&Match{},
		&Message{},
		&ReadReceipt{},
		&Notification{},
	}
}
