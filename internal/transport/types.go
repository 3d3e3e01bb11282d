package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromFirst    string
	FromLast     string
	LanguageCode string
	Text         string
	Contact      *Contact // set when the user shared a contact card
	IsGroup      bool
}

// Contact is the shared-contact payload attached to a message.
type Contact struct {
	PhoneNumber string
	FirstName   string
	LastName    string
	UserID      int64
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Media is a photo-with-caption payload. The button is optional; when set
// the adapter attaches a single inline URL button under the media.
type Media struct {
	Caption     string
	ImageURL    string
	ButtonLabel string
	ButtonURL   string
}

// MembershipStatus is the platform's report of a user's standing in a chat.
type MembershipStatus string

const (
	MemberStatusMember  MembershipStatus = "member"
	MemberStatusAdmin   MembershipStatus = "administrator"
	MemberStatusCreator MembershipStatus = "creator"
	MemberStatusLeft    MembershipStatus = "left"
	MemberStatusKicked  MembershipStatus = "kicked"
	MemberStatusUnknown MembershipStatus = "unknown"
)

// Subscribed reports whether the status counts as channel membership.
func (s MembershipStatus) Subscribed() bool {
	switch s {
	case MemberStatusMember, MemberStatusAdmin, MemberStatusCreator:
		return true
	}
	return false
}

// Send-failure classification sentinels. The adapter wraps platform errors
// with these so consumers never depend on telebot error values.
var (
	// ErrRecipientBlocked: the recipient has blocked the bot (platform
	// "forbidden" / "unauthorized").
	ErrRecipientBlocked = errors.New("recipient blocked the bot")
	// ErrChatNotFound: the platform does not know the target chat.
	ErrChatNotFound = errors.New("chat not found")
)

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendMedia(ctx context.Context, to ChatTarget, m Media, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// CheckMembership reports the user's standing in the given chat/channel.
	CheckMembership(ctx context.Context, chatID int64, userID int64) (MembershipStatus, error)
}
