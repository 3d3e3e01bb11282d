package directory

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("directory closed")

// Scope selects which recipient population an operation targets.
type Scope int

const (
	// ScopeSubscribed: subscribed and not blocked (the default audience).
	ScopeSubscribed Scope = iota
	// ScopeAll: everyone who has not blocked the bot.
	ScopeAll
)

func (s Scope) String() string {
	if s == ScopeAll {
		return "all"
	}
	return "subscribed"
}

// Recipient is one user the bot may message.
type Recipient struct {
	ID         int64
	Username   string
	FirstName  string
	LastName   string
	Phone      string
	Subscribed bool
	Blocked    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Profile carries the identity fields captured on first contact.
type Profile struct {
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
}

// Contact carries the shared-contact fields.
type Contact struct {
	PhoneNumber string
	FirstName   string
	LastName    string
}

// Stats is an aggregate view for operator reporting.
type Stats struct {
	Total      int64
	Subscribed int64
	Blocked    int64
}

// Store is the persistence API consumed by broadcast and onboarding.
//
// Every method is a short, independent transaction; there are no multi-step
// transactions spanning a dispatch pass.
type Store interface {
	// List returns recipient ids in the given scope, in stable id order.
	List(ctx context.Context, scope Scope) ([]int64, error)
	// Save upserts a recipient's profile (insert on first contact).
	Save(ctx context.Context, id int64, p Profile) error
	// SaveContact records the shared contact details.
	SaveContact(ctx context.Context, id int64, c Contact) error
	// SetBlocked flips the blocked flag.
	SetBlocked(ctx context.Context, id int64, blocked bool) error
	// SetSubscribed flips the subscription flag and bumps the
	// interaction counter.
	SetSubscribed(ctx context.Context, id int64, subscribed bool) error
	// Get returns a single recipient.
	Get(ctx context.Context, id int64) (Recipient, bool, error)
	// Stats returns aggregate counts for operator reporting.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
