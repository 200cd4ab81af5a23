package models

import (
	"strings"
	"time"

	"campreg/internal/errors"
)

// IdentityTag selects which inventory item a registrant signs up under.
type IdentityTag string

const (
	IdentityPrimary   IdentityTag = "primary"
	IdentitySecondary IdentityTag = "secondary"
)

// KnownIdentity reports whether tag is part of the closed enumeration.
func KnownIdentity(tag IdentityTag) bool {
	return tag == IdentityPrimary || tag == IdentitySecondary
}

// TransportSelection is the registrant's optional shuttle choice.
type TransportSelection struct {
	Required    bool   `json:"required"`
	PickupPoint string `json:"pickup_point,omitempty"`
}

// RegistrationIntent is the immutable description of what the user wants to
// register for. Corrections produce a new intent, never a mutation.
type RegistrationIntent struct {
	EventSlug string              `json:"event_slug"`
	Identity  IdentityTag         `json:"identity"`
	Name      string              `json:"name"`
	Email     string              `json:"email"`
	Phone     string              `json:"phone,omitempty"`
	Transport *TransportSelection `json:"transport,omitempty"`
	UserID    int64               `json:"user_id"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
}

// Validate checks the fields the external service would reject anyway, so a
// hopeless intent never burns a retry budget.
func (i *RegistrationIntent) Validate() error {
	if i.EventSlug == "" {
		return errors.New(errors.CodeValidation, "event slug is required")
	}
	if !KnownIdentity(i.Identity) {
		return errors.Newf(errors.CodeValidation, "unknown identity tag: %q", i.Identity)
	}
	if strings.TrimSpace(i.Name) == "" {
		return errors.New(errors.CodeValidation, "attendee name is required")
	}
	if !strings.Contains(i.Email, "@") {
		return errors.Newf(errors.CodeValidation, "invalid email address: %q", i.Email)
	}
	return nil
}

// RetryStatus is the lifecycle state of a RetryRecord.
type RetryStatus string

const (
	RetryPending   RetryStatus = "pending"
	RetrySuccess   RetryStatus = "success"
	RetryFailed    RetryStatus = "failed"
	RetryAbandoned RetryStatus = "abandoned"
)

// Terminal reports whether no further attempts may occur.
func (s RetryStatus) Terminal() bool {
	return s == RetrySuccess || s == RetryFailed || s == RetryAbandoned
}

// Attempt is one entry in a record's append-only attempt history.
type Attempt struct {
	AttemptNumber int       `json:"attempt_number"`
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

// RetryRecord is the durable aggregate tracking all attempts to fulfil one
// registration intent. Attempts are strictly ordered by AttemptNumber with no
// gaps; status transitions are monotonic.
type RetryRecord struct {
	ID        string             `json:"id"`
	UserID    int64              `json:"user_id"`
	Intent    RegistrationIntent `json:"intent"`
	Attempts  []Attempt          `json:"attempts"`
	Status    RetryStatus        `json:"status"`
	OrderCode string             `json:"order_code,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// LastAttempt returns the most recent attempt, or nil before the first one.
func (r *RetryRecord) LastAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

// Registration is the confirmed local record, written only once the external
// service has accepted the order.
type Registration struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	EventSlug string      `json:"event_slug"`
	OrderCode string      `json:"order_code"`
	Identity  IdentityTag `json:"identity"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// User is an API account authenticated via Basic Auth.
type User struct {
	UserID       int64      `json:"user_id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	Surname      string     `json:"surname"`
	RegisteredAt time.Time  `json:"registered_at"`
	IsActive     bool       `json:"is_active"`
	LastLoggedIn *time.Time `json:"last_logged_in,omitempty"`
}
