package models

import "time"

// NATS event subjects
const (
	EventRegistrationSubmitted = "registration.submitted"
	EventRegistrationConfirmed = "registration.confirmed"
	EventRegistrationFailed    = "registration.failed"
	EventRetryScheduled        = "retry.scheduled"
	EventRetryAbandoned        = "retry.abandoned"
)

// RegistrationSubmittedEvent is published when a retry record is created.
type RegistrationSubmittedEvent struct {
	RetryID   string    `json:"retry_id"`
	UserID    int64     `json:"user_id"`
	EventSlug string    `json:"event_slug"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationConfirmedEvent is published once the external order exists and
// the local registration row is written.
type RegistrationConfirmedEvent struct {
	RetryID   string    `json:"retry_id"`
	UserID    int64     `json:"user_id"`
	EventSlug string    `json:"event_slug"`
	OrderCode string    `json:"order_code"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// RegistrationFailedEvent is published when a record goes terminal without an
// order, carrying the last attempt's human-readable reason.
type RegistrationFailedEvent struct {
	RetryID   string    `json:"retry_id"`
	UserID    int64     `json:"user_id"`
	EventSlug string    `json:"event_slug"`
	Reason    string    `json:"reason"`
	ErrorCode string    `json:"error_code,omitempty"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// RetryScheduledEvent is published each time a follow-up attempt is queued.
type RetryScheduledEvent struct {
	RetryID     string    `json:"retry_id"`
	NextAttempt int       `json:"next_attempt"`
	DelayMillis int64     `json:"delay_ms"`
	Timestamp   time.Time `json:"timestamp"`
}

// RetryAbandonedEvent is published on explicit abandonment or expiry cleanup.
type RetryAbandonedEvent struct {
	RetryID   string    `json:"retry_id"`
	UserID    int64     `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
