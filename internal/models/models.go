package models

import "time"

// SubmitRegistrationRequest - POST /api/registrations
type SubmitRegistrationRequest struct {
	EventSlug string              `json:"event_slug" binding:"required"`
	Identity  string              `json:"identity" binding:"required"`
	Name      string              `json:"name" binding:"required"`
	Email     string              `json:"email" binding:"required"`
	Phone     string              `json:"phone,omitempty"`
	Transport *TransportSelection `json:"transport,omitempty"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
}

// SubmitRegistrationResponse reports either a terminal result or a retry id
// the caller can poll while attempts continue in the background.
type SubmitRegistrationResponse struct {
	RetryID   string `json:"retry_id"`
	Status    string `json:"status"`
	OrderCode string `json:"order_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RetryStatusResponse - GET /api/registrations/retries/:id
type RetryStatusResponse struct {
	RetryID   string    `json:"retry_id"`
	Status    string    `json:"status"`
	Attempts  []Attempt `json:"attempts"`
	OrderCode string    `json:"order_code,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AvailabilityResponse - GET /api/events/:slug/availability
type AvailabilityResponse struct {
	EventSlug      string `json:"event_slug"`
	IsAvailable    bool   `json:"is_available"`
	Message        string `json:"message,omitempty"`
	ItemID         int64  `json:"item_id,omitempty"`
	ItemName       string `json:"item_name,omitempty"`
	AvailableCount *int64 `json:"available_count,omitempty"`
}

// CancelRegistrationRequest - PATCH /api/registrations/cancel
type CancelRegistrationRequest struct {
	EventSlug string `json:"event_slug" binding:"required"`
	OrderCode string `json:"order_code" binding:"required"`
}

// RegistrationStatusResponse mirrors the external order for status polling.
type RegistrationStatusResponse struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
	EventSlug string `json:"event_slug"`
}

// HealthStatusResponse - GET /health
type HealthStatusResponse struct {
	Status    string `json:"status"`
	Ticketing string `json:"ticketing"`
	Message   string `json:"message,omitempty"`
}

// ErrorResponse is the uniform error body of the API surface.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
