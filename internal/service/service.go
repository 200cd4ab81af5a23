package service

import (
	"context"
	"time"

	"campreg/internal/external"
	"campreg/internal/inventory"
	"campreg/internal/models"
	"campreg/internal/repository"
)

// TicketingClient is the slice of the pretix client the services consume.
type TicketingClient interface {
	GetEvent(ctx context.Context, slug string) (*external.Event, error)
	ListItems(ctx context.Context, slug string) ([]external.Item, error)
	ListQuotas(ctx context.Context, slug string) ([]external.Quota, error)
	CreateOrder(ctx context.Context, slug string, req *external.OrderRequest) (*external.Order, error)
	GetOrder(ctx context.Context, slug, code string) (*external.Order, error)
	SetOrderStatus(ctx context.Context, slug, code, status string) (*external.Order, error)
	HealthCheck(ctx context.Context) error
}

// RetryStore is the durable store for retry records. Update must be a
// compare-and-set on pending status so no two writers can commit a result
// against the same record.
type RetryStore interface {
	Create(ctx context.Context, rec *models.RetryRecord) error
	GetByID(ctx context.Context, id string) (*models.RetryRecord, error)
	GetByUserID(ctx context.Context, userID int64) ([]models.RetryRecord, error)
	Update(ctx context.Context, rec *models.RetryRecord) (bool, error)
	GetPending(ctx context.Context) ([]models.RetryRecord, error)
	GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.RetryRecord, error)
}

// RegistrationStore persists confirmed registrations.
type RegistrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByUserAndEvent(ctx context.Context, userID int64, eventSlug string) (*models.Registration, error)
	GetByUser(ctx context.Context, userID int64) ([]models.Registration, error)
	UpdateStatusByOrder(ctx context.Context, orderCode, status string) error
}

// EventPublisher publishes lifecycle events; satisfied by the NATS client.
type EventPublisher interface {
	Publish(subject string, data interface{}) error
}

type Services struct {
	Registrations *RegistrationService
	Retries       *RetryService
}

func NewServices(repos *repository.Repositories, publisher EventPublisher, ticketing TicketingClient, resolver *inventory.Resolver, retryCfg RetryConfig) *Services {
	registrationService := NewRegistrationService(ticketing, resolver, repos.Registrations)
	retryService := NewRetryService(retryCfg, registrationService, repos.Retries, repos.Registrations, publisher)

	return &Services{
		Registrations: registrationService,
		Retries:       retryService,
	}
}
