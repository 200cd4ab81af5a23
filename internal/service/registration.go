package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "campreg/internal/errors"
	"campreg/internal/external"
	"campreg/internal/inventory"
	"campreg/internal/logger"
	"campreg/internal/models"
)

const (
	msgNotYetOpen = "registration has not started yet"
	msgClosed     = "registration is closed"
)

// RegistrationService validates and executes a single registration attempt.
// It holds no state between calls: every attempt re-derives event, item and
// quota state so a retry sees the live picture.
type RegistrationService struct {
	ticketing TicketingClient
	resolver  *inventory.Resolver
	regStore  RegistrationStore

	now func() time.Time
}

func NewRegistrationService(ticketing TicketingClient, resolver *inventory.Resolver, regStore RegistrationStore) *RegistrationService {
	return &RegistrationService{
		ticketing: ticketing,
		resolver:  resolver,
		regStore:  regStore,
		now:       time.Now,
	}
}

// CheckEventAvailability reports whether the event is open for registration
// right now and, if an item for the identity can be resolved, its live count.
func (s *RegistrationService) CheckEventAvailability(ctx context.Context, slug string, identity models.IdentityTag) (*models.AvailabilityResponse, error) {
	event, err := s.ticketing.GetEvent(ctx, slug)
	if err != nil {
		return nil, err
	}

	resp := &models.AvailabilityResponse{EventSlug: slug}

	if open, reason := s.windowOpen(event); !open {
		resp.Message = reason
		return resp, nil
	}

	items, err := s.ticketing.ListItems(ctx, slug)
	if err != nil {
		return nil, err
	}

	item, err := s.resolver.ResolveItem(identity, items)
	if err != nil {
		resp.Message = fmt.Sprintf("no registration category for %q", identity)
		return resp, nil
	}
	resp.ItemID = item.ID
	resp.ItemName = item.Name.String()

	quotas, err := s.ticketing.ListQuotas(ctx, slug)
	if err != nil {
		return nil, err
	}

	avail := s.resolver.ComputeAvailability(item, quotas)
	resp.IsAvailable = avail.Available
	resp.AvailableCount = avail.Count
	if !avail.Available {
		resp.Message = "no spots remaining"
	}

	return resp, nil
}

// CreateRegistration runs the single-pass registration algorithm,
// short-circuiting on the first failure. Classified errors pass through
// untouched; anything unclassified from the order call surfaces as
// EXTERNAL_SERVICE_ERROR.
func (s *RegistrationService) CreateRegistration(ctx context.Context, intent models.RegistrationIntent) (*external.Order, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if s.regStore != nil {
		existing, err := s.regStore.GetByUserAndEvent(ctx, intent.UserID, intent.EventSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing registration: %w", err)
		}
		if existing != nil && existing.Status == "confirmed" {
			return nil, apperrors.Newf(apperrors.CodeAlreadyRegistered,
				"already registered for %s with order %s", intent.EventSlug, existing.OrderCode)
		}
	}

	event, err := s.ticketing.GetEvent(ctx, intent.EventSlug)
	if err != nil {
		return nil, err
	}
	if open, reason := s.windowOpen(event); !open {
		return nil, apperrors.New(apperrors.CodeEventNotAvailable, reason)
	}

	items, err := s.ticketing.ListItems(ctx, intent.EventSlug)
	if err != nil {
		return nil, err
	}
	item, err := s.resolver.ResolveItem(intent.Identity, items)
	if err != nil {
		return nil, err
	}

	quotas, err := s.ticketing.ListQuotas(ctx, intent.EventSlug)
	if err != nil {
		return nil, err
	}
	if avail := s.resolver.ComputeAvailability(item, quotas); !avail.Available {
		return nil, apperrors.Newf(apperrors.CodeItemNotAvailable,
			"item %q has no spots remaining", item.Name.String())
	}

	order, err := s.ticketing.CreateOrder(ctx, intent.EventSlug, s.buildOrderRequest(&intent, item))
	if err != nil {
		if _, classified := apperrors.AsService(err); classified {
			return nil, err
		}
		return nil, apperrors.Newf(apperrors.CodeExternalService, "order creation failed: %v", err)
	}

	logger.WithContext(ctx).Info("Order created",
		"event", intent.EventSlug,
		"order_code", order.Code,
		"item_id", item.ID,
		"identity", intent.Identity)

	return order, nil
}

// buildOrderRequest maps the intent to one order position. The metadata bag
// carries the identity tag, transport fields and the originating user id so
// the external side can trace the order back to a local account.
func (s *RegistrationService) buildOrderRequest(intent *models.RegistrationIntent, item *external.Item) *external.OrderRequest {
	meta := map[string]string{
		"identity":          string(intent.Identity),
		"requester_user_id": strconv.FormatInt(intent.UserID, 10),
	}
	if intent.Transport != nil {
		meta["transport_required"] = strconv.FormatBool(intent.Transport.Required)
		if intent.Transport.PickupPoint != "" {
			meta["transport_pickup"] = intent.Transport.PickupPoint
		}
	}
	for k, v := range intent.Metadata {
		meta[k] = v
	}

	return &external.OrderRequest{
		Email:  intent.Email,
		Phone:  intent.Phone,
		Locale: "en",
		Positions: []external.OrderPosition{{
			Item:          item.ID,
			AttendeeName:  intent.Name,
			AttendeeEmail: intent.Email,
			MetaData:      meta,
		}},
	}
}

// GetRegistrationStatus is a thin passthrough to the external order.
func (s *RegistrationService) GetRegistrationStatus(ctx context.Context, slug, orderCode string) (*models.RegistrationStatusResponse, error) {
	order, err := s.ticketing.GetOrder(ctx, slug, orderCode)
	if err != nil {
		return nil, err
	}
	return &models.RegistrationStatusResponse{
		OrderCode: order.Code,
		Status:    order.Status,
		EventSlug: slug,
	}, nil
}

// CancelRegistration cancels the external order and, when known locally,
// marks the confirmed registration cancelled.
func (s *RegistrationService) CancelRegistration(ctx context.Context, slug, orderCode string) error {
	if _, err := s.ticketing.SetOrderStatus(ctx, slug, orderCode, external.OrderStatusCanceled); err != nil {
		return err
	}

	if s.regStore != nil {
		if err := s.regStore.UpdateStatusByOrder(ctx, orderCode, "cancelled"); err != nil {
			// The external cancel succeeded; a stale local row is repairable.
			logger.WithContext(ctx).Error("Failed to mark registration cancelled",
				"error", err, "order_code", orderCode)
		}
	}

	return nil
}

// GetHealthStatus converts the ticketing health probe into a structured message.
func (s *RegistrationService) GetHealthStatus(ctx context.Context) *models.HealthStatusResponse {
	if err := s.ticketing.HealthCheck(ctx); err != nil {
		return &models.HealthStatusResponse{
			Status:    "degraded",
			Ticketing: "unreachable",
			Message:   err.Error(),
		}
	}
	return &models.HealthStatusResponse{
		Status:    "ok",
		Ticketing: "reachable",
	}
}

// windowOpen evaluates the presale window against wall-clock now.
// Open-ended bounds are always satisfied on that side.
func (s *RegistrationService) windowOpen(event *external.Event) (bool, string) {
	now := s.now()
	if event.PresaleStart != nil && now.Before(*event.PresaleStart) {
		return false, msgNotYetOpen
	}
	if event.PresaleEnd != nil && now.After(*event.PresaleEnd) {
		return false, msgClosed
	}
	return true, ""
}
