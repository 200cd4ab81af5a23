package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	apperrors "campreg/internal/errors"
	"campreg/internal/metrics"
)

const (
	defaultCacheTTL = 5 * time.Minute

	// Bounded retry for idempotent reads: up to 3 attempts, linear backoff.
	maxReadAttempts = 3

	// Cache namespace for the global events listing.
	nsEvents = "events"
)

var readRetryDelay = 1 * time.Second

// PretixClient is the single point of contact with the external ticketing
// service. All reads go through the TTL cache; order mutations invalidate the
// affected event's namespace and are never retried here (that is the retry
// orchestrator's job, since order creation is not idempotent at this layer).
type PretixClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	cache      *TTLCache
}

type PretixConfig struct {
	BaseURL   string
	Organizer string
	APIToken  string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// LocalizedName is the multi-language name map used by the ticketing service.
type LocalizedName map[string]string

// String prefers the English form, then any form.
func (n LocalizedName) String() string {
	if v, ok := n["en"]; ok {
		return v
	}
	for _, v := range n {
		return v
	}
	return ""
}

// Event is an immutable snapshot of an event, including its presale window.
// Nil window bounds are unbounded on that side.
type Event struct {
	Slug         string        `json:"slug"`
	Name         LocalizedName `json:"name"`
	Live         bool          `json:"live"`
	PresaleStart *time.Time    `json:"presale_start"`
	PresaleEnd   *time.Time    `json:"presale_end"`
}

// Item is one purchasable registration category.
type Item struct {
	ID           int64         `json:"id"`
	Name         LocalizedName `json:"name"`
	InternalName string        `json:"internal_name"`
	Active       bool          `json:"active"`
	MinPerOrder  *int64        `json:"min_per_order"`
	MaxPerOrder  *int64        `json:"max_per_order"`
}

// Quota limits how many orders can be placed against one or more items.
// Nil size/available counts mean unlimited.
type Quota struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Size            *int64  `json:"size"`
	Items           []int64 `json:"items"`
	Closed          bool    `json:"closed"`
	Available       bool    `json:"available"`
	AvailableNumber *int64  `json:"available_number"`
}

// Order statuses used by the ticketing service.
const (
	OrderStatusNew      = "n"
	OrderStatusPending  = "p"
	OrderStatusExpired  = "e"
	OrderStatusCanceled = "c"
	OrderStatusRefunded = "r"
)

type OrderPosition struct {
	Item          int64             `json:"item"`
	AttendeeName  string            `json:"attendee_name"`
	AttendeeEmail string            `json:"attendee_email,omitempty"`
	MetaData      map[string]string `json:"meta_data,omitempty"`
}

type OrderRequest struct {
	Email     string            `json:"email"`
	Phone     string            `json:"phone,omitempty"`
	Locale    string            `json:"locale,omitempty"`
	Positions []OrderPosition   `json:"positions"`
	MetaData  map[string]string `json:"meta_data,omitempty"`
	Comment   string            `json:"comment,omitempty"`
}

type Order struct {
	Code      string          `json:"code"`
	Status    string          `json:"status"`
	Email     string          `json:"email"`
	Positions []OrderPosition `json:"positions"`
}

type statusPatch struct {
	Status string `json:"status"`
}

// errorBody is the optional {detail} payload on 4xx/5xx responses.
type errorBody struct {
	Detail string `json:"detail"`
}

type eventListEnvelope struct {
	Count   int     `json:"count"`
	Results []Event `json:"results"`
}

type itemListEnvelope struct {
	Count   int    `json:"count"`
	Results []Item `json:"results"`
}

type quotaListEnvelope struct {
	Count   int     `json:"count"`
	Results []Quota `json:"results"`
}

func NewPretixClient(cfg PretixConfig) *PretixClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	return &PretixClient{
		baseURL: fmt.Sprintf("%s/api/v1/organizers/%s", cfg.BaseURL, cfg.Organizer),
		token:   cfg.APIToken,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: NewTTLCache(cfg.CacheTTL),
	}
}

// ListEvents returns all events of the organizer.
func (pc *PretixClient) ListEvents(ctx context.Context) ([]Event, error) {
	const key = "events/"
	if v, ok := pc.cache.Get(key); ok {
		return v.([]Event), nil
	}

	var env eventListEnvelope
	if err := pc.getWithRetry(ctx, "listEvents", "/events/", nil, &env); err != nil {
		return nil, err
	}

	pc.cache.Set(key, nsEvents, env.Results)
	return env.Results, nil
}

// GetEvent returns one event by slug.
func (pc *PretixClient) GetEvent(ctx context.Context, slug string) (*Event, error) {
	key := fmt.Sprintf("events/%s/", slug)
	if v, ok := pc.cache.Get(key); ok {
		event := v.(Event)
		return &event, nil
	}

	var event Event
	if err := pc.getWithRetry(ctx, "getEvent", fmt.Sprintf("/events/%s/", slug), nil, &event); err != nil {
		return nil, err
	}

	pc.cache.Set(key, slug, event)
	return &event, nil
}

// ListItems returns the purchasable items of an event.
func (pc *PretixClient) ListItems(ctx context.Context, slug string) ([]Item, error) {
	key := fmt.Sprintf("events/%s/items/", slug)
	if v, ok := pc.cache.Get(key); ok {
		return v.([]Item), nil
	}

	var env itemListEnvelope
	if err := pc.getWithRetry(ctx, "listItems", fmt.Sprintf("/events/%s/items/", slug), nil, &env); err != nil {
		return nil, err
	}

	pc.cache.Set(key, slug, env.Results)
	return env.Results, nil
}

// ListQuotas returns an event's quotas with live availability numbers.
func (pc *PretixClient) ListQuotas(ctx context.Context, slug string) ([]Quota, error) {
	query := url.Values{"with_availability": {"true"}}
	key := fmt.Sprintf("events/%s/quotas/?%s", slug, query.Encode())
	if v, ok := pc.cache.Get(key); ok {
		return v.([]Quota), nil
	}

	var env quotaListEnvelope
	if err := pc.getWithRetry(ctx, "listQuotas", fmt.Sprintf("/events/%s/quotas/", slug), query, &env); err != nil {
		return nil, err
	}

	pc.cache.Set(key, slug, env.Results)
	return env.Results, nil
}

// GetOrder returns one order by code.
func (pc *PretixClient) GetOrder(ctx context.Context, slug, code string) (*Order, error) {
	key := fmt.Sprintf("events/%s/orders/%s/", slug, code)
	if v, ok := pc.cache.Get(key); ok {
		order := v.(Order)
		return &order, nil
	}

	var order Order
	if err := pc.getWithRetry(ctx, "getOrder", fmt.Sprintf("/events/%s/orders/%s/", slug, code), nil, &order); err != nil {
		return nil, err
	}

	pc.cache.Set(key, slug, order)
	return &order, nil
}

// CreateOrder places a new order. Never retried here and never cached; on
// success every cache entry for the event (and the events listing) is
// invalidated so subsequent reads observe the write.
func (pc *PretixClient) CreateOrder(ctx context.Context, slug string, req *OrderRequest) (*Order, error) {
	var order Order
	err := pc.do(ctx, "createOrder", http.MethodPost, fmt.Sprintf("/events/%s/orders/", slug), nil, req, &order)
	if err != nil {
		return nil, err
	}

	pc.cache.InvalidateNamespace(slug, nsEvents)
	return &order, nil
}

// SetOrderStatus patches an order's status (e.g. OrderStatusCanceled).
func (pc *PretixClient) SetOrderStatus(ctx context.Context, slug, code, status string) (*Order, error) {
	var order Order
	path := fmt.Sprintf("/events/%s/orders/%s/", slug, code)
	err := pc.do(ctx, "setOrderStatus", http.MethodPatch, path, nil, statusPatch{Status: status}, &order)
	if err != nil {
		return nil, err
	}

	pc.cache.InvalidateNamespace(slug, nsEvents)
	return &order, nil
}

// HealthCheck probes the service with a minimal read, bypassing the cache.
func (pc *PretixClient) HealthCheck(ctx context.Context) error {
	query := url.Values{"page_size": {"1"}}
	var env eventListEnvelope
	return pc.getWithRetry(ctx, "healthCheck", "/events/", query, &env)
}

// CacheStats exposes cache introspection for the operational surface.
func (pc *PretixClient) CacheStats() CacheStats {
	return pc.cache.Stats()
}

// ClearCache drops every cached entry.
func (pc *PretixClient) ClearCache() {
	pc.cache.Clear()
}

// getWithRetry wraps an idempotent read in a bounded retry: 4xx responses
// never retry, only server and transport failures do.
func (pc *PretixClient) getWithRetry(ctx context.Context, op, path string, query url.Values, out any) error {
	var err error
	for attempt := 1; attempt <= maxReadAttempts; attempt++ {
		err = pc.do(ctx, op, http.MethodGet, path, query, nil, out)
		if err == nil {
			return nil
		}
		if apperrors.IsClientError(err) {
			return err
		}
		if attempt < maxReadAttempts {
			select {
			case <-time.After(time.Duration(attempt) * readRetryDelay):
			case <-ctx.Done():
				return classifyTransportError(ctx.Err())
			}
		}
	}
	return err
}

// do issues a single request and translates every failure into the taxonomy.
func (pc *PretixClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	err := pc.doOnce(ctx, method, path, query, body, out)
	metrics.ExternalRequestDuration.Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.CodeOf(err))
	}
	metrics.ExternalRequestsTotal.WithLabelValues(op, outcome).Inc()
	return err
}

func (pc *PretixClient) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := pc.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return apperrors.Newf(apperrors.CodeExternalService, "failed to marshal request: %v", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return apperrors.Newf(apperrors.CodeExternalService, "failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Token "+pc.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var detail errorBody
		_ = json.NewDecoder(resp.Body).Decode(&detail)
		return apperrors.FromStatus(resp.StatusCode, detail.Detail)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Newf(apperrors.CodeExternalService, "failed to decode response: %v", err)
		}
	}

	return nil
}

// classifyTransportError maps no-response failures: timeouts vs everything else.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Newf(apperrors.CodeTimeout, "ticketing service timed out: %v", err)
	}
	return apperrors.Newf(apperrors.CodeNetworkError, "no response from ticketing service: %v", err)
}
