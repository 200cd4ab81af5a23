package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campreg/internal/errors"
	"campreg/internal/external"
	"campreg/internal/inventory"
	"campreg/internal/models"
	"campreg/internal/service"
)

// stubTicketing serves one open event with an available camper item.
type stubTicketing struct {
	mu        sync.Mutex
	cancelled []string
	orderErr  error
}

func (s *stubTicketing) GetEvent(ctx context.Context, slug string) (*external.Event, error) {
	if slug != "camp-2026" {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "event %s not found", slug)
	}
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	return &external.Event{
		Slug:         slug,
		Name:         external.LocalizedName{"en": "Summer Camp"},
		Live:         true,
		PresaleStart: &start,
		PresaleEnd:   &end,
	}, nil
}

func (s *stubTicketing) ListItems(ctx context.Context, slug string) ([]external.Item, error) {
	return []external.Item{
		{ID: 11, Name: external.LocalizedName{"en": "Camper Ticket"}, Active: true},
	}, nil
}

func (s *stubTicketing) ListQuotas(ctx context.Context, slug string) ([]external.Quota, error) {
	n := int64(5)
	return []external.Quota{
		{ID: 1, Items: []int64{11}, Available: true, AvailableNumber: &n},
	}, nil
}

func (s *stubTicketing) CreateOrder(ctx context.Context, slug string, req *external.OrderRequest) (*external.Order, error) {
	if s.orderErr != nil {
		return nil, s.orderErr
	}
	return &external.Order{Code: "ORDER1", Status: external.OrderStatusNew, Email: req.Email}, nil
}

func (s *stubTicketing) GetOrder(ctx context.Context, slug, code string) (*external.Order, error) {
	return &external.Order{Code: code, Status: external.OrderStatusNew}, nil
}

func (s *stubTicketing) SetOrderStatus(ctx context.Context, slug, code, status string) (*external.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, code)
	return &external.Order{Code: code, Status: status}, nil
}

func (s *stubTicketing) HealthCheck(ctx context.Context) error { return nil }

// stubRetryStore is a minimal in-memory RetryStore.
type stubRetryStore struct {
	mu   sync.Mutex
	recs map[string]models.RetryRecord
}

func newStubRetryStore() *stubRetryStore {
	return &stubRetryStore{recs: make(map[string]models.RetryRecord)}
}

func (s *stubRetryStore) Create(ctx context.Context, rec *models.RetryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	s.recs[rec.ID] = *rec
	return nil
}

func (s *stubRetryStore) GetByID(ctx context.Context, id string) (*models.RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *stubRetryStore) GetByUserID(ctx context.Context, userID int64) ([]models.RetryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RetryRecord
	for _, rec := range s.recs {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRetryStore) Update(ctx context.Context, rec *models.RetryRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.recs[rec.ID]
	if !ok || stored.Status != models.RetryPending {
		return false, nil
	}
	rec.UpdatedAt = time.Now()
	s.recs[rec.ID] = *rec
	return true, nil
}

func (s *stubRetryStore) GetPending(ctx context.Context) ([]models.RetryRecord, error) {
	return nil, nil
}

func (s *stubRetryStore) GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.RetryRecord, error) {
	return nil, nil
}

type testEnv struct {
	router    *gin.Engine
	store     *stubRetryStore
	ticketing *stubTicketing
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ticketing := &stubTicketing{}
	store := newStubRetryStore()
	regSvc := service.NewRegistrationService(ticketing, inventory.NewResolver(nil), nil)
	retrySvc := service.NewRetryService(service.RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	}, regSvc, store, nil, nil)
	t.Cleanup(retrySvc.Close)

	h := NewHandlers(&service.Services{Registrations: regSvc, Retries: retrySvc})

	r := gin.New()

	api := r.Group("/api")
	api.Use(func(c *gin.Context) {
		c.Set("user_id", int64(42))
		c.Next()
	})
	{
		registrations := api.Group("/registrations")
		{
			registrations.POST("", h.SubmitRegistration)
			registrations.GET("", h.ListRegistrations)
			registrations.PATCH("/cancel", h.CancelRegistration)
			registrations.GET("/retries/:id", h.GetRetryStatus)
			registrations.DELETE("/retries/:id", h.AbandonRetry)
		}

		events := api.Group("/events")
		{
			events.GET("/:slug/availability", h.GetAvailability)
			events.GET("/:slug/orders/:code", h.GetRegistrationStatus)
		}
	}
	r.GET("/health", h.HealthCheck)

	return &testEnv{router: r, store: store, ticketing: ticketing}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitRegistration(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "POST", "/api/registrations", models.SubmitRegistrationRequest{
		EventSlug: "camp-2026",
		Identity:  "primary",
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
	})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp models.SubmitRegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RetryID)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "ORDER1", resp.OrderCode)
}

func TestSubmitRegistrationBadBody(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "POST", "/api/registrations", map[string]string{
		"identity": "primary",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitRegistrationValidationFailure(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "POST", "/api/registrations", models.SubmitRegistrationRequest{
		EventSlug: "camp-2026",
		Identity:  "primary",
		Name:      "Ada Lovelace",
		Email:     "not-an-email",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.SubmitRegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.NotEmpty(t, resp.Message)
}

func TestGetRetryStatus(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "POST", "/api/registrations", models.SubmitRegistrationRequest{
		EventSlug: "camp-2026",
		Identity:  "primary",
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var submitted models.SubmitRegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))

	w = doJSON(t, env.router, "GET", "/api/registrations/retries/"+submitted.RetryID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var status models.RetryStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "success", status.Status)
	assert.Len(t, status.Attempts, 1)
	assert.Equal(t, "ORDER1", status.OrderCode)
}

func TestGetRetryStatusNotFound(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/api/registrations/retries/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(apperrors.CodeNotFound), resp.Code)
}

func TestAbandonRetry(t *testing.T) {
	env := setupRouter(t)

	rec := &models.RetryRecord{ID: "r1", UserID: 42, Status: models.RetryPending}
	require.NoError(t, env.store.Create(context.Background(), rec))

	w := doJSON(t, env.router, "DELETE", "/api/registrations/retries/r1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	stored, err := env.store.GetByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RetryAbandoned, stored.Status)

	w = doJSON(t, env.router, "DELETE", "/api/registrations/retries/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRegistrations(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/api/registrations", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestCancelRegistration(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "PATCH", "/api/registrations/cancel", models.CancelRegistrationRequest{
		EventSlug: "camp-2026",
		OrderCode: "ORDER1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ORDER1"}, env.ticketing.cancelled)
}

func TestGetAvailability(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/api/events/camp-2026/availability", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.AvailabilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.IsAvailable)
	assert.Equal(t, int64(11), resp.ItemID)
	require.NotNil(t, resp.AvailableCount)
	assert.Equal(t, int64(5), *resp.AvailableCount)
}

func TestGetAvailabilityUnknownIdentity(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/api/events/camp-2026/availability?identity=ghost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRegistrationStatus(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/api/events/camp-2026/orders/ORDER1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.RegistrationStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ORDER1", resp.OrderCode)
	assert.Equal(t, external.OrderStatusNew, resp.Status)
}

func TestHealthCheck(t *testing.T) {
	env := setupRouter(t)

	w := doJSON(t, env.router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp models.HealthStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
