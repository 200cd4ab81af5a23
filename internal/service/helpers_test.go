package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "campreg/internal/errors"
	"campreg/internal/external"
	"campreg/internal/models"
)

// fakeTicketing is a scripted TicketingClient. createResults is consumed one
// entry per CreateOrder call; a nil entry means the call succeeds.
type fakeTicketing struct {
	mu sync.Mutex

	event  *external.Event
	items  []external.Item
	quotas []external.Quota

	eventErr  error
	itemsErr  error
	quotasErr error

	createResults []error
	createCalls   int
	lastOrderReq  *external.OrderRequest
	cancelled     []string

	healthErr error
}

func (f *fakeTicketing) GetEvent(ctx context.Context, slug string) (*external.Event, error) {
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	if f.event == nil {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "event %s not found", slug)
	}
	return f.event, nil
}

func (f *fakeTicketing) ListItems(ctx context.Context, slug string) ([]external.Item, error) {
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	return f.items, nil
}

func (f *fakeTicketing) ListQuotas(ctx context.Context, slug string) ([]external.Quota, error) {
	if f.quotasErr != nil {
		return nil, f.quotasErr
	}
	return f.quotas, nil
}

func (f *fakeTicketing) CreateOrder(ctx context.Context, slug string, req *external.OrderRequest) (*external.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := f.createCalls
	f.createCalls++
	f.lastOrderReq = req

	if call < len(f.createResults) && f.createResults[call] != nil {
		return nil, f.createResults[call]
	}
	return &external.Order{
		Code:   fmt.Sprintf("ORD%d", call+1),
		Status: external.OrderStatusNew,
		Email:  req.Email,
	}, nil
}

func (f *fakeTicketing) GetOrder(ctx context.Context, slug, code string) (*external.Order, error) {
	return &external.Order{Code: code, Status: external.OrderStatusNew}, nil
}

func (f *fakeTicketing) SetOrderStatus(ctx context.Context, slug, code, status string) (*external.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, code)
	return &external.Order{Code: code, Status: status}, nil
}

func (f *fakeTicketing) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeTicketing) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}

func (f *fakeTicketing) cancelledOrders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// memRetryStore is an in-memory RetryStore with the same compare-and-set
// semantics as the Postgres repository.
type memRetryStore struct {
	mu   sync.Mutex
	recs map[string]*models.RetryRecord
}

func newMemRetryStore() *memRetryStore {
	return &memRetryStore{recs: make(map[string]*models.RetryRecord)}
}

func copyRecord(rec *models.RetryRecord) *models.RetryRecord {
	raw, _ := json.Marshal(rec)
	var out models.RetryRecord
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (m *memRetryStore) Create(ctx context.Context, rec *models.RetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.recs[rec.ID] = copyRecord(rec)
	return nil
}

func (m *memRetryStore) GetByID(ctx context.Context, id string) (*models.RetryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (m *memRetryStore) GetByUserID(ctx context.Context, userID int64) ([]models.RetryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RetryRecord
	for _, rec := range m.recs {
		if rec.UserID == userID {
			out = append(out, *copyRecord(rec))
		}
	}
	return out, nil
}

func (m *memRetryStore) Update(ctx context.Context, rec *models.RetryRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.recs[rec.ID]
	if !ok || stored.Status != models.RetryPending {
		return false, nil
	}
	rec.UpdatedAt = time.Now()
	m.recs[rec.ID] = copyRecord(rec)
	return true, nil
}

func (m *memRetryStore) GetPending(ctx context.Context) ([]models.RetryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RetryRecord
	for _, rec := range m.recs {
		if rec.Status == models.RetryPending {
			out = append(out, *copyRecord(rec))
		}
	}
	return out, nil
}

func (m *memRetryStore) GetExpiredPending(ctx context.Context, cutoff time.Time) ([]models.RetryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RetryRecord
	for _, rec := range m.recs {
		if rec.Status == models.RetryPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, *copyRecord(rec))
		}
	}
	return out, nil
}

// forceStatus bypasses the compare-and-set; used to simulate a concurrent
// transition from another writer.
func (m *memRetryStore) forceStatus(id string, status models.RetryStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[id]; ok {
		rec.Status = status
	}
}

func (m *memRetryStore) status(id string) models.RetryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.recs[id]; ok {
		return rec.Status
	}
	return ""
}

// memRegStore is an in-memory RegistrationStore with the repository's
// one-row-per-(user, event) upsert semantics.
type memRegStore struct {
	mu   sync.Mutex
	regs []models.Registration
}

func (m *memRegStore) Create(ctx context.Context, reg *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.regs {
		if m.regs[i].UserID == reg.UserID && m.regs[i].EventSlug == reg.EventSlug {
			reg.ID = m.regs[i].ID
			m.regs[i].OrderCode = reg.OrderCode
			m.regs[i].Identity = reg.Identity
			m.regs[i].Status = reg.Status
			return nil
		}
	}
	reg.ID = int64(len(m.regs) + 1)
	m.regs = append(m.regs, *reg)
	return nil
}

func (m *memRegStore) GetByUserAndEvent(ctx context.Context, userID int64, eventSlug string) (*models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.regs {
		if m.regs[i].UserID == userID && m.regs[i].EventSlug == eventSlug {
			reg := m.regs[i]
			return &reg, nil
		}
	}
	return nil, nil
}

func (m *memRegStore) GetByUser(ctx context.Context, userID int64) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Registration
	for _, reg := range m.regs {
		if reg.UserID == userID {
			out = append(out, reg)
		}
	}
	return out, nil
}

func (m *memRegStore) UpdateStatusByOrder(ctx context.Context, orderCode, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.regs {
		if m.regs[i].OrderCode == orderCode {
			m.regs[i].Status = status
		}
	}
	return nil
}

func (m *memRegStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.regs)
}

// fakePublisher records published subjects.
type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

func ptrInt64(n int64) *int64 { return &n }

func ptrTime(t time.Time) *time.Time { return &t }

func openEvent(slug string) *external.Event {
	return &external.Event{
		Slug:         slug,
		Name:         external.LocalizedName{"en": "Summer Camp"},
		Live:         true,
		PresaleStart: ptrTime(time.Now().Add(-time.Hour)),
		PresaleEnd:   ptrTime(time.Now().Add(time.Hour)),
	}
}

func camperItems() []external.Item {
	return []external.Item{
		{ID: 11, Name: external.LocalizedName{"en": "Camper Ticket"}, Active: true},
		{ID: 12, Name: external.LocalizedName{"en": "Staff Pass"}, Active: true},
	}
}

func openQuotas(available int64) []external.Quota {
	return []external.Quota{
		{ID: 1, Items: []int64{11}, Available: available > 0, AvailableNumber: ptrInt64(available)},
	}
}

func validIntent() models.RegistrationIntent {
	return models.RegistrationIntent{
		EventSlug: "camp-2026",
		Identity:  models.IdentityPrimary,
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		UserID:    42,
	}
}
