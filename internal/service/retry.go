package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "campreg/internal/errors"
	"campreg/internal/logger"
	"campreg/internal/metrics"
	"campreg/internal/models"
)

// RetryConfig controls the exponential backoff schedule. Zero values fall
// back to 3 attempts, 1s base, x2 multiplier, 30s cap.
type RetryConfig struct {
	MaxRetries        int
	BaseDelay         time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 1000 * time.Millisecond
	}
	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30000 * time.Millisecond
	}
	return c
}

// RetryService owns the durable retry records and the in-process timers that
// drive follow-up attempts. The store's compare-and-set update is the single
// arbiter of terminal transitions: a timer firing against a record someone
// already abandoned loses the race and its side effects are rolled back.
type RetryService struct {
	cfg           RetryConfig
	registrations *RegistrationService
	store         RetryStore
	regStore      RegistrationStore
	publisher     EventPublisher

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewRetryService(cfg RetryConfig, registrations *RegistrationService, store RetryStore, regStore RegistrationStore, publisher EventPublisher) *RetryService {
	return &RetryService{
		cfg:           cfg.withDefaults(),
		registrations: registrations,
		store:         store,
		regStore:      regStore,
		publisher:     publisher,
		timers:        make(map[string]*time.Timer),
	}
}

// Submit creates a durable retry record for the intent and runs the first
// attempt synchronously, so a request that can succeed right away returns its
// order code in the same call. On failure the returned record tells the
// caller whether attempts continue in the background.
func (s *RetryService) Submit(ctx context.Context, intent models.RegistrationIntent) (*models.RetryRecord, error) {
	rec := &models.RetryRecord{
		ID:     uuid.New().String(),
		UserID: intent.UserID,
		Intent: intent,
		Status: models.RetryPending,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.publish(models.EventRegistrationSubmitted, models.RegistrationSubmittedEvent{
		RetryID:   rec.ID,
		UserID:    rec.UserID,
		EventSlug: intent.EventSlug,
		Identity:  string(intent.Identity),
		Timestamp: time.Now(),
	})

	s.attempt(ctx, rec)
	return rec, nil
}

// GetRetryRecord returns a record or a NOT_FOUND classified error.
func (s *RetryService) GetRetryRecord(ctx context.Context, id string) (*models.RetryRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "retry record %s not found", id)
	}
	return rec, nil
}

// GetUserRetryRecords lists a user's records, newest first per store order.
func (s *RetryService) GetUserRetryRecords(ctx context.Context, userID int64) ([]models.RetryRecord, error) {
	return s.store.GetByUserID(ctx, userID)
}

// AbandonRetry cancels any scheduled attempt and marks the record abandoned.
// It reports false when the record does not exist. Abandoning a record that
// already reached a terminal state is a no-op, not an error.
func (s *RetryService) AbandonRetry(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	s.cancelTimer(id)

	if rec.Status.Terminal() {
		return true, nil
	}

	rec.Status = models.RetryAbandoned
	applied, err := s.store.Update(ctx, rec)
	if err != nil {
		return false, err
	}
	if applied {
		metrics.RetriesAbandonedTotal.Inc()
		s.publish(models.EventRetryAbandoned, models.RetryAbandonedEvent{
			RetryID:   rec.ID,
			UserID:    rec.UserID,
			Reason:    "abandoned by user",
			Timestamp: time.Now(),
		})
	}
	return true, nil
}

// CleanupExpiredRetries abandons pending records older than maxAge and
// returns how many this pass transitioned. Records that raced to a terminal
// state between the query and the update are not counted.
func (s *RetryService) CleanupExpiredRetries(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	expired, err := s.store.GetExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range expired {
		rec := &expired[i]
		s.cancelTimer(rec.ID)

		rec.Status = models.RetryAbandoned
		applied, err := s.store.Update(ctx, rec)
		if err != nil {
			logger.WithRetryID(rec.ID).Error("Cleanup update failed", "error", err)
			continue
		}
		if !applied {
			continue
		}

		cleaned++
		metrics.RetriesAbandonedTotal.Inc()
		s.publish(models.EventRetryAbandoned, models.RetryAbandonedEvent{
			RetryID:   rec.ID,
			UserID:    rec.UserID,
			Reason:    "expired",
			Timestamp: time.Now(),
		})
	}
	return cleaned, nil
}

// ResumePending reschedules attempts for records left pending by a previous
// process. Records with a failed attempt behind them resume on their backoff
// schedule; untouched records run immediately.
func (s *RetryService) ResumePending(ctx context.Context) (int, error) {
	pending, err := s.store.GetPending(ctx)
	if err != nil {
		return 0, err
	}

	for i := range pending {
		rec := pending[i]
		if n := len(rec.Attempts); n > 0 {
			s.schedule(rec.ID, s.backoffDelay(n))
		} else {
			s.schedule(rec.ID, 0)
		}
	}
	return len(pending), nil
}

// Close stops every scheduled timer. In-flight attempts finish on their own;
// their store updates still go through the compare-and-set.
func (s *RetryService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// attempt runs one registration attempt against the live record state and
// commits the outcome. rec is mutated in place so Submit can return the
// post-attempt view.
func (s *RetryService) attempt(ctx context.Context, rec *models.RetryRecord) {
	attemptNum := len(rec.Attempts) + 1
	log := logger.WithRetryID(rec.ID)

	order, err := s.registrations.CreateRegistration(ctx, rec.Intent)
	if err == nil {
		rec.Attempts = append(rec.Attempts, models.Attempt{
			AttemptNumber: attemptNum,
			Timestamp:     time.Now(),
			Success:       true,
		})
		rec.Status = models.RetrySuccess
		rec.OrderCode = order.Code
		metrics.RegistrationAttemptsTotal.WithLabelValues("success").Inc()

		applied, uerr := s.store.Update(ctx, rec)
		if uerr != nil {
			log.Error("Failed to commit successful attempt", "error", uerr)
			return
		}
		if !applied {
			// The record went terminal while the order call was in flight
			// (abandon or cleanup won the race). The external order must not
			// outlive the record; cancel it best-effort.
			log.Warn("Record already terminal, cancelling late order", "order_code", order.Code)
			if cerr := s.registrations.CancelRegistration(ctx, rec.Intent.EventSlug, order.Code); cerr != nil {
				log.Error("Failed to cancel late order", "error", cerr, "order_code", order.Code)
			}
			return
		}

		if s.regStore != nil {
			reg := &models.Registration{
				UserID:    rec.UserID,
				EventSlug: rec.Intent.EventSlug,
				OrderCode: order.Code,
				Identity:  rec.Intent.Identity,
				Status:    "confirmed",
			}
			if rerr := s.regStore.Create(ctx, reg); rerr != nil {
				log.Error("Failed to persist confirmed registration", "error", rerr)
			}
		}

		s.publish(models.EventRegistrationConfirmed, models.RegistrationConfirmedEvent{
			RetryID:   rec.ID,
			UserID:    rec.UserID,
			EventSlug: rec.Intent.EventSlug,
			OrderCode: order.Code,
			Attempts:  attemptNum,
			Timestamp: time.Now(),
		})
		log.Info("Registration confirmed", "order_code", order.Code, "attempt", attemptNum)
		return
	}

	code := apperrors.CodeOf(err)
	if code == "" {
		code = apperrors.CodeRetryAttempt
	}
	rec.Attempts = append(rec.Attempts, models.Attempt{
		AttemptNumber: attemptNum,
		Timestamp:     time.Now(),
		Success:       false,
		Error:         err.Error(),
		ErrorCode:     string(code),
	})
	metrics.RegistrationAttemptsTotal.WithLabelValues("failure").Inc()

	if apperrors.RetryableCode(code) && attemptNum < s.cfg.MaxRetries {
		applied, uerr := s.store.Update(ctx, rec)
		if uerr != nil {
			log.Error("Failed to record attempt", "error", uerr, "attempt", attemptNum)
			return
		}
		if !applied {
			return
		}

		delay := s.backoffDelay(attemptNum)
		s.schedule(rec.ID, delay)
		metrics.RetriesScheduledTotal.Inc()
		s.publish(models.EventRetryScheduled, models.RetryScheduledEvent{
			RetryID:     rec.ID,
			NextAttempt: attemptNum + 1,
			DelayMillis: delay.Milliseconds(),
			Timestamp:   time.Now(),
		})
		log.Info("Attempt failed, retry scheduled",
			"attempt", attemptNum, "error_code", code, "delay", delay)
		return
	}

	rec.Status = models.RetryFailed
	applied, uerr := s.store.Update(ctx, rec)
	if uerr != nil {
		log.Error("Failed to commit terminal failure", "error", uerr)
		return
	}
	if !applied {
		return
	}

	s.publish(models.EventRegistrationFailed, models.RegistrationFailedEvent{
		RetryID:   rec.ID,
		UserID:    rec.UserID,
		EventSlug: rec.Intent.EventSlug,
		Reason:    err.Error(),
		ErrorCode: string(code),
		Attempts:  attemptNum,
		Timestamp: time.Now(),
	})
	log.Warn("Registration failed permanently",
		"attempt", attemptNum, "error_code", code, "retryable", apperrors.RetryableCode(code))
}

// runScheduled is the timer callback. It re-reads the record so a transition
// that happened while the timer was pending (abandon, cleanup) stops the
// attempt before it touches the external service.
func (s *RetryService) runScheduled(id string) {
	ctx := context.Background()
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		logger.WithRetryID(id).Error("Failed to load record for scheduled attempt", "error", err)
		return
	}
	if rec == nil {
		logger.WithRetryID(id).Error("Scheduled attempt refers to a missing retry record")
		return
	}
	if rec.Status.Terminal() {
		return
	}
	s.attempt(ctx, rec)
}

func (s *RetryService) schedule(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		s.runScheduled(id)
	})
}

func (s *RetryService) cancelTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// backoffDelay computes the delay after n completed attempts:
// min(maxDelay, baseDelay * multiplier^(n-1)).
func (s *RetryService) backoffDelay(n int) time.Duration {
	delay := time.Duration(float64(s.cfg.BaseDelay) * math.Pow(s.cfg.BackoffMultiplier, float64(n-1)))
	if delay > s.cfg.MaxDelay {
		delay = s.cfg.MaxDelay
	}
	return delay
}

func (s *RetryService) publish(subject string, event interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(subject, event); err != nil {
		logger.Get().Error("Failed to publish event", "subject", subject, "error", err)
	}
}
