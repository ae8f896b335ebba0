package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
	"github.com/YeabtsegaM/server-sub001/domain/services"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultDrawInterval is the interval between automatic draws unless
	// configured otherwise
	DefaultDrawInterval = 5 * time.Second

	// maxErrorLog bounds the per-session diagnostic error history
	maxErrorLog = 20
)

// DrawConfig configures one cashier's draw loop
type DrawConfig struct {
	Interval time.Duration
}

// drawError is one entry in the bounded per-session error history
type drawError struct {
	At      time.Time
	Message string
}

// sessionScheduler is the per-cashier draw loop state. At most one timer
// goroutine and one in-flight draw exist per scheduler at any time.
type sessionScheduler struct {
	cashierID string
	sessionID string

	mu           sync.Mutex
	active       bool
	interval     time.Duration
	stopCh       chan struct{}
	intervalCh   chan time.Duration
	lastDrawTime *time.Time
	nextDrawTime *time.Time

	totalDraws      int
	successfulDraws int
	failedDraws     int
	errorLog        []drawError

	// processing is the single-flight guard: a tick that finds it set is
	// dropped, never queued
	processing atomic.Bool
}

func (sc *sessionScheduler) recordError(message string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.errorLog = append(sc.errorLog, drawError{At: time.Now().UTC(), Message: message})
	if len(sc.errorLog) > maxErrorLog {
		sc.errorLog = sc.errorLog[len(sc.errorLog)-maxErrorLog:]
	}
}

func (sc *sessionScheduler) isStopped() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return !sc.active
}

// DrawScheduler runs the timer-driven draw loops, one per cashier session.
// It owns no session state beyond scheduling; draws are persisted through
// the unit of work and the pool registry holds the number state.
type DrawScheduler struct {
	uowFactory UnitOfWorkFactory
	pools      interfaces.NumberPoolManager
	shopID     string

	mu         sync.RWMutex
	schedulers map[string]*sessionScheduler

	// onComplete is invoked after the pool exhausts and the loop stops.
	// The scheduler itself never changes session status.
	onComplete func(cashierID, sessionID string)
}

// NewDrawScheduler creates a scheduler registry for a shop
func NewDrawScheduler(uowFactory UnitOfWorkFactory, pools interfaces.NumberPoolManager, shopID string) *DrawScheduler {
	return &DrawScheduler{
		uowFactory: uowFactory,
		pools:      pools,
		shopID:     shopID,
		schedulers: make(map[string]*sessionScheduler),
	}
}

// OnComplete registers the completion callback. Must be set before Start.
func (s *DrawScheduler) OnComplete(fn func(cashierID, sessionID string)) {
	s.onComplete = fn
}

// Initialize registers a cashier's scheduler for a session. Re-initializing
// stops any previous loop for that cashier first.
func (s *DrawScheduler) Initialize(cashierID, sessionID string, cfg DrawConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultDrawInterval
	}

	s.Stop(cashierID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulers[cashierID] = &sessionScheduler{
		cashierID:  cashierID,
		sessionID:  sessionID,
		interval:   interval,
		intervalCh: make(chan time.Duration, 1),
	}
}

// Start begins the draw loop. It returns false, never an error, when the
// scheduler is uninitialized, already running, or the session is not active.
func (s *DrawScheduler) Start(ctx context.Context, cashierID, sessionID string) bool {
	s.mu.RLock()
	sc, ok := s.schedulers[cashierID]
	s.mu.RUnlock()
	if !ok || sc.sessionID != sessionID {
		log.WithFields(log.Fields{
			"cashierID": cashierID,
			"sessionID": sessionID,
		}).Warn("Start refused: scheduler not initialized for session")
		return false
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil || session == nil || !session.IsActive() {
		log.WithFields(log.Fields{
			"cashierID": cashierID,
			"sessionID": sessionID,
		}).Warn("Start refused: session is not active")
		return false
	}

	sc.mu.Lock()
	if sc.active {
		sc.mu.Unlock()
		return false
	}
	sc.active = true
	sc.stopCh = make(chan struct{})
	next := time.Now().Add(sc.interval)
	sc.nextDrawTime = &next
	stopCh := sc.stopCh
	interval := sc.interval
	sc.mu.Unlock()

	go s.runLoop(sc, stopCh, interval)

	log.WithFields(log.Fields{
		"cashierID": cashierID,
		"sessionID": sessionID,
		"interval":  interval,
	}).Info("Draw scheduler started")
	return true
}

// runLoop is the supervised timer loop. Each tick schedules the next fire
// from now, not cumulatively, so timing self-corrects instead of drifting.
func (s *DrawScheduler) runLoop(sc *sessionScheduler, stopCh chan struct{}, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return

		case newInterval := <-sc.intervalCh:
			// Atomic timer replacement: the pending fire is rescheduled to
			// the new cadence, so no tick is dropped or duplicated
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			interval = newInterval
			timer.Reset(interval)
			sc.mu.Lock()
			sc.interval = interval
			next := time.Now().Add(interval)
			sc.nextDrawTime = &next
			sc.mu.Unlock()

		case <-timer.C:
			s.tick(sc)
			timer.Reset(interval)
			sc.mu.Lock()
			next := time.Now().Add(interval)
			sc.nextDrawTime = &next
			stopped := !sc.active
			sc.mu.Unlock()
			if stopped {
				return
			}
		}
	}
}

// tick performs one guarded draw. A tick arriving while another is in
// flight is dropped. Panics are captured into the error log; nothing may
// escape across the timer boundary.
func (s *DrawScheduler) tick(sc *sessionScheduler) {
	if !sc.processing.CompareAndSwap(false, true) {
		log.WithField("sessionID", sc.sessionID).Debug("Tick dropped, draw already in flight")
		return
	}
	defer sc.processing.Store(false)

	defer func() {
		if r := recover(); r != nil {
			sc.recordError(fmt.Sprintf("panic during draw: %v", r))
			sc.mu.Lock()
			sc.failedDraws++
			sc.mu.Unlock()
			log.WithFields(log.Fields{
				"sessionID": sc.sessionID,
				"panic":     r,
			}).Error("Recovered panic in draw tick")
		}
	}()

	sc.mu.Lock()
	sc.totalDraws++
	sc.mu.Unlock()

	number, exhausted, err := s.pools.Draw(sc.sessionID)
	if err != nil {
		sc.recordError(err.Error())
		sc.mu.Lock()
		sc.failedDraws++
		sc.mu.Unlock()
		return
	}

	if exhausted {
		s.handleExhaustion(sc)
		return
	}

	// A stop may have landed while the draw was running; its result is
	// discarded, never applied
	if sc.isStopped() {
		if err := s.pools.Restore(sc.sessionID, number); err != nil {
			log.WithError(err).WithField("sessionID", sc.sessionID).Warn("Failed to restore discarded draw")
		}
		return
	}

	_, err = s.persistDraw(sc, number)
	if err != nil {
		if restoreErr := s.pools.Restore(sc.sessionID, number); restoreErr != nil {
			log.WithError(restoreErr).WithField("sessionID", sc.sessionID).Warn("Failed to restore unpersisted draw")
		}
		sc.recordError(err.Error())
		sc.mu.Lock()
		sc.failedDraws++
		sc.mu.Unlock()
		log.WithError(err).WithFields(log.Fields{
			"sessionID": sc.sessionID,
			"number":    number,
		}).Warn("Draw not persisted, will retry on next tick")
		return
	}

	now := time.Now().UTC()
	sc.mu.Lock()
	sc.successfulDraws++
	sc.lastDrawTime = &now
	sc.mu.Unlock()
}

// handleExhaustion stops the loop and signals completion. Session status is
// the coordinator's responsibility.
func (s *DrawScheduler) handleExhaustion(sc *sessionScheduler) {
	log.WithField("sessionID", sc.sessionID).Info("Number pool exhausted, stopping scheduler")

	sc.mu.Lock()
	// The tick that discovers exhaustion is not a draw
	sc.totalDraws--
	totalDraws := sc.successfulDraws
	sc.mu.Unlock()

	s.Stop(sc.cashierID)

	uow := s.uowFactory.CreateForShop(s.shopID)
	ctx := context.Background()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).Warn("Failed to open transaction for completion event")
	} else {
		defer uow.Rollback()
		if pubErr := uow.EventBus().Publish(events.GameCompletedEvent{
			SessionID:  sc.sessionID,
			CashierID:  sc.cashierID,
			TotalDraws: totalDraws,
		}); pubErr != nil {
			log.WithError(pubErr).Warn("Failed to publish game completed event")
		}
		if err := uow.Commit(); err != nil {
			log.WithError(err).Warn("Failed to commit completion event")
		}
	}

	if s.onComplete != nil {
		s.onComplete(sc.cashierID, sc.sessionID)
	}
}

// persistDraw appends the number to session history in its own transaction
// and publishes the draw event on commit. A missing session stops the loop
// for good; any other failure is transient.
func (s *DrawScheduler) persistDraw(sc *sessionScheduler, number int) (int, error) {
	ctx := context.Background()
	uow := s.uowFactory.CreateForShop(s.shopID)
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	session, err := uow.GameSessionRepository().GetByID(ctx, sc.sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		// Session confirmed gone: stop scheduling instead of retrying forever
		log.WithField("sessionID", sc.sessionID).Warn("Session no longer exists, stopping scheduler")
		s.Stop(sc.cashierID)
		return 0, fmt.Errorf("session %s no longer exists", sc.sessionID)
	}

	sequence, err := uow.GameSessionRepository().AppendDrawnNumber(ctx, sc.sessionID, number)
	if err != nil {
		return 0, fmt.Errorf("failed to append drawn number: %w", err)
	}

	if err := uow.EventBus().Publish(events.NumberDrawnEvent{
		SessionID: sc.sessionID,
		CashierID: sc.cashierID,
		Number:    number,
		Sequence:  sequence,
		Remaining: poolRemaining(sequence),
	}); err != nil {
		log.WithError(err).Warn("Failed to buffer number drawn event")
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit draw: %w", err)
	}

	return sequence, nil
}

// Stop cancels the cashier's draw loop. Safe at any point, including
// mid-draw, and idempotent.
func (s *DrawScheduler) Stop(cashierID string) {
	s.mu.RLock()
	sc, ok := s.schedulers[cashierID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if !sc.active {
		return
	}
	sc.active = false
	close(sc.stopCh)
	sc.stopCh = nil
	sc.nextDrawTime = nil

	log.WithFields(log.Fields{
		"cashierID": cashierID,
		"sessionID": sc.sessionID,
	}).Info("Draw scheduler stopped")
}

// UpdateConfig changes the draw interval. If the loop is running the timer
// is replaced atomically without dropping or duplicating a tick.
func (s *DrawScheduler) UpdateConfig(cashierID string, cfg DrawConfig) {
	if cfg.Interval <= 0 {
		return
	}

	s.mu.RLock()
	sc, ok := s.schedulers[cashierID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	sc.mu.Lock()
	running := sc.active
	sc.interval = cfg.Interval
	sc.mu.Unlock()

	if running {
		select {
		case sc.intervalCh <- cfg.Interval:
		default:
			// A previous update is still pending; the latest interval wins
			select {
			case <-sc.intervalCh:
			default:
			}
			sc.intervalCh <- cfg.Interval
		}
	}
}

// Stats returns a snapshot of the cashier's scheduler, or ok=false if none
// is initialized
func (s *DrawScheduler) Stats(cashierID string) (*interfaces.SchedulerStats, bool) {
	s.mu.RLock()
	sc, ok := s.schedulers[cashierID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	score := 100.0
	if sc.totalDraws > 0 {
		score = float64(sc.successfulDraws) / float64(sc.totalDraws) * 100
	}

	return &interfaces.SchedulerStats{
		IsActive:         sc.active,
		TotalDraws:       sc.totalDraws,
		SuccessfulDraws:  sc.successfulDraws,
		FailedDraws:      sc.failedDraws,
		LastDrawTime:     sc.lastDrawTime,
		NextDrawTime:     sc.nextDrawTime,
		PerformanceScore: score,
	}, true
}

// Errors returns a copy of the bounded error history for diagnostics
func (s *DrawScheduler) Errors(cashierID string) []string {
	s.mu.RLock()
	sc, ok := s.schedulers[cashierID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	errs := make([]string, len(sc.errorLog))
	for i, e := range sc.errorLog {
		errs[i] = fmt.Sprintf("%s: %s", e.At.Format(time.RFC3339), e.Message)
	}
	return errs
}

// Cleanup stops the loop and releases the pool and scheduler state.
// Required on session end or disconnect to avoid orphaned timers.
func (s *DrawScheduler) Cleanup(cashierID string) {
	s.mu.Lock()
	sc, ok := s.schedulers[cashierID]
	if ok {
		delete(s.schedulers, cashierID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	sc.mu.Lock()
	if sc.active {
		sc.active = false
		close(sc.stopCh)
		sc.stopCh = nil
	}
	sessionID := sc.sessionID
	sc.mu.Unlock()

	s.pools.Release(sessionID)

	log.WithFields(log.Fields{
		"cashierID": cashierID,
		"sessionID": sessionID,
	}).Info("Draw scheduler cleaned up")
}

// loadSession reads the session in a short-lived read transaction
func (s *DrawScheduler) loadSession(ctx context.Context, sessionID string) (*entities.GameSession, error) {
	uow := s.uowFactory.CreateForShop(s.shopID)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	return uow.GameSessionRepository().GetByID(ctx, sessionID)
}

// poolRemaining converts a history length into the count still undrawn
func poolRemaining(sequence int) int {
	remaining := services.PoolSize - sequence
	if remaining < 0 {
		return 0
	}
	return remaining
}
