package application

import (
	"context"
	"fmt"
	"sync"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
	"github.com/YeabtsegaM/server-sub001/domain/testhelpers"
)

// recordingBus is a concurrency-safe event sink for tests
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]events.EventType, len(b.events))
	for i, e := range b.events {
		types[i] = e.Type()
	}
	return types
}

func (b *recordingBus) CountOf(t events.EventType) int {
	n := 0
	for _, et := range b.Types() {
		if et == t {
			n++
		}
	}
	return n
}

// memorySessionRepository is an in-memory GameSessionRepository. The draw
// scheduler ticks from its own goroutine, so all access is serialized.
type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*entities.GameSession

	appendErr error // when set, AppendDrawnNumber fails with it
}

func newMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*entities.GameSession)}
}

func (r *memorySessionRepository) setAppendErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendErr = err
}

func (r *memorySessionRepository) Create(ctx context.Context, session *entities.GameSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *memorySessionRepository) GetByID(ctx context.Context, id string) (*entities.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	clone := *session
	clone.DrawnNumbers = append([]int(nil), session.DrawnNumbers...)
	return &clone, nil
}

func (r *memorySessionRepository) GetActiveByCashier(ctx context.Context, cashierID string) (*entities.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.CashierID == cashierID && (session.Status == entities.SessionStatusActive || session.Status == entities.SessionStatusPaused) {
			clone := *session
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memorySessionRepository) GetResumable(ctx context.Context) ([]*entities.GameSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entities.GameSession
	for _, session := range r.sessions {
		if session.Status == entities.SessionStatusActive || session.Status == entities.SessionStatusPaused {
			clone := *session
			clone.DrawnNumbers = append([]int(nil), session.DrawnNumbers...)
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *memorySessionRepository) UpdateStatus(ctx context.Context, id string, status entities.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	session.Status = status
	return nil
}

func (r *memorySessionRepository) AppendDrawnNumber(ctx context.Context, id string, number int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return 0, r.appendErr
	}
	session, ok := r.sessions[id]
	if !ok {
		return 0, fmt.Errorf("session %s not found", id)
	}
	for _, n := range session.DrawnNumbers {
		if n == number {
			return 0, fmt.Errorf("number %d already drawn for session %s", number, id)
		}
	}
	session.DrawnNumbers = append(session.DrawnNumbers, number)
	session.CurrentNumber = &number
	return len(session.DrawnNumbers), nil
}

func (r *memorySessionRepository) GetDrawnNumbers(ctx context.Context, id string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return append([]int(nil), session.DrawnNumbers...), nil
}

func (r *memorySessionRepository) AddToStakes(ctx context.Context, id string, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("session %s not found", id)
	}
	session.TotalStakes += delta
	return nil
}

// fakeUnitOfWork wires the in-memory repositories behind the UnitOfWork
// interface with no real transaction semantics. Begin and Commit failures
// are injectable, and rollbacks are counted.
type fakeUnitOfWork struct {
	sessionRepo *memorySessionRepository
	ticketRepo  *testhelpers.MockTicketRepository
	patternRepo *testhelpers.MockPatternRepository
	cartelaRepo *testhelpers.MockCartelaRepository
	bus         *recordingBus

	txMu      sync.Mutex
	beginErr  error
	commitErr error
	rollbacks int
}

func (u *fakeUnitOfWork) setBeginErr(err error) {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	u.beginErr = err
}

func (u *fakeUnitOfWork) setCommitErr(err error) {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	u.commitErr = err
}

func (u *fakeUnitOfWork) rollbackCount() int {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	return u.rollbacks
}

func (u *fakeUnitOfWork) Begin(ctx context.Context) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	return u.beginErr
}

func (u *fakeUnitOfWork) Commit() error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	return u.commitErr
}

func (u *fakeUnitOfWork) Rollback() error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	u.rollbacks++
	return nil
}

func (u *fakeUnitOfWork) GameSessionRepository() interfaces.GameSessionRepository {
	return u.sessionRepo
}
func (u *fakeUnitOfWork) TicketRepository() interfaces.TicketRepository   { return u.ticketRepo }
func (u *fakeUnitOfWork) PatternRepository() interfaces.PatternRepository { return u.patternRepo }
func (u *fakeUnitOfWork) CartelaRepository() interfaces.CartelaRepository { return u.cartelaRepo }
func (u *fakeUnitOfWork) EventBus() interfaces.EventPublisher             { return u.bus }

// fakeUnitOfWorkFactory hands out units of work sharing one repository set
type fakeUnitOfWorkFactory struct {
	uow *fakeUnitOfWork
}

func newFakeUnitOfWorkFactory() *fakeUnitOfWorkFactory {
	return &fakeUnitOfWorkFactory{
		uow: &fakeUnitOfWork{
			sessionRepo: newMemorySessionRepository(),
			ticketRepo:  new(testhelpers.MockTicketRepository),
			patternRepo: new(testhelpers.MockPatternRepository),
			cartelaRepo: new(testhelpers.MockCartelaRepository),
			bus:         &recordingBus{},
		},
	}
}

func (f *fakeUnitOfWorkFactory) CreateForShop(shopID string) UnitOfWork {
	return f.uow
}
