package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/YeabtsegaM/server-sub001/application"
	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
	"github.com/YeabtsegaM/server-sub001/domain/services"
	"github.com/YeabtsegaM/server-sub001/domain/testhelpers"
	"github.com/YeabtsegaM/server-sub001/infrastructure"
	"github.com/YeabtsegaM/server-sub001/repository/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShop = "shop-1"

func setupFactory(t *testing.T) (*testutil.TestDatabase, application.UnitOfWorkFactory) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := testutil.SetupTestDatabase(t)
	factory := NewUnitOfWorkFactory(testDB.DB, func() interfaces.TransactionalEventPublisher {
		return infrastructure.NewTransactionalPublisher(infrastructure.NewNoopEventPublisher())
	})
	return testDB, factory
}

func createSession(t *testing.T, factory application.UnitOfWorkFactory, status entities.SessionStatus) *entities.GameSession {
	t.Helper()
	ctx := context.Background()
	session := &entities.GameSession{
		ID:            uuid.New().String(),
		ShopID:        testShop,
		CashierID:     "cashier-1",
		Status:        entities.SessionStatusWaiting,
		MarginPercent: 20,
	}

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.GameSessionRepository().Create(ctx, session))
	if status != entities.SessionStatusWaiting {
		require.NoError(t, uow.GameSessionRepository().UpdateStatus(ctx, session.ID, status))
		session.Status = status
	}
	require.NoError(t, uow.Commit())
	return session
}

func createTicket(t *testing.T, factory application.UnitOfWorkFactory, gameID, cartelaID string, number int64) *entities.Ticket {
	t.Helper()
	ctx := context.Background()
	ticket := &entities.Ticket{
		ID:           uuid.New().String(),
		TicketNumber: number,
		GameID:       gameID,
		CartelaID:    cartelaID,
		ShopID:       testShop,
		Stake:        10,
		Status:       entities.TicketStatusPending,
	}

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.TicketRepository().Create(ctx, ticket))
	require.NoError(t, uow.Commit())
	return ticket
}

func TestGameSessionRepositoryRoundTrip(t *testing.T) {
	testDB, factory := setupFactory(t)
	_ = testDB
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	got, err := uow.GameSessionRepository().GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.CashierID, got.CashierID)
	assert.Equal(t, entities.SessionStatusWaiting, got.Status)
	assert.Empty(t, got.DrawnNumbers)

	// Unknown IDs are (nil, nil), not an error
	missing, err := uow.GameSessionRepository().GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGameSessionRepositoryShopScope(t *testing.T) {
	testDB, factory := setupFactory(t)
	_ = testDB
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)

	// The same row is invisible from another shop's scope
	other := factory.CreateForShop("shop-other")
	require.NoError(t, other.Begin(ctx))
	defer other.Rollback()

	got, err := other.GameSessionRepository().GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAppendDrawnNumberAtomicity(t *testing.T) {
	testDB, factory := setupFactory(t)
	_ = testDB
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusActive)

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))

	seq, err := uow.GameSessionRepository().AppendDrawnNumber(ctx, session.ID, 17)
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	seq, err = uow.GameSessionRepository().AppendDrawnNumber(ctx, session.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	// Appending a number already in the history fails with no effect
	_, err = uow.GameSessionRepository().AppendDrawnNumber(ctx, session.ID, 17)
	require.Error(t, err)

	drawn, err := uow.GameSessionRepository().GetDrawnNumbers(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{17, 42}, drawn)

	require.NoError(t, uow.Commit())
}

func TestTicketRepositoryUniqueTicketNumber(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)
	cartelaA := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())
	cartelaB := testutil.InsertCartela(t, testDB.DB, testShop, 2, testutil.SequentialGrid())

	createTicket(t, factory, session.ID, cartelaA.ID, 1)

	// Same ticket number on a different cartela maps to the sentinel
	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	err := uow.TicketRepository().Create(ctx, &entities.Ticket{
		ID:           uuid.New().String(),
		TicketNumber: 1,
		GameID:       session.ID,
		CartelaID:    cartelaB.ID,
		ShopID:       testShop,
		Stake:        10,
		Status:       entities.TicketStatusPending,
	})
	assert.ErrorIs(t, err, interfaces.ErrDuplicateTicketNumber)
	uow.Rollback()
}

// ledgerFor binds a ticket ledger to one unit of work's repositories
func ledgerFor(uow application.UnitOfWork) interfaces.TicketLedger {
	return services.NewTicketLedger(
		uow.GameSessionRepository(),
		uow.TicketRepository(),
		uow.CartelaRepository(),
		nil,
		uow.EventBus(),
		testShop,
		func() string { return uuid.New().String() },
	)
}

func TestTicketNumberCollisionRetrySurvivesTransaction(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)
	cartelaA := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())
	cartelaB := testutil.InsertCartela(t, testDB.DB, testShop, 2, testutil.SequentialGrid())

	// First placement allocates number 1 but does not commit yet
	uow1 := factory.CreateForShop(testShop)
	require.NoError(t, uow1.Begin(ctx))
	first, err := ledgerFor(uow1).Place(ctx, session.ID, cartelaA.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.TicketNumber)

	// The second placement reads the committed counter, also picks 1, and
	// its insert waits on the first transaction. Once that commits, the
	// unique violation must be retried inside the still-open transaction.
	type placement struct {
		ticket *entities.Ticket
		err    error
	}
	done := make(chan placement, 1)
	go func() {
		uow2 := factory.CreateForShop(testShop)
		if err := uow2.Begin(ctx); err != nil {
			done <- placement{err: err}
			return
		}
		ticket, err := ledgerFor(uow2).Place(ctx, session.ID, cartelaB.ID, 10)
		if err != nil {
			uow2.Rollback()
			done <- placement{err: err}
			return
		}
		done <- placement{ticket: ticket, err: uow2.Commit()}
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, uow1.Commit())

	result := <-done
	require.NoError(t, result.err)
	assert.Equal(t, int64(2), result.ticket.TicketNumber)
}

func TestTicketRepositoryOneLiveTicketPerCartela(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)
	cartela := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())

	first := createTicket(t, factory, session.ID, cartela.ID, 1)

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	err := uow.TicketRepository().Create(ctx, &entities.Ticket{
		ID:           uuid.New().String(),
		TicketNumber: 2,
		GameID:       session.ID,
		CartelaID:    cartela.ID,
		ShopID:       testShop,
		Stake:        10,
		Status:       entities.TicketStatusPending,
	})
	assert.ErrorIs(t, err, interfaces.ErrDuplicateCartelaTicket)
	uow.Rollback()

	// Cancelling the first ticket frees the slot
	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.TicketRepository().Cancel(ctx, first.ID, "cashier error"))
	require.NoError(t, uow.Commit())

	second := createTicket(t, factory, session.ID, cartela.ID, 2)

	// GetByGameAndCartela now prefers the live ticket over the cancelled one
	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	got, err := uow.TicketRepository().GetByGameAndCartela(ctx, session.ID, cartela.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.ID, got.ID)
}

func TestNextTicketNumberIncreases(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusWaiting)
	cartela := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	first, err := uow.TicketRepository().NextTicketNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
	uow.Rollback()

	createTicket(t, factory, session.ID, cartela.ID, 41)

	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	next, err := uow.TicketRepository().NextTicketNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)
}

func TestConcurrentRedemptionProducesOneWinner(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusActive)

	const contenders = 8
	tickets := make([]*entities.Ticket, contenders)
	for i := 0; i < contenders; i++ {
		cartela := testutil.InsertCartela(t, testDB.DB, testShop, i+1, testutil.SequentialGrid())
		tickets[i] = createTicket(t, factory, session.ID, cartela.ID, int64(i+1))
	}

	// Every contender redeems at once; the conditional update arbitrates
	var wg sync.WaitGroup
	wins := make([]bool, contenders)
	errs := make([]error, contenders)
	for i, ticket := range tickets {
		wg.Add(1)
		go func(i int, ticket *entities.Ticket) {
			defer wg.Done()
			uow := factory.CreateForShop(testShop)
			if err := uow.Begin(ctx); err != nil {
				errs[i] = err
				return
			}
			won, err := uow.TicketRepository().RedeemWinnerIfFirst(ctx, session.ID, ticket.ID, 80)
			if err != nil {
				errs[i] = err
				uow.Rollback()
				return
			}
			wins[i] = won
			errs[i] = uow.Commit()
		}(i, ticket)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < contenders; i++ {
		require.NoError(t, errs[i])
		if wins[i] {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one ticket must win the arbitration")

	// Storage agrees: one won_redeemed row for the game
	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	all, err := uow.TicketRepository().GetByGame(ctx, session.ID)
	require.NoError(t, err)
	redeemed := 0
	for _, ticket := range all {
		if ticket.Status == entities.TicketStatusWonRedeemed {
			redeemed++
			assert.InDelta(t, 80, ticket.WinAmount, 0.001)
			assert.NotNil(t, ticket.RedeemedAt)
		}
	}
	assert.Equal(t, 1, redeemed)
}

func TestRedemptionRaceLoserSettlesNormally(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusCompleted)
	cartelaA := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())
	cartelaB := testutil.InsertCartela(t, testDB.DB, testShop, 2, testutil.SequentialGrid())
	winner := createTicket(t, factory, session.ID, cartelaA.ID, 1)
	createTicket(t, factory, session.ID, cartelaB.ID, 2)

	// The winner redeems but holds its transaction open
	uow1 := factory.CreateForShop(testShop)
	require.NoError(t, uow1.Begin(ctx))
	won, err := ledgerFor(uow1).Redeem(ctx, session.ID, cartelaA.ID)
	require.NoError(t, err)
	require.Equal(t, entities.TicketStatusWonRedeemed, won.Outcome)

	// The second redemption queues behind the winner's session lock. After
	// the winner commits it must settle as a normal loss, not an error.
	type redemption struct {
		result *interfaces.RedeemResult
		err    error
	}
	done := make(chan redemption, 1)
	go func() {
		uow2 := factory.CreateForShop(testShop)
		if err := uow2.Begin(ctx); err != nil {
			done <- redemption{err: err}
			return
		}
		result, err := ledgerFor(uow2).Redeem(ctx, session.ID, cartelaB.ID)
		if err != nil {
			uow2.Rollback()
			done <- redemption{err: err}
			return
		}
		done <- redemption{result: result, err: uow2.Commit()}
	}()

	time.Sleep(200 * time.Millisecond)
	require.NoError(t, uow1.Commit())

	lost := <-done
	require.NoError(t, lost.err)
	assert.Equal(t, entities.TicketStatusLostRedeemed, lost.result.Outcome)
	assert.Zero(t, lost.result.WinAmount)
	assert.NotEmpty(t, lost.result.Reason)

	// Storage agrees on the split
	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	all, err := uow.TicketRepository().GetByGame(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, ticket := range all {
		if ticket.ID == winner.ID {
			assert.Equal(t, entities.TicketStatusWonRedeemed, ticket.Status)
		} else {
			assert.Equal(t, entities.TicketStatusLostRedeemed, ticket.Status)
			assert.Zero(t, ticket.WinAmount)
		}
	}
}

func TestSettleSiblings(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusActive)

	tickets := make([]*entities.Ticket, 4)
	for i := range tickets {
		cartela := testutil.InsertCartela(t, testDB.DB, testShop, i+1, testutil.SequentialGrid())
		tickets[i] = createTicket(t, factory, session.ID, cartela.ID, int64(i+1))
	}

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	won, err := uow.TicketRepository().RedeemWinnerIfFirst(ctx, session.ID, tickets[0].ID, 80)
	require.NoError(t, err)
	require.True(t, won)

	settled, err := uow.TicketRepository().SettleSiblings(ctx, session.ID, tickets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 3, settled)
	require.NoError(t, uow.Commit())

	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	for _, ticket := range tickets[1:] {
		got, err := uow.TicketRepository().GetByID(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.TicketStatusLostRedeemed, got.Status)
		assert.Zero(t, got.WinAmount)
	}
}

func TestVerificationStorageAndLock(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusActive)
	cartela := testutil.InsertCartela(t, testDB.DB, testShop, 1, testutil.SequentialGrid())
	ticket := createTicket(t, factory, session.ID, cartela.ID, 1)

	result := &entities.VerificationResult{
		IsWinner:          true,
		MatchedPatternIDs: []string{"p-1"},
		MatchedNumbers:    []int{1, 2, 3, 4},
	}

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	require.NoError(t, uow.TicketRepository().UpdateVerification(ctx, ticket.ID, entities.TicketStatusWon, result))
	require.NoError(t, uow.TicketRepository().LockVerification(ctx, ticket.ID))
	require.NoError(t, uow.Commit())

	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	got, err := uow.TicketRepository().GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TicketStatusWon, got.Status)
	assert.True(t, got.IsVerified)
	assert.True(t, got.VerificationLocked)
	require.NotNil(t, got.Verification)
	assert.True(t, got.Verification.IsWinner)
	assert.Equal(t, []int{1, 2, 3, 4}, got.Verification.MatchedNumbers)

	// A locked row rejects further verification updates
	err = uow.TicketRepository().UpdateVerification(ctx, ticket.ID, entities.TicketStatusLost, result)
	assert.Error(t, err)
	uow.Rollback()
}

func TestPatternAndCartelaRepositories(t *testing.T) {
	testDB, factory := setupFactory(t)
	ctx := context.Background()

	active := testutil.InsertWinPattern(t, testDB.DB, testShop, "top row", testutil.RowPatternMask(0), true)
	testutil.InsertWinPattern(t, testDB.DB, testShop, "retired", testutil.RowPatternMask(1), false)
	testutil.InsertWinPattern(t, testDB.DB, "shop-other", "foreign", testutil.RowPatternMask(2), true)

	cartela := testutil.InsertCartela(t, testDB.DB, testShop, 7, testutil.SequentialGrid())

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	patterns, err := uow.PatternRepository().GetActiveByShop(ctx, testShop)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, active.ID, patterns[0].ID)
	assert.Equal(t, active.Mask, patterns[0].Mask)

	got, err := uow.CartelaRepository().GetByID(ctx, cartela.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cartela.Grid, got.Grid)
	assert.Equal(t, 7, got.Number)

	several, err := uow.CartelaRepository().GetByIDs(ctx, []string{cartela.ID})
	require.NoError(t, err)
	assert.Len(t, several, 1)
}

func TestUnitOfWorkRollbackDiscardsChanges(t *testing.T) {
	testDB, factory := setupFactory(t)
	_ = testDB
	ctx := context.Background()

	session := createSession(t, factory, entities.SessionStatusActive)

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	_, err := uow.GameSessionRepository().AppendDrawnNumber(ctx, session.ID, 33)
	require.NoError(t, err)
	require.NoError(t, uow.Rollback())

	uow = factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()
	drawn, err := uow.GameSessionRepository().GetDrawnNumbers(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, drawn)
}

func TestUnitOfWorkCommitFlushesEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := testutil.SetupTestDatabase(t)
	recorder := &testhelpers.RecordingEventPublisher{}
	factory := NewUnitOfWorkFactory(testDB.DB, func() interfaces.TransactionalEventPublisher {
		return recorder
	})

	ctx := context.Background()
	session := createSession(t, factory, entities.SessionStatusActive)

	uow := factory.CreateForShop(testShop)
	require.NoError(t, uow.Begin(ctx))
	_, err := uow.GameSessionRepository().AppendDrawnNumber(ctx, session.ID, 12)
	require.NoError(t, err)
	require.NoError(t, uow.EventBus().Publish(events.NumberDrawnEvent{
		SessionID: session.ID,
		Number:    12,
		Sequence:  1,
	}))
	require.NoError(t, uow.Commit())

	require.Len(t, recorder.Events, 1)
}
