package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// maxTicketNumberAttempts bounds the retries on ticket number collisions
const maxTicketNumberAttempts = 3

// Ticket ledger validation errors. Each carries the actionable reason the
// platform surfaces to the cashier.
var (
	ErrSessionNotFound     = errors.New("game session not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrCartelaNotFound     = errors.New("cartela not found")
	ErrPlacementClosed     = errors.New("tickets can no longer be placed for this game")
	ErrTicketCancelled     = errors.New("ticket has been cancelled")
	ErrSessionNotCompleted = errors.New("session is not completed yet")
	ErrAlreadyRedeemed     = errors.New("ticket has already been redeemed")
	ErrNotVerified         = errors.New("ticket has not been verified")
	ErrCancelNotAllowed    = errors.New("ticket can only be cancelled while pending and the session is waiting")
)

// IDGenerator produces ticket entity IDs
type IDGenerator func() string

// ticketLedgerImpl implements the wagering ticket state machine. Like the
// other domain services it is constructed per unit of work, so every
// multi-row operation runs inside one transaction.
type ticketLedgerImpl struct {
	sessionRepo interfaces.GameSessionRepository
	ticketRepo  interfaces.TicketRepository
	cartelaRepo interfaces.CartelaRepository
	matcher     interfaces.PatternMatcher
	publisher   interfaces.EventPublisher
	shopID      string
	newID       IDGenerator
}

// NewTicketLedger creates a ticket ledger bound to one shop scope
func NewTicketLedger(
	sessionRepo interfaces.GameSessionRepository,
	ticketRepo interfaces.TicketRepository,
	cartelaRepo interfaces.CartelaRepository,
	matcher interfaces.PatternMatcher,
	publisher interfaces.EventPublisher,
	shopID string,
	newID IDGenerator,
) interfaces.TicketLedger {
	return &ticketLedgerImpl{
		sessionRepo: sessionRepo,
		ticketRepo:  ticketRepo,
		cartelaRepo: cartelaRepo,
		matcher:     matcher,
		publisher:   publisher,
		shopID:      shopID,
		newID:       newID,
	}
}

// Place creates a pending ticket for (game, cartela). The ticket number is
// globally unique and strictly increasing; collisions under concurrent
// placement are retried with fresh numbers a bounded number of times.
func (l *ticketLedgerImpl) Place(ctx context.Context, gameID, cartelaID string, stake float64) (*entities.Ticket, error) {
	if stake <= 0 {
		return nil, errors.New("stake must be positive")
	}

	session, err := l.sessionRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.CanPlaceTickets() {
		return nil, ErrPlacementClosed
	}

	existing, err := l.ticketRepo.GetByGameAndCartela(ctx, gameID, cartelaID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing ticket: %w", err)
	}
	if existing != nil && !existing.IsCancelled() {
		return nil, interfaces.ErrDuplicateCartelaTicket
	}

	cartela, err := l.cartelaRepo.GetByID(ctx, cartelaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cartela: %w", err)
	}
	if cartela == nil {
		return nil, ErrCartelaNotFound
	}

	var ticket *entities.Ticket
	for attempt := 1; attempt <= maxTicketNumberAttempts; attempt++ {
		number, err := l.ticketRepo.NextTicketNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate ticket number: %w", err)
		}

		candidate := &entities.Ticket{
			ID:           l.newID(),
			TicketNumber: number,
			GameID:       gameID,
			CartelaID:    cartelaID,
			ShopID:       l.shopID,
			Stake:        stake,
			Status:       entities.TicketStatusPending,
			PlacedAt:     time.Now().UTC(),
		}

		err = l.ticketRepo.Create(ctx, candidate)
		if err == nil {
			ticket = candidate
			break
		}
		if errors.Is(err, interfaces.ErrDuplicateTicketNumber) {
			log.WithFields(log.Fields{
				"gameID":       gameID,
				"ticketNumber": number,
				"attempt":      attempt,
			}).Warn("Ticket number collision, retrying")
			continue
		}
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	if ticket == nil {
		return nil, fmt.Errorf("failed to allocate a unique ticket number after %d attempts", maxTicketNumberAttempts)
	}

	if err := l.sessionRepo.AddToStakes(ctx, gameID, stake); err != nil {
		return nil, fmt.Errorf("failed to add stake to session pool: %w", err)
	}

	if err := l.publisher.Publish(events.TicketPlacedEvent{
		TicketID:     ticket.ID,
		TicketNumber: ticket.FormattedNumber(),
		GameID:       gameID,
		CartelaID:    cartelaID,
		Stake:        stake,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish ticket placed event")
	}

	return ticket, nil
}

// Verify evaluates the ticket's cartela against the drawn numbers and
// settles it to won or lost. Re-verifying a non-locked ticket recomputes
// the same result with no duplicate side effects; a locked ticket returns
// its stored result without recomputation.
func (l *ticketLedgerImpl) Verify(ctx context.Context, gameID, cartelaID string, drawnNumbers []int) (*entities.VerificationResult, error) {
	ticket, err := l.ticketRepo.GetByGameAndCartela(ctx, gameID, cartelaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}
	if ticket.IsCancelled() {
		return nil, ErrTicketCancelled
	}

	if ticket.VerificationLocked {
		if ticket.Verification == nil {
			return nil, fmt.Errorf("ticket %s is locked but has no stored verification", ticket.ID)
		}
		return ticket.Verification, nil
	}

	cartela, err := l.cartelaRepo.GetByID(ctx, cartelaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cartela: %w", err)
	}
	if cartela == nil {
		return nil, ErrCartelaNotFound
	}

	result, err := l.matcher.Evaluate(ctx, l.shopID, cartela.Grid, drawnNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate cartela: %w", err)
	}

	status := entities.TicketStatusLost
	if result.IsWinner {
		status = entities.TicketStatusWon
	}

	firstVerification := !ticket.IsVerified
	if err := l.ticketRepo.UpdateVerification(ctx, ticket.ID, status, result); err != nil {
		return nil, fmt.Errorf("failed to store verification: %w", err)
	}

	// Events only fire on the first verification so re-verifying stays
	// side-effect free
	if firstVerification {
		if err := l.publisher.Publish(events.TicketVerifiedEvent{
			TicketID:  ticket.ID,
			GameID:    gameID,
			CartelaID: cartelaID,
			IsWinner:  result.IsWinner,
		}); err != nil {
			log.WithError(err).Warn("Failed to publish ticket verified event")
		}
	}

	return result, nil
}

// Lock freezes a verified result against future re-verification
func (l *ticketLedgerImpl) Lock(ctx context.Context, gameID, cartelaID string) error {
	ticket, err := l.ticketRepo.GetByGameAndCartela(ctx, gameID, cartelaID)
	if err != nil {
		return fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return ErrTicketNotFound
	}
	if !ticket.IsVerified {
		return ErrNotVerified
	}

	if err := l.ticketRepo.LockVerification(ctx, ticket.ID); err != nil {
		return fmt.Errorf("failed to lock verification: %w", err)
	}
	return nil
}

// Redeem claims the ticket's outcome after game completion. The winner
// arbitration is a single conditional update at the storage layer, so
// concurrent redemptions for different tickets of one game always resolve
// to exactly one won_redeemed. Losing that race is a normal outcome.
func (l *ticketLedgerImpl) Redeem(ctx context.Context, gameID, cartelaID string) (*interfaces.RedeemResult, error) {
	session, err := l.sessionRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.IsCompleted() {
		return nil, ErrSessionNotCompleted
	}

	ticket, err := l.ticketRepo.GetByGameAndCartela(ctx, gameID, cartelaID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return nil, ErrTicketNotFound
	}
	if ticket.IsCancelled() {
		return nil, ErrTicketCancelled
	}
	if ticket.IsRedeemed() {
		// A ticket the winner's settlement already moved to lost_redeemed
		// reports the same losing outcome when presented; only a paid-out
		// winner is refused.
		if ticket.Status == entities.TicketStatusLostRedeemed {
			return &interfaces.RedeemResult{
				Ticket:  ticket,
				Outcome: entities.TicketStatusLostRedeemed,
				Reason:  "already redeemed by another ticket",
			}, nil
		}
		return nil, ErrAlreadyRedeemed
	}

	winAmount := session.NetPrizePool()
	won, err := l.ticketRepo.RedeemWinnerIfFirst(ctx, gameID, ticket.ID, winAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to arbitrate redemption: %w", err)
	}

	result := &interfaces.RedeemResult{Ticket: ticket}
	if won {
		settled, err := l.ticketRepo.SettleSiblings(ctx, gameID, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to settle sibling tickets: %w", err)
		}
		result.Outcome = entities.TicketStatusWonRedeemed
		result.WinAmount = winAmount
		result.SettledSiblings = settled
	} else {
		if err := l.ticketRepo.MarkRedeemedLoser(ctx, ticket.ID); err != nil {
			return nil, fmt.Errorf("failed to settle losing ticket: %w", err)
		}
		result.Outcome = entities.TicketStatusLostRedeemed
		result.WinAmount = 0
		result.Reason = "already redeemed by another ticket"
	}

	if err := l.publisher.Publish(events.TicketRedeemedEvent{
		TicketID:  ticket.ID,
		GameID:    gameID,
		CartelaID: cartelaID,
		Outcome:   string(result.Outcome),
		WinAmount: result.WinAmount,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish ticket redeemed event")
	}

	return result, nil
}

// Cancel voids a pending ticket while the session is still waiting and
// refunds the stake to the session aggregate
func (l *ticketLedgerImpl) Cancel(ctx context.Context, gameID, cartelaID, reason string) error {
	session, err := l.sessionRepo.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return ErrSessionNotFound
	}

	ticket, err := l.ticketRepo.GetByGameAndCartela(ctx, gameID, cartelaID)
	if err != nil {
		return fmt.Errorf("failed to get ticket: %w", err)
	}
	if ticket == nil {
		return ErrTicketNotFound
	}
	if !ticket.CanCancel(session) {
		return ErrCancelNotAllowed
	}

	if err := l.ticketRepo.Cancel(ctx, ticket.ID, reason); err != nil {
		return fmt.Errorf("failed to cancel ticket: %w", err)
	}

	if err := l.sessionRepo.AddToStakes(ctx, gameID, -ticket.Stake); err != nil {
		return fmt.Errorf("failed to refund stake: %w", err)
	}

	if err := l.publisher.Publish(events.TicketCancelledEvent{
		TicketID: ticket.ID,
		GameID:   gameID,
		Reason:   reason,
		Refund:   ticket.Stake,
	}); err != nil {
		log.WithError(err).Warn("Failed to publish ticket cancelled event")
	}

	return nil
}
