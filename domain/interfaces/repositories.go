package interfaces

import (
	"context"
	"errors"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/events"
)

// ErrDuplicateTicketNumber is returned by TicketRepository.Create when the
// generated ticket number collides with an existing one. Callers retry with
// a fresh number.
var ErrDuplicateTicketNumber = errors.New("ticket number already exists")

// ErrDuplicateCartelaTicket is returned by TicketRepository.Create when a
// non-cancelled ticket already exists for the same (game, cartela) pair.
var ErrDuplicateCartelaTicket = errors.New("cartela already has a ticket for this game")

// GameSessionRepository defines session persistence operations.
// Lookups return (nil, nil) when no row matches.
type GameSessionRepository interface {
	// Create persists a new session
	Create(ctx context.Context, session *entities.GameSession) error

	// GetByID retrieves a session by ID
	GetByID(ctx context.Context, id string) (*entities.GameSession, error)

	// GetActiveByCashier returns the cashier's session in active or paused state
	GetActiveByCashier(ctx context.Context, cashierID string) (*entities.GameSession, error)

	// GetResumable returns every session still in active or paused state,
	// used to rebuild pools and schedulers after a restart
	GetResumable(ctx context.Context) ([]*entities.GameSession, error)

	// UpdateStatus transitions the session status
	UpdateStatus(ctx context.Context, id string, status entities.SessionStatus) error

	// AppendDrawnNumber atomically appends one number to the session's
	// drawn history and returns the new history length. It fails with no
	// effect if the number is already present.
	AppendDrawnNumber(ctx context.Context, id string, number int) (sequence int, err error)

	// GetDrawnNumbers returns the ordered drawn history for a session
	GetDrawnNumbers(ctx context.Context, id string) ([]int, error)

	// AddToStakes adjusts the session's stake aggregate (negative on refund)
	AddToStakes(ctx context.Context, id string, delta float64) error
}

// TicketRepository defines ticket persistence plus the atomic conditional
// updates that redemption arbitration relies on
type TicketRepository interface {
	// Create persists a new ticket
	Create(ctx context.Context, ticket *entities.Ticket) error

	// GetByID retrieves a ticket by ID
	GetByID(ctx context.Context, id string) (*entities.Ticket, error)

	// GetByGameAndCartela retrieves the non-cancelled ticket for a
	// (game, cartela) pair, or the most recent cancelled one if none is live
	GetByGameAndCartela(ctx context.Context, gameID, cartelaID string) (*entities.Ticket, error)

	// GetByGame returns all tickets of a game
	GetByGame(ctx context.Context, gameID string) ([]*entities.Ticket, error)

	// NextTicketNumber returns the next value of the global ticket counter
	NextTicketNumber(ctx context.Context) (int64, error)

	// UpdateVerification stores a verification outcome and status
	UpdateVerification(ctx context.Context, ticketID string, status entities.TicketStatus, result *entities.VerificationResult) error

	// LockVerification freezes a verified result against re-verification
	LockVerification(ctx context.Context, ticketID string) error

	// RedeemWinnerIfFirst atomically promotes the ticket to won_redeemed
	// with the given win amount, but only if no sibling of the same game
	// holds won_redeemed yet and the ticket itself is still redeemable.
	// Returns true if this ticket won the arbitration.
	RedeemWinnerIfFirst(ctx context.Context, gameID, ticketID string, winAmount float64) (bool, error)

	// SettleSiblings forces every non-cancelled, non-redeemed ticket of the
	// game except the winner into lost_redeemed with zero win. Returns the
	// number of tickets settled.
	SettleSiblings(ctx context.Context, gameID, winnerTicketID string) (int, error)

	// MarkRedeemedLoser moves a single ticket to lost_redeemed with zero win
	MarkRedeemedLoser(ctx context.Context, ticketID string) error

	// Cancel moves a pending ticket to cancelled with a reason
	Cancel(ctx context.Context, ticketID, reason string) error
}

// PatternRepository reads win patterns for an owning shop scope
type PatternRepository interface {
	// GetActiveByShop returns the shop's active win patterns
	GetActiveByShop(ctx context.Context, shopID string) ([]*entities.WinPattern, error)
}

// CartelaRepository is the read-only grid lookup
type CartelaRepository interface {
	// GetByID retrieves a cartela by ID, (nil, nil) when absent
	GetByID(ctx context.Context, id string) (*entities.Cartela, error)

	// GetByIDs retrieves several cartelas at once
	GetByIDs(ctx context.Context, ids []string) ([]*entities.Cartela, error)
}

// EventPublisher is the fire-and-forget notification sink.
// Delivery is best-effort; the core never depends on it.
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher buffers events during a transaction and
// releases or discards them with its outcome
type TransactionalEventPublisher interface {
	EventPublisher

	// Flush publishes all buffered events after a successful commit
	Flush(ctx context.Context) error

	// Discard drops all buffered events on rollback
	Discard()
}
