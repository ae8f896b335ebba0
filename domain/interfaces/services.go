package interfaces

import (
	"context"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
)

// PoolStats is a snapshot of one session's number pool
type PoolStats struct {
	Total                 int
	Drawn                 int
	Remaining             int
	DrawCount             int
	AverageDrawIntervalMs float64
}

// NumberPoolManager owns the per-session pools of numbers drawn without
// replacement. Pools are created on Initialize and live until Release.
type NumberPoolManager interface {
	// Initialize creates the session's pool, or fully resets it if one
	// already exists
	Initialize(sessionID string)

	// Draw removes one uniformly-random number from the available set and
	// returns it. exhausted=true signals that all numbers have been drawn;
	// this is the normal end of a game, not an error.
	Draw(sessionID string) (number int, exhausted bool, err error)

	// Restore returns a drawn number to the available set. Used when a draw
	// cannot be applied (persistence failed, or the scheduler stopped while
	// the draw was in flight).
	Restore(sessionID string, number int) error

	// Shuffle is the manual operator reset back to a full pool. It must
	// never be invoked automatically after natural exhaustion.
	Shuffle(sessionID string) error

	// Stats reports the pool's current counters
	Stats(sessionID string) (*PoolStats, error)

	// Sync reconciles the pool with an authoritative drawn list, e.g.
	// after a restart or reconnect
	Sync(sessionID string, drawnNumbers []int) error

	// Release discards the session's pool
	Release(sessionID string)
}

// PatternMatcher evaluates cartela grids against drawn numbers and the
// owning shop's active win patterns, using a TTL cache over the pattern
// store
type PatternMatcher interface {
	// Evaluate matches one grid against the shop's active patterns
	Evaluate(ctx context.Context, shopID string, grid [entities.GridSize][entities.GridSize]int, drawnNumbers []int) (*entities.VerificationResult, error)

	// EvaluateBatch matches many cartelas independently against a shared
	// pattern snapshot. A malformed cartela yields a non-winning result
	// for that cartela only.
	EvaluateBatch(ctx context.Context, shopID string, cartelas []*entities.Cartela, drawnNumbers []int) (map[string]*entities.VerificationResult, error)

	// Invalidate drops the cached patterns for a shop after a pattern-set change
	Invalidate(shopID string)
}

// RedeemResult is the outcome of a redemption attempt. Losing the
// redemption race is a normal outcome carried here, not an error.
type RedeemResult struct {
	Ticket          *entities.Ticket
	Outcome         entities.TicketStatus // won_redeemed or lost_redeemed
	WinAmount       float64
	SettledSiblings int    // Siblings forced to lost_redeemed alongside a win
	Reason          string // Human-readable explanation for a losing outcome
}

// TicketLedger governs the wagering ticket state machine and the
// exactly-one-winner redemption arbitration for a game
type TicketLedger interface {
	// Place creates a pending ticket for (game, cartela) with the stake
	Place(ctx context.Context, gameID, cartelaID string, stake float64) (*entities.Ticket, error)

	// Verify evaluates the ticket's cartela against the drawn numbers and
	// settles it to won or lost. Re-verification is idempotent; a locked
	// ticket returns its stored result without recomputation.
	Verify(ctx context.Context, gameID, cartelaID string, drawnNumbers []int) (*entities.VerificationResult, error)

	// Lock freezes a verified result against future re-verification
	Lock(ctx context.Context, gameID, cartelaID string) error

	// Redeem claims the ticket's outcome after game completion. Exactly one
	// ticket per game can end won_redeemed; every other sibling is forced
	// to lost_redeemed in the same logical operation.
	Redeem(ctx context.Context, gameID, cartelaID string) (*RedeemResult, error)

	// Cancel voids a pending ticket while the session is still waiting and
	// refunds the stake to the session aggregate
	Cancel(ctx context.Context, gameID, cartelaID, reason string) error
}

// SchedulerStats is a snapshot of one cashier's draw scheduler
type SchedulerStats struct {
	IsActive         bool
	TotalDraws       int
	SuccessfulDraws  int
	FailedDraws      int
	LastDrawTime     *time.Time
	NextDrawTime     *time.Time
	PerformanceScore float64
}
