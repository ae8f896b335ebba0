package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TicketRepository implements ticket data access, including the atomic
// conditional updates that redemption arbitration relies on
type TicketRepository struct {
	q      Queryable
	shopID string
}

// NewTicketRepositoryScoped creates a ticket repository with shop scope
func NewTicketRepositoryScoped(tx Queryable, shopID string) interfaces.TicketRepository {
	return &TicketRepository{q: tx, shopID: shopID}
}

const ticketColumns = `id, ticket_number, game_id, cartela_id, shop_id, stake, status,
	win_amount, is_verified, verification_locked, verification, cancel_reason,
	placed_at, verified_at, redeemed_at`

// nestedBeginner is satisfied by pgx.Tx, where Begin opens a savepoint, and
// by pgxpool.Pool, where it opens a standalone transaction
type nestedBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Create persists a new ticket, mapping unique violations to the sentinel
// errors callers branch on. The insert runs under a savepoint: a unique
// violation aborts only the attempt, so the surrounding transaction stays
// usable for the caller's ticket-number retry.
func (r *TicketRepository) Create(ctx context.Context, ticket *entities.Ticket) error {
	verification, err := marshalVerification(ticket.Verification)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tickets (id, ticket_number, game_id, cartela_id, shop_id,
			stake, status, win_amount, is_verified, verification_locked,
			verification, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	exec := r.q
	var sp pgx.Tx
	if b, ok := r.q.(nestedBeginner); ok {
		sp, err = b.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to open savepoint: %w", err)
		}
		exec = sp
	}

	_, err = exec.Exec(ctx, query,
		ticket.ID, ticket.TicketNumber, ticket.GameID, ticket.CartelaID, r.shopID,
		ticket.Stake, ticket.Status, ticket.WinAmount, ticket.IsVerified,
		ticket.VerificationLocked, verification, ticket.PlacedAt,
	)
	if err != nil {
		if sp != nil {
			_ = sp.Rollback(ctx)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			switch pgErr.ConstraintName {
			case "tickets_ticket_number_key":
				return interfaces.ErrDuplicateTicketNumber
			case "idx_tickets_game_cartela_live":
				return interfaces.ErrDuplicateCartelaTicket
			}
			return interfaces.ErrDuplicateTicketNumber
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	if sp != nil {
		if err := sp.Commit(ctx); err != nil {
			return fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a ticket by ID, (nil, nil) when absent
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*entities.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id = $1 AND shop_id = $2`, ticketColumns)

	ticket, err := r.scanTicket(r.q.QueryRow(ctx, query, id, r.shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket %s: %w", id, err)
	}
	return ticket, nil
}

// GetByGameAndCartela retrieves the live ticket for a (game, cartela) pair;
// cancelled tickets sort last so a live one always wins
func (r *TicketRepository) GetByGameAndCartela(ctx context.Context, gameID, cartelaID string) (*entities.Ticket, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tickets
		WHERE game_id = $1 AND cartela_id = $2 AND shop_id = $3
		ORDER BY (status = 'cancelled'), placed_at DESC
		LIMIT 1
	`, ticketColumns)

	ticket, err := r.scanTicket(r.q.QueryRow(ctx, query, gameID, cartelaID, r.shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ticket for game %s cartela %s: %w", gameID, cartelaID, err)
	}
	return ticket, nil
}

// GetByGame returns all tickets of a game ordered by ticket number
func (r *TicketRepository) GetByGame(ctx context.Context, gameID string) ([]*entities.Ticket, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tickets
		WHERE game_id = $1 AND shop_id = $2
		ORDER BY ticket_number ASC
	`, ticketColumns)

	rows, err := r.q.Query(ctx, query, gameID, r.shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets for game %s: %w", gameID, err)
	}
	defer rows.Close()

	var tickets []*entities.Ticket
	for rows.Next() {
		ticket, err := r.scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}

// NextTicketNumber returns the next value of the global ticket counter.
// Uniqueness is enforced by the ticket_number constraint; concurrent
// allocations collide there and retry with a fresh number.
func (r *TicketRepository) NextTicketNumber(ctx context.Context) (int64, error) {
	query := `SELECT COALESCE(MAX(ticket_number), 0) + 1 FROM tickets`

	var next int64
	if err := r.q.QueryRow(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to allocate ticket number: %w", err)
	}
	return next, nil
}

// UpdateVerification stores a verification outcome and status
func (r *TicketRepository) UpdateVerification(ctx context.Context, ticketID string, status entities.TicketStatus, result *entities.VerificationResult) error {
	verification, err := marshalVerification(result)
	if err != nil {
		return err
	}

	query := `
		UPDATE tickets
		SET status = $2, is_verified = TRUE, verification = $3,
		    verified_at = COALESCE(verified_at, NOW())
		WHERE id = $1 AND shop_id = $4 AND verification_locked = FALSE
	`

	tag, err := r.q.Exec(ctx, query, ticketID, status, verification, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to update verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s not found or verification locked", ticketID)
	}
	return nil
}

// LockVerification freezes a verified result against re-verification
func (r *TicketRepository) LockVerification(ctx context.Context, ticketID string) error {
	query := `
		UPDATE tickets
		SET verification_locked = TRUE,
		    verification = jsonb_set(COALESCE(verification, '{}'::jsonb), '{locked}', 'true')
		WHERE id = $1 AND shop_id = $2 AND is_verified = TRUE
	`

	tag, err := r.q.Exec(ctx, query, ticketID, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to lock verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s not found or not verified", ticketID)
	}
	return nil
}

// RedeemWinnerIfFirst atomically promotes the ticket to won_redeemed if and
// only if no sibling of the same game holds won_redeemed yet. Arbitration is
// serialized on the game session row: concurrent redemptions queue on the
// row lock, and whoever runs after the winner's commit sees it through the
// NOT EXISTS guard and loses cleanly. The partial unique index on (game_id)
// WHERE status='won_redeemed' backstops the invariant; a violation there is
// absorbed by a savepoint so the caller's transaction stays usable for the
// losing path.
func (r *TicketRepository) RedeemWinnerIfFirst(ctx context.Context, gameID, ticketID string, winAmount float64) (bool, error) {
	lockQuery := `SELECT id FROM game_sessions WHERE id = $1 AND shop_id = $2 FOR UPDATE`

	var lockedID string
	if err := r.q.QueryRow(ctx, lockQuery, gameID, r.shopID).Scan(&lockedID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("game session %s not found", gameID)
		}
		return false, fmt.Errorf("failed to lock game session for redemption: %w", err)
	}

	query := `
		UPDATE tickets
		SET status = 'won_redeemed', win_amount = $3, redeemed_at = NOW()
		WHERE id = $2 AND game_id = $1 AND shop_id = $4
		  AND status IN ('pending', 'active', 'won', 'lost')
		  AND NOT EXISTS (
		      SELECT 1 FROM tickets
		      WHERE game_id = $1 AND status = 'won_redeemed'
		  )
	`

	exec := r.q
	var sp pgx.Tx
	if b, ok := r.q.(nestedBeginner); ok {
		tx, err := b.Begin(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to open savepoint: %w", err)
		}
		sp = tx
		exec = tx
	}

	tag, err := exec.Exec(ctx, query, gameID, ticketID, winAmount, r.shopID)
	if err != nil {
		if sp != nil {
			_ = sp.Rollback(ctx)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			// Another transaction claimed the win between our check and write
			return false, nil
		}
		return false, fmt.Errorf("failed to arbitrate redemption: %w", err)
	}

	if sp != nil {
		if err := sp.Commit(ctx); err != nil {
			return false, fmt.Errorf("failed to release savepoint: %w", err)
		}
	}
	return tag.RowsAffected() == 1, nil
}

// SettleSiblings forces every non-cancelled, non-redeemed sibling into
// lost_redeemed with zero win
func (r *TicketRepository) SettleSiblings(ctx context.Context, gameID, winnerTicketID string) (int, error) {
	query := `
		UPDATE tickets
		SET status = 'lost_redeemed', win_amount = 0, redeemed_at = NOW()
		WHERE game_id = $1 AND id <> $2 AND shop_id = $3
		  AND status IN ('pending', 'active', 'won', 'lost')
	`

	tag, err := r.q.Exec(ctx, query, gameID, winnerTicketID, r.shopID)
	if err != nil {
		return 0, fmt.Errorf("failed to settle sibling tickets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkRedeemedLoser moves a single ticket to lost_redeemed with zero win.
// A ticket the winner's settlement already moved there re-settles to the
// same state, so a redemption that lost the race never errors on it.
func (r *TicketRepository) MarkRedeemedLoser(ctx context.Context, ticketID string) error {
	query := `
		UPDATE tickets
		SET status = 'lost_redeemed', win_amount = 0,
		    redeemed_at = COALESCE(redeemed_at, NOW())
		WHERE id = $1 AND shop_id = $2
		  AND status IN ('pending', 'active', 'won', 'lost', 'lost_redeemed')
	`

	tag, err := r.q.Exec(ctx, query, ticketID, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to settle losing ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s not found or already settled", ticketID)
	}
	return nil
}

// Cancel moves a pending ticket to cancelled with a reason
func (r *TicketRepository) Cancel(ctx context.Context, ticketID, reason string) error {
	query := `
		UPDATE tickets
		SET status = 'cancelled', cancel_reason = $2
		WHERE id = $1 AND shop_id = $3 AND status = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, ticketID, reason, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to cancel ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s not found or not pending", ticketID)
	}
	return nil
}

func (r *TicketRepository) scanTicket(row pgx.Row) (*entities.Ticket, error) {
	var ticket entities.Ticket
	var verification []byte

	err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.GameID,
		&ticket.CartelaID,
		&ticket.ShopID,
		&ticket.Stake,
		&ticket.Status,
		&ticket.WinAmount,
		&ticket.IsVerified,
		&ticket.VerificationLocked,
		&verification,
		&ticket.CancelReason,
		&ticket.PlacedAt,
		&ticket.VerifiedAt,
		&ticket.RedeemedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(verification) > 0 {
		var result entities.VerificationResult
		if err := json.Unmarshal(verification, &result); err != nil {
			return nil, fmt.Errorf("failed to decode verification for ticket %s: %w", ticket.ID, err)
		}
		ticket.Verification = &result
	}
	return &ticket, nil
}

func marshalVerification(result *entities.VerificationResult) ([]byte, error) {
	if result == nil {
		return nil, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode verification: %w", err)
	}
	return data, nil
}
