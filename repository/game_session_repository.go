package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// GameSessionRepository implements game session data access
type GameSessionRepository struct {
	q      Queryable
	shopID string
}

// NewGameSessionRepositoryScoped creates a session repository with shop scope
func NewGameSessionRepositoryScoped(tx Queryable, shopID string) interfaces.GameSessionRepository {
	return &GameSessionRepository{q: tx, shopID: shopID}
}

const gameSessionColumns = `id, shop_id, cashier_id, status, drawn_numbers, current_number,
	total_stakes, margin_percent, created_at, completed_at`

// Create persists a new session
func (r *GameSessionRepository) Create(ctx context.Context, session *entities.GameSession) error {
	query := `
		INSERT INTO game_sessions (id, shop_id, cashier_id, status, drawn_numbers,
			total_stakes, margin_percent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.Exec(ctx, query,
		session.ID, r.shopID, session.CashierID, session.Status,
		toInt32Slice(session.DrawnNumbers), session.TotalStakes,
		session.MarginPercent, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create game session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID, (nil, nil) when absent
func (r *GameSessionRepository) GetByID(ctx context.Context, id string) (*entities.GameSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM game_sessions WHERE id = $1 AND shop_id = $2`, gameSessionColumns)

	session, err := r.scanSession(r.q.QueryRow(ctx, query, id, r.shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get game session %s: %w", id, err)
	}
	return session, nil
}

// GetActiveByCashier returns the cashier's live session, (nil, nil) when none
func (r *GameSessionRepository) GetActiveByCashier(ctx context.Context, cashierID string) (*entities.GameSession, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM game_sessions
		WHERE cashier_id = $1 AND shop_id = $2 AND status IN ('active', 'paused')
		ORDER BY created_at DESC
		LIMIT 1
	`, gameSessionColumns)

	session, err := r.scanSession(r.q.QueryRow(ctx, query, cashierID, r.shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session for cashier %s: %w", cashierID, err)
	}
	return session, nil
}

// GetResumable returns every session still in active or paused state
func (r *GameSessionRepository) GetResumable(ctx context.Context) ([]*entities.GameSession, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM game_sessions
		WHERE shop_id = $1 AND status IN ('active', 'paused')
		ORDER BY created_at ASC
	`, gameSessionColumns)

	rows, err := r.q.Query(ctx, query, r.shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resumable sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entities.GameSession
	for rows.Next() {
		session, err := r.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate game sessions: %w", err)
	}
	return sessions, nil
}

// UpdateStatus transitions the session status, stamping completion time
func (r *GameSessionRepository) UpdateStatus(ctx context.Context, id string, status entities.SessionStatus) error {
	query := `
		UPDATE game_sessions
		SET status = $2,
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END
		WHERE id = $1 AND shop_id = $3
	`

	tag, err := r.q.Exec(ctx, query, id, status, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("game session %s not found", id)
	}
	return nil
}

// AppendDrawnNumber atomically appends one number to the drawn history and
// returns the new history length. The guard clause makes a duplicate append
// a no-op failure instead of corrupting the history.
func (r *GameSessionRepository) AppendDrawnNumber(ctx context.Context, id string, number int) (int, error) {
	query := `
		UPDATE game_sessions
		SET drawn_numbers = array_append(drawn_numbers, $2),
		    current_number = $2
		WHERE id = $1 AND shop_id = $3 AND NOT (drawn_numbers @> ARRAY[$2::integer])
		RETURNING cardinality(drawn_numbers)
	`

	var sequence int
	err := r.q.QueryRow(ctx, query, id, int32(number), r.shopID).Scan(&sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("number %d already drawn for session %s", number, id)
		}
		return 0, fmt.Errorf("failed to append drawn number: %w", err)
	}

	insert := `
		INSERT INTO draw_events (session_id, number, sequence)
		VALUES ($1, $2, $3)
	`
	if _, err := r.q.Exec(ctx, insert, id, int32(number), sequence); err != nil {
		return 0, fmt.Errorf("failed to record draw event: %w", err)
	}

	return sequence, nil
}

// GetDrawnNumbers returns the ordered drawn history for a session
func (r *GameSessionRepository) GetDrawnNumbers(ctx context.Context, id string) ([]int, error) {
	query := `SELECT drawn_numbers FROM game_sessions WHERE id = $1 AND shop_id = $2`

	var raw []int32
	err := r.q.QueryRow(ctx, query, id, r.shopID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("game session %s not found", id)
		}
		return nil, fmt.Errorf("failed to get drawn numbers: %w", err)
	}
	return toIntSlice(raw), nil
}

// AddToStakes adjusts the session's stake aggregate
func (r *GameSessionRepository) AddToStakes(ctx context.Context, id string, delta float64) error {
	query := `
		UPDATE game_sessions
		SET total_stakes = total_stakes + $2
		WHERE id = $1 AND shop_id = $3
	`

	tag, err := r.q.Exec(ctx, query, id, delta, r.shopID)
	if err != nil {
		return fmt.Errorf("failed to adjust session stakes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("game session %s not found", id)
	}
	return nil
}

func (r *GameSessionRepository) scanSession(row pgx.Row) (*entities.GameSession, error) {
	var session entities.GameSession
	var drawn []int32
	var current *int32

	err := row.Scan(
		&session.ID,
		&session.ShopID,
		&session.CashierID,
		&session.Status,
		&drawn,
		&current,
		&session.TotalStakes,
		&session.MarginPercent,
		&session.CreatedAt,
		&session.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	session.DrawnNumbers = toIntSlice(drawn)
	if current != nil {
		n := int(*current)
		session.CurrentNumber = &n
	}
	return &session, nil
}

func toInt32Slice(numbers []int) []int32 {
	out := make([]int32, len(numbers))
	for i, n := range numbers {
		out[i] = int32(n)
	}
	return out
}

func toIntSlice(numbers []int32) []int {
	out := make([]int, len(numbers))
	for i, n := range numbers {
		out[i] = int(n)
	}
	return out
}
