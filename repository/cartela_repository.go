package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

// CartelaRepository implements read-only cartela grid lookups
type CartelaRepository struct {
	q      Queryable
	shopID string
}

// NewCartelaRepositoryScoped creates a cartela repository with shop scope
func NewCartelaRepositoryScoped(tx Queryable, shopID string) interfaces.CartelaRepository {
	return &CartelaRepository{q: tx, shopID: shopID}
}

// GetByID retrieves a cartela by ID, (nil, nil) when absent
func (r *CartelaRepository) GetByID(ctx context.Context, id string) (*entities.Cartela, error) {
	query := `
		SELECT id, shop_id, cartela_number, grid, created_at
		FROM cartelas
		WHERE id = $1 AND shop_id = $2
	`

	cartela, err := scanCartela(r.q.QueryRow(ctx, query, id, r.shopID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cartela %s: %w", id, err)
	}
	return cartela, nil
}

// GetByIDs retrieves several cartelas at once
func (r *CartelaRepository) GetByIDs(ctx context.Context, ids []string) ([]*entities.Cartela, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, shop_id, cartela_number, grid, created_at
		FROM cartelas
		WHERE id = ANY($1) AND shop_id = $2
	`

	rows, err := r.q.Query(ctx, query, ids, r.shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cartelas: %w", err)
	}
	defer rows.Close()

	var cartelas []*entities.Cartela
	for rows.Next() {
		cartela, err := scanCartela(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cartela: %w", err)
		}
		cartelas = append(cartelas, cartela)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cartelas: %w", err)
	}
	return cartelas, nil
}

func scanCartela(row pgx.Row) (*entities.Cartela, error) {
	var cartela entities.Cartela
	var grid []byte

	err := row.Scan(
		&cartela.ID,
		&cartela.ShopID,
		&cartela.Number,
		&grid,
		&cartela.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(grid, &cartela.Grid); err != nil {
		return nil, fmt.Errorf("failed to decode grid for cartela %s: %w", cartela.ID, err)
	}
	return &cartela, nil
}
