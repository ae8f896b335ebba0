package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/entities"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
)

// PatternRepository implements win pattern data access
type PatternRepository struct {
	q Queryable
}

// NewPatternRepositoryWithTx creates a pattern repository. Patterns are
// looked up per shop scope explicitly, so the repository itself is unscoped.
func NewPatternRepositoryWithTx(tx Queryable) interfaces.PatternRepository {
	return &PatternRepository{q: tx}
}

// GetActiveByShop returns the shop's active win patterns
func (r *PatternRepository) GetActiveByShop(ctx context.Context, shopID string) ([]*entities.WinPattern, error) {
	query := `
		SELECT id, shop_id, name, mask, active, created_at, updated_at
		FROM win_patterns
		WHERE shop_id = $1 AND active
		ORDER BY name ASC
	`

	rows, err := r.q.Query(ctx, query, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get win patterns for shop %s: %w", shopID, err)
	}
	defer rows.Close()

	var patterns []*entities.WinPattern
	for rows.Next() {
		var pattern entities.WinPattern
		var mask []byte
		err := rows.Scan(
			&pattern.ID,
			&pattern.ShopID,
			&pattern.Name,
			&mask,
			&pattern.Active,
			&pattern.CreatedAt,
			&pattern.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan win pattern: %w", err)
		}
		if err := json.Unmarshal(mask, &pattern.Mask); err != nil {
			return nil, fmt.Errorf("failed to decode mask for pattern %s: %w", pattern.ID, err)
		}
		patterns = append(patterns, &pattern)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate win patterns: %w", err)
	}
	return patterns, nil
}
