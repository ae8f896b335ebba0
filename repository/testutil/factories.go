package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/YeabtsegaM/server-sub001/database"
	"github.com/YeabtsegaM/server-sub001/domain/entities"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// SequentialGrid builds a valid cartela grid with distinct numbers. The
// column convention keeps every cell inside its 1-75 band.
func SequentialGrid() [entities.GridSize][entities.GridSize]int {
	var grid [entities.GridSize][entities.GridSize]int
	for col := 0; col < entities.GridSize; col++ {
		for row := 0; row < entities.GridSize; row++ {
			grid[row][col] = col*15 + row + 1
		}
	}
	grid[entities.FreeCenterRow][entities.FreeCenterCol] = 0
	return grid
}

// InsertCartela writes a cartela row directly; cartelas have no write
// repository in production code.
func InsertCartela(t *testing.T, db *database.DB, shopID string, number int, grid [entities.GridSize][entities.GridSize]int) *entities.Cartela {
	t.Helper()

	cartela := &entities.Cartela{
		ID:     uuid.New().String(),
		ShopID: shopID,
		Number: number,
		Grid:   grid,
	}

	gridJSON, err := json.Marshal(grid)
	require.NoError(t, err)

	_, err = db.Exec(context.Background(),
		`INSERT INTO cartelas (id, shop_id, cartela_number, grid) VALUES ($1, $2, $3, $4)`,
		cartela.ID, cartela.ShopID, cartela.Number, gridJSON)
	require.NoError(t, err)

	return cartela
}

// InsertWinPattern writes a win pattern row directly
func InsertWinPattern(t *testing.T, db *database.DB, shopID, name string, mask [entities.GridSize][entities.GridSize]bool, active bool) *entities.WinPattern {
	t.Helper()

	pattern := &entities.WinPattern{
		ID:     uuid.New().String(),
		ShopID: shopID,
		Name:   name,
		Mask:   mask,
		Active: active,
	}

	maskJSON, err := json.Marshal(mask)
	require.NoError(t, err)

	_, err = db.Exec(context.Background(),
		`INSERT INTO win_patterns (id, shop_id, name, mask, active) VALUES ($1, $2, $3, $4, $5)`,
		pattern.ID, pattern.ShopID, pattern.Name, maskJSON, pattern.Active)
	require.NoError(t, err)

	return pattern
}

// RowPatternMask flags one full row of the grid
func RowPatternMask(row int) [entities.GridSize][entities.GridSize]bool {
	var mask [entities.GridSize][entities.GridSize]bool
	for col := 0; col < entities.GridSize; col++ {
		mask[row][col] = true
	}
	return mask
}

// NewWaitingSession builds an unsaved session in the waiting state
func NewWaitingSession(shopID, cashierID string) *entities.GameSession {
	return &entities.GameSession{
		ID:            uuid.New().String(),
		ShopID:        shopID,
		CashierID:     cashierID,
		Status:        entities.SessionStatusWaiting,
		DrawnNumbers:  []int{},
		MarginPercent: 20,
	}
}
