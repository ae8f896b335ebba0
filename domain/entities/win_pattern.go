package entities

import "time"

// WinPattern is a 5x5 boolean mask describing which grid cells must be
// covered (drawn or free) for a ticket to win
type WinPattern struct {
	ID        string                   `db:"id"`
	ShopID    string                   `db:"shop_id"`
	Name      string                   `db:"name"`
	Mask      [GridSize][GridSize]bool `db:"mask"`
	Active    bool                     `db:"active"`
	CreatedAt time.Time                `db:"created_at"`
	UpdatedAt time.Time                `db:"updated_at"`
}

// HasCells returns true if at least one cell of the mask is flagged.
// An all-false mask can never be satisfied.
func (p *WinPattern) HasCells() bool {
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if p.Mask[row][col] {
				return true
			}
		}
	}
	return false
}

// MatchAgainst evaluates the mask against a cartela grid and a drawn-number
// set. The center cell always counts as matched (free space). It returns the
// grid numbers covered by the satisfied cells and whether every flagged cell
// is covered.
func (p *WinPattern) MatchAgainst(grid [GridSize][GridSize]int, drawn map[int]bool) ([]int, bool) {
	if !p.HasCells() {
		return nil, false
	}

	var matched []int
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if !p.Mask[row][col] {
				continue
			}
			if row == FreeCenterRow && col == FreeCenterCol {
				continue
			}
			n := grid[row][col]
			if !drawn[n] {
				return nil, false
			}
			matched = append(matched, n)
		}
	}

	return matched, true
}
