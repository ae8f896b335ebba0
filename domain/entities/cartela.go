package entities

import (
	"fmt"
	"time"
)

// GridSize is the dimension of a bingo cartela and of win pattern masks
const GridSize = 5

// FreeCenterRow and FreeCenterCol locate the free space on the grid
const (
	FreeCenterRow = 2
	FreeCenterCol = 2
)

// Cartela is a fixed 5x5 grid of numbers with a free center cell.
// A cell value of 0 marks the free center; all other cells hold
// a number in [1, 75].
type Cartela struct {
	ID        string                  `db:"id"`
	ShopID    string                  `db:"shop_id"`
	Number    int                     `db:"cartela_number"`
	Grid      [GridSize][GridSize]int `db:"grid"`
	CreatedAt time.Time               `db:"created_at"`
}

// Validate checks the structural invariants of the grid
func (c *Cartela) Validate() error {
	if c.Grid[FreeCenterRow][FreeCenterCol] != 0 {
		return fmt.Errorf("cartela %s: center cell must be the free space", c.ID)
	}

	seen := make(map[int]bool, GridSize*GridSize)
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if row == FreeCenterRow && col == FreeCenterCol {
				continue
			}
			n := c.Grid[row][col]
			if n < 1 || n > 75 {
				return fmt.Errorf("cartela %s: cell (%d,%d) holds %d, want 1-75", c.ID, row, col, n)
			}
			if seen[n] {
				return fmt.Errorf("cartela %s: number %d appears more than once", c.ID, n)
			}
			seen[n] = true
		}
	}

	return nil
}

// Numbers returns every number on the grid, excluding the free center
func (c *Cartela) Numbers() []int {
	numbers := make([]int, 0, GridSize*GridSize-1)
	for row := 0; row < GridSize; row++ {
		for col := 0; col < GridSize; col++ {
			if row == FreeCenterRow && col == FreeCenterCol {
				continue
			}
			numbers = append(numbers, c.Grid[row][col])
		}
	}
	return numbers
}
