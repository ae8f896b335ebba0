package entities

import "time"

// SessionStatus represents the lifecycle state of a game session
type SessionStatus string

const (
	SessionStatusWaiting   SessionStatus = "waiting"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// GameSession represents a single bingo round from creation to completion
type GameSession struct {
	ID            string        `db:"id"`
	ShopID        string        `db:"shop_id"`
	CashierID     string        `db:"cashier_id"`
	Status        SessionStatus `db:"status"`
	DrawnNumbers  []int         `db:"drawn_numbers"` // Append-only, in draw order
	CurrentNumber *int          `db:"current_number"`
	TotalStakes   float64       `db:"total_stakes"`
	MarginPercent float64       `db:"margin_percent"` // Shop cut deducted from the pot
	CreatedAt     time.Time     `db:"created_at"`
	CompletedAt   *time.Time    `db:"completed_at"`
}

// IsActive returns true if the session is currently drawing numbers
func (s *GameSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// IsCompleted returns true if the session has finished
func (s *GameSession) IsCompleted() bool {
	return s.Status == SessionStatusCompleted
}

// CanPlaceTickets returns true if tickets can still be placed or cancelled
func (s *GameSession) CanPlaceTickets() bool {
	return s.Status == SessionStatusWaiting
}

// Progress returns how many numbers have been drawn so far
func (s *GameSession) Progress() int {
	return len(s.DrawnNumbers)
}

// NetPrizePool returns the stake pool after the shop margin is deducted
func (s *GameSession) NetPrizePool() float64 {
	return s.TotalStakes * (1 - s.MarginPercent/100)
}

// CanTransitionTo reports whether a status change is a legal lifecycle move.
// waiting -> active <-> paused -> completed; completed is terminal.
func (s *GameSession) CanTransitionTo(next SessionStatus) bool {
	switch s.Status {
	case SessionStatusWaiting:
		return next == SessionStatusActive
	case SessionStatusActive:
		return next == SessionStatusPaused || next == SessionStatusCompleted
	case SessionStatusPaused:
		return next == SessionStatusActive || next == SessionStatusCompleted
	default:
		return false
	}
}
