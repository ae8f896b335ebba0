package entities

import (
	"fmt"
	"time"
)

// TicketStatus represents the lifecycle state of a wagering ticket
type TicketStatus string

const (
	TicketStatusPending      TicketStatus = "pending"
	TicketStatusActive       TicketStatus = "active"
	TicketStatusWon          TicketStatus = "won"
	TicketStatusLost         TicketStatus = "lost"
	TicketStatusWonRedeemed  TicketStatus = "won_redeemed"
	TicketStatusLostRedeemed TicketStatus = "lost_redeemed"
	TicketStatusCancelled    TicketStatus = "cancelled"
)

// TicketNumberWidth is the fixed width of printed ticket numbers
const TicketNumberWidth = 6

// Ticket links a cartela to a game session for a stake and tracks the
// wager from placement through verification to redemption
type Ticket struct {
	ID                 string              `db:"id"`
	TicketNumber       int64               `db:"ticket_number"` // Globally unique, strictly increasing
	GameID             string              `db:"game_id"`
	CartelaID          string              `db:"cartela_id"`
	ShopID             string              `db:"shop_id"`
	Stake              float64             `db:"stake"`
	Status             TicketStatus        `db:"status"`
	WinAmount          float64             `db:"win_amount"`
	IsVerified         bool                `db:"is_verified"`
	VerificationLocked bool                `db:"verification_locked"`
	Verification       *VerificationResult `db:"verification"`
	CancelReason       *string             `db:"cancel_reason"`
	PlacedAt           time.Time           `db:"placed_at"`
	VerifiedAt         *time.Time          `db:"verified_at"`
	RedeemedAt         *time.Time          `db:"redeemed_at"`
}

// IsRedeemed returns true if the ticket has reached a redemption-terminal state
func (t *Ticket) IsRedeemed() bool {
	return t.Status == TicketStatusWonRedeemed || t.Status == TicketStatusLostRedeemed
}

// IsCancelled returns true if the ticket was cancelled before the game started
func (t *Ticket) IsCancelled() bool {
	return t.Status == TicketStatusCancelled
}

// CanCancel returns true while the ticket is still pending and its
// session has not left the waiting state
func (t *Ticket) CanCancel(session *GameSession) bool {
	return t.Status == TicketStatusPending && session != nil && session.CanPlaceTickets()
}

// FormattedNumber renders the ticket number at its fixed print width
func (t *Ticket) FormattedNumber() string {
	return FormatTicketNumber(t.TicketNumber)
}

// FormatTicketNumber renders a ticket number zero-padded to the fixed width
func FormatTicketNumber(number int64) string {
	return fmt.Sprintf("%0*d", TicketNumberWidth, number)
}
