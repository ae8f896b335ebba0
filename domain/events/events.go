package events

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeNumberDrawn     EventType = "number_drawn"
	EventTypeGameCompleted   EventType = "game_completed"
	EventTypePoolShuffled    EventType = "pool_shuffled"
	EventTypeTicketPlaced    EventType = "ticket_placed"
	EventTypeTicketVerified  EventType = "ticket_verified"
	EventTypeTicketRedeemed  EventType = "ticket_redeemed"
	EventTypeTicketCancelled EventType = "ticket_cancelled"
	EventTypePatternChanged  EventType = "pattern_changed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// NumberDrawnEvent is published after a draw is appended to session history
type NumberDrawnEvent struct {
	SessionID string `json:"session_id"`
	CashierID string `json:"cashier_id"`
	Number    int    `json:"number"`
	Sequence  int    `json:"sequence"`
	Remaining int    `json:"remaining"`
}

func (e NumberDrawnEvent) Type() EventType {
	return EventTypeNumberDrawn
}

// GameCompletedEvent is published when a session's pool is exhausted
// and the scheduler stops
type GameCompletedEvent struct {
	SessionID  string `json:"session_id"`
	CashierID  string `json:"cashier_id"`
	TotalDraws int    `json:"total_draws"`
}

func (e GameCompletedEvent) Type() EventType {
	return EventTypeGameCompleted
}

// PoolShuffledEvent is published on a manual operator reshuffle
type PoolShuffledEvent struct {
	SessionID string `json:"session_id"`
}

func (e PoolShuffledEvent) Type() EventType {
	return EventTypePoolShuffled
}

// TicketPlacedEvent is published when a wagering ticket is created
type TicketPlacedEvent struct {
	TicketID     string  `json:"ticket_id"`
	TicketNumber string  `json:"ticket_number"`
	GameID       string  `json:"game_id"`
	CartelaID    string  `json:"cartela_id"`
	Stake        float64 `json:"stake"`
}

func (e TicketPlacedEvent) Type() EventType {
	return EventTypeTicketPlaced
}

// TicketVerifiedEvent is published after a ticket's first verification
type TicketVerifiedEvent struct {
	TicketID  string `json:"ticket_id"`
	GameID    string `json:"game_id"`
	CartelaID string `json:"cartela_id"`
	IsWinner  bool   `json:"is_winner"`
}

func (e TicketVerifiedEvent) Type() EventType {
	return EventTypeTicketVerified
}

// TicketRedeemedEvent is published when a ticket reaches a redemption-
// terminal state
type TicketRedeemedEvent struct {
	TicketID  string  `json:"ticket_id"`
	GameID    string  `json:"game_id"`
	CartelaID string  `json:"cartela_id"`
	Outcome   string  `json:"outcome"` // won_redeemed or lost_redeemed
	WinAmount float64 `json:"win_amount"`
}

func (e TicketRedeemedEvent) Type() EventType {
	return EventTypeTicketRedeemed
}

// PatternChangedEvent announces that a shop's win pattern set changed. The
// game core consumes it from the pattern administration service to drop the
// shop's cached patterns.
type PatternChangedEvent struct {
	ShopID string `json:"shop_id"`
}

func (e PatternChangedEvent) Type() EventType {
	return EventTypePatternChanged
}

// TicketCancelledEvent is published when a pending ticket is cancelled
type TicketCancelledEvent struct {
	TicketID string  `json:"ticket_id"`
	GameID   string  `json:"game_id"`
	Reason   string  `json:"reason"`
	Refund   float64 `json:"refund"`
}

func (e TicketCancelledEvent) Type() EventType {
	return EventTypeTicketCancelled
}
