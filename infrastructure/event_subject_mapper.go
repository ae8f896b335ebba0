package infrastructure

import (
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/events"
)

// EventSubjectMapper handles mapping between domain events and NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its corresponding NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeNumberDrawn:
		return "bingo.draws.number_drawn"
	case events.EventTypeGameCompleted:
		return "bingo.sessions.completed"
	case events.EventTypePoolShuffled:
		return "bingo.draws.pool_shuffled"
	case events.EventTypeTicketPlaced:
		return "bingo.tickets.placed"
	case events.EventTypeTicketVerified:
		return "bingo.tickets.verified"
	case events.EventTypeTicketRedeemed:
		return "bingo.tickets.redeemed"
	case events.EventTypeTicketCancelled:
		return "bingo.tickets.cancelled"
	case events.EventTypePatternChanged:
		return PatternChangedSubject
	default:
		return fmt.Sprintf("bingo.unknown.%s", event.Type())
	}
}

// MapSubjectToEventType converts a NATS subject back to an event type
func (m *EventSubjectMapper) MapSubjectToEventType(subject string) events.EventType {
	switch subject {
	case "bingo.draws.number_drawn":
		return events.EventTypeNumberDrawn
	case "bingo.sessions.completed":
		return events.EventTypeGameCompleted
	case "bingo.draws.pool_shuffled":
		return events.EventTypePoolShuffled
	case "bingo.tickets.placed":
		return events.EventTypeTicketPlaced
	case "bingo.tickets.verified":
		return events.EventTypeTicketVerified
	case "bingo.tickets.redeemed":
		return events.EventTypeTicketRedeemed
	case "bingo.tickets.cancelled":
		return events.EventTypeTicketCancelled
	case PatternChangedSubject:
		return events.EventTypePatternChanged
	default:
		return events.EventType("")
	}
}
