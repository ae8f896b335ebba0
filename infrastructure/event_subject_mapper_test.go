package infrastructure

import (
	"testing"

	"github.com/YeabtsegaM/server-sub001/domain/events"

	"github.com/stretchr/testify/assert"
)

func TestMapEventToSubject(t *testing.T) {
	mapper := NewEventSubjectMapper()

	assert.Equal(t, "bingo.draws.number_drawn", mapper.MapEventToSubject(events.NumberDrawnEvent{}))
	assert.Equal(t, "bingo.sessions.completed", mapper.MapEventToSubject(events.GameCompletedEvent{}))
	assert.Equal(t, "bingo.tickets.redeemed", mapper.MapEventToSubject(events.TicketRedeemedEvent{}))
	assert.Equal(t, PatternChangedSubject, mapper.MapEventToSubject(events.PatternChangedEvent{}))
}

func TestMapSubjectToEventType(t *testing.T) {
	mapper := NewEventSubjectMapper()

	assert.Equal(t, events.EventTypePatternChanged, mapper.MapSubjectToEventType(PatternChangedSubject))
	assert.Equal(t, events.EventTypeNumberDrawn, mapper.MapSubjectToEventType("bingo.draws.number_drawn"))
	assert.Empty(t, mapper.MapSubjectToEventType("bingo.unknown.subject"))
}
