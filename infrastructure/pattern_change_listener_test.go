package infrastructure

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/testhelpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func patternChangeEnvelope(t *testing.T, eventType string, shopID string) []byte {
	t.Helper()

	payload, err := json.Marshal(events.PatternChangedEvent{ShopID: shopID})
	require.NoError(t, err)

	data, err := json.Marshal(EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		SourceService: "pattern-admin",
		Payload:       payload,
	})
	require.NoError(t, err)
	return data
}

func TestPatternChangeInvalidatesMatchingShop(t *testing.T) {
	matcher := new(testhelpers.MockPatternMatcher)
	matcher.On("Invalidate", "shop-1").Once()

	listener := NewPatternChangeListener(matcher, NewEventSubjectMapper(), "shop-1")
	err := listener.Handle(patternChangeEnvelope(t, string(events.EventTypePatternChanged), "shop-1"))

	require.NoError(t, err)
	matcher.AssertExpectations(t)
}

func TestPatternChangeWithoutShopScopeInvalidates(t *testing.T) {
	matcher := new(testhelpers.MockPatternMatcher)
	matcher.On("Invalidate", "shop-1").Once()

	listener := NewPatternChangeListener(matcher, NewEventSubjectMapper(), "shop-1")
	err := listener.Handle(patternChangeEnvelope(t, string(events.EventTypePatternChanged), ""))

	require.NoError(t, err)
	matcher.AssertExpectations(t)
}

func TestPatternChangeIgnoresOtherShops(t *testing.T) {
	matcher := new(testhelpers.MockPatternMatcher)

	listener := NewPatternChangeListener(matcher, NewEventSubjectMapper(), "shop-1")
	err := listener.Handle(patternChangeEnvelope(t, string(events.EventTypePatternChanged), "shop-other"))

	require.NoError(t, err)
	matcher.AssertNotCalled(t, "Invalidate", "shop-1")
}

func TestPatternChangeIgnoresUnexpectedEventType(t *testing.T) {
	matcher := new(testhelpers.MockPatternMatcher)

	listener := NewPatternChangeListener(matcher, NewEventSubjectMapper(), "shop-1")
	err := listener.Handle(patternChangeEnvelope(t, string(events.EventTypeNumberDrawn), "shop-1"))

	require.NoError(t, err)
	matcher.AssertNotCalled(t, "Invalidate", "shop-1")
}

func TestPatternChangeRejectsMalformedEnvelope(t *testing.T) {
	matcher := new(testhelpers.MockPatternMatcher)

	listener := NewPatternChangeListener(matcher, NewEventSubjectMapper(), "shop-1")
	err := listener.Handle([]byte("not json"))

	assert.Error(t, err)
	matcher.AssertNotCalled(t, "Invalidate", "shop-1")
}
