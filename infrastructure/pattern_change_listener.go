package infrastructure

import (
	"encoding/json"
	"fmt"

	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// PatternChangedSubject carries pattern-set change announcements from the
// pattern administration service
const PatternChangedSubject = "bingo.patterns.changed"

// PatternChangeListener drops the matcher's cached patterns when the
// pattern administration service announces a change, so cashiers see new
// pattern sets before the cache TTL would expire them.
type PatternChangeListener struct {
	matcher       interfaces.PatternMatcher
	subjectMapper *EventSubjectMapper
	shopID        string
}

// NewPatternChangeListener creates a listener for one shop's pattern changes
func NewPatternChangeListener(matcher interfaces.PatternMatcher, subjectMapper *EventSubjectMapper, shopID string) *PatternChangeListener {
	return &PatternChangeListener{
		matcher:       matcher,
		subjectMapper: subjectMapper,
		shopID:        shopID,
	}
}

// Subscribe attaches the listener to the pattern change subject
func (l *PatternChangeListener) Subscribe(client *NATSClient) error {
	return client.Subscribe(PatternChangedSubject, l.Handle)
}

// Handle decodes one envelope from the pattern change subject. Changes for
// other shops are acknowledged and ignored; a payload that cannot be decoded
// is an error so delivery is retried.
func (l *PatternChangeListener) Handle(data []byte) error {
	var envelope EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode event envelope: %w", err)
	}

	expected := l.subjectMapper.MapSubjectToEventType(PatternChangedSubject)
	if envelope.EventType != string(expected) {
		log.WithField("eventType", envelope.EventType).Warn("Unexpected event type on pattern change subject")
		return nil
	}

	var change events.PatternChangedEvent
	if err := json.Unmarshal(envelope.Payload, &change); err != nil {
		return fmt.Errorf("failed to decode pattern change payload: %w", err)
	}

	if change.ShopID != "" && change.ShopID != l.shopID {
		return nil
	}

	l.matcher.Invalidate(l.shopID)
	log.WithField("shopID", l.shopID).Info("Pattern cache invalidated after pattern set change")
	return nil
}
