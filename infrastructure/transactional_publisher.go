package infrastructure

import (
	"context"

	"github.com/YeabtsegaM/server-sub001/domain/events"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// TransactionalPublisher holds events until flush, then hands them to the
// real publisher. Pairing Flush with transaction commit keeps notifications
// consistent with persisted state.
type TransactionalPublisher struct {
	realPublisher interfaces.EventPublisher
	pending       []events.Event
}

// NewTransactionalPublisher creates a new transactional publisher wrapping
// the given sink
func NewTransactionalPublisher(realPublisher interfaces.EventPublisher) interfaces.TransactionalEventPublisher {
	return &TransactionalPublisher{
		realPublisher: realPublisher,
		pending:       make([]events.Event, 0),
	}
}

// Publish stores an event in the pending queue without immediately publishing
func (p *TransactionalPublisher) Publish(event events.Event) error {
	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"pendingCount": len(p.pending),
	}).Debug("Buffering event in transactional publisher")

	p.pending = append(p.pending, event)
	return nil
}

// Flush publishes all pending events. Called after a successful commit.
// Individual publish failures are logged and do not block the remaining
// events; delivery is best-effort.
func (p *TransactionalPublisher) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(p.pending),
	}).Debug("Flushing pending events")

	for _, event := range p.pending {
		if err := p.realPublisher.Publish(event); err != nil {
			log.WithFields(log.Fields{
				"eventType": event.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}

	p.pending = p.pending[:0]
	return nil
}

// Discard clears all pending events without publishing them. Called on
// transaction rollback.
func (p *TransactionalPublisher) Discard() {
	log.WithFields(log.Fields{
		"discardedEventCount": len(p.pending),
	}).Debug("Discarding pending events")

	p.pending = p.pending[:0]
}
