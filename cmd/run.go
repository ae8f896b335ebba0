package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/YeabtsegaM/server-sub001/application"
	"github.com/YeabtsegaM/server-sub001/config"
	"github.com/YeabtsegaM/server-sub001/database"
	"github.com/YeabtsegaM/server-sub001/domain/interfaces"
	"github.com/YeabtsegaM/server-sub001/domain/services"
	"github.com/YeabtsegaM/server-sub001/infrastructure"
	"github.com/YeabtsegaM/server-sub001/repository"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the game core
func Run(ctx context.Context) error {
	log.Info("Starting game core...")

	cfg := config.Get()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established")

	// NATS is a best-effort notification sink. If it is unreachable the
	// core still runs; events are simply dropped.
	var sink interfaces.EventPublisher
	subjectMapper := infrastructure.NewEventSubjectMapper()
	natsClient := infrastructure.NewNATSClient(cfg.NATSServers)
	natsConnected := false
	if err := natsClient.Connect(ctx); err != nil {
		log.WithError(err).Warn("NATS unavailable, running without event publishing")
		sink = infrastructure.NewNoopEventPublisher()
	} else {
		defer natsClient.Close()
		natsConnected = true
		sink = infrastructure.NewNATSEventPublisher(natsClient, subjectMapper)
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, func() interfaces.TransactionalEventPublisher {
		return infrastructure.NewTransactionalPublisher(sink)
	})

	patternRepo := repository.NewPatternRepositoryWithTx(db)
	matcher := services.NewPatternMatcher(patternRepo, cfg.PatternCacheTTL)

	// Pattern set changes invalidate the cache immediately; without the
	// subscription the cache falls back to TTL expiry.
	if natsConnected {
		listener := infrastructure.NewPatternChangeListener(matcher, subjectMapper, cfg.ShopID)
		if err := listener.Subscribe(natsClient); err != nil {
			log.WithError(err).Warn("Pattern change subscription unavailable, relying on cache TTL")
		}
	}

	coordinator := application.NewSessionCoordinator(uowFactory, matcher, application.CoordinatorConfig{
		ShopID:        cfg.ShopID,
		DrawInterval:  time.Duration(cfg.DrawIntervalMs) * time.Millisecond,
		MarginPercent: cfg.DefaultMarginPercent,
	})

	log.Info("Resuming interrupted sessions...")
	if err := coordinator.ResumeActiveSessions(ctx); err != nil {
		return fmt.Errorf("failed to resume active sessions: %w", err)
	}

	log.WithFields(log.Fields{
		"shopID":      cfg.ShopID,
		"environment": cfg.Environment,
	}).Info("Game core is running")
	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	coordinator.Shutdown(shutdownCtx)

	log.Info("Shutdown complete")
	return nil
}
