package syncer

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"integration-hub/internal/common/errors"
	"integration-hub/internal/common/logging"
	"integration-hub/internal/integrations"
)

// sweepTimeout bounds one full scheduled sweep.
const sweepTimeout = 30 * time.Minute

// Scheduler runs periodic sync sweeps over every active integration.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	store  integrations.Store
	logger logging.Logger
}

// NewScheduler wires the sweep onto the given cron spec. An empty spec
// disables scheduling; Start and Stop become no-ops.
func NewScheduler(engine *Engine, store integrations.Store, schedule string, logger logging.Logger) (*Scheduler, error) {
	s := &Scheduler{
		engine: engine,
		store:  store,
		logger: logger,
	}
	if schedule == "" {
		return s, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return nil, errors.ConfigError("invalid sync schedule: " + err.Error())
	}
	s.cron = c
	return s, nil
}

func (s *Scheduler) Start() {
	if s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("sync scheduler started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("sync scheduler stopped")
}

// sweep syncs every active integration. Integrations already syncing are
// skipped quietly; other failures are logged and do not stop the sweep.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	active, err := s.store.ListActive(ctx)
	if err != nil {
		s.logger.Error("sync sweep failed to list integrations", err)
		return
	}

	var synced, failed int
	for _, integration := range active {
		err := s.engine.Sync(ctx, integration.TenantID, integration.ID)
		switch {
		case err == nil:
			synced++
		case errors.IsType(err, errors.ErrTypeAlreadySyncing):
			// Another caller holds the claim.
		default:
			failed++
			s.logger.Warn("scheduled sync failed",
				logging.Err(err),
				logging.Field{Key: "integration_id", Value: integration.ID},
				logging.Field{Key: "provider", Value: integration.Provider.String()},
			)
		}
	}

	s.logger.Info("sync sweep finished",
		logging.Field{Key: "total", Value: len(active)},
		logging.Field{Key: "synced", Value: synced},
		logging.Field{Key: "failed", Value: failed},
	)
}
