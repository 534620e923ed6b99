// Package vault wires the storage engine, query engine and aggregation
// engine into one service with background maintenance.
package vault

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quellen/usagevault/aggregate"
	"github.com/quellen/usagevault/config"
	"github.com/quellen/usagevault/errs"
	"github.com/quellen/usagevault/internal/logging"
	"github.com/quellen/usagevault/query"
	"github.com/quellen/usagevault/storage"
	"github.com/quellen/usagevault/types"
)

// Service orchestrates the engines. Writes go to the storage engine and
// invalidate the query cache; reads go through the query engine.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	store      *storage.Engine
	queries    *query.Engine
	aggregator *aggregate.Engine

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates the configuration, creates the data directories and
// builds all three engines. The service is not started.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.New(cfg.Logging)
	}

	store, err := storage.Open(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	aggregator := aggregate.New()

	queries, err := query.New(store, aggregator, cfg.Query, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Service{
		cfg:        cfg,
		log:        logging.Component(logger, "vault"),
		store:      store,
		queries:    queries,
		aggregator: aggregator,
	}, nil
}

// Start launches the background maintenance loop.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errs.Wrap(errs.ErrInvalidConfig, "service already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.maintenanceWorker(ctx)

	s.log.Info("service started",
		"strategy", s.store.Strategy().String(),
		"maintenanceInterval", s.cfg.Storage.MaintenanceInterval)
	return nil
}

// Stop halts maintenance and closes the storage engine.
func (s *Service) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	return s.store.Close()
}

// Store writes one point and invalidates cached query results.
func (s *Service) Store(ctx context.Context, point types.UsageDataPoint) types.StorageOperationResult {
	res := s.store.Store(ctx, point)
	if res.Success {
		s.queries.NotifyWrite()
	}
	return res
}

// StoreBatch writes many points and invalidates cached query results.
func (s *Service) StoreBatch(ctx context.Context, points []types.UsageDataPoint) types.StorageOperationResult {
	res := s.store.StoreBatch(ctx, points)
	if res.Success {
		s.queries.NotifyWrite()
	}
	return res
}

// Query runs a filtered query through the query engine.
func (s *Service) Query(ctx context.Context, filters []query.Filter, opts query.Options) (query.Result, error) {
	return s.queries.Query(ctx, filters, opts)
}

// AggregateQuery runs an aggregate query through the query engine.
func (s *Service) AggregateQuery(ctx context.Context, filters []query.Filter, groupBy []query.GroupBy, opts query.AggregateOptions) (query.AggregateOutcome, error) {
	return s.queries.AggregateQuery(ctx, filters, groupBy, opts)
}

// CreateQuery returns a fluent query builder.
func (s *Service) CreateQuery() *query.Builder {
	return s.queries.CreateQuery()
}

// Queries exposes the query engine for index, cache and saved-query
// management.
func (s *Service) Queries() *query.Engine {
	return s.queries
}

// Storage exposes the storage engine for maintenance operations.
func (s *Service) Storage() *storage.Engine {
	return s.store
}

// Stats returns physical storage statistics.
func (s *Service) Stats(ctx context.Context) (types.StorageStats, error) {
	return s.store.Stats(ctx)
}

// maintenanceWorker periodically compacts old buckets and applies
// retention.
func (s *Service) maintenanceWorker(ctx context.Context) {
	defer s.wg.Done()

	interval := s.cfg.Storage.MaintenanceInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runMaintenance(ctx)
		}
	}
}

func (s *Service) runMaintenance(ctx context.Context) {
	if res := s.store.Compact(ctx); !res.Success {
		s.log.Error("compaction failed", "error", res.Error)
	} else if res.RecordsAffected > 0 {
		s.log.Info("compaction done", "buckets", res.RecordsAffected)
	}

	if retention := s.cfg.Storage.Retention; retention > 0 {
		cutoff := time.Now().Add(-retention)
		if res := s.store.PurgeOldData(ctx, cutoff); !res.Success {
			s.log.Error("retention purge failed", "error", res.Error)
		} else if res.RecordsAffected > 0 {
			s.log.Info("retention purge done", "buckets", res.RecordsAffected)
			s.queries.NotifyWrite()
		}
	}
}
