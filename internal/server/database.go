package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
	repo "github.com/joseph-ayodele/thesislens/internal/repository"
)

// ConnectJobs opens the audit database when a DSN is configured. Without one
// it returns the no-op repository and a nil DB; callers treat job history as
// disabled.
func ConnectJobs(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (repo.AnalysisJobRepository, *repo.DB, error) {
	if cfg.DSN == "" {
		logger.Info("no DB_URL configured; job history disabled")
		return repo.NopAnalysisJobRepository{}, nil, nil
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	db, err := repo.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.HealthCheck(ctx, cfg.DialTimeout); err != nil {
		db.Close(logger)
		return nil, nil, err
	}
	logger.Info("database health OK", "dialect", db.Dialect)
	return repo.NewAnalysisJobRepository(db, logger), db, nil
}
