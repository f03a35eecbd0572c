package server

import (
	"context"
	"database/sql"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/config"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

const dbStatsInterval = 15 * time.Second

// SetupMetrics starts the pool stats collector for db and returns a dedicated
// metrics server when cfg.MetricsAddr is set. Both db and the result may be nil.
func SetupMetrics(ctx context.Context, cfg config.ServerConfig, db *sql.DB) *monitoring.MetricsServer {
	if db != nil {
		monitoring.NewDBMetricsCollector(db).StartCollecting(ctx, dbStatsInterval)
	}

	if cfg.MetricsAddr == "" {
		return nil
	}
	return monitoring.NewMetricsServer(cfg.MetricsAddr)
}
