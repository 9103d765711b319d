package timescaledb

import (
	"context"
	"fmt"
)

// checkHealth pings the database and runs a trivial query
func (t *Storage) checkHealth(ctx context.Context) error {
	if t.TimescaleDBConn == nil {
		return fmt.Errorf("TimescaleDB connection is nil")
	}

	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database connection: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		return fmt.Errorf("database query test failed: %w", err)
	}

	t.logger.Info("TimescaleDB operational - ping: OK, query test: OK")
	return nil
}
