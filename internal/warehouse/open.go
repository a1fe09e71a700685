package warehouse

import (
	"context"
	"fmt"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
)

// Open returns the warehouse selected by cfg.WarehouseBackend.
func Open(ctx context.Context, cfg config.Config) (Warehouse, error) {
	switch cfg.WarehouseBackend {
	case config.WarehouseBigQuery:
		creds, err := cfg.CredentialsFile()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTableStore, err)
		}
		return NewBigQuery(ctx, cfg.Project, creds)
	case config.WarehousePostgres:
		return NewPostgres(ctx, cfg.PostgresAddr)
	case config.WarehouseSQLite:
		return NewSQLite(cfg.SQLiteDir)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownWarehouseBackend, cfg.WarehouseBackend)
	}
}
