package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

// Postgres maps a dataset to a schema and appends with COPY.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Warehouse = (*Postgres)(nil)

func NewPostgres(ctx context.Context, addr string) (*Postgres, error) {
	pool, err := pgxpool.Connect(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to connect to database: %w", ErrTableStore, err)
	}
	return &Postgres{pool: pool}, nil
}

func (w *Postgres) DatasetExists(ctx context.Context, dest models.Destination) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)",
		dest.Dataset).Scan(&exists)
	if err != nil {
		return false, tableErr("stat dataset", dest, err)
	}
	return exists, nil
}

func (w *Postgres) CreateDataset(ctx context.Context, dest models.Destination) error {
	_, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{dest.Dataset}.Sanitize())
	if err != nil {
		return tableErr("create dataset", dest, err)
	}
	return nil
}

func (w *Postgres) TableExists(ctx context.Context, dest models.Destination) (bool, error) {
	var exists bool
	err := w.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)",
		dest.Dataset, dest.Table).Scan(&exists)
	if err != nil {
		return false, tableErr("stat table", dest, err)
	}
	return exists, nil
}

// createTableSQL renders the DDL for schema. Timestamps keep their offset.
func createTableSQL(dest models.Destination, schema []models.Field) string {
	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		typ := "TEXT"
		if f.Type == models.TypeTimestamp {
			typ = "TIMESTAMPTZ"
		}
		col := pgx.Identifier{f.Name}.Sanitize() + " " + typ
		if f.Mode != models.ModeNullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		pgx.Identifier{dest.Dataset, dest.Table}.Sanitize(),
		strings.Join(cols, ",\n    "))
}

func (w *Postgres) CreateTable(ctx context.Context, dest models.Destination, schema []models.Field) error {
	if _, err := w.pool.Exec(ctx, createTableSQL(dest, schema)); err != nil {
		return tableErr("create table", dest, err)
	}
	return nil
}

func (w *Postgres) Append(ctx context.Context, dest models.Destination, rows []models.Row) error {
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}

	n, err := w.pool.CopyFrom(ctx,
		pgx.Identifier{dest.Dataset, dest.Table},
		models.ColumnNames(models.NewsSchema),
		pgx.CopyFromRows(values),
	)
	if err != nil {
		return tableErr("append", dest, err)
	}
	if int(n) != len(rows) {
		return tableErr("append", dest, fmt.Errorf("copied %d of %d rows", n, len(rows)))
	}
	return nil
}

func (w *Postgres) Close() error {
	w.pool.Close()
	return nil
}
