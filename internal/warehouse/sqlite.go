package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

// SQLite keeps every dataset in its own database file under dir.
type SQLite struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

var _ Warehouse = (*SQLite)(nil)

func NewSQLite(dir string) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating warehouse dir: %w", ErrTableStore, err)
	}
	return &SQLite{dir: dir, dbs: make(map[string]*sql.DB)}, nil
}

func (w *SQLite) path(dataset string) string {
	return filepath.Join(w.dir, dataset+".db")
}

func (w *SQLite) open(dataset string) (*sql.DB, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if db, ok := w.dbs[dataset]; ok {
		return db, nil
	}
	db, err := sql.Open("sqlite", w.path(dataset))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	w.dbs[dataset] = db
	return db, nil
}

func (w *SQLite) DatasetExists(ctx context.Context, dest models.Destination) (bool, error) {
	if err := checkIdent(dest.Dataset); err != nil {
		return false, tableErr("stat dataset", dest, err)
	}
	_, err := os.Stat(w.path(dest.Dataset))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, tableErr("stat dataset", dest, err)
	}
	return true, nil
}

func (w *SQLite) CreateDataset(ctx context.Context, dest models.Destination) error {
	if err := checkIdent(dest.Dataset); err != nil {
		return tableErr("create dataset", dest, err)
	}
	// An empty file is a valid database.
	f, err := os.OpenFile(w.path(dest.Dataset), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return tableErr("create dataset", dest, err)
	}
	f.Close()

	db, err := w.open(dest.Dataset)
	if err != nil {
		return tableErr("create dataset", dest, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return tableErr("create dataset", dest, err)
	}
	return nil
}

func (w *SQLite) TableExists(ctx context.Context, dest models.Destination) (bool, error) {
	if err := checkIdent(dest.Dataset, dest.Table); err != nil {
		return false, tableErr("stat table", dest, err)
	}
	db, err := w.open(dest.Dataset)
	if err != nil {
		return false, tableErr("stat table", dest, err)
	}
	var n int
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", dest.Table).Scan(&n)
	if err != nil {
		return false, tableErr("stat table", dest, err)
	}
	return n > 0, nil
}

func (w *SQLite) CreateTable(ctx context.Context, dest models.Destination, schema []models.Field) error {
	if err := checkIdent(dest.Dataset, dest.Table); err != nil {
		return tableErr("create table", dest, err)
	}
	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		if err := checkIdent(f.Name); err != nil {
			return tableErr("create table", dest, err)
		}
		typ := "TEXT"
		if f.Type == models.TypeTimestamp {
			typ = "TIMESTAMP"
		}
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, typ))
	}

	db, err := w.open(dest.Dataset)
	if err != nil {
		return tableErr("create table", dest, err)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", dest.Table, strings.Join(cols, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return tableErr("create table", dest, err)
	}
	return nil
}

func (w *SQLite) Append(ctx context.Context, dest models.Destination, rows []models.Row) error {
	if err := checkIdent(dest.Dataset, dest.Table); err != nil {
		return tableErr("append", dest, err)
	}
	db, err := w.open(dest.Dataset)
	if err != nil {
		return tableErr("append", dest, err)
	}

	names := models.ColumnNames(models.NewsSchema)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		dest.Table,
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "))

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return tableErr("append", dest, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return tableErr("append", dest, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		values := r.Values()
		values[len(values)-1] = r.PublishedAt.Format(sqliteTimeLayout)
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			return tableErr("append", dest, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return tableErr("append", dest, err)
	}
	return nil
}

func (w *SQLite) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	for name, db := range w.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(w.dbs, name)
	}
	return firstErr
}
