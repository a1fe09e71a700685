// Package warehouse is the analytical table store the cleaned rows are appended to.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

var (
	ErrTableStore        = errors.New("table store operation failed")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Warehouse addresses tables by models.Destination. Append never deduplicates.
type Warehouse interface {
	DatasetExists(ctx context.Context, dest models.Destination) (bool, error)
	CreateDataset(ctx context.Context, dest models.Destination) error
	TableExists(ctx context.Context, dest models.Destination) (bool, error)
	CreateTable(ctx context.Context, dest models.Destination, schema []models.Field) error
	Append(ctx context.Context, dest models.Destination, rows []models.Row) error
	Close() error
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(names ...string) error {
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

func tableErr(op string, dest models.Destination, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrTableStore, op, dest, err)
}
