package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

type BigQuery struct {
	client *bigquery.Client
}

var _ Warehouse = (*BigQuery)(nil)

func NewBigQuery(ctx context.Context, project, credsFile string) (*BigQuery, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: bigquery client: %w", ErrTableStore, err)
	}
	return &BigQuery{client: client}, nil
}

func (w *BigQuery) dataset(dest models.Destination) *bigquery.Dataset {
	if dest.Project == "" {
		return w.client.Dataset(dest.Dataset)
	}
	return w.client.DatasetInProject(dest.Project, dest.Dataset)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

func (w *BigQuery) DatasetExists(ctx context.Context, dest models.Destination) (bool, error) {
	_, err := w.dataset(dest).Metadata(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, tableErr("stat dataset", dest, err)
	}
	return true, nil
}

func (w *BigQuery) CreateDataset(ctx context.Context, dest models.Destination) error {
	if err := w.dataset(dest).Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		return tableErr("create dataset", dest, err)
	}
	return nil
}

func (w *BigQuery) TableExists(ctx context.Context, dest models.Destination) (bool, error) {
	_, err := w.dataset(dest).Table(dest.Table).Metadata(ctx)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, tableErr("stat table", dest, err)
	}
	return true, nil
}

func bigquerySchema(schema []models.Field) bigquery.Schema {
	out := make(bigquery.Schema, 0, len(schema))
	for _, f := range schema {
		typ := bigquery.StringFieldType
		if f.Type == models.TypeTimestamp {
			typ = bigquery.TimestampFieldType
		}
		out = append(out, &bigquery.FieldSchema{
			Name:     f.Name,
			Type:     typ,
			Required: f.Mode != models.ModeNullable,
		})
	}
	return out
}

func (w *BigQuery) CreateTable(ctx context.Context, dest models.Destination, schema []models.Field) error {
	md := &bigquery.TableMetadata{Schema: bigquerySchema(schema)}
	if err := w.dataset(dest).Table(dest.Table).Create(ctx, md); err != nil {
		return tableErr("create table", dest, err)
	}
	return nil
}

// bqTimeLayout is the timestamp form BigQuery reads from JSON, offset included.
const bqTimeLayout = "2006-01-02 15:04:05.999999-07:00"

type bqRecord struct {
	Author      *string `json:"author"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	URL         *string `json:"url"`
	Source      *string `json:"source"`
	Image       *string `json:"image"`
	Category    *string `json:"category"`
	PublishedAt string  `json:"published_at"`
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeNDJSON renders rows as newline-delimited JSON for a load job.
// Empty strings are written as null.
func encodeNDJSON(rows []models.Row) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		rec := bqRecord{
			Author:      nullString(r.Author),
			Title:       nullString(r.Title),
			Description: nullString(r.Description),
			URL:         nullString(r.URL),
			Source:      nullString(r.Source),
			Image:       nullString(r.Image),
			Category:    nullString(r.Category),
			PublishedAt: r.PublishedAt.Format(bqTimeLayout),
		}
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Append runs a load job rather than a streaming insert, so a table created
// moments earlier is written to reliably.
func (w *BigQuery) Append(ctx context.Context, dest models.Destination, rows []models.Row) error {
	data, err := encodeNDJSON(rows)
	if err != nil {
		return tableErr("append", dest, err)
	}

	src := bigquery.NewReaderSource(bytes.NewReader(data))
	src.SourceFormat = bigquery.JSON
	src.Schema = bigquerySchema(models.NewsSchema)

	loader := w.dataset(dest).Table(dest.Table).LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateNever

	job, err := loader.Run(ctx)
	if err != nil {
		return tableErr("append", dest, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return tableErr("append", dest, err)
	}
	if err := status.Err(); err != nil {
		return tableErr("append", dest, err)
	}
	return nil
}

func (w *BigQuery) Close() error {
	return w.client.Close()
}
