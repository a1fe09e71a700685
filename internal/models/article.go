package models

import (
	"fmt"
	"time"
)

// Article is one record of the news API response, as fetched and as stored in snapshots.
type Article struct {
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Language    string `json:"language"`
	Country     string `json:"country"`
	PublishedAt string `json:"published_at"`
}

// Row is a cleaned article ready for the destination table.
type Row struct {
	Author      string
	Title       string
	Description string
	URL         string
	Source      string
	Image       string
	Category    string
	PublishedAt time.Time
}

// Article turns a cleaned row back into the raw snapshot shape.
func (r Row) Article() Article {
	return Article{
		Author:      r.Author,
		Title:       r.Title,
		Description: r.Description,
		URL:         r.URL,
		Source:      r.Source,
		Image:       r.Image,
		Category:    r.Category,
		PublishedAt: r.PublishedAt.Format(time.RFC3339Nano),
	}
}

// Destination addresses a table in the warehouse.
type Destination struct {
	Project string
	Dataset string
	Table   string
}

func (d Destination) String() string {
	if d.Project == "" {
		return fmt.Sprintf("%s.%s", d.Dataset, d.Table)
	}
	return fmt.Sprintf("%s.%s.%s", d.Project, d.Dataset, d.Table)
}

// Column types understood by every warehouse backend.
const (
	TypeString    = "STRING"
	TypeTimestamp = "TIMESTAMP"
)

const ModeNullable = "NULLABLE"

type Field struct {
	Name string
	Type string
	Mode string
}

// NewsSchema is the fixed layout of the destination table.
var NewsSchema = []Field{
	{Name: "author", Type: TypeString, Mode: ModeNullable},
	{Name: "title", Type: TypeString, Mode: ModeNullable},
	{Name: "description", Type: TypeString, Mode: ModeNullable},
	{Name: "url", Type: TypeString, Mode: ModeNullable},
	{Name: "source", Type: TypeString, Mode: ModeNullable},
	{Name: "image", Type: TypeString, Mode: ModeNullable},
	{Name: "category", Type: TypeString, Mode: ModeNullable},
	{Name: "published_at", Type: TypeTimestamp, Mode: ModeNullable},
}

// Values returns the row in NewsSchema column order. Empty strings become nil.
func (r Row) Values() []interface{} {
	return []interface{}{
		nullable(r.Author),
		nullable(r.Title),
		nullable(r.Description),
		nullable(r.URL),
		nullable(r.Source),
		nullable(r.Image),
		nullable(r.Category),
		r.PublishedAt,
	}
}

// ColumnNames lists the schema's column names in order.
func ColumnNames(schema []Field) []string {
	names := make([]string, len(schema))
	for i, f := range schema {
		names[i] = f.Name
	}
	return names
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
