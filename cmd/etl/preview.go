package main

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/models"
)

const (
	sourceWidth = 14
	titleWidth  = 72
)

// previewTable renders up to n articles as an aligned source/title table.
func previewTable(articles []models.Article, n int) string {
	if len(articles) == 0 {
		return "No new articles.\n"
	}
	if n > len(articles) {
		n = len(articles)
	}

	var b strings.Builder
	writeRow(&b, "SOURCE", "TITLE")
	writeRow(&b, strings.Repeat("-", sourceWidth), strings.Repeat("-", titleWidth))
	for _, a := range articles[:n] {
		writeRow(&b, a.Source, a.Title)
	}
	if rest := len(articles) - n; rest > 0 {
		b.WriteString(runewidth.FillRight("", sourceWidth))
		b.WriteString("  ... and ")
		b.WriteString(strconv.Itoa(rest))
		b.WriteString(" more\n")
	}
	return b.String()
}

func writeRow(b *strings.Builder, source, title string) {
	source = strings.Join(strings.Fields(source), " ")
	title = strings.Join(strings.Fields(title), " ")
	b.WriteString(runewidth.FillRight(runewidth.Truncate(source, sourceWidth, "…"), sourceWidth))
	b.WriteString("  ")
	b.WriteString(runewidth.Truncate(title, titleWidth, "…"))
	b.WriteString("\n")
}
