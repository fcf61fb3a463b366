// Package ingest loads raw headline records from CSV exports.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/DeafMist/headline-radar/internal/models"
	"github.com/DeafMist/headline-radar/internal/processing"
)

const (
	columnText = "headline_text"
	columnDate = "publish_date"
)

// ErrMissingTextColumn is returned when the header has no headline_text column.
var ErrMissingTextColumn = errors.New("csv header has no " + columnText + " column")

// ReadCSV parses a headline CSV with a header row. Every row becomes a new,
// unenriched document with a random id.
func ReadCSV(r io.Reader) ([]models.HeadlineDocument, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingTextColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	textIdx, dateIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case columnText:
			textIdx = i
		case columnDate:
			dateIdx = i
		}
	}
	if textIdx < 0 {
		return nil, ErrMissingTextColumn
	}

	docs := make([]models.HeadlineDocument, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		text := ""
		if textIdx < len(record) {
			text = processing.NormalizeHeadline(record[textIdx])
		}
		if text == "" {
			return nil, fmt.Errorf("line %d: empty %s", line, columnText)
		}

		doc := models.HeadlineDocument{ID: uuid.NewString(), Text: text}
		if dateIdx >= 0 && dateIdx < len(record) {
			published, err := processing.ParsePublishDate(record[dateIdx])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			doc.PublishDate = published
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
