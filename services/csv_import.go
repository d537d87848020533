package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedback-sentiment/models"
)

const (
	ImportBatchSize   = 50
	MaxImportRows     = 10000
	MaxFeedbackLength = 5000
)

var ErrMissingTextColumn = errors.New("csv must have a 'text' column")

// RowError describes a CSV row that could not be imported
type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportRow is one parsed CSV row
type ImportRow struct {
	Line        int
	Text        string
	Author      string
	SubmittedAt time.Time
}

// ImportResult tallies an import run
type ImportResult struct {
	BatchID  string     `json:"batch_id"`
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

type batchInserter interface {
	InsertBatch(ctx context.Context, entries []*models.Feedback) (int, error)
}

// ParseFeedbackCSV reads feedback rows from r. The header must contain a text
// column; author and date columns are optional. Rows that fail validation are
// returned as RowErrors and skipped.
func ParseFeedbackCSV(r io.Reader) ([]ImportRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrMissingTextColumn
		}
		return nil, nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := map[string]int{}
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	textCol, ok := columns["text"]
	if !ok {
		return nil, nil, ErrMissingTextColumn
	}
	authorCol, hasAuthor := columns["author"]
	dateCol, hasDate := columns["date"]

	var rows []ImportRow
	var rowErrors []RowError
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrors = append(rowErrors, RowError{Line: line, Error: err.Error()})
			continue
		}
		if len(rows) >= MaxImportRows {
			rowErrors = append(rowErrors, RowError{Line: line, Error: fmt.Sprintf("import limited to %d rows", MaxImportRows)})
			break
		}

		row := ImportRow{Line: line}
		if textCol < len(record) {
			row.Text = strings.TrimSpace(record[textCol])
		}
		if row.Text == "" {
			rowErrors = append(rowErrors, RowError{Line: line, Error: "empty text"})
			continue
		}
		if FeedbackLength(row.Text) > MaxFeedbackLength {
			rowErrors = append(rowErrors, RowError{Line: line, Error: "text too long"})
			continue
		}
		if hasAuthor && authorCol < len(record) {
			row.Author = strings.TrimSpace(record[authorCol])
		}
		if hasDate && dateCol < len(record) && strings.TrimSpace(record[dateCol]) != "" {
			submitted, err := parseImportDate(strings.TrimSpace(record[dateCol]))
			if err != nil {
				rowErrors = append(rowErrors, RowError{Line: line, Error: "invalid date"})
				continue
			}
			row.SubmittedAt = submitted
		}

		rows = append(rows, row)
	}

	return rows, rowErrors, nil
}

func parseImportDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// Importer stores parsed rows in fixed-size batches
type Importer struct {
	repo       batchInserter
	batchSize  int
	batchDelay time.Duration
}

func NewImporter(repo batchInserter, batchDelay time.Duration) *Importer {
	return &Importer{repo: repo, batchSize: ImportBatchSize, batchDelay: batchDelay}
}

// Import stores rows for orgID and tallies successes and failures.
// Parse errors from ParseFeedbackCSV are counted as failures.
func (im *Importer) Import(ctx context.Context, orgID string, rows []ImportRow, parseErrors []RowError) (*ImportResult, error) {
	result := &ImportResult{
		BatchID: uuid.New().String(),
		Total:   len(rows) + len(parseErrors),
		Failed:  len(parseErrors),
		Errors:  append([]RowError(nil), parseErrors...),
	}

	for start := 0; start < len(rows); start += im.batchSize {
		end := start + im.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		entries := make([]*models.Feedback, len(chunk))
		for i, row := range chunk {
			entries[i] = &models.Feedback{
				OrganizationID: orgID,
				Source:         models.SourceCSV,
				Text:           row.Text,
				Author:         row.Author,
				ImportBatchID:  result.BatchID,
				SubmittedAt:    row.SubmittedAt,
			}
		}

		inserted, err := im.repo.InsertBatch(ctx, entries)
		if err != nil {
			slog.Error("Failed to import feedback batch", "error", err, "batchID", result.BatchID, "firstLine", chunk[0].Line)
			inserted = 0
			result.Errors = append(result.Errors, RowError{
				Line:  chunk[0].Line,
				Error: fmt.Sprintf("batch of %d rows failed", len(chunk)),
			})
		}
		result.Imported += inserted
		result.Failed += len(chunk) - inserted

		if end < len(rows) && im.batchDelay > 0 {
			select {
			case <-time.After(im.batchDelay):
			case <-ctx.Done():
				result.Failed += len(rows) - end
				return result, ctx.Err()
			}
		}
	}

	slog.Info("Feedback import finished",
		"batchID", result.BatchID,
		"organizationID", orgID,
		"imported", result.Imported,
		"failed", result.Failed,
	)

	return result, nil
}
