package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-sentiment/models"
)

type recordingInserter struct {
	batches [][]*models.Feedback
	failAt  int // 1-based batch number that errors, 0 = never
}

func (r *recordingInserter) InsertBatch(_ context.Context, entries []*models.Feedback) (int, error) {
	r.batches = append(r.batches, entries)
	if r.failAt == len(r.batches) {
		return 0, errors.New("write failed")
	}
	return len(entries), nil
}

func TestParseFeedbackCSV(t *testing.T) {
	input := "Text,Author,Date\n" +
		"Great service,Ana,2024-01-02\n" +
		"   ,Bob,\n" +
		"Slow delivery,,not-a-date\n" +
		"\"Quoted, with comma\",Cy,2024-02-03T10:00:00Z\n"

	rows, rowErrors, err := ParseFeedbackCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "Great service", rows[0].Text)
	assert.Equal(t, "Ana", rows[0].Author)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, 2024, rows[0].SubmittedAt.Year())
	assert.Equal(t, "Quoted, with comma", rows[1].Text)

	require.Len(t, rowErrors, 2)
	assert.Equal(t, RowError{Line: 3, Error: "empty text"}, rowErrors[0])
	assert.Equal(t, RowError{Line: 4, Error: "invalid date"}, rowErrors[1])
}

func TestParseFeedbackCSV_RequiresTextColumn(t *testing.T) {
	_, _, err := ParseFeedbackCSV(strings.NewReader("comment,author\nhello,ana\n"))
	assert.ErrorIs(t, err, ErrMissingTextColumn)

	_, _, err = ParseFeedbackCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingTextColumn)
}

func TestParseFeedbackCSV_LengthCountsCharacters(t *testing.T) {
	input := "text\n" +
		strings.Repeat("ñ", MaxFeedbackLength) + "\n" +
		strings.Repeat("ñ", MaxFeedbackLength+1) + "\n"

	rows, rowErrors, err := ParseFeedbackCSV(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, rows, 1)
	require.Len(t, rowErrors, 1)
	assert.Equal(t, RowError{Line: 3, Error: "text too long"}, rowErrors[0])
}

func TestImporter_BatchesAndTallies(t *testing.T) {
	rows := make([]ImportRow, 120)
	for i := range rows {
		rows[i] = ImportRow{Line: i + 2, Text: "row"}
	}
	inserter := &recordingInserter{}
	im := NewImporter(inserter, 0)

	result, err := im.Import(context.Background(), "org-1", rows, []RowError{{Line: 200, Error: "empty text"}})
	require.NoError(t, err)

	require.Len(t, inserter.batches, 3)
	assert.Len(t, inserter.batches[0], 50)
	assert.Len(t, inserter.batches[2], 20)
	assert.Equal(t, 121, result.Total)
	assert.Equal(t, 120, result.Imported)
	assert.Equal(t, 1, result.Failed)

	_, err = uuid.Parse(result.BatchID)
	assert.NoError(t, err)
	for _, entry := range inserter.batches[1] {
		assert.Equal(t, "org-1", entry.OrganizationID)
		assert.Equal(t, models.SourceCSV, entry.Source)
		assert.Equal(t, result.BatchID, entry.ImportBatchID)
	}
}

func TestImporter_FailedBatchCounted(t *testing.T) {
	rows := make([]ImportRow, 60)
	for i := range rows {
		rows[i] = ImportRow{Line: i + 2, Text: "row"}
	}
	inserter := &recordingInserter{failAt: 1}

	result, err := NewImporter(inserter, 0).Import(context.Background(), "org-1", rows, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Imported)
	assert.Equal(t, 50, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Line)
}

func TestImporter_StopsOnCancel(t *testing.T) {
	rows := make([]ImportRow, 100)
	for i := range rows {
		rows[i] = ImportRow{Line: i + 2, Text: "row"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewImporter(&recordingInserter{}, time.Hour).Import(ctx, "org-1", rows, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50, result.Imported)
	assert.Equal(t, 50, result.Failed)
}
