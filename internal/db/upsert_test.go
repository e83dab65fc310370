package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "featuremart.facts",
		Columns:      []string{"entity_id", "loan_amount"},
		ConflictKeys: []string{"entity_id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:        "featuremart.facts",
		ConflictKeys: []string{"entity_id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(nil, nil, UpsertConfig{
		Table:   "featuremart.facts",
		Columns: []string{"entity_id", "loan_amount"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_featuremart_facts" \(LIKE "featuremart"."facts" INCLUDING DEFAULTS\) ON COMMIT DROP`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_featuremart_facts"}, []string{"entity_id", "kind", "loan_amount"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "featuremart"."facts" .+ ON CONFLICT \("entity_id", "kind"\) DO UPDATE SET "loan_amount" = EXCLUDED."loan_amount"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	rows := [][]any{
		{"loan-1", "accepted", 1000.0},
		{"loan-2", "rejected", nil},
	}
	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "featuremart.facts",
		Columns:      []string{"entity_id", "kind", "loan_amount"},
		ConflictKeys: []string{"entity_id", "kind"},
	}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"features", `"features"`},
		{"featuremart.facts", `"featuremart"."facts"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"entity_id", "event_timestamp", "kind"})
	assert.Equal(t, `"entity_id", "event_timestamp", "kind"`, result)
}
