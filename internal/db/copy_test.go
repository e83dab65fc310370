package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "featuremart.facts", []string{"a", "b"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"featuremart", "facts"}, []string{"a", "b"}).WillReturnResult(3)

	rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}}
	n, err := CopyFrom(context.Background(), mock, "featuremart.facts", []string{"a", "b"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"staging"}, []string{"a"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{1}}
	_, err = CopyFrom(context.Background(), mock, "staging", []string{"a"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO staging")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapTables(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "featuremart"."features_prev"`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`ALTER TABLE IF EXISTS "featuremart"."features" RENAME TO "features_prev"`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`ALTER TABLE "featuremart"."features_staging" RENAME TO "features"`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectCommit()

	err = SwapTables(context.Background(), mock, "featuremart.features", "featuremart.features_staging")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSwapTables_RenameFails(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`ALTER TABLE IF EXISTS`).WillReturnError(fmt.Errorf("locked"))
	mock.ExpectRollback()

	err = SwapTables(context.Background(), mock, "features", "features_staging")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swap")
	assert.NoError(t, mock.ExpectationsWereMet())
}
