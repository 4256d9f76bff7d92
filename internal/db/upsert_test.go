package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkUpsertEmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "units",
		Columns:      []string{"cve_ut", "nombre_ut"},
		ConflictKeys: []string{"cve_ut"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsertNoColumns(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:        "units",
		ConflictKeys: []string{"cve_ut"},
	}, [][]any{{"09010001", "Roma Norte"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsertNoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.Background(), nil, UpsertConfig{
		Table:   "units",
		Columns: []string{"cve_ut", "nombre_ut"},
	}, [][]any{{"09010001", "Roma Norte"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsertFullFlow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_units"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_units"}, []string{"cve_ut", "nombre_ut"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "units" .+ ON CONFLICT \("cve_ut"\) DO UPDATE SET "nombre_ut" = EXCLUDED\."nombre_ut"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	n, err := BulkUpsert(context.Background(), mock, UpsertConfig{
		Table:        "units",
		Columns:      []string{"cve_ut", "nombre_ut"},
		ConflictKeys: []string{"cve_ut"},
	}, [][]any{{"09010001", "Roma Norte"}, {"09010002", "Condesa"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateColumnsDefaultsToNonKeys(t *testing.T) {
	cfg := UpsertConfig{
		Columns:      []string{"cve_ut", "nombre_ut", "attrs"},
		ConflictKeys: []string{"cve_ut"},
	}
	assert.Equal(t, []string{"nombre_ut", "attrs"}, cfg.updateColumns())

	cfg.UpdateCols = []string{"attrs"}
	assert.Equal(t, []string{"attrs"}, cfg.updateColumns())
}

func TestQualifyTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"units", `"units"`},
		{"public.units", `"public"."units"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, qualifyTable(tt.input))
		})
	}
}

func TestIdentList(t *testing.T) {
	assert.Equal(t, `"cve_ut", "nombre_ut", "attrs"`, identList([]string{"cve_ut", "nombre_ut", "attrs"}))
}

func TestExcludedSet(t *testing.T) {
	assert.Equal(t, `"nombre_ut" = EXCLUDED."nombre_ut", "attrs" = EXCLUDED."attrs"`,
		excludedSet([]string{"nombre_ut", "attrs"}))
}
