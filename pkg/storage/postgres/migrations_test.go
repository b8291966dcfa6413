package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectBootstrap(mock sqlmock.Sqlmock) {
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectApplied(mock sqlmock.Sqlmock, version, count int) {
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(version).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func expectApply(mock sqlmock.Sqlmock, m migration) {
	mock.ExpectBegin()
	for range m.stmts {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(m.version, m.name).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestMigrate(t *testing.T) {
	t.Run("applies all pending migrations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectBootstrap(mock)
		for _, m := range migrations {
			expectApplied(mock, m.version, 0)
			expectApply(mock, m)
		}

		require.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips already applied migrations", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectBootstrap(mock)
		for _, m := range migrations {
			expectApplied(mock, m.version, 1)
		}

		require.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back a failing migration", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		expectBootstrap(mock)
		expectApplied(mock, migrations[0].version, 0)
		mock.ExpectBegin()
		mock.ExpectExec(".*").WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()

		err = Migrate(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration 1 (create_rate_slabs) failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("bootstrap failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
			WillReturnError(errors.New("permission denied"))

		err = Migrate(context.Background(), db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create schema_migrations")
	})
}

func TestMigrationVersionsAreSequential(t *testing.T) {
	for i, m := range migrations {
		assert.Equal(t, i+1, m.version, m.name)
		assert.NotEmpty(t, m.stmts, m.name)
	}
}

func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single", "postgres://replica1/billing", []string{"postgres://replica1/billing"}},
		{
			"multiple with whitespace",
			"postgres://replica1/billing, postgres://replica2/billing",
			[]string{"postgres://replica1/billing", "postgres://replica2/billing"},
		},
		{"trailing comma", "postgres://replica1/billing,", []string{"postgres://replica1/billing"}},
		{"only separators", " , ,", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseReplicaURLs(tt.input))
		})
	}
}
