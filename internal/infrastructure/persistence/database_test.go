package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	appinv "github.com/erp/inventory/internal/application/inventory"
	"github.com/erp/inventory/internal/domain/shared"
	"github.com/erp/inventory/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return &Database{DB: gormDB, Driver: "postgres", Isolation: sql.LevelSerializable}, mock
}

// newSQLiteDatabase opens a private in-memory SQLite database with the full schema
func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()

	db, err := NewDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}, zap.NewNop(), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIsolationLevel(t *testing.T) {
	tests := []struct {
		name string
		want sql.IsolationLevel
	}{
		{"serializable", sql.LevelSerializable},
		{"repeatable_read", sql.LevelRepeatableRead},
		{"read_committed", sql.LevelReadCommitted},
		{"SERIALIZABLE", sql.LevelSerializable},
		{"", sql.LevelDefault},
		{"chaos", sql.LevelDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsolationLevel(tt.name))
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "inventory.db?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", SQLiteDSN("inventory.db"))
	assert.Equal(t, "file:x?mode=memory&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", SQLiteDSN("file:x?mode=memory"))
}

func TestNewDatabase_SQLite(t *testing.T) {
	db := newSQLiteDatabase(t)

	assert.Equal(t, "sqlite", db.Driver)
	assert.Equal(t, sql.LevelDefault, db.Isolation)
	for _, table := range []string{"products", "branches", "inventory_records", "stock_movements", "reservations"} {
		assert.True(t, db.DB.Migrator().HasTable(table), table)
	}
	require.NoError(t, db.Ping())

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("successful ping", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectPing()

		assert.NoError(t, db.Ping())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ping failure", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		assert.Error(t, db.Ping())
	})
}

func TestGormTransactionScope_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		err := db.TransactionScope().Execute(ctx, func(repos appinv.TransactionalRepositories) error {
			assert.NotNil(t, repos.RecordRepo())
			assert.NotNil(t, repos.MovementRepo())
			assert.NotNil(t, repos.ReservationRepo())
			return nil
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back and returns the callback error", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := db.TransactionScope().Execute(ctx, func(appinv.TransactionalRepositories) error {
			return shared.ErrInsufficientStock
		})

		assert.ErrorIs(t, err, shared.ErrInsufficientStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("serialization failure at commit is a clean abort", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})

		err := db.TransactionScope().Execute(ctx, func(appinv.TransactionalRepositories) error {
			return nil
		})

		require.Error(t, err)
		assert.True(t, shared.IsTransient(err))
		assert.True(t, shared.IsCleanAbort(err))
	})

	t.Run("lost connection at commit is transient but not clean", func(t *testing.T) {
		db, mock := newMockDatabase(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

		err := db.TransactionScope().Execute(ctx, func(appinv.TransactionalRepositories) error {
			return nil
		})

		assert.True(t, shared.IsTransient(err))
		assert.False(t, shared.IsCleanAbort(err))
	})
}
