package db

import (
	"testing"

	"github.com/smallbiznis/invoiceengine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSNPinsUTC(t *testing.T) {
	cfg := config.Config{
		DBType: "postgres", DBHost: "db", DBPort: "5432", DBName: "invoices",
		DBUser: "billing", DBPassword: "secret",
	}
	dsn, err := DSN(cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "TimeZone=UTC")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, "application_name=invoiceengine")

	cfg.DBType = "mysql"
	cfg.DBPort = "3306"
	dsn, err = DSN(cfg)
	require.NoError(t, err)
	assert.Contains(t, dsn, "billing:secret@tcp(db:3306)/invoices?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestDSNSQLite(t *testing.T) {
	dsn, err := DSN(config.Config{DBType: "sqlite", DBName: "billing.db"})
	require.NoError(t, err)
	assert.Equal(t, "billing.db?_busy_timeout=5000&_foreign_keys=1&_loc=UTC", dsn)

	dsn, err = DSN(config.Config{DBType: "SQLite", DBName: "file:test.db?cache=shared"})
	require.NoError(t, err)
	assert.Equal(t, "file:test.db?cache=shared&_busy_timeout=5000&_foreign_keys=1&_loc=UTC", dsn)

	dsn, err = DSN(config.Config{DBType: "sqlite"})
	require.NoError(t, err)
	assert.Contains(t, dsn, ":memory:?")
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	require.ErrorIs(t, err, ErrUnsupportedDatabase)

	d, err := Dialect(config.Config{DBHost: "db", DBPort: "5432"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestSupportsRowLocks(t *testing.T) {
	assert.False(t, SupportsRowLocks(nil))
	assert.False(t, IsSQLite(nil))
	assert.False(t, IsPostgres(nil))
}
