package db

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/invoiceengine/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const applicationName = "invoiceengine"

// sqliteBusyTimeout lets a second writer wait out a billing run instead of
// failing with SQLITE_BUSY.
const sqliteBusyTimeout = 5 * time.Second

var ErrUnsupportedDatabase = errors.New("unsupported database type")

// Dialect opens the gorm dialector for cfg.DBType.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch dbType(cfg) {
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return postgres.Open(dsn), nil
	}
}

// DSN builds the connection string for cfg. Every dialect is pinned to UTC
// so DATE columns such as period bounds and prolongation dates read back on
// the day they were written.
func DSN(cfg config.Config) (string, error) {
	switch dbType(cfg) {
	case "postgres":
		sslmode := cfg.DBSSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC application_name=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, sslmode, applicationName,
		), nil
	case "mysql":
		mc := mysqldriver.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Params = map[string]string{
			"charset":      "utf8mb4",
			"time_zone":    "'+00:00'",
			"program_name": applicationName,
		}
		return mc.FormatDSN(), nil
	case "sqlite":
		name := cfg.DBName
		if name == "" {
			name = ":memory:"
		}
		params := url.Values{}
		params.Set("_foreign_keys", "1")
		params.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeout.Milliseconds()))
		params.Set("_loc", "UTC")
		sep := "?"
		if strings.Contains(name, "?") {
			sep = "&"
		}
		return name + sep + params.Encode(), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedDatabase, cfg.DBType)
	}
}

func dbType(cfg config.Config) string {
	t := strings.ToLower(strings.TrimSpace(cfg.DBType))
	if t == "" || t == "postgresql" {
		return "postgres"
	}
	return t
}

// SupportsRowLocks reports whether conn honours SELECT ... FOR UPDATE. sqlite
// serializes writers on the database file instead.
func SupportsRowLocks(conn *gorm.DB) bool {
	return conn != nil && conn.Dialector != nil && conn.Dialector.Name() != "sqlite"
}

// IsSQLite reports whether conn talks to sqlite.
func IsSQLite(conn *gorm.DB) bool {
	return conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "sqlite"
}

// IsPostgres reports whether conn talks to postgres, the only dialect with
// versioned SQL migrations.
func IsPostgres(conn *gorm.DB) bool {
	return conn != nil && conn.Dialector != nil && conn.Dialector.Name() == "postgres"
}
