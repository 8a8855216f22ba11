package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"github.com/wina-futureobjects/track-futura-new-sub007/core"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type persistenceConfig struct {
	driver      string
	dsn         string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return "ingest" }

// Open connects to the configured database and verifies it answers a ping.
// PostgreSQL goes through lib/pq; SQLite through mattn/go-sqlite3.
func Open(ctx context.Context, cfg core.StoreConfig) (*persistence.Client, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, core.NewBadInputError("store.dsn is required")
	}

	var (
		driver  string
		dialect schema.Dialect
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Dialect)) {
	case "postgres":
		driver, dialect = DriverPostgres, pgdialect.New()
	case "sqlite", DriverSQLite:
		driver, dialect = DriverSQLite, sqlitedialect.New()
	default:
		return nil, core.NewBadInputError(fmt.Sprintf("store.dialect %q is not supported", cfg.Dialect))
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer keeps SQLite from returning SQLITE_BUSY under load.
		sqlDB.SetMaxOpenConns(1)
	}

	pingTimeout := cfg.PingTimeoutDuration()
	client, err := persistence.New(persistenceConfig{
		driver:      driver,
		dsn:         dsn,
		debug:       cfg.Debug,
		pingTimeout: pingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.DB().PingContext(pingCtx); err != nil {
		_ = client.Close()
		return nil, classifyError(err)
	}
	return client, nil
}
