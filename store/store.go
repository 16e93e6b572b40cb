// Package store keeps the dashboard's write-only history (acquisition
// transitions, operator actions) and the outbound message outbox.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	"deliverydash/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
	driver  string
	dialect dialect
}

func Open(cfg *config.DatabaseConfig) (*DB, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	sqlDB, err := sql.Open(d.sqlDriver, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		// One writer; WAL lets the API read while the listeners append.
		sqlDB.SetMaxOpenConns(1)
	}
	db := &DB{DB: sqlDB, driver: cfg.Driver, dialect: d}
	if _, err := db.Exec(d.schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", cfg.Driver, err)
	}
	return db, nil
}

func dsn(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "postgres" {
		p := cfg.Postgres
		return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			p.Host, p.Port, p.Database, p.User, p.Password, p.SSLMode)
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.SQLite.Path)
}

func (db *DB) Driver() string { return db.driver }

// Q adapts a query written for SQLite to the open database.
func (db *DB) Q(query string) string {
	if db.dialect.now != localNow {
		query = strings.ReplaceAll(query, localNow, db.dialect.now)
	}
	if db.dialect.numbered {
		query = Rebind(query)
	}
	return query
}
