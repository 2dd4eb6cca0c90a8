// Package sqlstore implements the internal/store interfaces on top of
// database/sql, supporting both modernc.org/sqlite (standalone deployments)
// and jackc/pgx/v5's stdlib adapter (managed Postgres deployments) behind a
// single placeholder-rebinding layer, the same "one store implementation,
// two backends selected by config" shape as the teacher's standalone/managed
// mode split.
package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/sdforge/sdforge-gateway/internal/store"
)

// DB wraps a database/sql handle with the dialect needed to rebind query
// placeholders written in sqlite's `?` form to postgres's `$1` form.
type DB struct {
	*sql.DB
	driver string
}

// Open opens the relational backend named by cfg.Driver and applies the
// embedded schema (sqlite) or expects golang-migrate to have already run
// (postgres, see cmd/migrate.go).
func Open(cfg store.StoreConfig) (*DB, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "./sdforge.db"
		}
		sqlDB, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
		if _, err := sqlDB.Exec(schemaSQLite); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply sqlite schema: %w", err)
		}
		return &DB{DB: sqlDB, driver: "sqlite"}, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres driver selected but no DSN configured")
		}
		sqlDB, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &DB{DB: sqlDB, driver: "postgres"}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenStores wires all five logical stores on top of a shared DB handle, keeping
// their schemas and primary-key spaces disjoint per table.
func OpenStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Conversations: NewConversationStore(db),
		LoRA:          NewLoRAStore(db),
		Classifier:    NewClassifierStore(db),
		Queue:         NewQueueStore(db),
		Hosting:       NewHostingStore(db),
	}, nil
}

// rebind rewrites `?` placeholders into the target dialect's form. sqlite
// and the stdlib mysql-style drivers accept `?` directly; pgx requires
// `$1`, `$2`, ... in source order.
func (db *DB) rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
