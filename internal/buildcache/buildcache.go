// Package buildcache persists the generic specialization cache (spec.md
// §4.4) across separate compiler invocations, the way the teacher's
// internal/database package dispatches among four SQL drivers by scheme.
// A repeated build of the same module tree can skip re-materializing a
// generic specialization whose (name, type-args) key and resulting type
// signature were already recorded by a prior run.
package buildcache

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store is the pluggable specialization-cache backend. Get reports whether
// key (a generics.specializationKey string) was previously specialized,
// returning the canonical type-signature string recorded for it.
type Store interface {
	Get(key string) (sig string, ok bool, err error)
	Put(key, sig string) error
	Close() error
}

// sqlStore is the shared database/sql-backed implementation; only the DSN
// and driver name differ across the four dispatch targets, mirroring the
// teacher's DatabaseModule connecting to whichever driver a DBConnection.Type
// names.
type sqlStore struct {
	db     *sql.DB
	driver string
}

const createTableStmt = `CREATE TABLE IF NOT EXISTS specialization_cache (
	spec_key TEXT PRIMARY KEY,
	type_sig TEXT NOT NULL
)`

const createTableStmtMSSQL = `IF NOT EXISTS (SELECT * FROM sysobjects WHERE name='specialization_cache' AND xtype='U')
CREATE TABLE specialization_cache (
	spec_key NVARCHAR(450) PRIMARY KEY,
	type_sig NVARCHAR(MAX) NOT NULL
)`

// Open dispatches on the DSN's scheme the same way the teacher's
// internal/database picks a driver by connection type: "sqlite:" (default),
// "postgres:", "mysql:", "sqlserver:".
func Open(dsn string) (Store, error) {
	driver, source, err := driverFor(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("buildcache: open %s: %w", driver, err)
	}
	stmt := createTableStmt
	if driver == "sqlserver" {
		stmt = createTableStmtMSSQL
	}
	if _, err := db.Exec(stmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("buildcache: create table: %w", err)
	}
	return &sqlStore{db: db, driver: driver}, nil
}

func driverFor(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite:"), nil
	case strings.HasPrefix(dsn, "postgres:"), strings.HasPrefix(dsn, "postgresql:"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "mysql:"):
		return "mysql", strings.TrimPrefix(dsn, "mysql:"), nil
	case strings.HasPrefix(dsn, "sqlserver:"):
		return "sqlserver", dsn, nil
	case dsn == "":
		return "sqlite", "file::memory:?cache=shared", nil
	default:
		return "", "", fmt.Errorf("buildcache: unrecognized DSN scheme in %q", dsn)
	}
}

func (s *sqlStore) Get(key string) (string, bool, error) {
	query := `SELECT type_sig FROM specialization_cache WHERE spec_key = ` + s.placeholder(1)
	var sig string
	err := s.db.QueryRow(query, key).Scan(&sig)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("buildcache: get %q: %w", key, err)
	}
	return sig, true, nil
}

// Put upserts (key, sig). The three SQL dialects in play disagree on upsert
// syntax (SQLite/Postgres: ON CONFLICT, MySQL: ON DUPLICATE KEY UPDATE, SQL
// Server: no single-statement upsert), so each branch speaks its own dialect
// rather than relying on one lowest-common-denominator statement.
func (s *sqlStore) Put(key, sig string) error {
	var err error
	switch s.driver {
	case "mysql":
		_, err = s.db.Exec(`INSERT INTO specialization_cache (spec_key, type_sig) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE type_sig = VALUES(type_sig)`, key, sig)
	case "sqlserver":
		_, err = s.db.Exec(`MERGE specialization_cache AS target
			USING (SELECT @p1 AS spec_key, @p2 AS type_sig) AS src
			ON target.spec_key = src.spec_key
			WHEN MATCHED THEN UPDATE SET type_sig = src.type_sig
			WHEN NOT MATCHED THEN INSERT (spec_key, type_sig) VALUES (src.spec_key, src.type_sig);`, key, sig)
	case "postgres":
		_, err = s.db.Exec(`INSERT INTO specialization_cache (spec_key, type_sig) VALUES ($1, $2)
			ON CONFLICT (spec_key) DO UPDATE SET type_sig = excluded.type_sig`, key, sig)
	default: // sqlite
		_, err = s.db.Exec(`INSERT INTO specialization_cache (spec_key, type_sig) VALUES (?, ?)
			ON CONFLICT(spec_key) DO UPDATE SET type_sig = excluded.type_sig`, key, sig)
	}
	if err != nil {
		return fmt.Errorf("buildcache: put %q: %w", key, err)
	}
	return nil
}

func (s *sqlStore) placeholder(n int) string {
	switch s.driver {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
