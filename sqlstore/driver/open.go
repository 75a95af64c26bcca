package driver

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"           // registers the "postgres" database/sql driver
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
)

// DB is a connected database handle, one per process, from which
// individual Connections are pinned by sqlstore/pool.Pool.
type DB struct {
	sqlDB      *sql.DB
	driverName string
}

// Open connects to uri and returns a DB. A "postgres://" URI selects the
// native Postgres driver (lib/pq); an "odbc://" URI is routed to the
// embedded SQLite driver (mattn/go-sqlite3), the corpus-grounded stand-in
// for a real ODBC binding (see DESIGN.md); a leading "/" with no scheme
// defaults to Postgres, per spec.
func Open(uri string) (*DB, error) {
	switch {
	case strings.HasPrefix(uri, "postgres://"):
		return OpenPostgres(uri)
	case strings.HasPrefix(uri, "sqlite://"):
		return OpenSQLite(strings.TrimPrefix(uri, "sqlite://"))
	case strings.HasPrefix(uri, "odbc://"):
		return OpenSQLite(strings.TrimPrefix(uri, "odbc://"))
	case strings.HasPrefix(uri, "/"):
		return OpenPostgres("postgres://" + uri)
	default:
		return nil, errors.Errorf("unrecognized connection URI scheme: %q", uri)
	}
}

// OpenPostgres opens dsn with the native lib/pq driver.
func OpenPostgres(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "opening postgres connection")
	}
	return &DB{sqlDB: sqlDB, driverName: "postgres"}, nil
}

// OpenSQLite opens path (a filesystem path, or ":memory:") with the
// embedded mattn/go-sqlite3 driver.
func OpenSQLite(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithMessage(err, "opening sqlite connection")
	}
	return &DB{sqlDB: sqlDB, driverName: "sqlite3"}, nil
}

// DriverName reports which database/sql driver backs this DB ("postgres"
// or "sqlite3").
func (d *DB) DriverName() string {
	return d.driverName
}

// Connect pins a single physical connection for exclusive use until its
// Connection.Close, or until it is returned to a Pool.
func (d *DB) Connect(ctx context.Context) (*Connection, error) {
	conn, err := d.sqlDB.Conn(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "connecting")
	}
	return newConnection(conn), nil
}

// SetMaxConnections bounds the underlying database/sql pool to at most n,
// so that sqlstore/pool.Pool's own accounting and database/sql's internal
// accounting agree on how many physical connections may exist at once.
func (d *DB) SetMaxConnections(n int) {
	d.sqlDB.SetMaxOpenConns(n)
	d.sqlDB.SetMaxIdleConns(n)
}

// Close closes the underlying database/sql.DB and all its connections.
func (d *DB) Close() error {
	return d.sqlDB.Close()
}
