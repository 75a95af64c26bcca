package store

import (
	"context"
	"fmt"
	"io"
	"strconv"

	humanize "github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/metrics"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// createStatements are the literal DDL of spec §6, grounded on
// SQLAtomStorage::create_tables. Array-bearing columns are TEXT, carrying
// the same opaque `{...}` literal the value codec already uses elsewhere,
// so the same statements run unmodified against both the native Postgres
// driver and the SQLite stand-in.
var createStatements = []string{
	`CREATE TABLE Spaces (space BIGINT PRIMARY KEY, parent BIGINT);`,
	`CREATE TABLE Atoms (
		uuid BIGINT PRIMARY KEY,
		space BIGINT REFERENCES Spaces(space),
		type SMALLINT,
		type_tv SMALLINT,
		stv_mean DOUBLE PRECISION,
		stv_confidence DOUBLE PRECISION,
		stv_count DOUBLE PRECISION,
		height SMALLINT,
		name TEXT,
		outgoing TEXT,
		UNIQUE(type, name),
		UNIQUE(type, outgoing)
	);`,
	`CREATE TABLE Valuations (
		key BIGINT REFERENCES Atoms(uuid),
		atom BIGINT REFERENCES Atoms(uuid),
		type SMALLINT,
		floatvalue TEXT,
		stringvalue TEXT,
		linkvalue TEXT,
		UNIQUE(key, atom)
	);`,
	`CREATE INDEX valuations_atom_idx ON Valuations(atom);`,
	`CREATE TABLE Values (
		vuid BIGINT PRIMARY KEY,
		type SMALLINT,
		floatvalue TEXT,
		stringvalue TEXT,
		linkvalue TEXT
	);`,
	`CREATE TABLE TypeCodes (type SMALLINT UNIQUE, typename TEXT UNIQUE);`,
}

// CreateTables creates Spaces, Atoms, Valuations, Values and TypeCodes and
// seeds the two root spaces (0,0) and (1,1), per spec §4.9.
func (s *Store) CreateTables(ctx context.Context) error {
	return pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		for _, stmt := range createStatements {
			rs, err := conn.Exec(ctx, stmt)
			if err != nil {
				return &SchemaError{Cause: wrapSqlExec(stmt, err)}
			}
			rs.Release()
		}
		for _, space := range [][2]int64{{0, 0}, {1, 1}} {
			stmt := fmt.Sprintf("INSERT INTO Spaces (space, parent) VALUES (%d, %d);", space[0], space[1])
			rs, err := conn.Exec(ctx, stmt)
			if err != nil {
				return &SchemaError{Cause: wrapSqlExec(stmt, err)}
			}
			rs.Release()
		}
		return nil
	})
}

var dataTables = []string{"Valuations", "Values", "Atoms", "TypeCodes", "Spaces"}

// RenameTables renames every table by appending suffix, a destructive
// maintenance primitive used by tests to snapshot a schema aside before
// tearing it down.
func (s *Store) RenameTables(ctx context.Context, suffix string) error {
	return pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		for _, t := range dataTables {
			stmt := fmt.Sprintf("ALTER TABLE %s RENAME TO %s%s;", t, t, suffix)
			rs, err := conn.Exec(ctx, stmt)
			if err != nil {
				return &SchemaError{Cause: wrapSqlExec(stmt, err)}
			}
			rs.Release()
		}
		return nil
	})
}

// KillData deletes every row from every table, in foreign-key-safe order,
// then reseeds the two root spaces. It does not drop the tables themselves.
func (s *Store) KillData(ctx context.Context) error {
	return pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		for _, t := range dataTables {
			stmt := "DELETE FROM " + t + ";"
			rs, err := conn.Exec(ctx, stmt)
			if err != nil {
				return &SchemaError{Cause: wrapSqlExec(stmt, err)}
			}
			rs.Release()
		}
		for _, space := range [][2]int64{{0, 0}, {1, 1}} {
			stmt := fmt.Sprintf("INSERT INTO Spaces (space, parent) VALUES (%d, %d);", space[0], space[1])
			rs, err := conn.Exec(ctx, stmt)
			if err != nil {
				return &SchemaError{Cause: wrapSqlExec(stmt, err)}
			}
			rs.Release()
		}
		return nil
	})
}

// StoreSpaceTree walks root and upserts every node in a single transaction,
// supplementing spec.md's purely lazy single-space retry (execStoreSingle's
// "INSERT fails on unknown space, persist and retry once") with eager
// registration of an entire namespace tree ahead of the first store.
func (s *Store) StoreSpaceTree(ctx context.Context, root *atom.Space) error {
	return pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return &ConnectError{Cause: err}
		}

		var walkErr error
		root.Walk(func(sp *atom.Space) bool {
			if err := upsertSpace(ctx, tx, sp.ID, sp.Parent); err != nil {
				walkErr = err
				return false
			}
			return true
		})
		if walkErr != nil {
			tx.Rollback()
			return walkErr
		}
		return tx.Commit()
	})
}

// execer is satisfied by both *driver.Connection and *driver.Tx.
type execer interface {
	Exec(ctx context.Context, sqlText string) (*driver.RecordSet, error)
}

func upsertSpace(ctx context.Context, ex execer, id, parent int64) error {
	query := fmt.Sprintf("SELECT space FROM Spaces WHERE space = %d;", id)
	rs, err := ex.Exec(ctx, query)
	if err != nil {
		return wrapSqlExec(query, err)
	}
	var exists bool
	if err := rs.ForEachRow(func(driver.Row) bool { exists = true; return true }); err != nil {
		rs.Release()
		return err
	}
	rs.Release()
	if exists {
		return nil
	}

	stmt := fmt.Sprintf("INSERT INTO Spaces (space, parent) VALUES (%d, %d);", id, parent)
	rs2, err := ex.Exec(ctx, stmt)
	if err != nil {
		return wrapSqlExec(stmt, err)
	}
	return rs2.Release()
}

// storeSpaceTreeForID registers a single, self-parented space id, used by
// execStoreSingle's lazy retry when an INSERT fails because its space row
// does not yet exist.
func (s *Store) storeSpaceTreeForID(ctx context.Context, conn *driver.Connection, spaceID int64) error {
	return upsertSpace(ctx, conn, spaceID, spaceID)
}

// Stats is a snapshot of row counts and IDB occupancy for PrintStats.
type Stats struct {
	Spaces     int64
	Atoms      int64
	Valuations int64
	Values     int64
	TypeCodes  int64
	IDBEntries int64
}

// GatherStats counts rows in every table and samples the IDB's current
// resident occupancy.
func (s *Store) GatherStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		counts := map[string]*int64{
			"Spaces": &st.Spaces, "Atoms": &st.Atoms, "Valuations": &st.Valuations,
			"Values": &st.Values, "TypeCodes": &st.TypeCodes,
		}
		for table, dest := range counts {
			query := "SELECT COUNT(*) AS n FROM " + table + ";"
			rs, err := conn.Exec(ctx, query)
			if err != nil {
				return wrapSqlExec(query, err)
			}
			err = rs.ForEachRow(func(row driver.Row) bool {
				text, _ := row.Get("n")
				n, _ := strconv.ParseInt(text, 10, 64)
				*dest = n
				return true
			})
			rs.Release()
			if err != nil {
				return err
			}
		}
		return nil
	})
	st.IDBEntries = int64(s.idb.Len())
	metrics.IDBOccupancy.Set(float64(st.IDBEntries))
	return st, err
}

// PrintStats renders row counts and IDB occupancy to w with
// olekukonko/tablewriter, humanizing counts with dustin/go-humanize, per
// spec §4.9.
func (s *Store) PrintStats(ctx context.Context, w io.Writer) error {
	st, err := s.GatherStats(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Relation", "Rows"})
	table.Append([]string{"Spaces", humanize.Comma(st.Spaces)})
	table.Append([]string{"Atoms", humanize.Comma(st.Atoms)})
	table.Append([]string{"Valuations", humanize.Comma(st.Valuations)})
	table.Append([]string{"Values", humanize.Comma(st.Values)})
	table.Append([]string{"TypeCodes", humanize.Comma(st.TypeCodes)})
	table.Append([]string{"IDB entries (resident)", humanize.Comma(st.IDBEntries)})
	table.Render()
	return nil
}
