package typemap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// Size is the maximum number of distinct type codes the map can track on
// either side of the translation, matching spec §4.4's suggested 1<<16.
const Size = 1 << 16

// NoType is the sentinel returned for a database type code whose name is
// unknown to this runtime: rows of that type fail to load, but nothing
// else about the reconciliation is disturbed.
const NoType = atom.TypeCode(Size - 1)

// NamedType is a single (code, name) pair as the runtime knows it.
type NamedType struct {
	Code atom.TypeCode
	Name string
}

// Registry is the runtime's type name authority -- normally the
// hypergraph's type hierarchy. sqlstore/typemap depends only on this
// interface, never on a concrete type-registry implementation.
type Registry interface {
	// Types returns every type known to the runtime.
	Types() []NamedType
	// TypeByName resolves a type name to its runtime code, or reports
	// unknown.
	TypeByName(name string) (atom.TypeCode, bool)
}

// Map is the two-way runtime<->database type code translator.
type Map struct {
	pool  *pool.Pool
	group singleflight.Group

	mu     sync.RWMutex
	loaded bool

	runtimeToDB [Size]int32 // -1 = unset
	dbToRuntime [Size]atom.TypeCode
	dbTypeName  [Size]string
}

// New returns an unloaded Map. EnsureLoaded must be called (concurrently
// safe, idempotent) before ToDB/ToRuntime/TypeName are meaningful.
func New(p *pool.Pool) *Map {
	m := &Map{pool: p}
	for i := range m.runtimeToDB {
		m.runtimeToDB[i] = -1
	}
	for i := range m.dbToRuntime {
		m.dbToRuntime[i] = NoType
	}
	return m
}

// EnsureLoaded performs the one-time reconciliation between the database's
// TypeCodes table and the runtime's Registry, if it has not already run.
// Concurrent callers share a single flight of the underlying work.
func (m *Map) EnsureLoaded(ctx context.Context, reg Registry) error {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := m.group.Do("setup", func() (interface{}, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.loaded {
			return nil, nil
		}
		if err := m.loadFromDB(ctx, reg); err != nil {
			return nil, err
		}
		if err := m.reconcile(ctx, reg); err != nil {
			return nil, err
		}
		m.loaded = true
		return nil, nil
	})
	return err
}

// loadFromDB reads every existing (type, typename) row and populates
// dbTypeName / dbToRuntime / runtimeToDB for the names the registry
// already recognizes. Must be called with m.mu held.
func (m *Map) loadFromDB(ctx context.Context, reg Registry) error {
	return pool.WithConn(ctx, m.pool, func(c *driver.Connection) error {
		rs, err := c.Exec(ctx, "SELECT type, typename FROM TypeCodes;")
		if err != nil {
			return errors.WithMessage(err, "loading TypeCodes")
		}
		defer rs.Release()

		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			codeText, _ := row.Get("type")
			name, _ := row.Get("typename")
			code, convErr := strconv.Atoi(codeText)
			if convErr != nil {
				err = errors.WithMessagef(convErr, "malformed TypeCodes.type %q", codeText)
				return true
			}
			m.dbTypeName[code] = name
			if rt, ok := reg.TypeByName(name); ok {
				m.dbToRuntime[code] = rt
				m.runtimeToDB[rt] = int32(code)
			} else {
				m.dbToRuntime[code] = NoType
			}
			return false
		}); ferr != nil {
			return ferr
		}
		return err
	})
}

// reconcile assigns a database code to every runtime type not yet mapped,
// preferring the runtime's own code when it is free, and persists the new
// mapping. Must be called with m.mu held.
func (m *Map) reconcile(ctx context.Context, reg Registry) error {
	for _, nt := range reg.Types() {
		if m.runtimeToDB[nt.Code] != -1 {
			continue
		}

		code := int(nt.Code)
		if m.dbTypeName[code] != "" && m.dbToRuntime[code] != nt.Code {
			code = m.lowestUnusedCode()
		}

		if err := m.insertMapping(ctx, code, nt); err != nil {
			return err
		}
	}
	return nil
}

func (m *Map) lowestUnusedCode() int {
	for i := 0; i < Size; i++ {
		if m.dbTypeName[i] == "" {
			return i
		}
	}
	// Unreachable in practice: Size (65536) comfortably exceeds any
	// realistic type hierarchy.
	panic("typemap: no unused database type code available")
}

func (m *Map) insertMapping(ctx context.Context, code int, nt NamedType) error {
	err := pool.WithConn(ctx, m.pool, func(c *driver.Connection) error {
		stmt := fmt.Sprintf("INSERT INTO TypeCodes (type, typename) VALUES (%d, %s);",
			code, quoteLiteral(nt.Name))
		rs, err := c.Exec(ctx, stmt)
		if err != nil {
			return errors.WithMessagef(err, "inserting TypeCodes row for %q", nt.Name)
		}
		rs.Release()
		return nil
	})
	if err != nil {
		return err
	}
	m.dbTypeName[code] = nt.Name
	m.dbToRuntime[code] = nt.Code
	m.runtimeToDB[nt.Code] = int32(code)
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ToDB translates a runtime type code to its database code. The map must
// already be loaded.
func (m *Map) ToDB(t atom.TypeCode) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v := m.runtimeToDB[t]
	if v == -1 {
		return 0, false
	}
	return int(v), true
}

// ToRuntime translates a database type code to its runtime code. If the
// database row's type name is unknown to this runtime, it returns NoType
// and ok=false: the caller should fail to load only that row.
func (m *Map) ToRuntime(dbCode int) (atom.TypeCode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dbCode < 0 || dbCode >= Size {
		return NoType, false
	}
	t := m.dbToRuntime[dbCode]
	return t, t != NoType
}

// TypeName returns the type name stored in TypeCodes for dbCode.
func (m *Map) TypeName(dbCode int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if dbCode < 0 || dbCode >= Size {
		return "", false
	}
	name := m.dbTypeName[dbCode]
	return name, name != ""
}
