package codec

import (
	"context"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// Value type tags stored in the Values/Valuations "type" column.
const (
	typeFloat  = 1
	typeString = 2
	typeLink   = 3
)

// queryExec is satisfied by both *driver.Connection and *driver.Tx, so the
// codec's internal helpers can run either as a standalone statement or as
// part of storeValuation's transaction.
type queryExec interface {
	Exec(ctx context.Context, sqlText string) (*driver.RecordSet, error)
}

// Codec encodes and decodes Values to and from the Values and Valuations
// tables, per spec §4.5.
type Codec struct {
	pool *pool.Pool

	mu       sync.Mutex
	nextVUID atom.VUID
}

// New returns a Codec whose VUID allocator is recovered from
// MAX(vuid) in the Values table, per spec §9's "Global counters" note.
func New(ctx context.Context, p *pool.Pool) (*Codec, error) {
	c := &Codec{pool: p, nextVUID: 1}
	max, err := c.maxObservedVUID(ctx)
	if err != nil {
		return nil, err
	}
	c.nextVUID = max + 1
	return c, nil
}

// maxObservedVUID recovers the high-water mark from the Values table. A
// query failure is treated as "no table yet" -- the expected state before
// CreateTables has run against a fresh database -- rather than a fatal
// startup error.
func (c *Codec) maxObservedVUID(ctx context.Context) (atom.VUID, error) {
	var max atom.VUID
	err := pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values ORDER BY vuid DESC LIMIT 1;")
		if err != nil {
			return nil
		}
		defer rs.Release()
		return rs.ForEachRow(func(row driver.Row) bool {
			text, _ := row.Get("vuid")
			v, _ := strconv.ParseUint(text, 10, 64)
			max = atom.VUID(v)
			return true
		})
	})
	return max, err
}

func (c *Codec) allocVUID() atom.VUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.nextVUID
	c.nextVUID++
	return v
}

// StoreValue allocates a fresh VUID and persists v, recursing through
// LinkVector elements. It returns the newly allocated VUID.
func (c *Codec) StoreValue(ctx context.Context, v atom.Value) (atom.VUID, error) {
	var vuid atom.VUID
	err := pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		var err error
		vuid, err = c.storeValueWith(ctx, conn, v)
		return err
	})
	return vuid, err
}

func (c *Codec) storeValueWith(ctx context.Context, qe queryExec, v atom.Value) (atom.VUID, error) {
	vuid := c.allocVUID()

	vtype, col, literal, err := c.encodeTopLevel(ctx, qe, v)
	if err != nil {
		return atom.InvalidVUID, err
	}

	stmt := "INSERT INTO Values (vuid, type, " + col + ") VALUES (" +
		strconv.FormatUint(uint64(vuid), 10) + ", " + strconv.Itoa(vtype) + ", '" + literal + "');"

	rs, err := qe.Exec(ctx, stmt)
	if err != nil {
		return atom.InvalidVUID, errors.WithMessagef(err, "storing value %d", vuid)
	}
	rs.Release()
	return vuid, nil
}

// encodeTopLevel renders v's (type tag, column name, array literal)
// triple, recursively storing a LinkVector's elements into the Values
// table (each getting its own VUID) along the way. It is shared by
// storeValueWith (for free-standing Values rows) and storeValuationWith
// (for Valuations rows, which carry the same three columns inline).
func (c *Codec) encodeTopLevel(ctx context.Context, qe queryExec, v atom.Value) (vtype int, column, literal string, err error) {
	switch tv := v.(type) {
	case atom.FloatVector:
		return typeFloat, "floatvalue", encodeFloatArray(tv), nil
	case atom.StringVector:
		return typeString, "stringvalue", encodeStringArray(tv), nil
	case atom.LinkVector:
		childVUIDs := make([]uint64, len(tv))
		for i, elem := range tv {
			childVUID, err := c.storeValueWith(ctx, qe, elem)
			if err != nil {
				return 0, "", "", err
			}
			childVUIDs[i] = uint64(childVUID)
		}
		return typeLink, "linkvalue", encodeUint64Array(childVUIDs), nil
	default:
		return 0, "", "", errors.Errorf("codec: unsupported Value type %T", v)
	}
}

// GetValue loads the Value stored under vuid, recursing through
// LinkVector elements.
func (c *Codec) GetValue(ctx context.Context, vuid atom.VUID) (atom.Value, error) {
	var v atom.Value
	err := pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		var err error
		v, err = c.getValueWith(ctx, conn, vuid)
		return err
	})
	return v, err
}

func (c *Codec) getValueWith(ctx context.Context, qe queryExec, vuid atom.VUID) (atom.Value, error) {
	rs, err := qe.Exec(ctx, "SELECT type, floatvalue, stringvalue, linkvalue FROM Values WHERE vuid = "+
		strconv.FormatUint(uint64(vuid), 10)+";")
	if err != nil {
		return nil, errors.WithMessagef(err, "loading value %d", vuid)
	}
	defer rs.Release()

	var found bool
	var vtype int
	var floatText, stringText, linkText string
	var floatValid, stringValid, linkValid bool

	if err := rs.ForEachRow(func(row driver.Row) bool {
		found = true
		typeText, _ := row.Get("type")
		vtype, _ = strconv.Atoi(typeText)
		floatText, floatValid = row.Get("floatvalue")
		stringText, stringValid = row.Get("stringvalue")
		linkText, linkValid = row.Get("linkvalue")
		return true
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Errorf("codec: no Value row for vuid %d", vuid)
	}

	switch vtype {
	case typeFloat:
		if !floatValid {
			return nil, errors.Errorf("codec: value %d tagged float but floatvalue is NULL", vuid)
		}
		fs, err := decodeFloatArray(floatText)
		if err != nil {
			return nil, err
		}
		return atom.FloatVector(fs), nil
	case typeString:
		if !stringValid {
			return nil, errors.Errorf("codec: value %d tagged string but stringvalue is NULL", vuid)
		}
		ss, err := decodeStringArray(stringText)
		if err != nil {
			return nil, err
		}
		return atom.StringVector(ss), nil
	case typeLink:
		if !linkValid {
			return nil, errors.Errorf("codec: value %d tagged link but linkvalue is NULL", vuid)
		}
		childVUIDs, err := decodeUint64Array(linkText)
		if err != nil {
			return nil, err
		}
		elems := make(atom.LinkVector, len(childVUIDs))
		for i, cv := range childVUIDs {
			elem, err := c.getValueWith(ctx, qe, atom.VUID(cv))
			if err != nil {
				return nil, err
			}
			elems[i] = elem
		}
		return elems, nil
	default:
		return nil, errors.Errorf("codec: value %d has unrecognized type tag %d", vuid, vtype)
	}
}

// DeleteValue recursively deletes vuid and, for a LinkVector, every VUID
// reachable from it, leaving no orphaned rows.
func (c *Codec) DeleteValue(ctx context.Context, vuid atom.VUID) error {
	return pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		return c.deleteValueWith(ctx, conn, vuid)
	})
}

func (c *Codec) deleteValueWith(ctx context.Context, qe queryExec, vuid atom.VUID) error {
	rs, err := qe.Exec(ctx, "SELECT type, linkvalue FROM Values WHERE vuid = "+
		strconv.FormatUint(uint64(vuid), 10)+";")
	if err != nil {
		return errors.WithMessagef(err, "reading value %d before delete", vuid)
	}

	var vtype int
	var linkText string
	var linkValid, found bool
	if err := rs.ForEachRow(func(row driver.Row) bool {
		found = true
		typeText, _ := row.Get("type")
		vtype, _ = strconv.Atoi(typeText)
		linkText, linkValid = row.Get("linkvalue")
		return true
	}); err != nil {
		rs.Release()
		return err
	}
	rs.Release()
	if !found {
		return nil
	}

	if vtype == typeLink && linkValid {
		childVUIDs, err := decodeUint64Array(linkText)
		if err != nil {
			return err
		}
		for _, cv := range childVUIDs {
			if err := c.deleteValueWith(ctx, qe, atom.VUID(cv)); err != nil {
				return err
			}
		}
	}

	del, err := qe.Exec(ctx, "DELETE FROM Values WHERE vuid = "+strconv.FormatUint(uint64(vuid), 10)+";")
	if err != nil {
		return errors.WithMessagef(err, "deleting value %d", vuid)
	}
	return del.Release()
}
