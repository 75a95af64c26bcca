package codec

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// StoreValuation persists the Value attached under key to atomEID,
// replacing any prior Valuation for the pair. Per spec §4.5 this runs
// under a transaction: BEGIN; delete the old row (cascading through its
// LinkVector contents, if any); INSERT the new row; COMMIT. A concurrent
// reader therefore always observes either the pre- or post-state, never an
// intermediate one.
func (c *Codec) StoreValuation(ctx context.Context, key, atomEID atom.EID, v atom.Value) error {
	return pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}

		if err := c.replaceValuationWith(ctx, tx, key, atomEID, v); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return errors.Wrap(rbErr, err.Error())
			}
			return err
		}
		return tx.Commit()
	})
}

func (c *Codec) replaceValuationWith(ctx context.Context, tx *driver.Tx, key, atomEID atom.EID, v atom.Value) error {
	if err := c.deleteValuationRowWith(ctx, tx, key, atomEID); err != nil {
		return err
	}

	vtype, column, literal, err := c.encodeTopLevel(ctx, tx, v)
	if err != nil {
		return err
	}

	stmt := "INSERT INTO Valuations (key, atom, type, " + column + ") VALUES (" +
		strconv.FormatUint(uint64(key), 10) + ", " +
		strconv.FormatUint(uint64(atomEID), 10) + ", " +
		strconv.Itoa(vtype) + ", '" + literal + "');"

	rs, err := tx.Exec(ctx, stmt)
	if err != nil {
		return errors.WithMessagef(err, "inserting valuation (%d,%d)", key, atomEID)
	}
	return rs.Release()
}

// deleteValuationRowWith removes any existing Valuations row for (key,
// atom), cascading the delete through its LinkVector contents first.
func (c *Codec) deleteValuationRowWith(ctx context.Context, qe queryExec, key, atomEID atom.EID) error {
	query := "SELECT type, linkvalue FROM Valuations WHERE key = " +
		strconv.FormatUint(uint64(key), 10) + " AND atom = " + strconv.FormatUint(uint64(atomEID), 10) + ";"
	rs, err := qe.Exec(ctx, query)
	if err != nil {
		return errors.WithMessagef(err, "reading valuation (%d,%d) before delete", key, atomEID)
	}

	var found bool
	var vtype int
	var linkText string
	var linkValid bool
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

	del, err := qe.Exec(ctx, "DELETE FROM Valuations WHERE key = "+
		strconv.FormatUint(uint64(key), 10)+" AND atom = "+strconv.FormatUint(uint64(atomEID), 10)+";")
	if err != nil {
		return errors.WithMessagef(err, "deleting valuation (%d,%d)", key, atomEID)
	}
	return del.Release()
}

// GetValuation returns the Value stored under (key, atom), if any.
func (c *Codec) GetValuation(ctx context.Context, key, atomEID atom.EID) (atom.Value, bool, error) {
	var v atom.Value
	var found bool
	err := pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		query := "SELECT type, floatvalue, stringvalue, linkvalue FROM Valuations WHERE key = " +
			strconv.FormatUint(uint64(key), 10) + " AND atom = " + strconv.FormatUint(uint64(atomEID), 10) + ";"
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return errors.WithMessagef(err, "loading valuation (%d,%d)", key, atomEID)
		}
		defer rs.Release()

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
			return err
		}
		if !found {
			return nil
		}

		switch vtype {
		case typeFloat:
			if !floatValid {
				return errors.Errorf("codec: valuation (%d,%d) tagged float but floatvalue is NULL", key, atomEID)
			}
			fs, err := decodeFloatArray(floatText)
			if err != nil {
				return err
			}
			v = atom.FloatVector(fs)
		case typeString:
			if !stringValid {
				return errors.Errorf("codec: valuation (%d,%d) tagged string but stringvalue is NULL", key, atomEID)
			}
			ss, err := decodeStringArray(stringText)
			if err != nil {
				return err
			}
			v = atom.StringVector(ss)
		case typeLink:
			if !linkValid {
				return errors.Errorf("codec: valuation (%d,%d) tagged link but linkvalue is NULL", key, atomEID)
			}
			childVUIDs, err := decodeUint64Array(linkText)
			if err != nil {
				return err
			}
			elems := make(atom.LinkVector, len(childVUIDs))
			for i, cv := range childVUIDs {
				elem, err := c.getValueWith(ctx, conn, atom.VUID(cv))
				if err != nil {
					return err
				}
				elems[i] = elem
			}
			v = elems
		default:
			return errors.Errorf("codec: valuation (%d,%d) has unrecognized type tag %d", key, atomEID, vtype)
		}
		return nil
	})
	return v, found, err
}

// DeleteValuation removes the Valuation for (key, atom), cascading the
// delete through its LinkVector contents, if any.
func (c *Codec) DeleteValuation(ctx context.Context, key, atomEID atom.EID) error {
	return pool.WithConn(ctx, c.pool, func(conn *driver.Connection) error {
		return c.deleteValuationRowWith(ctx, conn, key, atomEID)
	})
}
