package codec_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/codec"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

func newTestCodec(t *testing.T) (*codec.Codec, *pool.Pool) {
	t.Helper()
	db, err := driver.OpenSQLite(":memory:?cache=shared&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxConnections(4)
	t.Cleanup(func() { db.Close() })

	p, err := pool.New(context.Background(), db, 4)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	require.NoError(t, pool.WithConn(context.Background(), p, func(conn *driver.Connection) error {
		for _, stmt := range []string{
			`CREATE TABLE Values (vuid BIGINT PRIMARY KEY, type INTEGER NOT NULL, floatvalue TEXT, stringvalue TEXT, linkvalue TEXT);`,
			`CREATE TABLE Valuations (key BIGINT NOT NULL, atom BIGINT NOT NULL, type INTEGER NOT NULL, floatvalue TEXT, stringvalue TEXT, linkvalue TEXT, PRIMARY KEY (key, atom));`,
		} {
			rs, err := conn.Exec(context.Background(), stmt)
			if err != nil {
				return err
			}
			rs.Release()
		}
		return nil
	}))

	c, err := codec.New(context.Background(), p)
	require.NoError(t, err)
	return c, p
}

func TestStoreAndGetFloatVectorRoundTrips(t *testing.T) {
	c, _ := newTestCodec(t)
	ctx := context.Background()

	v := atom.FloatVector{1.5, -2.25, 0}
	vuid, err := c.StoreValue(ctx, v)
	require.NoError(t, err)
	require.NotEqual(t, atom.InvalidVUID, vuid)

	got, err := c.GetValue(ctx, vuid)
	require.NoError(t, err)
	assert.True(t, atom.Equal(v, got))
}

func TestStoreAndGetStringVectorRoundTrips(t *testing.T) {
	c, _ := newTestCodec(t)
	ctx := context.Background()

	v := atom.StringVector{`hello`, `with "quotes"`, `with\backslash`, ""}
	vuid, err := c.StoreValue(ctx, v)
	require.NoError(t, err)

	got, err := c.GetValue(ctx, vuid)
	require.NoError(t, err)
	assert.True(t, atom.Equal(v, got))
}

func TestStoreAndGetNestedLinkVectorRoundTrips(t *testing.T) {
	c, _ := newTestCodec(t)
	ctx := context.Background()

	v := atom.LinkVector{
		atom.FloatVector{1, 2, 3},
		atom.LinkVector{
			atom.StringVector{"a", "b"},
			atom.FloatVector{},
		},
	}
	vuid, err := c.StoreValue(ctx, v)
	require.NoError(t, err)

	got, err := c.GetValue(ctx, vuid)
	require.NoError(t, err)
	assert.True(t, atom.Equal(v, got))
}

func TestDeleteValueCascadesThroughLinkVector(t *testing.T) {
	c, p := newTestCodec(t)
	ctx := context.Background()

	v := atom.LinkVector{
		atom.FloatVector{1, 2},
		atom.StringVector{"x"},
	}
	vuid, err := c.StoreValue(ctx, v)
	require.NoError(t, err)

	var rowCountBefore int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCountBefore++; return false })
	}))
	require.Equal(t, 3, rowCountBefore) // the link, plus its two children

	require.NoError(t, c.DeleteValue(ctx, vuid))

	var rowCountAfter int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCountAfter++; return false })
	}))
	assert.Zero(t, rowCountAfter, "cascading delete must leave no orphaned Values rows")
}

func TestGetValueOnMissingVUIDErrors(t *testing.T) {
	c, _ := newTestCodec(t)
	_, err := c.GetValue(context.Background(), atom.VUID(999999))
	assert.Error(t, err)
}

func TestStoreValuationOverwriteReplacesPriorValueAndIsUnique(t *testing.T) {
	c, p := newTestCodec(t)
	ctx := context.Background()

	key, subject := atom.EID(10), atom.EID(20)

	require.NoError(t, c.StoreValuation(ctx, key, subject, atom.FloatVector{1, 2, 3}))
	got, found, err := c.GetValuation(ctx, key, subject)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, atom.Equal(atom.FloatVector{1, 2, 3}, got))

	// Overwriting must replace, not duplicate, the (key, atom) row.
	require.NoError(t, c.StoreValuation(ctx, key, subject, atom.StringVector{"new"}))
	got, found, err = c.GetValuation(ctx, key, subject)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, atom.Equal(atom.StringVector{"new"}, got))

	var rowCount int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT key FROM Valuations WHERE key = 10 AND atom = 20;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCount++; return false })
	}))
	assert.Equal(t, 1, rowCount)
}

func TestStoreValuationOverwriteCascadesDeleteOfPriorLinkVector(t *testing.T) {
	c, p := newTestCodec(t)
	ctx := context.Background()

	key, subject := atom.EID(1), atom.EID(2)

	require.NoError(t, c.StoreValuation(ctx, key, subject, atom.LinkVector{
		atom.FloatVector{1},
		atom.FloatVector{2},
	}))

	var rowCountBefore int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCountBefore++; return false })
	}))
	require.Equal(t, 2, rowCountBefore)

	// Replacing with a scalar value must cascade-delete the two orphaned
	// Values rows the prior LinkVector referenced.
	require.NoError(t, c.StoreValuation(ctx, key, subject, atom.FloatVector{9}))

	var rowCountAfter int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCountAfter++; return false })
	}))
	assert.Zero(t, rowCountAfter)
}

func TestDeleteValuationRemovesRowAndCascades(t *testing.T) {
	c, p := newTestCodec(t)
	ctx := context.Background()

	key, subject := atom.EID(5), atom.EID(6)
	require.NoError(t, c.StoreValuation(ctx, key, subject, atom.LinkVector{atom.FloatVector{1}}))

	require.NoError(t, c.DeleteValuation(ctx, key, subject))

	_, found, err := c.GetValuation(ctx, key, subject)
	require.NoError(t, err)
	assert.False(t, found)

	var rowCount int
	require.NoError(t, pool.WithConn(ctx, p, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT vuid FROM Values;")
		if err != nil {
			return err
		}
		defer rs.Release()
		return rs.ForEachRow(func(driver.Row) bool { rowCount++; return false })
	}))
	assert.Zero(t, rowCount)
}

func TestGetValuationOnMissingPairReportsNotFound(t *testing.T) {
	c, _ := newTestCodec(t)
	_, found, err := c.GetValuation(context.Background(), atom.EID(1), atom.EID(2))
	require.NoError(t, err)
	assert.False(t, found)
}
