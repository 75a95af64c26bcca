// Package store implements spec §4.6–§4.9: per-entity insert-or-update
// under a creation lock, recursive child store, load by identity/name/
// children/incoming-membership, bulk load by height, and schema admin.
package store

import (
	"context"
	"strconv"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/hypergraph"
	"github.com/shadowridgedev/atomspace/sqlstore/codec"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/idb"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
	"github.com/shadowridgedev/atomspace/sqlstore/typemap"
)

// Store is the entity store/load engine of spec §4.6–§4.7, wiring the
// connection pool, identifier buffer, type-code map and value codec
// together over a live hypergraph.Container.
type Store struct {
	pool      *pool.Pool
	idb       *idb.Buffer
	types     *typemap.Map
	codec     *codec.Codec
	container hypergraph.Container
	registry  typemap.Registry
	locks     *creationTracker
	queue     asyncEnqueuer
}

// New returns a Store over an already-open pool. The registry supplies the
// runtime's type hierarchy to the type-code map on first use; container is
// the external hypergraph the load paths materialize entities into.
func New(ctx context.Context, p *pool.Pool, reg typemap.Registry, container hypergraph.Container) (*Store, error) {
	c, err := codec.New(ctx, p)
	if err != nil {
		return nil, err
	}
	buf, err := idb.New(idb.DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		pool:      p,
		idb:       buf,
		types:     typemap.New(p),
		codec:     c,
		container: container,
		registry:  reg,
		locks:     newCreationTracker(),
	}
	if err := s.reserveEIDHighWaterMark(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// reserveEIDHighWaterMark recovers the IDB's next-allocation counter from
// MAX(uuid) in Atoms, mirroring the codec's own VUID recovery. A query
// failure is treated as "no table yet" -- the expected state before
// CreateTables has run against a fresh database -- rather than a fatal
// startup error, so admin tooling can open a Store against an empty
// database purely to call CreateTables.
func (s *Store) reserveEIDHighWaterMark(ctx context.Context) error {
	return pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT uuid FROM Atoms ORDER BY uuid DESC LIMIT 1;")
		if err != nil {
			return nil
		}
		defer rs.Release()
		return rs.ForEachRow(func(row driver.Row) bool {
			text, _ := row.Get("uuid")
			max, _ := strconv.ParseUint(text, 10, 64)
			s.idb.ReserveUpto(atom.EID(max))
			return true
		})
	})
}

// Close releases the Store's connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
