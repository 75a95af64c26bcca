package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/codec"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/metrics"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// asyncEnqueuer is the subset of writeback.Queue that StoreAtom's
// asynchronous path needs; declared here, rather than imported, so that
// sqlstore/store and sqlstore/writeback do not depend on each other.
type asyncEnqueuer interface {
	Enqueue(h atom.Entity) error
}

// SetQueue wires q as the destination for StoreAtom's asynchronous path.
func (s *Store) SetQueue(q asyncEnqueuer) {
	s.queue = q
}

// StoreAtom persists h. If synchronous, the caller blocks until the store
// completes; otherwise h is handed to the write-back queue, which must
// already have been wired with SetQueue.
func (s *Store) StoreAtom(ctx context.Context, h atom.Entity, synchronous bool) error {
	if synchronous {
		return s.doStore(ctx, h)
	}
	if s.queue == nil {
		return wrapIntegrity("StoreAtom: asynchronous store requested but no write-back queue is wired")
	}
	return s.queue.Enqueue(h)
}

// doStore is the synchronous path of spec §4.6: recurse into children to
// fix each one's height, persist h's own row, then persist its attached
// values.
func (s *Store) doStore(ctx context.Context, h atom.Entity) error {
	height := 0
	if !h.IsNode() {
		for _, child := range h.Outgoing() {
			if err := s.doStore(ctx, child); err != nil {
				metrics.StoreFailureTotal.Inc()
				return err
			}
			if ch := child.Height() + 1; ch > height {
				height = ch
			}
		}
	}

	if err := s.doStoreSingle(ctx, h, height); err != nil {
		metrics.StoreFailureTotal.Inc()
		return err
	}
	if err := s.storeAtomValues(ctx, h); err != nil {
		metrics.StoreFailureTotal.Inc()
		return err
	}
	return nil
}

// doStoreSingle persists h's own row, per spec §4.6 step-by-step, under
// the creation lock for its EID.
func (s *Store) doStoreSingle(ctx context.Context, h atom.Entity, height int) error {
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return &TypeMapError{Cause: err}
	}
	if err := checkSizeCaps(h); err != nil {
		return err
	}

	eid := s.idb.Assign(h, atom.InvalidEID)
	lock := s.locks.acquire(eid)

	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		return s.execStoreSingle(ctx, conn, h, eid, height, lock.insertMode)
	})

	if err != nil {
		lock.release(false)
		return err
	}
	lock.release(true)

	if lock.insertMode {
		metrics.StoreInsertTotal.WithLabelValues(kindLabel(h)).Inc()
	} else {
		metrics.StoreUpdateTotal.WithLabelValues(kindLabel(h)).Inc()
	}
	return nil
}

func kindLabel(h atom.Entity) string {
	if h.IsNode() {
		return "node"
	}
	return "link"
}

func checkSizeCaps(h atom.Entity) error {
	if h.IsNode() && len(h.Name()) > atom.MaxNameBytes {
		return wrapSizeLimit("node name is %d bytes, exceeds cap of %d", len(h.Name()), atom.MaxNameBytes)
	}
	if !h.IsNode() && len(h.Outgoing()) > atom.MaxArity {
		return wrapSizeLimit("link arity is %d, exceeds cap of %d", len(h.Outgoing()), atom.MaxArity)
	}
	return nil
}

// execStoreSingle composes and runs the INSERT or UPDATE for h. On an
// INSERT failure attributable to an unknown space id, it registers that
// one space id (as its own parent) and retries once; ancestor spaces are
// not persisted.
func (s *Store) execStoreSingle(ctx context.Context, conn *driver.Connection, h atom.Entity, eid atom.EID, height int, insertMode bool) error {
	dbType, ok := s.types.ToDB(h.Type())
	if !ok {
		return &TypeMapError{Cause: fmt.Errorf("no database type code for runtime type %d", h.Type())}
	}

	stmt, err := s.composeStoreStatement(h, eid, dbType, height, insertMode)
	if err != nil {
		return err
	}

	rs, err := conn.Exec(ctx, stmt)
	if err != nil {
		if insertMode && looksLikeMissingSpace(err) {
			if serr := s.storeSpaceTreeForID(ctx, conn, h.SpaceID()); serr != nil {
				return wrapSqlExec(stmt, err)
			}
			rs2, err2 := conn.Exec(ctx, stmt)
			if err2 != nil {
				return wrapSqlExec(stmt, err2)
			}
			return rs2.Release()
		}
		return wrapSqlExec(stmt, err)
	}
	return rs.Release()
}

// looksLikeMissingSpace reports whether err is consistent with a foreign
// key violation against Atoms.space -> Spaces.space. Driver-specific error
// text varies, so this is a best-effort substring match, same spirit as
// the teacher's own ad hoc driver-error sniffing.
func looksLikeMissingSpace(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "space") && (strings.Contains(msg, "foreign key") || strings.Contains(msg, "constraint"))
}

func (s *Store) composeStoreStatement(h atom.Entity, eid atom.EID, dbType int, height int, insertMode bool) (string, error) {
	tv := h.TruthValue()

	if insertMode {
		cols := []string{"uuid", "space", "type", "type_tv", "stv_mean", "stv_confidence", "stv_count", "height"}
		vals := []string{
			strconv.FormatUint(uint64(eid), 10),
			strconv.FormatInt(h.SpaceID(), 10),
			strconv.Itoa(dbType),
			strconv.Itoa(int(tv.Type)),
			formatDouble(tv.Mean),
			formatDouble(tv.Confidence),
			formatDouble(tv.Count),
			strconv.Itoa(height),
		}
		if h.IsNode() {
			cols = append(cols, "name")
			vals = append(vals, quoteLiteral(h.Name()))
		} else {
			outgoing := make([]uint64, len(h.Outgoing()))
			for i, child := range h.Outgoing() {
				childEID, ok := s.idb.LookupByHandle(child)
				if !ok {
					return "", wrapIntegrity("composeStoreStatement: child %d has no EID; children must be stored before their parent", i)
				}
				outgoing[i] = uint64(childEID)
			}
			cols = append(cols, "outgoing")
			vals = append(vals, "'"+codec.EncodeUint64Array(outgoing)+"'")
		}
		return "INSERT INTO Atoms (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ");", nil
	}

	set := []string{
		"space = " + strconv.FormatInt(h.SpaceID(), 10),
		"type = " + strconv.Itoa(dbType),
		"type_tv = " + strconv.Itoa(int(tv.Type)),
		"stv_mean = " + formatDouble(tv.Mean),
		"stv_confidence = " + formatDouble(tv.Confidence),
		"stv_count = " + formatDouble(tv.Count),
		"height = " + strconv.Itoa(height),
	}
	return "UPDATE Atoms SET " + strings.Join(set, ", ") + " WHERE uuid = " + strconv.FormatUint(uint64(eid), 10) + ";", nil
}

func formatDouble(f float64) string {
	return strconv.FormatFloat(f, 'g', 12, 64)
}

// quoteLiteral escapes s as a standard single-quoted SQL string literal --
// the one quoting convention both the Postgres and SQLite drivers accept
// unmodified, unlike Postgres-only dollar-quoting.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// storeAtomValues persists every Value attached to h under its keys.
func (s *Store) storeAtomValues(ctx context.Context, h atom.Entity) error {
	eid, ok := s.idb.LookupByHandle(h)
	if !ok {
		return wrapIntegrity("storeAtomValues: handle has no EID after doStoreSingle")
	}
	for _, key := range h.ValueKeys() {
		v, ok := h.Value(key)
		if !ok {
			continue
		}
		keyEID, err := s.resolveKeyEID(ctx, key)
		if err != nil {
			return err
		}
		if err := s.codec.StoreValuation(ctx, keyEID, eid, v); err != nil {
			return err
		}
	}
	return nil
}

// resolveKeyEID stores key if it has never been stored, then returns its
// EID. A key entity is an ordinary atom and goes through the same store
// path as any other.
func (s *Store) resolveKeyEID(ctx context.Context, key atom.Entity) (atom.EID, error) {
	if eid, ok := s.idb.LookupByHandle(key); ok {
		return eid, nil
	}
	if err := s.doStore(ctx, key); err != nil {
		return atom.InvalidEID, err
	}
	eid, ok := s.idb.LookupByHandle(key)
	if !ok {
		return atom.InvalidEID, wrapIntegrity("resolveKeyEID: key handle has no EID after store")
	}
	return eid, nil
}
