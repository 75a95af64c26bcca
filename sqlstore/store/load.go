package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shadowridgedev/atomspace/atom"
	"github.com/shadowridgedev/atomspace/sqlstore/codec"
	"github.com/shadowridgedev/atomspace/sqlstore/driver"
	"github.com/shadowridgedev/atomspace/sqlstore/metrics"
	"github.com/shadowridgedev/atomspace/sqlstore/pool"
)

// atomsColumns lists every column load.go's SELECTs read from Atoms, in
// the order rowData expects them.
const atomsColumns = "uuid, space, type, type_tv, stv_mean, stv_confidence, stv_count, height, name, outgoing"

// rowData is the decoded, but not yet materialized, content of a single
// Atoms row.
type rowData struct {
	eid          atom.EID
	spaceID      int64
	dbType       int
	runtimeType  atom.TypeCode
	height       int
	tv           atom.TruthValue
	isNode       bool
	name         string
	outgoingEIDs []atom.EID
}

func (s *Store) decodeRow(row driver.Row) (rowData, error) {
	var rd rowData

	uuidText, _ := row.Get("uuid")
	u, _ := strconv.ParseUint(uuidText, 10, 64)
	rd.eid = atom.EID(u)

	spaceText, _ := row.Get("space")
	rd.spaceID, _ = strconv.ParseInt(spaceText, 10, 64)

	typeText, _ := row.Get("type")
	rd.dbType, _ = strconv.Atoi(typeText)
	rt, ok := s.types.ToRuntime(rd.dbType)
	if !ok {
		return rd, &TypeMapError{Cause: fmt.Errorf("database type code %d has no known runtime type", rd.dbType)}
	}
	rd.runtimeType = rt

	tvTypeText, _ := row.Get("type_tv")
	tvType, _ := strconv.Atoi(tvTypeText)
	meanText, _ := row.Get("stv_mean")
	mean, _ := strconv.ParseFloat(meanText, 64)
	confText, _ := row.Get("stv_confidence")
	conf, _ := strconv.ParseFloat(confText, 64)
	countText, _ := row.Get("stv_count")
	count, _ := strconv.ParseFloat(countText, 64)
	rd.tv = atom.TruthValue{Type: atom.TVType(tvType), Mean: mean, Confidence: conf, Count: count}

	heightText, _ := row.Get("height")
	rd.height, _ = strconv.Atoi(heightText)

	name, nameValid := row.Get("name")
	outgoingText, outgoingValid := row.Get("outgoing")
	rd.isNode = nameValid && !outgoingValid
	if rd.isNode {
		rd.name = name
	} else {
		ids, err := codec.DecodeUint64Array(outgoingText)
		if err != nil {
			return rd, wrapSchema("decoding outgoing array for atom %d: %v", rd.eid, err)
		}
		rd.outgoingEIDs = make([]atom.EID, len(ids))
		for i, v := range ids {
			rd.outgoingEIDs[i] = atom.EID(v)
		}
	}
	return rd, nil
}

func (s *Store) fetchRow(ctx context.Context, eid atom.EID) (rowData, bool, error) {
	var rd rowData
	var found bool
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		query := fmt.Sprintf("SELECT %s FROM Atoms WHERE uuid = %d;", atomsColumns, eid)
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return wrapSqlExec(query, err)
		}
		defer rs.Release()
		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			found = true
			rd, err = s.decodeRow(row)
			return true
		}); ferr != nil {
			return ferr
		}
		return err
	})
	return rd, found, err
}

// materialize turns a decoded row and its already-resolved children (empty
// for a node) into a live entity, binds it in the IDB, and merges it into
// the container, returning whichever entity instance the container now
// considers canonical for this identity.
func (s *Store) materialize(rd rowData, children []atom.Entity) atom.Entity {
	var candidate atom.Entity
	if rd.isNode {
		candidate = atom.NewNode(rd.runtimeType, rd.name)
	} else {
		candidate = atom.NewLink(rd.runtimeType, children...)
	}
	candidate.SetTruthValue(rd.tv)
	candidate.SetSpaceID(rd.spaceID)

	canonical := s.container.Add(candidate, true)
	s.idb.Bind(canonical, rd.eid)
	s.locks.markKnown(rd.eid)
	return canonical
}

// frame is one stack entry of the iterative child-resolution walk of
// getAtomByEID, converting the spec's recursive descent into explicit-stack
// iteration per §9's design note.
type frame struct {
	row      rowData
	children []atom.Entity
}

// getAtomByEID loads eid and, for a link, iteratively resolves every
// descendant, reusing already-resolved or already-IDB-bound entities
// instead of re-fetching them.
func (s *Store) getAtomByEID(ctx context.Context, eid atom.EID) (atom.Entity, error) {
	metrics.LoadTotal.Inc()

	if h, ok := s.idb.LookupByEID(eid); ok {
		return h, nil
	}

	resolved := make(map[atom.EID]atom.Entity)
	root, err := s.pushFrame(ctx, eid)
	if err != nil {
		return nil, err
	}
	stack := []*frame{root}

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.row.isNode || len(top.children) >= len(top.row.outgoingEIDs) {
			entity := s.materialize(top.row, top.children)
			resolved[top.row.eid] = entity
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return entity, nil
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, entity)
			continue
		}

		childEID := top.row.outgoingEIDs[len(top.children)]
		if h, ok := resolved[childEID]; ok {
			top.children = append(top.children, h)
			continue
		}
		if h, ok := s.idb.LookupByEID(childEID); ok {
			resolved[childEID] = h
			top.children = append(top.children, h)
			continue
		}

		childFrame, err := s.pushFrame(ctx, childEID)
		if err != nil {
			return nil, err
		}
		stack = append(stack, childFrame)
	}
	return nil, wrapIntegrity("getAtomByEID: resolution stack emptied without producing a result")
}

func (s *Store) pushFrame(ctx context.Context, eid atom.EID) (*frame, error) {
	rd, found, err := s.fetchRow(ctx, eid)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, wrapIntegrity("getAtomByEID: no Atoms row for child eid %d", eid)
	}
	return &frame{row: rd, children: make([]atom.Entity, 0, len(rd.outgoingEIDs))}, nil
}

// GetNode resolves a node by (type, name), loading it from the database on
// a cache miss.
func (s *Store) GetNode(ctx context.Context, t atom.TypeCode, name string) (atom.Entity, bool, error) {
	if h, ok := s.container.Node(t, name); ok {
		return h, true, nil
	}
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return nil, false, &TypeMapError{Cause: err}
	}
	dbType, ok := s.types.ToDB(t)
	if !ok {
		return nil, false, nil
	}
	var rd rowData
	var found bool
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		query := fmt.Sprintf("SELECT %s FROM Atoms WHERE type = %d AND name = %s;", atomsColumns, dbType, quoteLiteral(name))
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return wrapSqlExec(query, err)
		}
		defer rs.Release()
		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			found = true
			rd, err = s.decodeRow(row)
			return true
		}); ferr != nil {
			return ferr
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	metrics.LoadTotal.Inc()
	return s.materialize(rd, nil), true, nil
}

// GetLink resolves a link by (type, ordered children), loading it from the
// database on a cache miss. Every child must already be resolvable (have
// an EID).
func (s *Store) GetLink(ctx context.Context, t atom.TypeCode, children []atom.Entity) (atom.Entity, bool, error) {
	if h, ok := s.container.Link(t, children); ok {
		return h, true, nil
	}
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return nil, false, &TypeMapError{Cause: err}
	}
	dbType, ok := s.types.ToDB(t)
	if !ok {
		return nil, false, nil
	}
	childEIDs := make([]uint64, len(children))
	for i, c := range children {
		eid, ok := s.idb.LookupByHandle(c)
		if !ok {
			return nil, false, wrapIntegrity("GetLink: child %d has not been stored or loaded", i)
		}
		childEIDs[i] = uint64(eid)
	}

	var rd rowData
	var found bool
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		query := fmt.Sprintf("SELECT %s FROM Atoms WHERE type = %d AND outgoing = '%s';",
			atomsColumns, dbType, codec.EncodeUint64Array(childEIDs))
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return wrapSqlExec(query, err)
		}
		defer rs.Release()
		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			found = true
			rd, err = s.decodeRow(row)
			return true
		}); ferr != nil {
			return ferr
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	metrics.LoadTotal.Inc()
	return s.materialize(rd, children), true, nil
}

// GetIncomingSet returns every link currently in the database whose
// outgoing list contains target, materializing any that are not already
// resolved (including, recursively, any of their other children).
func (s *Store) GetIncomingSet(ctx context.Context, target atom.Entity) ([]atom.Entity, error) {
	metrics.IncomingSetFetchTotal.Inc()

	targetEID, ok := s.idb.LookupByHandle(target)
	if !ok {
		return nil, wrapIntegrity("GetIncomingSet: target has not been stored or loaded")
	}
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return nil, &TypeMapError{Cause: err}
	}

	// outgoing is stored as the same opaque array-literal text the value
	// codec uses elsewhere (see schema.go), so membership is resolved
	// client-side rather than with a driver-specific array operator --
	// this is the one query that must scan every link row.
	var eids []atom.EID
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		query := "SELECT uuid, outgoing FROM Atoms WHERE outgoing IS NOT NULL;"
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return wrapSqlExec(query, err)
		}
		defer rs.Release()
		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			uuidText, _ := row.Get("uuid")
			outgoingText, _ := row.Get("outgoing")
			ids, derr := codec.DecodeUint64Array(outgoingText)
			if derr != nil {
				err = wrapSchema("decoding outgoing array for incoming-set scan: %v", derr)
				return true
			}
			for _, id := range ids {
				if atom.EID(id) == targetEID {
					v, _ := strconv.ParseUint(uuidText, 10, 64)
					eids = append(eids, atom.EID(v))
					break
				}
			}
			return false
		}); ferr != nil {
			return ferr
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]atom.Entity, 0, len(eids))
	for _, eid := range eids {
		e, err := s.getAtomByEID(ctx, eid)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// LoadHeightChunk is the unit of work bulk load drives: it SELECTs, in uuid
// order, at most chunkSize rows at exactly height whose uuid is greater
// than afterUUID, and materializes each into the container. Returns the
// number of rows loaded and the largest uuid among them (zero when none).
func (s *Store) LoadHeightChunk(ctx context.Context, height int, afterUUID atom.EID, chunkSize int) (int, atom.EID, error) {
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return 0, afterUUID, &TypeMapError{Cause: err}
	}
	var rows []rowData
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		query := fmt.Sprintf("SELECT %s FROM Atoms WHERE height = %d AND uuid > %d ORDER BY uuid LIMIT %d;",
			atomsColumns, height, afterUUID, chunkSize)
		rs, err := conn.Exec(ctx, query)
		if err != nil {
			return wrapSqlExec(query, err)
		}
		defer rs.Release()
		if ferr := rs.ForEachRow(func(row driver.Row) bool {
			rd, derr := s.decodeRow(row)
			if derr != nil {
				err = derr
				return true
			}
			rows = append(rows, rd)
			return false
		}); ferr != nil {
			return ferr
		}
		return err
	})
	if err != nil {
		return 0, afterUUID, err
	}

	var last atom.EID
	for _, rd := range rows {
		children := make([]atom.Entity, len(rd.outgoingEIDs))
		for i, ceid := range rd.outgoingEIDs {
			child, err := s.getAtomByEID(ctx, ceid)
			if err != nil {
				return 0, afterUUID, err
			}
			children[i] = child
		}
		s.materialize(rd, children)
		if rd.eid > last {
			last = rd.eid
		}
	}
	return len(rows), last, nil
}

// LoadAll bulk-loads every atom in the database, layer by layer from
// height 0 upward, in chunks of chunkSize, per spec §4.7.
func (s *Store) LoadAll(ctx context.Context, chunkSize int) error {
	maxHeight, err := s.maxObservedHeight(ctx)
	if err != nil {
		return err
	}
	for height := 0; height <= maxHeight; height++ {
		var after atom.EID
		for {
			n, last, err := s.LoadHeightChunk(ctx, height, after, chunkSize)
			if err != nil {
				return err
			}
			if n == 0 {
				break
			}
			after = last
		}
	}
	return nil
}

func (s *Store) maxObservedHeight(ctx context.Context) (int, error) {
	var max int
	err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
		rs, err := conn.Exec(ctx, "SELECT height FROM Atoms ORDER BY height DESC LIMIT 1;")
		if err != nil {
			return wrapSqlExec("SELECT MAX(height)", err)
		}
		defer rs.Release()
		return rs.ForEachRow(func(row driver.Row) bool {
			text, _ := row.Get("height")
			max, _ = strconv.Atoi(text)
			return true
		})
	})
	return max, err
}

// LoadType bulk-loads every atom of runtime type t, using load-if-not-
// already-resolved semantics: a row already bound in the IDB is skipped so
// that a live truth value is never clobbered by a stale reload, per spec
// §4.7's loadType.
func (s *Store) LoadType(ctx context.Context, t atom.TypeCode, chunkSize int) error {
	if err := s.types.EnsureLoaded(ctx, s.registry); err != nil {
		return &TypeMapError{Cause: err}
	}
	dbType, ok := s.types.ToDB(t)
	if !ok {
		return &TypeMapError{Cause: fmt.Errorf("no database type code for runtime type %d", t)}
	}

	var after atom.EID
	for {
		var rows []rowData
		err := pool.WithConn(ctx, s.pool, func(conn *driver.Connection) error {
			query := fmt.Sprintf("SELECT %s FROM Atoms WHERE type = %d AND uuid > %d ORDER BY uuid LIMIT %d;",
				atomsColumns, dbType, after, chunkSize)
			rs, err := conn.Exec(ctx, query)
			if err != nil {
				return wrapSqlExec(query, err)
			}
			defer rs.Release()
			if ferr := rs.ForEachRow(func(row driver.Row) bool {
				rd, derr := s.decodeRow(row)
				if derr != nil {
					err = derr
					return true
				}
				rows = append(rows, rd)
				return false
			}); ferr != nil {
				return ferr
			}
			return err
		})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for _, rd := range rows {
			if rd.eid > after {
				after = rd.eid
			}
			if _, alreadyResolved := s.idb.LookupByEID(rd.eid); alreadyResolved {
				continue
			}
			children := make([]atom.Entity, len(rd.outgoingEIDs))
			for i, ceid := range rd.outgoingEIDs {
				child, err := s.getAtomByEID(ctx, ceid)
				if err != nil {
					return err
				}
				children[i] = child
			}
			s.materialize(rd, children)
		}
	}
}
