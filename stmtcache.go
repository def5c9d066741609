package pgclient

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// stmtCache tracks which parameterized queries already have a named prepared
// statement on the backend so that re-running one skips the parse/describe
// round trip. Entries are keyed by a digest of the SQL text and the
// statement name is derived from the same digest. The cache lives and dies
// with its connection, since prepared statements are per-session.
//
// Eviction is oldest-first. The evicted statement names are handed back to
// the caller, who is responsible for closing them on the backend.
type stmtCache struct {
	capacity int
	names    map[uint64]string
	order    []uint64
}

func newStmtCache(capacity int) *stmtCache {
	return &stmtCache{
		capacity: capacity,
		names:    make(map[uint64]string),
	}
}

func (sc *stmtCache) enabled() bool {
	return sc.capacity > 0
}

// lookup returns the prepared statement name for sql, if one is cached.
func (sc *stmtCache) lookup(sql string) (string, bool) {
	name, ok := sc.names[xxhash.Sum64String(sql)]
	return name, ok
}

// put registers sql as prepared and returns the statement name to prepare it
// under, plus the names of any statements evicted to make room.
func (sc *stmtCache) put(sql string) (name string, evicted []string) {
	key := xxhash.Sum64String(sql)
	name = statementName(sql)

	if _, ok := sc.names[key]; ok {
		return name, nil
	}

	for len(sc.order) >= sc.capacity {
		oldest := sc.order[0]
		sc.order = sc.order[1:]
		evicted = append(evicted, sc.names[oldest])
		delete(sc.names, oldest)
	}

	sc.names[key] = name
	sc.order = append(sc.order, key)
	return name, evicted
}

// remove forgets sql, typically because preparing it failed on the backend.
func (sc *stmtCache) remove(sql string) {
	key := xxhash.Sum64String(sql)
	if _, ok := sc.names[key]; !ok {
		return
	}
	delete(sc.names, key)
	for i, k := range sc.order {
		if k == key {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}
}

// statementName derives a stable prepared statement name from the SQL text.
func statementName(sql string) string {
	return fmt.Sprintf("pgc_%016x", xxhash.Sum64String(sql))
}

// oneShotStatementName returns a unique name for a statement that is parsed,
// executed once and closed within a single extended-query cycle.
func oneShotStatementName() string {
	return "stmt_" + uuid.New().String()
}
