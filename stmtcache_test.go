package pgclient

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStmtCachePutLookup(t *testing.T) {
	sc := newStmtCache(4)
	require.True(t, sc.enabled())

	_, ok := sc.lookup("SELECT 1")
	require.False(t, ok)

	name, evicted := sc.put("SELECT 1")
	require.Empty(t, evicted)
	require.Equal(t, statementName("SELECT 1"), name)

	got, ok := sc.lookup("SELECT 1")
	require.True(t, ok)
	require.Equal(t, name, got)
}

func TestStmtCacheEvictsOldestFirst(t *testing.T) {
	sc := newStmtCache(2)
	first, _ := sc.put("SELECT 1")
	sc.put("SELECT 2")

	_, evicted := sc.put("SELECT 3")
	require.Equal(t, []string{first}, evicted)

	_, ok := sc.lookup("SELECT 1")
	require.False(t, ok)
	_, ok = sc.lookup("SELECT 2")
	require.True(t, ok)
	_, ok = sc.lookup("SELECT 3")
	require.True(t, ok)
}

func TestStmtCachePutIsIdempotent(t *testing.T) {
	sc := newStmtCache(2)
	a, _ := sc.put("SELECT 1")
	b, evicted := sc.put("SELECT 1")
	require.Equal(t, a, b)
	require.Empty(t, evicted)

	// re-putting must not count against capacity
	sc.put("SELECT 2")
	_, evicted = sc.put("SELECT 1")
	require.Empty(t, evicted)
}

func TestStmtCacheRemove(t *testing.T) {
	sc := newStmtCache(2)
	sc.put("SELECT 1")
	sc.put("SELECT 2")

	sc.remove("SELECT 1")
	_, ok := sc.lookup("SELECT 1")
	require.False(t, ok)

	// removing frees the slot
	_, evicted := sc.put("SELECT 3")
	require.Empty(t, evicted)

	sc.remove("never cached")
}

func TestStmtCacheDisabled(t *testing.T) {
	sc := newStmtCache(0)
	require.False(t, sc.enabled())
}

func TestStatementNames(t *testing.T) {
	require.Equal(t, statementName("SELECT 1"), statementName("SELECT 1"))
	require.NotEqual(t, statementName("SELECT 1"), statementName("SELECT 2"))
	require.True(t, strings.HasPrefix(statementName("SELECT 1"), "pgc_"))

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		name := oneShotStatementName()
		require.False(t, seen[name], fmt.Sprintf("duplicate one-shot name %s", name))
		seen[name] = true
	}
}
