// ABOUTME: Tests for the client registry.
// ABOUTME: Covers upsert semantics, liveness touches, pruning, and concurrent access.

package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droverlabs/drover/internal/protocol"
)

func testInfo(host string) protocol.SystemInfo {
	return protocol.SystemInfo{Hostname: host, Username: "ana", OSType: "Linux"}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	reg := New()

	existed := reg.Upsert("wk-01", testInfo("first"))
	assert.False(t, existed)
	assert.Equal(t, 1, reg.Len())

	existed = reg.Upsert("wk-01", testInfo("second"))
	assert.True(t, existed)
	assert.Equal(t, 1, reg.Len(), "re-registration must not grow the registry")

	entry, ok := reg.Get("wk-01")
	require.True(t, ok)
	assert.Equal(t, "second", entry.Info.Hostname, "last writer wins")
	assert.False(t, entry.LastSeen.IsZero())
}

func TestTouchOnlyKnownClients(t *testing.T) {
	reg := New()
	reg.Upsert("wk-01", testInfo("host"))

	before, _ := reg.Get("wk-01")
	time.Sleep(5 * time.Millisecond)

	assert.True(t, reg.Touch("wk-01"))
	after, _ := reg.Get("wk-01")
	assert.True(t, after.LastSeen.After(before.LastSeen))
	assert.Equal(t, before.RegisteredAt, after.RegisteredAt, "touch must not move RegisteredAt")

	assert.False(t, reg.Touch("ghost"))
	assert.Equal(t, 1, reg.Len(), "touch must never create entries")
}

func TestSnapshotSortedAndDetached(t *testing.T) {
	reg := New()
	reg.Upsert("zeta", testInfo("z"))
	reg.Upsert("alpha", testInfo("a"))
	reg.Upsert("mid", testInfo("m"))

	entries := reg.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{entries[0].ID, entries[1].ID, entries[2].ID})

	// Mutating the snapshot must not touch the registry.
	entries[0].Info.Hostname = "mutated"
	got, _ := reg.Get("alpha")
	assert.Equal(t, "a", got.Info.Hostname)
}

func TestPruneRemovesOnlyStaleEntries(t *testing.T) {
	reg := New()
	reg.Upsert("fresh", testInfo("f"))
	reg.Upsert("stale", testInfo("s"))

	// Nothing is older than a cutoff in the past.
	assert.Empty(t, reg.Prune(time.Now().Add(-time.Hour)))
	assert.Equal(t, 2, reg.Len())

	time.Sleep(5 * time.Millisecond)
	reg.Touch("fresh")

	removed := reg.Prune(time.Now().Add(-4 * time.Millisecond))
	assert.Equal(t, []string{"stale"}, removed)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("fresh")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	reg := New()
	reg.Upsert("wk-01", testInfo("h"))

	assert.True(t, reg.Remove("wk-01"))
	assert.False(t, reg.Remove("wk-01"))
	assert.Equal(t, 0, reg.Len())
}

func TestConcurrentUpsertsAndReads(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", n%4)
			for j := 0; j < 100; j++ {
				reg.Upsert(id, testInfo("host"))
				reg.Touch(id)
				reg.Snapshot()
				reg.Get(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, reg.Len())
}
