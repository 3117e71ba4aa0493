package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeItem(key, value string, cas uint64) *Item {
	extras := make([]byte, 8)
	k := []byte(key)
	v := []byte(value)
	buf := make([]byte, 24+len(extras)+len(k)+len(v))
	copy(buf[24:], extras)
	copy(buf[24+len(extras):], k)
	copy(buf[24+len(extras)+len(k):], v)
	return NewItem(buf, buf[24:24+len(extras)], buf[24+len(extras):24+len(extras)+len(k)], buf[24+len(extras)+len(k):], 0, cas)
}

func TestSetThenGet(t *testing.T) {
	c := New(1<<20, true, nil)

	err := c.Set(makeItem("foo", "bar", 0))
	require.NoError(t, err)

	item, ok := c.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, "bar", string(item.Value))
}

func TestGetMiss(t *testing.T) {
	c := New(1<<20, true, nil)
	_, ok := c.Get([]byte("absent"))
	assert.False(t, ok)
}

func TestCasMismatchLeavesEntryUnchanged(t *testing.T) {
	c := New(1<<20, true, nil)
	require.NoError(t, c.Set(makeItem("foo", "bar", 42)))

	err := c.Cas(makeItem("foo", "baz", 0xDEADBEEF), 0xDEADBEEF)
	assert.ErrorIs(t, err, ErrKeyExists)

	item, ok := c.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, "bar", string(item.Value))
}

func TestCasMatchSucceeds(t *testing.T) {
	c := New(1<<20, true, nil)
	require.NoError(t, c.Set(makeItem("foo", "bar", 42)))

	require.NoError(t, c.Cas(makeItem("foo", "baz", 42), 42))

	item, ok := c.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, "baz", string(item.Value))
}

func TestDeleteRoundTrip(t *testing.T) {
	c := New(1<<20, true, nil)
	require.NoError(t, c.Set(makeItem("foo", "bar", 0)))

	require.NoError(t, c.Remove([]byte("foo"), 0))

	_, ok := c.Get([]byte("foo"))
	assert.False(t, ok)
}

func TestRemoveMissingKeyIsSuccess(t *testing.T) {
	c := New(1<<20, true, nil)
	assert.NoError(t, c.Remove([]byte("never-existed"), 0))
}

func TestRemoveCasMismatch(t *testing.T) {
	c := New(1<<20, true, nil)
	require.NoError(t, c.Set(makeItem("foo", "bar", 7)))

	err := c.Remove([]byte("foo"), 999)
	assert.ErrorIs(t, err, ErrKeyExists)

	_, ok := c.Get([]byte("foo"))
	assert.True(t, ok, "entry must survive a failed CAS remove")
}

// Eviction reclaims max(2*itemmem, max_bytes/100) bytes, not just
// itemmem, so the test items below are deliberately different sizes:
// the large k1 alone covers the reclaim target for the small k3, so a
// single LRU eviction (not a sweep of everything needed to clear room
// for equal-sized items) is what these tests exercise.
func TestEviction(t *testing.T) {
	c := New(4096, true, nil)

	require.NoError(t, c.Set(makeItem("k1", string(make([]byte, 3000)), 0)))
	require.NoError(t, c.Set(makeItem("k2", string(make([]byte, 1000)), 0)))
	require.NoError(t, c.Set(makeItem("k3", string(make([]byte, 50)), 0)))

	_, ok := c.Get([]byte("k1"))
	assert.False(t, ok, "k1 should have been evicted as LRU")

	_, ok = c.Get([]byte("k2"))
	assert.True(t, ok)

	_, ok = c.Get([]byte("k3"))
	assert.True(t, ok)
}

func TestLRURefreshOnGet(t *testing.T) {
	c := New(4096, true, nil)

	require.NoError(t, c.Set(makeItem("k1", string(make([]byte, 3000)), 0)))
	require.NoError(t, c.Set(makeItem("k2", string(make([]byte, 1000)), 0)))

	_, ok := c.Get([]byte("k1")) // refresh k1 to MRU
	require.True(t, ok)

	require.NoError(t, c.Set(makeItem("k3", string(make([]byte, 50)), 0)))

	_, ok = c.Get([]byte("k2"))
	assert.False(t, ok, "k2 should have been evicted instead of k1")

	_, ok = c.Get([]byte("k1"))
	assert.True(t, ok)
}

func TestOversizeItemRefused(t *testing.T) {
	c := New(1024, true, nil)

	err := c.Set(makeItem("k1", string(make([]byte, 2000)), 0))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, c.Len())
}

func TestSetReplaceRecomputesAccounting(t *testing.T) {
	c := New(1<<20, true, nil)
	require.NoError(t, c.Set(makeItem("k", "short", 0)))
	used1 := c.UsedBytes()

	require.NoError(t, c.Set(makeItem("k", "a-rather-longer-value", 0)))
	used2 := c.UsedBytes()

	assert.Equal(t, 1, c.Len())
	assert.NotEqual(t, used1, used2)
}

func TestSingleThreadedModeSkipsLocking(t *testing.T) {
	c := New(1<<20, false, nil)
	require.Nil(t, c.mu)

	require.NoError(t, c.Set(makeItem("foo", "bar", 0)))
	item, ok := c.Get([]byte("foo"))
	require.True(t, ok)
	assert.Equal(t, "bar", string(item.Value))
}

func TestOnEvictCallbackFires(t *testing.T) {
	var evicted []string
	c := New(4096, true, func(key, value interface{}) {
		evicted = append(evicted, key.(string))
	})

	require.NoError(t, c.Set(makeItem("k1", string(make([]byte, 2000)), 0)))
	require.NoError(t, c.Set(makeItem("k2", string(make([]byte, 2000)), 0)))
	require.NoError(t, c.Set(makeItem("k3", string(make([]byte, 2000)), 0)))

	require.Contains(t, evicted, "k1")
}

func TestInvariantMapAndLRUStayInSync(t *testing.T) {
	c := New(1<<20, true, nil)
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Set(makeItem(string(rune('a'+i%26))+string(rune(i)), "v", 0)))
	}
	assert.Equal(t, len(c.data), c.lru.Len())
	for k, n := range c.data {
		assert.Equal(t, k, string(n.entry.Key))
	}
}
