package polycache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/polycache/provider/memory"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

func TestUndoRedoRoundTrip(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(t, func(o *Options[string]) { o.Listeners = []Listener{rec.listen} })
	ctx := context.Background()

	mustSet(t, m, "k", "v1")
	mustSet(t, m, "k", "v2")

	ok, err := m.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	v, hit := m.Get("k")
	require.True(t, hit)
	assert.Equal(t, "v1", v)

	ok, err = m.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	_, hit = m.Get("k")
	assert.False(t, hit)
	assert.Equal(t, 0, m.Len())

	ok, err = m.Undo(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty undo stack")

	for _, want := range []string{"v1", "v2"} {
		ok, err = m.Redo(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		v, hit = m.Get("k")
		require.True(t, hit)
		assert.Equal(t, want, v)
	}

	ok, err = m.Redo(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "empty redo stack")

	assert.Len(t, rec.fields(EventCommandUndone), 2)
	assert.Len(t, rec.fields(EventCommandRedone), 2)
	assert.Equal(t, Fields{"op": "set", "key": "k"}, rec.fields(EventCommandUndone)[0])
}

func TestUndoDeleteRestoresEntryVerbatim(t *testing.T) {
	clk := newFakeClock()
	mem := memory.New()
	m := newTestManager(t, func(o *Options[string]) {
		o.Clock = clk.Now
		o.Store = mem
	})
	ctx := context.Background()

	mustSet(t, m, "k", "v")
	m.Get("k")
	m.Get("k")
	before := *m.items["k"].ent

	require.NoError(t, m.Delete(ctx, "k"))
	assert.Equal(t, 0, mem.Len())

	ok, err := m.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	after := *m.items["k"].ent
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
	assert.Equal(t, before.Frequency, after.Frequency)
	assert.Equal(t, before.InsertSeq, after.InsertSeq)
	assert.Equal(t, before.AccessSeq, after.AccessSeq)
	assert.Equal(t, before.Raw, after.Raw)

	// restored through the write policy
	stored, ok, err := m.Stored(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", stored)

	ok, err = m.Redo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, uint64(2), m.Metrics().Deletes)
}

func TestNewCommandClearsRedo(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	mustSet(t, m, "a", "1")
	mustSet(t, m, "b", "2")
	_, err := m.Undo(ctx)
	require.NoError(t, err)
	require.Len(t, m.redo, 1)

	mustSet(t, m, "c", "3")
	assert.Empty(t, m.redo)

	ok, err := m.Redo(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	_, hit := m.Get("b")
	assert.False(t, hit)
}

func TestUndoUnderWriteBackMarksDirty(t *testing.T) {
	mem := memory.New()
	m := newTestManager(t, func(o *Options[string]) {
		o.Store = mem
		o.WritePolicy = writepolicy.WriteBack{}
	})
	ctx := context.Background()

	mustSet(t, m, "k", "v1")
	_, err := m.Flush(ctx)
	require.NoError(t, err)
	mustSet(t, m, "k", "v2")
	_, err = m.Flush(ctx)
	require.NoError(t, err)

	ok, err := m.Undo(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, m.Metrics().DirtyWritesPending)

	stored, _, err := m.Stored(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", stored, "store lags until flush")

	_, err = m.Flush(ctx)
	require.NoError(t, err)
	stored, _, err = m.Stored(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", stored)
}

func TestUndoEnforcesCapacity(t *testing.T) {
	m := newTestManager(t, func(o *Options[string]) { o.CapacityItems = 2 })
	ctx := context.Background()

	mustSet(t, m, "a", "1")
	require.NoError(t, m.Delete(ctx, "a"))
	mustSet(t, m, "b", "2")
	mustSet(t, m, "c", "3")

	// undo c, undo b: table empty, then undo the delete of a
	for i := 0; i < 3; i++ {
		ok, err := m.Undo(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, m.Len())

	// redo everything back; the table never exceeds two items
	for i := 0; i < 3; i++ {
		_, err := m.Redo(ctx)
		require.NoError(t, err)
		checkInvariants(t, m)
	}
	assert.Equal(t, 2, m.Len())
}

func TestUndoFailureKeepsCommand(t *testing.T) {
	m := newTestManager(t, func(o *Options[string]) {
		o.CapacityItems = 1
		o.Eviction = noVictim{}
	})
	ctx := context.Background()

	mustSet(t, m, "a", "1")
	require.NoError(t, m.Delete(ctx, "a"))
	mustSet(t, m, "b", "2")
	// drop b's command so the delete of a is on top with b still resident
	m.undo = m.undo[:2]

	ok, err := m.Undo(ctx)
	require.ErrorIs(t, err, ErrEvictionBlocked)
	assert.False(t, ok)
	assert.Len(t, m.undo, 2)
	assert.Empty(t, m.redo)
	_, hit := m.Get("b")
	assert.True(t, hit)
	checkInvariants(t, m)
}

func TestHistoryIsBounded(t *testing.T) {
	m := newTestManager(t, func(o *Options[string]) {
		o.MaxHistory = 3
		o.CapacityItems = 10
	})
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		mustSet(t, m, k, "v")
	}
	assert.Len(t, m.undo, 3)

	n := 0
	for {
		ok, err := m.Undo(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, m.Len(), "a and b fell off the history")
}

func TestUnboundedHistory(t *testing.T) {
	m := newTestManager(t, func(o *Options[string]) {
		o.MaxHistory = -1
		o.CapacityItems = 2000
	})
	for i := 0; i < 1500; i++ {
		mustSet(t, m, "k", "v")
	}
	assert.Len(t, m.undo, 1500)
}
