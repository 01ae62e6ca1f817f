package deferment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"objloader/pkg/core"
	"objloader/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaf(t *testing.T, payload string) *core.Node {
	t.Helper()
	n, err := core.NewNode(core.TypeChunk, nil, []byte(payload))
	require.NoError(t, err)
	return n
}

type stubHint map[types.Hash]*core.Node

func (h stubHint) Peek(id types.Hash) (*core.Node, bool) {
	n, ok := h[id]
	return n, ok
}

func TestDefer_CreatedThenExisting(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	n := newLeaf(t, "a")

	f1, st, err := m.Defer(n.ID())
	require.NoError(t, err)
	assert.Equal(t, DeferCreated, st)

	f2, st, err := m.Defer(n.ID())
	require.NoError(t, err)
	assert.Equal(t, DeferExisting, st)
	assert.Same(t, f1, f2)
	assert.Equal(t, 1, m.Pending())

	ok, err := m.Undefer(core.NewItem(n))
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f1.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n.ID(), got.ID())
	assert.Equal(t, 0, m.Pending())

	// 已 resolve 的条目再次 Defer 仍然是 Existing
	_, st, err = m.Defer(n.ID())
	require.NoError(t, err)
	assert.Equal(t, DeferExisting, st)
}

func TestDefer_CacheHint(t *testing.T) {
	n := newLeaf(t, "cached")
	m := NewManager(Config{Hint: stubHint{n.ID(): n}})
	defer m.Close()

	f, st, err := m.Defer(n.ID())
	require.NoError(t, err)
	assert.Equal(t, DeferCached, st)

	got, ferr, ok := f.Value()
	assert.True(t, ok)
	assert.NoError(t, ferr)
	assert.Equal(t, n.ID(), got.ID())
	assert.Equal(t, 0, m.Pending())

	cached, ok, err := m.Get(n.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, n.ID(), cached.ID())
}

func TestUndefer_Tolerant(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	n := newLeaf(t, "x")

	// 没有 Defer 过
	ok, err := m.Undefer(core.NewItem(n))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = m.Defer(n.ID())
	require.NoError(t, err)
	ok, err = m.Undefer(core.NewItem(n))
	require.NoError(t, err)
	assert.True(t, ok)

	// 重复投递
	ok, err = m.Undefer(core.NewItem(n))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUndefer_IDMismatch(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	n := newLeaf(t, "x")
	_, err := m.Undefer(core.Item{BaseID: "other", Base: n})
	assert.ErrorIs(t, err, core.ErrIDMismatch)
}

func TestFail_AllowsRetry(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	n := newLeaf(t, "y")
	f, _, err := m.Defer(n.ID())
	require.NoError(t, err)

	boom := errors.New("boom")
	ok, err := m.Fail(n.ID(), boom)
	require.NoError(t, err)
	assert.True(t, ok)

	_, werr := f.Wait(context.Background())
	assert.ErrorIs(t, werr, boom)
	assert.Equal(t, 0, m.Len())

	_, st, err := m.Defer(n.ID())
	require.NoError(t, err)
	assert.Equal(t, DeferCreated, st)
}

func TestDefer_AtMostOneCreatedConcurrent(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	id := newLeaf(t, "shared").ID()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, st, err := m.Defer(id)
			if err != nil {
				return
			}
			if st == DeferCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, m.Len())
}

func TestEviction_SizeBound(t *testing.T) {
	nodes := make([]*core.Node, 10)
	for i := range nodes {
		nodes[i] = newLeaf(t, fmt.Sprintf("payload-%02d", i))
	}
	budget := nodes[0].ApproxSize() * 3

	var evicted []types.Hash
	m := NewManager(Config{
		MaxSizeBytes: budget,
		OnEvict:      func(id types.Hash) { evicted = append(evicted, id) },
	})
	defer m.Close()

	for _, n := range nodes {
		_, _, err := m.Defer(n.ID())
		require.NoError(t, err)
	}
	for _, n := range nodes {
		_, err := m.Undefer(core.NewItem(n))
		require.NoError(t, err)
		assert.LessOrEqual(t, m.Size(), budget)
	}

	// 最旧的先被淘汰
	require.NotEmpty(t, evicted)
	assert.Equal(t, nodes[0].ID(), evicted[0])

	_, ok, err := m.Get(nodes[len(nodes)-1].ID())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEviction_PendingNeverEvicted(t *testing.T) {
	m := NewManager(Config{MaxSizeBytes: 1, TTL: 20 * time.Millisecond})
	defer m.Close()

	n := newLeaf(t, "pending")
	_, _, err := m.Defer(n.ID())
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, 1, m.Len())
}

func TestEviction_TTL(t *testing.T) {
	m := NewManager(Config{TTL: 20 * time.Millisecond})
	defer m.Close()

	n := newLeaf(t, "short-lived")
	_, _, err := m.Defer(n.ID())
	require.NoError(t, err)
	_, err = m.Undefer(core.NewItem(n))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return m.Len() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, m.Size())
}

func TestClose_RejectsPendingAndIsIdempotent(t *testing.T) {
	m := NewManager(Config{TTL: time.Minute})

	n := newLeaf(t, "z")
	f, _, err := m.Defer(n.ID())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, werr := f.Wait(context.Background())
	assert.ErrorIs(t, werr, ErrDisposed)

	_, _, err = m.Defer(n.ID())
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = m.Undefer(core.NewItem(n))
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = m.Fail(n.ID(), errors.New("late"))
	assert.ErrorIs(t, err, ErrDisposed)
	_, _, err = m.Get(n.ID())
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	m := NewManager(Config{})
	defer m.Close()

	f, _, err := m.Defer(newLeaf(t, "slow").ID())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
