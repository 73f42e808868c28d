package tracex

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestRegistryPlaceholderIsInvisible(t *testing.T) {
	r := newRegistry()
	e, ok := r.reserve("a", time.Now())
	require.True(t, ok)

	_, ok = r.load("a")
	assert.False(t, ok)
	assert.Zero(t, r.len())

	_, ok = r.reserve("a", time.Now())
	assert.False(t, ok, "second reserve must lose")

	span := noop.Span{}
	ok, _ = r.commit("a", e, span)
	require.True(t, ok)
	got, ok := r.load("a")
	require.True(t, ok)
	assert.Equal(t, span, got)
	assert.Equal(t, 1, r.len())
}

func TestRegistryRemoveOnce(t *testing.T) {
	r := newRegistry()
	e, _ := r.reserve("a", time.Now())
	r.commit("a", e, noop.Span{})

	_, ok := r.remove("a", nil)
	assert.True(t, ok)
	_, ok = r.remove("a", nil)
	assert.False(t, ok)
}

func TestRegistryCommitAfterRemove(t *testing.T) {
	r := newRegistry()
	e, _ := r.reserve("a", time.Now())

	_, ok := r.remove("a", assert.AnError)
	assert.False(t, ok, "placeholder has no span to hand out")
	ok, endErr := r.commit("a", e, noop.Span{})
	assert.False(t, ok)
	assert.ErrorIs(t, endErr, assert.AnError)
	_, ok = r.load("a")
	assert.False(t, ok)
}

func TestRegistryCommitAfterReserveAgain(t *testing.T) {
	r := newRegistry()
	e, _ := r.reserve("a", time.Now())
	r.remove("a", nil)
	_, ok := r.reserve("a", time.Now())
	require.True(t, ok)

	ok, endErr := r.commit("a", e, noop.Span{})
	assert.False(t, ok)
	assert.NoError(t, endErr)
}

func TestRegistryWaitForCreation(t *testing.T) {
	r := newRegistry()
	e, _ := r.reserve("a", time.Now())

	got := make(chan bool, 1)
	go func() {
		_, ok := r.wait("a")
		got <- ok
	}()
	r.commit("a", e, noop.Span{})

	select {
	case ok := <-got:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after commit")
	}

	_, ok := r.wait("missing")
	assert.False(t, ok)

	e2, _ := r.reserve("b", time.Now())
	r.release("b", e2)
	_, ok = r.wait("b")
	assert.False(t, ok)
}

func TestRegistryRelease(t *testing.T) {
	r := newRegistry()
	e, _ := r.reserve("a", time.Now())
	r.release("a", e)

	_, ok := r.reserve("a", time.Now())
	assert.True(t, ok)
}

func TestRegistryConcurrentReserve(t *testing.T) {
	r := newRegistry()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.reserve("same", time.Now()); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestRegistryRemoveOlder(t *testing.T) {
	r := newRegistry()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old, _ := r.reserve("old", base)
	r.commit("old", old, noop.Span{})
	young, _ := r.reserve("young", base.Add(time.Minute))
	r.commit("young", young, noop.Span{})
	r.reserve("pending", base)

	got := r.removeOlder(base.Add(30 * time.Second))
	assert.Len(t, got, 1)
	_, ok := r.load("young")
	assert.True(t, ok)

	assert.Len(t, r.drain(), 1)
	assert.Zero(t, r.len())
}
