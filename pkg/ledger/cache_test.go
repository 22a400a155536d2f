package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyOf(key int) func() int {
	return func() int { return key }
}

func constFetch(value string) Fetch[int, string] {
	return func(ctx context.Context, key int) (string, error) {
		return value, nil
	}
}

func TestCache_CommitsValueWithKey(t *testing.T) {
	// given
	var committedKeys []int
	cache := NewCache("test", func(key int, value string) {
		committedKeys = append(committedKeys, key)
	})

	// when
	committed, err := cache.Materialize(context.Background(), keyOf(7), constFetch("seven"))

	// then
	require.NoError(t, err)
	assert.True(t, committed)
	value, key, ok := cache.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, "seven", value)
	assert.Equal(t, 7, key)
	assert.Equal(t, []int{7}, committedKeys)
}

func TestCache_SnapshotBeforeFirstCommit(t *testing.T) {
	cache := NewCache[int, string]("test", nil)

	_, _, ok := cache.Snapshot()

	assert.False(t, ok)
}

func TestCache_StaleResponseIsDiscarded(t *testing.T) {
	// given a slow first request overtaken by a second one
	cache := NewCache[int, string]("test", nil)
	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(ctx context.Context, key int) (string, error) {
		close(started)
		<-release
		return "old", nil
	}

	var wg sync.WaitGroup
	var slowCommitted bool
	var slowErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowCommitted, slowErr = cache.Materialize(context.Background(), keyOf(1), slow)
	}()
	<-started

	// when
	fastCommitted, fastErr := cache.Materialize(context.Background(), keyOf(2), constFetch("new"))
	close(release)
	wg.Wait()

	// then
	require.NoError(t, fastErr)
	assert.True(t, fastCommitted)
	require.NoError(t, slowErr)
	assert.False(t, slowCommitted)

	value, key, _ := cache.Snapshot()
	assert.Equal(t, "new", value)
	assert.Equal(t, 2, key)
	issued, committed := cache.Sequence()
	assert.Equal(t, uint64(2), issued)
	assert.Equal(t, uint64(2), committed)
}

func TestCache_FailureKeepsPreviousValue(t *testing.T) {
	// given
	cache := NewCache[int, string]("test", nil)
	_, err := cache.Materialize(context.Background(), keyOf(1), constFetch("good"))
	require.NoError(t, err)
	boom := errors.New("connection reset")

	// when
	committed, err := cache.Materialize(context.Background(), keyOf(2), func(ctx context.Context, key int) (string, error) {
		return "", boom
	})

	// then
	assert.False(t, committed)
	assert.ErrorIs(t, err, ErrTransientFetch)
	assert.ErrorIs(t, err, boom)
	value, key, ok := cache.Snapshot()
	assert.True(t, ok)
	assert.Equal(t, "good", value)
	assert.Equal(t, 1, key)
	assert.ErrorIs(t, cache.LastError(), boom)
}

func TestCache_LaterCommitClearsLastError(t *testing.T) {
	// given
	cache := NewCache[int, string]("test", nil)
	_, _ = cache.Materialize(context.Background(), keyOf(1), func(ctx context.Context, key int) (string, error) {
		return "", errors.New("timeout")
	})

	// when
	_, err := cache.Materialize(context.Background(), keyOf(2), constFetch("ok"))

	// then
	require.NoError(t, err)
	assert.NoError(t, cache.LastError())
}

func TestCache_SupersededFailureIsDiscarded(t *testing.T) {
	// given a failing request overtaken by a successful one
	cache := NewCache[int, string]("test", nil)
	started := make(chan struct{})
	release := make(chan struct{})
	failing := func(ctx context.Context, key int) (string, error) {
		close(started)
		<-release
		return "", errors.New("late failure")
	}

	var wg sync.WaitGroup
	var failingErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, failingErr = cache.Materialize(context.Background(), keyOf(1), failing)
	}()
	<-started

	// when
	_, err := cache.Materialize(context.Background(), keyOf(2), constFetch("fresh"))
	close(release)
	wg.Wait()

	// then
	require.NoError(t, err)
	assert.NoError(t, failingErr)
	assert.NoError(t, cache.LastError())
	value, _, _ := cache.Snapshot()
	assert.Equal(t, "fresh", value)
}

func TestCache_KeyIsReadWhenTheRequestIsIssued(t *testing.T) {
	// given a slow request issued while the key source says "old"
	source := "old"
	var sourceMu sync.Mutex
	readSource := func() string {
		sourceMu.Lock()
		defer sourceMu.Unlock()
		return source
	}
	cache := NewCache[string, string]("test", nil)
	entered := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = cache.Materialize(context.Background(), readSource, func(ctx context.Context, key string) (string, error) {
			close(entered)
			<-release
			return "value for " + key, nil
		})
	}()
	<-entered

	// when the source changes and a second request is issued
	sourceMu.Lock()
	source = "new"
	sourceMu.Unlock()
	committed, err := cache.Materialize(context.Background(), readSource, func(ctx context.Context, key string) (string, error) {
		return "value for " + key, nil
	})
	close(release)
	wg.Wait()

	// then
	require.NoError(t, err)
	assert.True(t, committed)
	value, key, ok := cache.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "new", key)
	assert.Equal(t, "value for new", value)
}
