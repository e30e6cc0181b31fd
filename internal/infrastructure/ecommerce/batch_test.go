package ecommerce

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsync/backend/internal/domain/integration"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%02d", i)
	}
	return ids
}

func echoChunk(sizes *[]int) ChunkFunc[testDetail] {
	return func(ctx context.Context, ids []string) ([]testDetail, error) {
		*sizes = append(*sizes, len(ids))
		out := make([]testDetail, len(ids))
		for i, id := range ids {
			out[i] = testDetail{id: id}
		}
		return out, nil
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		chunks  int
	}{
		{0, 3, 0},
		{1, 3, 1},
		{3, 3, 1},
		{7, 3, 3},
		{100, 50, 2},
		{101, 50, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.n, tt.size), func(t *testing.T) {
			chunks := Chunk(makeIDs(tt.n), tt.size)
			assert.Len(t, chunks, tt.chunks)
			total := 0
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), tt.size)
				total += len(c)
			}
			assert.Equal(t, tt.n, total)
		})
	}
}

func TestBatchFetcher_FetchChunks(t *testing.T) {
	clock := newFakeClock()
	f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 3, Pause: 2 * time.Second}, clock, nil)

	var sizes []int
	var sunk []string
	result, err := f.FetchChunks(context.Background(), makeIDs(7), echoChunk(&sizes), func(ctx context.Context, items []testDetail) error {
		for _, it := range items {
			sunk = append(sunk, it.id)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, 3, result.Chunks)
	assert.Len(t, result.Items, 7)
	assert.Equal(t, makeIDs(7), sunk)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestBatchFetcher_DropsCancelled(t *testing.T) {
	f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 10}, newFakeClock(), nil)

	result, err := f.FetchChunks(context.Background(), []string{"a", "b", "c"}, func(ctx context.Context, ids []string) ([]testDetail, error) {
		return []testDetail{{id: "a"}, {id: "b", cancelled: true}, {id: "c"}}, nil
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []testDetail{{id: "a"}, {id: "c"}}, result.Items)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, []testDetail{{id: "b", cancelled: true}}, result.Dropped)
}

func TestBatchFetcher_ChunkErrors(t *testing.T) {
	t.Run("not found is empty", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 2}, newFakeClock(), nil)
		result, err := f.FetchChunks(context.Background(), makeIDs(4), func(ctx context.Context, ids []string) ([]testDetail, error) {
			if ids[0] == "id-00" {
				return nil, integration.ErrNotFound
			}
			return []testDetail{{id: ids[0]}}, nil
		}, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
		assert.Empty(t, result.Failures)
	})

	t.Run("other errors fail the chunk ids only", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 2}, newFakeClock(), nil)
		var sizes []int
		echo := echoChunk(&sizes)
		result, err := f.FetchChunks(context.Background(), makeIDs(6), func(ctx context.Context, ids []string) ([]testDetail, error) {
			if ids[0] == "id-02" {
				return nil, integration.NewUpstreamError(500, "boom")
			}
			return echo(ctx, ids)
		}, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 4)
		require.Len(t, result.Failures, 2)
		assert.Equal(t, "id-02", result.Failures[0].ID)
		assert.Equal(t, "id-03", result.Failures[1].ID)
		assert.ErrorIs(t, result.Failures[0].Err, integration.ErrUpstream)
	})

	t.Run("too large splits the chunk", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 8}, newFakeClock(), nil)
		var sizes []int
		echo := echoChunk(&sizes)
		result, err := f.FetchChunks(context.Background(), makeIDs(8), func(ctx context.Context, ids []string) ([]testDetail, error) {
			if len(ids) > 2 {
				return nil, integration.ErrBatchTooLarge
			}
			return echo(ctx, ids)
		}, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 8)
		assert.Equal(t, []int{2, 2, 2, 2}, sizes)
	})

	t.Run("too large on a single id fails that id", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 4}, newFakeClock(), nil)
		var sizes []int
		echo := echoChunk(&sizes)
		result, err := f.FetchChunks(context.Background(), makeIDs(4), func(ctx context.Context, ids []string) ([]testDetail, error) {
			for _, id := range ids {
				if id == "id-02" {
					return nil, integration.ErrBatchTooLarge
				}
			}
			return echo(ctx, ids)
		}, nil)
		require.NoError(t, err)
		assert.Len(t, result.Items, 3)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "id-02", result.Failures[0].ID)
		assert.ErrorIs(t, result.Failures[0].Err, integration.ErrBatchTooLarge)
	})

	t.Run("partial error keeps items and fails named ids", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 3}, newFakeClock(), nil)
		result, err := f.FetchChunks(context.Background(), makeIDs(3), func(ctx context.Context, ids []string) ([]testDetail, error) {
			return []testDetail{{id: ids[0]}, {id: ids[2]}}, &integration.PartialError{
				Failures: []integration.ItemFailure{integration.NewItemFailure(ids[1], integration.ErrAggregation)},
			}
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, []testDetail{{id: "id-00"}, {id: "id-02"}}, result.Items)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, "id-01", result.Failures[0].ID)
		assert.ErrorIs(t, result.Failures[0].Err, integration.ErrAggregation)
	})

	t.Run("unauthenticated stops the run", func(t *testing.T) {
		f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 2}, newFakeClock(), nil)
		calls := 0
		_, err := f.FetchChunks(context.Background(), makeIDs(6), func(ctx context.Context, ids []string) ([]testDetail, error) {
			calls++
			return nil, integration.ErrUnauthenticated
		}, nil)
		assert.ErrorIs(t, err, integration.ErrUnauthenticated)
		assert.Equal(t, 1, calls)
	})
}

func TestBatchFetcher_CancelBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 2}, newFakeClock(), nil)

	var sizes []int
	sinks := 0
	result, err := f.FetchChunks(ctx, makeIDs(6), echoChunk(&sizes), func(ctx context.Context, items []testDetail) error {
		sinks++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sinks)
	assert.Equal(t, 1, result.Chunks)
	assert.Len(t, result.Items, 2, "completed chunks stay committed")
}

func TestBatchFetcher_FetchEach(t *testing.T) {
	f := NewBatchFetcher[testDetail](BatchConfig{BatchSize: 10, FanOut: 3}, newFakeClock(), nil)

	var (
		inFlight int32
		peak     int32
		mu       sync.Mutex
	)
	result, err := f.FetchEach(context.Background(), makeIDs(25), func(ctx context.Context, id string) (testDetail, error) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)

		switch id {
		case "id-05":
			return testDetail{}, integration.ErrNotFound
		case "id-07":
			return testDetail{}, integration.NewUpstreamError(500, "")
		case "id-09":
			return testDetail{id: id, cancelled: true}, nil
		}
		return testDetail{id: id}, nil
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Chunks)
	assert.Len(t, result.Items, 22)
	assert.Equal(t, 1, result.Cancelled)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "id-07", result.Failures[0].ID)
	assert.LessOrEqual(t, peak, int32(3))
	// Input order is preserved
	assert.Equal(t, "id-00", result.Items[0].id)
	assert.Equal(t, "id-24", result.Items[len(result.Items)-1].id)
}

func TestBatchFetcher_FanOutIsBounded(t *testing.T) {
	f := NewBatchFetcher[testDetail](BatchConfig{FanOut: 500}, newFakeClock(), nil)
	assert.Equal(t, maxFanOut, f.config.FanOut)
}
