package ecommerce

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/marketsync/backend/internal/domain/integration"
)

// maxFanOut bounds concurrent per-item requests inside one chunk
const maxFanOut = 20

// Detail is a hydrated upstream record
type Detail interface {
	DetailID() string
	IsCancelled() bool
}

// ChunkFunc fetches every id of a chunk in one request
type ChunkFunc[T Detail] func(ctx context.Context, ids []string) ([]T, error)

// ItemFunc fetches a single id
type ItemFunc[T Detail] func(ctx context.Context, id string) (T, error)

// SinkFunc receives the items of each completed chunk
type SinkFunc[T Detail] func(ctx context.Context, items []T) error

// BatchConfig holds the chunking limits of one endpoint
type BatchConfig struct {
	BatchSize int
	Pause     time.Duration
	FanOut    int
}

// BatchResult is the outcome of a batch fetch
type BatchResult[T Detail] struct {
	Items    []T
	Failures []integration.ItemFailure
	Chunks   int
	// Cancelled counts the items dropped for being cancelled upstream;
	// Dropped holds them so callers can retire rows stored earlier
	Cancelled int
	Dropped   []T
}

// BatchFetcher hydrates identifiers in sequential chunks
type BatchFetcher[T Detail] struct {
	config BatchConfig
	clock  Clock
	logger *zap.Logger
}

// NewBatchFetcher creates a BatchFetcher
func NewBatchFetcher[T Detail](config BatchConfig, clock Clock, logger *zap.Logger) *BatchFetcher[T] {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.FanOut <= 0 || config.FanOut > maxFanOut {
		config.FanOut = maxFanOut
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchFetcher[T]{config: config, clock: clockOrSystem(clock), logger: logger}
}

// Chunk splits ids into consecutive slices of at most size
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// FetchChunks requests each chunk with one call. A 404 counts as an empty
// chunk. A 413 splits the chunk in half and requests both halves instead.
// A *integration.PartialError keeps the returned items and fails only the ids
// it names. Other errors fail every id of the chunk, except
// ErrUnauthenticated which stops the run.
func (f *BatchFetcher[T]) FetchChunks(ctx context.Context, ids []string, fetch ChunkFunc[T], sink SinkFunc[T]) (*BatchResult[T], error) {
	return f.run(ctx, ids, func(ctx context.Context, chunk []string, result *BatchResult[T]) ([]T, error) {
		return f.fetchChunk(ctx, chunk, fetch, result)
	}, sink)
}

// FetchEach requests every id of a chunk individually with bounded fan-out
func (f *BatchFetcher[T]) FetchEach(ctx context.Context, ids []string, fetch ItemFunc[T], sink SinkFunc[T]) (*BatchResult[T], error) {
	return f.run(ctx, ids, func(ctx context.Context, chunk []string, result *BatchResult[T]) ([]T, error) {
		return f.fetchEach(ctx, chunk, fetch, result)
	}, sink)
}

type chunkRunner[T Detail] func(ctx context.Context, chunk []string, result *BatchResult[T]) ([]T, error)

func (f *BatchFetcher[T]) run(ctx context.Context, ids []string, runChunk chunkRunner[T], sink SinkFunc[T]) (*BatchResult[T], error) {
	result := &BatchResult[T]{}

	for i, chunk := range Chunk(ids, f.config.BatchSize) {
		if i > 0 {
			if err := f.clock.Sleep(ctx, f.config.Pause); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		items, err := runChunk(ctx, chunk, result)
		if err != nil {
			return result, err
		}
		result.Chunks++

		kept := items[:0]
		for _, item := range items {
			if item.IsCancelled() {
				result.Cancelled++
				result.Dropped = append(result.Dropped, item)
				continue
			}
			kept = append(kept, item)
		}
		result.Items = append(result.Items, kept...)

		f.logger.Debug("Batch chunk fetched",
			zap.Int("batch", i+1),
			zap.Int("requested", len(chunk)),
			zap.Int("received", len(kept)),
		)

		if sink != nil && len(kept) > 0 {
			if err := sink(ctx, kept); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func (f *BatchFetcher[T]) fetchChunk(ctx context.Context, chunk []string, fetch ChunkFunc[T], result *BatchResult[T]) ([]T, error) {
	items, err := fetch(ctx, chunk)
	if failures, ok := integration.AsPartial(err); ok {
		result.Failures = append(result.Failures, failures...)
		return items, nil
	}
	switch {
	case err == nil:
		return items, nil
	case errors.Is(err, integration.ErrNotFound):
		return nil, nil
	case errors.Is(err, integration.ErrUnauthenticated), ctx.Err() != nil:
		return nil, err
	case errors.Is(err, integration.ErrBatchTooLarge) && len(chunk) > 1:
		half := len(chunk) / 2
		f.logger.Warn("Batch rejected as too large, splitting",
			zap.Int("size", len(chunk)),
			zap.Int("half", half),
		)
		left, err := f.fetchChunk(ctx, chunk[:half], fetch, result)
		if err != nil {
			return left, err
		}
		right, err := f.fetchChunk(ctx, chunk[half:], fetch, result)
		return append(left, right...), err
	default:
		for _, id := range chunk {
			result.Failures = append(result.Failures, integration.NewItemFailure(id, err))
		}
		return nil, nil
	}
}

func (f *BatchFetcher[T]) fetchEach(ctx context.Context, chunk []string, fetch ItemFunc[T], result *BatchResult[T]) ([]T, error) {
	var (
		mu       sync.Mutex
		items    = make([]T, len(chunk))
		found    = make([]bool, len(chunk))
		failures []integration.ItemFailure
	)

	var g errgroup.Group
	g.SetLimit(f.config.FanOut)
	for i, id := range chunk {
		g.Go(func() error {
			item, err := fetch(ctx, id)
			switch {
			case err == nil:
				items[i] = item
				found[i] = true
			case errors.Is(err, integration.ErrNotFound):
			case errors.Is(err, integration.ErrUnauthenticated):
				return err
			default:
				mu.Lock()
				failures = append(failures, integration.NewItemFailure(id, err))
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()

	result.Failures = append(result.Failures, failures...)
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	out := make([]T, 0, len(chunk))
	for i := range chunk {
		if found[i] {
			out = append(out, items[i])
		}
	}
	return out, nil
}
