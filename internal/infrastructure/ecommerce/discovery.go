package ecommerce

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/domain/integration"
)

// SyncCursor is the continuation state returned by a listing page
type SyncCursor struct {
	Token string
	More  bool
}

// Page is one page of order identifiers
type Page struct {
	IDs    []string
	Cursor SyncCursor
}

// ListFunc requests one listing page. cursor is empty for the first page.
type ListFunc func(ctx context.Context, field integration.TimeField, window integration.TimeWindow, cursor string, pageSize int) (*Page, error)

// DiscoveryConfig holds pagination limits
type DiscoveryConfig struct {
	PageSize int
	// MaxPages is the page ceiling per time field and sub-window
	MaxPages  int
	PagePause time.Duration
	// MaxWindow splits longer windows into consecutive sub-windows; 0 disables
	MaxWindow time.Duration
}

// DiscoveryResult is the deduplicated identifier set of a discovery run
type DiscoveryResult struct {
	// IDs in first-seen order
	IDs []string
	// PerField counts identifiers returned by each time field, duplicates included
	PerField  map[integration.TimeField]int
	Pages     int
	Truncated bool
}

// Discovery walks a listing endpoint across time fields and merges the results
type Discovery struct {
	config DiscoveryConfig
	clock  Clock
	logger *zap.Logger
}

// NewDiscovery creates a Discovery
func NewDiscovery(config DiscoveryConfig, clock Clock, logger *zap.Logger) *Discovery {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discovery{config: config, clock: clockOrSystem(clock), logger: logger}
}

// Discover lists every identifier in window for each field. Pages are
// requested sequentially with a pause between them; the context is checked
// before every page.
func (d *Discovery) Discover(ctx context.Context, window integration.TimeWindow, fields []integration.TimeField, list ListFunc) (*DiscoveryResult, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		fields = []integration.TimeField{integration.TimeFieldCreated}
	}

	result := &DiscoveryResult{PerField: make(map[integration.TimeField]int, len(fields))}
	seen := make(map[string]struct{})

	for _, field := range fields {
		if !field.IsValid() {
			return nil, fmt.Errorf("discovery: unknown time field %q", field)
		}
		for _, sub := range window.Split(d.config.MaxWindow) {
			truncated, err := d.walk(ctx, field, sub, list, result, seen)
			if err != nil {
				return result, err
			}
			if truncated {
				result.Truncated = true
				d.logger.Warn("Discovery hit page ceiling",
					zap.String("field", string(field)),
					zap.Int("max_pages", d.config.MaxPages),
					zap.Time("from", sub.From),
					zap.Time("to", sub.To),
				)
			}
		}
	}

	d.logger.Debug("Discovery completed",
		zap.Int("ids", len(result.IDs)),
		zap.Int("pages", result.Pages),
		zap.Bool("truncated", result.Truncated),
	)
	return result, nil
}

func (d *Discovery) walk(ctx context.Context, field integration.TimeField, window integration.TimeWindow, list ListFunc, result *DiscoveryResult, seen map[string]struct{}) (bool, error) {
	cursor := ""
	for page := 0; page < d.config.MaxPages; page++ {
		if result.Pages > 0 {
			if err := d.clock.Sleep(ctx, d.config.PagePause); err != nil {
				return false, err
			}
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		p, err := list(ctx, field, window, cursor, d.config.PageSize)
		if err != nil {
			return false, err
		}
		result.Pages++
		result.PerField[field] += len(p.IDs)
		for _, id := range p.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			result.IDs = append(result.IDs, id)
		}

		if !p.Cursor.More {
			return false, nil
		}
		if p.Cursor.Token == cursor {
			d.logger.Warn("Listing returned a repeated cursor",
				zap.String("field", string(field)),
				zap.String("cursor", cursor),
			)
			return true, nil
		}
		cursor = p.Cursor.Token
	}
	return true, nil
}
