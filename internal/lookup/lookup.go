// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lookup validates extracted opportunities against internal data.
// The Coordinator fans one lookup per opportunity out in parallel and turns
// every per-item failure into an explicit no-match result, so one bad item
// never affects its siblings.
package lookup

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/bd-research/pkg/types"
)

// DefaultMaxBatch is the number of opportunities looked up when the
// coordinator is not configured otherwise.
const DefaultMaxBatch = 5

// Lookuper runs one auxiliary query for one opportunity.
type Lookuper interface {
	Lookup(ctx context.Context, opp types.Opportunity, sector string) (types.LookupResult, error)
}

// Coordinator runs lookups for a bounded batch of opportunities concurrently.
type Coordinator struct {
	lookuper Lookuper
	maxBatch int
	logger   *zap.Logger
}

// NewCoordinator returns a coordinator that looks up at most maxBatch items
// per call. A non-positive maxBatch uses DefaultMaxBatch.
func NewCoordinator(l Lookuper, maxBatch int, logger *zap.Logger) *Coordinator {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{lookuper: l, maxBatch: maxBatch, logger: logger}
}

// MaxBatch returns the per-call batch bound.
func (c *Coordinator) MaxBatch() int { return c.maxBatch }

// LookupAll looks up the first MaxBatch distinct items in rank order and
// returns their results keyed by title. Items past the bound are not looked
// up and are absent from the map. Later items repeating an earlier title
// are dropped. All lookups start together and are all awaited; a failed or
// panicking lookup yields a no-match result carrying the failure reason.
//
// The call fails only when the batch cannot start: no lookuper, or an item
// with an empty title.
func (c *Coordinator) LookupAll(ctx context.Context, items []types.Opportunity, sector string) (map[string]types.LookupResult, error) {
	if c.lookuper == nil {
		return nil, fmt.Errorf("lookup coordinator has no lookuper")
	}
	for i, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			return nil, fmt.Errorf("item %d has an empty title", i)
		}
	}

	batch := c.batch(items)
	results := make([]types.LookupResult, len(batch))

	// Plain group: one failure must not cancel its siblings.
	var g errgroup.Group
	for i, opp := range batch {
		g.Go(func() error {
			results[i] = c.lookupOne(ctx, opp, sector)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]types.LookupResult, len(batch))
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
		out[r.OpportunityTitle] = r
	}
	c.logger.Info("lookups complete",
		zap.Int("items", len(batch)),
		zap.Int("skipped", len(items)-len(batch)),
		zap.Int("failed", failed))
	return out, nil
}

// batch keeps the first occurrence of each title, up to maxBatch items.
func (c *Coordinator) batch(items []types.Opportunity) []types.Opportunity {
	seen := make(map[string]bool, len(items))
	var out []types.Opportunity
	for _, it := range items {
		if len(out) == c.maxBatch {
			break
		}
		if seen[it.Title] {
			c.logger.Debug("dropping duplicate opportunity title", zap.String("title", it.Title))
			continue
		}
		seen[it.Title] = true
		out = append(out, it)
	}
	return out
}

func (c *Coordinator) lookupOne(ctx context.Context, opp types.Opportunity, sector string) (result types.LookupResult) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("lookup panicked", zap.String("title", opp.Title), zap.Any("panic", rec))
			result = types.NoMatch(opp.Title, fmt.Sprintf("lookup panicked: %v", rec))
		}
	}()

	r, err := c.lookuper.Lookup(ctx, opp, sector)
	if err != nil {
		c.logger.Warn("lookup failed", zap.String("title", opp.Title), zap.Error(err))
		return types.NoMatch(opp.Title, err.Error())
	}
	if len(r.Matches) > 0 {
		return types.Matched(opp.Title, r.Matches)
	}
	return types.NoMatch(opp.Title, r.Failure)
}
