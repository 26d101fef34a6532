// Package reconcile implements the "regenerate N things, clean up what is no
// longer produced" pattern: a set difference between the previous and the
// current run, and a bounded sweep that applies a removal action to each
// stale item.
package reconcile

import (
	"cmp"
	"context"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"
)

// Stale returns previous minus current. Nil sets are treated as empty.
//
// The two sets may come from different mapset constructors (thread-safe or
// not), so membership is checked element by element rather than through
// Set.Difference, which requires both operands to share an implementation.
func Stale[T comparable](previous, current mapset.Set[T]) mapset.Set[T] {
	stale := mapset.NewThreadUnsafeSet[T]()
	if previous == nil {
		return stale
	}
	previous.Each(func(v T) bool {
		if current == nil || !current.Contains(v) {
			stale.Add(v)
		}
		return false
	})
	return stale
}

// Sorted returns the elements of s in ascending order.
func Sorted[T cmp.Ordered](s mapset.Set[T]) []T {
	if s == nil {
		return []T{}
	}
	items := s.ToSlice()
	slices.Sort(items)
	return items
}

// Sweep applies action to every item with at most workers calls in flight.
// Results are index-aligned with items. Actions report their own failures
// through R; Sweep returns an error only when ctx ends before the sweep
// completes, and items that were never started keep zero-value results.
func Sweep[T, R any](ctx context.Context, items []T, workers int, action func(context.Context, T) R) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, ctx.Err()
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, item := range items {
		if err := gctx.Err(); err != nil {
			_ = g.Wait()
			return results, err
		}
		g.Go(func() error {
			results[i] = action(gctx, item)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
