// Package binpack implements greedy weighted bin packing with a bounded
// lookback window over open bins.
package binpack

import (
	"iter"
	"slices"
)

// Options controls a packing pass.
type Options struct {
	// TargetWeight is the capacity of a single bin.
	TargetWeight int64
	// Lookback is how many bins stay open at once. Values below 1 mean 1.
	Lookback int
	// LargestBinFirst closes the heaviest open bin when the window overflows
	// instead of the least recently touched one.
	LargestBinFirst bool
}

type bin[T any] struct {
	items  []T
	weight int64
}

func (b *bin[T]) canAdd(w, target int64) bool {
	return b.weight+w <= target
}

func (b *bin[T]) add(item T, w int64) {
	b.items = append(b.items, item)
	b.weight += w
}

// Pack lazily packs items into bins. Items are pulled one at a time and each
// bin is yielded as soon as it is closed, so breaking out of the returned
// sequence stops consuming items.
//
// An item heavier than TargetWeight gets a bin of its own and nothing is ever
// added to that bin afterwards.
func Pack[T any](items iter.Seq[T], weight func(T) int64, opts Options) iter.Seq[[]T] {
	lookback := max(opts.Lookback, 1)

	return func(yield func([]T) bool) {
		// open is ordered by last touch, most recent last.
		var open []*bin[T]

		for item := range items {
			w := max(weight(item), 0)

			if i := findBin(open, w, opts.TargetWeight); i >= 0 {
				open[i].add(item, w)
				touch(open, i)
				continue
			}

			nb := &bin[T]{}
			nb.add(item, w)
			open = append(open, nb)

			if len(open) > lookback {
				i := 0
				if opts.LargestBinFirst {
					i = largest(open)
				}
				closed := open[i]
				open = slices.Delete(open, i, i+1)
				if !yield(closed.items) {
					return
				}
			}
		}

		for _, b := range open {
			if !yield(b.items) {
				return
			}
		}
	}
}

// PackSlice packs a slice eagerly.
func PackSlice[T any](items []T, weight func(T) int64, opts Options) [][]T {
	return slices.Collect(Pack(slices.Values(items), weight, opts))
}

// findBin returns the most recently touched open bin that can take w, or -1.
func findBin[T any](open []*bin[T], w, target int64) int {
	for i := len(open) - 1; i >= 0; i-- {
		if open[i].canAdd(w, target) {
			return i
		}
	}
	return -1
}

// touch moves open[i] to the most recently used position.
func touch[T any](open []*bin[T], i int) {
	b := open[i]
	copy(open[i:], open[i+1:])
	open[len(open)-1] = b
}

func largest[T any](open []*bin[T]) int {
	idx := 0
	for i, b := range open {
		if b.weight > open[idx].weight {
			idx = i
		}
	}
	return idx
}
