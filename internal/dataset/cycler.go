// Package dataset provides the sampling and metadata layer of the training
// pipeline: a fairness-constrained random cycler over a finite item pool and
// the pipe-delimited metadata format produced by preprocessing.
package dataset

import (
	"errors"
	"math/rand"
)

// ErrEmptyPool is returned when a Cycler is constructed over no items.
var ErrEmptyPool = errors.New("dataset: cycler requires a non-empty item pool")

// Cycler draws items from a fixed pool in constrained random order.
//
// For a pool of n items and any run of queries totalling m draws:
//   - each item is returned between m/n and (m-1)/n + 1 times (integer
//     division), and
//   - between two appearances of the same item at most 2*(n-1) other items
//     are drawn.
//
// The pending buffer is always a suffix of one full shuffle of the pool and
// is refilled with a fresh shuffle exactly when it empties.
type Cycler struct {
	pool    []string
	pending []string
	rng     *rand.Rand
}

// NewCycler builds a cycler over items. The pool is copied. A nil rng falls
// back to a fixed-seed source, keeping tests deterministic.
func NewCycler(items []string, rng *rand.Rand) (*Cycler, error) {
	if len(items) == 0 {
		return nil, ErrEmptyPool
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &Cycler{
		pool: append([]string(nil), items...),
		rng:  rng,
	}, nil
}

// Sample returns count items from the pool under the fairness constraints.
// count <= 0 yields an empty slice.
func (c *Cycler) Sample(count int) []string {
	out := make([]string, 0, max(count, 0))

	for count > 0 {
		// Requests of a full pool or more emit whole shuffles first; this
		// keeps the pending buffer a suffix of a single shuffle.
		if count >= len(c.pool) {
			out = append(out, c.shuffled()...)
			count -= len(c.pool)

			continue
		}

		n := min(count, len(c.pending))
		out = append(out, c.pending[:n]...)
		count -= n
		c.pending = c.pending[n:]

		if len(c.pending) == 0 {
			c.pending = c.shuffled()
		}
	}

	return out
}

// Next draws a single item.
func (c *Cycler) Next() string {
	return c.Sample(1)[0]
}

func (c *Cycler) shuffled() []string {
	out := append([]string(nil), c.pool...)
	c.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})

	return out
}
