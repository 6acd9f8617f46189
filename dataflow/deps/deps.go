// Package deps implements the dependency-limited topological scheduler
// (spec.md §4.4, C4): given a node count and a set of (from, to) pairs, it
// returns a processing order consistent with those pairs, or reports a
// cycle.
package deps

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CycleError reports that no independent node remained while dependency
// pairs were still outstanding.
type CycleError struct {
	Remaining []int
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Remaining))
	for i, id := range e.Remaining {
		ids[i] = strconv.Itoa(id)
	}
	return "deps: cyclic dependencies amongst " + strings.Join(ids, ", ")
}

// Pair is a single (from, to) dependency: from must precede to.
type Pair [2]int

// Order returns a permutation of 0..n-1 such that for every pair (a, b) in
// pairs, a precedes b. Nodes that appear in no pair are appended after all
// connected nodes, in unspecified order.
//
// The algorithm is the iterative Kahn-style reduction of spec.md §4.4:
// repeatedly peel off the nodes that currently appear only on the
// right-hand side of the remaining pairs (no further unresolved
// predecessors), append whichever left-hand nodes become fully resolved as
// a result, and continue until no pairs remain.
func Order(n int, pairs []Pair) ([]int, error) {
	order, err := dependencyOrder(pairs)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if id >= n {
			return nil, fmt.Errorf("deps: dependency %d is outside the range of %d nodes", id, n)
		}
	}

	inOrder := make(map[int]bool, len(order))
	for _, id := range order {
		inOrder[id] = true
	}
	for i := 0; i < n; i++ {
		if !inOrder[i] {
			order = append(order, i)
		}
	}
	return order, nil
}

func dependencyOrder(pairs []Pair) ([]int, error) {
	var order []int
	remaining := append([]Pair(nil), pairs...)

	for len(remaining) > 0 {
		left := intSet{}
		right := intSet{}
		for _, p := range remaining {
			left[p[0]] = true
			right[p[1]] = true
		}

		independent := right.minus(left)
		if len(independent) == 0 {
			cycle := left.sortedKeys()
			return nil, &CycleError{Remaining: cycle}
		}

		dependent := intSet{}
		var kept []Pair
		for _, p := range remaining {
			if independent[p[1]] {
				dependent[p[0]] = true
			} else {
				kept = append(kept, p)
			}
		}
		remaining = kept

		var resolved intSet
		if len(remaining) == 0 {
			resolved = dependent
		} else {
			newLeft := intSet{}
			for _, p := range remaining {
				newLeft[p[0]] = true
			}
			resolved = dependent.minus(newLeft)
		}

		order = append(order, resolved.sortedKeys()...)
	}

	// The reduction above appends resolved (settled) nodes in dependency
	// order from the leaves of the "right" side inward, so the final
	// order must be reversed to get a valid from-before-to sequence.
	reverse(order)
	return order, nil
}

// ScopedOrder returns the processing order restricted to the nodes required
// to reach target, walking wires backward from it. If target has no
// dependencies, the order is just [target].
func ScopedOrder(target int, wires []Pair) ([]int, error) {
	predecessorsOf := make(map[int][]int)
	for _, w := range wires {
		predecessorsOf[w[1]] = append(predecessorsOf[w[1]], w[0])
	}

	var pairs []Pair
	remaining := []int{target}
	processed := intSet{}
	for len(remaining) > 0 {
		n := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]
		if processed[n] {
			continue
		}
		processed[n] = true

		for _, src := range predecessorsOf[n] {
			pairs = append(pairs, Pair{src, n})
			if !processed[src] {
				remaining = append(remaining, src)
			}
		}
	}

	if len(pairs) == 0 {
		return []int{target}, nil
	}

	// Unlike Order, the result must be restricted to the backward-reachable
	// set: padding in every node up to the highest index in play (as Order
	// does for its "nodes that appear in no pair" case) would pull in
	// unrelated, independent nodes that merely happen to share the template's
	// index range, violating the "no more than the backward-reachable set"
	// invariant (spec.md §8). The target itself only ever appears on the
	// right-hand side of pairs, so dependencyOrder never emits it; it goes last.
	order, err := dependencyOrder(pairs)
	if err != nil {
		return nil, err
	}
	return append(order, target), nil
}

type intSet map[int]bool

func (s intSet) minus(other intSet) intSet {
	out := intSet{}
	for k := range s {
		if !other[k] {
			out[k] = true
		}
	}
	return out
}

func (s intSet) sortedKeys() []int {
	keys := make([]int, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func reverse(xs []int) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
