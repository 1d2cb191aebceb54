// Package depgraph implements a priority-queue based topological sort over
// RelationDescriptions that is stable (input order breaks ties) and
// tolerant of unknown or catalog dependencies.
package depgraph

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dwops/etl-core/internal/etlerrors"
	"github.com/dwops/etl-core/internal/relation"
)

// preloadWorkers bounds the design-loading pool used to preload each
// relation's dependencies from the object store before ordering begins.
// Ordering itself is purely computational and runs single-threaded once
// preloading has joined.
const preloadWorkers = 8

// sortableRelation decorates a RelationDescription with the mutable state
// needed only during ordering. Ephemeral.
type sortableRelation struct {
	identifier   string
	dependencies map[string]struct{}
	order        *int
	tieBreaker   int
	original     *relation.RelationDescription
}

// queueItem is one (priority, tie_breaker, relation) entry in the min-heap.
type queueItem struct {
	priority   int
	tieBreaker int
	rel        *sortableRelation
}

type priorityQueue []*queueItem

func (q priorityQueue) Len() int { return len(q) }
func (q priorityQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].tieBreaker < q[j].tieBreaker
}
func (q priorityQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)   { *q = append(*q, x.(*queueItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// Order produces a list of relations in a valid topological order: for every
// edge a -> b ("a depends on b") present on both sides, order(a) > order(b).
// Among relations with no relative constraint, input order is preserved.
//
// Order fails with etlerrors.ErrCyclicDependency once a popped relation's
// queue priority exceeds 2*N, where N is the number of known relations.
func Order(ctx context.Context, log *slog.Logger, relations []*relation.RelationDescription) ([]*relation.RelationDescription, error) {
	if len(relations) == 0 {
		return nil, nil
	}

	log.Info("pondering evaluation order of relation(s)", slog.Int("count", len(relations)))

	sortables, err := preload(ctx, relations)
	if err != nil {
		return nil, err
	}

	knownTables := make(map[string]struct{}, len(sortables))
	for _, s := range sortables {
		knownTables[s.identifier] = struct{}{}
	}
	nrTables := len(knownTables)

	hasUnknownDeps := make(map[string]struct{})
	hasInternalDeps := make(map[string]struct{})
	knownUnknowns := make(map[string]struct{})

	pq := make(priorityQueue, 0, len(sortables))
	heap.Init(&pq)

	for initialOrder, s := range sortables {
		pgInternal := make(map[string]struct{})
		unknown := make(map[string]struct{})
		for dep := range s.dependencies {
			if strings.HasPrefix(dep, relation.ReservedCatalogPrefix) {
				pgInternal[dep] = struct{}{}
				continue
			}
			if _, ok := knownTables[dep]; !ok {
				unknown[dep] = struct{}{}
			}
		}
		if len(unknown) > 0 {
			knownUnknowns = mergeSet(knownUnknowns, unknown)
			hasUnknownDeps[s.identifier] = struct{}{}
			s.dependencies = subtractSet(s.dependencies, unknown)
		}
		if len(pgInternal) > 0 {
			s.dependencies = subtractSet(s.dependencies, pgInternal)
			hasInternalDeps[s.identifier] = struct{}{}
		}
		heap.Push(&pq, &queueItem{priority: 1, tieBreaker: initialOrder, rel: s})
	}

	if len(hasUnknownDeps) > 0 {
		log.Warn("relations have unknown dependencies", slog.String("relations", joinKeys(hasUnknownDeps)))
		log.Warn("relations were unknown during dependency ordering", slog.String("unknowns", joinKeys(knownUnknowns)))
	}

	noInternal := make(map[string]struct{})
	for id := range knownTables {
		if _, isUnknown := knownUnknowns[id]; isUnknown {
			continue
		}
		if _, hasInternal := hasInternalDeps[id]; hasInternal {
			continue
		}
		noInternal[id] = struct{}{}
	}
	for _, s := range sortables {
		if _, ok := hasInternalDeps[s.identifier]; ok {
			s.dependencies = mergeSet(s.dependencies, noInternal)
		}
	}

	tableMap := make(map[string]*sortableRelation, len(sortables))
	for _, s := range sortables {
		tableMap[s.identifier] = s
	}

	latest := 0
	for pq.Len() > 0 {
		item := heap.Pop(&pq).(*queueItem)
		if item.priority > 2*nrTables {
			return nil, etlerrors.Wrap("order relations", etlerrors.ErrCyclicDependency)
		}
		s := item.rel

		var assigned []int
		allAssigned := true
		anyAssigned := false
		for dep := range s.dependencies {
			other := tableMap[dep]
			if other.order != nil {
				assigned = append(assigned, *other.order)
				anyAssigned = true
			} else {
				allAssigned = false
			}
		}

		switch {
		case len(s.dependencies) == 0:
			latest++
			n := latest
			s.order = &n
		case allAssigned:
			maxAssigned := maxInt(assigned)
			n := maxInt2(maxAssigned, latest) + 1
			latest = n
			s.order = &n
		case anyAssigned:
			atLeast := maxInt(assigned)
			next := maxInt3(atLeast, latest, item.priority) + 1
			heap.Push(&pq, &queueItem{priority: next, tieBreaker: item.tieBreaker, rel: s})
		default:
			next := maxInt2(latest, item.priority) + 1
			heap.Push(&pq, &queueItem{priority: next, tieBreaker: item.tieBreaker, rel: s})
		}
	}

	sort.SliceStable(sortables, func(i, j int) bool {
		return *sortables[i].order < *sortables[j].order
	})

	result := make([]*relation.RelationDescription, len(sortables))
	for i, s := range sortables {
		result[i] = s.original
	}
	return result, nil
}

// preload fetches each relation's dependency set up front, in parallel,
// using a bounded worker pool. Ordering proper runs single-threaded
// afterward.
func preload(ctx context.Context, relations []*relation.RelationDescription) ([]*sortableRelation, error) {
	sortables := make([]*sortableRelation, len(relations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadWorkers)

	for i, rel := range relations {
		i, rel := i, rel
		g.Go(func() error {
			deps, err := rel.Dependencies(gctx)
			if err != nil {
				return fmt.Errorf("preload dependencies for %q: %w", rel.Identifier(), err)
			}
			sortables[i] = &sortableRelation{
				identifier:   rel.Identifier(),
				dependencies: deps,
				tieBreaker:   i,
				original:     rel,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sortables, nil
}

func mergeSet(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func subtractSet(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a))
	for k := range a {
		if _, ok := b[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func joinKeys(m map[string]struct{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

func maxInt(xs []int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func maxInt2(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt3(a, b, c int) int {
	return maxInt2(maxInt2(a, b), c)
}
