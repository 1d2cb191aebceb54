// Package selector marks the transitive-closure subset of relations
// "required" for gating the keep-going vs. fail-fast extraction policy.
package selector

import (
	"context"

	"github.com/dwops/etl-core/internal/relation"
)

// Predicate decides whether a relation's target table name seeds the
// required set.
type Predicate func(relation.TableName) bool

// RequiredSet is the outcome of Select: the identifiers of every relation in
// the transitive closure of ancestors (under depends-on) of the seed set.
// Select computes this as a plain value; Apply is what actually writes it
// onto the relations, in one pass, rather than mutating them here.
type RequiredSet map[string]struct{}

// Select walks relations in reverse dependency order, starting from every
// relation whose target table name matches pred, and extends the set to
// every ancestor under depends-on. relations must already be in the
// dependency order produced by depgraph.Order.
//
// The walk is intentionally interleaved: it appends ancestors to the same
// slice it scans as the source for "is anything in required depending on
// me", so each newly-added ancestor can pull in its own ancestors within the
// same pass.
func Select(ctx context.Context, relations []*relation.RelationDescription, pred Predicate) (RequiredSet, error) {
	var required []*relation.RelationDescription
	for _, d := range relations {
		if pred(d.TargetTableName()) {
			required = append(required, d)
		}
	}

	for i := len(relations) - 1; i >= 0; i-- {
		d := relations[i]
		dependedOn, err := dependsOnAnyOf(ctx, required, d.Identifier())
		if err != nil {
			return nil, err
		}
		if dependedOn {
			required = append(required, d)
		}
	}

	set := make(RequiredSet, len(required))
	for _, d := range required {
		set[d.Identifier()] = struct{}{}
	}
	return set, nil
}

func dependsOnAnyOf(ctx context.Context, required []*relation.RelationDescription, identifier string) (bool, error) {
	for _, r := range required {
		deps, err := r.Dependencies(ctx)
		if err != nil {
			return false, err
		}
		if _, ok := deps[identifier]; ok {
			return true, nil
		}
	}
	return false, nil
}

// Apply sets is_required on every relation: true for members of set, false
// otherwise. Each relation's SetRequired is a set-once field, so Apply must
// run exactly once per relation before any read of IsRequired.
func Apply(relations []*relation.RelationDescription, set RequiredSet) {
	for _, r := range relations {
		_, ok := set[r.Identifier()]
		r.SetRequired(ok)
	}
}
