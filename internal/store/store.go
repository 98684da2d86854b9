// Package store persists Plan/Node/NodeState (spec.md §6, SPEC_FULL.md
// §1.1): the module defines the PlanStore interface plus two concrete
// implementations, memstore and sqlstore, neither of which claims to be
// the product's actual persistence format.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/plan"
)

// ErrNotFound is returned by Get/Delete when no plan with the given id
// is persisted.
var ErrNotFound = errors.New("store: plan not found")

// PlanStore persists whole plans (DAG, nodes, and their mutable state) as
// a unit. Callers own serialization of concurrent access to the returned
// *plan.Plan; the store itself only guarantees atomicity of one
// Save/Get/Delete call.
type PlanStore interface {
	SavePlan(ctx context.Context, p *plan.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error)
	ListPlans(ctx context.Context) ([]*plan.Plan, error)
	DeletePlan(ctx context.Context, id uuid.UUID) error
	Close() error
}
