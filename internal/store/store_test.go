package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/plango/internal/plan"
)

func samplePlan() *plan.Plan {
	nodeID := uuid.New()
	return &plan.Plan{
		ID:           uuid.New(),
		Spec:         plan.Spec{Name: "demo", MaxParallel: 2},
		RepoPath:     "/tmp/repo",
		BaseBranch:   "main",
		TargetBranch: "main",
		Status:       plan.StatusRunning,
		StateVersion: 1,
		Nodes: map[uuid.UUID]*plan.Node{
			nodeID: {
				ID:         nodeID,
				Kind:       plan.KindJob,
				ProducerID: "backend/add-thing",
				Task:       "add the thing",
				Work:       &plan.WorkSpec{Kind: plan.WorkShell, Command: "echo hi"},
				State:      plan.NewNodeState(),
			},
		},
		Order: []uuid.UUID{nodeID},
	}
}

func testStores(t *testing.T) map[string]PlanStore {
	t.Helper()
	sqlStore, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlStore.Close() })
	return map[string]PlanStore{
		"memstore": NewMemStore(),
		"sqlstore": sqlStore,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			p := samplePlan()
			require.NoError(t, s.SavePlan(context.Background(), p))

			got, err := s.GetPlan(context.Background(), p.ID)
			require.NoError(t, err)
			require.Equal(t, p.Spec.Name, got.Spec.Name)
			require.Equal(t, p.Status, got.Status)
			require.Len(t, got.Nodes, 1)
			for id, node := range got.Nodes {
				require.Equal(t, "backend/add-thing", node.ProducerID)
				require.Equal(t, plan.WorkShell, node.Work.Kind)
				require.Contains(t, p.Nodes, id)
			}
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetPlan(context.Background(), uuid.New())
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSavePlanUpsertsOnSecondCall(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			p := samplePlan()
			require.NoError(t, s.SavePlan(context.Background(), p))

			p.Status = plan.StatusSucceeded
			p.StateVersion = 2
			require.NoError(t, s.SavePlan(context.Background(), p))

			got, err := s.GetPlan(context.Background(), p.ID)
			require.NoError(t, err)
			require.Equal(t, plan.StatusSucceeded, got.Status)
			require.Equal(t, uint64(2), got.StateVersion)

			all, err := s.ListPlans(context.Background())
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestDeletePlan(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			p := samplePlan()
			require.NoError(t, s.SavePlan(context.Background(), p))
			require.NoError(t, s.DeletePlan(context.Background(), p.ID))

			_, err := s.GetPlan(context.Background(), p.ID)
			require.ErrorIs(t, err, ErrNotFound)

			err = s.DeletePlan(context.Background(), p.ID)
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}
