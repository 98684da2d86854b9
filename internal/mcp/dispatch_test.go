package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/plango/internal/plan"
)

type fakeService struct {
	plans map[uuid.UUID]*plan.Plan
}

func newFakeService() *fakeService {
	return &fakeService{plans: make(map[uuid.UUID]*plan.Plan)}
}

func (f *fakeService) CreatePlan(ctx context.Context, args CreatePlanArgs) (*plan.Plan, error) {
	p := &plan.Plan{ID: uuid.New(), Spec: plan.Spec{Name: args.Name}, Status: plan.StatusPending, Nodes: map[uuid.UUID]*plan.Node{}}
	f.plans[p.ID] = p
	return p, nil
}

func (f *fakeService) GetPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, errNotFound
	}
	return p, nil
}

func (f *fakeService) ListPlans(ctx context.Context, statusFilter string) ([]*plan.Plan, error) {
	var out []*plan.Plan
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeService) PausePlan(ctx context.Context, id uuid.UUID) error  { return f.touch(id) }
func (f *fakeService) ResumePlan(ctx context.Context, id uuid.UUID) error { return f.touch(id) }
func (f *fakeService) CancelPlan(ctx context.Context, id uuid.UUID) error { return f.touch(id) }
func (f *fakeService) DeletePlan(ctx context.Context, id uuid.UUID) error { return f.touch(id) }
func (f *fakeService) RetryPlan(ctx context.Context, id uuid.UUID, nodeIDs []uuid.UUID) error {
	return f.touch(id)
}
func (f *fakeService) RetryPlanJob(ctx context.Context, planID uuid.UUID, jobRef string, opts RetryJobOptions) error {
	return f.touch(planID)
}
func (f *fakeService) UpdatePlan(ctx context.Context, id uuid.UUID, update PlanUpdate) error {
	return f.touch(id)
}
func (f *fakeService) BranchExists(repoPath, branch string) bool { return branch == "main" }

func (f *fakeService) touch(id uuid.UUID) error {
	if _, ok := f.plans[id]; !ok {
		return errNotFound
	}
	return nil
}

type notFoundError struct{}

func (notFoundError) Error() string { return "plan not found" }

var errNotFound = notFoundError{}

func TestDispatchCreatePlanSchemaFailure(t *testing.T) {
	svc := newFakeService()
	raw := json.RawMessage(`{"jobs": []}`) // missing required "name", empty jobs
	res, err := Dispatch(context.Background(), "create_copilot_plan", raw, svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.False(t, body.Success)
	require.NotEmpty(t, body.Error)
}

func TestDispatchCreatePlanSemanticFailure(t *testing.T) {
	svc := newFakeService()
	raw := json.RawMessage(`{
		"name": "demo",
		"jobs": [
			{"producer_id": "backend/add-auth", "task": "add auth", "dependencies": ["backend/missing"]}
		],
		"baseBranch": "nonexistent"
	}`)
	res, err := Dispatch(context.Background(), "create_copilot_plan", raw, svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.False(t, body.Success)
	require.Contains(t, body.Error, "unknown producer_id")
	require.Contains(t, body.Error, "baseBranch")
}

func TestDispatchCreatePlanSuccess(t *testing.T) {
	svc := newFakeService()
	raw := json.RawMessage(`{
		"name": "demo",
		"jobs": [
			{"producer_id": "backend/add-auth", "task": "add auth"}
		],
		"baseBranch": "main"
	}`)
	res, err := Dispatch(context.Background(), "create_copilot_plan", raw, svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.True(t, body.Success)
}

func TestDispatchCreatePlanAllowsSameProducerIDInSiblingGroups(t *testing.T) {
	svc := newFakeService()
	raw := json.RawMessage(`{
		"name": "demo",
		"groups": [{"id": "frontend"}, {"id": "backend"}],
		"jobs": [
			{"producer_id": "add-tests", "group": "frontend", "task": "a"},
			{"producer_id": "add-tests", "group": "backend", "task": "b"}
		],
		"baseBranch": "main"
	}`)
	res, err := Dispatch(context.Background(), "create_copilot_plan", raw, svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.True(t, body.Success, "sibling-isolated groups may reuse the same bare producer_id: %v", body.Error)
}

func TestDispatchCreatePlanRejectsDuplicateWithinSameGroup(t *testing.T) {
	svc := newFakeService()
	raw := json.RawMessage(`{
		"name": "demo",
		"groups": [{"id": "backend"}],
		"jobs": [
			{"producer_id": "add-tests", "group": "backend", "task": "a"},
			{"producer_id": "add-tests", "group": "backend", "task": "b"}
		],
		"baseBranch": "main"
	}`)
	res, err := Dispatch(context.Background(), "create_copilot_plan", raw, svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.False(t, body.Success)
	require.Contains(t, body.Error, "duplicate producer_id")
}

func TestDispatchUnknownTool(t *testing.T) {
	svc := newFakeService()
	res, err := Dispatch(context.Background(), "not_a_real_tool", json.RawMessage(`{}`), svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.False(t, body.Success)
	require.Contains(t, body.Error, "unknown tool")
}

func TestDispatchPlanIDOpInvalidID(t *testing.T) {
	svc := newFakeService()
	res, err := Dispatch(context.Background(), "pause_copilot_plan", json.RawMessage(`{"planId": "not-a-uuid"}`), svc)
	require.NoError(t, err)

	var body Result
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &body))
	require.False(t, body.Success)
}

// resultText extracts the text payload of a *mcpgo.CallToolResult; both
// success and error results carry their Result JSON as the first content
// block's text (see toCallToolResult).
func resultText(t *testing.T, res any) string {
	t.Helper()
	type textContent struct {
		Text string `json:"text"`
	}
	type toolResult struct {
		Content []textContent `json:"content"`
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var tr toolResult
	require.NoError(t, json.Unmarshal(data, &tr))
	require.NotEmpty(t, tr.Content)
	return tr.Content[0].Text
}
