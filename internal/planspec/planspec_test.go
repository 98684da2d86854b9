package planspec

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/plango/internal/plan"
)

const validYAML = `
name: demo
baseBranch: main
jobs:
  - producer_id: backend-add-auth
    task: add auth endpoint
    work: "go build ./..."
  - producer_id: frontend-add-login
    task: wire up login form
    dependencies: [backend-add-auth]
    work: "npm run build"
`

func TestParseDefaults(t *testing.T) {
	f, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Equal(t, 1, f.MaxParallel)
	require.Equal(t, string(plan.CleanupOnDone), f.Cleanup)
	require.Len(t, f.Jobs, 2)
}

func TestValidateAcceptsValidSpec(t *testing.T) {
	f, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Empty(t, Validate(f))
}

func TestValidateCatchesUnknownDependency(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
jobs:
  - producer_id: frontend-add-login
    task: wire up login form
    dependencies: [does-not-exist]
    work: "npm run build"
`))
	require.NoError(t, err)
	errs := Validate(f)
	require.NotEmpty(t, errs)
}

func TestValidateCatchesCycle(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
jobs:
  - producer_id: job-a
    task: a
    dependencies: [job-b]
    work: "true"
  - producer_id: job-b
    task: b
    dependencies: [job-a]
    work: "true"
`))
	require.NoError(t, err)
	errs := Validate(f)
	require.NotEmpty(t, errs)
}

func TestValidateCatchesBadProducerIDFormat(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
jobs:
  - producer_id: AB
    task: a
    work: "true"
`))
	require.NoError(t, err)
	errs := Validate(f)
	require.NotEmpty(t, errs)
}

func TestValidateAllowsSameProducerIDInSiblingGroups(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
groups:
  - id: frontend
  - id: backend
jobs:
  - producer_id: add-tests
    group: frontend
    task: add frontend tests
    work: "npm test"
  - producer_id: add-tests
    group: backend
    task: add backend tests
    work: "go test ./..."
`))
	require.NoError(t, err)
	require.Empty(t, Validate(f), "sibling-isolated groups may reuse the same bare producer_id")
}

func TestValidateCatchesDuplicateWithinSameGroup(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
groups:
  - id: backend
jobs:
  - producer_id: add-tests
    group: backend
    task: a
    work: "true"
  - producer_id: add-tests
    group: backend
    task: b
    work: "true"
`))
	require.NoError(t, err)
	require.NotEmpty(t, Validate(f), "two jobs in the same group scope must not share a producer_id")
}

func TestValidateResolvesAncestorScopeDependency(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
groups:
  - id: backend
  - id: db
    parent: backend
jobs:
  - producer_id: migrate
    group: backend
    task: run migration
    work: "true"
  - producer_id: seed
    group: db
    task: seed data
    dependencies: [migrate]
    work: "true"
`))
	require.NoError(t, err)
	require.Empty(t, Validate(f), "a job may depend on a bare name visible in an enclosing ancestor scope")
}

func TestValidateRejectsCousinScopeDependency(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
groups:
  - id: frontend
  - id: backend
jobs:
  - producer_id: build
    group: frontend
    task: a
    work: "true"
  - producer_id: deploy
    group: backend
    dependencies: [frontend/build]
    task: b
    work: "true"
`))
	require.NoError(t, err)
	errs := Validate(f)
	require.NotEmpty(t, errs, "a qualified path naming a cousin scope must not resolve")
}

func TestBuildPlanQualifiesGroupScopedProducerIDs(t *testing.T) {
	f, err := Parse([]byte(`
name: demo
groups:
  - id: frontend
  - id: backend
jobs:
  - producer_id: add-tests
    group: frontend
    task: a
    work: "true"
  - producer_id: add-tests
    group: backend
    task: b
    work: "true"
`))
	require.NoError(t, err)
	require.Empty(t, Validate(f))

	p, err := BuildPlan(f)
	require.NoError(t, err)

	var seen []string
	for _, n := range p.Nodes {
		if n.Kind == plan.KindJob {
			seen = append(seen, n.ProducerID)
		}
	}
	require.ElementsMatch(t, []string{"frontend/add-tests", "backend/add-tests"}, seen)
}

func TestBuildPlanWiresDependencies(t *testing.T) {
	f, err := Parse([]byte(validYAML))
	require.NoError(t, err)
	require.Empty(t, Validate(f))

	p, err := BuildPlan(f)
	require.NoError(t, err)
	require.Equal(t, "demo", p.Spec.Name)
	require.Len(t, p.Nodes, 2)

	var root, dependent *plan.Node
	for _, n := range p.Nodes {
		if n.ProducerID == "backend-add-auth" {
			root = n
		} else {
			dependent = n
		}
	}
	require.NotNil(t, root)
	require.NotNil(t, dependent)
	require.Empty(t, root.DependsOn)
	require.Equal(t, []uuid.UUID{root.ID}, dependent.DependsOn)
	require.Equal(t, []uuid.UUID{dependent.ID}, root.DependentOf)
}
