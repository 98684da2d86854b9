package mcp

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/re-cinq/plango/internal/scopeid"
)

// SemanticError wraps phase-2 business-rule failures — dependency
// resolution, id uniqueness, branch existence — distinct from
// SchemaError (phase 1).
type SemanticError struct {
	Tool   string
	Issues []string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("mcp: %s: semantic validation failed: %v", e.Tool, e.Issues)
}

func (e *SemanticError) add(format string, args ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, args...))
}

// BranchExistsFunc reports whether a branch exists in the target repo,
// letting ValidateCreatePlan check baseBranch/targetBranch without this
// package importing internal/gitadapter directly.
type BranchExistsFunc func(branch string) bool

// ValidateCreatePlan runs create_copilot_plan's semantic checks: producer
// id uniqueness, every dependency resolving to a job in the same
// request, no self-dependency, and (when branchExists is non-nil) that
// baseBranch/targetBranch actually exist.
func ValidateCreatePlan(args *CreatePlanArgs, branchExists BranchExistsFunc) error {
	sem := &SemanticError{Tool: "create_copilot_plan"}

	groupIDs := make(map[string]bool, len(args.Groups))
	for _, g := range args.Groups {
		groupIDs[g.ID] = true
	}
	for _, g := range args.Groups {
		if g.ParentID != "" && !groupIDs[g.ParentID] {
			sem.add("group %q has unknown parent %q", g.ID, g.ParentID)
		}
	}
	for _, j := range args.Jobs {
		if j.Group != "" && !groupIDs[j.Group] {
			sem.add("job %q references unknown group %q", j.ProducerID, j.Group)
		}
	}

	// Producer ids are unique only within their own scope (spec.md §3):
	// compute each job's scope-qualified id the same way planspec.BuildPlan
	// does, so two jobs in sibling-isolated scopes may share a bare id.
	parents := make(map[string]string, len(args.Groups))
	for _, g := range args.Groups {
		parents[g.ID] = g.ParentID
	}

	chains := make([][]string, len(args.Jobs))
	qualified := make([]string, len(args.Jobs))
	known := make(map[string]bool, len(args.Jobs))
	for i, j := range args.Jobs {
		var chain []string
		leaf := j.ProducerID
		if strings.Contains(j.ProducerID, "/") {
			if j.Group != "" {
				sem.add("producer_id %q is already a qualified path and cannot also set group %q", j.ProducerID, j.Group)
				continue
			}
			segments := strings.Split(j.ProducerID, "/")
			chain, leaf = segments[:len(segments)-1], segments[len(segments)-1]
		} else {
			chain = scopeid.AncestorChain(parents, j.Group)
		}
		chains[i] = chain
		qid := scopeid.Qualify(chain, leaf)
		if known[qid] {
			sem.add("duplicate producer_id %q within its scope", qid)
			continue
		}
		known[qid] = true
		qualified[i] = qid
	}

	for i, j := range args.Jobs {
		if qualified[i] == "" {
			continue
		}
		for _, dep := range j.Dependencies {
			resolved, ok := scopeid.Resolve(dep, chains[i], known)
			if ok && resolved == qualified[i] {
				sem.add("job %q depends on itself", j.ProducerID)
				continue
			}
			if !ok {
				sem.add("job %q depends on unknown producer_id %q (not in its own scope or an ancestor scope)", j.ProducerID, dep)
			}
		}
	}

	if branchExists != nil {
		if args.BaseBranch != "" && !branchExists(args.BaseBranch) {
			sem.add("baseBranch %q does not exist", args.BaseBranch)
		}
		if args.TargetBranch != "" && !branchExists(args.TargetBranch) {
			sem.add("targetBranch %q does not exist", args.TargetBranch)
		}
	}

	if len(sem.Issues) > 0 {
		return sem
	}
	return nil
}

// ResolveJobRef parses a job reference, accepting either a node UUID or a
// producer id (spec.md §6: "jobId (accepts node UUID or producer id)").
// It returns the parsed UUID and true when ref is a UUID, or the raw
// string and false when it must be resolved as a producer id by the
// caller (which has the live node set ValidateCreatePlan doesn't).
func ResolveJobRef(ref string) (id uuid.UUID, isUUID bool) {
	parsed, err := uuid.Parse(ref)
	if err != nil {
		return uuid.UUID{}, false
	}
	return parsed, true
}

// ValidatePlanIDArg checks that id parses as a UUID — every plan-scoped
// tool's minimal semantic check, since plan ids (unlike job ids) are
// never aliased by a human-readable name.
func ValidatePlanIDArg(tool, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &SemanticError{Tool: tool, Issues: []string{fmt.Sprintf("%q is not a valid plan id: %v", id, err)}}
	}
	return nil
}
