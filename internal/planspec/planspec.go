// Package planspec parses a plan-spec YAML file into an internal/plan.Plan,
// generalizing the teacher's internal/config.Config from a flat,
// implicitly-chained concern list ("each concern watches the previous
// one") into an explicit producer-id dependency DAG (spec.md §3).
package planspec

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/scopeid"
)

// File is the top-level shape of a plan-spec YAML document.
type File struct {
	Name               string      `yaml:"name"`
	BaseBranch         string      `yaml:"baseBranch,omitempty"`
	TargetBranch       string      `yaml:"targetBranch,omitempty"`
	MaxParallel        int         `yaml:"maxParallel,omitempty"`
	Cleanup            string      `yaml:"cleanup,omitempty"`
	AdditionalSymlinks []string    `yaml:"additionalSymlinks,omitempty"`
	StartPaused        bool        `yaml:"startPaused,omitempty"`
	Groups             []GroupSpec `yaml:"groups,omitempty"`
	Jobs               []JobSpec   `yaml:"jobs"`
}

// GroupSpec is a namespace-only scope a job can be placed under.
type GroupSpec struct {
	ID     string `yaml:"id"`
	Parent string `yaml:"parent,omitempty"`
}

// JobSpec is one job node, as authored in YAML. Prechecks/Work/Postchecks
// are raw strings normalized via plan.NormalizeWorkSpec (an "@agent "
// prefix selects agent work; anything else is shell).
type JobSpec struct {
	ProducerID         string   `yaml:"producer_id"`
	DisplayName        string   `yaml:"displayName,omitempty"`
	Task               string   `yaml:"task"`
	Dependencies       []string `yaml:"dependencies,omitempty"`
	Group              string   `yaml:"group,omitempty"`
	Prechecks          string   `yaml:"prechecks,omitempty"`
	Work               string   `yaml:"work"`
	Postchecks         string   `yaml:"postchecks,omitempty"`
	ExpectsNoChanges   bool     `yaml:"expectsNoChanges,omitempty"`
	BaseBranchOverride string   `yaml:"baseBranchOverride,omitempty"`
}

// producerIDPattern matches a single lowercase-id segment (3-64 chars):
// lowercase letters, digits, and hyphens. A job's producer_id is either
// one such segment scoped by its group field, or a literal slash-joined
// path of segments that is already its own qualified id (no group field
// needed in that case) — either way, every segment must match this
// pattern.
var producerIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// groupParentMap builds the group-id -> parent-id lookup scopeid.AncestorChain
// needs.
func groupParentMap(groups []GroupSpec) map[string]string {
	parents := make(map[string]string, len(groups))
	for _, g := range groups {
		parents[g.ID] = g.Parent
	}
	return parents
}

// jobScopeChain splits a job's authored producer_id into its scope chain
// (outermost ancestor group first) and leaf segment, implementing
// spec.md §3's "unique within its group scope (siblings only — nested
// groups have isolated scopes)": a bare producer_id's scope comes from
// its group field's own ancestor chain; a producer_id already written as
// a slash path is its own self-describing scope and must not also set a
// group field.
func jobScopeChain(parents map[string]string, j JobSpec) (chain []string, leaf string, err error) {
	if strings.Contains(j.ProducerID, "/") {
		if j.Group != "" {
			return nil, "", fmt.Errorf("producer_id %q is already a qualified path and cannot also set group %q", j.ProducerID, j.Group)
		}
		segments := strings.Split(j.ProducerID, "/")
		return segments[:len(segments)-1], segments[len(segments)-1], nil
	}
	return scopeid.AncestorChain(parents, j.Group), j.ProducerID, nil
}

// Load reads and parses a plan-spec YAML file from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan spec: %w", err)
	}
	return Parse(data)
}

// Parse parses plan-spec YAML and applies defaults (maxParallel=1,
// cleanup="on-success"), mirroring the teacher's parse()'s
// default-filling after unmarshal.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing plan spec YAML: %w", err)
	}
	if f.MaxParallel == 0 {
		f.MaxParallel = 1
	}
	if f.Cleanup == "" {
		f.Cleanup = string(plan.CleanupOnDone)
	}
	return &f, nil
}

// Validate checks producer-id format/uniqueness, dependency and group
// resolution, and dependency-graph acyclicity (spec.md §3). It never
// touches git, so branch-existence checks live in internal/mcp's
// semantic validator instead, which does have adapter access.
func Validate(f *File) []error {
	var errs []error

	if f.Name == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if len(f.Jobs) == 0 {
		errs = append(errs, fmt.Errorf("at least one job is required"))
	}

	groupIDs := make(map[string]bool, len(f.Groups))
	for _, g := range f.Groups {
		groupIDs[g.ID] = true
	}
	for i, g := range f.Groups {
		if g.Parent != "" && !groupIDs[g.Parent] {
			errs = append(errs, fmt.Errorf("groups[%d] (%s): unknown parent %q", i, g.ID, g.Parent))
		}
	}
	for i, j := range f.Jobs {
		if j.Group != "" && !groupIDs[j.Group] {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): unknown group %q", i, j.ProducerID, j.Group))
		}
	}

	parents := groupParentMap(f.Groups)
	chains := make([][]string, len(f.Jobs))
	qualified := make([]string, len(f.Jobs))
	known := make(map[string]bool, len(f.Jobs))
	for i, j := range f.Jobs {
		chain, leaf, err := jobScopeChain(parents, j)
		if err != nil {
			errs = append(errs, fmt.Errorf("jobs[%d]: %w", i, err))
			continue
		}
		segments := append(append([]string{}, chain...), leaf)
		for _, seg := range segments {
			if !producerIDPattern.MatchString(seg) {
				errs = append(errs, fmt.Errorf("jobs[%d]: producer_id segment %q must be 3-64 chars of lowercase letters, digits, and hyphens", i, seg))
			}
		}
		chains[i] = chain
		qid := scopeid.Qualify(chain, leaf)
		qualified[i] = qid
		if known[qid] {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): duplicate producer_id %q within its scope", i, j.ProducerID, qid))
			continue
		}
		known[qid] = true
	}

	for i, j := range f.Jobs {
		if j.Task == "" {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): task is required", i, j.ProducerID))
		}
		if j.Work == "" && !j.ExpectsNoChanges {
			errs = append(errs, fmt.Errorf("jobs[%d] (%s): work is required unless expectsNoChanges is set", i, j.ProducerID))
		}
		if qualified[i] == "" {
			continue // scope error already recorded above
		}
		for _, dep := range j.Dependencies {
			resolved, ok := scopeid.Resolve(dep, chains[i], known)
			if ok && resolved == qualified[i] {
				errs = append(errs, fmt.Errorf("jobs[%d] (%s): depends on itself", i, j.ProducerID))
				continue
			}
			if !ok {
				errs = append(errs, fmt.Errorf("jobs[%d] (%s): depends on unknown producer_id %q (not in its own scope or an ancestor scope)", i, j.ProducerID, dep))
			}
		}
	}

	if cycleErr := detectCycles(f.Jobs, chains, qualified); cycleErr != nil {
		errs = append(errs, cycleErr)
	}

	return errs
}

// detectCycles runs the same white/gray/black DFS coloring as the
// teacher's internal/config.detectCycles, generalized from a single
// Watches edge per concern to an arbitrary Dependencies list per job,
// keyed by each job's scope-qualified id (spec.md §3) rather than its
// raw, possibly scope-ambiguous producer_id. chains/qualified are
// jobs-indexed, as computed by Validate; a job whose own scope could not
// be resolved (qualified[i] == "") is skipped, since that's already a
// recorded validation error.
func detectCycles(jobs []JobSpec, chains [][]string, qualified []string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(jobs))
	adj := make(map[string][]string, len(jobs))
	known := make(map[string]bool, len(jobs))
	for _, qid := range qualified {
		if qid != "" {
			known[qid] = true
		}
	}
	for i, j := range jobs {
		if qualified[i] == "" {
			continue
		}
		deps := make([]string, 0, len(j.Dependencies))
		for _, dep := range j.Dependencies {
			if resolved, ok := scopeid.Resolve(dep, chains[i], known); ok {
				deps = append(deps, resolved)
			}
		}
		adj[qualified[i]] = deps
	}

	var visit func(node string) error
	visit = func(node string) error {
		color[node] = gray
		for _, dep := range adj[node] {
			if color[dep] == gray {
				return fmt.Errorf("cycle detected: %s -> %s", node, dep)
			}
			if color[dep] == white {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[node] = black
		return nil
	}

	for _, qid := range qualified {
		if qid != "" && color[qid] == white {
			if err := visit(qid); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildPlan converts a validated File into a plan.Plan with freshly
// generated node ids, wiring DependsOn/DependentOf from the
// producer-id dependency lists. Callers must run Validate first;
// BuildPlan does not re-check producer-id format, but it does reject a
// cyclic graph via (*plan.Plan).ValidateDAG.
func BuildPlan(f *File) (*plan.Plan, error) {
	p := &plan.Plan{
		ID:   uuid.New(),
		Spec: plan.Spec{
			Name:               f.Name,
			MaxParallel:        f.MaxParallel,
			Cleanup:            plan.CleanupPolicy(f.Cleanup),
			AdditionalSymlinks: f.AdditionalSymlinks,
		},
		BaseBranch:   f.BaseBranch,
		TargetBranch: f.TargetBranch,
		Paused:       f.StartPaused,
		Status:       plan.StatusScaffolding,
		Nodes:        make(map[uuid.UUID]*plan.Node, len(f.Jobs)+len(f.Groups)),
	}

	groupToID := make(map[string]uuid.UUID, len(f.Groups))
	for _, g := range f.Groups {
		groupToID[g.ID] = uuid.New()
	}

	// Each job's canonical identity is its scope-qualified id (spec.md §3),
	// not its raw authored producer_id, since the same leaf id may
	// legitimately repeat across sibling-isolated scopes.
	parents := groupParentMap(f.Groups)
	chains := make([][]string, len(f.Jobs))
	qualified := make([]string, len(f.Jobs))
	producerToID := make(map[string]uuid.UUID, len(f.Jobs))
	for i, j := range f.Jobs {
		chain, leaf, err := jobScopeChain(parents, j)
		if err != nil {
			return nil, err
		}
		chains[i] = chain
		qid := scopeid.Qualify(chain, leaf)
		qualified[i] = qid
		producerToID[qid] = uuid.New()
	}
	known := make(map[string]bool, len(qualified))
	for _, qid := range qualified {
		known[qid] = true
	}

	for _, g := range f.Groups {
		id := groupToID[g.ID]
		node := &plan.Node{ID: id, Kind: plan.KindGroup, ProducerID: g.ID, DisplayName: g.ID}
		p.Nodes[id] = node
		p.Order = append(p.Order, id)
	}
	for _, g := range f.Groups {
		if g.Parent == "" {
			continue
		}
		parent := p.Nodes[groupToID[g.Parent]]
		parent.GroupChildren = append(parent.GroupChildren, groupToID[g.ID])
	}

	for i, j := range f.Jobs {
		id := producerToID[qualified[i]]
		node := &plan.Node{
			ID:                 id,
			Kind:               plan.KindJob,
			ProducerID:         qualified[i],
			DisplayName:        j.DisplayName,
			Task:               j.Task,
			ExpectsNoChanges:   j.ExpectsNoChanges,
			BaseBranchOverride: j.BaseBranchOverride,
			State:              plan.NewNodeState(),
		}
		if j.Prechecks != "" {
			node.Prechecks = plan.NormalizeWorkSpec(j.Prechecks)
		}
		if j.Work != "" {
			node.Work = plan.NormalizeWorkSpec(j.Work)
		}
		if j.Postchecks != "" {
			node.Postchecks = plan.NormalizeWorkSpec(j.Postchecks)
		}
		for _, dep := range j.Dependencies {
			resolved, ok := scopeid.Resolve(dep, chains[i], known)
			if !ok {
				return nil, fmt.Errorf("job %q depends on unresolvable producer_id %q", j.ProducerID, dep)
			}
			node.DependsOn = append(node.DependsOn, producerToID[resolved])
		}
		p.Nodes[id] = node
		p.Order = append(p.Order, id)

		if j.Group != "" {
			parent := p.Nodes[groupToID[j.Group]]
			parent.GroupChildren = append(parent.GroupChildren, id)
		}
	}

	for i, j := range f.Jobs {
		id := producerToID[qualified[i]]
		for _, dep := range j.Dependencies {
			resolved, ok := scopeid.Resolve(dep, chains[i], known)
			if !ok {
				continue // already reported above
			}
			depID := producerToID[resolved]
			p.Nodes[depID].DependentOf = append(p.Nodes[depID].DependentOf, id)
		}
	}

	if err := p.ValidateDAG(); err != nil {
		return nil, err
	}
	return p, nil
}
