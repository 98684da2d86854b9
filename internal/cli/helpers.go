package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/re-cinq/plango/internal/mcp"
	"github.com/re-cinq/plango/internal/plan"
	"github.com/re-cinq/plango/internal/planspec"
)

// loadAndValidateSpec loads a plan-spec YAML file and validates it,
// printing errors to stderr, generalizing the teacher's
// loadAndValidateConfig from internal/config.Config to planspec.File.
func loadAndValidateSpec(path string) (*planspec.File, error) {
	f, err := planspec.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return nil, err
	}

	if errs := planspec.Validate(f); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		}
		return nil, fmt.Errorf("%d validation error(s)", len(errs))
	}

	return f, nil
}

// readLastLines reads the last n lines from a file, returning "" if the
// file doesn't exist.
func readLastLines(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	content := strings.TrimRight(string(data), "\n")
	if content == "" {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n") + "\n"
}

// short truncates a commit hash to 8 characters for display.
func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// resolveNodeRef looks up jobRef in p, accepting either a node UUID or a
// producer id (spec.md §6), mirroring internal/mcp's unexported
// resolveNode for the CLI's own job-by-ref commands (logs, verify, retry).
func resolveNodeRef(p *plan.Plan, jobRef string) (*plan.Node, error) {
	if id, isUUID := mcp.ResolveJobRef(jobRef); isUUID {
		if n, ok := p.Nodes[id]; ok {
			return n, nil
		}
		return nil, fmt.Errorf("no job with id %s in plan %s", jobRef, p.ID)
	}
	for _, n := range p.Nodes {
		if n.ProducerID == jobRef {
			return n, nil
		}
	}
	return nil, fmt.Errorf("no job with producer_id %q in plan %s", jobRef, p.ID)
}
