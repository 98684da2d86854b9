package cli

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/plan"
)

func init() {
	rootCmd.AddCommand(vizCmd)
}

var vizCmd = &cobra.Command{
	Use:   "viz <planId>",
	Short: "Visualize a plan's job DAG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid plan id %q: %w", args[0], err)
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		p, err := rt.Store.GetPlan(cmd.Context(), id)
		if err != nil {
			return err
		}

		printDAG(p)
		return nil
	},
}

// printDAG renders a plan's job nodes as a forest of dependency trees,
// generalizing the teacher's printGraph/printBranch (one implicit chain
// per watched branch) to an arbitrary DAG: a node with more than one
// dependency is printed once under each of them, since the tree view
// can't otherwise represent fan-in.
func printDAG(p *plan.Plan) {
	var roots []*plan.Node
	for _, id := range p.Order {
		n := p.Nodes[id]
		if n.Kind != plan.KindJob {
			continue
		}
		if len(n.DependsOn) == 0 {
			roots = append(roots, n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ProducerID < roots[j].ProducerID })

	for _, root := range roots {
		printDAGBranch(p, root, "", true)
	}
}

func printDAGBranch(p *plan.Plan, n *plan.Node, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	symbol, color := nodeStateDisplay(n.State.Status)
	fmt.Printf("%s%s%s%s%s %s\n", prefix, connector, color, symbol, ansiReset, n.ProducerID)

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	var children []*plan.Node
	for _, depID := range n.DependentOf {
		children = append(children, p.Nodes[depID])
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ProducerID < children[j].ProducerID })

	for i, child := range children {
		printDAGBranch(p, child, childPrefix, i == len(children)-1)
	}
}
