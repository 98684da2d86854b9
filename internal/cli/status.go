package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/re-cinq/plango/internal/plan"
)

var (
	statusFollow   bool
	statusInterval float64
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status <planId>",
	Short: "Show the status of each job node in a plan",
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

		if statusFollow {
			return followStatus(cmd.Context(), rt, id)
		}
		return showStatus(cmd.Context(), rt, id)
	},
}

func followStatus(ctx context.Context, rt *Runtime, id uuid.UUID) error {
	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(ctx, &buf, rt, id, true); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()

		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: plango status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func showStatus(ctx context.Context, rt *Runtime, id uuid.UUID) error {
	return renderStatus(ctx, os.Stdout, rt, id, false)
}

// renderStatus prints one line per job node, generalized from the
// teacher's renderStatus (one line per concern, read from a status file)
// to reading directly off the plan's Node/NodeState.
func renderStatus(ctx context.Context, w io.Writer, rt *Runtime, id uuid.UUID, showLogs bool) error {
	p, err := rt.Store.GetPlan(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Plan %s (%s)\n", p.ID, p.Status)
	fmt.Fprintln(w, "──────────────────────────────────────")

	ordered := make([]*plan.Node, 0, len(p.Order))
	for _, nid := range p.Order {
		if n := p.Nodes[nid]; n.Kind == plan.KindJob {
			ordered = append(ordered, n)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProducerID < ordered[j].ProducerID })

	var activeNodes []*plan.Node
	for _, node := range ordered {
		symbol, color := nodeStateDisplay(node.State.Status)
		switch node.State.Status {
		case plan.NodeRunning, plan.NodeScheduled:
			fmt.Fprintf(w, "  %s%s%s  %-28s  attempt %d, phase %s\n", color, symbol, ansiReset, node.ProducerID, node.State.Attempt, node.State.FailedPhase)
			activeNodes = append(activeNodes, node)
		case plan.NodeFailed:
			fmt.Fprintf(w, "  %s%s%s  %-28s  failed at %s: %s\n", color, symbol, ansiReset, node.ProducerID, node.State.FailedPhase, node.State.LastError)
		case plan.NodeSucceeded:
			fmt.Fprintf(w, "  %s%s%s  %-28s  succeeded at %s\n", color, symbol, ansiReset, node.ProducerID, short(node.State.CompletedCommit))
		case plan.NodeBlocked:
			fmt.Fprintf(w, "  %s%s%s  %-28s  blocked (dependency failed)\n", color, symbol, ansiReset, node.ProducerID)
		case plan.NodeCanceled:
			fmt.Fprintf(w, "  %s%s%s  %-28s  canceled\n", color, symbol, ansiReset, node.ProducerID)
		default:
			fmt.Fprintf(w, "  %s%s%s  %-28s  %s\n", color, symbol, ansiReset, node.ProducerID, node.State.Status)
		}
	}

	if showLogs && len(activeNodes) > 0 {
		for _, node := range activeNodes {
			tail := readLastLines(rt.NodeLogPath(node.ID), 5)
			if tail != "" {
				fmt.Fprintf(w, "\n── %s logs ──\n%s", node.ProducerID, tail)
			}
		}
	}

	return nil
}
