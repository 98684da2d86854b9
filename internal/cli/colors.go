package cli

import "github.com/re-cinq/plango/internal/plan"

// ANSI escape codes for terminal colors.
const (
	ansiGreen       = "\033[32m"
	ansiCyan        = "\033[36m"
	ansiYellow      = "\033[33m"
	ansiRed         = "\033[31m"
	ansiDim         = "\033[2m"
	ansiBoldMagenta = "\033[1;35m"
	ansiReset       = "\033[0m"
)

// nodeStateDisplay returns the symbol and color for a job node's status,
// generalized from the teacher's stateDisplay (engine.StateXxx string
// constants) to the plan.NodeStatus enum.
func nodeStateDisplay(status plan.NodeStatus) (symbol, color string) {
	switch status {
	case plan.NodePending:
		return "◯", ansiDim
	case plan.NodeBlocked:
		return "⊘", ansiDim
	case plan.NodeReady:
		return "◎", ansiYellow
	case plan.NodeScheduled, plan.NodeRunning:
		return "⟳", ansiYellow
	case plan.NodeSucceeded:
		return "✓", ansiGreen
	case plan.NodeFailed:
		return "✗", ansiRed
	case plan.NodeCanceled:
		return "⊘", ansiDim
	default:
		return "·", ansiReset
	}
}

// planStatusDisplay returns the symbol and color for a plan's overall
// status, same idiom as nodeStateDisplay.
func planStatusDisplay(status plan.Status) (symbol, color string) {
	switch status {
	case plan.StatusScaffolding, plan.StatusPending:
		return "◯", ansiDim
	case plan.StatusRunning:
		return "⟳", ansiYellow
	case plan.StatusPaused:
		return "‖", ansiCyan
	case plan.StatusSucceeded:
		return "✓", ansiGreen
	case plan.StatusPartial:
		return "◐", ansiYellow
	case plan.StatusFailed:
		return "✗", ansiRed
	case plan.StatusCanceled:
		return "⊘", ansiDim
	case plan.StatusAwaitingFinalMerge:
		return "⚠", ansiBoldMagenta
	default:
		return "·", ansiReset
	}
}
