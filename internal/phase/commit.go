package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/re-cinq/plango/internal/agent"
)

// ephemeralProjectedDirs are scratch directories phase executors remove
// from the worktree before evaluating whether a commit is warranted
// (spec.md §4.2.3): an orchestrator "skill" directory and Copilot-CLI
// scratch, neither of which is ever meant to be committed.
var ephemeralProjectedDirs = []string{".orchestrator/skill", ".copilot"}

// CommitExecutor decides whether the worktree's current state warrants a
// commit, and makes it if so (spec.md §4.2.3).
type CommitExecutor struct{}

func (CommitExecutor) Execute(ctx context.Context, pc *Context) Result {
	for _, rel := range ephemeralProjectedDirs {
		_ = os.RemoveAll(filepath.Join(pc.WorktreePath, rel))
	}

	repo := pc.Adapter.Repository()

	dirty, err := repo.HasUncommittedChanges(ctx)
	if err != nil {
		return Result{Error: err}
	}
	if dirty {
		if err := repo.StageAll(ctx); err != nil {
			return Result{Error: err}
		}
		sha, err := repo.Commit(ctx, "[Plan] "+pc.Node.Task)
		if err != nil {
			return Result{Error: err}
		}
		return Result{Success: true, Commit: sha}
	}

	head, err := repo.GetHead(ctx)
	if err != nil {
		return Result{Error: err}
	}
	if head != pc.BaseCommit {
		return Result{Success: true, Commit: head}
	}

	evidencePath := filepath.Join(pc.WorktreePath, ".orchestrator", "evidence", pc.Node.ID.String()+".json")
	if _, err := os.Stat(evidencePath); err == nil {
		if err := repo.StageAll(ctx); err != nil {
			return Result{Error: err}
		}
		sha, err := repo.Commit(ctx, "[Plan] "+pc.Node.Task+" (evidence only)")
		if err != nil {
			return Result{Error: err}
		}
		return Result{Success: true, Commit: sha}
	}

	if pc.Node.ExpectsNoChanges {
		return Result{Success: true}
	}

	if pc.Delegate != nil {
		return reviewNoChangeOutcome(ctx, pc)
	}

	return Result{Error: errNoEvidence}
}

var errNoEvidence = noEvidenceError{}

type noEvidenceError struct{}

func (noEvidenceError) Error() string {
	return "commit phase: worktree unchanged with no evidence file, no expectsNoChanges flag, and no agent delegator available to review the outcome " +
		"(allowed outcomes: committed changes, an evidence file, or expectsNoChanges)"
}

const maxReviewLogLines = 150

// reviewNoChangeOutcome asks the agent whether an unchanged worktree is a
// legitimate outcome of the node's work spec (spec.md §4.2.3).
func reviewNoChangeOutcome(ctx context.Context, pc *Context) Result {
	logTail := truncatedLog(pc, maxReviewLogLines)
	prompt := noChangeReviewPrompt(pc, logTail)

	var captured []string
	req := agent.Request{
		WorktreeDir:  pc.WorktreePath,
		JobID:        pc.Node.ID.String(),
		Instructions: prompt,
		Stdin:        prompt,
		Output: func(line string) {
			captured = append(captured, line)
			if pc.LogOutput != nil {
				pc.LogOutput("agent", line)
			}
		},
	}

	if _, err := pc.Delegate.Invoke(ctx, req); err != nil {
		return Result{Error: errNoEvidence}
	}

	legitimate, reason := parseReviewVerdict(captured)
	if legitimate {
		return Result{Success: true, ReviewMetrics: &ReviewMetrics{Legitimate: true, Reason: reason}}
	}
	return Result{Error: errNoEvidence, ReviewMetrics: &ReviewMetrics{Legitimate: false, Reason: reason}}
}

func noChangeReviewPrompt(pc *Context, logTail string) string {
	workSummary := "(no work spec)"
	if pc.Work != nil {
		workSummary = string(pc.Work.Kind)
	}
	return fmt.Sprintf(
		"The task %q produced no change to the working tree and left no evidence file.\n"+
			"Work spec kind: %s\n\n"+
			"Execution log:\n%s\n\n"+
			"Reply with a single line of JSON and nothing else: "+
			`{"legitimate": bool, "reason": "..."}`+"\n"+
			"legitimate=true only if the task's own intent was to make no change.",
		pc.Node.Task, workSummary, logTail,
	)
}

// truncatedLog returns the last maxLines of pc.RecentLog, prefixed with a
// dropped-line count when truncation occurred.
func truncatedLog(pc *Context, maxLines int) string {
	if pc.RecentLog == nil {
		return ""
	}
	lines := pc.RecentLog()
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	dropped := len(lines) - maxLines
	tail := lines[dropped:]
	return fmt.Sprintf("(%d earlier lines truncated)\n%s", dropped, strings.Join(tail, "\n"))
}

type reviewVerdict struct {
	Legitimate bool   `json:"legitimate"`
	Reason     string `json:"reason"`
}

// parseReviewVerdict scans agent output lines from the end for the last
// line parseable as a reviewVerdict, falling back to parsing the combined
// output as one JSON blob; absent either, defaults to not legitimate
// (spec.md §4.2.3).
func parseReviewVerdict(lines []string) (legitimate bool, reason string) {
	for i := len(lines) - 1; i >= 0; i-- {
		var v reviewVerdict
		if err := json.Unmarshal([]byte(strings.TrimSpace(lines[i])), &v); err == nil {
			return v.Legitimate, v.Reason
		}
	}
	var v reviewVerdict
	combined := strings.Join(lines, "\n")
	if err := json.Unmarshal([]byte(strings.TrimSpace(combined)), &v); err == nil {
		return v.Legitimate, v.Reason
	}
	return false, "agent did not return a parseable verdict"
}
