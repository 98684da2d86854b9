package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// ExecDelegator invokes a configured local command as the agent backend,
// over a PTY so line-line-buffered tools behave the same under test as they
// do interactively. Grounded on the teacher's internal/engine.invokeAgent.
type ExecDelegator struct {
	Command string
	Args    []string
	// Timeout bounds a single invocation; zero means no timeout.
	Timeout time.Duration
}

// sessionIDEnv is the environment variable the spawned agent reads/writes
// its session id through, since ExecDelegator has no richer IPC channel.
const sessionIDEnv = "PLANGO_AGENT_SESSION_ID"

// Invoke satisfies Delegator.
func (d *ExecDelegator) Invoke(ctx context.Context, req Request) (Result, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	contextFile := filepath.Join(req.WorktreeDir, ".plango-context")
	if err := os.WriteFile(contextFile, []byte(req.Instructions), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing agent context: %w", err)
	}
	defer os.Remove(contextFile)

	args := append([]string{}, d.Args...)
	args = append(args, contextFile)
	cmd := exec.CommandContext(ctx, d.Command, args...)
	cmd.Dir = req.WorktreeDir
	cmd.Env = append(os.Environ(), sessionIDEnv+"="+req.SessionID)

	ptmx, pts, err := pty.Open()
	if err != nil {
		return Result{}, fmt.Errorf("opening pty: %w", err)
	}
	defer ptmx.Close()

	stdin := req.Instructions
	if req.Stdin != "" {
		stdin = req.Stdin
	}
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = pts
	cmd.Stderr = pts

	if err := cmd.Start(); err != nil {
		pts.Close()
		return Result{}, fmt.Errorf("starting agent: %w", err)
	}
	pts.Close()

	var lastLine string
	sc := bufio.NewScanner(ptmx)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		lastLine = line
		if req.Output != nil {
			req.Output(line)
		}
	}
	if err := sc.Err(); err != nil {
		var pathErr *os.PathError
		if !(errors.As(err, &pathErr) && pathErr.Err == syscall.EIO) {
			return Result{}, fmt.Errorf("reading agent output: %w", err)
		}
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("waiting for agent: %w", waitErr)
		}
	}

	sessionID := parseSessionID(lastLine)
	return Result{
		Success:   exitCode == 0,
		SessionID: sessionID,
		ExitCode:  exitCode,
	}, nil
}

// parseSessionID extracts a session id from the agent's final JSON line, if
// the backend reports one as {"session_id": "..."}.
func parseSessionID(line string) string {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return ""
	}
	return payload.SessionID
}
