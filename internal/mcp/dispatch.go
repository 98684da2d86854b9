package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/google/uuid"
	"github.com/re-cinq/plango/internal/plan"
)

// RetryJobOptions carries retry_copilot_plan_job's optional overrides
// (spec.md §6), expressed in terms of internal/plan so PlanService
// implementations can hand them straight to scheduler.RetryOptions.
type RetryJobOptions struct {
	NewWork       *plan.WorkSpec
	NewPrechecks  *plan.WorkSpec
	NewPostchecks *plan.WorkSpec
	ClearWorktree bool
}

// PlanUpdate carries update_copilot_plan's optional settings.
type PlanUpdate struct {
	Env             map[string]string
	MaxParallel     *int
	ResumeAfterPlan *uuid.UUID
}

// PlanService is the seam this package dispatches onto: a composition of
// the scheduler, the plan store, and a git adapter that a real server
// (CLI or MCP transport) provides. Kept independent of the concrete
// scheduler/store signatures so this package only depends on what the
// command surface actually needs (spec.md §6).
type PlanService interface {
	CreatePlan(ctx context.Context, args CreatePlanArgs) (*plan.Plan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error)
	ListPlans(ctx context.Context, statusFilter string) ([]*plan.Plan, error)
	PausePlan(ctx context.Context, id uuid.UUID) error
	ResumePlan(ctx context.Context, id uuid.UUID) error
	CancelPlan(ctx context.Context, id uuid.UUID) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	RetryPlan(ctx context.Context, id uuid.UUID, nodeIDs []uuid.UUID) error
	RetryPlanJob(ctx context.Context, planID uuid.UUID, jobRef string, opts RetryJobOptions) error
	UpdatePlan(ctx context.Context, id uuid.UUID, update PlanUpdate) error
	BranchExists(repoPath, branch string) bool
}

// Dispatch schema-validates and decodes raw against tool's argument type,
// runs tool-specific semantic validation, then invokes svc and wraps the
// outcome as an MCP tool result. Schema failures and semantic failures
// both produce a {success:false, error:...} Result — the distinction
// lives in which error type produced the message, for callers that want
// to log or retry differently.
func Dispatch(ctx context.Context, tool string, raw json.RawMessage, svc PlanService) (*mcpgo.CallToolResult, error) {
	handler, ok := handlers[tool]
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool %q", tool)), nil
	}
	result := handler(ctx, raw, svc)
	return toCallToolResult(result)
}

type handlerFunc func(ctx context.Context, raw json.RawMessage, svc PlanService) Result

var handlers = map[string]handlerFunc{
	"create_copilot_plan":          handleCreatePlan,
	"get_copilot_plan_status":      handleGetPlanStatus,
	"list_copilot_plans":           handleListPlans,
	"get_copilot_plan_job":         handleGetPlanJob,
	"get_copilot_plan_job_logs":    handleGetPlanJob,
	"get_copilot_plan_job_attempts": handleGetPlanJob,
	"pause_copilot_plan":           handlePausePlan,
	"resume_copilot_plan":          handleResumePlan,
	"cancel_copilot_plan":          handleCancelPlan,
	"delete_copilot_plan":          handleDeletePlan,
	"retry_copilot_plan":           handleRetryPlan,
	"retry_copilot_plan_job":       handleRetryPlanJob,
	"update_copilot_plan":          handleUpdatePlan,
}

func handleCreatePlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args CreatePlanArgs
	if err := DecodeArgs("create_copilot_plan", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	branchExists := func(b string) bool { return svc.BranchExists("", b) }
	if err := ValidateCreatePlan(&args, branchExists); err != nil {
		return errorResultFrom(err)
	}
	p, err := svc.CreatePlan(ctx, args)
	if err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true, Data: p}
}

func handleGetPlanStatus(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args GetPlanStatusArgs
	if err := DecodeArgs("get_copilot_plan_status", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	id, err := uuid.Parse(args.ID)
	if err != nil {
		return errorResultFrom(&SemanticError{Tool: "get_copilot_plan_status", Issues: []string{err.Error()}})
	}
	p, err := svc.GetPlan(ctx, id)
	if err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true, Data: newPlanStatusView(p)}
}

func handleListPlans(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args ListPlansArgs
	if err := DecodeArgs("list_copilot_plans", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	plans, err := svc.ListPlans(ctx, args.Status)
	if err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true, Data: plans}
}

func handleGetPlanJob(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args PlanJobArgs
	if err := DecodeArgs("get_copilot_plan_job", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	planID, err := uuid.Parse(args.PlanID)
	if err != nil {
		return errorResultFrom(&SemanticError{Tool: "get_copilot_plan_job", Issues: []string{err.Error()}})
	}
	p, err := svc.GetPlan(ctx, planID)
	if err != nil {
		return errorResultFrom(err)
	}
	node, err := resolveNode(p, args.JobID)
	if err != nil {
		return errorResultFrom(&SemanticError{Tool: "get_copilot_plan_job", Issues: []string{err.Error()}})
	}
	return Result{Success: true, Data: node}
}

func handlePausePlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	return planIDOp(ctx, raw, "pause_copilot_plan", svc.PausePlan)
}

func handleResumePlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	return planIDOp(ctx, raw, "resume_copilot_plan", svc.ResumePlan)
}

func handleCancelPlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args PlanIDOnlyArgs
	if err := DecodeArgs("cancel_copilot_plan", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg("cancel_copilot_plan", args.ID); err != nil {
		return errorResultFrom(err)
	}
	id, _ := uuid.Parse(args.ID)
	if err := svc.CancelPlan(ctx, id); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

func handleDeletePlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args PlanIDOnlyArgs
	if err := DecodeArgs("delete_copilot_plan", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg("delete_copilot_plan", args.ID); err != nil {
		return errorResultFrom(err)
	}
	id, _ := uuid.Parse(args.ID)
	if err := svc.DeletePlan(ctx, id); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

func handleRetryPlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args RetryPlanArgs
	if err := DecodeArgs("retry_copilot_plan", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg("retry_copilot_plan", args.ID); err != nil {
		return errorResultFrom(err)
	}
	id, _ := uuid.Parse(args.ID)

	nodeIDs := make([]uuid.UUID, 0, len(args.NodeIDs))
	sem := &SemanticError{Tool: "retry_copilot_plan"}
	for _, nodeIDStr := range args.NodeIDs {
		nid, err := uuid.Parse(nodeIDStr)
		if err != nil {
			sem.add("invalid nodeId %q: %v", nodeIDStr, err)
			continue
		}
		nodeIDs = append(nodeIDs, nid)
	}
	if len(sem.Issues) > 0 {
		return errorResultFrom(sem)
	}

	if err := svc.RetryPlan(ctx, id, nodeIDs); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

func handleRetryPlanJob(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args RetryPlanJobArgs
	if err := DecodeArgs("retry_copilot_plan_job", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg("retry_copilot_plan_job", args.PlanID); err != nil {
		return errorResultFrom(err)
	}
	planID, _ := uuid.Parse(args.PlanID)

	opts := RetryJobOptions{ClearWorktree: args.ClearWorktree}
	if args.NewWork != "" {
		opts.NewWork = plan.NormalizeWorkSpec(args.NewWork)
	}
	if args.NewPrechecks != "" {
		opts.NewPrechecks = plan.NormalizeWorkSpec(args.NewPrechecks)
	}
	if args.NewPostchecks != "" {
		opts.NewPostchecks = plan.NormalizeWorkSpec(args.NewPostchecks)
	}

	if err := svc.RetryPlanJob(ctx, planID, args.JobID, opts); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

func handleUpdatePlan(ctx context.Context, raw json.RawMessage, svc PlanService) Result {
	var args UpdatePlanArgs
	if err := DecodeArgs("update_copilot_plan", raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg("update_copilot_plan", args.PlanID); err != nil {
		return errorResultFrom(err)
	}
	planID, _ := uuid.Parse(args.PlanID)

	update := PlanUpdate{Env: args.Env}
	if args.MaxParallel > 0 {
		update.MaxParallel = &args.MaxParallel
	}
	sem := &SemanticError{Tool: "update_copilot_plan"}
	if args.ResumeAfterPlan != "" {
		gateID, err := uuid.Parse(args.ResumeAfterPlan)
		if err != nil {
			sem.add("resumeAfterPlan %q is not a valid plan id: %v", args.ResumeAfterPlan, err)
		} else {
			update.ResumeAfterPlan = &gateID
		}
	}
	if len(sem.Issues) > 0 {
		return errorResultFrom(sem)
	}

	if err := svc.UpdatePlan(ctx, planID, update); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

// planIDOp is the shared shape of pause_copilot_plan/resume_copilot_plan:
// decode a bare {planId}, validate, invoke op.
func planIDOp(ctx context.Context, raw json.RawMessage, tool string, op func(context.Context, uuid.UUID) error) Result {
	var args PlanIDArgs
	if err := DecodeArgs(tool, raw, &args); err != nil {
		return errorResultFrom(err)
	}
	if err := ValidatePlanIDArg(tool, args.PlanID); err != nil {
		return errorResultFrom(err)
	}
	id, _ := uuid.Parse(args.PlanID)
	if err := op(ctx, id); err != nil {
		return errorResultFrom(err)
	}
	return Result{Success: true}
}

// resolveNode looks up jobRef in p, accepting either a node UUID or a
// producer id (spec.md §6).
func resolveNode(p *plan.Plan, jobRef string) (*plan.Node, error) {
	if id, isUUID := ResolveJobRef(jobRef); isUUID {
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

// planStatusView is get_copilot_plan_status's response shape: the plan
// plus all node states and an overall progress percentage (spec.md §6).
type planStatusView struct {
	Plan        *plan.Plan `json:"plan"`
	ProgressPct float64    `json:"progressPct"`
}

func newPlanStatusView(p *plan.Plan) planStatusView {
	var succeeded int
	for _, n := range p.Nodes {
		if n.State != nil && n.State.Status == plan.NodeSucceeded {
			succeeded++
		}
	}
	pct := 0.0
	if len(p.Nodes) > 0 {
		pct = 100 * float64(succeeded) / float64(len(p.Nodes))
	}
	return planStatusView{Plan: p, ProgressPct: pct}
}

func errorResult(msg string) *mcpgo.CallToolResult {
	r, _ := toCallToolResult(Result{Success: false, Error: msg})
	return r
}

func errorResultFrom(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

func toCallToolResult(r Result) (*mcpgo.CallToolResult, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if r.Success {
		return mcpgo.NewToolResultText(string(data)), nil
	}
	return mcpgo.NewToolResultError(string(data)), nil
}
