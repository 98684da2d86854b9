// Package mcp defines the request/result shapes for the command surface
// in spec.md §6, expressed as typed Go structs with jsonschema tags
// (github.com/invopop/jsonschema) and validated in two phases
// (github.com/xeipuuv/gojsonschema for schema conformance, then semantic
// validation against a live plan) per the "Duck-typed handler inputs"
// REDESIGN FLAG: schema errors and business errors are never conflated.
//
// This package does not implement the MCP transport/server lifecycle
// (no stdio/SSE loop); it wires the dispatch contract that a real
// mark3labs/mcp-go server.MCPServer would call into.
package mcp

// JobArg is one job entry of CreatePlanArgs.Jobs.
type JobArg struct {
	ProducerID   string   `json:"producer_id" jsonschema:"required,minLength=3,maxLength=64,description=slash-separated lowercase id"`
	Task         string   `json:"task" jsonschema:"required,minLength=1"`
	Dependencies []string `json:"dependencies,omitempty" jsonschema:"description=producer ids this job depends on"`
	Group        string   `json:"group,omitempty"`
}

// GroupArg is one group entry of CreatePlanArgs.Groups.
type GroupArg struct {
	ID       string `json:"id" jsonschema:"required"`
	ParentID string `json:"parentId,omitempty"`
}

// CreatePlanArgs is the argument shape for create_copilot_plan.
type CreatePlanArgs struct {
	Name         string     `json:"name" jsonschema:"required,minLength=1"`
	Jobs         []JobArg   `json:"jobs" jsonschema:"required,minItems=1"`
	Groups       []GroupArg `json:"groups,omitempty"`
	BaseBranch   string     `json:"baseBranch,omitempty"`
	TargetBranch string     `json:"targetBranch,omitempty"`
	MaxParallel  int        `json:"maxParallel,omitempty" jsonschema:"minimum=0"`
	StartPaused  bool       `json:"startPaused,omitempty"`
}

// GetPlanStatusArgs is the argument shape for get_copilot_plan_status.
type GetPlanStatusArgs struct {
	ID string `json:"id" jsonschema:"required"`
}

// ListPlansArgs is the argument shape for list_copilot_plans.
type ListPlansArgs struct {
	Status string `json:"status,omitempty"`
}

// PlanJobArgs is the argument shape shared by get_copilot_plan_job,
// get_copilot_plan_job_logs, and get_copilot_plan_job_attempts. JobID
// accepts either a node UUID or a producer id (spec.md §6).
type PlanJobArgs struct {
	PlanID string `json:"planId" jsonschema:"required"`
	JobID  string `json:"jobId" jsonschema:"required"`
}

// PlanIDArgs is the argument shape shared by pause_copilot_plan and
// resume_copilot_plan.
type PlanIDArgs struct {
	PlanID string `json:"planId" jsonschema:"required"`
}

// PlanIDOnlyArgs is the argument shape shared by cancel_copilot_plan and
// delete_copilot_plan.
type PlanIDOnlyArgs struct {
	ID string `json:"id" jsonschema:"required"`
}

// RetryPlanArgs is the argument shape for retry_copilot_plan.
type RetryPlanArgs struct {
	ID      string   `json:"id" jsonschema:"required"`
	NodeIDs []string `json:"nodeIds,omitempty"`
}

// RetryPlanJobArgs is the argument shape for retry_copilot_plan_job.
type RetryPlanJobArgs struct {
	PlanID        string `json:"planId" jsonschema:"required"`
	JobID         string `json:"jobId" jsonschema:"required"`
	NewWork       string `json:"newWork,omitempty"`
	NewPrechecks  string `json:"newPrechecks,omitempty"`
	NewPostchecks string `json:"newPostchecks,omitempty"`
	ClearWorktree bool   `json:"clearWorktree,omitempty"`
}

// UpdatePlanArgs is the argument shape for update_copilot_plan.
type UpdatePlanArgs struct {
	PlanID          string            `json:"planId" jsonschema:"required"`
	Env             map[string]string `json:"env,omitempty"`
	MaxParallel     int               `json:"maxParallel,omitempty" jsonschema:"minimum=0"`
	ResumeAfterPlan string            `json:"resumeAfterPlan,omitempty"`
}

// Result is the common response envelope: "All responses are
// { success: bool, ... } with an error field on failure" (spec.md §6).
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}
