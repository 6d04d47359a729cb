package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cocodeai/cocode/internal/hooks"
	"github.com/cocodeai/cocode/internal/policy"
	"github.com/cocodeai/cocode/internal/retry"
	"github.com/cocodeai/cocode/pkg/models"
)

// TurnDriver runs one tool call through the full pipeline spec.md's turn
// loop describes: evaluate permission (the rule-based PermissionEvaluator,
// which itself consults the tool's own CheckPermission as its middle
// pass), route "ask" outcomes through the hook system's approval
// workflow, fire PreToolUse/PostToolUse around the call, and retry
// transient failures with a fresh RetryContext per call. Runtime.run's
// agentic loop drives the rest of the turn (context packing, completion,
// summarization); TurnDriver only owns the tool-call step.
type TurnDriver struct {
	registry    *ToolRegistry
	evaluator   *policy.PermissionEvaluator
	hookMgr     *hooks.ToolHookManager
	approvals   *hooks.ApprovalWorkflow
	retryConfig retry.ContextConfig
	logger      *slog.Logger
}

// NewTurnDriver builds a TurnDriver around registry. evaluator may be nil,
// in which case permission falls back to each tool's own CheckPermission.
// hookRegistry may be nil, in which case hooks and interactive approval
// are both skipped (a NeedsApproval decision is then treated as denied,
// since there is nowhere to route the approval request).
func NewTurnDriver(registry *ToolRegistry, evaluator *policy.PermissionEvaluator, hookRegistry *hooks.Registry, retryConfig retry.ContextConfig) *TurnDriver {
	logger := slog.Default().With("component", "turn-driver")
	driver := &TurnDriver{
		registry:    registry,
		evaluator:   evaluator,
		retryConfig: retryConfig,
		logger:      logger,
	}
	if hookRegistry != nil {
		driver.hookMgr = hooks.NewToolHookManager(hookRegistry, logger)
		driver.approvals = hooks.NewApprovalWorkflow(hookRegistry, logger)
	}
	return driver
}

// ExecuteConcurrently runs calls with up to concurrency in flight, in the
// same ToolExecResult shape ToolExecutor.ExecuteConcurrently produces, so
// callers can treat the two executors interchangeably.
func (d *TurnDriver) ExecuteConcurrently(ctx context.Context, calls []models.ToolCall, sessionID string, concurrency int) []ToolExecResult {
	if concurrency <= 0 {
		concurrency = 4
	}
	results := make([]ToolExecResult, len(calls))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = ToolExecResult{
					Index:    idx,
					ToolCall: tc,
					Result: models.ToolResult{
						ToolCallID: tc.ID,
						Content:    "context canceled",
						IsError:    true,
					},
				}
				return
			}

			start := time.Now()
			result := d.ExecuteToolCall(ctx, tc, sessionID)
			results[idx] = ToolExecResult{
				Index:     idx,
				ToolCall:  tc,
				Result:    result,
				StartTime: start,
				EndTime:   time.Now(),
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

// ExecuteToolCall runs one tool call through permission evaluation, the
// approval workflow, PreToolUse/PostToolUse hooks, and a retrying
// execution loop, in that order.
func (d *TurnDriver) ExecuteToolCall(ctx context.Context, call models.ToolCall, sessionID string) models.ToolResult {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return models.ToolResult{ToolCallID: call.ID, Content: "tool not found: " + call.Name, IsError: true}
	}

	decision := d.evaluate(call, tool)
	if decision.Denied() {
		return models.ToolResult{ToolCallID: call.ID, Content: "denied: " + decision.Reason, IsError: true}
	}
	if decision.NeedsApproval() {
		approved, reason := d.requestApproval(ctx, call, sessionID, decision.Reason)
		if !approved {
			return models.ToolResult{ToolCallID: call.ID, Content: "not approved: " + reason, IsError: true}
		}
	}

	hookCtx := &hooks.ToolHookContext{
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Input:      call.Input,
		SessionID:  sessionID,
	}
	if d.hookMgr != nil {
		outcome, err := d.hookMgr.TriggerPreExecution(ctx, hookCtx)
		if err != nil {
			d.logger.Warn("pre-tool-use hook error", "tool", call.Name, "tool_call_id", call.ID, "error", err)
		}
		if outcome == hooks.OutcomeReject {
			return models.ToolResult{ToolCallID: call.ID, Content: "rejected by pre-tool-use hook", IsError: true}
		}
	}

	start := time.Now()
	result := d.executeWithRetry(ctx, call)

	hookCtx.Output = result.Content
	hookCtx.Duration = time.Since(start)
	if result.IsError {
		hookCtx.ErrorMsg = result.Content
	}
	if d.hookMgr != nil {
		if err := d.hookMgr.TriggerPostExecution(ctx, hookCtx); err != nil {
			d.logger.Warn("post-tool-use hook error", "tool", call.Name, "tool_call_id", call.ID, "error", err)
		}
	}
	return result
}

// evaluate resolves the permission decision for call. The evaluator, when
// present, already consults tool.CheckPermission as its middle pass, so
// the tool is passed as the checker rather than queried twice.
func (d *TurnDriver) evaluate(call models.ToolCall, tool Tool) policy.Decision {
	if d.evaluator != nil {
		return d.evaluator.Evaluate(call.Name, "", "", call.Input, tool)
	}
	if decision := tool.CheckPermission(call.Input); decision.Behavior != "" {
		return decision
	}
	return policy.Decision{Behavior: models.PermissionAllow}
}

func (d *TurnDriver) requestApproval(ctx context.Context, call models.ToolCall, sessionID, reason string) (bool, string) {
	if d.approvals == nil {
		return false, "no approval workflow configured"
	}
	req := &hooks.ApprovalRequest{
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Input:      call.Input,
		SessionID:  sessionID,
		Reason:     reason,
	}
	resp, err := d.approvals.RequestApproval(ctx, req)
	if err != nil {
		return false, err.Error()
	}
	return resp.Approved, resp.Reason
}

// executeWithRetry runs the tool through the registry, retrying
// transient failures according to a fresh RetryContext for this call.
// A Fallback decision has no meaning for a single tool (there is no
// alternate tool to fall back to), so it is treated the same as GiveUp.
func (d *TurnDriver) executeWithRetry(ctx context.Context, call models.ToolCall) models.ToolResult {
	rc := retry.NewRetryContext(d.retryConfig)
	for {
		toolResult, err := d.registry.Execute(ctx, call.Name, call.Input)

		if err == nil && toolResult != nil && !toolResult.IsError {
			return models.ToolResult{ToolCallID: call.ID, Content: toolResult.Content, IsError: false}
		}

		var callErr error
		switch {
		case err != nil:
			callErr = err
		case toolResult != nil:
			callErr = fmt.Errorf("%s", toolResult.Content)
		default:
			callErr = fmt.Errorf("tool %s produced no result", call.Name)
		}

		outcome := rc.Decide(callErr)
		if outcome.Decision == retry.DecisionRetry {
			select {
			case <-time.After(outcome.Delay):
				continue
			case <-ctx.Done():
				return models.ToolResult{ToolCallID: call.ID, Content: "context canceled", IsError: true}
			}
		}

		return models.ToolResult{ToolCallID: call.ID, Content: callErr.Error(), IsError: true}
	}
}
