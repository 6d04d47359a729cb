package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ApprovalEvent types fire alongside PreToolUse when a tool call requires
// human approval, separate from PreToolUse/PostToolUse hook dispatch.
const (
	EventToolApprovalRequired EventType = "tool_approval_required"
	EventToolApprovalGranted  EventType = "tool_approval_granted"
	EventToolApprovalDenied   EventType = "tool_approval_denied"
	EventToolApprovalTimeout  EventType = "tool_approval_timeout"
)

// ToolHookContext provides context for tool execution hooks.
type ToolHookContext struct {
	ToolName   string          `json:"tool_name"`
	ToolCallID string          `json:"tool_call_id"`
	Input      json.RawMessage `json:"input"`
	Output     string          `json:"output,omitempty"`

	Error    error  `json:"-"`
	ErrorMsg string `json:"error,omitempty"`

	Duration    time.Duration `json:"duration,omitempty"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	SessionID   string        `json:"session_id,omitempty"`

	// Canceled indicates execution should be skipped (set by a
	// PreToolUse handler that rejected the call).
	Canceled     bool   `json:"canceled"`
	CancelReason string `json:"cancel_reason,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// ToolPreHook is a specialized handler for PreToolUse. Returning
// OutcomeReject cancels the tool call.
type ToolPreHook func(ctx context.Context, hookCtx *ToolHookContext) (Outcome, error)

// ToolPostHook is a specialized handler for PostToolUse.
type ToolPostHook func(ctx context.Context, hookCtx *ToolHookContext) (Outcome, error)

// ToolHookManager manages PreToolUse/PostToolUse dispatch on top of a
// Registry, exposing the spec's tool-call-scoped hook shape.
type ToolHookManager struct {
	registry *Registry
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewToolHookManager creates a new tool hook manager.
func NewToolHookManager(registry *Registry, logger *slog.Logger) *ToolHookManager {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = Global()
	}
	return &ToolHookManager{registry: registry, logger: logger.With("component", "tool-hooks")}
}

type toolHookConfig struct {
	priority Priority
	matcher  string
}

// ToolHookOption configures tool hook registration.
type ToolHookOption func(*toolHookConfig)

// ForTool limits the hook to a specific tool name glob.
func ForTool(glob string) ToolHookOption {
	return func(c *toolHookConfig) { c.matcher = glob }
}

// WithHookPriority sets the hook priority.
func WithHookPriority(p Priority) ToolHookOption {
	return func(c *toolHookConfig) { c.priority = p }
}

// RegisterPreHook registers a PreToolUse hook.
func (m *ToolHookManager) RegisterPreHook(name string, handler ToolPreHook, opts ...ToolHookOption) string {
	cfg := &toolHookConfig{priority: PriorityNormal}
	for _, opt := range opts {
		opt(cfg)
	}

	wrapped := func(ctx context.Context, event *Event) (Outcome, error) {
		hookCtx, ok := event.Context["tool_hook_context"].(*ToolHookContext)
		if !ok {
			return OutcomeContinue, nil
		}
		return handler(ctx, hookCtx)
	}

	regOpts := []RegisterOption{WithName(name), WithPriority(cfg.priority)}
	if cfg.matcher != "" {
		regOpts = append(regOpts, WithMatcher(cfg.matcher))
	}
	id := m.registry.Register(PreToolUse, wrapped, regOpts...)
	m.logger.Debug("registered pre-tool-use hook", "id", id, "name", name, "matcher", cfg.matcher)
	return id
}

// RegisterPostHook registers a PostToolUse hook.
func (m *ToolHookManager) RegisterPostHook(name string, handler ToolPostHook, opts ...ToolHookOption) string {
	cfg := &toolHookConfig{priority: PriorityNormal}
	for _, opt := range opts {
		opt(cfg)
	}

	wrapped := func(ctx context.Context, event *Event) (Outcome, error) {
		hookCtx, ok := event.Context["tool_hook_context"].(*ToolHookContext)
		if !ok {
			return OutcomeContinue, nil
		}
		return handler(ctx, hookCtx)
	}

	regOpts := []RegisterOption{WithName(name), WithPriority(cfg.priority)}
	if cfg.matcher != "" {
		regOpts = append(regOpts, WithMatcher(cfg.matcher))
	}
	id := m.registry.Register(PostToolUse, wrapped, regOpts...)
	m.logger.Debug("registered post-tool-use hook", "id", id, "name", name, "matcher", cfg.matcher)
	return id
}

// Unregister removes a hook by ID.
func (m *ToolHookManager) Unregister(id string) bool {
	return m.registry.Unregister(id)
}

// TriggerPreExecution dispatches PreToolUse and reports whether any
// handler rejected the call.
func (m *ToolHookManager) TriggerPreExecution(ctx context.Context, hookCtx *ToolHookContext) (Outcome, error) {
	event := NewEvent(PreToolUse).
		WithSession(hookCtx.SessionID).
		WithTool(hookCtx.ToolName, string(hookCtx.Input), hookCtx.ToolCallID).
		WithContext("tool_hook_context", hookCtx)

	outcome, _, err := m.registry.Trigger(ctx, event)
	return outcome, err
}

// TriggerPostExecution dispatches PostToolUse.
func (m *ToolHookManager) TriggerPostExecution(ctx context.Context, hookCtx *ToolHookContext) error {
	event := NewEvent(PostToolUse).
		WithSession(hookCtx.SessionID).
		WithTool(hookCtx.ToolName, string(hookCtx.Input), hookCtx.ToolCallID).
		WithContext("tool_hook_context", hookCtx).
		WithContext("duration_ms", hookCtx.Duration.Milliseconds())
	event.ToolResult = hookCtx.Output

	if hookCtx.Error != nil {
		event = event.WithError(hookCtx.Error)
	}

	_, _, err := m.registry.Trigger(ctx, event)
	return err
}

// ApprovalRequest represents a request for tool execution approval.
type ApprovalRequest struct {
	ID          string          `json:"id"`
	ToolName    string          `json:"tool_name"`
	ToolCallID  string          `json:"tool_call_id"`
	Input       json.RawMessage `json:"input"`
	SessionID   string          `json:"session_id"`
	Reason      string          `json:"reason"`
	RequestedAt time.Time       `json:"requested_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// ApprovalResponse represents a response to an approval request.
type ApprovalResponse struct {
	RequestID     string          `json:"request_id"`
	Approved      bool            `json:"approved"`
	ApprovedBy    string          `json:"approved_by,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	RespondedAt   time.Time       `json:"responded_at"`
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
}

// ApprovalWorkflow manages out-of-band tool approval requests, used by
// the PermissionEvaluator's "ask" stage.
type ApprovalWorkflow struct {
	registry       *Registry
	logger         *slog.Logger
	pendingMu      sync.RWMutex
	pending        map[string]*ApprovalRequest
	responseChans  map[string]chan *ApprovalResponse
	defaultTimeout time.Duration
}

// NewApprovalWorkflow creates a new approval workflow manager.
func NewApprovalWorkflow(registry *Registry, logger *slog.Logger) *ApprovalWorkflow {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = Global()
	}
	return &ApprovalWorkflow{
		registry:       registry,
		logger:         logger.With("component", "approval-workflow"),
		pending:        make(map[string]*ApprovalRequest),
		responseChans:  make(map[string]chan *ApprovalResponse),
		defaultTimeout: 5 * time.Minute,
	}
}

// RequestApproval initiates an approval request and waits for a response.
func (w *ApprovalWorkflow) RequestApproval(ctx context.Context, req *ApprovalRequest) (*ApprovalResponse, error) {
	if req.ID == "" {
		req.ID = fmt.Sprintf("approval-%s-%d", req.ToolCallID, time.Now().UnixNano())
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now()
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.RequestedAt.Add(w.defaultTimeout)
	}

	responseChan := make(chan *ApprovalResponse, 1)

	w.pendingMu.Lock()
	w.pending[req.ID] = req
	w.responseChans[req.ID] = responseChan
	w.pendingMu.Unlock()

	event := NewEvent(EventToolApprovalRequired).
		WithSession(req.SessionID).
		WithTool(req.ToolName, string(req.Input), req.ToolCallID).
		WithContext("approval_request", req)
	w.registry.TriggerAsync(ctx, event)

	w.logger.Info("approval requested", "request_id", req.ID, "tool_name", req.ToolName, "expires_at", req.ExpiresAt)

	timeout := time.Until(req.ExpiresAt)
	if timeout < 0 {
		timeout = 0
	}
	select {
	case response := <-responseChan:
		w.cleanup(req.ID)
		return response, nil
	case <-time.After(timeout):
		w.cleanup(req.ID)
		timeoutEvent := NewEvent(EventToolApprovalTimeout).
			WithSession(req.SessionID).
			WithContext("approval_request", req)
		w.registry.TriggerAsync(ctx, timeoutEvent)
		return nil, fmt.Errorf("approval request timed out after %v", timeout)
	case <-ctx.Done():
		w.cleanup(req.ID)
		return nil, ctx.Err()
	}
}

// Respond processes an approval response.
func (w *ApprovalWorkflow) Respond(ctx context.Context, response *ApprovalResponse) error {
	w.pendingMu.RLock()
	req, exists := w.pending[response.RequestID]
	responseChan, hasChan := w.responseChans[response.RequestID]
	w.pendingMu.RUnlock()

	if !exists {
		return fmt.Errorf("no pending approval request with ID: %s", response.RequestID)
	}

	if response.RespondedAt.IsZero() {
		response.RespondedAt = time.Now()
	}

	eventType := EventToolApprovalDenied
	if response.Approved {
		eventType = EventToolApprovalGranted
	}
	event := NewEvent(eventType).
		WithSession(req.SessionID).
		WithContext("approval_request", req).
		WithContext("approval_response", response)
	w.registry.TriggerAsync(ctx, event)

	w.logger.Info("approval response received", "request_id", response.RequestID, "approved", response.Approved, "approved_by", response.ApprovedBy)

	if hasChan {
		select {
		case responseChan <- response:
		default:
		}
	}
	return nil
}

// GetPending returns all pending approval requests.
func (w *ApprovalWorkflow) GetPending() []*ApprovalRequest {
	w.pendingMu.RLock()
	defer w.pendingMu.RUnlock()
	result := make([]*ApprovalRequest, 0, len(w.pending))
	for _, req := range w.pending {
		result = append(result, req)
	}
	return result
}

// GetPendingBySession returns pending requests for a session.
func (w *ApprovalWorkflow) GetPendingBySession(sessionID string) []*ApprovalRequest {
	w.pendingMu.RLock()
	defer w.pendingMu.RUnlock()
	var result []*ApprovalRequest
	for _, req := range w.pending {
		if req.SessionID == sessionID {
			result = append(result, req)
		}
	}
	return result
}

// Cancel cancels a pending approval request.
func (w *ApprovalWorkflow) Cancel(requestID string) bool {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if _, exists := w.pending[requestID]; !exists {
		return false
	}
	if ch, ok := w.responseChans[requestID]; ok {
		close(ch)
		delete(w.responseChans, requestID)
	}
	delete(w.pending, requestID)
	return true
}

// SetDefaultTimeout sets the default approval timeout.
func (w *ApprovalWorkflow) SetDefaultTimeout(d time.Duration) {
	w.defaultTimeout = d
}

func (w *ApprovalWorkflow) cleanup(requestID string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	delete(w.pending, requestID)
	delete(w.responseChans, requestID)
}
