// Package hooks provides an event-driven extensibility system for turn
// and tool lifecycle events.
package hooks

import (
	"context"
	"time"

	"github.com/cocodeai/cocode/pkg/models"
)

// EventType identifies the category of hook event.
type EventType string

const (
	// PreToolUse fires before a tool call is executed, after permission
	// evaluation has allowed it. A handler may still reject the call.
	PreToolUse EventType = "pre_tool_use"

	// PostToolUse fires after a tool call has produced a result.
	PostToolUse EventType = "post_tool_use"

	// SessionStart fires when a conversation session is created or
	// resumed.
	SessionStart EventType = "session_start"

	// SessionEnd fires when a session is closed (either normally or via
	// expiry).
	SessionEnd EventType = "session_end"

	// UserPromptSubmit fires when a new user message is about to be
	// added to the conversation, before the turn driver runs.
	UserPromptSubmit EventType = "user_prompt_submit"

	// TurnStart fires at the beginning of a turn driver iteration.
	TurnStart EventType = "turn_start"

	// TurnEnd fires after a turn driver iteration completes (success or
	// error).
	TurnEnd EventType = "turn_end"

	// CompactionStart fires before a CompactStrategy runs.
	CompactionStart EventType = "compaction_start"

	// CompactionEnd fires after a CompactStrategy completes.
	CompactionEnd EventType = "compaction_end"

	// Stop fires when the agent process is stopping (analogous to
	// Claude Code's Stop hook).
	Stop EventType = "stop"
)

// Outcome is the result a hook handler returns to the dispatcher.
type Outcome string

const (
	// OutcomeContinue lets the triggering operation proceed normally.
	OutcomeContinue Outcome = "continue"
	// OutcomeReject blocks the triggering operation (only meaningful for
	// PreToolUse and UserPromptSubmit).
	OutcomeReject Outcome = "reject"
)

// HookOutcome records what one handler decided for one dispatch, including
// timing for observability.
type HookOutcome struct {
	Name     string        `json:"name"`
	Result   Outcome       `json:"result"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ms"`
	Err      error         `json:"-"`
}

// Event represents a hook event with context and payload.
type Event struct {
	// Type is the event category.
	Type EventType `json:"type"`

	// SessionID identifies the conversation session this event relates
	// to.
	SessionID string `json:"session_id,omitempty"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// ToolName/ToolArgs/ToolCallID are populated for PreToolUse/
	// PostToolUse events.
	ToolName   string `json:"tool_name,omitempty"`
	ToolArgs   string `json:"tool_args,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolResult carries the tool's output for PostToolUse events.
	ToolResult string `json:"tool_result,omitempty"`

	// Message is the message associated with this event, if any
	// (UserPromptSubmit carries the incoming user message).
	Message *models.Message `json:"message,omitempty"`

	// Messages is a batch of messages, used by TurnEnd/CompactionStart.
	Messages []models.Message `json:"messages,omitempty"`

	// Context holds additional event-specific data.
	Context map[string]any `json:"context,omitempty"`

	// Error if this is an error event.
	Error    error  `json:"-"`
	ErrorMsg string `json:"error,omitempty"`
}

// Handler is a function that processes hook events and returns the
// dispatcher's verdict. Handlers should be fast; long-running work should
// be dispatched to goroutines by the handler itself if it doesn't need to
// block the result.
type Handler func(ctx context.Context, event *Event) (Outcome, error)

// Priority determines the order handlers are called.
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 25
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 75
	PriorityLowest  Priority = 100
)

// Lifetime controls how long a registration remains active.
type Lifetime string

const (
	// LifetimePersistent stays registered until explicitly removed.
	LifetimePersistent Lifetime = "persistent"
	// LifetimeOnce fires at most once, then auto-unregisters.
	LifetimeOnce Lifetime = "once"
	// LifetimeScoped is torn down automatically when its owning scope
	// (a skill or plugin instance) is unloaded.
	LifetimeScoped Lifetime = "scoped"
)

// Registration represents a registered hook handler.
type Registration struct {
	// ID is a unique identifier for this registration.
	ID string

	// EventKey is the event type this handler listens for.
	EventKey EventType

	// Handler is the function to call.
	Handler Handler

	// Priority determines call order (lower = earlier).
	Priority Priority

	// Name is a human-readable name for debugging.
	Name string

	// Source identifies where this handler came from (plugin name,
	// skill name, "cli", "project", ...).
	Source string

	// Lifetime governs automatic removal.
	Lifetime Lifetime

	// Scope names the skill/plugin instance this registration belongs
	// to, when Lifetime is LifetimeScoped.
	Scope string

	// Matcher optionally restricts this handler to tool names matching
	// a glob (e.g. "Bash", "mcp__*"). Empty matches every tool.
	Matcher string

	// Timeout bounds how long the dispatcher waits for this handler.
	Timeout time.Duration

	fired bool
}

// Filter allows selective event handling.
type Filter struct {
	// EventTypes to include (empty = all).
	EventTypes []EventType

	// SessionIDs to include (empty = all).
	SessionIDs []string
}

// Matches checks if an event matches the filter.
func (f *Filter) Matches(event *Event) bool {
	if f == nil {
		return true
	}

	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == event.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.SessionIDs) > 0 {
		found := false
		for _, s := range f.SessionIDs {
			if s == event.SessionID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// NewEvent creates a new event with timestamp set.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
}

// WithSession sets the session id on the event.
func (e *Event) WithSession(sessionID string) *Event {
	e.SessionID = sessionID
	return e
}

// WithMessage sets the message on the event.
func (e *Event) WithMessage(msg *models.Message) *Event {
	e.Message = msg
	return e
}

// WithTool sets tool call identifying fields on the event.
func (e *Event) WithTool(name, args, callID string) *Event {
	e.ToolName = name
	e.ToolArgs = args
	e.ToolCallID = callID
	return e
}

// WithContext adds context data to the event.
func (e *Event) WithContext(key string, value any) *Event {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithError sets the error on the event.
func (e *Event) WithError(err error) *Event {
	e.Error = err
	if err != nil {
		e.ErrorMsg = err.Error()
	}
	return e
}

// MatchesGlob reports whether the handler's Matcher (if any) matches the
// given tool name. An empty Matcher always matches.
func (r *Registration) MatchesGlob(tool string) bool {
	if r.Matcher == "" || r.Matcher == "*" {
		return true
	}
	if r.Matcher == tool {
		return true
	}
	if len(r.Matcher) > 1 && r.Matcher[len(r.Matcher)-1] == '*' {
		prefix := r.Matcher[:len(r.Matcher)-1]
		return len(tool) >= len(prefix) && tool[:len(prefix)] == prefix
	}
	return false
}
