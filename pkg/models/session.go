package models

import "time"

// ModelRole names a slot in a session's provider/model routing table.
// Non-Main roles fall back to the Main selection when unset, so a
// session only needs to configure the roles it wants to override.
type ModelRole string

const (
	RoleMain   ModelRole = "main"
	RoleFast   ModelRole = "fast"
	RoleVision ModelRole = "vision"
)

// RoleSelection is the concrete provider/model a ModelRole resolves to.
type RoleSelection struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Session is the live, addressable handle for one conversation: the thing
// tools, hooks, and the turn driver key their state off of. It wraps a
// Conversation's identity with workspace/agent scoping and routing
// metadata that isn't persisted as part of message history.
type Session struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id,omitempty"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	Key         string         `json:"key,omitempty"`
	Title       string         `json:"title,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// WorkingDirectory is the filesystem root file/exec tools resolve
	// relative paths against for this session.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// RoleSelections maps a ModelRole to the provider/model it resolves
	// to for this session. Roles absent from the map fall back to
	// RoleMain via ResolveRole.
	RoleSelections map[ModelRole]RoleSelection `json:"role_selections,omitempty"`

	// MaxTurns caps the number of agentic-loop iterations a single run
	// may take before it is forced to stop, regardless of whether the
	// model keeps requesting tool calls. Zero means the runtime default
	// applies.
	MaxTurns int `json:"max_turns,omitempty"`

	// Ephemeral sessions are not persisted past process lifetime: stores
	// may skip expiry bookkeeping and scratch-dir cleanup can be
	// immediate rather than TTL-based.
	Ephemeral bool `json:"ephemeral,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolveRole returns the RoleSelection for role, falling back to RoleMain
// when role is unset or not RoleMain itself. Returns the zero
// RoleSelection and false when neither role nor RoleMain is configured.
func (s *Session) ResolveRole(role ModelRole) (RoleSelection, bool) {
	if s.RoleSelections != nil {
		if sel, ok := s.RoleSelections[role]; ok {
			return sel, true
		}
		if role != RoleMain {
			if sel, ok := s.RoleSelections[RoleMain]; ok {
				return sel, true
			}
		}
	}
	return RoleSelection{}, false
}
