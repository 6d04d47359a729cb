package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestModelRole_Constants(t *testing.T) {
	tests := []struct {
		constant ModelRole
		expected string
	}{
		{RoleMain, "main"},
		{RoleFast, "fast"},
		{RoleVision, "vision"},
	}

	for _, tt := range tests {
		t.Run(string(tt.constant), func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestSession_Struct(t *testing.T) {
	now := time.Now()
	session := Session{
		ID:               "session-123",
		AgentID:          "agent-456",
		WorkspaceID:      "workspace-789",
		WorkingDirectory: "/home/user/project",
		MaxTurns:         25,
		Ephemeral:        true,
		RoleSelections: map[ModelRole]RoleSelection{
			RoleMain: {Provider: "anthropic", Model: "claude-sonnet-4"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if session.WorkingDirectory != "/home/user/project" {
		t.Errorf("WorkingDirectory = %q, want %q", session.WorkingDirectory, "/home/user/project")
	}
	if session.MaxTurns != 25 {
		t.Errorf("MaxTurns = %d, want 25", session.MaxTurns)
	}
	if !session.Ephemeral {
		t.Error("Ephemeral = false, want true")
	}
}

func TestSession_JSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := Session{
		ID:               "session-123",
		WorkingDirectory: "/srv/repo",
		MaxTurns:         10,
		Ephemeral:        false,
		RoleSelections: map[ModelRole]RoleSelection{
			RoleMain: {Provider: "anthropic", Model: "claude-sonnet-4"},
			RoleFast: {Provider: "anthropic", Model: "claude-haiku-4"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded Session
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if decoded.WorkingDirectory != original.WorkingDirectory {
		t.Errorf("WorkingDirectory = %q, want %q", decoded.WorkingDirectory, original.WorkingDirectory)
	}
	if decoded.MaxTurns != original.MaxTurns {
		t.Errorf("MaxTurns = %d, want %d", decoded.MaxTurns, original.MaxTurns)
	}
	if len(decoded.RoleSelections) != len(original.RoleSelections) {
		t.Fatalf("RoleSelections len = %d, want %d", len(decoded.RoleSelections), len(original.RoleSelections))
	}
	if decoded.RoleSelections[RoleFast].Model != "claude-haiku-4" {
		t.Errorf("RoleSelections[RoleFast].Model = %q, want %q", decoded.RoleSelections[RoleFast].Model, "claude-haiku-4")
	}
}

func TestSession_ResolveRole(t *testing.T) {
	tests := []struct {
		name       string
		selections map[ModelRole]RoleSelection
		role       ModelRole
		wantModel  string
		wantOK     bool
	}{
		{
			name:       "no selections configured",
			selections: nil,
			role:       RoleMain,
			wantOK:     false,
		},
		{
			name: "exact role configured",
			selections: map[ModelRole]RoleSelection{
				RoleVision: {Provider: "openai", Model: "gpt-5-vision"},
			},
			role:      RoleVision,
			wantModel: "gpt-5-vision",
			wantOK:    true,
		},
		{
			name: "unconfigured non-main role falls back to main",
			selections: map[ModelRole]RoleSelection{
				RoleMain: {Provider: "anthropic", Model: "claude-sonnet-4"},
			},
			role:      RoleFast,
			wantModel: "claude-sonnet-4",
			wantOK:    true,
		},
		{
			name: "unconfigured role with no main fallback",
			selections: map[ModelRole]RoleSelection{
				RoleVision: {Provider: "openai", Model: "gpt-5-vision"},
			},
			role:   RoleFast,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := Session{RoleSelections: tt.selections}
			sel, ok := session.ResolveRole(tt.role)
			if ok != tt.wantOK {
				t.Fatalf("ResolveRole() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && sel.Model != tt.wantModel {
				t.Errorf("ResolveRole() model = %q, want %q", sel.Model, tt.wantModel)
			}
		})
	}
}

func TestSession_ResolveRole_MainNeverFallsBackToItself(t *testing.T) {
	session := Session{RoleSelections: map[ModelRole]RoleSelection{}}
	if _, ok := session.ResolveRole(RoleMain); ok {
		t.Error("ResolveRole(RoleMain) with no selections should report false, not loop back to itself")
	}
}
