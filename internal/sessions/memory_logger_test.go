package sessions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cocodeai/cocode/pkg/models"
)

func TestMemoryLoggerAppend(t *testing.T) {
	dir := t.TempDir()
	logger := NewMemoryLogger(dir)

	ts := time.Date(2026, 1, 21, 12, 0, 1, 0, time.UTC)
	msg := &models.Message{
		SessionID: "session-1",
		Role:      models.RoleUser,
		Content:   []models.ContentBlock{{Type: models.BlockText, Text: "hello\nworld"}},
		CreatedAt: ts,
	}

	if err := logger.Append(msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	path := filepath.Join(dir, "2026-01-21.md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	text := string(data)
	if !strings.Contains(text, "user") {
		t.Fatalf("expected log to contain role, got %q", text)
	}
	if !strings.Contains(text, "session-1") {
		t.Fatalf("expected session id in log, got %q", text)
	}
	if !strings.Contains(text, "hello world") {
		t.Fatalf("expected flattened content, got %q", text)
	}
}

func TestMemoryLoggerReadRecentAt(t *testing.T) {
	dir := t.TempDir()
	logger := NewMemoryLogger(dir)

	now := time.Date(2026, 1, 21, 12, 0, 0, 0, time.UTC)
	msg := &models.Message{
		SessionID: "session-1",
		Role:      models.RoleUser,
		Content:   []models.ContentBlock{{Type: models.BlockText, Text: "hello"}},
		CreatedAt: now,
	}
	if err := logger.Append(msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	lines, err := logger.ReadRecentAt(now, "session-1", 3, 10)
	if err != nil {
		t.Fatalf("ReadRecentAt() error = %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "session-1") {
		t.Fatalf("expected line to reference session, got %q", lines[0])
	}

	otherSession, err := logger.ReadRecentAt(now, "session-2", 3, 10)
	if err != nil {
		t.Fatalf("ReadRecentAt() error = %v", err)
	}
	if len(otherSession) != 0 {
		t.Fatalf("expected no lines for unrelated session, got %d", len(otherSession))
	}
}
