package compaction

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// === SimpleStrategy ===

func TestSimpleStrategy_BuildCompactedHistory_PrependsSummary(t *testing.T) {
	recent := []*Message{{Role: "user", Content: "keep me"}}
	out, err := SimpleStrategy{}.BuildCompactedHistory(context.Background(), nil, recent, "the summary", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d messages, want 2 (summary + recent)", len(out))
	}
	if out[0].Content != "the summary" {
		t.Fatalf("first message = %q, want the summary", out[0].Content)
	}
	if out[1].Content != "keep me" {
		t.Fatalf("second message = %q, want the kept recent message", out[1].Content)
	}
}

func TestSimpleStrategy_BuildCompactedHistory_FallsBackWhenSummaryEmpty(t *testing.T) {
	out, err := SimpleStrategy{}.BuildCompactedHistory(context.Background(), nil, nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Content != DefaultSummaryFallback {
		t.Fatalf("summary = %q, want fallback", out[0].Content)
	}
}

func TestBoundMessagesByTokens_KeepsMostRecentWithinBudget(t *testing.T) {
	big := make([]*Message, 5)
	for i := range big {
		big[i] = &Message{Content: fmt.Sprintf("msg-%d-%s", i, repeatChar('x', 40))}
	}
	// each message is ~45 chars -> ~12 tokens; budget of 15 tokens should keep only the last one.
	kept := boundMessagesByTokens(big, 15)
	if len(kept) != 1 {
		t.Fatalf("got %d messages, want 1", len(kept))
	}
	if kept[0] != big[len(big)-1] {
		t.Fatal("expected the most recent message to be kept")
	}
}

func repeatChar(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

// === FileRecoveryStrategy ===

func toolCallsJSON(t *testing.T, name, path string) string {
	t.Helper()
	return fmt.Sprintf(`[{"id":"call_1","name":%q,"input":{"path":%q}}]`, name, path)
}

func TestFileRecoveryStrategy_RecoversRecentlyReadFiles(t *testing.T) {
	history := []*Message{
		{Role: "assistant", ToolCalls: toolCallsJSON(t, "read", "src/main.go")},
	}
	sctx := &StrategyContext{
		ReadFile: func(path string) (string, error) {
			if path != "src/main.go" {
				t.Fatalf("ReadFile called with unexpected path %q", path)
			}
			return "package main", nil
		},
	}

	out, err := FileRecoveryStrategy{}.BuildCompactedHistory(context.Background(), history, nil, "summary", sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, m := range out {
		if m.Content == "Recovered File: src/main.go\n\npackage main" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a recovered-file message, got %#v", out)
	}
}

func TestFileRecoveryStrategy_ExcludesIgnoredPaths(t *testing.T) {
	history := []*Message{
		{Role: "assistant", ToolCalls: toolCallsJSON(t, "read", "node_modules/x/index.js")},
	}
	called := false
	sctx := &StrategyContext{ReadFile: func(path string) (string, error) { called = true; return "", nil }}

	out, err := FileRecoveryStrategy{}.BuildCompactedHistory(context.Background(), history, nil, "summary", sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("ReadFile should not be called for an excluded path")
	}
	if len(out) != 1 {
		t.Fatalf("got %d messages, want just the summary", len(out))
	}
}

func TestFileRecoveryStrategy_DedupesMostRecentWins(t *testing.T) {
	history := []*Message{
		{Role: "assistant", ToolCalls: toolCallsJSON(t, "read", "a.go")},
		{Role: "assistant", ToolCalls: toolCallsJSON(t, "read", "a.go")},
	}
	calls := 0
	sctx := &StrategyContext{ReadFile: func(path string) (string, error) { calls++; return "content", nil }}

	_, err := FileRecoveryStrategy{}.BuildCompactedHistory(context.Background(), history, nil, "summary", sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("ReadFile called %d times, want 1 (deduped)", calls)
	}
}

func TestFileRecoveryStrategy_NoReadFileHookIsNoop(t *testing.T) {
	history := []*Message{{Role: "assistant", ToolCalls: toolCallsJSON(t, "read", "a.go")}}
	out, err := FileRecoveryStrategy{}.BuildCompactedHistory(context.Background(), history, nil, "summary", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d messages, want just the summary", len(out))
	}
}

func TestTruncateToTokenBudget_CapsLength(t *testing.T) {
	content := repeatChar('a', 1000)
	truncated, tokens := truncateToTokenBudget(content, 10) // 10 tokens * 4 chars/token = 40 chars
	if len(truncated) != 40 {
		t.Fatalf("truncated length = %d, want 40", len(truncated))
	}
	if tokens != 10 {
		t.Fatalf("tokens = %d, want 10", tokens)
	}
}

// === SessionMemoryExtractor ===

type fakeLifecycle struct {
	started, completed, failed int
	lastID                     string
	lastErr                    error
}

func (f *fakeLifecycle) SessionMemoryExtractionStarted(ctx context.Context) { f.started++ }
func (f *fakeLifecycle) SessionMemoryExtractionCompleted(ctx context.Context, lastSummarizedMessageID string) {
	f.completed++
	f.lastID = lastSummarizedMessageID
}
func (f *fakeLifecycle) SessionMemoryExtractionFailed(ctx context.Context, err error) {
	f.failed++
	f.lastErr = err
}

type fakeWriter struct {
	summary string
	lastID  string
}

func (w *fakeWriter) WriteSummary(ctx context.Context, summary, lastMessageID string) error {
	w.summary = summary
	w.lastID = lastMessageID
	return nil
}

func TestSessionMemoryExtractor_SkipsBelowTokenThreshold(t *testing.T) {
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 1000}, &mockSummarizer{}, &fakeWriter{})
	extractor.RecordTokens(10)

	lifecycle := &fakeLifecycle{}
	if err := extractor.MaybeExtract(context.Background(), nil, lifecycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lifecycle.started != 0 {
		t.Fatal("extraction should not have started below the token threshold")
	}
}

func TestSessionMemoryExtractor_RunsOnceThresholdMet(t *testing.T) {
	writer := &fakeWriter{}
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 10, Cooldown: time.Millisecond}, &mockSummarizer{summaries: []string{"the summary"}}, writer)
	extractor.RecordTokens(100)

	history := []*Message{{ID: "msg-1", Content: "hi"}}
	lifecycle := &fakeLifecycle{}
	if err := extractor.MaybeExtract(context.Background(), history, lifecycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if lifecycle.started != 1 || lifecycle.completed != 1 || lifecycle.failed != 0 {
		t.Fatalf("lifecycle = %+v, want one started+completed", lifecycle)
	}
	if lifecycle.lastID != "msg-1" {
		t.Fatalf("lastID = %q, want msg-1", lifecycle.lastID)
	}
	if writer.summary != "the summary" || writer.lastID != "msg-1" {
		t.Fatalf("writer = %+v, want the summary recorded", writer)
	}
	if extractor.LastSummary() != "the summary" {
		t.Fatalf("LastSummary() = %q, want the summary", extractor.LastSummary())
	}
}

func TestSessionMemoryExtractor_SuppressedWhileCompacting(t *testing.T) {
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 1}, &mockSummarizer{}, &fakeWriter{})
	extractor.RecordTokens(1000)
	extractor.SetCompacting(true)

	lifecycle := &fakeLifecycle{}
	if err := extractor.MaybeExtract(context.Background(), nil, lifecycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lifecycle.started != 0 {
		t.Fatal("extraction should be suppressed while a foreground compaction is in flight")
	}
}

func TestSessionMemoryExtractor_SecondRunGatedOnToolCalls(t *testing.T) {
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 1, ToolCallThreshold: 5, Cooldown: time.Microsecond}, &mockSummarizer{}, &fakeWriter{})
	extractor.RecordTokens(1000)

	if err := extractor.MaybeExtract(context.Background(), []*Message{{ID: "m1"}}, nil); err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	extractor.RecordTokens(1000)
	extractor.RecordToolCall() // only 1, below ToolCallThreshold of 5

	lifecycle := &fakeLifecycle{}
	if err := extractor.MaybeExtract(context.Background(), []*Message{{ID: "m2"}}, lifecycle); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lifecycle.started != 0 {
		t.Fatal("second extraction should be gated on tool-call count")
	}
}

func TestSessionMemoryExtractor_FailureEmitsFailedLifecycle(t *testing.T) {
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 1}, &mockSummarizer{shouldError: true, errorMessage: "boom"}, &fakeWriter{})
	extractor.RecordTokens(1000)

	lifecycle := &fakeLifecycle{}
	err := extractor.MaybeExtract(context.Background(), nil, lifecycle)
	if err == nil {
		t.Fatal("expected an error from the failing summarizer")
	}
	if lifecycle.failed != 1 || lifecycle.completed != 0 {
		t.Fatalf("lifecycle = %+v, want one failed", lifecycle)
	}
	if lifecycle.lastErr == nil {
		t.Fatal("expected lastErr to be recorded")
	}
}

// === SessionMemoryStrategy ===

func TestSessionMemoryStrategy_UsesExtractorsLastSummaryWhenPresent(t *testing.T) {
	writer := &fakeWriter{}
	extractor := NewSessionMemoryExtractor(SessionMemoryConfig{TokenThreshold: 1}, &mockSummarizer{summaries: []string{"extracted"}}, writer)
	extractor.RecordTokens(1000)
	if err := extractor.MaybeExtract(context.Background(), []*Message{{ID: "m1"}}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	strategy := SessionMemoryStrategy{Extractor: extractor}
	out, err := strategy.BuildCompactedHistory(context.Background(), nil, nil, "caller-supplied summary", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Content != "extracted" {
		t.Fatalf("summary content = %q, want the extractor's summary to take priority", out[0].Content)
	}
}

func TestSessionMemoryStrategy_FallsBackToCallerSummaryWithoutExtraction(t *testing.T) {
	strategy := SessionMemoryStrategy{Extractor: NewSessionMemoryExtractor(SessionMemoryConfig{}, &mockSummarizer{}, &fakeWriter{})}
	out, err := strategy.BuildCompactedHistory(context.Background(), nil, nil, "caller-supplied summary", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Content != "caller-supplied summary" {
		t.Fatalf("summary content = %q, want the caller-supplied fallback", out[0].Content)
	}
}
