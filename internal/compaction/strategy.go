package compaction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Compaction strategy tuning constants.
const (
	// RecentUserMessageTokenBudget bounds how many tokens of recent user
	// messages Simple (and anything built on it) keeps, by byte estimate.
	RecentUserMessageTokenBudget = 20000

	// FileRecoveryMaxFiles caps how many recently read files get re-read
	// and reattached by the FileRecovery strategy.
	FileRecoveryMaxFiles = 5

	// FileRecoveryPerFileTokenCap truncates any single recovered file to
	// this many estimated tokens.
	FileRecoveryPerFileTokenCap = 10000

	// FileRecoveryTotalTokenCap bounds the combined size of all recovered
	// files; recovery stops once this budget would be exceeded.
	FileRecoveryTotalTokenCap = 50000
)

// excludedPathSegments are path components that disqualify a file from
// FileRecovery re-reading (build artifacts, VCS metadata, scratch dirs).
var excludedPathSegments = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	".cache":       true,
	"tmp":          true,
}

// StrategyContext carries the side-channel inputs a CompactStrategy needs
// beyond the message history itself.
type StrategyContext struct {
	// WorkingDirectory anchors relative file paths for recovery re-reads.
	WorkingDirectory string

	// ReadFile re-reads a file's current contents from the filesystem
	// (not from history) for the FileRecovery strategy. Required only by
	// FileRecoveryStrategy; Simple and SessionMemory ignore it.
	ReadFile func(path string) (string, error)
}

// CompactStrategy is the shared trait every compaction strategy
// implements: a name for logging/selection, the prompt sent to the
// summarization model, and the logic that folds a summary back into a
// compacted history.
type CompactStrategy interface {
	Name() string
	GeneratePrompt(history []*Message) string
	BuildCompactedHistory(ctx context.Context, history, recentUserMessages []*Message, summaryText string, sctx *StrategyContext) ([]*Message, error)
}

// boundMessagesByTokens keeps the most recent messages from messages that
// fit within maxTokens, estimated the same way EstimateTokens does.
func boundMessagesByTokens(messages []*Message, maxTokens int) []*Message {
	if len(messages) == 0 {
		return nil
	}
	kept := make([]*Message, 0, len(messages))
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		msgTokens := EstimateTokens(messages[i])
		if total+msgTokens > maxTokens && len(kept) > 0 {
			break
		}
		kept = append([]*Message{messages[i]}, kept...)
		total += msgTokens
	}
	return kept
}

// SimpleStrategy keeps a token-bounded window of recent user messages and
// appends the summary as a single synthetic user message.
type SimpleStrategy struct{}

func (SimpleStrategy) Name() string { return "simple" }

func (SimpleStrategy) GeneratePrompt(history []*Message) string {
	return "Summarize the conversation so far, preserving the user's goals, " +
		"decisions made, and any unresolved questions. Be concise."
}

func (SimpleStrategy) BuildCompactedHistory(ctx context.Context, history, recentUserMessages []*Message, summaryText string, sctx *StrategyContext) ([]*Message, error) {
	if summaryText == "" {
		summaryText = DefaultSummaryFallback
	}
	kept := boundMessagesByTokens(recentUserMessages, RecentUserMessageTokenBudget)

	out := make([]*Message, 0, len(kept)+1)
	out = append(out, &Message{Role: "user", Content: summaryText, Timestamp: time.Now().Unix()})
	out = append(out, kept...)
	return out, nil
}

// toolCallRecord mirrors the JSON shape a Message.ToolCalls string is
// expected to carry: models.ToolCall{ID, Name, Input}, serialized as an
// array.
type toolCallRecord struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// readToolInput is the subset of the read tool's input schema this package
// cares about (internal/tools/files.ReadTool's "path" argument).
type readToolInput struct {
	Path string `json:"path"`
}

// isExcludedPath reports whether any path segment names a build artifact,
// VCS, or scratch directory FileRecovery should never re-read.
func isExcludedPath(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if excludedPathSegments[seg] {
			return true
		}
	}
	return false
}

// recentReadFilePaths scans history from most recent to oldest for "read"
// tool calls, returning up to maxFiles distinct, non-excluded paths with
// the most recently read occurrence of each path winning.
func recentReadFilePaths(history []*Message, maxFiles int) []string {
	seen := make(map[string]bool)
	var paths []string

	for i := len(history) - 1; i >= 0 && len(paths) < maxFiles; i-- {
		msg := history[i]
		if msg == nil || msg.ToolCalls == "" {
			continue
		}
		var calls []toolCallRecord
		if err := json.Unmarshal([]byte(msg.ToolCalls), &calls); err != nil {
			continue
		}
		for _, call := range calls {
			if call.Name != "read" {
				continue
			}
			var input readToolInput
			if err := json.Unmarshal(call.Input, &input); err != nil || input.Path == "" {
				continue
			}
			if seen[input.Path] || isExcludedPath(input.Path) {
				continue
			}
			seen[input.Path] = true
			paths = append(paths, input.Path)
			if len(paths) >= maxFiles {
				break
			}
		}
	}
	return paths
}

// truncateToTokenBudget trims content to at most maxTokens estimated
// tokens (CharsPerToken chars/token) and reports the resulting estimate.
func truncateToTokenBudget(content string, maxTokens int) (string, int) {
	maxChars := maxTokens * CharsPerToken
	if len(content) > maxChars {
		content = content[:maxChars]
	}
	return content, (len(content) + CharsPerToken - 1) / CharsPerToken
}

// FileRecoveryStrategy extends Simple by re-reading the most recently
// touched files from the filesystem (not from stale history) and
// reattaching their current contents as synthetic messages.
type FileRecoveryStrategy struct{}

func (FileRecoveryStrategy) Name() string { return "file_recovery" }

func (FileRecoveryStrategy) GeneratePrompt(history []*Message) string {
	return SimpleStrategy{}.GeneratePrompt(history)
}

func (FileRecoveryStrategy) BuildCompactedHistory(ctx context.Context, history, recentUserMessages []*Message, summaryText string, sctx *StrategyContext) ([]*Message, error) {
	out, err := SimpleStrategy{}.BuildCompactedHistory(ctx, history, recentUserMessages, summaryText, sctx)
	if err != nil {
		return nil, err
	}
	if sctx == nil || sctx.ReadFile == nil {
		return out, nil
	}

	paths := recentReadFilePaths(history, FileRecoveryMaxFiles)
	totalTokens := 0
	for _, path := range paths {
		content, err := sctx.ReadFile(path)
		if err != nil {
			continue // best-effort: file may have been deleted or moved since
		}
		truncated, tokens := truncateToTokenBudget(content, FileRecoveryPerFileTokenCap)
		if totalTokens+tokens > FileRecoveryTotalTokenCap {
			break
		}
		totalTokens += tokens
		out = append(out, &Message{
			Role:      "user",
			Content:   fmt.Sprintf("Recovered File: %s\n\n%s", path, truncated),
			Timestamp: time.Now().Unix(),
		})
	}
	return out, nil
}

// SessionMemoryConfig tunes when background extraction is allowed to run.
type SessionMemoryConfig struct {
	// TokenThreshold is the accumulated token count since the last
	// extraction that triggers the next one.
	TokenThreshold int
	// ToolCallThreshold additionally gates every extraction after the
	// first on a minimum number of tool calls since the last run.
	ToolCallThreshold int
	// Cooldown is the minimum wall-clock time between extractions.
	Cooldown time.Duration
}

// DefaultSessionMemoryConfig returns sensible background-extraction
// defaults.
func DefaultSessionMemoryConfig() SessionMemoryConfig {
	return SessionMemoryConfig{
		TokenThreshold:    20000,
		ToolCallThreshold: 10,
		Cooldown:          2 * time.Minute,
	}
}

// ExtractionLifecycle receives session-memory extraction lifecycle
// notifications; internal/agent.EventEmitter's SessionMemoryExtraction*
// methods satisfy this modulo their models.AgentEvent return values, via a
// thin adapter at the call site.
type ExtractionLifecycle interface {
	SessionMemoryExtractionStarted(ctx context.Context)
	SessionMemoryExtractionCompleted(ctx context.Context, lastSummarizedMessageID string)
	SessionMemoryExtractionFailed(ctx context.Context, err error)
}

// SummaryWriter persists an extracted summary for a session.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, summary, lastMessageID string) error
}

// FileSummaryWriter writes extracted summaries to summary.md in a
// directory, trailing it with an HTML-comment marker recording the last
// message folded in so a restart can resume from it.
type FileSummaryWriter struct {
	Dir string
}

func (w *FileSummaryWriter) WriteSummary(ctx context.Context, summary, lastMessageID string) error {
	content := summary
	if lastMessageID != "" {
		content += fmt.Sprintf("\n\n<!-- last-summarized-message: %s -->\n", lastMessageID)
	}
	return os.WriteFile(filepath.Join(w.Dir, "summary.md"), []byte(content), 0o644)
}

// SessionMemoryExtractor runs periodic background summarization per
// spec.md §4.J-K: while neither a foreground compaction nor a prior
// extraction is in flight, once enough tokens (and, after the first run,
// enough tool calls) have accumulated and the cooldown has elapsed, it
// summarizes history and persists the result via a SummaryWriter.
type SessionMemoryExtractor struct {
	cfg        SessionMemoryConfig
	summarizer Summarizer
	writer     SummaryWriter

	mu                       sync.Mutex
	compacting               bool
	extracting               bool
	tokensSinceExtraction    int
	toolCallsSinceExtraction int
	lastExtraction           time.Time
	hasRunOnce               bool
	lastSummary              string
}

// NewSessionMemoryExtractor builds an extractor with cfg (zero-value
// fields fall back to DefaultSessionMemoryConfig).
func NewSessionMemoryExtractor(cfg SessionMemoryConfig, summarizer Summarizer, writer SummaryWriter) *SessionMemoryExtractor {
	def := DefaultSessionMemoryConfig()
	if cfg.TokenThreshold <= 0 {
		cfg.TokenThreshold = def.TokenThreshold
	}
	if cfg.ToolCallThreshold <= 0 {
		cfg.ToolCallThreshold = def.ToolCallThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &SessionMemoryExtractor{cfg: cfg, summarizer: summarizer, writer: writer}
}

// RecordTokens accumulates tokens produced since the last extraction.
func (e *SessionMemoryExtractor) RecordTokens(n int) {
	e.mu.Lock()
	e.tokensSinceExtraction += n
	e.mu.Unlock()
}

// RecordToolCall accumulates one tool call since the last extraction.
func (e *SessionMemoryExtractor) RecordToolCall() {
	e.mu.Lock()
	e.toolCallsSinceExtraction++
	e.mu.Unlock()
}

// SetCompacting marks whether a foreground compaction is in flight, which
// suppresses background extraction until cleared.
func (e *SessionMemoryExtractor) SetCompacting(v bool) {
	e.mu.Lock()
	e.compacting = v
	e.mu.Unlock()
}

// shouldExtract reports whether conditions are met to run an extraction
// pass right now, without mutating state.
func (e *SessionMemoryExtractor) shouldExtract(now time.Time) bool {
	if e.compacting || e.extracting {
		return false
	}
	if e.tokensSinceExtraction < e.cfg.TokenThreshold {
		return false
	}
	if e.hasRunOnce && e.toolCallsSinceExtraction < e.cfg.ToolCallThreshold {
		return false
	}
	if !e.lastExtraction.IsZero() && now.Sub(e.lastExtraction) < e.cfg.Cooldown {
		return false
	}
	return true
}

// MaybeExtract runs an extraction pass if shouldExtract's conditions hold,
// emitting lifecycle events to lifecycle (which may be nil) and writing
// the result through the configured SummaryWriter.
func (e *SessionMemoryExtractor) MaybeExtract(ctx context.Context, history []*Message, lifecycle ExtractionLifecycle) error {
	now := time.Now()

	e.mu.Lock()
	if !e.shouldExtract(now) {
		e.mu.Unlock()
		return nil
	}
	e.extracting = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.extracting = false
		e.mu.Unlock()
	}()

	if lifecycle != nil {
		lifecycle.SessionMemoryExtractionStarted(ctx)
	}

	if e.summarizer == nil {
		err := fmt.Errorf("session memory: no summarizer configured")
		if lifecycle != nil {
			lifecycle.SessionMemoryExtractionFailed(ctx, err)
		}
		return err
	}

	summary, err := SummarizeChunks(ctx, history, e.summarizer, DefaultSummarizationConfig())
	if err != nil {
		if lifecycle != nil {
			lifecycle.SessionMemoryExtractionFailed(ctx, err)
		}
		return err
	}

	var lastID string
	if len(history) > 0 {
		lastID = history[len(history)-1].ID
	}

	if e.writer != nil {
		if err := e.writer.WriteSummary(ctx, summary, lastID); err != nil {
			if lifecycle != nil {
				lifecycle.SessionMemoryExtractionFailed(ctx, err)
			}
			return err
		}
	}

	e.mu.Lock()
	e.tokensSinceExtraction = 0
	e.toolCallsSinceExtraction = 0
	e.lastExtraction = now
	e.hasRunOnce = true
	e.lastSummary = summary
	e.mu.Unlock()

	if lifecycle != nil {
		lifecycle.SessionMemoryExtractionCompleted(ctx, lastID)
	}
	return nil
}

// LastSummary returns the most recently extracted summary text, or "" if
// no extraction has completed yet.
func (e *SessionMemoryExtractor) LastSummary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSummary
}

// SessionMemoryStrategy is the CompactStrategy facade over
// SessionMemoryExtractor: its foreground BuildCompactedHistory folds
// whatever the background extractor has already produced (falling back to
// the caller-supplied summaryText if no extraction has run yet), the same
// way SimpleStrategy folds a freshly generated summary.
type SessionMemoryStrategy struct {
	Extractor *SessionMemoryExtractor
}

func (SessionMemoryStrategy) Name() string { return "session_memory" }

func (SessionMemoryStrategy) GeneratePrompt(history []*Message) string {
	return "Extract durable facts, decisions, and open tasks from this session " +
		"for long-term memory. Omit anything only relevant to the immediate conversation."
}

func (s SessionMemoryStrategy) BuildCompactedHistory(ctx context.Context, history, recentUserMessages []*Message, summaryText string, sctx *StrategyContext) ([]*Message, error) {
	effective := summaryText
	if s.Extractor != nil {
		if extracted := s.Extractor.LastSummary(); extracted != "" {
			effective = extracted
		}
	}
	return SimpleStrategy{}.BuildCompactedHistory(ctx, history, recentUserMessages, effective, sctx)
}
