package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType discriminates the kind of content carried by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolCall   BlockType = "tool_call"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one ordered unit of message content. Exactly one of the
// type-specific fields is populated, selected by Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text holds the content for BlockText.
	Text string `json:"text,omitempty"`

	// Thinking holds the content for BlockThinking. Signature is provider
	// opaque reasoning verification data and MUST be stripped (set to "")
	// whenever a block crosses from one provider to another; it is only
	// valid when replayed back to the same provider/model that produced it.
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// ToolCall fields, populated for BlockToolCall.
	CallID    string          `json:"call_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// ToolResult fields, populated for BlockToolResult.
	ResultForCallID string `json:"result_for_call_id,omitempty"`
	ResultContent   string `json:"result_content,omitempty"`
	// Success is nil when the tool did not report an explicit success
	// flag (output-only result); false means the tool call errored.
	Success *bool `json:"success,omitempty"`
}

// StripSignature clears provider-specific thinking signature data. Call
// this on every Thinking block before handing a message to a different
// provider than the one that produced it.
func (b *ContentBlock) StripSignature() {
	if b.Type == BlockThinking {
		b.Signature = ""
	}
}

// Attachment is a file or media reference carried alongside a message.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall is a single tool invocation requested by the model, used by the
// turn loop and event log independently of how it is encoded on the wire
// (see ContentBlock's BlockToolCall fields for the wire encoding).
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the recorded outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one turn in a conversation, made of ordered content blocks.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	CreatedAt time.Time      `json:"created_at"`

	// SessionID and BranchID anchor this message to a session's history;
	// they are persistence bookkeeping, not wire content, and are left
	// zero for messages that only ever live in a completion request.
	SessionID string `json:"session_id,omitempty"`
	BranchID  string `json:"branch_id,omitempty"`

	// Attachments carries files/media sent alongside the message. Unlike
	// tool calls and results, attachments have no content-block encoding
	// since they are never replayed back to a model as structured turns.
	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	// SourceProvider/SourceModel record which adapter produced this
	// message, so cross-provider sanitization knows when to strip
	// thinking signatures and drop previous_response_id continuity.
	SourceProvider string `json:"source_provider,omitempty"`
	SourceModel    string `json:"source_model,omitempty"`
}

// Text concatenates all BlockText content in order, for callers that only
// need a flat rendering (logging, transcripts, summarization input).
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns every BlockToolCall in the message, in order.
func (m *Message) ToolCalls() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			out = append(out, b)
		}
	}
	return out
}

// ToolCallStructs converts every BlockToolCall in the message into a
// standalone ToolCall, for callers that persist or dispatch tool calls
// independently of the content-block wire encoding.
func (m *Message) ToolCallStructs() []ToolCall {
	var out []ToolCall
	for _, b := range m.Content {
		if b.Type == BlockToolCall {
			out = append(out, ToolCall{ID: b.CallID, Name: b.ToolName, Input: b.Arguments})
		}
	}
	return out
}

// ToolResultStructs converts every BlockToolResult in the message into a
// standalone ToolResult.
func (m *Message) ToolResultStructs() []ToolResult {
	var out []ToolResult
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			isErr := b.Success != nil && !*b.Success
			out = append(out, ToolResult{ToolCallID: b.ResultForCallID, Content: b.ResultContent, IsError: isErr})
		}
	}
	return out
}

// AppendToolCall appends a BlockToolCall content block built from call.
func (m *Message) AppendToolCall(call ToolCall) {
	m.Content = append(m.Content, ContentBlock{Type: BlockToolCall, CallID: call.ID, ToolName: call.Name, Arguments: call.Input})
}

// AppendToolResult appends a BlockToolResult content block built from result.
func (m *Message) AppendToolResult(result ToolResult) {
	success := !result.IsError
	m.Content = append(m.Content, ContentBlock{Type: BlockToolResult, ResultForCallID: result.ToolCallID, ResultContent: result.Content, Success: &success})
}

// AppendText appends a BlockText content block.
func (m *Message) AppendText(text string) {
	m.Content = append(m.Content, ContentBlock{Type: BlockText, Text: text})
}

// SanitizeForProvider strips thinking signatures that were produced by a
// different provider/model than the one this message is about to be sent
// to. Signatures are only valid when replayed to their originating model.
func (m *Message) SanitizeForProvider(provider, model string) {
	if m.SourceProvider == provider && m.SourceModel == model {
		return
	}
	for i := range m.Content {
		m.Content[i].StripSignature()
	}
}

// Conversation is an ordered, persisted sequence of messages belonging to
// one working session.
type Conversation struct {
	ID               string    `json:"id"`
	WorkspaceID      string    `json:"workspace_id"`
	Messages         []Message `json:"messages"`
	PreviousResponse string    `json:"previous_response_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Request is a provider-agnostic chat request assembled by the turn
// driver before being transformed by a ProviderAdapter.
type Request struct {
	Model            string         `json:"model"`
	System           string         `json:"system,omitempty"`
	Messages         []Message      `json:"messages"`
	Tools            []ToolSchema   `json:"tools,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	Stream           bool           `json:"stream"`
	PreviousResponse string         `json:"previous_response_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ToolSchema describes one tool available to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Response is the provider-agnostic, fully-accumulated result of a request.
type Response struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Message    Message        `json:"message"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Usage reports token accounting for a request/response pair.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEventType discriminates ResponseStream events.
type StreamEventType string

const (
	StreamTextDelta     StreamEventType = "text_delta"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamThinkingDone  StreamEventType = "thinking_done"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamToolCallDone  StreamEventType = "tool_call_done"
	StreamMessageDone   StreamEventType = "message_done"
	StreamError         StreamEventType = "error"
)

// StreamEvent is one unit of a streamed response. Deltas accumulate;
// *Done events carry terminal state (e.g. a verified thinking signature)
// that must be adopted even though deltas already streamed the content —
// this is the "pure accumulation" rule: deltas win for content, *Done
// wins for fields only resolved at the end (signatures, final tool args).
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	TextDelta string `json:"text_delta,omitempty"`

	ThinkingDelta string `json:"thinking_delta,omitempty"`
	Signature     string `json:"signature,omitempty"`

	CallID        string          `json:"call_id,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ArgumentDelta string          `json:"argument_delta,omitempty"`
	Arguments     json.RawMessage `json:"arguments,omitempty"`

	Response *Response `json:"response,omitempty"`
	Err      error     `json:"-"`
}

// ScoreType records which retrieval signal(s) produced a SearchResult's
// score.
type ScoreType string

const (
	ScoreBM25     ScoreType = "bm25"
	ScoreVector   ScoreType = "vector"
	ScoreSymbol   ScoreType = "symbol"
	ScoreRecent   ScoreType = "recent"
	ScoreHybrid   ScoreType = "hybrid"
)

// CodeChunk is one indexed, embeddable unit of source content.
type CodeChunk struct {
	ID            string    `json:"id"`
	FilePath      string    `json:"file_path"`
	Language      string    `json:"language"`
	Content       string    `json:"content"`
	ContentHash   string    `json:"content_hash"`
	StartLine     int       `json:"start_line"`
	EndLine       int       `json:"end_line"`
	ParentSymbol  string    `json:"parent_symbol,omitempty"`
	IsOverview    bool      `json:"is_overview"`
	ModifiedAt    time.Time `json:"modified_at"`
	IndexedAt     time.Time `json:"indexed_at"`
}

// ChunkRef is a lightweight pointer to a CodeChunk, used by indexes that
// don't need to carry the full content (tag table, recency LRU).
type ChunkRef struct {
	ChunkID    string    `json:"chunk_id"`
	FilePath   string    `json:"file_path"`
	ModifiedAt time.Time `json:"modified_at"`
}

// SearchResult is one ranked hit returned by the retriever.
type SearchResult struct {
	Chunk     CodeChunk `json:"chunk"`
	Score     float64   `json:"score"`
	ScoreType ScoreType `json:"score_type"`
	IsStale   *bool     `json:"is_stale,omitempty"`
}

// Tag is an extracted symbol definition or reference used for exact
// symbol-match retrieval and the repo-map reference graph.
type Tag struct {
	ChunkID  string `json:"chunk_id"`
	FilePath string `json:"file_path"`
	Name     string `json:"name"`
	Kind     string `json:"kind"` // def | ref
	Line     int    `json:"line"`
}

// PermissionBehavior is the action a PermissionRule grants when it matches.
type PermissionBehavior string

const (
	PermissionAllow PermissionBehavior = "allow"
	PermissionAsk   PermissionBehavior = "ask"
	PermissionDeny  PermissionBehavior = "deny"
)

// PermissionRule is one entry in a PermissionEvaluator's rule set.
type PermissionRule struct {
	// Tool is the tool name the rule applies to, or "*" for all tools.
	Tool string `json:"tool"`
	// Pattern optionally constrains the rule to file paths, command
	// arguments, or glob expressions (Tool:pattern / Tool(pattern) syntax).
	Pattern string `json:"pattern,omitempty"`
	// Behavior is the decision this rule grants when matched.
	Behavior PermissionBehavior `json:"behavior"`
	// Source records where the rule came from (cli, project, user,
	// plugin name, ...) for priority ordering.
	Source string `json:"source"`
	// Priority orders rules within the same pass; higher wins. Ties are
	// broken by Source using PermissionSourcePriority.
	Priority int `json:"priority,omitempty"`
}
