package providers

import (
	"encoding/json"
	"fmt"

	"github.com/cocodeai/cocode/internal/agent"
	"github.com/cocodeai/cocode/pkg/models"
)

// transformChatCompletionsRequest builds a standard OpenAI Chat
// Completions request body, the wire format shared by OpenAI itself and
// every OpenAI-compatible provider in this package (Azure OpenAI, Ollama,
// OpenRouter, the Copilot proxy).
func transformChatCompletionsRequest(model string, req *agent.CompletionRequest) map[string]any {
	var messages []map[string]any
	if req.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatCompletionsMessages(m)...)
	}

	body := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	if req.MaxTokens > 0 {
		body["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		body["tools"] = chatCompletionsTools(req.Tools)
	}
	return body
}

// chatCompletionsMessages renders one internal message as the one-or-more
// Chat Completions messages it maps to: an assistant message carrying any
// tool_calls, followed by one "tool" role message per tool result (Chat
// Completions requires tool results as their own messages, not inline).
func chatCompletionsMessages(m agent.CompletionMessage) []map[string]any {
	out := map[string]any{"role": m.Role}
	if m.Content != "" {
		out["content"] = m.Content
	}
	if len(m.ToolCalls) > 0 {
		var calls []map[string]any
		for _, tc := range m.ToolCalls {
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": string(tc.Input),
				},
			})
		}
		out["tool_calls"] = calls
	}

	messages := []map[string]any{out}
	for _, tr := range m.ToolResults {
		messages = append(messages, map[string]any{
			"role":         "tool",
			"tool_call_id": tr.ToolCallID,
			"content":      tr.Content,
		})
	}
	return messages
}

func chatCompletionsTools(tools []agent.Tool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  marshalToolSchema(t.Schema()),
			},
		})
	}
	return out
}

// chatCompletionsChunk mirrors the fields this module reads off a Chat
// Completions streaming chunk: choices[0].delta.{content,tool_calls},
// choices[0].finish_reason.
type chatCompletionsChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// parseChatCompletionsChunk parses one SSE data line in Chat Completions
// format into completion chunks, accumulating streamed tool-call argument
// fragments in actx (OpenAI streams tool-call arguments one token at a
// time, keyed by the call's index within the choice).
func parseChatCompletionsChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	if data == "[DONE]" {
		return []agent.CompletionChunk{{Done: true}}, nil
	}

	var parsed chatCompletionsChunk
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return nil, fmt.Errorf("parse chat completions chunk: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, nil
	}
	choice := parsed.Choices[0]

	var out []agent.CompletionChunk
	if choice.Delta.Content != "" {
		out = append(out, agent.CompletionChunk{Text: choice.Delta.Content})
	}
	for _, tc := range choice.Delta.ToolCalls {
		key := fmt.Sprintf("tool_call_%d_args", tc.Index)
		args := actx.Append(key, tc.Function.Arguments)
		if tc.ID != "" {
			actx.Set(fmt.Sprintf("tool_call_%d_id", tc.Index), tc.ID)
			actx.Set(fmt.Sprintf("tool_call_%d_name", tc.Index), tc.Function.Name)
		}
		_ = args
	}
	if choice.FinishReason != nil {
		out = append(out, finishedToolCalls(actx)...)
		out = append(out, agent.CompletionChunk{Done: true})
	}
	return out, nil
}

// finishedToolCalls drains any tool-call state accumulated in actx into
// completed ToolCall chunks, emitted once a choice's finish_reason arrives.
func finishedToolCalls(actx *AdapterContext) []agent.CompletionChunk {
	var out []agent.CompletionChunk
	for i := 0; i < 16; i++ {
		id, ok := actx.GetString(fmt.Sprintf("tool_call_%d_id", i))
		if !ok {
			break
		}
		name, _ := actx.GetString(fmt.Sprintf("tool_call_%d_name", i))
		args, _ := actx.GetString(fmt.Sprintf("tool_call_%d_args", i))
		out = append(out, agent.CompletionChunk{
			ToolCall: &models.ToolCall{ID: id, Name: name, Input: json.RawMessage(args)},
		})
	}
	return out
}
