package providers

import (
	"encoding/json"
	"fmt"

	"github.com/cocodeai/cocode/internal/agent"
	"github.com/cocodeai/cocode/pkg/models"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicMessagesChunk mirrors the Messages API SSE event shapes this
// adapter cares about, matching the event handling already performed by
// AnthropicProvider.processStream against the official SDK's typed events.
type anthropicMessagesChunk struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Name already satisfies ProviderAdapter's Name() string via the
// LLMProvider implementation above.

// SupportsPreviousResponseID implements ProviderAdapter: the Messages API
// has no response-ID continuation; the full message history is resent.
func (p *AnthropicProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter.
func (p *AnthropicProvider) EndpointPath() string { return "/v1/messages" }

// BuildRequestMetadata implements ProviderAdapter, adding the two headers
// the Messages API requires beyond bearer auth.
func (p *AnthropicProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{
		Headers: map[string]string{
			"x-api-key":         p.apiKey,
			"anthropic-version": anthropicAPIVersion,
		},
	}, nil
}

// TransformRequest implements ProviderAdapter, building a Messages API
// request body directly (bypassing the SDK's typed params) so this
// provider can also be driven through HttpStreamer.
func (p *AnthropicProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	var messages []map[string]any
	for _, m := range req.Messages {
		content, err := anthropicContentBlocks(m)
		if err != nil {
			return nil, err
		}
		messages = append(messages, map[string]any{"role": m.Role, "content": content})
	}

	body := map[string]any{
		"model":      p.getModel(req.Model),
		"messages":   messages,
		"max_tokens": p.getMaxTokens(req.MaxTokens),
		"stream":     true,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if len(req.Tools) > 0 {
		var tools []map[string]any
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name(),
				"description":  t.Description(),
				"input_schema": marshalToolSchema(t.Schema()),
			})
		}
		body["tools"] = tools
	}
	if req.EnableThinking {
		budget := req.ThinkingBudgetTokens
		if budget <= 0 {
			budget = 16000
		}
		body["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
	}
	return body, nil
}

func anthropicContentBlocks(m agent.CompletionMessage) ([]map[string]any, error) {
	var blocks []map[string]any
	if m.Content != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
	}
	for _, tc := range m.ToolCalls {
		var input any
		if len(tc.Input) > 0 {
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				return nil, fmt.Errorf("decode tool call input: %w", err)
			}
		}
		blocks = append(blocks, map[string]any{
			"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input,
		})
	}
	for _, tr := range m.ToolResults {
		blocks = append(blocks, map[string]any{
			"type": "tool_result", "tool_use_id": tr.ToolCallID, "content": tr.Content, "is_error": tr.IsError,
		})
	}
	return blocks, nil
}

// TransformResponseChunk implements ProviderAdapter, parsing one Messages
// API SSE event the same way AnthropicProvider.processStream does.
func (p *AnthropicProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	var event anthropicMessagesChunk
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("parse anthropic event: %w", err)
	}

	switch event.Type {
	case "message_start":
		if event.Message.Usage.InputTokens > 0 {
			actx.Set("input_tokens", event.Message.Usage.InputTokens)
		}
		return nil, nil

	case "content_block_start":
		switch event.ContentBlock.Type {
		case "thinking":
			actx.Set("in_thinking", true)
			return []agent.CompletionChunk{{ThinkingStart: true}}, nil
		case "tool_use":
			actx.Set("tool_id", event.ContentBlock.ID)
			actx.Set("tool_name", event.ContentBlock.Name)
			actx.Set("tool_input", "")
		}
		return nil, nil

	case "content_block_delta":
		switch event.Delta.Type {
		case "text_delta":
			if event.Delta.Text != "" {
				return []agent.CompletionChunk{{Text: event.Delta.Text}}, nil
			}
		case "thinking_delta":
			if event.Delta.Thinking != "" {
				return []agent.CompletionChunk{{Thinking: event.Delta.Thinking}}, nil
			}
		case "input_json_delta":
			if event.Delta.PartialJSON != "" {
				actx.Append("tool_input", event.Delta.PartialJSON)
			}
		}
		return nil, nil

	case "content_block_stop":
		if id, ok := actx.GetString("tool_id"); ok {
			name, _ := actx.GetString("tool_name")
			input, _ := actx.GetString("tool_input")
			actx.Set("tool_id", nil)
			return []agent.CompletionChunk{{ToolCall: &models.ToolCall{ID: id, Name: name, Input: json.RawMessage(input)}}}, nil
		}
		if inThinking, _ := actx.Get("in_thinking"); inThinking == true {
			actx.Set("in_thinking", false)
			return []agent.CompletionChunk{{ThinkingEnd: true}}, nil
		}
		return nil, nil

	case "message_delta":
		if event.Usage.OutputTokens > 0 {
			actx.Set("output_tokens", event.Usage.OutputTokens)
		}
		return nil, nil

	case "message_stop":
		inputTokens, _ := actx.Get("input_tokens")
		outputTokens, _ := actx.Get("output_tokens")
		chunk := agent.CompletionChunk{Done: true}
		if v, ok := inputTokens.(int); ok {
			chunk.InputTokens = v
		}
		if v, ok := outputTokens.(int); ok {
			chunk.OutputTokens = v
		}
		return []agent.CompletionChunk{chunk}, nil

	case "error":
		return []agent.CompletionChunk{{Error: fmt.Errorf("anthropic stream error")}}, nil
	}

	return nil, nil
}
