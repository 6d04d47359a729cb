package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cocodeai/cocode/internal/agent"
	"github.com/cocodeai/cocode/internal/agent/toolconv"
	"github.com/cocodeai/cocode/pkg/models"
	"github.com/google/uuid"
)

// SupportsPreviousResponseID implements ProviderAdapter: Ollama's /api/chat
// has no response-ID continuation.
func (p *OllamaProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter.
func (p *OllamaProvider) EndpointPath() string { return "/api/chat" }

// BuildRequestMetadata implements ProviderAdapter; Ollama's local API is
// unauthenticated, so no headers beyond content-type are needed.
func (p *OllamaProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{}, nil
}

// TransformRequest implements ProviderAdapter, reusing the same
// ollamaChatRequest wire type and buildOllamaMessages helper Complete uses.
func (p *OllamaProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.defaultModel
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   true,
		Messages: buildOllamaMessages(req),
	}
	if len(req.Tools) > 0 {
		payload.Tools = toolconv.ToOpenAITools(req.Tools)
	}
	if req.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode ollama request: %w", err)
	}
	return body, nil
}

// TransformResponseChunk implements ProviderAdapter. Ollama streams
// newline-delimited JSON objects (not SSE "data:" lines); HttpStreamer's
// sseData passes bare non-blank lines through unchanged, so this parses
// the same ollamaChatResponse shape OllamaProvider.streamResponse does.
func (p *OllamaProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	var resp ollamaChatResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}
	if resp.Error != "" {
		return []agent.CompletionChunk{{Error: fmt.Errorf("ollama: %s", resp.Error), Done: true}}, nil
	}

	var out []agent.CompletionChunk
	if resp.Message != nil {
		if resp.Message.Content != "" {
			out = append(out, agent.CompletionChunk{Text: resp.Message.Content})
		}
		for _, tc := range resp.Message.ToolCalls {
			callID := strings.TrimSpace(tc.ID)
			if callID == "" {
				callID = uuid.NewString()
			}
			key := fmt.Sprintf("emitted_%s", callID)
			if _, seen := actx.GetString(key); seen {
				continue
			}
			actx.Set(key, "1")

			input := tc.Function.Arguments
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			out = append(out, agent.CompletionChunk{
				ToolCall: &models.ToolCall{ID: callID, Name: strings.TrimSpace(tc.Function.Name), Input: input},
			})
		}
	}
	if resp.Done {
		out = append(out, agent.CompletionChunk{Done: true, InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount})
	}
	return out, nil
}
