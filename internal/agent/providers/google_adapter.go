package providers

import (
	"encoding/json"
	"fmt"

	"github.com/cocodeai/cocode/internal/agent"
	"github.com/cocodeai/cocode/pkg/models"
)

// SupportsPreviousResponseID implements ProviderAdapter: Gemini's
// generateContent endpoint has no response-ID continuation.
func (p *GoogleProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter. TransformRequest has no access
// to the model at this point, so EndpointPath uses the provider's default
// model; callers that need a specific model per-request should route
// through Complete instead. alt=sse requests the REST streaming form of
// the response this adapter's parser expects.
func (p *GoogleProvider) EndpointPath() string {
	return fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", p.getModel(""))
}

// BuildRequestMetadata implements ProviderAdapter: Gemini's REST API
// authenticates via an x-goog-api-key header rather than bearer auth.
func (p *GoogleProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{Headers: map[string]string{"x-goog-api-key": p.apiKey}}, nil
}

// TransformRequest implements ProviderAdapter, building a generateContent
// request body directly in the shape GoogleProvider.convertMessages
// produces via the SDK's typed Content/Part structures.
func (p *GoogleProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	var contents []map[string]any
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		var parts []map[string]any
		if m.Content != "" {
			parts = append(parts, map[string]any{"text": m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &args); err != nil {
					return nil, fmt.Errorf("decode tool call args: %w", err)
				}
			}
			parts = append(parts, map[string]any{"functionCall": map[string]any{"name": tc.Name, "args": args}})
		}
		for _, tr := range m.ToolResults {
			parts = append(parts, map[string]any{
				"functionResponse": map[string]any{"name": tr.ToolCallID, "response": map[string]any{"content": tr.Content}},
			})
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, map[string]any{"role": role, "parts": parts})
	}

	body := map[string]any{"contents": contents}
	if req.System != "" {
		body["systemInstruction"] = map[string]any{"parts": []map[string]any{{"text": req.System}}}
	}

	genConfig := map[string]any{}
	if req.MaxTokens > 0 {
		genConfig["maxOutputTokens"] = req.MaxTokens
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}

	if len(req.Tools) > 0 {
		var decls []map[string]any
		for _, t := range req.Tools {
			decls = append(decls, map[string]any{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  marshalToolSchema(t.Schema()),
			})
		}
		body["tools"] = []map[string]any{{"functionDeclarations": decls}}
	}
	return body, nil
}

// googleGenerateContentChunk mirrors the fields this adapter reads from a
// streamGenerateContent SSE event, matching what
// GoogleProvider.processStreamResponse reads off the SDK's typed response.
type googleGenerateContentChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// TransformResponseChunk implements ProviderAdapter.
func (p *GoogleProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	var parsed googleGenerateContentChunk
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return nil, fmt.Errorf("parse gemini event: %w", err)
	}

	var out []agent.CompletionChunk
	var finished bool
	for _, candidate := range parsed.Candidates {
		if candidate.FinishReason != "" {
			finished = true
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out = append(out, agent.CompletionChunk{Text: part.Text})
			}
			if part.FunctionCall != nil {
				argsJSON, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					argsJSON = []byte("{}")
				}
				out = append(out, agent.CompletionChunk{
					ToolCall: &models.ToolCall{ID: generateToolCallID(part.FunctionCall.Name), Name: part.FunctionCall.Name, Input: argsJSON},
				})
			}
		}
	}
	if parsed.UsageMetadata.CandidatesTokenCount > 0 {
		actx.Set("input_tokens", parsed.UsageMetadata.PromptTokenCount)
		actx.Set("output_tokens", parsed.UsageMetadata.CandidatesTokenCount)
	}
	if finished {
		chunk := agent.CompletionChunk{Done: true}
		if v, ok := actx.Get("input_tokens"); ok {
			chunk.InputTokens, _ = v.(int)
		}
		if v, ok := actx.Get("output_tokens"); ok {
			chunk.OutputTokens, _ = v.(int)
		}
		out = append(out, chunk)
	}
	return out, nil
}
