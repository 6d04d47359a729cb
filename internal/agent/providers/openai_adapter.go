package providers

import (
	"github.com/cocodeai/cocode/internal/agent"
)

// SupportsPreviousResponseID implements ProviderAdapter: the Chat
// Completions wire format this adapter speaks has no response-ID
// continuation.
func (p *OpenAIProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter.
func (p *OpenAIProvider) EndpointPath() string { return "/v1/chat/completions" }

// BuildRequestMetadata implements ProviderAdapter; OpenAI needs only the
// bearer token HttpStreamer already attaches from its configured APIKey.
func (p *OpenAIProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{}, nil
}

// TransformRequest implements ProviderAdapter using the shared Chat
// Completions body builder.
func (p *OpenAIProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	model := req.Model
	if model == "" {
		model = "gpt-4o"
	}
	return transformChatCompletionsRequest(model, req), nil
}

// TransformResponseChunk implements ProviderAdapter using the shared Chat
// Completions SSE parser.
func (p *OpenAIProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	return parseChatCompletionsChunk(data, actx)
}
