package providers

import (
	"github.com/cocodeai/cocode/internal/agent"
)

// SupportsPreviousResponseID implements ProviderAdapter.
func (p *OpenRouterProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter.
func (p *OpenRouterProvider) EndpointPath() string { return "/chat/completions" }

// BuildRequestMetadata implements ProviderAdapter; bearer auth from
// HttpStreamer's configured APIKey is sufficient for OpenRouter.
func (p *OpenRouterProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{}, nil
}

// TransformRequest implements ProviderAdapter using the shared Chat
// Completions body builder (OpenRouter speaks the OpenAI wire format).
func (p *OpenRouterProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	return transformChatCompletionsRequest(model, req), nil
}

// TransformResponseChunk implements ProviderAdapter using the shared Chat
// Completions SSE parser.
func (p *OpenRouterProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	return parseChatCompletionsChunk(data, actx)
}
