package providers

import (
	"github.com/cocodeai/cocode/internal/agent"
)

// SupportsPreviousResponseID implements ProviderAdapter.
func (p *CopilotProxyProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter.
func (p *CopilotProxyProvider) EndpointPath() string { return "/chat/completions" }

// BuildRequestMetadata implements ProviderAdapter; the local proxy requires
// no authentication.
func (p *CopilotProxyProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{}, nil
}

// TransformRequest implements ProviderAdapter using the shared Chat
// Completions body builder (the Copilot proxy speaks the OpenAI format).
func (p *CopilotProxyProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	model := req.Model
	if model == "" && len(p.models) > 0 {
		model = p.models[0]
	}
	return transformChatCompletionsRequest(model, req), nil
}

// TransformResponseChunk implements ProviderAdapter using the shared Chat
// Completions SSE parser.
func (p *CopilotProxyProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	return parseChatCompletionsChunk(data, actx)
}
