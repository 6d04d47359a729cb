package providers

import (
	"fmt"

	"github.com/cocodeai/cocode/internal/agent"
)

// SupportsPreviousResponseID implements ProviderAdapter.
func (p *AzureOpenAIProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter. Azure OpenAI addresses a model
// by deployment name in the path rather than in the request body.
func (p *AzureOpenAIProvider) EndpointPath() string {
	return fmt.Sprintf("/openai/deployments/%s/chat/completions", p.deploymentName())
}

func (p *AzureOpenAIProvider) deploymentName() string {
	if p.defaultModel != "" {
		return p.defaultModel
	}
	return "gpt-4o"
}

// BuildRequestMetadata implements ProviderAdapter: Azure authenticates via
// an api-key header (not bearer auth) and requires an api-version query
// parameter.
func (p *AzureOpenAIProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	version := p.apiVersion
	if version == "" {
		version = "2024-02-15-preview"
	}
	return RequestMetadata{
		Headers:     map[string]string{"api-key": p.apiKey},
		QueryParams: map[string]string{"api-version": version},
	}, nil
}

// TransformRequest implements ProviderAdapter using the shared Chat
// Completions body builder; the deployment name already selects the model
// via EndpointPath, so the body's "model" field is left at the request's
// logical model name for traceability.
func (p *AzureOpenAIProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	model := req.Model
	if model == "" {
		model = p.deploymentName()
	}
	return transformChatCompletionsRequest(model, req), nil
}

// TransformResponseChunk implements ProviderAdapter using the shared Chat
// Completions SSE parser (Azure OpenAI mirrors OpenAI's wire format).
func (p *AzureOpenAIProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	return parseChatCompletionsChunk(data, actx)
}
