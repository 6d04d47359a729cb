package providers

import (
	"errors"

	"github.com/cocodeai/cocode/internal/agent"
)

// errBedrockNoHTTPTransport is returned by the HttpStreamer-facing adapter
// methods below. Bedrock's ConverseStream API is signed with AWS SigV4,
// which HttpStreamer has no signer for; BedrockProvider.Complete keeps
// using the AWS SDK's bedrockruntime client directly rather than routing
// through HttpStreamer. These methods exist to satisfy ProviderAdapter for
// callers that enumerate all providers generically; none are wired to an
// actual HTTP call for Bedrock.
var errBedrockNoHTTPTransport = errors.New("bedrock: streaming goes through the AWS SDK, not HttpStreamer")

// SupportsPreviousResponseID implements ProviderAdapter.
func (p *BedrockProvider) SupportsPreviousResponseID() bool { return false }

// EndpointPath implements ProviderAdapter. Bedrock has no single REST path;
// the AWS SDK resolves the ConverseStream endpoint per-region internally.
func (p *BedrockProvider) EndpointPath() string { return "" }

// BuildRequestMetadata implements ProviderAdapter. SigV4 signing happens
// inside the AWS SDK request pipeline, not via static headers, so there is
// nothing meaningful to return here.
func (p *BedrockProvider) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{}, errBedrockNoHTTPTransport
}

// TransformRequest implements ProviderAdapter.
func (p *BedrockProvider) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	return nil, errBedrockNoHTTPTransport
}

// TransformResponseChunk implements ProviderAdapter.
func (p *BedrockProvider) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	return nil, errBedrockNoHTTPTransport
}
