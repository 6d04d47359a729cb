package providers

import (
	"encoding/json"
	"sync"

	"github.com/cocodeai/cocode/internal/agent"
)

// AdapterContext carries mutable state across the successive
// TransformResponseChunk calls of a single streaming request: accumulated
// text, tool-call argument fragments, or a detected wire-sub-format. It is
// created fresh per request by HttpStreamer and discarded when the stream
// ends, so nothing leaks across requests.
type AdapterContext struct {
	mu    sync.Mutex
	state map[string]any
}

// NewAdapterContext returns an empty AdapterContext.
func NewAdapterContext() *AdapterContext {
	return &AdapterContext{state: make(map[string]any)}
}

// Get returns the value stored under key, if any.
func (c *AdapterContext) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[key]
	return v, ok
}

// GetString is a Get convenience for string-typed state.
func (c *AdapterContext) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores value under key, overwriting any previous entry.
func (c *AdapterContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// Append concatenates value onto any existing string stored at key,
// treating a missing key as the empty string. Used to accumulate streamed
// text or tool-call argument fragments across chunks.
func (c *AdapterContext) Append(key, value string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	existing, _ := c.state[key].(string)
	existing += value
	c.state[key] = existing
	return existing
}

// RequestMetadata is the dynamic headers and query parameters an adapter
// wants layered on top of an HttpStreamer's static configuration (auth
// header, content-type). Returned fresh per request so it can depend on
// the request itself (e.g. an idempotency key, a session header).
type RequestMetadata struct {
	Headers     map[string]string
	QueryParams map[string]string
}

// ProviderAdapter separates a provider's wire-format transformation from
// HTTP transport. Implementing it lets HttpStreamer drive the provider
// through one generic request/parse/stream loop instead of each provider
// hand-rolling its own HTTP client and SSE reader.
//
// Every provider in this package keeps its original SDK-backed Complete
// method as the default code path; the adapter methods are an additional,
// transport-agnostic entry point used when a caller wants to route the
// provider through HttpStreamer directly (for example: a proxy mode, or
// driving a provider this build has no SDK dependency for).
type ProviderAdapter interface {
	// Name identifies the adapter for logging and adapter-registry lookup.
	Name() string

	// SupportsPreviousResponseID reports whether the provider's wire API
	// can continue a prior response by ID rather than resending the full
	// message history.
	SupportsPreviousResponseID() bool

	// TransformRequest builds the JSON request body for req. The result is
	// marshaled as-is onto the wire by HttpStreamer.
	TransformRequest(req *agent.CompletionRequest) (map[string]any, error)

	// TransformResponseChunk parses one raw SSE data line (or a bare JSON
	// line, for newline-delimited wire formats) into zero or more
	// completion chunks, threading any cross-chunk state through actx.
	TransformResponseChunk(chunk string, actx *AdapterContext) ([]agent.CompletionChunk, error)

	// BuildRequestMetadata returns any headers/query params this request
	// needs beyond HttpStreamer's static configuration (bearer auth,
	// content-type). Most adapters only need the static configuration and
	// can return an empty RequestMetadata.
	BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error)

	// EndpointPath is the URL path appended to HttpStreamer's base URL.
	EndpointPath() string
}

// marshalToolSchema renders a Tool's JSON Schema as a decoded map so it can
// be embedded directly into a wire request body. An empty/invalid schema
// degrades to an empty object rather than failing the whole request.
func marshalToolSchema(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}
