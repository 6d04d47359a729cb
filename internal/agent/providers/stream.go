package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cocodeai/cocode/internal/agent"
)

// DefaultStreamIdleTimeout bounds how long HttpStreamer waits for the next
// SSE line before giving up on a stalled connection.
const DefaultStreamIdleTimeout = 60 * time.Second

// HttpStreamer drives any ProviderAdapter through one generic HTTP
// request/SSE-parse/stream loop: build the request via TransformRequest,
// send it with BuildRequestMetadata's headers against EndpointPath, then
// feed each response line through TransformResponseChunk.
type HttpStreamer struct {
	Client      *http.Client
	BaseURL     string
	APIKey      string
	Headers     map[string]string
	IdleTimeout time.Duration
}

// NewHttpStreamer builds a streamer with sane defaults; a nil client uses
// http.DefaultClient.
func NewHttpStreamer(baseURL, apiKey string) *HttpStreamer {
	return &HttpStreamer{
		Client:      http.DefaultClient,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		IdleTimeout: DefaultStreamIdleTimeout,
	}
}

// Stream transforms req via adapter, issues the HTTP request, and returns
// a channel of completion chunks populated by a background goroutine. The
// channel is closed when the stream ends, errors, or ctx is canceled.
func (s *HttpStreamer) Stream(ctx context.Context, adapter ProviderAdapter, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	body, err := adapter.TransformRequest(req)
	if err != nil {
		return nil, fmt.Errorf("%s: transform request: %w", adapter.Name(), err)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", adapter.Name(), err)
	}

	metadata, err := adapter.BuildRequestMetadata(req)
	if err != nil {
		return nil, fmt.Errorf("%s: build request metadata: %w", adapter.Name(), err)
	}

	endpoint := s.BaseURL + adapter.EndpointPath()
	if len(metadata.QueryParams) > 0 {
		q := url.Values{}
		for k, v := range metadata.QueryParams {
			q.Set(k, v)
		}
		endpoint += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build http request: %w", adapter.Name(), err)
	}
	httpReq.Header.Set("content-type", "application/json")
	if s.APIKey != "" {
		httpReq.Header.Set("authorization", "Bearer "+s.APIKey)
	}
	for k, v := range s.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range metadata.Headers {
		httpReq.Header.Set(k, v)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", adapter.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, fmt.Errorf("%s: provider returned %d: %s", adapter.Name(), resp.StatusCode, string(errBody))
	}

	chunks := make(chan *agent.CompletionChunk, 16)
	idleTimeout := s.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = DefaultStreamIdleTimeout
	}

	go s.processSSE(ctx, resp.Body, adapter, chunks, idleTimeout)
	return chunks, nil
}

// processSSE reads body as a sequence of SSE "data: ..." lines (falling
// back to treating every non-blank line as raw JSON for newline-delimited
// wire formats), forwarding each through adapter.TransformResponseChunk.
func (s *HttpStreamer) processSSE(ctx context.Context, body io.ReadCloser, adapter ProviderAdapter, chunks chan<- *agent.CompletionChunk, idleTimeout time.Duration) {
	defer close(chunks)
	defer body.Close()

	actx := NewAdapterContext()
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		case <-timer.C:
			chunks <- &agent.CompletionChunk{Error: fmt.Errorf("%s: stream idle timeout", adapter.Name())}
			return
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					chunks <- &agent.CompletionChunk{Error: fmt.Errorf("%s: stream read: %w", adapter.Name(), err)}
				}
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleTimeout)

			data, ok := sseData(line)
			if !ok {
				continue
			}
			events, err := adapter.TransformResponseChunk(data, actx)
			if err != nil {
				chunks <- &agent.CompletionChunk{Error: fmt.Errorf("%s: transform response: %w", adapter.Name(), err)}
				return
			}
			for i := range events {
				chunks <- &events[i]
			}
		}
	}
}

// sseData extracts the payload from an SSE "data: ..." line, skipping
// blank lines, comments, and event-name lines. It also accepts a bare
// JSON/text line unchanged, for newline-delimited (non-SSE) wire formats.
func sseData(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ":") {
		return "", false
	}
	if strings.HasPrefix(trimmed, "event:") {
		return "", false
	}
	if after, ok := strings.CutPrefix(trimmed, "data:"); ok {
		return strings.TrimSpace(after), true
	}
	return trimmed, true
}
