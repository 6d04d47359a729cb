package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cocodeai/cocode/internal/agent"
)

// === sseData ===

func TestSseData_StripsDataPrefix(t *testing.T) {
	data, ok := sseData(`data: {"text":"hi"}`)
	if !ok || data != `{"text":"hi"}` {
		t.Fatalf("sseData = %q, %v, want stripped JSON", data, ok)
	}
}

func TestSseData_SkipsBlankAndComment(t *testing.T) {
	if _, ok := sseData(""); ok {
		t.Fatal("blank line should be skipped")
	}
	if _, ok := sseData(": keep-alive"); ok {
		t.Fatal("comment line should be skipped")
	}
	if _, ok := sseData("event: message"); ok {
		t.Fatal("event: line should be skipped")
	}
}

func TestSseData_PassesThroughBareLine(t *testing.T) {
	data, ok := sseData(`{"done":true}`)
	if !ok || data != `{"done":true}` {
		t.Fatalf("sseData = %q, %v, want passthrough for NDJSON line", data, ok)
	}
}

// === HttpStreamer.Stream, via a fake adapter and httptest server ===

type fakeAdapter struct {
	endpoint string
}

func (f *fakeAdapter) Name() string                         { return "fake" }
func (f *fakeAdapter) SupportsPreviousResponseID() bool      { return false }
func (f *fakeAdapter) EndpointPath() string                 { return f.endpoint }
func (f *fakeAdapter) TransformRequest(req *agent.CompletionRequest) (map[string]any, error) {
	return map[string]any{"model": req.Model}, nil
}
func (f *fakeAdapter) BuildRequestMetadata(req *agent.CompletionRequest) (RequestMetadata, error) {
	return RequestMetadata{Headers: map[string]string{"x-fake": "1"}}, nil
}
func (f *fakeAdapter) TransformResponseChunk(data string, actx *AdapterContext) ([]agent.CompletionChunk, error) {
	if data == "[DONE]" {
		return []agent.CompletionChunk{{Done: true}}, nil
	}
	return []agent.CompletionChunk{{Text: data}}, nil
}

func TestHttpStreamer_Stream_DeliversChunksInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-fake") != "1" {
			t.Errorf("missing adapter-supplied header, got headers: %v", r.Header)
		}
		w.Header().Set("content-type", "text/event-stream")
		fmt.Fprint(w, "data: hello\n\n")
		fmt.Fprint(w, "data: world\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	streamer := NewHttpStreamer(srv.URL, "test-key")
	streamer.IdleTimeout = 2 * time.Second

	chunks, err := streamer.Stream(context.Background(), &fakeAdapter{endpoint: "/v1/stream"}, &agent.CompletionRequest{Model: "fake-model"})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	var texts []string
	var sawDone bool
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("unexpected chunk error: %v", c.Error)
		}
		if c.Done {
			sawDone = true
			continue
		}
		texts = append(texts, c.Text)
	}

	if !sawDone {
		t.Fatal("expected a terminal Done chunk")
	}
	if len(texts) != 2 || texts[0] != "hello" || texts[1] != "world" {
		t.Fatalf("texts = %v, want [hello world]", texts)
	}
}

func TestHttpStreamer_Stream_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "invalid api key")
	}))
	defer srv.Close()

	streamer := NewHttpStreamer(srv.URL, "bad-key")
	_, err := streamer.Stream(context.Background(), &fakeAdapter{endpoint: "/v1/stream"}, &agent.CompletionRequest{Model: "fake-model"})
	if err == nil {
		t.Fatal("expected an error for a non-2xx response")
	}
}
