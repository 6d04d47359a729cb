package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// WebhookConfig describes how to invoke a Webhook-handler hook.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`

	// SigningKey, when set, causes the request to carry a short-lived
	// JWT in the X-Cocode-Signature header so the receiving endpoint can
	// verify the call actually originated from this process.
	SigningKey []byte `json:"-"`
}

// webhookPayload is the JSON body POSTed to a Webhook handler's URL.
type webhookPayload struct {
	Event     EventType      `json:"event"`
	SessionID string         `json:"session_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolArgs  string         `json:"tool_args,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookResponse is the JSON body a Webhook handler's endpoint may return
// to influence the dispatch outcome. An endpoint that returns nothing (or
// a non-2xx status code outside of an explicit reject) is treated as
// Continue.
type webhookResponse struct {
	Result Outcome `json:"result"`
	Reason string  `json:"reason,omitempty"`
}

// NewWebhookHandler builds a Handler that POSTs the event to cfg.URL and
// interprets the response body as the verdict. This backs the spec's
// Webhook hook handler variant.
func NewWebhookHandler(cfg WebhookConfig, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if client.Timeout <= 0 {
		client.Timeout = 10 * time.Second
	}

	return func(ctx context.Context, event *Event) (Outcome, error) {
		payload := webhookPayload{
			Event:     event.Type,
			SessionID: event.SessionID,
			ToolName:  event.ToolName,
			ToolArgs:  event.ToolArgs,
			Context:   event.Context,
			Timestamp: event.Timestamp,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return OutcomeContinue, fmt.Errorf("marshal webhook payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
		if err != nil {
			return OutcomeContinue, fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.Headers {
			req.Header.Set(k, v)
		}
		if len(cfg.SigningKey) > 0 {
			sig, err := signWebhookRequest(cfg.SigningKey, event.Type)
			if err != nil {
				return OutcomeContinue, fmt.Errorf("sign webhook request: %w", err)
			}
			req.Header.Set("X-Cocode-Signature", sig)
		}

		resp, err := client.Do(req)
		if err != nil {
			logger.Warn("webhook hook request failed", "url", cfg.URL, "error", err)
			return OutcomeContinue, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return OutcomeContinue, fmt.Errorf("webhook hook returned status %d", resp.StatusCode)
		}

		var out webhookResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			// No usable body: treat as Continue, not an error.
			return OutcomeContinue, nil
		}
		if out.Result == OutcomeReject {
			return OutcomeReject, nil
		}
		return OutcomeContinue, nil
	}
}

// signWebhookRequest produces a short-lived JWT proving this process
// issued the call, verifiable by any receiver holding the same key.
func signWebhookRequest(key []byte, event EventType) (string, error) {
	claims := jwt.MapClaims{
		"event": string(event),
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}
