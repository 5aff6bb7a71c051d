package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"anonchat-proxy/pkg/models"

	"github.com/google/uuid"
)

const conversationPath = "/backend-anon/conversation"

// conversationAuthor wraps a role in the backend's nested author schema.
type conversationAuthor struct {
	Role string `json:"role"`
}

// conversationContent carries the message text in the backend's parts schema.
type conversationContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

type conversationMessage struct {
	Author  conversationAuthor  `json:"author"`
	Content conversationContent `json:"content"`
}

type conversationMode struct {
	Kind string `json:"kind"`
}

// conversationBody is the outbound payload of a conversation request. History
// and training are always disabled; each request gets fresh parent-message
// and websocket-request ids.
type conversationBody struct {
	Action                     string                `json:"action"`
	Messages                   []conversationMessage `json:"messages"`
	ParentMessageID            string                `json:"parent_message_id"`
	Model                      string                `json:"model"`
	TimezoneOffsetMin          int                   `json:"timezone_offset_min"`
	Suggestions                []string              `json:"suggestions"`
	HistoryAndTrainingDisabled bool                  `json:"history_and_training_disabled"`
	ConversationMode           conversationMode      `json:"conversation_mode"`
	WebsocketRequestID         string                `json:"websocket_request_id"`
}

// buildConversationBody assembles the outbound payload from caller messages.
func buildConversationBody(model string, messages []models.Message) conversationBody {
	wrapped := make([]conversationMessage, 0, len(messages))
	for _, m := range messages {
		wrapped = append(wrapped, conversationMessage{
			Author:  conversationAuthor{Role: m.Role},
			Content: conversationContent{ContentType: "text", Parts: []string{m.Content}},
		})
	}

	return conversationBody{
		Action:                     "next",
		Messages:                   wrapped,
		ParentMessageID:            uuid.NewString(),
		Model:                      model,
		TimezoneOffsetMin:          -180,
		Suggestions:                []string{},
		HistoryAndTrainingDisabled: true,
		ConversationMode:           conversationMode{Kind: "primary_assistant"},
		WebsocketRequestID:         uuid.NewString(),
	}
}

// setBrowserHeaders applies the static browser-fingerprint header set every
// backend call carries. Values mirror a desktop Chrome request captured
// against the web client.
func setBrowserHeaders(h http.Header, baseURL, userAgent string) {
	h.Set("accept", "*/*")
	h.Set("accept-language", "en-US,en;q=0.9")
	h.Set("cache-control", "no-cache")
	h.Set("content-type", "application/json")
	h.Set("oai-language", "en-US")
	h.Set("origin", baseURL)
	h.Set("pragma", "no-cache")
	h.Set("referer", baseURL)
	h.Set("sec-ch-ua", `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`)
	h.Set("sec-ch-ua-mobile", "?0")
	h.Set("sec-ch-ua-platform", `"Windows"`)
	h.Set("sec-fetch-dest", "empty")
	h.Set("sec-fetch-mode", "cors")
	h.Set("sec-fetch-site", "same-origin")
	h.Set("user-agent", userAgent)
}

// newConversationRequest builds the outbound conversation request: wrapped
// body, browser fingerprint headers, per-session headers, and the freshly
// solved proof-of-work header. No retries happen at this layer; a failed send
// is reported upward as a single error.
func newConversationRequest(ctx context.Context, cfg *Config, snap Snapshot, proofToken string, messages []models.Message) (*http.Request, error) {
	body, err := json.Marshal(buildConversationBody(cfg.Model, messages))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.BaseURL+conversationPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	setBrowserHeaders(req.Header, cfg.BaseURL, snap.UserAgent)
	req.Header.Set("oai-device-id", snap.Session.DeviceID)
	req.Header.Set("openai-sentinel-chat-requirements-token", snap.Session.Token)
	req.Header.Set("openai-sentinel-proof-token", proofToken)

	return req, nil
}
