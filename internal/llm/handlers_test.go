package llm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"anonchat-proxy/pkg/models"
)

func TestHandleChatCompletionRejectsBadBody(t *testing.T) {
	state := &ServerState{}

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"empty messages", `{"messages": []}`},
		{"missing messages", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			state.HandleChatCompletion(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleChatCompletionBuffered(t *testing.T) {
	frames := event(t, "Hi there", "finished_successfully", "stop") + "data: [DONE]\n"
	var conversationCalls atomic.Int64
	ts := newCompletionBackend(t, frames, &conversationCalls)
	defer ts.Close()

	state := &ServerState{Service: newTestService(t, ts.URL)}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages": [{"role": "user", "content": "Hello"}]}`))
	rec := httptest.NewRecorder()

	state.HandleChatCompletion(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}

	var resp models.CompletionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "Hi there" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleChatCompletionStreaming(t *testing.T) {
	frames := event(t, "Hi", "in_progress", "") +
		event(t, "Hi there", "finished_successfully", "stop") +
		"data: [DONE]\n"
	var conversationCalls atomic.Int64
	ts := newCompletionBackend(t, frames, &conversationCalls)
	defer ts.Close()

	state := &ServerState{Service: newTestService(t, ts.URL)}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages": [{"role": "user", "content": "Hello"}], "stream": true}`))
	rec := httptest.NewRecorder()

	state.HandleChatCompletion(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	out := rec.Body.String()
	if !strings.HasSuffix(out, "data: [DONE]\n\n") {
		t.Errorf("stream does not end with the [DONE] sentinel:\n%s", out)
	}

	var deltas []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "data: ") || line == "data: [DONE]" {
			continue
		}
		var chunk models.CompletionChunk
		if err := json.Unmarshal([]byte(line[len("data: "):]), &chunk); err != nil {
			t.Fatalf("chunk line %q is not valid JSON: %v", line, err)
		}
		if len(chunk.Choices) != 1 {
			t.Fatalf("chunk has %d choices, want 1", len(chunk.Choices))
		}
		deltas = append(deltas, chunk.Choices[0].Delta.Content)
	}

	want := []string{"Hi", " there", ""}
	if len(deltas) != len(want) {
		t.Fatalf("deltas = %q, want %q", deltas, want)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Errorf("delta[%d] = %q, want %q", i, deltas[i], want[i])
		}
	}
}

func TestHandleChatCompletionFailureIsStillOK(t *testing.T) {
	// No session available: the caller still receives HTTP 200 with the
	// standardized error payload in the body.
	cfg := testConfig("http://unreachable.invalid")
	state := &ServerState{Service: NewService(cfg, NewManager(cfg))}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		strings.NewReader(`{"messages": [{"role": "user", "content": "Hello"}]}`))
	rec := httptest.NewRecorder()

	state.HandleChatCompletion(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var payload models.ErrorPayload
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decoding error payload: %v", err)
	}
	if payload.Status || payload.Error.Type != "invalid_request_error" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}
