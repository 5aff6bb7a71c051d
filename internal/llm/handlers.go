package llm

import (
	"encoding/json"
	"fmt"
	"net/http"

	"anonchat-proxy/pkg/models"
)

// ServerState holds the HTTP-facing state for the proxy core.
type ServerState struct {
	Service *Service
}

// NewServerState wires a server state around a fresh session manager using
// the singleton configuration.
func NewServerState() *ServerState {
	cfg := GetConfig()
	return &ServerState{Service: NewService(cfg, NewManager(cfg))}
}

// CompletionParams is the inbound request body of the completions endpoint.
type CompletionParams struct {
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

// sseSink adapts an http.ResponseWriter into a StreamSink that renders each
// chunk as a data: line and terminates the stream with the [DONE] sentinel.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) *sseSink {
	flusher, _ := w.(http.Flusher)
	return &sseSink{w: w, flusher: flusher}
}

func (s *sseSink) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *sseSink) Close() error {
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// HandleChatCompletion serves POST /v1/chat/completions in both streaming and
// buffered modes. Pipeline failures surface as the standardized error payload
// with a 200 status; only an unreadable request body is a client error.
func (s *ServerState) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var params CompletionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(params.Messages) == 0 {
		http.Error(w, "messages must not be empty", http.StatusBadRequest)
		return
	}

	if !params.Stream {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Service.Complete(r.Context(), params.Messages))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	s.Service.CompleteStream(r.Context(), params.Messages, newSSESink(w))
}
