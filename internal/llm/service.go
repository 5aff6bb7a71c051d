package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"anonchat-proxy/pkg/models"
)

const (
	completionIDPrefix = "chatcmpl-"
	supportPointer     = "https://github.com/anonchat-proxy/anonchat-proxy/issues"
	failureMessage     = "An error occurred. Please check the server console to confirm it is ready and free of errors. Additionally, ensure that your request complies with the upstream policy."
)

// ErrUpstreamRequest is returned when the conversation endpoint answers with
// a non-OK status or an empty body.
var ErrUpstreamRequest = errors.New("upstream conversation request failed")

// Service is the completion orchestrator: it wires the session manager, the
// proof-of-work solver, the request builder, and the stream transcoder, and
// defines the failure-response contract.
type Service struct {
	config     *Config
	sessions   *Manager
	httpClient *http.Client
}

// NewService creates the orchestrator around a session manager. The
// conversation client carries a generous total timeout: the upstream streams
// its reply incrementally and a tight deadline would sever long completions.
func NewService(cfg *Config, sessions *Manager) *Service {
	return &Service{
		config:     cfg,
		sessions:   sessions,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Sessions exposes the session manager for lifecycle wiring.
func (s *Service) Sessions() *Manager {
	return s.sessions
}

// StreamSink receives rendered chunks during a streaming completion. The
// orchestrator closes it exactly once, after the final chunk or the error
// payload.
type StreamSink interface {
	Send(v any) error
	Close() error
}

// errorPayload builds the uniform failure response delivered for every
// pipeline error, regardless of cause.
func errorPayload() *models.ErrorPayload {
	return &models.ErrorPayload{
		Status: false,
		Error: models.ErrorDetail{
			Message: failureMessage,
			Type:    "invalid_request_error",
		},
		Support: supportPointer,
	}
}

// generateCompletionID returns a unique caller-facing completion id with the
// given prefix.
func generateCompletionID(prefix string) string {
	const characters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 28)
	for i := range b {
		b[i] = characters[rand.Intn(len(characters))]
	}
	return prefix + string(b)
}

// Complete runs a buffered completion. The returned value is always safe to
// serialize to the caller: either a *models.CompletionResponse or, on any
// failure, the standardized *models.ErrorPayload. Lower-level errors never
// propagate to the transport layer.
func (s *Service) Complete(ctx context.Context, messages []models.Message) any {
	response, err := s.run(ctx, messages, nil)
	if err != nil {
		log.Printf("[completion] %v", err)
		return errorPayload()
	}
	return response
}

// CompleteStream drives a streaming completion, sending one chunk per
// non-empty delta to sink followed by a final empty-delta chunk carrying the
// last known finish reason. On failure the standardized error payload is the
// sole chunk sent. The sink is closed in every case.
func (s *Service) CompleteStream(ctx context.Context, messages []models.Message, sink StreamSink) {
	defer sink.Close()

	if _, err := s.run(ctx, messages, sink); err != nil {
		log.Printf("[completion] %v", err)
		if sendErr := sink.Send(errorPayload()); sendErr != nil {
			log.Printf("[completion] delivering error payload: %v", sendErr)
		}
	}
}

// run executes the completion pipeline. With a nil sink it buffers the reply
// and returns the final response object; with a sink it emits chunks as
// deltas arrive and returns nil.
func (s *Service) run(ctx context.Context, messages []models.Message, sink StreamSink) (*models.CompletionResponse, error) {
	snap, ok := s.sessions.Snapshot()
	if !ok {
		return nil, ErrSessionUnavailable
	}

	proofToken := SolveProofToken(
		snap.Session.ProofOfWork.Seed,
		snap.Session.ProofOfWork.Difficulty,
		snap.UserAgent,
	)

	req, err := newConversationRequest(ctx, s.config, snap, proofToken, messages)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK || resp.Body == nil {
		return nil, fmt.Errorf("%w: %s", ErrUpstreamRequest, resp.Status)
	}

	promptContents := make([]string, 0, len(messages))
	for _, m := range messages {
		promptContents = append(promptContents, m.Content)
	}
	promptTokens := estimateMessageTokens(promptContents)

	requestID := generateCompletionID(completionIDPrefix)
	created := time.Now().Unix()

	transcoder := NewTranscoder(resp.Body, messages)
	for {
		delta, err := transcoder.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if sink != nil {
			chunk := renderChunk(requestID, created, s.config.ServedModel, delta, transcoder.FinishReason())
			if err := sink.Send(chunk); err != nil {
				return nil, err
			}
		}
	}

	if sink != nil {
		final := renderChunk(requestID, created, s.config.ServedModel, "", transcoder.FinishReason())
		if err := sink.Send(final); err != nil {
			return nil, err
		}
		return nil, nil
	}

	completionTokens := transcoder.CompletionTokens()
	return &models.CompletionResponse{
		ID:      requestID,
		Created: created,
		Model:   s.config.ServedModel,
		Object:  "chat.completion",
		Choices: []models.ResponseChoice{
			{
				FinishReason: transcoder.FinishReason(),
				Index:        0,
				Message: models.ResponseMessage{
					Role:    "assistant",
					Content: transcoder.FullContent(),
				},
			},
		},
		Usage: models.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}

// renderChunk builds one caller-facing streaming chunk.
func renderChunk(id string, created int64, model, delta string, finishReason *string) *models.CompletionChunk {
	return &models.CompletionChunk{
		ID:      id,
		Created: created,
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []models.ChunkChoice{
			{
				Delta:        models.Delta{Content: delta},
				Index:        0,
				FinishReason: finishReason,
			},
		},
	}
}
