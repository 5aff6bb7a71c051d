// Package client provides a streaming chat client for a running proxy
// instance, used by the chat subcommand.
package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"anonchat-proxy/pkg/models"
)

// StreamHandler defines the interface for handling stream events.
type StreamHandler interface {
	OnContent(content string)
	OnError(err error)
	OnComplete()
}

// Client talks to a proxy instance's chat-completion endpoint.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the proxy at baseURL.
func New(baseURL, apiToken string) *Client {
	return &Client{
		apiToken:   apiToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// chatRequest is the proxy's inbound completion body.
type chatRequest struct {
	Messages []models.Message `json:"messages"`
	Stream   bool             `json:"stream"`
}

// StreamChat sends messages and delivers streamed deltas to handler. The
// error payload the proxy emits on failure carries no choices, so it is
// surfaced through OnError.
func (c *Client) StreamChat(messages []models.Message, handler StreamHandler) error {
	body, err := json.Marshal(chatRequest{Messages: messages, Stream: true})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, payload)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			handler.OnError(fmt.Errorf("failed to read stream: %w", err))
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			handler.OnComplete()
			break
		}

		var chunk models.CompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			handler.OnError(fmt.Errorf("failed to unmarshal chunk: %w", err))
			continue
		}

		if len(chunk.Choices) == 0 {
			var failure models.ErrorPayload
			if json.Unmarshal([]byte(data), &failure) == nil && failure.Error.Message != "" {
				handler.OnError(fmt.Errorf("proxy error: %s", failure.Error.Message))
			}
			continue
		}
		if chunk.Choices[0].Delta.Content != "" {
			handler.OnContent(chunk.Choices[0].Delta.Content)
		}
	}

	return nil
}
