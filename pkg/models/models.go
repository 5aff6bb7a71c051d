// Package models defines the wire types shared between the proxy core and
// its HTTP layer: caller-facing chat-completion shapes and the uniform error
// payload.
package models

// Message is a single turn of a conversation as submitted by a caller.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Delta carries the incremental text of a streaming chunk.
type Delta struct {
	Content string `json:"content"`
}

// ChunkChoice is one choice entry of a streaming chunk. FinishReason is a
// pointer so that in-progress chunks serialize it as null.
type ChunkChoice struct {
	Delta        Delta   `json:"delta"`
	Index        int     `json:"index"`
	FinishReason *string `json:"finish_reason"`
}

// CompletionChunk is the caller-facing streaming chunk, mirroring the
// standard chat-completion chunk schema field for field.
type CompletionChunk struct {
	ID      string        `json:"id"`
	Created int64         `json:"created"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ResponseMessage is the assistant message of a buffered completion.
type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseChoice is one choice entry of a buffered completion.
type ResponseChoice struct {
	FinishReason *string         `json:"finish_reason"`
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
}

// Usage holds approximate token counts for the non-streaming response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the caller-facing buffered completion object.
type CompletionResponse struct {
	ID      string           `json:"id"`
	Created int64            `json:"created"`
	Model   string           `json:"model"`
	Object  string           `json:"object"`
	Choices []ResponseChoice `json:"choices"`
	Usage   Usage            `json:"usage"`
}

// ErrorDetail describes a failure in the caller-facing error payload.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ErrorPayload is the uniform failure response. It is delivered as the sole
// streamed chunk or as the sole buffered response body, regardless of the
// underlying cause.
type ErrorPayload struct {
	Status  bool        `json:"status"`
	Error   ErrorDetail `json:"error"`
	Support string      `json:"support"`
}
