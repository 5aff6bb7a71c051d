package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"anonchat-proxy/pkg/models"
)

const (
	framePrefix   = "data: "
	frameSentinel = "data: [DONE]"
)

// heartbeatPattern matches the bare-timestamp keepalive lines the backend
// interleaves with real events.
var heartbeatPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}$`)

// frameAssembler is the first transcoding stage: it buffers the upstream byte
// stream, splits it on line boundaries, trims trailing whitespace, stops at
// the [DONE] sentinel, and yields only data-prefixed frames.
type frameAssembler struct {
	scanner *bufio.Scanner
	done    bool
}

func newFrameAssembler(r io.Reader) *frameAssembler {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &frameAssembler{scanner: scanner}
}

// Next returns the next frame and true, or "" and false at end of stream.
func (f *frameAssembler) Next() (string, bool) {
	if f.done {
		return "", false
	}
	for f.scanner.Scan() {
		line := strings.TrimRight(f.scanner.Text(), " \t\r")
		if line == frameSentinel {
			f.done = true
			return "", false
		}
		if strings.HasPrefix(line, framePrefix) {
			return line, true
		}
	}
	f.done = true
	return "", false
}

// Err reports a read failure on the underlying stream, if any.
func (f *frameAssembler) Err() error {
	return f.scanner.Err()
}

// frameMessage is the second stage: it strips the frame prefix to obtain the
// raw payload string.
func frameMessage(frame string) string {
	return frame[len(framePrefix):]
}

// streamEvent is the subset of a backend event the transcoder reads.
type streamEvent struct {
	Message struct {
		Status  string `json:"status"`
		Content struct {
			Parts []string `json:"parts"`
		} `json:"content"`
		Metadata struct {
			FinishDetails struct {
				Type string `json:"type"`
			} `json:"finish_details"`
		} `json:"metadata"`
	} `json:"message"`
}

// finishReasonFor maps a backend status to a caller-facing finish reason,
// empty meaning "not finished".
func finishReasonFor(event *streamEvent) string {
	switch event.Message.Status {
	case "finished_successfully":
		if event.Message.Metadata.FinishDetails.Type == "max_tokens" {
			return "length"
		}
		return "stop"
	default:
		return ""
	}
}

// Transcoder consumes the upstream event stream and produces incremental
// content deltas. The backend resends the whole reply so far on each event;
// the transcoder removes the previously seen cumulative content as a literal
// prefix and tracks the longest cumulative content as the running baseline,
// which guards against an out-of-order shorter update overwriting it.
type Transcoder struct {
	frames  *frameAssembler
	prompts []string

	fullContent      string
	finishReason     string
	completionTokens int
}

// NewTranscoder wraps an upstream response body. prompts are the original
// input message contents; an event whose cumulative content exactly equals
// one of them is an echo and is treated as empty.
func NewTranscoder(r io.Reader, messages []models.Message) *Transcoder {
	prompts := make([]string, 0, len(messages))
	for _, m := range messages {
		prompts = append(prompts, m.Content)
	}
	return &Transcoder{frames: newFrameAssembler(r), prompts: prompts}
}

// Next returns the next non-empty content delta. It returns io.EOF at the end
// of the stream and a wrapped error for a malformed frame, which aborts the
// completion rather than silently dropping data mid-stream.
func (t *Transcoder) Next() (string, error) {
	for {
		frame, ok := t.frames.Next()
		if !ok {
			if err := t.frames.Err(); err != nil {
				return "", fmt.Errorf("reading upstream stream: %w", err)
			}
			return "", io.EOF
		}

		payload := frameMessage(frame)
		if heartbeatPattern.MatchString(payload) {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return "", fmt.Errorf("malformed upstream event: %w", err)
		}

		content := ""
		if parts := event.Message.Content.Parts; len(parts) > 0 {
			content = parts[0]
		}
		for _, prompt := range t.prompts {
			if content == prompt {
				content = ""
				break
			}
		}

		if reason := finishReasonFor(&event); reason != "" {
			t.finishReason = reason
		} else {
			t.finishReason = ""
		}

		if content == "" {
			continue
		}

		delta := strings.TrimPrefix(content, t.fullContent)
		if len(content) > len(t.fullContent) {
			t.fullContent = content
		}
		if delta == "" {
			continue
		}

		t.completionTokens += EstimateTokens(delta)
		return delta, nil
	}
}

// FullContent returns the longest cumulative content seen so far.
func (t *Transcoder) FullContent() string {
	return t.fullContent
}

// FinishReason returns the finish reason of the most recent event, or nil
// while the reply is still in progress.
func (t *Transcoder) FinishReason() *string {
	if t.finishReason == "" {
		return nil
	}
	reason := t.finishReason
	return &reason
}

// CompletionTokens returns the accumulated token estimate of emitted deltas.
func (t *Transcoder) CompletionTokens() int {
	return t.completionTokens
}
