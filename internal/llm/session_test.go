package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) *Config {
	return &Config{
		BaseURL:           baseURL,
		APIToken:          "test-token",
		Model:             "text-davinci-002-render-sha",
		ServedModel:       "gpt-3.5-turbo",
		RollInterval:      time.Minute,
		RotateMaxRetries:  2,
		RotateRetryDelay:  5 * time.Millisecond,
		RotateRetryJitter: time.Millisecond,
	}
}

func sessionIssuer(t *testing.T, calls *atomic.Int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != sessionRequirementsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.Header.Get("oai-device-id") == "" {
			t.Error("missing oai-device-id header")
		}
		if r.Header.Get("user-agent") == "" {
			t.Error("missing user-agent header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"token":   "session-token",
			"persona": "chatgpt-noauth",
			"proofofwork": map[string]any{
				"required":   true,
				"seed":       "0.42",
				"difficulty": "0fffff",
			},
		})
	}
}

func TestManagerSnapshotBeforeRotation(t *testing.T) {
	m := NewManager(testConfig("http://unreachable.invalid"))

	snap, ok := m.Snapshot()
	if ok {
		t.Error("Snapshot() ok = true before any rotation")
	}
	if snap.Session.Valid() {
		t.Error("session reported valid before any rotation")
	}
	if snap.UserAgent == "" {
		t.Error("fingerprint should be populated even before rotation")
	}
}

func TestManagerRotateSuccess(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(sessionIssuer(t, &calls))
	defer ts.Close()

	m := NewManager(testConfig(ts.URL))
	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}

	snap, ok := m.Snapshot()
	if !ok {
		t.Fatal("Snapshot() ok = false after successful rotation")
	}
	if snap.Session.Token != "session-token" {
		t.Errorf("token = %q, want %q", snap.Session.Token, "session-token")
	}
	if snap.Session.DeviceID == "" {
		t.Error("device id not attached to installed session")
	}
	if !snap.Session.ProofOfWork.Required || snap.Session.ProofOfWork.Seed == "" || snap.Session.ProofOfWork.Difficulty == "" {
		t.Errorf("proof-of-work parameters not populated: %+v", snap.Session.ProofOfWork)
	}
	if calls.Load() != 1 {
		t.Errorf("session endpoint called %d times, want 1", calls.Load())
	}
}

func TestManagerRotateReplacesSessionWholesale(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(sessionIssuer(t, &calls))
	defer ts.Close()

	m := NewManager(testConfig(ts.URL))
	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("first Rotate() error = %v", err)
	}
	first, _ := m.Snapshot()

	if err := m.Rotate(context.Background()); err != nil {
		t.Fatalf("second Rotate() error = %v", err)
	}
	second, _ := m.Snapshot()

	if first.Session == second.Session {
		t.Error("rotation mutated the session in place instead of replacing it")
	}
	if first.Session.DeviceID == second.Session.DeviceID {
		t.Error("device id not regenerated on rotation")
	}
	// The first snapshot must be untouched by the second rotation.
	if first.Session.Token != "session-token" {
		t.Errorf("earlier snapshot corrupted: token = %q", first.Session.Token)
	}
}

func TestManagerRotateRetriesAreBounded(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	m := NewManager(cfg)

	err := m.Rotate(context.Background())
	if !errors.Is(err, ErrRotationExhausted) {
		t.Fatalf("Rotate() error = %v, want ErrRotationExhausted", err)
	}

	want := int64(cfg.RotateMaxRetries + 1)
	if calls.Load() != want {
		t.Errorf("session endpoint called %d times, want %d", calls.Load(), want)
	}
	if _, ok := m.Snapshot(); ok {
		t.Error("manager left a valid snapshot after exhausted rotation")
	}
}

func TestManagerRotateRejectsEmptyToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"token": ""})
	}))
	defer ts.Close()

	m := NewManager(testConfig(ts.URL))
	if err := m.Rotate(context.Background()); err == nil {
		t.Fatal("Rotate() accepted a session without a token")
	}
	if _, ok := m.Snapshot(); ok {
		t.Error("partially-populated session was installed")
	}
}

func TestManagerRotateSingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		json.NewEncoder(w).Encode(map[string]any{"token": "session-token"})
	}))
	defer ts.Close()

	m := NewManager(testConfig(ts.URL))

	done := make(chan error, 1)
	go func() { done <- m.Rotate(context.Background()) }()

	// Wait for the first rotation to be in flight, then trigger a second.
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := m.Rotate(context.Background()); err != nil {
		t.Errorf("concurrent Rotate() error = %v, want nil fast-path", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("session endpoint called %d times, want 1", calls.Load())
	}
}

func TestRetryDelayStaysWithinJitterWindow(t *testing.T) {
	cfg := testConfig("http://unreachable.invalid")
	cfg.RotateRetryDelay = 3 * time.Second
	cfg.RotateRetryJitter = 500 * time.Millisecond
	m := NewManager(cfg)

	for i := 0; i < 100; i++ {
		d := m.retryDelay()
		if d < 2500*time.Millisecond || d > 3500*time.Millisecond {
			t.Fatalf("retryDelay() = %v, want within 3s +- 500ms", d)
		}
	}
}

func TestRandomUserAgentLooksLikeABrowser(t *testing.T) {
	ua := randomUserAgent()
	if ua == "" {
		t.Fatal("randomUserAgent() returned empty string")
	}
	for _, want := range []string{"Mozilla/5.0", "Chrome/", "Safari/"} {
		if !strings.Contains(ua, want) {
			t.Errorf("user agent %q missing %q", ua, want)
		}
	}
}
