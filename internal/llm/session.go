package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const sessionRequirementsPath = "/backend-anon/sentinel/chat-requirements"

var (
	// ErrSessionUnavailable is returned when a request arrives before any
	// rotation has succeeded.
	ErrSessionUnavailable = errors.New("no valid session available")

	// ErrRotationExhausted is returned when a rotation call fails more than
	// the configured number of attempts.
	ErrRotationExhausted = errors.New("session rotation exhausted retries")
)

// ProofOfWork holds the per-session puzzle parameters issued by the backend.
type ProofOfWork struct {
	Required   bool   `json:"required"`
	Seed       string `json:"seed"`
	Difficulty string `json:"difficulty"`
}

// Arkose and Turnstile are additional anti-bot layers the backend may flag.
// They are carried through unchanged; this proxy does not solve them, and
// requests that trip them fail visibly upstream.
type Arkose struct {
	Required bool            `json:"required"`
	DX       json.RawMessage `json:"dx,omitempty"`
}

// Turnstile mirrors the backend's turnstile requirement flag.
type Turnstile struct {
	Required bool `json:"required"`
}

// Session is the anonymous credential bundle issued by the backend. A Session
// is either fully valid (non-empty Token) or absent; it is installed wholesale
// by a successful rotation and never mutated afterwards, so snapshots handed
// to request goroutines are safe to read without locking.
type Session struct {
	DeviceID    string      `json:"-"`
	Token       string      `json:"token"`
	Persona     string      `json:"persona"`
	Arkose      Arkose      `json:"arkose"`
	Turnstile   Turnstile   `json:"turnstile"`
	ProofOfWork ProofOfWork `json:"proofofwork"`
}

// Valid reports whether the session can back a conversation request.
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// Snapshot is the read-only (session, fingerprint) pair handed to request
// goroutines. The two always come from the same rotation.
type Snapshot struct {
	Session   *Session
	UserAgent string
}

// Manager owns the current session and fingerprint. It is the only component
// allowed to mutate them; everyone else reads immutable snapshots.
type Manager struct {
	config     *Config
	httpClient *http.Client

	mu       sync.RWMutex
	current  Snapshot
	rotating atomic.Bool
}

// NewManager creates a session manager. No rotation is attempted until
// Rotate or Run is called.
func NewManager(cfg *Config) *Manager {
	return &Manager{
		config:     cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		current:    Snapshot{UserAgent: randomUserAgent()},
	}
}

// Snapshot returns the current session and fingerprint without blocking on an
// in-flight rotation. ok is false until the first successful rotation.
func (m *Manager) Snapshot() (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.current.Session.Valid()
}

// Rotate fetches a fresh session from the backend, retrying with jittered
// backoff up to the configured maximum. Only one rotation runs at a time; a
// concurrent trigger returns immediately and leaves the in-flight rotation to
// finish. On success the session and a freshly rolled user-agent are installed
// together; on exhaustion the previous state is kept and the error surfaced.
func (m *Manager) Rotate(ctx context.Context) error {
	if !m.rotating.CompareAndSwap(false, true) {
		return nil
	}
	defer m.rotating.Store(false)

	userAgent := randomUserAgent()

	var lastErr error
	for attempt := 0; attempt <= m.config.RotateMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay()):
			}
		}

		session, err := m.fetchSession(ctx, userAgent)
		if err != nil {
			lastErr = err
			log.Printf("[session] rotation attempt %d failed: %v", attempt+1, err)
			continue
		}

		m.mu.Lock()
		m.current = Snapshot{Session: session, UserAgent: userAgent}
		m.mu.Unlock()
		log.Printf("[session] rotated: device=%s pow_required=%t", session.DeviceID, session.ProofOfWork.Required)
		return nil
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRotationExhausted, m.config.RotateMaxRetries+1, lastErr)
}

// retryDelay returns the configured target delay plus a symmetric random
// offset, desynchronizing concurrent retry storms.
func (m *Manager) retryDelay() time.Duration {
	jitter := m.config.RotateRetryJitter
	if jitter <= 0 {
		return m.config.RotateRetryDelay
	}
	offset := time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	return m.config.RotateRetryDelay + offset
}

// fetchSession performs one session-issuance call with a fresh device id.
func (m *Manager) fetchSession(ctx context.Context, userAgent string) (*Session, error) {
	deviceID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.config.BaseURL+sessionRequirementsPath, nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req.Header, m.config.BaseURL, userAgent)
	req.Header.Set("oai-device-id", deviceID)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("session endpoint returned %s: %s", resp.Status, body)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decoding session response: %w", err)
	}
	if session.Token == "" {
		return nil, errors.New("session response missing token")
	}

	session.DeviceID = deviceID
	return &session, nil
}

// Run rotates immediately and then on every tick of the configured interval
// until ctx is canceled. Failures are logged and left for the next trigger.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.RollInterval)
	defer ticker.Stop()

	for {
		if err := m.Rotate(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[session] %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
