package llm

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/rand"
	"time"

	"golang.org/x/crypto/sha3"
)

const (
	// proofTokenPrefix marks an answer found within the iteration bound.
	proofTokenPrefix = "gAAAAAB"
	// proofFallbackPrefix marks the best-effort token returned on exhaustion.
	// The backend is expected to reject it; it exists so the request path
	// never blocks on an unsolvable puzzle.
	proofFallbackPrefix = "gAAAAABwQ8Lk5FbGpA2NcR9dShT6gYjU"
)

// proofIterationBound is the search limit per solve call. Package variable so
// tests can exercise the exhaustion path.
var proofIterationBound = 100000

var (
	proofCoreCounts  = []int{8, 12, 16, 24}
	proofScreenAreas = []int{3000, 4000, 6000}
)

// proofTimeString renders the fabricated browser clock: the current time
// shifted back eight hours with a fixed timezone label, matching what the
// backend's sentinel script would read from a real browser.
func proofTimeString(now time.Time) string {
	return now.Add(-8*time.Hour).Format("Mon Jan 02 2006 15:04:05") +
		" GMT+0200 (Central European Summer Time)"
}

// SolveProofToken answers the backend's proof-of-work challenge. It searches
// for a counter value whose SHA3-512 digest over seed+config meets the
// difficulty prefix condition and returns the marker-prefixed base64 config.
// If the search exhausts its bound, a deterministic fallback token built from
// the seed alone is returned instead.
//
// The routine is pure and CPU-bound: no I/O, no shared state, safe to run
// concurrently across requests.
func SolveProofToken(seed, difficulty, userAgent string) string {
	cores := proofCoreCounts[rand.Intn(len(proofCoreCounts))]
	screen := proofScreenAreas[rand.Intn(len(proofScreenAreas))]

	config := []any{
		cores + screen,
		proofTimeString(time.Now()),
		4294705152,
		0,
		userAgent,
	}

	// The SHA3-512 digest renders to 128 hex characters; a longer difficulty
	// can only ever be compared against the whole digest.
	prefixLen := len(difficulty) / 2
	if prefixLen > 128 {
		prefixLen = 128
	}

	for counter := 0; counter < proofIterationBound; counter++ {
		config[3] = counter
		payload, err := json.Marshal(config)
		if err != nil {
			break
		}
		encoded := base64.StdEncoding.EncodeToString(payload)

		digest := sha3.Sum512([]byte(seed + encoded))
		digestHex := hex.EncodeToString(digest[:])
		if digestHex[:prefixLen] <= difficulty {
			return proofTokenPrefix + encoded
		}
	}

	return proofFallbackPrefix + base64.StdEncoding.EncodeToString([]byte(seed))
}
