package llm

import (
	"fmt"
	"math/rand"
)

// The fingerprint presented to the backend is a plausible desktop Chrome
// user-agent. It is re-rolled on every session rotation so a device id never
// outlives its user-agent pairing.

var (
	uaPlatforms = []string{
		"Windows NT 10.0; Win64; x64",
		"Macintosh; Intel Mac OS X 10_15_7",
		"X11; Linux x86_64",
	}
	uaChromeVersions = []string{
		"122.0.0.0",
		"123.0.0.0",
		"124.0.0.0",
	}
)

// randomUserAgent assembles a browser-like user-agent string from fixed
// candidate sets.
func randomUserAgent() string {
	platform := uaPlatforms[rand.Intn(len(uaPlatforms))]
	version := uaChromeVersions[rand.Intn(len(uaChromeVersions))]
	return fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", platform, version)
}
