// Package main provides an OpenAI-compatible proxy over an anonymous
// conversation backend.
//
// # Upstream Integration
//
// The backend does not accept anonymous requests directly. Every call must
// carry a rotating device identity, a short-lived session credential, and a
// solved proof-of-work token:
//
//   - Session issuance: POST {BASE_URL}/backend-anon/sentinel/chat-requirements
//     with an oai-device-id header. The response carries the session token and
//     the proof-of-work seed and difficulty.
//
//   - Conversation: POST {BASE_URL}/backend-anon/conversation with the device
//     id, the session-requirements token, and an openai-sentinel-proof-token
//     header. The response is a chunked stream of data: prefixed JSON lines
//     terminated by data: [DONE].
//
// # Required Headers
//
// Backend calls carry a static browser-fingerprint header set (accept,
// accept-language, sec-ch-ua*, sec-fetch-*, oai-language, origin, referer)
// plus a randomized desktop Chrome user-agent that is re-rolled with every
// session rotation.
//
// # Caller Interface
//
// Callers see a standard chat-completion API:
//
//	POST /v1/chat/completions
//	{"messages": [{"role": "user", "content": "Hi"}], "stream": true}
//
// Streaming responses are SSE chunks with choices[0].delta.content;
// non-streaming responses are a single object with choices[0].message.content
// and a usage block with approximate token counts. Failures of any kind
// produce a uniform error payload rather than a transport-level error.
//
// # Environment Variables
//
//   - BASE_URL: Root URL of the conversation backend
//   - APP_PORT: Listen port
//   - API_TOKEN: Bearer token required from callers
//   - AUTH_JWT_SECRET: Enables JWT client authentication
//   - SESSION_ROLL_INTERVAL, SESSION_MAX_RETRIES: Rotation tuning
//
// For CLI usage, run the application with --help.
package main
