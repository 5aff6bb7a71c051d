/*
Package llm implements the core of the anonymous conversation proxy.

# Architecture Overview

The package follows a layered pipeline:

1. Session Manager (session.go)
  - Owns the anonymous credential bundle (device id, session token,
    proof-of-work parameters) and the browser fingerprint
  - Rotates both on a background schedule and on demand, with bounded
    jittered retries
  - Hands out immutable snapshots so a rotation mid-request can never
    corrupt a request in flight

2. Proof-of-Work Solver (proof.go)
  - Pure CPU-bound search answering the backend's sentinel challenge
  - Falls back to a deterministic best-effort token on exhaustion so the
    request path never blocks indefinitely

3. Upstream Request Builder (request.go)
  - Wraps caller messages into the backend's nested author/content schema
  - Merges the static browser-fingerprint header set with per-session and
    per-request proof headers

4. Stream Transcoder (stream.go)
  - Reassembles newline-delimited data: frames from the upstream byte stream
  - Skips heartbeats, suppresses prompt echoes, maps backend statuses to
    finish reasons
  - Converts cumulative content into exact incremental deltas

5. Completion Orchestrator (service.go)
  - Entry point wiring the stages together for streaming and buffered modes
  - Converts every pipeline failure into the uniform caller-facing error
    payload; nothing propagates to the transport layer

# Request Flow

1. Caller POSTs messages to /v1/chat/completions
2. Orchestrator reads the current session snapshot (failing fast if none)
3. Solver produces a proof token from the session's seed and difficulty
4. Builder assembles and sends the conversation request
5. Transcoder turns the upstream event stream into chat-completion chunks
   or a single buffered response

# Failure Contract

Callers always receive either a well-formed completion object/chunk stream
or the standardized error payload. Rotation retries, puzzle exhaustion, and
malformed frames are all absorbed inside this package.
*/
package llm
