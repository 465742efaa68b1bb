// Package stream converts the raw streaming frames emitted by providers into
// a single Delta representation.
//
// Two wire formats are understood: the JSON payload of an OpenAI-compatible
// SSE "data:" line and one line of an Ollama NDJSON stream. A Reader drives
// a frame channel through the matching normalizer and stops at the first
// terminal frame, cancelling the upstream request.
package stream
