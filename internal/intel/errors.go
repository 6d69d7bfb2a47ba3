package intel

import "errors"

// Error kinds surfaced by the facade. Callers branch with errors.Is.
var (
	// ErrConfigMissing means no LLM API key was configured. Surfaces at
	// session construction, never later.
	ErrConfigMissing = errors.New("llm api key not configured")

	// ErrTranscriptUnavailable means no transcript has been captured for
	// the requested (agent, video) pair.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")

	// ErrLLMUnavailable wraps any failure of the LLM round-trip,
	// including deadline expiry.
	ErrLLMUnavailable = errors.New("llm unavailable")
)
