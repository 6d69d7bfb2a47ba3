// Package intel answers questions about captured video transcripts. It
// caches per-(agent, video) explain sessions so a transcript crosses the
// wire once per session, and hides the LLM API key from everything above
// it.
package intel

import (
	"context"
	"strings"
)

// Mode selects the single-shot explanation flavor.
type Mode string

const (
	ModeSummary Mode = "summary"
	ModeExplain Mode = "explain"
)

// ParseMode maps a string to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSummary:
		return ModeSummary, true
	case ModeExplain:
		return ModeExplain, true
	}
	return "", false
}

// Chat is a conversational handle that carries prior turns, so follow-up
// questions do not resend the transcript.
type Chat interface {
	Send(ctx context.Context, message string) (string, error)
}

// Client is the LLM backend. Generate performs a single-shot completion;
// StartChat opens a conversation seeded with the system context.
type Client interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	StartChat(system string) Chat
}

// System instructions per mode.
const (
	summaryInstruction = "Summarize the following video transcript concisely. Cover the main points in order."
	explainInstruction = "Explain the following video transcript for a beginner. Assume no prior knowledge of the topic."
	chatInstruction    = "You answer questions about a video using its transcript. Quote timestamps when useful. The transcript follows."
)

func modeInstruction(mode Mode) string {
	if mode == ModeExplain {
		return explainInstruction
	}
	return summaryInstruction
}
