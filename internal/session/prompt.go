package session

import (
	"fmt"

	"github.com/ashureev/diagnose-ai/internal/transcript"
)

func startPrompt(problem string) string {
	return fmt.Sprintf("Start a new diagnostic session. The user's problem is: \"%s\"", problem)
}

func continuePrompt(t transcript.Transcript) string {
	return "This is the conversation history so far:\n" + t.Serialize() +
		"\n\nBased on the user's last feedback, provide the very next step."
}
