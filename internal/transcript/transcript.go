// Package transcript holds the ordered message log of a repair session and
// renders it back into model context.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashureev/diagnose-ai/internal/domain"
)

// Transcript is an immutable, append-only sequence of session messages.
// The zero value is an empty transcript.
type Transcript struct {
	messages []domain.Message
}

// New builds a transcript from msgs. The slice is copied.
func New(msgs ...domain.Message) Transcript {
	if len(msgs) == 0 {
		return Transcript{}
	}
	cp := make([]domain.Message, len(msgs))
	copy(cp, msgs)
	return Transcript{messages: cp}
}

// Append returns a new transcript with m added at the end.
// The receiver is left untouched.
func (t Transcript) Append(m domain.Message) Transcript {
	next := make([]domain.Message, len(t.messages), len(t.messages)+1)
	copy(next, t.messages)
	return Transcript{messages: append(next, m)}
}

// Len returns the number of messages.
func (t Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages in insertion order.
func (t Transcript) Messages() []domain.Message {
	cp := make([]domain.Message, len(t.messages))
	copy(cp, t.messages)
	return cp
}

// Last returns the most recent message, if any.
func (t Transcript) Last() (domain.Message, bool) {
	if len(t.messages) == 0 {
		return nil, false
	}
	return t.messages[len(t.messages)-1], true
}

// LastIsAgentStep returns true if the most recent message is an AgentStep,
// which is the only point at which user feedback may be recorded.
func (t Transcript) LastIsAgentStep() bool {
	last, ok := t.Last()
	if !ok {
		return false
	}
	_, isStep := last.(domain.AgentStep)
	return isStep
}

// Complete returns true if the transcript ends with a SessionSummary.
func (t Transcript) Complete() bool {
	last, ok := t.Last()
	if !ok {
		return false
	}
	_, done := last.(domain.SessionSummary)
	return done
}

// Serialize renders the transcript as one line per message, in insertion order.
// This rendering is the model's only memory of the session.
func (t Transcript) Serialize() string {
	lines := make([]string, 0, len(t.messages))
	for _, m := range t.messages {
		lines = append(lines, renderLine(m))
	}
	return strings.Join(lines, "\n")
}

func renderLine(m domain.Message) string {
	switch msg := m.(type) {
	case domain.AgentStep:
		return renderStep(msg.Step)
	case domain.SessionSummary:
		return renderStep(msg.Step)
	case domain.UserFeedback:
		return renderFeedback(msg.Feedback)
	default:
		panic(fmt.Sprintf("transcript: unhandled message type %T", m))
	}
}

func renderStep(s domain.RepairStep) string {
	line := fmt.Sprintf("[AI Step]: %s - %s", s.Title, s.Details)
	if s.Command != "" {
		line += fmt.Sprintf(" (Command: %s)", s.Command)
	}
	return line
}

func renderFeedback(f domain.Feedback) string {
	outcome := "success"
	if f.Kind == domain.FeedbackFailure {
		outcome = "error"
	}
	line := fmt.Sprintf("[User Feedback]: The last step was a %s.", outcome)
	if f.Message != "" {
		line += fmt.Sprintf(" User message: \"%s\"", f.Message)
	}
	return line
}

// MarshalJSON implements json.Marshaler. An empty transcript encodes as [].
func (t Transcript) MarshalJSON() ([]byte, error) {
	if t.messages == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.messages)
}
