// Package domain contains core domain types for the repair wizard.
package domain

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// RepairStep is a single directive produced by the model.
// Command and Warning are optional; an empty string means absent.
type RepairStep struct {
	Title   string `json:"title"`
	Details string `json:"details"`
	Command string `json:"command,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// HasCommand returns true if the step suggests a shell line.
func (s RepairStep) HasCommand() bool {
	return strings.TrimSpace(s.Command) != ""
}

// FeedbackKind is the outcome the user reports for the last step.
type FeedbackKind string

const (
	// FeedbackSuccess means the step worked.
	FeedbackSuccess FeedbackKind = "success"
	// FeedbackFailure means the step failed or produced an error.
	FeedbackFailure FeedbackKind = "failure"
)

// Valid reports whether k is one of the known kinds.
func (k FeedbackKind) Valid() bool {
	return k == FeedbackSuccess || k == FeedbackFailure
}

// Feedback is the user's report on the most recent step.
// An empty Message means the user gave no detail.
type Feedback struct {
	Kind    FeedbackKind `json:"kind"`
	Message string       `json:"message,omitempty"`
}

// Message is one entry of a session transcript. The set of implementations is
// closed: AgentStep, UserFeedback and SessionSummary.
type Message interface {
	MessageID() string
	isMessage()
}

// AgentStep is a directive turn from the model.
type AgentStep struct {
	ID   string
	Step RepairStep
}

// UserFeedback is a response turn from the user.
type UserFeedback struct {
	ID       string
	Feedback Feedback
}

// SessionSummary is the terminal agent turn.
type SessionSummary struct {
	ID      string
	Summary string
	Step    RepairStep
}

// MessageID returns the rendering identity of the message.
func (m AgentStep) MessageID() string { return m.ID }

// MessageID returns the rendering identity of the message.
func (m UserFeedback) MessageID() string { return m.ID }

// MessageID returns the rendering identity of the message.
func (m SessionSummary) MessageID() string { return m.ID }

func (AgentStep) isMessage()      {}
func (UserFeedback) isMessage()   {}
func (SessionSummary) isMessage() {}

// Wire tags used by the presentation layer.
const (
	TypeAgentStep      = "agent_step"
	TypeUserFeedback   = "user_feedback"
	TypeSessionSummary = "session_summary"
)

// MarshalJSON implements json.Marshaler.
func (m AgentStep) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID   string     `json:"id"`
		Type string     `json:"type"`
		Step RepairStep `json:"step"`
	}{m.ID, TypeAgentStep, m.Step})
}

// MarshalJSON implements json.Marshaler.
func (m UserFeedback) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       string   `json:"id"`
		Type     string   `json:"type"`
		Feedback Feedback `json:"feedback"`
	}{m.ID, TypeUserFeedback, m.Feedback})
}

// MarshalJSON implements json.Marshaler.
func (m SessionSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string     `json:"id"`
		Type    string     `json:"type"`
		Summary string     `json:"summary"`
		Step    RepairStep `json:"step"`
	}{m.ID, TypeSessionSummary, m.Summary, m.Step})
}

// NewMessageID returns a fresh random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}
