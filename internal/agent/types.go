// Package agent exposes the repair wizard over HTTP: one wizard per client
// tab, per-client rate limiting and NDJSON conversation logging.
package agent

import "github.com/ashureev/diagnose-ai/internal/session"

// StartRequest is the body of POST /api/session.
type StartRequest struct {
	Problem string `json:"problem"`
}

// FeedbackRequest is the body of POST /api/session/feedback.
type FeedbackRequest struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionResponse is the body of every /api/session response.
type SessionResponse struct {
	session.Snapshot
	Error string `json:"error,omitempty"`
}

// Conversation log channels and event types.
const (
	channelHTTP = "session_http"

	eventProblem        = "problem_submitted"
	eventQuickAction    = "quick_action_submitted"
	eventFeedback       = "feedback_submitted"
	eventRetry          = "retry_requested"
	eventAgentStep      = "agent_step"
	eventSessionSummary = "session_summary"
	eventGatewayFailure = "gateway_failure"
)
