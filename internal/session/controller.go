package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/transcript"
)

// Observer is notified after every transition, on the goroutine running the operation.
type Observer func(State, transcript.Transcript)

// Controller is the turn state machine for a single session. It is not safe
// for concurrent use; the caller serializes operations (see Wizard).
type Controller struct {
	gateway    gateway.Generator
	logger     *slog.Logger
	observer   Observer
	newID      func() string
	transcript transcript.Transcript
	state      State
	problem    string
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a transition observer.
func WithObserver(obs Observer) ControllerOption {
	return func(c *Controller) { c.observer = obs }
}

// WithIDGenerator overrides message ID generation.
func WithIDGenerator(fn func() string) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewController creates an idle controller backed by gw.
func NewController(gw gateway.Generator, opts ...ControllerOption) *Controller {
	c := &Controller{
		gateway: gw,
		logger:  slog.Default(),
		newID:   domain.NewMessageID,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Transcript returns the current transcript.
func (c *Controller) Transcript() transcript.Transcript { return c.transcript }

// CanRetry reports whether Retry would issue a model call.
func (c *Controller) CanRetry() bool {
	return c.state == StatePendingRetry || (c.state == StateIdle && c.problem != "" && c.transcript.Len() == 0)
}

// Start abandons any prior session and asks the model for the first step.
// On gateway failure the controller is left Idle with an empty transcript.
func (c *Controller) Start(ctx context.Context, problem string) (domain.Message, error) {
	if strings.TrimSpace(problem) == "" {
		return nil, ErrBlankProblem
	}

	c.problem = problem
	c.transcript = transcript.Transcript{}
	c.transition(StateAwaitingFirstStep)
	c.logger.Info("Starting diagnostic session", "problem_length", len(problem))

	return c.requestStep(ctx, startPrompt(problem), StateIdle)
}

// SubmitFeedback records the user's report on the last step and asks for the
// next one. The feedback stays in the transcript even if the model call fails.
func (c *Controller) SubmitFeedback(ctx context.Context, fb domain.Feedback) (domain.Message, error) {
	if !fb.Kind.Valid() {
		return nil, ErrInvalidFeedback
	}
	if c.state != StateAwaitingFeedback || !c.transcript.LastIsAgentStep() {
		return nil, ErrNoPendingStep
	}

	c.transcript = c.transcript.Append(domain.UserFeedback{ID: c.newID(), Feedback: fb})
	c.transition(StateAwaitingNextStep)
	c.logger.Info("Feedback recorded", "kind", fb.Kind, "has_message", fb.Message != "", "messages", c.transcript.Len())

	return c.requestStep(ctx, continuePrompt(c.transcript), StatePendingRetry)
}

// Retry re-issues the model call for a turn whose reply failed: the
// continuation after recorded feedback, or the opening call of a failed start.
func (c *Controller) Retry(ctx context.Context) (domain.Message, error) {
	switch {
	case c.state == StatePendingRetry:
		c.transition(StateAwaitingNextStep)
		c.logger.Info("Retrying next step", "messages", c.transcript.Len())
		return c.requestStep(ctx, continuePrompt(c.transcript), StatePendingRetry)
	case c.CanRetry():
		c.transition(StateAwaitingFirstStep)
		c.logger.Info("Retrying session start", "problem_length", len(c.problem))
		return c.requestStep(ctx, startPrompt(c.problem), StateIdle)
	default:
		return nil, ErrNothingToRetry
	}
}

// requestStep performs the single gateway call of a turn. The call is
// detached from ctx cancellation: once issued it runs to completion.
func (c *Controller) requestStep(ctx context.Context, prompt string, onFailure State) (domain.Message, error) {
	resp, err := c.gateway.GenerateStep(context.WithoutCancel(ctx), prompt)
	if err != nil {
		c.transition(onFailure)
		return nil, fmt.Errorf("session: request step: %w", err)
	}

	msg := c.agentMessage(resp)
	c.transcript = c.transcript.Append(msg)
	if resp.SessionComplete {
		c.transition(StateComplete)
		c.logger.Info("Diagnostic session complete", "messages", c.transcript.Len())
	} else {
		c.transition(StateAwaitingFeedback)
	}
	return msg, nil
}

func (c *Controller) agentMessage(resp *gateway.StepResponse) domain.Message {
	if resp.SessionComplete {
		return domain.SessionSummary{ID: c.newID(), Summary: resp.Summary, Step: resp.Step}
	}
	return domain.AgentStep{ID: c.newID(), Step: resp.Step}
}

func (c *Controller) transition(next State) {
	c.state = next
	if c.observer != nil {
		c.observer(c.state, c.transcript)
	}
}
