// Package gateway is the single point of contact with the generative model.
// It enforces the structured step schema on every call and owns the system
// instruction that defines the agent's behavior.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/diagnose-ai/internal/domain"
)

// Generator turns a prompt into exactly one structured step.
type Generator interface {
	GenerateStep(ctx context.Context, prompt string) (*StepResponse, error)
}

// StepResponse is the parsed, validated model output.
type StepResponse struct {
	// Thought is the model's rationale. It is not recorded in the transcript.
	Thought         string
	Step            domain.RepairStep
	SessionComplete bool
	Summary         string
}

// ErrGateway is matched by every error returned from GenerateStep.
var ErrGateway = errors.New("failed to get a response from the model")

// Reason classifies a gateway failure for diagnostics.
type Reason string

const (
	// ReasonTransport covers network, auth and provider-side errors.
	ReasonTransport Reason = "transport"
	// ReasonMalformed means the response text was empty or not JSON.
	ReasonMalformed Reason = "malformed"
	// ReasonSchema means the JSON did not match the step schema.
	ReasonSchema Reason = "schema"
)

// Error is the only error type GenerateStep returns. Its message is generic;
// the provider detail is reachable through Unwrap and Detail for logging.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string { return ErrGateway.Error() }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGateway) true for every gateway failure.
func (e *Error) Is(target error) bool { return target == ErrGateway }

// Detail renders the reason and cause for diagnostic logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}
