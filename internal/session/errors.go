package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInputValidation is matched by errors caused by bad user input.
	ErrInputValidation = errors.New("invalid input")
	// ErrPrecondition is matched by operations issued in the wrong state.
	ErrPrecondition = errors.New("operation not allowed in current state")
	// ErrBusy is returned while a previous model call is still outstanding.
	ErrBusy = errors.New("a request is already in progress")
)

var (
	// ErrBlankProblem is returned when a session is started with only whitespace.
	ErrBlankProblem = fmt.Errorf("%w: problem statement is blank", ErrInputValidation)
	// ErrInvalidFeedback is returned for a feedback kind other than success or failure.
	ErrInvalidFeedback = fmt.Errorf("%w: feedback kind must be success or failure", ErrInputValidation)
	// ErrUnknownQuickAction is returned when no preset has the requested ID.
	ErrUnknownQuickAction = fmt.Errorf("%w: unknown quick action", ErrInputValidation)
	// ErrNoPendingStep is returned when feedback arrives but the last message is not an agent step.
	ErrNoPendingStep = fmt.Errorf("%w: feedback requires a pending agent step", ErrPrecondition)
	// ErrNothingToRetry is returned by Retry when no failed turn is waiting.
	ErrNothingToRetry = fmt.Errorf("%w: no failed turn to retry", ErrPrecondition)
)

// User-facing messages. They never carry provider detail.
const (
	msgBlankProblem   = "Please describe your PC problem before running diagnostics."
	msgStartFailed    = "Failed to start diagnostics. The AI may be overloaded or an error occurred. Please try again later."
	msgNextFailed     = "Failed to get the next step. Please try again."
	msgNoPendingStep  = "There is no step waiting for feedback."
	msgNothingToRetry = "There is nothing to retry."
	msgBadFeedback    = "Feedback must be either success or failure."
	msgUnknownPreset  = "Unknown quick action."
)
