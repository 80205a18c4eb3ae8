package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/transcript"
)

// Snapshot is everything the presentation layer needs after a transition.
type Snapshot struct {
	Transcript transcript.Transcript `json:"transcript"`
	State      State                 `json:"state"`
	Busy       bool                  `json:"busy"`
	LastError  string                `json:"last_error,omitempty"`
	CanRetry   bool                  `json:"can_retry"`
}

// Wizard owns one Controller and the busy flag that keeps at most one model
// call outstanding. It is safe for concurrent use.
type Wizard struct {
	ctrl     *Controller
	logger   *slog.Logger
	onChange func(Snapshot)

	mu         sync.Mutex
	busy       bool
	lastErr    string
	state      State
	transcript transcript.Transcript
	canRetry   bool
}

// WizardOption configures a Wizard.
type WizardOption func(*wizardOptions)

type wizardOptions struct {
	logger   *slog.Logger
	onChange func(Snapshot)
	ctrlOpts []ControllerOption
}

// WithWizardLogger sets the logger used by the wizard and its controller.
func WithWizardLogger(logger *slog.Logger) WizardOption {
	return func(o *wizardOptions) { o.logger = logger }
}

// WithOnChange registers a callback invoked with a fresh snapshot after every transition.
func WithOnChange(fn func(Snapshot)) WizardOption {
	return func(o *wizardOptions) { o.onChange = fn }
}

// WithControllerOptions passes options through to the underlying controller.
func WithControllerOptions(opts ...ControllerOption) WizardOption {
	return func(o *wizardOptions) { o.ctrlOpts = append(o.ctrlOpts, opts...) }
}

// NewWizard creates an idle wizard backed by gw.
func NewWizard(gw gateway.Generator, opts ...WizardOption) *Wizard {
	o := wizardOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	w := &Wizard{
		logger:   o.logger,
		onChange: o.onChange,
		state:    StateIdle,
	}
	ctrlOpts := append([]ControllerOption{WithLogger(o.logger)}, o.ctrlOpts...)
	ctrlOpts = append(ctrlOpts, WithObserver(w.observe))
	w.ctrl = NewController(gw, ctrlOpts...)
	return w
}

// Snapshot returns the current view of the session.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// SubmitProblem starts a new session from free text, abandoning any prior one.
func (w *Wizard) SubmitProblem(ctx context.Context, text string) (Snapshot, error) {
	if strings.TrimSpace(text) == "" {
		return w.reject(ErrBlankProblem, msgBlankProblem)
	}
	return w.run(msgStartFailed, func() error {
		_, err := w.ctrl.Start(ctx, text)
		return err
	})
}

// SubmitQuickAction starts a new session from a preset. It is identical to
// SubmitProblem with the preset's prompt.
func (w *Wizard) SubmitQuickAction(ctx context.Context, id string) (Snapshot, error) {
	qa, ok := LookupQuickAction(id)
	if !ok {
		return w.reject(ErrUnknownQuickAction, msgUnknownPreset)
	}
	return w.SubmitProblem(ctx, qa.Prompt)
}

// SubmitFeedback reports the outcome of the last step.
func (w *Wizard) SubmitFeedback(ctx context.Context, kind domain.FeedbackKind, message string) (Snapshot, error) {
	fb := domain.Feedback{Kind: kind, Message: strings.TrimSpace(message)}
	return w.run(msgNextFailed, func() error {
		_, err := w.ctrl.SubmitFeedback(ctx, fb)
		return err
	})
}

// Retry re-issues the model call of the last failed turn.
func (w *Wizard) Retry(ctx context.Context) (Snapshot, error) {
	w.mu.Lock()
	failMsg := msgNextFailed
	if w.state == StateIdle {
		failMsg = msgStartFailed
	}
	w.mu.Unlock()

	return w.run(failMsg, func() error {
		_, err := w.ctrl.Retry(ctx)
		return err
	})
}

// run executes op with the busy flag held. Controller calls only ever happen
// inside run, so the controller never sees concurrent operations.
func (w *Wizard) run(failMsg string, op func() error) (Snapshot, error) {
	w.mu.Lock()
	if w.busy {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, ErrBusy
	}
	w.busy = true
	w.lastErr = ""
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.publish(snap)

	err := op()

	w.mu.Lock()
	w.busy = false
	if err != nil {
		w.lastErr = userMessage(err, failMsg)
	}
	snap = w.snapshotLocked()
	w.mu.Unlock()
	w.publish(snap)

	if err != nil {
		w.logFailure(err)
	}
	return snap, err
}

// reject records a boundary validation failure without touching the session.
func (w *Wizard) reject(err error, msg string) (Snapshot, error) {
	w.mu.Lock()
	if w.busy {
		snap := w.snapshotLocked()
		w.mu.Unlock()
		return snap, ErrBusy
	}
	w.lastErr = msg
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.publish(snap)
	return snap, err
}

func (w *Wizard) observe(state State, t transcript.Transcript) {
	w.mu.Lock()
	w.state = state
	w.transcript = t
	w.canRetry = w.ctrl.CanRetry()
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.publish(snap)
}

func (w *Wizard) snapshotLocked() Snapshot {
	return Snapshot{
		Transcript: w.transcript,
		State:      w.state,
		Busy:       w.busy,
		LastError:  w.lastErr,
		CanRetry:   !w.busy && w.canRetry,
	}
}

func (w *Wizard) publish(snap Snapshot) {
	if w.onChange != nil {
		w.onChange(snap)
	}
}

func (w *Wizard) logFailure(err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		w.logger.Error("Model gateway failure", "reason", gwErr.Reason, "detail", gwErr.Detail())
		return
	}
	w.logger.Warn("Wizard operation rejected", "error", err)
}

func userMessage(err error, failMsg string) string {
	switch {
	case errors.Is(err, gateway.ErrGateway):
		return failMsg
	case errors.Is(err, ErrBlankProblem):
		return msgBlankProblem
	case errors.Is(err, ErrInvalidFeedback):
		return msgBadFeedback
	case errors.Is(err, ErrNoPendingStep):
		return msgNoPendingStep
	case errors.Is(err, ErrNothingToRetry):
		return msgNothingToRetry
	default:
		return failMsg
	}
}
