package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/session"
	tea "github.com/charmbracelet/bubbletea"
)

type queueGateway struct {
	mu      sync.Mutex
	replies []*gateway.StepResponse
	prompts []string
}

func (g *queueGateway) GenerateStep(_ context.Context, prompt string) (*gateway.StepResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if len(g.replies) == 0 {
		return nil, &gateway.Error{Reason: gateway.ReasonTransport, Err: errors.New("connection reset")}
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r, nil
}

func stepReply(title, command string) *gateway.StepResponse {
	return &gateway.StepResponse{
		Thought: "next",
		Step:    domain.RepairStep{Title: title, Details: title + " details", Command: command},
	}
}

func newTestModel(replies ...*gateway.StepResponse) (model, *queueGateway) {
	gw := &queueGateway{replies: replies}
	m := newModel(session.NewWizard(gw))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(model), gw
}

// press feeds a key and runs the resulting wizard command to completion.
func press(t *testing.T, m model, key tea.KeyMsg) model {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(model)
	if cmd == nil {
		return m
	}
	msg := cmd()
	if done, ok := msg.(wizardDoneMsg); ok {
		next, _ = m.Update(done)
		return next.(model)
	}
	return m
}

func typeText(m model, text string) model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return next.(model)
}

func TestQuickActionStartsSession(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel(stepReply("Run SFC", "sfc /scannow"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF1})

	if m.snap.State != session.StateAwaitingFeedback {
		t.Fatalf("state = %v, want awaiting_feedback", m.snap.State)
	}
	if !strings.Contains(gw.prompts[0], session.QuickActions()[0].Prompt) {
		t.Fatalf("prompt does not carry the preset: %q", gw.prompts[0])
	}
	view := m.View()
	for _, want := range []string{"Run SFC", "sfc /scannow", "ctrl+s it worked"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestEnterSubmitsProblemAndClearsInput(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel(stepReply("Check fans", ""))
	m = typeText(m, "laptop overheats")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(gw.prompts) != 1 || !strings.Contains(gw.prompts[0], "laptop overheats") {
		t.Fatalf("prompts = %q", gw.prompts)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}
	if m.snap.Transcript.Len() != 1 {
		t.Fatalf("transcript len = %d, want 1", m.snap.Transcript.Len())
	}
}

func TestBlankProblemShowsError(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel()
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(gw.prompts) != 0 {
		t.Fatalf("gateway called for blank problem")
	}
	if m.snap.LastError == "" || !strings.Contains(m.View(), m.snap.LastError) {
		t.Fatalf("expected error in view, last error %q", m.snap.LastError)
	}
}

func TestFailureFeedbackCarriesInputText(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel(stepReply("Restart", ""), stepReply("Check logs", ""))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF3})
	m = typeText(m, "still broken")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlF})

	if len(gw.prompts) != 2 || !strings.Contains(gw.prompts[1], "still broken") {
		t.Fatalf("continuation prompt missing feedback: %q", gw.prompts)
	}
	msgs := m.snap.Transcript.Messages()
	if len(msgs) != 3 {
		t.Fatalf("transcript len = %d, want 3", len(msgs))
	}
	fb, ok := msgs[1].(domain.UserFeedback)
	if !ok || fb.Feedback.Kind != domain.FeedbackFailure || fb.Feedback.Message != "still broken" {
		t.Fatalf("unexpected feedback message: %#v", msgs[1])
	}
	if !strings.Contains(m.View(), "It didn't work") {
		t.Fatalf("view does not render feedback")
	}
}

func TestRetryAfterFailedContinuation(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel(stepReply("Restart", ""))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF2})
	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})

	if m.snap.State != session.StatePendingRetry || !m.snap.CanRetry {
		t.Fatalf("state = %v can retry = %v, want pending retry", m.snap.State, m.snap.CanRetry)
	}
	if !strings.Contains(m.View(), "ctrl+r retry") {
		t.Fatalf("retry hint not shown")
	}

	gw.mu.Lock()
	gw.replies = append(gw.replies, &gateway.StepResponse{
		Step:            domain.RepairStep{Title: "Done", Details: "Reboot once more"},
		SessionComplete: true,
		Summary:         "The issue is fixed.",
	})
	gw.mu.Unlock()

	m = press(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.snap.State != session.StateComplete {
		t.Fatalf("state = %v, want complete", m.snap.State)
	}
	if gw.prompts[1] != gw.prompts[2] {
		t.Fatalf("retry sent a different prompt")
	}
	if !strings.Contains(m.View(), "Session complete") {
		t.Fatalf("summary not rendered")
	}
}

func TestKeysIgnoredWhileBusy(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel(stepReply("Restart", ""))
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyF1})
	m = next.(model)
	if cmd == nil || !m.busy {
		t.Fatalf("expected an in-flight command")
	}

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyF2})
	if cmd != nil {
		t.Fatalf("second action dispatched while busy")
	}
	if !strings.Contains(next.(model).View(), "Waiting for the next step") {
		t.Fatalf("busy indicator not shown")
	}
}

func TestEnterIgnoredWhileAwaitingFeedback(t *testing.T) {
	t.Parallel()

	m, gw := newTestModel(stepReply("Restart", ""))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyF1})
	m = typeText(m, "new problem")
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(gw.prompts) != 1 {
		t.Fatalf("enter started a new session while awaiting feedback")
	}
	if m.input.Value() != "new problem" {
		t.Fatalf("input = %q, want kept", m.input.Value())
	}
}

func TestQuickActionKeyBounds(t *testing.T) {
	t.Parallel()

	if id, ok := quickActionKey("f4"); !ok || id != session.QuickActions()[3].ID {
		t.Fatalf("f4 = %q, %v", id, ok)
	}
	if _, ok := quickActionKey("f5"); ok {
		t.Fatalf("f5 should not map to a quick action")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if !tt.wantErr && got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRootCmdFlags(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	for _, name := range []string{"log-file", "log-level", "model"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing flag %q", name)
		}
	}
	if got := cmd.Flags().Lookup("log-level").DefValue; got != "info" {
		t.Fatalf("log-level default = %q, want info", got)
	}
}

func TestQuestionMarkTogglesCommandHelp(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel()
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	if !m.showHelp {
		t.Fatal("help not shown")
	}
	view := m.View()
	for _, want := range []string{"How to Run Commands", "Run as Administrator"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if m.input.Value() != "" {
		t.Fatalf("? leaked into input: %q", m.input.Value())
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showHelp || strings.Contains(m.View(), "How to Run Commands") {
		t.Fatal("help not closed by esc")
	}
}

func TestQuestionMarkIsTextOnceTyping(t *testing.T) {
	t.Parallel()

	m, _ := newTestModel()
	m = typeText(m, "why so slow")
	m = typeText(m, "?")
	if m.showHelp {
		t.Fatal("help opened while typing")
	}
	if m.input.Value() != "why so slow?" {
		t.Fatalf("input = %q", m.input.Value())
	}
}
