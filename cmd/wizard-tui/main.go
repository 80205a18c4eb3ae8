// wizard-tui runs the repair wizard in a terminal, talking to the model directly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ashureev/diagnose-ai/internal/config"
	"github.com/ashureev/diagnose-ai/internal/domain"
	"github.com/ashureev/diagnose-ai/internal/gateway"
	"github.com/ashureev/diagnose-ai/internal/session"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultLogPath = "./data/logs/wizard-tui.log"

type wizardDoneMsg struct {
	snap session.Snapshot
	err  error
}

type theme struct {
	header   lipgloss.Style
	card     lipgloss.Style
	title    lipgloss.Style
	command  lipgloss.Style
	warning  lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
	summary  lipgloss.Style
	status   lipgloss.Style
	errorMsg lipgloss.Style
	help     lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#4cc9f0")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff5d8f")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#8d99ae")

	return theme{
		header: lipgloss.NewStyle().Bold(true).Foreground(blue).Padding(0, 1),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		title:    lipgloss.NewStyle().Bold(true),
		command:  lipgloss.NewStyle().Foreground(mint).Background(lipgloss.Color("#1b1f2a")).Padding(0, 1),
		warning:  lipgloss.NewStyle().Foreground(amber).Bold(true),
		success:  lipgloss.NewStyle().Foreground(mint).Bold(true),
		failure:  lipgloss.NewStyle().Foreground(pink).Bold(true),
		summary:  lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(mint).Padding(0, 1),
		status:   lipgloss.NewStyle().Foreground(blue),
		errorMsg: lipgloss.NewStyle().Foreground(pink).Bold(true),
		help:     lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	wizard   *session.Wizard
	snap     session.Snapshot
	busy     bool
	showHelp bool
	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme
	width    int
	height   int
}

func newModel(w *session.Wizard) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Describe your PC problem and press Enter"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	return model{
		wizard:   w,
		snap:     w.Snapshot(),
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
		theme:    newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// dispatch runs a wizard operation off the UI goroutine.
func (m model) dispatch(op func(context.Context) (session.Snapshot, error)) (model, tea.Cmd) {
	m.busy = true
	return m, func() tea.Msg {
		snap, err := op(context.Background())
		return wizardDoneMsg{snap: snap, err: err}
	}
}

func quickActionKey(key string) (string, bool) {
	actions := session.QuickActions()
	idx := map[string]int{"f1": 0, "f2": 1, "f3": 2, "f4": 3}
	i, ok := idx[key]
	if !ok || i >= len(actions) {
		return "", false
	}
	return actions[i].ID, true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case wizardDoneMsg:
		m.busy = false
		m.snap = msg.snap
		if msg.err == nil {
			m.input.Reset()
		}
		m.updatePlaceholder()
		m.renderTimeline()
		m.timeline.GotoBottom()
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}
		if (key == "?" && m.input.Value() == "") || (key == "esc" && m.showHelp) {
			m.showHelp = !m.showHelp
			m.renderTimeline()
			m.timeline.GotoTop()
			return m, nil
		}
		if m.busy {
			return m, nil
		}
		if id, ok := quickActionKey(key); ok {
			return m.dispatch(func(ctx context.Context) (session.Snapshot, error) {
				return m.wizard.SubmitQuickAction(ctx, id)
			})
		}
		switch key {
		case "enter":
			if m.snap.State == session.StateAwaitingFeedback || m.snap.State == session.StatePendingRetry {
				return m, nil
			}
			text := m.input.Value()
			return m.dispatch(func(ctx context.Context) (session.Snapshot, error) {
				return m.wizard.SubmitProblem(ctx, text)
			})
		case "ctrl+s", "ctrl+f":
			kind := domain.FeedbackSuccess
			if key == "ctrl+f" {
				kind = domain.FeedbackFailure
			}
			text := m.input.Value()
			return m.dispatch(func(ctx context.Context) (session.Snapshot, error) {
				return m.wizard.SubmitFeedback(ctx, kind, text)
			})
		case "ctrl+r":
			return m.dispatch(m.wizard.Retry)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *model) updatePlaceholder() {
	switch m.snap.State {
	case session.StateAwaitingFeedback:
		m.input.Placeholder = "Optional: paste output or describe what happened"
	case session.StateComplete:
		m.input.Placeholder = "Session complete. Describe a new problem to start again"
	default:
		m.input.Placeholder = "Describe your PC problem and press Enter"
	}
}

func (m *model) resize() {
	// header + status + input + help
	reserved := 6
	h := m.height - reserved
	if h < 3 {
		h = 3
	}
	m.timeline.Width = m.width
	m.timeline.Height = h
	m.input.Width = m.width - 4
}

func (m *model) renderTimeline() {
	content := renderTranscript(m.theme, m.snap, m.width)
	if m.showHelp {
		content = renderCommandHelp(m.theme, m.width) + "\n" + content
	}
	m.timeline.SetContent(content)
}

func renderCommandHelp(th theme, width int) string {
	lines := []string{th.title.Render("How to Run Commands")}
	for i, step := range session.CommandHelp() {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, step))
	}
	lines = append(lines, "", th.help.Render("press ? or esc to close"))
	w := width - 2
	if w < 20 {
		w = 20
	}
	return th.card.Width(w).Render(strings.Join(lines, "\n"))
}

func renderTranscript(th theme, snap session.Snapshot, width int) string {
	if snap.Transcript.Len() == 0 {
		var b strings.Builder
		b.WriteString("No active session. Describe a problem or pick a quick action:\n\n")
		for i, qa := range session.QuickActions() {
			fmt.Fprintf(&b, "  F%d  %s\n", i+1, qa.Label)
		}
		return b.String()
	}

	cardWidth := width - 2
	if cardWidth < 20 {
		cardWidth = 20
	}

	var blocks []string
	step := 0
	for _, msg := range snap.Transcript.Messages() {
		switch m := msg.(type) {
		case domain.AgentStep:
			step++
			blocks = append(blocks, th.card.Width(cardWidth).Render(renderStep(th, step, m.Step)))
		case domain.UserFeedback:
			blocks = append(blocks, renderFeedback(th, m.Feedback))
		case domain.SessionSummary:
			body := th.success.Render("Session complete") + "\n" + m.Summary + "\n\n" + renderStep(th, step+1, m.Step)
			blocks = append(blocks, th.summary.Width(cardWidth).Render(body))
		}
	}
	return strings.Join(blocks, "\n")
}

func renderStep(th theme, n int, s domain.RepairStep) string {
	lines := []string{th.title.Render(fmt.Sprintf("Step %d: %s", n, s.Title)), s.Details}
	if s.HasCommand() {
		lines = append(lines, "", th.command.Render(s.Command))
	}
	if s.Warning != "" {
		lines = append(lines, "", th.warning.Render("⚠ "+s.Warning))
	}
	return strings.Join(lines, "\n")
}

func renderFeedback(th theme, fb domain.Feedback) string {
	line := th.success.Render("✔ It worked")
	if fb.Kind == domain.FeedbackFailure {
		line = th.failure.Render("✘ It didn't work")
	}
	if fb.Message != "" {
		line += "  " + fb.Message
	}
	return "  " + line
}

func (m model) statusLine() string {
	switch {
	case m.busy:
		return m.spinner.View() + " " + m.theme.status.Render("Waiting for the next step...")
	case m.snap.LastError != "":
		return m.theme.errorMsg.Render(m.snap.LastError)
	default:
		return m.theme.status.Render(strings.ReplaceAll(m.snap.State.String(), "_", " "))
	}
}

func (m model) helpLine() string {
	keys := []string{"F1-F4 quick actions", "? command help", "ctrl+c quit"}
	switch {
	case m.snap.State == session.StateAwaitingFeedback:
		keys = append([]string{"ctrl+s it worked", "ctrl+f it didn't work"}, keys...)
	case m.snap.CanRetry:
		keys = append([]string{"ctrl+r retry"}, keys...)
	default:
		keys = append([]string{"enter start"}, keys...)
	}
	return m.theme.help.Render(strings.Join(keys, " · "))
}

func (m model) View() string {
	header := m.theme.header.Render("DiagnoseAI · guided PC repair")
	return strings.Join([]string{
		header,
		m.timeline.View(),
		m.statusLine(),
		m.input.View(),
		m.helpLine(),
		m.theme.help.Render(session.Disclaimer),
	}, "\n")
}

func openLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

type options struct {
	logFile  string
	logLevel string
	model    string
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "wizard-tui",
		Short: "Guided PC repair in the terminal",
		Long: `wizard-tui walks through a PC problem one step at a time.
Each step is proposed by the model; report whether it worked and the next
step follows. Commands are shown, never executed.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	logDefault := os.Getenv("WIZARD_TUI_LOG")
	if logDefault == "" {
		logDefault = defaultLogPath
	}
	cmd.Flags().StringVar(&opts.logFile, "log-file", logDefault, "file that receives JSON logs")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.model, "model", "", "model name (overrides GEMINI_MODEL)")
	return cmd
}

func run(ctx context.Context, opts options) error {
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logFile, err := openLog(opts.logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return err
	}
	if opts.model != "" {
		cfg.Model.Name = opts.model
	}

	gw, err := gateway.NewGenAI(ctx, gateway.Config{
		APIKey: cfg.Model.APIKey,
		Model:  cfg.Model.Name,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize model gateway", "error", err)
		return fmt.Errorf("model gateway: %w", err)
	}
	slog.Info("Starting wizard TUI", "model", gw.Model())

	w := session.NewWizard(gw, session.WithWizardLogger(logger))
	p := tea.NewProgram(newModel(w), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		slog.Error("TUI exited with error", "error", err)
		return err
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "failed to read .env:", err)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
