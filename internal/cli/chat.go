package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rogercare/roger-go/internal/models"
	"github.com/rogercare/roger-go/internal/pipeline"
)

var (
	chatSessionID string
	chatNoStore   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the companion in the terminal",
	Long: `Interactive terminal chat. Every message runs through the same
pipeline the MCP server uses: crisis classification, feedback-loop
detection, memory grounding, and hallucination screening.

Examples:
  roger chat
  roger chat --session margaret
  roger chat --no-store`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "default", "session identifier")
	chatCmd.Flags().BoolVar(&chatNoStore, "no-store", false, "run without SurrealDB persistence")
}

func runChat(cmd *cobra.Command, args []string) error {
	// The TUI owns the terminal; keep logs out of it.
	logLevel := slog.LevelError
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx := context.Background()

	var asm *pipeline.Assembler
	if chatNoStore {
		asm = buildAssembler(nil, logger)
	} else {
		storeClient, err := connectStore(ctx, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: no database, running in-memory: %v\n", err)
			asm = buildAssembler(nil, logger)
		} else {
			defer func() { _ = storeClient.Close(ctx) }()
			asm = buildAssembler(storeClient, logger)
		}
	}

	model := newChatModel(asm, chatSessionID)
	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}

// chatTheme holds the color scheme for the chat display.
type chatTheme struct {
	User    lipgloss.Color
	Roger   lipgloss.Color
	Crisis  lipgloss.Color
	Hint    lipgloss.Color
	Meta    lipgloss.Color
	Divider lipgloss.Color
}

var defaultChatTheme = chatTheme{
	User:    lipgloss.Color("#5FAFD7"), // light blue
	Roger:   lipgloss.Color("#00D787"), // green
	Crisis:  lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Meta:    lipgloss.Color("#8A8A8A"),
	Divider: lipgloss.Color("#3A3A3A"),
}

func (t chatTheme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t chatTheme) rogerStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Roger).Bold(true)
}

func (t chatTheme) crisisStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Crisis).Bold(true)
}

func (t chatTheme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t chatTheme) metaStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Meta)
}

// chatTurn is one exchanged pair in the transcript.
type chatTurn struct {
	user   string
	output *models.TurnOutput
	err    error
}

// replyMsg carries a finished pipeline turn back into the UI loop.
type replyMsg struct {
	output *models.TurnOutput
	err    error
}

// chatModel is the bubbletea model for the interactive chat.
type chatModel struct {
	asm       *pipeline.Assembler
	sessionID string
	theme     chatTheme

	turns   []chatTurn
	input   string
	spin    spinner.Model
	waiting bool
	width   int
}

func newChatModel(asm *pipeline.Assembler, sessionID string) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{
		asm:       asm,
		sessionID: sessionID,
		theme:     defaultChatTheme,
		spin:      sp,
		width:     80,
	}
}

// Init returns the initial command.
func (m chatModel) Init() tea.Cmd {
	return nil
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case replyMsg:
		m.waiting = false
		last := len(m.turns) - 1
		if last >= 0 {
			m.turns[last].output = msg.output
			m.turns[last].err = msg.err
		}
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m chatModel) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "esc":
		return m, tea.Quit

	case "enter":
		text := strings.TrimSpace(m.input)
		if text == "" || m.waiting {
			return m, nil
		}
		m.input = ""
		m.waiting = true
		m.turns = append(m.turns, chatTurn{user: text})
		return m, tea.Batch(m.sendTurn(text), m.spin.Tick)

	case "backspace":
		if len(m.input) > 0 && !m.waiting {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil

	case "space":
		if !m.waiting {
			m.input += " "
		}
		return m, nil

	default:
		// Single printable runes extend the input line; everything
		// else (arrows, function keys) is ignored.
		if !m.waiting && len([]rune(key)) == 1 {
			m.input += key
		}
		return m, nil
	}
}

// sendTurn runs the pipeline off the UI loop.
func (m chatModel) sendTurn(text string) tea.Cmd {
	asm, sessionID := m.asm, m.sessionID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		out, err := asm.Process(ctx, models.TurnInput{
			Text:      text,
			SessionID: sessionID,
		})
		if err != nil {
			return replyMsg{err: err}
		}
		return replyMsg{output: &out}
	}
}

// View renders the transcript and input line.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.theme.hintStyle().Render(
		fmt.Sprintf("roger chat - session %q - Ctrl+C to quit", m.sessionID)))
	b.WriteString("\n\n")

	for _, turn := range m.turns {
		b.WriteString(m.theme.userStyle().Render("you ") + turn.user + "\n")
		switch {
		case turn.err != nil:
			b.WriteString(m.theme.crisisStyle().Render("error ") + turn.err.Error() + "\n")
		case turn.output != nil:
			b.WriteString(m.renderReply(turn.output))
		}
		b.WriteString("\n")
	}

	if m.waiting {
		b.WriteString(m.spin.View() + m.theme.hintStyle().Render(" thinking") + "\n")
	} else {
		b.WriteString(m.theme.userStyle().Render("> ") + m.input + "█\n")
	}

	return b.String()
}

func (m chatModel) renderReply(out *models.TurnOutput) string {
	label := m.theme.rogerStyle().Render("roger ")
	if out.CrisisFlag {
		label = m.theme.crisisStyle().Render("roger ")
	}

	var b strings.Builder
	b.WriteString(label + out.Text + "\n")

	meta := fmt.Sprintf("confidence %.2f | %dms", out.Metadata.Confidence, out.Metadata.ProcessingTimeMs)
	if len(out.Metadata.SystemsEngaged) > 0 {
		meta += " | " + strings.Join(out.Metadata.SystemsEngaged, ", ")
	}
	if out.CrisisFlag {
		meta += " | crisis: " + out.ConcernType
	}
	b.WriteString(m.theme.metaStyle().Render("  "+meta) + "\n")
	return b.String()
}
