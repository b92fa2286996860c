package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/codingbridge/codingbridge/internal/approval"
	"github.com/codingbridge/codingbridge/internal/config"
	"github.com/codingbridge/codingbridge/internal/gateway"
	"github.com/codingbridge/codingbridge/internal/render"
	"github.com/spf13/cobra"
)

func NewPromptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prompt",
		Short: "Answer approval requests interactively",
		RunE:  runPrompt,
	}
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := gateway.NewClient("http://"+cfg.GatewayAddr(), cfg.Gateway.Token)
	if err := client.Health(cmd.Context()); err != nil {
		return fmt.Errorf("gateway not reachable (is 'codingbridge serve' running?): %w", err)
	}

	model := newPromptModel(client)
	_, err = tea.NewProgram(model).Run()
	return err
}

// approvalClient is the gateway surface the prompt needs.
type approvalClient interface {
	Active(ctx context.Context) (gateway.ActiveResponse, bool, error)
	Decide(ctx context.Context, requestID, action string) error
}

type tickMsg time.Time

type activeMsg struct {
	resp gateway.ActiveResponse
	ok   bool
	err  error
}

type decidedMsg struct {
	action string
	err    error
}

type promptModel struct {
	client  approvalClient
	spinner spinner.Model

	active    gateway.ActiveResponse
	hasActive bool
	status    string
	lastErr   error
	quitting  bool
}

func newPromptModel(client approvalClient) promptModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#8E4EC6"))
	return promptModel{client: client, spinner: sp}
}

func (m promptModel) Init() tea.Cmd {
	return tea.Batch(m.fetchActive(), tick(), m.spinner.Tick)
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m promptModel) fetchActive() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		resp, ok, err := client.Active(ctx)
		return activeMsg{resp: resp, ok: ok, err: err}
	}
}

func (m promptModel) decide(action string) tea.Cmd {
	client := m.client
	requestID := m.active.RequestID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := client.Decide(ctx, requestID, action)
		return decidedMsg{action: action, err: err}
	}
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(m.fetchActive(), tick())

	case activeMsg:
		m.lastErr = msg.err
		m.hasActive = msg.ok
		if msg.ok {
			m.active = msg.resp
		}
		return m, nil

	case decidedMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, m.fetchActive()
		}
		m.lastErr = nil
		m.status = "Decision sent: " + msg.action
		return m, m.fetchActive()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m promptModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit
	}

	if !m.hasActive {
		return m, nil
	}

	if m.active.Confirming {
		switch msg.String() {
		case "enter":
			return m, m.decide("confirm_always")
		case "o":
			return m, m.decide("confirm_once")
		case "esc":
			return m, m.decide("cancel_always")
		}
		return m, nil
	}

	switch msg.String() {
	case "a":
		return m, m.decide("approve")
	case "d":
		return m, m.decide("deny")
	case "y":
		return m, m.decide("request_always")
	case "r":
		return m, m.decide("redispatch")
	}
	return m, nil
}

var (
	waitingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(1, 0)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CD5C5C")) // IndianRed
)

func (m promptModel) View() string {
	if m.quitting {
		return ""
	}

	var out string
	if !m.hasActive {
		out = m.spinner.View() + waitingStyle.Render("Waiting for approval requests... (q to quit)")
		if m.status != "" {
			out += "\n" + m.status
		}
	} else {
		req := approval.Request{ToolName: m.active.ToolName, Input: m.active.Input}
		out = render.Banner(render.BannerData{
			Title:       m.active.Title,
			Description: render.Markdown(m.active.Description),
			Icon:        req.ToolIcon(),
			Phase:       m.active.Phase,
			Remaining:   time.Duration(m.active.RemainingSeconds) * time.Second,
			Confirming:  m.active.Confirming,
			QueueLength: m.active.QueueLength,
		})
	}

	if m.lastErr != nil {
		out += "\n" + errorStyle.Render("Error: "+m.lastErr.Error())
	}
	return out + "\n"
}
