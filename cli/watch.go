package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

// Status colours follow the desktop client's palette.
var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3584e4"))
	connectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ec27e"))
	connectingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e5a50a"))
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#e01b24"))
	disconnectedStyle = lipgloss.NewStyle().Faint(true)
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boxStyle          = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

type updateMsg tunnel.Update

type closedMsg struct{}

type watchModel struct {
	name    string
	updates <-chan tunnel.Update
	spinner spinner.Model

	state    tunnel.TunnelState
	stats    *tunnel.ConnectionStatistics
	message  tunnel.BackendMessage
	started  bool
	quitting bool
}

func newWatchModel(name string, updates <-chan tunnel.Update) watchModel {
	return watchModel{
		name:    name,
		updates: updates,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(connectingStyle)),
	}
}

func waitForUpdate(ch <-chan tunnel.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return updateMsg(u)
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForUpdate(m.updates))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
	case updateMsg:
		m.state = msg.State
		m.stats = msg.Statistics
		if msg.Changed&tunnel.ChangeMessage != 0 {
			m.message = msg.Message
		}
		if m.state != tunnel.StateDown {
			m.started = true
		} else if m.started {
			return m, tea.Quit
		}
		return m, waitForUpdate(m.updates)
	case closedMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(common.AppName))
	b.WriteString("  ")
	b.WriteString(m.name)
	b.WriteString("\n\n")

	b.WriteString(m.stateLine())
	b.WriteString("\n")

	if m.stats != nil {
		uptime := time.Duration(m.stats.Seconds) * time.Second
		fmt.Fprintf(&b, "Connected for %s\n", formatDuration(uptime))
	}

	switch m.message.Kind {
	case tunnel.MessageFailure:
		b.WriteString(errorStyle.Render("✗ " + m.message.Reason))
		b.WriteString("\n")
	case tunnel.MessageBandwidthAlert:
		b.WriteString(connectingStyle.Render("! " + m.message.Alert.Message))
		b.WriteString("\n")
	}

	out := boxStyle.Render(strings.TrimRight(b.String(), "\n"))
	if m.quitting {
		return out + "\n" + hintStyle.Render("Disconnecting...") + "\n"
	}
	return out + "\n" + hintStyle.Render("q: disconnect") + "\n"
}

func (m watchModel) stateLine() string {
	switch {
	case m.state == tunnel.StateUp:
		return connectedStyle.Render("● " + m.state.String())
	case m.state.IsConnecting() || m.state == tunnel.StateDisconnecting:
		return m.spinner.View() + " " + connectingStyle.Render(m.state.String())
	case m.message.Kind == tunnel.MessageFailure:
		return errorStyle.Render("● " + m.state.String())
	default:
		return disconnectedStyle.Render("○ " + m.state.String())
	}
}

// runWatch shows the live status until the user quits, ctx ends or the
// tunnel goes Down. It returns the last backend message.
func runWatch(ctx context.Context, name string, updates <-chan tunnel.Update) (tunnel.BackendMessage, error) {
	p := tea.NewProgram(newWatchModel(name, updates), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return tunnel.BackendMessage{}, err
	}
	if m, ok := final.(watchModel); ok {
		return m.message, nil
	}
	return tunnel.BackendMessage{}, nil
}
