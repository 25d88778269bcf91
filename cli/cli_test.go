package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/config"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + 1*time.Minute + 9*time.Second, "2h 1m 9s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %v, want %v", tt.duration, got, tt.expected)
			}
		})
	}
}

func newTestCLI() (*CLI, *bytes.Buffer) {
	var buf bytes.Buffer
	c := New(config.DefaultSettings(), common.NopLogger{})
	c.out = &buf
	return c, &buf
}

func TestCLI_Routes(t *testing.T) {
	c, buf := newTestCLI()

	if err := c.Routes([]string{"10.0.0.0/24"}, []string{"10.0.0.128/25"}); err != nil {
		t.Fatalf("Routes() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "10.0.0.0/25") {
		t.Errorf("Routes() output missing 10.0.0.0/25:\n%s", out)
	}
	if !strings.Contains(out, "10.0.0.127") {
		t.Errorf("Routes() output missing last address:\n%s", out)
	}
	if !strings.Contains(out, "1 prefixes, 128 addresses") {
		t.Errorf("Routes() output missing summary:\n%s", out)
	}
}

func TestCLI_RoutesEmpty(t *testing.T) {
	c, buf := newTestCLI()

	if err := c.Routes([]string{"10.0.0.0/8"}, []string{"10.0.0.0/8"}); err != nil {
		t.Fatalf("Routes() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Nothing to route") {
		t.Errorf("Routes() = %q, want empty notice", buf.String())
	}
}

func TestCLI_RoutesInvalid(t *testing.T) {
	c, _ := newTestCLI()

	err := c.Routes([]string{"10.0.0.0/8"}, []string{"10.1.0.0/99"})
	if !errors.Is(err, common.ErrInvalidPrefix) {
		t.Errorf("Routes() error = %v, want ErrInvalidPrefix", err)
	}
}

func TestCLI_ConnectMissingProfile(t *testing.T) {
	c, _ := newTestCLI()

	err := c.Connect(context.Background(), t.TempDir()+"/missing.yaml")
	if !errors.Is(err, common.ErrConfigLoad) {
		t.Errorf("Connect() error = %v, want ErrConfigLoad", err)
	}
}

func TestWatchPlain_StopsWhenTunnelDrops(t *testing.T) {
	updates := make(chan tunnel.Update, 8)
	updates <- tunnel.Update{Seq: 1, Changed: tunnel.ChangeState | tunnel.ChangeMessage, State: tunnel.StateDown}
	updates <- tunnel.Update{Seq: 2, Changed: tunnel.ChangeState, State: tunnel.StateInitializingClient}
	updates <- tunnel.Update{Seq: 3, Changed: tunnel.ChangeState, State: tunnel.StateUp, Statistics: &tunnel.ConnectionStatistics{}}
	updates <- tunnel.Update{Seq: 4, Changed: tunnel.ChangeStatistics, State: tunnel.StateUp, Statistics: &tunnel.ConnectionStatistics{Seconds: 1}}
	updates <- tunnel.Update{
		Seq:     5,
		Changed: tunnel.ChangeState | tunnel.ChangeMessage,
		State:   tunnel.StateDown,
		Message: tunnel.BackendMessage{Kind: tunnel.MessageFailure, Reason: "gateway unreachable"},
	}

	var buf bytes.Buffer
	last, err := watchPlain(context.Background(), &buf, updates)
	if err != nil {
		t.Fatalf("watchPlain() error = %v", err)
	}
	if last.Kind != tunnel.MessageFailure {
		t.Errorf("last message = %v, want Failure", last.Kind)
	}

	out := buf.String()
	for _, want := range []string{"Connecting (initializing client)", "Up", "✗ gateway unreachable", "Down"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, " Up\n"); got != 1 {
		t.Errorf("Up printed %d times, want once", got)
	}
}

func TestWatchPlain_ContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if _, err := watchPlain(ctx, &buf, make(chan tunnel.Update)); err != nil {
		t.Errorf("watchPlain() error = %v", err)
	}
}

func TestWatchModel_Update(t *testing.T) {
	m := newWatchModel("office", nil)

	next, _ := m.Update(updateMsg{Changed: tunnel.ChangeState, State: tunnel.StateEstablishingConnection})
	m = next.(watchModel)
	if !strings.Contains(m.View(), "Connecting (establishing connection)") {
		t.Errorf("View() = %q, want connecting state", m.View())
	}

	next, _ = m.Update(updateMsg{
		Changed:    tunnel.ChangeState | tunnel.ChangeStatistics,
		State:      tunnel.StateUp,
		Statistics: &tunnel.ConnectionStatistics{Seconds: 65},
	})
	m = next.(watchModel)
	view := m.View()
	if !strings.Contains(view, "Up") || !strings.Contains(view, "Connected for 1m 5s") {
		t.Errorf("View() = %q, want Up with uptime", view)
	}

	next, cmd := m.Update(updateMsg{
		Changed: tunnel.ChangeState | tunnel.ChangeMessage,
		State:   tunnel.StateDown,
		Message: tunnel.BackendMessage{Kind: tunnel.MessageFailure, Reason: "tunnel went down unexpectedly"},
	})
	m = next.(watchModel)
	if cmd == nil {
		t.Fatal("Update() returned no command after the tunnel dropped")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Update() should quit once the tunnel is Down again")
	}
	if m.message.Kind != tunnel.MessageFailure {
		t.Errorf("message = %v, want Failure", m.message.Kind)
	}
}

func TestWatchModel_QuitKey(t *testing.T) {
	m := newWatchModel("office", nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !next.(watchModel).quitting {
		t.Error("quitting = false after q")
	}
	if cmd == nil {
		t.Fatal("Update(q) returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Update(q) should quit")
	}
}
