// Package cli provides the command-line interface of the tunnel client:
// computing split-tunnel routes and running a connection in the terminal.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/config"
	"github.com/nymtech/nym-vpn-client-sub000/engine"
	"github.com/nymtech/nym-vpn-client-sub000/platform"
	"github.com/nymtech/nym-vpn-client-sub000/routes"
	"github.com/nymtech/nym-vpn-client-sub000/tunnel"
)

// CLI represents the command-line interface.
type CLI struct {
	settings *config.Settings
	log      common.Logger
	out      io.Writer
}

// New creates a new CLI instance.
func New(settings *config.Settings, log common.Logger) *CLI {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	return &CLI{settings: settings, log: log, out: os.Stdout}
}

// Routes prints the allow-list for the given include and exclude prefixes.
func (c *CLI) Routes(includes, excludes []string) error {
	inc, err := routes.ParsePrefixes(includes)
	if err != nil {
		return err
	}
	exc, err := routes.ParsePrefixes(excludes)
	if err != nil {
		return err
	}

	allowed := routes.ComputeAllowedRanges(inc, exc)
	if len(allowed) == 0 {
		fmt.Fprintln(c.out, "Nothing to route: the excludes cover every include.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PREFIX\tFIRST\tLAST\tADDRESSES")
	fmt.Fprintln(w, "------\t-----\t----\t---------")

	var total uint64
	for _, p := range allowed {
		r := p.Range()
		size := r.End - r.Start + 1
		total += size
		first, last, _ := strings.Cut(r.String(), "-")
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p, first, last, size)
	}
	w.Flush()

	fmt.Fprintf(c.out, "\n%d prefixes, %d addresses\n", len(allowed), total)
	return nil
}

// Connect brings the tunnel up with the profile at profilePath and shows
// its progress until ctx ends, the user quits or the tunnel fails. The
// tunnel is stopped before Connect returns.
func (c *CLI) Connect(ctx context.Context, profilePath string) error {
	cfg, err := config.LoadProfile(profilePath)
	if err != nil {
		return err
	}
	if cfg.MTU == 0 {
		cfg.MTU = c.settings.MTU
	}

	eng, err := engine.Dial(ctx, c.settings.EngineSocket, c.log)
	if err != nil {
		return err
	}
	defer eng.Close()

	factory := platform.NewLinkFactory(c.settings.InterfaceName, c.log)
	ctrl := tunnel.NewController(factory, eng, tunnel.Options{
		Logger:         c.log,
		SampleInterval: c.settings.StatisticsInterval,
	})
	defer ctrl.Close()

	sub := ctrl.Subscribe()
	defer sub.Close()

	fmt.Fprintf(c.out, "Connecting to %s...\n", cfg.Name)

	startCtx, cancel := context.WithTimeout(ctx, c.settings.AckTimeout)
	err = ctrl.Start(startCtx, *cfg)
	cancel()
	if err != nil {
		c.stop(ctrl)
		return fmt.Errorf("connection failed: %w", err)
	}

	var last tunnel.BackendMessage
	if c.interactive() {
		if l, ok := c.log.(*common.AppLogger); ok {
			restore := l.MuteConsole()
			last, err = runWatch(ctx, cfg.Name, sub.C)
			restore()
		} else {
			last, err = runWatch(ctx, cfg.Name, sub.C)
		}
	} else {
		last, err = watchPlain(ctx, c.out, sub.C)
	}

	c.stop(ctrl)
	if err != nil {
		return err
	}
	if last.Kind == tunnel.MessageFailure {
		return fmt.Errorf("%w: %s", common.ErrNotConnected, last.Reason)
	}
	fmt.Fprintf(c.out, "✓ Disconnected from %s\n", cfg.Name)
	return nil
}

func (c *CLI) stop(ctrl *tunnel.Controller) {
	ctx, cancel := context.WithTimeout(context.Background(), c.settings.AckTimeout)
	defer cancel()
	if err := ctrl.Stop(ctx); err != nil {
		fmt.Fprintf(c.out, "  Warning: %v\n", err)
	}
}

func (c *CLI) interactive() bool {
	f, ok := c.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// watchPlain prints one line per state change until ctx ends or the tunnel
// drops back to Down. It returns the last backend message seen.
func watchPlain(ctx context.Context, w io.Writer, updates <-chan tunnel.Update) (tunnel.BackendMessage, error) {
	var (
		last    tunnel.BackendMessage
		state   = tunnel.StateDown
		started bool
	)
	for {
		select {
		case <-ctx.Done():
			return last, nil
		case u, ok := <-updates:
			if !ok {
				return last, nil
			}
			if u.Changed&tunnel.ChangeMessage != 0 {
				last = u.Message
				if line := messageLine(u.Message); line != "" {
					fmt.Fprintln(w, line)
				}
			}
			if u.State == state {
				continue
			}
			state = u.State
			fmt.Fprintf(w, "%s %s\n", time.Now().Format("15:04:05"), u.State)
			if u.State != tunnel.StateDown {
				started = true
			} else if started {
				return last, nil
			}
		}
	}
}

func messageLine(m tunnel.BackendMessage) string {
	switch m.Kind {
	case tunnel.MessageFailure:
		return "✗ " + m.Reason
	case tunnel.MessageBandwidthAlert:
		return "! " + m.Alert.Message
	default:
		return ""
	}
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// PrintHelp prints CLI usage help.
func PrintHelp() {
	fmt.Println(`Nym VPN Tunnel - Command Line Interface

Usage:
  nym-vpn-tunnel [OPTIONS]

Options:
  --version               Show version and exit
  --verbose               Enable verbose logging
  --config PATH           Settings file (default ~/.config/nym-vpn-tunnel/settings.yaml)
  --socket PATH           Engine socket, overrides the settings file
  --routes                Print the split-tunnel allow-list and exit
  --include LIST          Comma-separated prefixes routed through the tunnel
  --exclude LIST          Comma-separated prefixes kept off the tunnel
  --connect PROFILE       Connect with a YAML tunnel profile
  --help                  Show this help message

Examples:
  nym-vpn-tunnel --routes --include 0.0.0.0/0 --exclude 10.0.0.0/8,192.168.0.0/16
  nym-vpn-tunnel --connect ~/.config/nym-vpn-tunnel/office.yaml

Notes:
  - Creating the tunnel interface needs CAP_NET_ADMIN
  - Press q or Ctrl+C to disconnect`)
}
