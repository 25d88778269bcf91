// Package main provides the entry point for the Nym VPN tunnel client.
// It computes split-tunnel allow-lists and drives a tunnel session
// through the native engine from the command line.
//
// Features:
//   - Minimal CIDR allow-list from include and exclude prefixes
//   - Tunnel lifecycle with live status in the terminal
//   - Linux TUN interface and route setup through netlink
//
// Usage:
//
//	nym-vpn-tunnel [options]
//
// Environment:
//
//	The native engine must be listening on its local socket, see --socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nymtech/nym-vpn-client-sub000/cli"
	"github.com/nymtech/nym-vpn-client-sub000/common"
	"github.com/nymtech/nym-vpn-client-sub000/config"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

var (
	// General flags
	showVersion  = flag.Bool("version", false, "Show version and exit")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	showHelp     = flag.Bool("help", false, "Show help message")
	settingsPath = flag.String("config", "", "Settings file")
	socketPath   = flag.String("socket", "", "Engine socket path")

	// Command flags
	showRoutes     = flag.Bool("routes", false, "Print the split-tunnel allow-list")
	includeRoutes  = flag.String("include", "0.0.0.0/0", "Comma-separated prefixes routed through the tunnel")
	excludeRoutes  = flag.String("exclude", "", "Comma-separated prefixes kept off the tunnel")
	connectProfile = flag.String("connect", "", "Connect with a tunnel profile file")
)

func main() {
	flag.Parse()

	// Handle help flag
	if *showHelp || (!*showVersion && !*showRoutes && *connectProfile == "") {
		cli.PrintHelp()
		os.Exit(0)
	}

	// Handle version flag
	if *showVersion {
		fmt.Printf("%s v%s\n", common.AppName, appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		os.Exit(0)
	}

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using defaults\n", err)
		settings = config.DefaultSettings()
	}
	if *socketPath != "" {
		settings.EngineSocket = *socketPath
	}

	logLevel := common.ParseLevel(settings.LogLevel)
	if *verbose {
		logLevel = common.LevelDebug
	}
	logCfg := common.LogConfig{
		Level:       logLevel,
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}
	if settings.LogToFile {
		logCfg.FilePath = common.GetLogPath()
	}
	if err := common.InitLogger(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}
	defer common.CloseLogger()

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals (SIGINT, SIGTERM)
	setupSignalHandler(cancel)

	app := cli.New(settings, common.GetLogger())

	var cliErr error
	switch {
	case *showRoutes:
		cliErr = app.Routes(splitList(*includeRoutes), splitList(*excludeRoutes))
	case *connectProfile != "":
		common.LogInfo("Starting %s v%s", common.AppName, appVersion)
		cliErr = app.Connect(ctx, *connectProfile)
	}

	if cliErr != nil {
		common.CloseLogger()
		fmt.Fprintf(os.Stderr, "Error: %v\n", cliErr)
		os.Exit(1)
	}
}

func loadSettings() (*config.Settings, error) {
	if *settingsPath != "" {
		return config.LoadFrom(filepath.Clean(*settingsPath))
	}
	return config.Load()
}

// splitList turns "a, b,c" into ["a" "b" "c"], dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context so the tunnel is
// stopped before exit.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()
}
