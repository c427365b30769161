// DarkRelay CLI entry point.
//
// This tool hosts, joins or lists rooms on a DarkReflectiveMirror-style relay
// server. A host echoes every payload back to its sender, a client forwards
// stdin lines to the host and prints what it gets back.
//
// It can be launched interactively (no -role flag) or non-interactively via
// CLI flags. Relay options fall back to DARKRELAY_* environment variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/pterm/pterm"

	"github.com/1ureka/darkrelay/internal/app"
	"github.com/1ureka/darkrelay/internal/config"
	"github.com/1ureka/darkrelay/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		util.LogError("invalid environment: %v", err)
		os.Exit(1)
	}

	// CLI flags.
	cfg.RegisterFlags(flag.CommandLine)
	role := flag.String("role", "", "Role: host, client or list")
	target := flag.String("target", "", "Room ID to join (client only)")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("DarkRelay — v%s", version))
	pterm.Println()

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	r := config.Role(*role)
	switch r {
	case "":
		// No -role flag → interactive mode.
		r, *target = askRole()

	case config.RoleHost, config.RoleList:

	case config.RoleClient:
		if _, err := parseRoomID(*target); err != nil {
			util.LogError("invalid or missing -target: %v", err)
			os.Exit(1)
		}

	default:
		util.LogError("invalid -role: must be 'host', 'client' or 'list'")
		os.Exit(1)
	}

	if *metricsAddr != "" {
		if err := util.StartMetricsServer(ctx, *metricsAddr); err != nil {
			util.LogError("failed to serve metrics: %v", err)
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, r, *target); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	util.LogInfo("successfully closed relay connection")
}

// run executes the chosen role until it finishes or ctx is cancelled.
func run(ctx context.Context, cfg config.Config, role config.Role, target string) error {
	ch, err := app.NewChannel(cfg.Channel)
	if err != nil {
		return err
	}

	if role != config.RoleList {
		util.StartStatsReporter(ctx, clock.New())
	}

	switch role {
	case config.RoleHost:
		return app.RunHost(ctx, cfg, ch)
	case config.RoleClient:
		return app.RunClient(ctx, cfg, ch, target, os.Stdin, os.Stdout)
	default:
		return app.RunList(ctx, cfg, ch, os.Stdout)
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askRole prompts for a role, and for a room ID when joining.
func askRole() (config.Role, string) {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host   — Create a room on the relay",
			"Client — Join a room by its ID",
			"List   — Show the relay's public rooms",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(choice, "Host"):
		return config.RoleHost, ""
	case strings.HasPrefix(choice, "List"):
		return config.RoleList, ""
	default:
		return config.RoleClient, askRoomID()
	}
}

// askRoomID prompts the user for a room ID until a valid one is entered.
func askRoomID() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Room ID to join (0 ~ 65535)").
			Show()

		raw = strings.TrimSpace(raw)
		if _, err := parseRoomID(raw); err == nil {
			pterm.Println()
			return raw
		}

		util.LogWarning("invalid room ID: must be 0 ~ 65535")
		pterm.Println()
	}
}

func parseRoomID(raw string) (uint16, error) {
	id, err := strconv.ParseUint(raw, 10, 16)
	return uint16(id), err
}
