// Package main implements the whenthere CLI: a world clock that pins one hour
// and shows it in every tracked location.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/codeGROOVE-dev/whenthere/pkg/config"
)

const version = "whenthere v0.1.0"

var (
	verbose      = pflag.BoolP("verbose", "v", false, "Enable verbose logging")
	showVersion  = pflag.Bool("version", false, "Show version")
	stateBackend = pflag.String("state", "", "State backend: sqlite, file or memory (or set WHENTHERE_STATE_BACKEND)")
	stateDir     = pflag.String("state-dir", "", "State directory (or set WHENTHERE_STATE_DIR)")
	clock        = pflag.String("clock", "", "Clock style: auto, 12h or 24h (or set WHENTHERE_CLOCK)")
	shareBase    = pflag.String("share-base", "", "Share link base URL (or set WHENTHERE_SHARE_BASE_URL)")
	noViewer     = pflag.Bool("no-viewer", false, "Skip the first-run viewer location lookup")
	noColor      = pflag.Bool("no-color", false, "Disable colors")
	strip        = pflag.Bool("strip", true, "Show the 24-hour strip under the table")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [flags] <command> [args]

Commands:
  list                                 show locations (default)
  add <zone> <title> [subtitle]        track a location
  search <text>                        find cities
  pick <n> <text>                      track the n-th search hit
  replace <row> <zone> <title> [sub]   change a row's location
  remove <row>                         stop tracking a row
  move <row> <position>                reorder a row
  select <row> <hour>                  pin an hour (0-23) in a row
  reset                                pin the current hour of the first row
  share                                print a share link
  watch                                redraw every second
  version                              print the version

Flags:
`, os.Args[0])
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *noColor {
		color.NoColor = true
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := cfg.Build(ctx, logger)
	if err != nil {
		logger.Error("Failed to open state", "error", err)
		os.Exit(1)
	}

	app := &app{rt: rt, cfg: cfg, out: os.Stdout, strip: *strip, logger: logger}
	runErr := app.run(ctx, pflag.Args())

	if err := rt.Close(); err != nil {
		logger.Error("Failed to close", "error", err)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "whenthere:", runErr)
		os.Exit(1)
	}
}

// loadConfig reads the environment, then applies flags that were set.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if *stateBackend != "" {
		cfg.StateBackend = *stateBackend
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if *clock != "" {
		cfg.Clock = *clock
	}
	if *shareBase != "" {
		cfg.ShareBaseURL = *shareBase
	}
	if *noViewer {
		cfg.ViewerUpgrade = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
