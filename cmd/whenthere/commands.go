package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/whenthere/pkg/config"
	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/render"
	"github.com/codeGROOVE-dev/whenthere/pkg/whenthere"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

var errUsage = errors.New("usage")

type app struct {
	rt     *config.Runtime
	out    io.Writer
	logger *slog.Logger
	cfg    config.Config
	strip  bool
}

func (a *app) run(ctx context.Context, args []string) error {
	cmd := "list"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	if cmd != "version" && a.cfg.ViewerUpgrade && !a.rt.Store.Restored() {
		a.rt.Store.UpgradeFromViewer(ctx)
	}

	var err error
	switch cmd {
	case "list", "ls":
		a.list()
	case "add":
		err = a.add(args)
	case "search":
		err = a.search(ctx, args)
	case "pick":
		err = a.pick(ctx, args)
	case "replace":
		err = a.replace(args)
	case "remove", "rm":
		err = a.remove(args)
	case "move", "mv":
		err = a.move(args)
	case "select":
		err = a.selectHour(args)
	case "reset":
		if !a.rt.Store.ResetToCurrentHour() {
			return errors.New("nothing to select: no locations")
		}
		a.list()
	case "share":
		fmt.Fprintln(a.out, a.rt.Store.ShareLink(a.cfg.ShareBaseURL))
	case "watch":
		err = a.watch(ctx)
	case "version":
		fmt.Fprintln(a.out, version)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, errUsage) {
		return fmt.Errorf("%w: whenthere %s %s", errUsage, cmd, usageFor(cmd))
	}
	return err
}

func usageFor(cmd string) string {
	switch cmd {
	case "add":
		return "<zone> <title> [subtitle]"
	case "search":
		return "<text>"
	case "pick":
		return "<n> <text>"
	case "replace":
		return "<row> <zone> <title> [subtitle]"
	case "remove":
		return "<row>"
	case "move":
		return "<row> <position>"
	case "select":
		return "<row> <hour>"
	default:
		return ""
	}
}

func (a *app) list() {
	s := a.rt.Store
	rows := s.Rows()
	fmt.Fprintf(a.out, "%s\n\n", s.MenuBarLabel())
	fmt.Fprint(a.out, render.Table(rows, s.HourLabel))
	if a.strip && len(rows) > 0 {
		fmt.Fprintln(a.out)
		fmt.Fprint(a.out, render.Strip(rows, render.DayStart(rows[0].Location.TimeZone, s.Now()), s.HourLabel))
	}
}

// row resolves a 1-based row argument.
func (a *app) row(arg string) (zones.Location, int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return zones.Location{}, 0, fmt.Errorf("row %q is not a number", arg)
	}
	loc, ok := a.rt.Store.LocationAt(n - 1)
	if !ok {
		return zones.Location{}, 0, fmt.Errorf("no row %d", n)
	}
	return loc, n - 1, nil
}

func optional(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func (a *app) add(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errUsage
	}
	loc, err := a.rt.Store.AddZone(args[0], args[1], optional(args, 2))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", loc.Title, loc.TimeZone)
	return nil
}

func (a *app) find(ctx context.Context, text string) ([]lookup.Place, string) {
	res, err := a.rt.Lookup.Search(ctx, text)
	if err != nil {
		a.logger.Debug("search failed", "query", text, "error", err)
	} else {
		a.logger.Debug("search answered", "query", text, "source", res.Source, "results", len(res.Places))
	}
	return res.Places, lookup.Status(res, err)
}

func (a *app) search(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	places, status := a.find(ctx, strings.Join(args, " "))
	lines := make([]render.PlaceLine, 0, len(places))
	for _, p := range places {
		lines = append(lines, render.PlaceLine{Title: p.Title, Subtitle: p.Subtitle, TimeZone: p.TimeZone})
	}
	fmt.Fprint(a.out, render.Search(lines, status))
	return nil
}

func (a *app) pick(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("hit %q is not a positive number", args[0])
	}
	places, status := a.find(ctx, strings.Join(args[1:], " "))
	if status != "" {
		return errors.New(status)
	}
	if n > len(places) {
		return fmt.Errorf("only %d matches", len(places))
	}
	p := places[n-1]
	loc, err := a.rt.Store.AddZone(p.TimeZone, p.Title, p.Subtitle)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s (%s)\n", loc.Title, loc.TimeZone)
	return nil
}

func (a *app) replace(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errUsage
	}
	loc, _, err := a.row(args[0])
	if err != nil {
		return err
	}
	next, err := a.rt.Store.ReplaceZone(loc.ID, args[1], args[2], optional(args, 3))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Replaced %s with %s (%s)\n", loc.Title, next.Title, next.TimeZone)
	return nil
}

func (a *app) remove(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	loc, _, err := a.row(args[0])
	if err != nil {
		return err
	}
	a.rt.Store.RemoveZone(loc.ID)
	fmt.Fprintf(a.out, "Removed %s\n", loc.Title)
	return nil
}

// insertionIndex converts a final 1-based position into an index into the
// list as it was before the move.
func insertionIndex(from, position int) int {
	to := position - 1
	if to > from {
		return to + 1
	}
	return to
}

func (a *app) move(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	loc, from, err := a.row(args[0])
	if err != nil {
		return err
	}
	position, err := strconv.Atoi(args[1])
	if err != nil || position < 1 {
		return fmt.Errorf("position %q is not a positive number", args[1])
	}
	if !a.rt.Store.MoveZone(loc.ID, insertionIndex(from, position)) {
		fmt.Fprintln(a.out, "Order unchanged")
		return nil
	}
	a.list()
	return nil
}

func (a *app) selectHour(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	loc, _, err := a.row(args[0])
	if err != nil {
		return err
	}
	hour, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("hour %q is not a number", args[1])
	}
	if err := a.rt.Store.SelectHour(loc.ID, hour); err != nil {
		return err
	}
	a.list()
	return nil
}

func (a *app) watch(ctx context.Context) error {
	redraw := make(chan whenthere.Event, 1)
	cancel := a.rt.Store.Subscribe(func(e whenthere.Event) {
		select {
		case redraw <- e:
		default:
		}
	})
	defer cancel()

	a.rt.Store.Start(ctx)
	last := time.Time{}
	for {
		now := a.rt.Store.Now().Truncate(time.Minute)
		if !now.Equal(last) {
			fmt.Fprint(a.out, "\033[H\033[2J")
			a.list()
			last = now
		}
		select {
		case <-ctx.Done():
			return nil
		case e := <-redraw:
			if e != whenthere.EventTick {
				last = time.Time{}
			}
		}
	}
}
