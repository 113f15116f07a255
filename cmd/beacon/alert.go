package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/config"
	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/lock"
	"github.com/mattjoyce/beacon/internal/log"
	"github.com/mattjoyce/beacon/internal/tui"
)

func runAlertNoun(args []string) int {
	return runNoun("alert", args, map[string]nounAction{
		"send":    {runAlertSend, "send [--config PATH] [--photo PATH] [--lat F --lon F] [--require-photo] [--require-location] [--tui]"},
		"history": {runAlertHistory, "history [--config PATH] [--limit N] [--json]"},
	}, []string{"send", "history"})
}

// sendOptions are the per-invocation overrides for alert send.
type sendOptions struct {
	configPath      string
	photo           string
	lat, lon        float64
	hasLat, hasLon  bool
	requirePhoto    bool
	requireLocation bool
	useTUI          bool
}

func parseSendFlags(args []string) (sendOptions, error) {
	var o sendOptions
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.configPath, "config", "", "Path to configuration file or directory")
	fs.StringVar(&o.photo, "photo", "", "JPEG to attach (overrides device.photo_path)")
	fs.Func("lat", "Latitude in decimal degrees", func(s string) error {
		o.hasLat = true
		var err error
		o.lat, err = strconv.ParseFloat(s, 64)
		return err
	})
	fs.Func("lon", "Longitude in decimal degrees", func(s string) error {
		o.hasLon = true
		var err error
		o.lon, err = strconv.ParseFloat(s, 64)
		return err
	})
	fs.BoolVar(&o.requirePhoto, "require-photo", false, "Fail rather than send without a photo")
	fs.BoolVar(&o.requireLocation, "require-location", false, "Fail rather than send without a location")
	fs.BoolVar(&o.useTUI, "tui", false, "Interactive terminal view")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if o.hasLat != o.hasLon {
		return o, errors.New("--lat and --lon must be given together")
	}
	if o.hasLat {
		if _, err := alert.NewGeoFix(o.lat, o.lon); err != nil {
			return o, err
		}
	}
	return o, nil
}

// apply folds the flag overrides into cfg.
func (o sendOptions) apply(cfg *config.Config) {
	if o.photo != "" {
		cfg.Device.PhotoPath = o.photo
	}
	if o.hasLat {
		lat, lon := o.lat, o.lon
		cfg.Device.Latitude = &lat
		cfg.Device.Longitude = &lon
	}
	if o.requirePhoto {
		cfg.Acquisition.Photo = acquire.Required
	}
	if o.requireLocation {
		cfg.Acquisition.Location = acquire.Required
	}
}

func runAlertSend(args []string) int {
	opts, err := parseSendFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}

	cfg, err := loadConfigForTool(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitFailed
	}
	opts.apply(cfg)

	// Logs go to stderr so stdout carries only the outcome; the TUI owns
	// the whole terminal.
	var logOut io.Writer = os.Stderr
	if opts.useTUI {
		logOut = io.Discard
	}
	log.SetupWriter(logOut, cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	lockPath := lock.PathFor(cfg.Service.StatePath)
	dl, err := lock.Acquire(lockPath)
	if errors.Is(err, lock.ErrHeld) {
		fmt.Fprintf(os.Stderr, "Another alert is already in progress: %v\n", err)
		return exitBusy
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire dispatch lock: %v\n", err)
		return exitFailed
	}
	defer func() { _ = dl.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openState(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	defer db.Close()

	logger.Info("alert send", "version", version, "endpoint", cfg.Endpoint.BaseURL)

	var out alert.Outcome
	if opts.useTUI {
		out, err = sendWithTUI(ctx, cfg, db)
	} else {
		out, err = sendPlain(ctx, cfg, db)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}

	fmt.Println(out.Message)
	if !out.Succeeded {
		return exitFailed
	}
	return exitOK
}

func sendPlain(ctx context.Context, cfg *config.Config, db *sql.DB) (alert.Outcome, error) {
	prompter := capability.NewTerminalPrompter(os.Stdin, os.Stderr)
	d := newDispatcher(cfg, db, prompter, progressPrinter{w: os.Stderr})

	attempt, err := d.coord.Trigger(ctx)
	if err != nil {
		return alert.Outcome{}, err
	}

	// First Ctrl+C cancels the attempt; the terminal event still arrives.
	go func() {
		select {
		case <-ctx.Done():
			_ = d.coord.Cancel()
		case <-attempt.Done():
		}
	}()

	<-attempt.Done()
	out, _ := attempt.Outcome()
	return out, nil
}

func sendWithTUI(ctx context.Context, cfg *config.Config, db *sql.DB) (alert.Outcome, error) {
	// The bridge only exists once the program runs; route through it late.
	var bridge *tui.Bridge
	prompter := capability.PrompterFunc(func(ctx context.Context, c alert.Capability) (bool, error) {
		return bridge.Ask(ctx, c)
	})
	sink := dispatch.SinkFunc(func(ev dispatch.StatusEvent) { bridge.Report(ev) })
	d := newDispatcher(cfg, db, prompter, sink)

	model := tui.NewModel(func() { _ = d.coord.Cancel() })
	startErr := make(chan error, 1)
	final, err := tui.Run(ctx, model, func(b *tui.Bridge) {
		bridge = b
		_, err := d.coord.Trigger(ctx)
		startErr <- err
	})

	select {
	case serr := <-startErr:
		if serr != nil {
			return alert.Outcome{}, serr
		}
	default:
	}

	if out, ok := final.Outcome(); ok {
		return out, nil
	}
	// The program ended first (signal or quit); make sure nothing is left
	// running and report what the coordinator settled on.
	_ = d.coord.Cancel()
	if snap := d.coord.Snapshot(); snap.Last != nil {
		return *snap.Last, nil
	}
	if err != nil {
		return alert.Outcome{}, fmt.Errorf("terminal UI: %w", err)
	}
	return alert.Failure("", alert.CancelledFailure()), nil
}

// progressPrinter writes status events as plain lines.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Report(ev dispatch.StatusEvent) {
	switch ev.Type {
	case dispatch.EventAcquiring, dispatch.EventSending:
		fmt.Fprintf(p.w, "… %s\n", ev.Message)
	case dispatch.EventDegraded:
		fmt.Fprintf(p.w, "! %s\n", ev.Message)
	}
}

func runAlertHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of attempts to show")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return exitFailed
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return exitFailed
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)

	ctx := context.Background()
	db, err := openState(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	defer db.Close()

	d := newDispatcher(cfg, db, capability.DenyPrompter{}, nil)
	entries, err := d.history.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "History error: %v\n", err)
		return exitFailed
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return exitOK
	}
	if len(entries) == 0 {
		fmt.Println("No alerts sent yet.")
		return exitOK
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPLETED\tRESULT\tMESSAGE\tATTEMPT")
	for _, e := range entries {
		result := "ok"
		if !e.Succeeded {
			result = string(e.Kind)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CompletedAt.Local().Format(time.DateTime), result, e.Message, e.AttemptID)
	}
	_ = tw.Flush()
	return exitOK
}
