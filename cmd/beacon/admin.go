package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/config"
	"github.com/mattjoyce/beacon/internal/doctor"
	"github.com/mattjoyce/beacon/internal/log"
	"github.com/mattjoyce/beacon/internal/transport"
)

// --- contact ---

func runContactNoun(args []string) int {
	return runNoun("contact", args, map[string]nounAction{
		"add": {runContactAdd, "add --name S --phone S [--user-id N] [--relationship S] [--address S] [--config PATH]"},
	}, []string{"add"})
}

func runContactAdd(args []string) int {
	var configPath string
	var ct transport.Contact

	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.IntVar(&ct.UserID, "user-id", 0, "User the contact belongs to (default contacts.user_id)")
	fs.StringVar(&ct.Name, "name", "", "Contact name")
	fs.StringVar(&ct.Phone, "phone", "", "Contact phone number")
	fs.StringVar(&ct.Relationship, "relationship", "", "Relationship to the user")
	fs.StringVar(&ct.Address, "address", "", "Contact address")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return exitFailed
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)

	if ct.UserID == 0 {
		ct.UserID = cfg.Contacts.UserID
	}
	if err := ct.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid contact: %v\n", err)
		return exitFailed
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Endpoint.SendTimeout)
	defer cancel()

	ok, msg := newClient(cfg).PostContact(ctx, ct)
	fmt.Println(msg)
	if !ok {
		return exitFailed
	}
	return exitOK
}

// --- grant ---

func runGrantNoun(args []string) int {
	return runNoun("grant", args, map[string]nounAction{
		"list":  {runGrantList, "list [--config PATH] [--json]"},
		"set":   {runGrantSet, "set <camera|location> <granted|denied> [--config PATH]"},
		"reset": {runGrantReset, "reset <camera|location> [--config PATH]"},
	}, []string{"list", "set", "reset"})
}

// openGrants loads config and opens the grant store for an admin action.
func openGrants(configPath string) (*capability.Store, func(), error) {
	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load error: %w", err)
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)

	db, err := openState(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return capability.NewStore(db, capability.DenyPrompter{}), func() { _ = db.Close() }, nil
}

// splitPositional separates positional arguments from flags so that
// "grant set camera granted --config x" parses.
func splitPositional(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional, flags []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if f := fs.Lookup(name); f != nil && !hasValue && !isBoolFlag(f) && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if err := fs.Parse(flags); err != nil {
		return nil, err
	}
	return positional, nil
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

func runGrantList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}

	store, closeDB, err := openGrants(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	defer closeDB()

	grants, err := store.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}

	if *jsonOut {
		if grants == nil {
			grants = []capability.Grant{}
		}
		data, _ := json.MarshalIndent(grants, "", "  ")
		fmt.Println(string(data))
		return exitOK
	}

	byCap := make(map[alert.Capability]capability.Grant, len(grants))
	for _, g := range grants {
		byCap[g.Capability] = g
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAPABILITY\tDECISION\tSOURCE\tDECIDED")
	for _, c := range alert.Capabilities() {
		g, ok := byCap[c]
		if !ok {
			fmt.Fprintf(tw, "%s\t(ask)\t-\t-\n", c)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c, g.Decision, g.Source, g.DecidedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
	return exitOK
}

func runGrantSet(args []string) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	pos, err := splitPositional(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}
	if len(pos) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: beacon grant set <camera|location> <granted|denied>")
		return exitFailed
	}
	c, err := alert.ParseCapability(pos[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	d, ok := capability.ParseDecision(pos[1])
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown decision %q (want granted or denied)\n", pos[1])
		return exitFailed
	}

	store, closeDB, err := openGrants(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	defer closeDB()

	if err := store.Set(context.Background(), c, d, capability.SourceOperator); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	fmt.Printf("%s: %s\n", c, d)
	return exitOK
}

func runGrantReset(args []string) int {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	pos, err := splitPositional(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}
	if len(pos) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: beacon grant reset <camera|location>")
		return exitFailed
	}
	c, err := alert.ParseCapability(pos[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}

	store, closeDB, err := openGrants(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	defer closeDB()

	if err := store.Reset(context.Background(), c); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitFailed
	}
	fmt.Printf("%s: will ask on next alert\n", c)
	return exitOK
}

// --- config ---

func runConfigNoun(args []string) int {
	return runNoun("config", args, map[string]nounAction{
		"check": {runConfigCheck, "check [--config PATH] [--json] [--strict]"},
		"lock":  {runConfigLock, "lock [--config PATH]"},
		"show":  {runConfigShow, "show [--config PATH] [--json]"},
	}, []string{"check", "lock", "show"})
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}

	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return exitFailed
	}

	result := doctor.New(cfg).Validate()
	if jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return exitFailed
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return exitFailed
	}
	if strict && len(result.Warnings) > 0 {
		return exitStrict
	}
	return exitOK
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return exitFailed
	}

	path := *configPath
	if path == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return exitFailed
		}
		path = discovered
	}

	report, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return exitFailed
	}
	fmt.Printf("Locked %s\n  BLAKE3 %s\n  WROTE  %s\n", report.ConfigPath, report.Hash, report.ChecksumPath)
	return exitOK
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
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
	redact(cfg)

	if *jsonOut {
		data, _ := json.MarshalIndent(cfg, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(cfg)
		fmt.Print(string(data))
	}
	return exitOK
}

// redact masks secrets before a config is printed.
func redact(cfg *config.Config) {
	const mask = "********"
	if cfg.Endpoint.SigningSecret != "" {
		cfg.Endpoint.SigningSecret = mask
	}
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = mask
	}
	if cfg.Intake.Secret != "" {
		cfg.Intake.Secret = mask
	}
}
