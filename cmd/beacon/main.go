package main

import (
	"fmt"
	"os"

	"github.com/mattjoyce/beacon/internal/config"
)

const version = "0.1.0"

// Exit codes shared by every action.
const (
	exitOK     = 0
	exitFailed = 1
	exitStrict = 2
	exitBusy   = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailed)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "alert":
		os.Exit(runAlertNoun(args))
	case "contact":
		os.Exit(runContactNoun(args))
	case "grant":
		os.Exit(runGrantNoun(args))
	case "system":
		os.Exit(runSystemNoun(args))
	case "intake":
		os.Exit(runIntakeNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))

	// Root alias: the one command people need under stress.
	case "send":
		os.Exit(runAlertSend(args))

	case "version":
		fmt.Printf("beacon version %s\n", version)
		os.Exit(exitOK)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(exitOK)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(exitFailed)
	}
}

func printUsage() {
	fmt.Print(`beacon - emergency alert dispatcher

Usage:
  beacon <noun> <action> [flags]

Resources (Nouns):
  alert     Raise an emergency alert and review past attempts
  contact   Register emergency contacts with the alert service
  grant     Camera and location permission decisions
  system    Long-running dispatcher with local HTTP API
  intake    Development alert receiver
  config    Configuration validation and integrity

Alert Commands:
  alert send        Gather photo/location and send one alert
  alert history     Show recent attempt outcomes

Contact Commands:
  contact add       Register an emergency contact

Grant Commands:
  grant list                          Show stored decisions
  grant set <capability> <decision>   Record granted|denied for camera|location
  grant reset <capability>            Forget a decision so the next alert asks

System Commands:
  system start      Run the API server and dispatcher in the foreground

Intake Commands:
  intake serve      Receive alerts and contacts locally

Config Commands:
  config check      Validate configuration and integrity
  config lock       Record the config file hash in .checksums
  config show       Print the resolved configuration

General:
  version           Show version information
  help              Show this help message

Use 'beacon <noun> help' for resource-specific flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// nounAction is one action of a noun: its runner and one-line help.
type nounAction struct {
	run   func(args []string) int
	usage string
}

// runNoun dispatches args[0] to the matching action.
func runNoun(noun string, args []string, actions map[string]nounAction, order []string) int {
	printHelp := func(w *os.File) {
		fmt.Fprintf(w, "Usage: beacon %s <action> [flags]\n", noun)
		fmt.Fprintln(w, "Actions:")
		for _, name := range order {
			fmt.Fprintf(w, "  %s\n", actions[name].usage)
		}
	}

	if len(args) < 1 {
		printHelp(os.Stderr)
		return exitFailed
	}
	if isHelpToken(args[0]) {
		printHelp(os.Stdout)
		return exitOK
	}

	action, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return exitFailed
	}
	if hasHelpFlag(args[1:]) {
		fmt.Printf("Usage: beacon %s %s\n", noun, action.usage)
		return exitOK
	}
	return action.run(args[1:])
}

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}
