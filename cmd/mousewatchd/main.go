// mousewatchd - system-wide low-level mouse hook daemon
//
// Installs a global mouse hook, fans every callback out to subscribers
// through an out-of-band queue, and exposes metrics and health over HTTP.
//
//	mousewatchd [run]             Run the daemon (default)
//	mousewatchd cursor            Print the current cursor position
//	mousewatchd config <action>   Create, validate or show the configuration
//	mousewatchd version           Print version information
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && (len(args[0]) == 0 || args[0][0] != '-') {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = cmdRun(args)
	case "cursor":
		err = cmdCursor(args, os.Stdout)
	case "config":
		err = cmdConfig(args, os.Stdout)
	case "version":
		cmdVersion(os.Stdout)
	case "help", "-h", "--help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `mousewatchd - global low-level mouse hook

USAGE:
    mousewatchd [command] [options]

COMMANDS:
    run                   Install the hook and run until interrupted (default)
    cursor                Print the current cursor position
    config init           Write a default configuration file
    config validate       Check a configuration file
    config show           Print the effective configuration
    config schema         Print the configuration JSON Schema
    version               Print version information
    help                  Show this help message

RUN OPTIONS:
    -config <path>        Configuration file (default: search ., then the config dir)
    -simulate             Use an in-memory hook chain fed with synthetic input
    -simulate-interval    Delay between synthetic events (default 50ms)

ENVIRONMENT:
    MOUSEWATCH_CONFIG_DIR, MOUSEWATCH_INSTALL_MOUSE, MOUSEWATCH_SIMULATE,
    MOUSEWATCH_QUEUE_SIZE, MOUSEWATCH_LOG_EVENTS, MOUSEWATCH_LOG_LEVEL,
    MOUSEWATCH_LOG_FORMAT, MOUSEWATCH_LOG_PATH, MOUSEWATCH_METRICS_ENABLED,
    MOUSEWATCH_METRICS_ADDR

The hook only observes: every event is passed on to the next hook in the
chain, and nothing is recorded unless event logging is enabled.`)
}
