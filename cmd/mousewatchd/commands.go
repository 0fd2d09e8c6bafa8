package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"mousewatch/internal/config"
	"mousewatch/internal/hook"
)

func cmdCursor(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cursor", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print as JSON")
	simulate := fs.Bool("simulate", false, "Query the simulated platform")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var platform hook.Platform = hook.NewPlatform()
	if *simulate {
		sim := hook.NewSimulatedPlatform()
		sim.SetCursor(hook.Point{X: simCenterX, Y: simCenterY})
		platform = sim
	}

	pt, err := hook.CursorPosition(platform)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(stdout).Encode(map[string]int32{"x": pt.X, "y": pt.Y})
	}
	fmt.Fprintf(stdout, "%d,%d\n", pt.X, pt.Y)
	return nil
}

func cmdConfig(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: mousewatchd config <init|validate|show|schema> [options]")
	}
	action, args := args[0], args[1:]

	fs := flag.NewFlagSet("config "+action, flag.ContinueOnError)
	path := fs.String("config", "", "Configuration file")

	switch action {
	case "init":
		force := fs.Bool("force", false, "Overwrite an existing file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		target := *path
		if target == "" {
			target = config.ConfigPath()
		}
		if _, err := os.Stat(target); err == nil && !*force {
			return fmt.Errorf("%s already exists (use -force to overwrite)", target)
		}
		if err := config.SaveConfig(config.DefaultConfig(), target); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %s\n", target)
		return nil

	case "validate":
		if err := fs.Parse(args); err != nil {
			return err
		}
		target := resolveConfigPath(*path)
		if _, err := config.Load(target); err != nil {
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, v := range verrs {
					fmt.Fprintf(stdout, "  %s: %s\n", v.Field, v.Message)
				}
			}
			return fmt.Errorf("%s: invalid configuration", target)
		}
		fmt.Fprintf(stdout, "%s: ok\n", target)
		return nil

	case "show":
		format := fs.String("format", "toml", "Output format: toml, json or yaml")
		if err := fs.Parse(args); err != nil {
			return err
		}
		cfg, err := config.Load(resolveConfigPath(*path))
		if err != nil {
			return err
		}
		data, err := config.Marshal(cfg, *format)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err

	case "schema":
		_, err := stdout.Write(config.Schema())
		return err

	default:
		return fmt.Errorf("unknown config action: %s", action)
	}
}

func cmdVersion(stdout io.Writer) {
	fmt.Fprintf(stdout, "mousewatchd %s\n", version)
	fmt.Fprintf(stdout, "  go:       %s\n", runtime.Version())
	fmt.Fprintf(stdout, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				fmt.Fprintf(stdout, "  commit:   %s\n", s.Value)
			}
		}
	}
}
