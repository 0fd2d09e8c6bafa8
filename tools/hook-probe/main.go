// Command hook-probe is a manual testing tool for the low-level mouse hook.
//
// It installs the hook on a message-loop thread, counts the events it
// receives and prints the counts and cursor position every second until
// interrupted with Ctrl+C.
//
// Usage:
//
//	go build -o hook-probe ./tools/hook-probe
//	./hook-probe
//
// Requirements:
//   - Windows, or Linux/macOS built with cgo
//   - On macOS, Accessibility permission for the terminal (or this binary)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"mousewatch/internal/hook"
	"mousewatch/internal/logging"
	"mousewatch/internal/msgloop"
)

type counts struct {
	mu       sync.Mutex
	byMsg    map[hook.Message]int
	injected int
	last     hook.Point
}

func (c *counts) add(ev hook.MouseEvent) {
	c.mu.Lock()
	c.byMsg[ev.Message]++
	if ev.Injected {
		c.injected++
	}
	c.last = ev.Position
	c.mu.Unlock()
}

// take returns and resets the counts for the last interval.
func (c *counts) take() (map[hook.Message]int, int, hook.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byMsg, injected := c.byMsg, c.injected
	c.byMsg, c.injected = make(map[hook.Message]int), 0
	return byMsg, injected, c.last
}

func main() {
	fmt.Println("Mouse Hook Probe")
	fmt.Println("================")
	fmt.Println()

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LevelDebug
	logCfg.Component = "hook-probe"
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	loop := msgloop.New()
	loop.Logger = log.WithComponent("msgloop")
	if err := loop.Start(); err != nil {
		fmt.Printf("ERROR: start message loop: %v\n", err)
		os.Exit(1)
	}
	defer loop.Close()

	manager := hook.NewManager(hook.Options{
		Executor: loop,
		Logger:   log.Logger,
	})

	c := &counts{byMsg: make(map[hook.Message]int)}
	manager.Subscribe(c.add)

	fmt.Print("Installing mouse hook... ")
	if err := manager.Start(); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		var ierr *hook.InstallationError
		if errors.As(err, &ierr) && ierr.Code == hook.ErrnoNotSupported {
			fmt.Println("This platform has no low-level mouse hook in this build.")
		}
		os.Exit(1)
	}
	fmt.Printf("OK (handle 0x%x)\n", uintptr(manager.Handle()))

	if pt, err := manager.CursorPosition(); err == nil {
		fmt.Printf("Cursor at %d,%d\n", pt.X, pt.Y)
	} else {
		fmt.Printf("Cursor query unavailable: %v\n", err)
	}
	fmt.Println()
	fmt.Println("Move, click and scroll. Press Ctrl+C to stop.")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	total := 0
	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-ticker.C:
			byMsg, injected, last := c.take()
			n := 0
			for _, v := range byMsg {
				n += v
			}
			total += n
			fmt.Printf("[%s] %4d events (%d injected) last=%d,%d  %s\n",
				time.Now().Format("15:04:05"), n, injected, last.X, last.Y, summary(byMsg))
		}
	}

	fmt.Println()
	fmt.Print("Removing mouse hook... ")
	if err := manager.Stop(); err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
	fmt.Printf("Total events: %d\n", total)
}

func summary(byMsg map[hook.Message]int) string {
	parts := make([]string, 0, len(byMsg))
	for msg, n := range byMsg {
		parts = append(parts, fmt.Sprintf("%s=%d", msg, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
