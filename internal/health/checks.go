package health

import (
	"context"
	"fmt"
	"sync"
)

// HookState is the part of hook.Manager the hook check reads.
type HookState interface {
	Installed() bool
}

// HookCheck reports unhealthy when the mouse hook should be installed but
// is not. wanted is consulted on every run so a reload that disables the
// hook does not fail the check.
func HookCheck(state HookState, wanted func() bool) Check {
	return func(ctx context.Context) CheckResult {
		installed := state.Installed()
		details := map[string]any{"installed": installed}

		switch {
		case installed:
			return CheckResult{Status: StatusHealthy, Message: "mouse hook installed", Details: details}
		case wanted != nil && !wanted():
			return CheckResult{Status: StatusHealthy, Message: "mouse hook disabled", Details: details}
		default:
			return CheckResult{Status: StatusUnhealthy, Message: "mouse hook not installed", Details: details}
		}
	}
}

// QueueStats is the part of dispatch.Queue the queue check reads.
type QueueStats interface {
	Len() int
	Cap() int
	Delivered() uint64
	Dropped() uint64
}

// QueueCheck reports degraded when more than maxDropRatio of the events
// offered since the previous run were dropped, or when the buffer is full.
func QueueCheck(q QueueStats, maxDropRatio float64) Check {
	var mu sync.Mutex
	var lastDelivered, lastDropped uint64

	return func(ctx context.Context) CheckResult {
		delivered, dropped := q.Delivered(), q.Dropped()
		length, capacity := q.Len(), q.Cap()

		mu.Lock()
		newDelivered := delivered - lastDelivered
		newDropped := dropped - lastDropped
		lastDelivered, lastDropped = delivered, dropped
		mu.Unlock()

		ratio := 0.0
		if total := newDelivered + newDropped; total > 0 {
			ratio = float64(newDropped) / float64(total)
		}

		details := map[string]any{
			"length":     length,
			"capacity":   capacity,
			"delivered":  delivered,
			"dropped":    dropped,
			"drop_ratio": ratio,
		}

		switch {
		case ratio > maxDropRatio:
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("dropping events: %.1f%% since last check", ratio*100),
				Details: details,
			}
		case capacity > 0 && length >= capacity:
			return CheckResult{Status: StatusDegraded, Message: "dispatch queue full", Details: details}
		default:
			return CheckResult{Status: StatusHealthy, Message: "dispatch queue ok", Details: details}
		}
	}
}
