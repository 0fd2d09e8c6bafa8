package main

import (
	"context"
	"math"
	"time"

	"mousewatch/internal/hook"
	"mousewatch/internal/msgloop"
)

const (
	simCenterX = 640
	simCenterY = 400
	simRadius  = 200
)

// simulateInput feeds the simulated hook chain with a repeating pattern:
// the cursor circles the centre, clicks every 20 steps and scrolls every
// 50. Injection happens on the loop thread, where real callbacks arrive.
func simulateInput(ctx context.Context, loop *msgloop.Loop, sim *hook.SimulatedPlatform, interval time.Duration) {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events := simulatedStep(step, uint32(time.Since(start).Milliseconds()))
		if err := loop.Do(func() {
			for _, ev := range events {
				sim.SetCursor(ev.rec.Pt)
				sim.Inject(0, ev.msg, ev.rec)
			}
		}); err != nil {
			return
		}
	}
}

type simEvent struct {
	msg hook.Message
	rec hook.RawMouseRecord
}

// simulatedStep returns the events for one tick of the pattern.
func simulatedStep(step int, now uint32) []simEvent {
	angle := float64(step%360) * math.Pi / 180
	pt := hook.Point{
		X: simCenterX + int32(simRadius*math.Cos(angle)),
		Y: simCenterY + int32(simRadius*math.Sin(angle)),
	}
	base := hook.RawMouseRecord{Pt: pt, Time: now}

	events := []simEvent{{msg: hook.MsgMove, rec: base}}
	if step%20 == 19 {
		events = append(events,
			simEvent{msg: hook.MsgLeftDown, rec: base},
			simEvent{msg: hook.MsgLeftUp, rec: base},
		)
	}
	if step%50 == 49 {
		wheel := base
		// One notch towards the user: the high word carries -WHEEL_DELTA.
		delta := int16(-hook.WheelDelta)
		wheel.MouseData = uint32(uint16(delta)) << 16
		events = append(events, simEvent{msg: hook.MsgWheel, rec: wheel})
	}
	return events
}
