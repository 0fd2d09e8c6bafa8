package metrics

import (
	"time"

	"mousewatch/internal/hook"
)

// QueueStats is the view of a dispatch queue that HookMetrics samples.
type QueueStats interface {
	Len() int
	Cap() int
	Delivered() uint64
	Dropped() uint64
	Panics() uint64
}

// HookMetrics records hook lifecycle and callback activity. It implements
// hook.Observer, so its methods run on the hook thread and only touch
// atomics.
type HookMetrics struct {
	registry *Registry

	InstallsTotal       *Counter
	InstallFailures     *Counter
	RemovalsTotal       *Counter
	RemovalFailures     *Counter
	CallbacksTotal      *Counter
	CallbacksTranslated *Counter
	CallbacksPassed     *Counter
	DeliveryFailures    *Counter

	Installed     *Gauge
	UptimeSeconds *Gauge

	QueueLength    *Gauge
	QueueCapacity  *Gauge
	QueueDelivered *Gauge
	QueueDropped   *Gauge
	QueuePanics    *Gauge

	HandlerDuration *Histogram

	events map[hook.Message]*Counter
	other  *Counter
	start  time.Time
}

var eventMessages = []hook.Message{
	hook.MsgMove,
	hook.MsgLeftDown, hook.MsgLeftUp,
	hook.MsgRightDown, hook.MsgRightUp,
	hook.MsgMiddleDown, hook.MsgMiddleUp,
	hook.MsgWheel, hook.MsgHWheel,
	hook.MsgXDown, hook.MsgXUp,
}

// NewHookMetrics registers the hook metrics in registry, or in Default when
// registry is nil.
func NewHookMetrics(registry *Registry) *HookMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &HookMetrics{
		registry: registry,
		start:    time.Now(),

		InstallsTotal: registry.RegisterCounter(
			"hook_installs_total",
			"Number of successful mouse hook installations",
			nil,
		),
		InstallFailures: registry.RegisterCounter(
			"hook_install_failures_total",
			"Number of failed mouse hook installations",
			nil,
		),
		RemovalsTotal: registry.RegisterCounter(
			"hook_removals_total",
			"Number of successful mouse hook removals",
			nil,
		),
		RemovalFailures: registry.RegisterCounter(
			"hook_removal_failures_total",
			"Number of failed mouse hook removals",
			nil,
		),
		CallbacksTotal: registry.RegisterCounter(
			"hook_callbacks_total",
			"Number of low-level mouse callbacks received",
			nil,
		),
		CallbacksTranslated: registry.RegisterCounter(
			"hook_callbacks_translated_total",
			"Number of callbacks translated and published to subscribers",
			nil,
		),
		CallbacksPassed: registry.RegisterCounter(
			"hook_callbacks_passed_total",
			"Number of callbacks forwarded without translation",
			nil,
		),
		DeliveryFailures: registry.RegisterCounter(
			"hook_delivery_failures_total",
			"Number of callbacks where a subscriber panicked",
			nil,
		),

		Installed: registry.RegisterGauge(
			"hook_installed",
			"Whether the mouse hook is installed (1) or not (0)",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds since metrics were initialised",
			nil,
		),

		QueueLength: registry.RegisterGauge(
			"queue_length",
			"Events waiting in the dispatch queue",
			nil,
		),
		QueueCapacity: registry.RegisterGauge(
			"queue_capacity",
			"Size of the dispatch queue buffer",
			nil,
		),
		QueueDelivered: registry.RegisterGauge(
			"queue_delivered",
			"Events handled by the dispatch worker",
			nil,
		),
		QueueDropped: registry.RegisterGauge(
			"queue_dropped",
			"Events dropped because the dispatch queue was full",
			nil,
		),
		QueuePanics: registry.RegisterGauge(
			"queue_handler_panics",
			"Dispatch handler invocations that panicked",
			nil,
		),

		HandlerDuration: registry.RegisterHistogram(
			"event_handler_duration_seconds",
			"Time spent handling one event on the dispatch worker",
			nil,
			LatencyBuckets,
		),

		events: make(map[hook.Message]*Counter, len(eventMessages)),
	}

	for _, msg := range eventMessages {
		m.events[msg] = registry.RegisterCounter(
			"events_total",
			"Mouse events published, by message",
			Labels{"message": msg.String()},
		)
	}
	m.other = registry.RegisterCounter(
		"events_total",
		"Mouse events published, by message",
		Labels{"message": "other"},
	)

	registry.RegisterCollector(m.updateUptime)
	return m
}

// Registry returns the registry the metrics are registered in.
func (m *HookMetrics) Registry() *Registry {
	return m.registry
}

// HookInstalled implements hook.Observer.
func (m *HookMetrics) HookInstalled(kind hook.HookKind) {
	m.InstallsTotal.Inc()
	m.Installed.Set(1)
}

// HookRemoved implements hook.Observer. A failed removal leaves the gauge
// at 0: the manager no longer owns the hook either way.
func (m *HookMetrics) HookRemoved(kind hook.HookKind, err error) {
	m.Installed.Set(0)
	if err != nil {
		m.RemovalFailures.Inc()
		return
	}
	m.RemovalsTotal.Inc()
}

// Callback implements hook.Observer.
func (m *HookMetrics) Callback(code int32, translated bool) {
	m.CallbacksTotal.Inc()
	if translated {
		m.CallbacksTranslated.Inc()
	} else {
		m.CallbacksPassed.Inc()
	}
}

// DeliveryFailed implements hook.Observer.
func (m *HookMetrics) DeliveryFailed(err error) {
	m.DeliveryFailures.Inc()
}

// HookInstallFailed implements hook.Observer.
func (m *HookMetrics) HookInstallFailed(kind hook.HookKind, err error) {
	m.InstallFailures.Inc()
}

// ObserveEvent counts one published event by message.
func (m *HookMetrics) ObserveEvent(ev hook.MouseEvent) {
	if c, ok := m.events[ev.Message]; ok {
		c.Inc()
		return
	}
	m.other.Inc()
}

// EventCount returns how many events of msg were observed.
func (m *HookMetrics) EventCount(msg hook.Message) uint64 {
	if c, ok := m.events[msg]; ok {
		return c.Value()
	}
	return m.other.Value()
}

// TrackQueue samples q on every export.
func (m *HookMetrics) TrackQueue(q QueueStats) {
	m.QueueCapacity.Set(int64(q.Cap()))
	m.registry.RegisterCollector(func() {
		m.QueueLength.Set(int64(q.Len()))
		m.QueueDelivered.Set(int64(q.Delivered()))
		m.QueueDropped.Set(int64(q.Dropped()))
		m.QueuePanics.Set(int64(q.Panics()))
	})
}

func (m *HookMetrics) updateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(m.start).Seconds()))
}

var _ hook.Observer = (*HookMetrics)(nil)
