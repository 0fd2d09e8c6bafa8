package metrics

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mousewatch/internal/hook"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("test", "")

	c := r.RegisterCounter("things_total", "Things", nil)
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Value())
	assert.Same(t, c, r.RegisterCounter("things_total", "Things", nil))
	assert.Same(t, c, r.GetCounter("things_total"))
	assert.Equal(t, "test_things_total", c.Name())

	g := r.RegisterGauge("level", "Level", nil)
	g.Set(10)
	g.Dec()
	g.Add(-4)
	assert.Equal(t, int64(5), g.Value())
	assert.Same(t, g, r.GetGauge("level"))

	h := r.RegisterHistogram("wait_seconds", "Wait", nil, LatencyBuckets)
	assert.Same(t, h, r.GetHistogram("wait_seconds"))

	assert.Nil(t, r.GetGauge("missing"))
	assert.Nil(t, r.GetHistogram("level"))
}

func TestLabelledCountersAreDistinct(t *testing.T) {
	r := NewRegistry("", "")
	a := r.RegisterCounter("events_total", "Events", Labels{"message": "move"})
	b := r.RegisterCounter("events_total", "Events", Labels{"message": "wheel"})
	require.NotSame(t, a, b)

	a.Inc()
	b.Add(2)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "# TYPE events_total counter"))
	assert.Contains(t, out, `events_total{message="move"} 1`)
	assert.Contains(t, out, `events_total{message="wheel"} 2`)
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("latency", "Latency", nil, []float64{1, 0.1, 0.5})

	for _, v := range []float64{0.05, 0.1, 0.3, 0.7, 2} {
		h.Observe(v)
	}

	assert.Equal(t, uint64(5), h.Count())
	assert.InDelta(t, 3.15, h.Sum(), 1e-9)
	assert.InDelta(t, 0.63, h.Mean(), 1e-9)
	// Bounds are sorted and inclusive: 0.1 lands in the 0.1 bucket.
	assert.Equal(t, []uint64{2, 3, 4, 5}, h.Cumulative())
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("op", "Op", nil, nil)
	d := h.Timer().Stop()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, uint64(1), h.Count())
}

func TestWritePrometheusHistogram(t *testing.T) {
	r := NewRegistry("mw", "")
	h := r.RegisterHistogram("wait_seconds", "Wait", Labels{"queue": "main"}, []float64{0.5, 1})
	h.Observe(0.25)
	h.Observe(0.75)
	h.Observe(3)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE mw_wait_seconds histogram")
	assert.Contains(t, out, `mw_wait_seconds_bucket{queue="main",le="0.5"} 1`)
	assert.Contains(t, out, `mw_wait_seconds_bucket{queue="main",le="1"} 2`)
	assert.Contains(t, out, `mw_wait_seconds_bucket{queue="main",le="+Inf"} 3`)
	assert.Contains(t, out, `mw_wait_seconds_count{queue="main"} 3`)
	assert.Contains(t, out, `mw_wait_seconds_sum{queue="main"} 4`)
}

func TestWritePrometheusIsSorted(t *testing.T) {
	r := NewRegistry("", "")
	r.RegisterCounter("b_total", "B", nil)
	r.RegisterCounter("a_total", "A", nil)
	r.RegisterCounter("c_total", "C", nil)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()
	a := strings.Index(out, "a_total")
	b := strings.Index(out, "b_total")
	c := strings.Index(out, "c_total")
	assert.True(t, a < b && b < c, "metrics should be written in name order")
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("mw", "")
	r.RegisterCounter("clicks_total", "Clicks", nil).Add(3)
	r.RegisterHistogram("op_seconds", "Op", nil, []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "counter", doc["mw_clicks_total"]["type"])
	assert.Equal(t, float64(3), doc["mw_clicks_total"]["value"])
	assert.Equal(t, float64(1), doc["mw_op_seconds"]["count"])
}

func TestCollectorsRunBeforeExport(t *testing.T) {
	r := NewRegistry("", "")
	g := r.RegisterGauge("sampled", "Sampled", nil)
	n := int64(0)
	r.RegisterCollector(func() {
		n++
		g.Set(n)
	})

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap["sampled"])
	snap = r.Snapshot()
	assert.Equal(t, int64(2), snap["sampled"])
}

func TestReset(t *testing.T) {
	r := NewRegistry("", "")
	c := r.RegisterCounter("c", "C", nil)
	g := r.RegisterGauge("g", "G", nil)
	h := r.RegisterHistogram("h", "H", nil, nil)
	c.Inc()
	g.Set(3)
	h.Observe(1)

	r.Reset()
	assert.Zero(t, c.Value())
	assert.Zero(t, g.Value())
	assert.Zero(t, h.Count())
	assert.Equal(t, make([]uint64, len(DefaultBuckets)+1), h.Cumulative())
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("mw", "")
	r.RegisterCounter("hits_total", "Hits", nil).Inc()
	handler := r.HTTPHandler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "mw_hits_total 1")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestHookMetricsObserver(t *testing.T) {
	m := NewHookMetrics(NewRegistry("mw", ""))

	m.HookInstalled(hook.KindMouse)
	assert.Equal(t, int64(1), m.Installed.Value())
	assert.Equal(t, uint64(1), m.InstallsTotal.Value())

	m.Callback(0, true)
	m.Callback(0, true)
	m.Callback(-1, false)
	assert.Equal(t, uint64(3), m.CallbacksTotal.Value())
	assert.Equal(t, uint64(2), m.CallbacksTranslated.Value())
	assert.Equal(t, uint64(1), m.CallbacksPassed.Value())

	m.DeliveryFailed(errors.New("boom"))
	assert.Equal(t, uint64(1), m.DeliveryFailures.Value())

	m.HookRemoved(hook.KindMouse, errors.New("still hooked"))
	assert.Equal(t, int64(0), m.Installed.Value())
	assert.Equal(t, uint64(1), m.RemovalFailures.Value())
	assert.Zero(t, m.RemovalsTotal.Value())

	m.HookInstalled(hook.KindMouse)
	m.HookRemoved(hook.KindMouse, nil)
	assert.Equal(t, uint64(1), m.RemovalsTotal.Value())

	m.HookInstallFailed(hook.KindMouse, errors.New("denied"))
	assert.Equal(t, uint64(1), m.InstallFailures.Value())
}

func TestHookMetricsEvents(t *testing.T) {
	r := NewRegistry("mw", "")
	m := NewHookMetrics(r)

	m.ObserveEvent(hook.MouseEvent{Message: hook.MsgMove})
	m.ObserveEvent(hook.MouseEvent{Message: hook.MsgMove})
	m.ObserveEvent(hook.MouseEvent{Message: hook.MsgWheel})
	m.ObserveEvent(hook.MouseEvent{Message: hook.Message(0x9999)})

	assert.Equal(t, uint64(2), m.EventCount(hook.MsgMove))
	assert.Equal(t, uint64(1), m.EventCount(hook.MsgWheel))
	assert.Equal(t, uint64(1), m.EventCount(hook.Message(0x1234)), "unknown messages share the other series")

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	assert.Contains(t, buf.String(), `mw_events_total{message="move"} 2`)
	assert.Contains(t, buf.String(), `mw_events_total{message="other"} 1`)
}

type fakeQueue struct{ length, capacity, delivered, dropped, panics int }

func (q *fakeQueue) Len() int          { return q.length }
func (q *fakeQueue) Cap() int          { return q.capacity }
func (q *fakeQueue) Delivered() uint64 { return uint64(q.delivered) }
func (q *fakeQueue) Dropped() uint64   { return uint64(q.dropped) }
func (q *fakeQueue) Panics() uint64    { return uint64(q.panics) }

func TestHookMetricsTrackQueue(t *testing.T) {
	r := NewRegistry("mw", "")
	m := NewHookMetrics(r)
	q := &fakeQueue{capacity: 64}
	m.TrackQueue(q)
	assert.Equal(t, int64(64), m.QueueCapacity.Value())

	q.length, q.delivered, q.dropped, q.panics = 3, 10, 2, 1
	snap := r.Snapshot()
	assert.Equal(t, int64(3), snap["mw_queue_length"])
	assert.Equal(t, int64(10), snap["mw_queue_delivered"])
	assert.Equal(t, int64(2), snap["mw_queue_dropped"])
	assert.Equal(t, int64(1), snap["mw_queue_handler_panics"])
}

func TestHookMetricsWithManager(t *testing.T) {
	m := NewHookMetrics(NewRegistry("mw", ""))
	sim := hook.NewSimulatedPlatform()
	mgr := hook.NewManager(hook.Options{Platform: sim, Observer: m})
	mgr.Subscribe(m.ObserveEvent)

	require.NoError(t, mgr.Start())
	sim.Inject(0, hook.MsgLeftDown, hook.RawMouseRecord{})
	sim.Inject(-1, hook.MsgMove, hook.RawMouseRecord{})
	require.NoError(t, mgr.Stop())

	assert.Equal(t, uint64(1), m.InstallsTotal.Value())
	assert.Equal(t, uint64(1), m.RemovalsTotal.Value())
	assert.Equal(t, uint64(2), m.CallbacksTotal.Value())
	assert.Equal(t, uint64(1), m.EventCount(hook.MsgLeftDown))
	assert.Zero(t, m.EventCount(hook.MsgMove))

	sim.FailRegister(hook.Errno(5))
	require.Error(t, mgr.Start())
	assert.Equal(t, uint64(1), m.InstallFailures.Value())
}
