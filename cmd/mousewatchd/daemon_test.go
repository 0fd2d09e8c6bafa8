package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mousewatch/internal/config"
	"mousewatch/internal/hook"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, path string, mutate func(*config.Config)) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Hook.Simulate = true
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddr = "127.0.0.1:0"
	cfg.Logging.Level = "debug"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, config.SaveConfig(cfg, path))
}

func newTestDaemon(t *testing.T, mutate func(*config.Config)) (*daemon, string, *syncBuffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, mutate)

	logs := &syncBuffer{}
	d, err := newDaemon(daemonOptions{
		configPath:       path,
		simulateInterval: 5 * time.Millisecond,
		logWriter:        logs,
	})
	require.NoError(t, err)
	return d, path, logs
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDaemonSimulatedRun(t *testing.T) {
	d, _, logs := newTestDaemon(t, func(c *config.Config) { c.Dispatch.LogEvents = true })
	require.NotNil(t, d.sim)
	require.NoError(t, d.start())

	assert.True(t, d.manager.Installed())
	require.NotEmpty(t, d.addr())
	base := "http://" + d.addr()

	require.Eventually(t, func() bool {
		return d.metrics.EventCount(hook.MsgLeftDown) > 0
	}, 5*time.Second, 10*time.Millisecond, "synthetic clicks should reach the queue handler")

	code, body := get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mousewatch_hook_installed 1")
	assert.Contains(t, body, `mousewatch_events_total{message="move"}`)

	code, _ = get(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	code, body = get(t, base+"/healthz?full=true")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"hook"`)

	require.NoError(t, d.shutdown())
	assert.False(t, d.manager.Installed())
	assert.Empty(t, d.sim.Hooks())
	assert.Contains(t, logs.String(), "mouse event")
	assert.Contains(t, logs.String(), "mousewatchd stopped")
}

func TestDaemonWithoutMouseHook(t *testing.T) {
	d, _, _ := newTestDaemon(t, func(c *config.Config) {
		c.Hook.InstallMouse = false
		c.Metrics.Enabled = false
	})
	require.NoError(t, d.start())
	assert.False(t, d.manager.Installed())
	assert.Empty(t, d.addr())

	result, ok := d.checker.CheckComponent(context.Background(), "hook")
	require.True(t, ok)
	assert.Equal(t, "mouse hook disabled", result.Message)
	require.NoError(t, d.shutdown())
}

func TestDaemonReloadTogglesHook(t *testing.T) {
	d, path, logs := newTestDaemon(t, func(c *config.Config) { c.Metrics.Enabled = false })
	require.NoError(t, d.start())
	defer d.shutdown()
	require.True(t, d.manager.Installed())

	writeConfig(t, path, func(c *config.Config) {
		c.Metrics.Enabled = false
		c.Hook.InstallMouse = false
		c.Logging.Level = "warn"
	})
	require.Eventually(t, func() bool { return !d.manager.Installed() }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "WARN", d.logLevel.Level().String())

	writeConfig(t, path, func(c *config.Config) { c.Metrics.Enabled = false })
	require.Eventually(t, d.manager.Installed, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), "log level changed")
}

func TestDaemonInstallFailure(t *testing.T) {
	d, _, _ := newTestDaemon(t, func(c *config.Config) { c.Metrics.Enabled = false })
	d.sim.FailRegister(hook.ErrnoBusy)

	err := d.start()
	require.Error(t, err)
	var ierr *hook.InstallationError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, hook.ErrnoBusy, ierr.Code)
	assert.Equal(t, uint64(1), d.metrics.InstallFailures.Value())

	require.NoError(t, d.shutdown())
}

func TestDaemonStrictUninstall(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		d, _, _ := newTestDaemon(t, func(c *config.Config) { c.Metrics.Enabled = false })
		require.NoError(t, d.start())
		d.sim.FailUnregister(hook.ErrnoInvalidHandle)

		err := d.shutdown()
		assert.ErrorIs(t, err, hook.ErrUninstall)
		assert.False(t, d.manager.Installed(), "the handle is reset even when removal fails")
	})

	t.Run("lenient", func(t *testing.T) {
		d, _, _ := newTestDaemon(t, func(c *config.Config) {
			c.Metrics.Enabled = false
			c.Hook.StrictUninstall = false
		})
		require.NoError(t, d.start())
		d.sim.FailUnregister(hook.ErrnoInvalidHandle)

		assert.NoError(t, d.shutdown())
		assert.Equal(t, uint64(1), d.metrics.RemovalFailures.Value())
	})
}

func TestRunDaemonStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, func(c *config.Config) { c.Metrics.Enabled = false })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(ctx, daemonOptions{configPath: path, logWriter: io.Discard})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runDaemon did not return after cancel")
	}
}

func TestNewDaemonRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[dispatch]\nqueue_size = 0\n"), 0600))

	_, err := newDaemon(daemonOptions{configPath: path, logWriter: io.Discard})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue_size")
}

func TestSimulatedStep(t *testing.T) {
	first := simulatedStep(0, 10)
	require.Len(t, first, 1)
	assert.Equal(t, hook.MsgMove, first[0].msg)
	assert.Equal(t, hook.Point{X: simCenterX + simRadius, Y: simCenterY}, first[0].rec.Pt)
	assert.Equal(t, uint32(10), first[0].rec.Time)

	click := simulatedStep(19, 0)
	require.Len(t, click, 3)
	assert.Equal(t, hook.MsgLeftDown, click[1].msg)
	assert.Equal(t, hook.MsgLeftUp, click[2].msg)

	wheel := simulatedStep(49, 0)
	last := wheel[len(wheel)-1]
	require.Equal(t, hook.MsgWheel, last.msg)
	assert.Equal(t, int16(-hook.WheelDelta), hook.Translate(last.msg, &last.rec).WheelDelta)
}

func TestCmdConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	var out bytes.Buffer
	require.NoError(t, cmdConfig([]string{"init", "-config", path}, &out))
	assert.Contains(t, out.String(), "Wrote")
	assert.Error(t, cmdConfig([]string{"init", "-config", path}, &out), "existing file needs -force")
	require.NoError(t, cmdConfig([]string{"init", "-config", path, "-force"}, &out))

	out.Reset()
	require.NoError(t, cmdConfig([]string{"validate", "-config", path}, &out))
	assert.Contains(t, out.String(), "ok")

	out.Reset()
	require.NoError(t, cmdConfig([]string{"show", "-config", path, "-format", "json"}, &out))
	assert.Contains(t, out.String(), `"queue_size": 1024`)

	out.Reset()
	require.NoError(t, cmdConfig([]string{"schema"}, &out))
	assert.Contains(t, out.String(), "json-schema.org")

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[hook]\nbogus = 1\n"), 0600))
	out.Reset()
	assert.Error(t, cmdConfig([]string{"validate", "-config", bad}, &out))
	assert.Contains(t, out.String(), "hook")

	assert.Error(t, cmdConfig(nil, &out))
	assert.Error(t, cmdConfig([]string{"frobnicate"}, &out))
}

func TestCmdCursorSimulated(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cmdCursor([]string{"-simulate"}, &out))
	assert.Equal(t, "640,400\n", out.String())

	out.Reset()
	require.NoError(t, cmdCursor([]string{"-simulate", "-json"}, &out))
	assert.JSONEq(t, `{"x":640,"y":400}`, out.String())
}

func TestCmdVersion(t *testing.T) {
	var out bytes.Buffer
	cmdVersion(&out)
	assert.True(t, strings.HasPrefix(out.String(), "mousewatchd dev"))
}
