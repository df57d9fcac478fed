package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/NotCoffee418/panel_bridge/pkg/bridge"
	"github.com/NotCoffee418/panel_bridge/pkg/jobdb"
	"github.com/NotCoffee418/panel_bridge/pkg/logger"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link"
	"github.com/NotCoffee418/panel_bridge/pkg/port_link/porttest"
	"github.com/NotCoffee418/panel_bridge/pkg/terminal/paneltest"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t      *testing.T
	paths  bridge.Paths
	panel  *paneltest.FakePanel
	opener *porttest.Opener
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	paths := bridge.Paths{
		Config:   filepath.Join(dir, "bridge.toml"),
		Catalog:  filepath.Join(dir, "actions.toml"),
		Database: filepath.Join(dir, "data", "bridge.db"),
	}
	require.NoError(t, os.WriteFile(paths.Config, []byte(`
log_level = "error"

[serial]
device = "/dev/ttyTEST"

[terminal]
quiet_gap_ms = 120
poll_interval_ms = 2
step_timeout_ms = 500
login_credential = ""

[jobs]
default_timeout_ms = 500
queue_capacity = 4
`), 0644))
	require.NoError(t, os.WriteFile(paths.Catalog, []byte(`
[[action]]
name = "Home"
slug = "home"
input_sequence = "\u001b"
result_regex = '(?P<menu>MAIN MENU)'
is_enabled = true

[[point]]
group = 2
point = 1
name = "Temp Supply"
read_only = true

[[point]]
group = 2
point = 2
name = "Fan Status"
`), 0644))

	panel := paneltest.NewFakePanel("")
	return &harness{
		t:      t,
		paths:  paths,
		panel:  panel,
		opener: porttest.NewOpener(porttest.NewScriptedPort().WithResponder(panel.Respond)),
	}
}

func (h *harness) run(args ...string) (string, error) {
	c := &cli{
		log:      logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false),
		linkOpts: []port_link.LinkOption{port_link.WithOpener(h.opener.Open)},
	}
	root := buildCLI(c)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{
		"--config", h.paths.Config,
		"--catalog", h.paths.Catalog,
		"--db", h.paths.Database,
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTestRegexCommand(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("test-regex", "--sample", `Supply\nTemp: 72F`, "--regex", `Temp: (?P<temp>\d+F)`)
	r.NoError(err)
	r.Contains(out, `"extracted": "72F"`)
	r.Contains(out, `"temp": "72F"`)

	_, err = h.run("test-regex", "--sample", "x", "--regex", "(")
	r.Error(err)
}

func TestExecCommand(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("exec", "--sequence", `\x1b`, "--regex", "G - (\\w+)")
	r.NoError(err)
	r.Contains(out, "MAIN MENU")
	r.Contains(out, "result: Groups")

	_, err = h.run("exec")
	r.ErrorContains(err, "--sequence")
}

func TestHomeCommand(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("home")
	r.NoError(err)
	r.Contains(out, "MAIN MENU")
}

func TestRunActionRecordsJob(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("run", "home")
	r.NoError(err)
	r.Contains(out, "succeeded")
	r.Contains(out, "MAIN MENU")

	_, err = h.run("run", "missing")
	r.ErrorContains(err, "not found")

	out, err = h.run("jobs", "--kind", "action")
	r.NoError(err)
	r.Contains(out, "succeeded")
}

func TestReadGroupUpdatesPoints(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("read-group", "2")
	r.NoError(err)
	r.Contains(out, "3 points")

	store, err := jobdb.Open(h.paths.Database, logger.NewSlogWriter(io.Discard, logger.ErrorLevel, false))
	r.NoError(err)
	defer store.Close()
	point, err := store.GetPoint(context.Background(), 2, 1)
	r.NoError(err)
	r.Equal("72.4", point.LastValue)

	_, err = h.run("read-group", "zero")
	r.ErrorContains(err, "positive number")
}

func TestCommandCommand(t *testing.T) {
	r := require.New(t)
	h := newHarness(t)

	out, err := h.run("command", "2", "2", "STATE", "OFF")
	r.NoError(err)
	r.Contains(out, "succeeded")
	r.Equal("OFF", h.panel.Value(2, 2))
	r.Equal([]string{"2/2 STATE=OFF"}, h.panel.Commands())

	out, err = h.run("command", "2", "1", "SET", "80")
	r.Error(err)
	r.Contains(out, "failed")
	r.Contains(out, "read-only")
	r.Len(h.panel.Commands(), 1)

	out, err = h.run("jobs", "--status", "failed")
	r.NoError(err)
	r.Contains(out, "command_point")

	_, err = h.run("jobs", "--status", "bogus")
	r.ErrorContains(err, "unknown status")
}
