package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadBridgeConfigWritesDefaults(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "bridge.toml")

	cfg, err := LoadBridgeConfig(path)
	r.NoError(err)
	r.Equal(DefaultBridgeConfig(), cfg)

	_, err = os.Stat(path)
	r.NoError(err)

	reloaded, err := LoadBridgeConfig(path)
	r.NoError(err)
	r.Equal(cfg, reloaded)
}

func TestLoadBridgeConfigOverrides(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "bridge.toml")
	r.NoError(os.WriteFile(path, []byte(`
[serial]
device = "/dev/ttyS1"
baudrate = 19200
parity = "even"

[terminal]
quiet_gap_ms = 400
main_menu_marker = "SYSTEM MENU"
`), 0644))

	cfg, err := LoadBridgeConfig(path)
	r.NoError(err)
	r.Equal("/dev/ttyS1", cfg.Serial.Device)
	r.Equal(uint(19200), cfg.Serial.Baudrate)
	r.Equal("even", cfg.Serial.Parity)
	r.Equal(uint(8), cfg.Serial.DataBits)
	r.Equal(400*time.Millisecond, cfg.Terminal.QuietGap())
	r.Equal("SYSTEM MENU", cfg.Terminal.MainMenuMarker)
	r.Equal("PASSWORD", cfg.Terminal.LoginMarker)
}

func TestLoadBridgeConfigRejectsInvalid(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "bridge.toml")
	r.NoError(os.WriteFile(path, []byte(`
[serial]
parity = "mark"
stop_bits = 3
`), 0644))

	_, err := LoadBridgeConfig(path)
	r.Error(err)
	r.Contains(err.Error(), "serial.parity")
	r.Contains(err.Error(), "serial.stop_bits")
}

func TestLoadActionCatalog(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	empty, err := LoadActionCatalog(filepath.Join(dir, "missing.toml"))
	r.NoError(err)
	r.Empty(empty.Actions)

	path := filepath.Join(dir, "actions.toml")
	r.NoError(os.WriteFile(path, []byte(`
[[action]]
name = "Check temp"
slug = "check-temp"
input_sequence = "READ\r"
result_regex = 'Temp: (\\d+F)'
timeout_seconds = 1
is_enabled = true

[[point]]
group = 2
point = 3
name = "Mode"
read_only = true
`), 0644))

	catalog, err := LoadActionCatalog(path)
	r.NoError(err)
	r.Len(catalog.Actions, 1)
	r.Equal("check-temp", catalog.Actions[0].Slug)
	r.Equal("READ\r", catalog.Actions[0].InputSequence)
	r.Equal(`Temp: (\\d+F)`, catalog.Actions[0].ResultRegex)
	r.True(catalog.Actions[0].IsEnabled)
	r.Len(catalog.Points, 1)
	r.Equal(2, catalog.Points[0].GroupNumber)
	r.Equal(3, catalog.Points[0].PointNumber)
	r.True(catalog.Points[0].ReadOnly)
}

func TestLoadActionCatalogDuplicateSlug(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "actions.toml")
	r.NoError(os.WriteFile(path, []byte(`
[[action]]
name = "a"
slug = "same"

[[action]]
name = "b"
slug = "same"
`), 0644))

	_, err := LoadActionCatalog(path)
	r.ErrorContains(err, "duplicate action slug")
}

func TestLoadActionCatalogDuplicatePoint(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "actions.toml")
	r.NoError(os.WriteFile(path, []byte(`
[[point]]
group = 1
point = 1

[[point]]
group = 1
point = 1
`), 0644))

	_, err := LoadActionCatalog(path)
	r.ErrorContains(err, "duplicate point 1/1")
}

func TestLoadBridgeConfigRejectsReadTimeoutAboveQuietGap(t *testing.T) {
	r := require.New(t)
	dir := t.TempDir()

	for name, body := range map[string]string{
		"explicit": "[serial]\nread_timeout_ms = 300\n[terminal]\nquiet_gap_ms = 250\n",
		"equal":    "[serial]\nread_timeout_ms = 250\n[terminal]\nquiet_gap_ms = 250\n",
		"clamped":  "[serial]\nread_timeout_ms = 10\n[terminal]\nquiet_gap_ms = 80\n",
	} {
		path := filepath.Join(dir, name+".toml")
		r.NoError(os.WriteFile(path, []byte(body), 0644))

		_, err := LoadBridgeConfig(path)
		r.ErrorContains(err, "serial.read_timeout_ms", name)
	}

	path := filepath.Join(dir, "ok.toml")
	r.NoError(os.WriteFile(path, []byte("[serial]\nread_timeout_ms = 10\n[terminal]\nquiet_gap_ms = 120\n"), 0644))
	cfg, err := LoadBridgeConfig(path)
	r.NoError(err)
	r.Equal(100*time.Millisecond, cfg.Serial.ReadTimeout())
}
