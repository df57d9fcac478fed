package pathing

import (
	"os"
	"path/filepath"
)

const (
	dataDirEnv   = "PANEL_BRIDGE_DATA_DIR"
	configDirEnv = "PANEL_BRIDGE_CONFIG_DIR"
)

// EnsureDirs creates the data and config directories if missing.
func EnsureDirs() error {
	for _, dir := range []string{GetDataDir(), GetConfigDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetJobDbPath() string {
	return filepath.Join(GetDataDir(), "panel-bridge.db")
}

func GetBridgeConfigPath() string {
	return filepath.Join(GetConfigDir(), "bridge.toml")
}

func GetActionCatalogPath() string {
	return filepath.Join(GetConfigDir(), "actions.toml")
}

func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	return "/var/lib/panel_bridge"
}

func GetConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return "/etc/panel_bridge"
}
