package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate funes' files.
const (
	EnvConfigPath = "FUNES_CONFIG_PATH" // config file
	EnvHome       = "FUNES_HOME"        // run history databases and logs
)

// GetDefaults returns where funes keeps its files when the config does not
// say otherwise:
//
//	config_path  $FUNES_CONFIG_PATH, else ~/.config/funes.toml
//	base_dir     $FUNES_HOME, else ~/.local/share/funes
//	log_dir      <base_dir>/log, holding funes.log
//	db_dir       <base_dir>/db, holding one <host_id>.db history per host
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome(EnvConfigPath, ".config", "funes.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome(EnvHome, ".local", "share", "funes")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"db_dir":      filepath.Join(baseDir, "db"),
	}, nil
}

// envOrHome returns the value of env, or the home-relative path built from
// elem when env is unset.
func envOrHome(env string, elem ...string) (string, error) {
	if p := os.Getenv(env); p != "" {
		return p, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", env, err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
