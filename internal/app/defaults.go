package app

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
)

// Defaults are the paths and scope used when no flag or config overrides them.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	Scope      string
}

// DefaultScope is used when neither TRAIL_SCOPE nor the current user name
// is available.
const DefaultScope = "default"

// GetDefaults returns application defaults, checking environment variables first.
// Environment variables:
//   - TRAIL_CONFIG_PATH: config file location (default: ~/.config/trail.toml)
//   - TRAIL_HOME: base directory for trail data (default: ~/.local/share/trail)
//   - TRAIL_SCOPE: scope trails are stored under (default: the OS user name)
func GetDefaults() (*Defaults, error) {
	configPath, err := envOrHome("TRAIL_CONFIG_PATH", ".config", "trail.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome("TRAIL_HOME", ".local", "share", "trail")
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Scope:      defaultScope(),
	}, nil
}

// envOrHome returns the value of env if set, otherwise the path elems
// joined under the user's home directory.
func envOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}

func defaultScope() string {
	if s := os.Getenv("TRAIL_SCOPE"); s != "" {
		return s
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return DefaultScope
}
