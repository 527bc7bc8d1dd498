// Package nickname persists the user's display name across sessions. It is
// the only client-local state: one string in one file under the user config
// directory.
package nickname

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName = "vibechat"
	fileName      = "nickname"
)

// Path resolves the nickname file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, configDirName, fileName), nil
}

// Load reads the persisted nickname. A missing file is an empty nickname,
// not an error.
func Load() string {
	path, err := Path()
	if err != nil {
		return ""
	}
	return LoadFile(path)
}

// Save writes the nickname, creating the config directory if needed.
func Save(name string) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveFile(path, name)
}

// LoadFile reads a nickname from an explicit path.
func LoadFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveFile writes a nickname to an explicit path.
func SaveFile(path, name string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(name)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write nickname: %w", err)
	}
	return nil
}
