package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SetActiveProject persists project as the default scope in dir/config.json.
// The file is replaced atomically.
func SetActiveProject(dir, project string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.Marshal(configJSON{Project: project})
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "config-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer tempFile.Close()

	if _, err := tempFile.Write(data); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	target := filepath.Join(dir, configFile)
	if err := os.Rename(tempFile.Name(), target); err != nil {
		os.Remove(tempFile.Name())
		return fmt.Errorf("failed to rename temp file to %s: %w", target, err)
	}
	return nil
}
