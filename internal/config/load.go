package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// searchNames in priority order; each is tried next to the executable
// first, then in the working directory.
var searchNames = []string{"settings.yaml", "config.yaml"}

// Resolve returns the settings file path to use: the explicit path when
// given, otherwise the first standard location that exists.
func Resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	return findSettings()
}

// Load reads, defaults and validates the settings file. With an empty path
// the standard locations are searched.
func Load(path string) (*Settings, error) {
	if path == "" {
		found, err := findSettings()
		if err != nil {
			return nil, err
		}

		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	settings.applyDefaults()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return &settings, nil
}

func findSettings() (string, error) {
	var dirs []string

	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}

	for _, name := range searchNames {
		for _, dir := range dirs {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("config: no settings.yaml or config.yaml found")
}
