package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	fileValues   map[string]string
	fileValuesMu sync.RWMutex
)

// LoadFile reads a YAML file of KEY: value pairs that back any setting not present in the environment.
// An empty filename clears previously loaded values.
func LoadFile(filename string) error {
	if filename == "" {
		fileValuesMu.Lock()
		fileValues = nil
		fileValuesMu.Unlock()
		return nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	fileValuesMu.Lock()
	fileValues = values
	fileValuesMu.Unlock()
	return nil
}

func fileValue(key string) (string, bool) {
	fileValuesMu.RLock()
	defer fileValuesMu.RUnlock()
	v, ok := fileValues[key]
	return v, ok && v != ""
}
