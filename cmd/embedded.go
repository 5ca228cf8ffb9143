package main

import (
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed configs/*.yaml
var configsFS embed.FS

// defaultConfigName is the embedded config used when nothing else is found.
const defaultConfigName = "gateway"

// getEmbeddedConfig returns the raw bytes of an embedded config file.
// name can be with or without the .yaml extension.
func getEmbeddedConfig(name string) ([]byte, error) {
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	return configsFS.ReadFile(filepath.Join("configs", name))
}

// listEmbeddedConfigs returns the names of all embedded config files (without extension).
func listEmbeddedConfigs() ([]string, error) {
	entries, err := configsFS.ReadDir("configs")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded configs: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names, nil
}
