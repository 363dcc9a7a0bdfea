package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest describes one backup run. It is informational; restore does not need it.
type Manifest struct {
	SourceHost string         `yaml:"source_host"`
	StartedAt  time.Time      `yaml:"started_at"`
	FinishedAt time.Time      `yaml:"finished_at"`
	Counts     map[string]int `yaml:"counts"`
	Failures   []string       `yaml:"failures,omitempty"`
}

func (d *Dir) WriteManifest(m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return d.writeFile(ManifestFile, data)
}

func (d *Dir) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(d.path(ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
