package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// manifestName is the manifest file written into the workspace root.
const manifestName = "run.yaml"

// Manifest describes an in-flight run. It is written into the workspace so
// companion tools (rig-tail, a debugging operator) can find the coordinator
// log and connection details without parsing harness output.
type Manifest struct {
	RunID           string    `yaml:"run_id"`
	CoordinatorAddr string    `yaml:"coordinator_addr"`
	CoordinatorLog  string    `yaml:"coordinator_log"`
	WorkerName      string    `yaml:"worker_name"`
	StartedAt       time.Time `yaml:"started_at"`
}

// WriteManifest serializes m to dir/run.yaml.
func WriteManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal run manifest: %w", err)
	}
	path := filepath.Join(dir, manifestName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write run manifest: %w", err)
	}
	return nil
}

// LoadManifest reads dir/run.yaml.
func LoadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path) //nolint:gosec // path is the workspace root
	if err != nil {
		return Manifest{}, fmt.Errorf("read run manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse run manifest: %w", err)
	}
	return m, nil
}
