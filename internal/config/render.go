package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Render writes cfg to w in the given format.
func Render(w io.Writer, cfg *Config, format string) error {
	switch format {
	case "", FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		// Round-trip through YAML so durations render as "5m0s" strings.
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("failed to decode yaml: %w", err)
		}
		if err := toml.NewEncoder(w).Encode(tree); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want yaml or toml)", format)
	}
}

const defaultHeader = `# tasksync configuration
#
# Every key can be overridden from the environment, e.g.
#   TASKSYNC_USER=alice TASKSYNC_SYNC_INTERVAL=1m tasksync daemon
#
# remote.url left empty runs against an in-process memory remote.

`

// WriteDefault writes the default configuration to path as YAML. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(defaultHeader)
	if err := Render(&buf, DefaultConfig(), FormatYAML); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
