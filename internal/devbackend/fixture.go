package devbackend

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"valter-dash/internal/model"
)

// Config file names looked up in the fixture root, in order.
var configFileNames = []string{"valter.dev.config", "valter.config"}

// SeedFileName holds initial cloud rows: a mapping of cloud name to a list
// of rows.
const SeedFileName = "clouds.seed.yaml"

// Fixture is a directory holding a backend config file, an optional cloud
// seed, and the island trees the config points at.
type Fixture struct {
	Root string
}

// ConfigPath returns the first config file present under the fixture root.
func (f Fixture) ConfigPath() (string, error) {
	for _, name := range configFileNames {
		p := filepath.Join(f.Root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no %s in %s", strings.Join(configFileNames, " or "), f.Root)
}

// IsConfigFile reports whether path names one of the fixture config files.
func IsConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range configFileNames {
		if base == name {
			return true
		}
	}
	return false
}

func (f Fixture) LoadConfig() (model.AppConfig, error) {
	path, err := f.ConfigPath()
	if err != nil {
		return model.AppConfig{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return model.AppConfig{}, err
	}
	var cfg model.AppConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return model.AppConfig{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if cfg.Global.Port == 0 {
		cfg.Global.Port = 8000
	}
	for i, is := range cfg.Islands {
		if strings.TrimSpace(is.MetaFileName) == "" {
			cfg.Islands[i].MetaFileName = "meta.yaml"
		}
	}
	return cfg, nil
}

// LoadSeed reads initial cloud rows. A missing seed file is not an error.
func (f Fixture) LoadSeed() (map[string][]model.Row, error) {
	b, err := os.ReadFile(filepath.Join(f.Root, SeedFileName))
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]model.Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string][]map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", SeedFileName, err)
	}
	out := make(map[string][]model.Row, len(raw))
	for cloud, rows := range raw {
		for _, r := range rows {
			out[cloud] = append(out[cloud], normalizeRow(r))
		}
	}
	return out, nil
}

// IslandBase resolves an island root_path (possibly ending in a "*" glob)
// to the directory that holds its island folders.
func (f Fixture) IslandBase(rootPath string) string {
	base := strings.TrimSuffix(strings.ReplaceAll(rootPath, "*", ""), "/")
	if base == "" {
		base = "."
	}
	if filepath.IsAbs(base) {
		return filepath.Clean(base)
	}
	return filepath.Join(f.Root, base)
}

// normalizeRow keeps YAML scalars the way the wire would carry them.
// Composite values pass through untouched.
func normalizeRow(r map[string]any) model.Row {
	out := model.Row{}
	for k, v := range r {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return jsonNumber(fmt.Sprint(t))
	case int64:
		return jsonNumber(fmt.Sprint(t))
	case uint64:
		return jsonNumber(fmt.Sprint(t))
	case float64:
		return jsonNumber(formatFloat(t))
	default:
		return v
	}
}
