package aggregation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawDefinition is the on-disk YAML shape. Durations are strings so files
// can use "90s", "5m", "1d" etc.
type rawDefinition struct {
	Name  string `yaml:"name"`
	Match struct {
		EventTypes    []string `yaml:"event_types"`
		RequireFields []string `yaml:"require_fields"`
	} `yaml:"match"`
	Window struct {
		Kind          string `yaml:"kind"`
		Duration      string `yaml:"duration"`
		SlideInterval string `yaml:"slide_interval"`
		SessionGap    string `yaml:"session_gap"`
		MaxEvents     int    `yaml:"max_events"`
	} `yaml:"window"`
	Metrics []struct {
		Field     string   `yaml:"field"`
		Operation string   `yaml:"operation"`
		GroupBy   []string `yaml:"group_by"`
	} `yaml:"metrics"`
}

// LoadDefinitionsDir loads aggregation definitions from *.yaml files in dir.
// Each file contains exactly one definition at the top level. Definitions
// are validated eagerly; a malformed file fails the whole load. A missing
// directory is valid and yields zero definitions.
func LoadDefinitionsDir(dir string) ([]*Definition, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil // no definitions directory: valid, zero configured
	}
	if err != nil {
		return nil, fmt.Errorf("definitions dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("definitions path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions dir: %w", err)
	}

	var defs []*Definition
	seen := make(map[string]string) // name -> file, duplicate detection

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading definition file %s: %w", path, err)
		}

		var raw rawDefinition
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing definition file %s: %w", path, err)
		}
		if raw.Name == "" {
			continue // skip empty / comment-only files
		}

		def, err := raw.toDefinition()
		if err != nil {
			return nil, fmt.Errorf("definition file %s: %w", path, err)
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("definition file %s: %w", path, err)
		}

		if prev, exists := seen[def.Name]; exists {
			return nil, fmt.Errorf("definition %q in %s duplicates %s", def.Name, path, prev)
		}
		seen[def.Name] = path
		defs = append(defs, def)
	}

	return defs, nil
}

func (raw rawDefinition) toDefinition() (*Definition, error) {
	def := &Definition{
		Name: raw.Name,
		Match: MatchSpec{
			EventTypes:    raw.Match.EventTypes,
			RequireFields: raw.Match.RequireFields,
		},
		Window: WindowSpec{
			Kind:      raw.Window.Kind,
			MaxEvents: raw.Window.MaxEvents,
		},
	}

	var err error
	if raw.Window.Duration != "" {
		if def.Window.Duration, err = ParseWindowDuration(raw.Window.Duration); err != nil {
			return nil, fmt.Errorf("window duration: %w", err)
		}
	}
	if raw.Window.SlideInterval != "" {
		if def.Window.SlideInterval, err = ParseWindowDuration(raw.Window.SlideInterval); err != nil {
			return nil, fmt.Errorf("window slide_interval: %w", err)
		}
	}
	if raw.Window.SessionGap != "" {
		if def.Window.SessionGap, err = ParseWindowDuration(raw.Window.SessionGap); err != nil {
			return nil, fmt.Errorf("window session_gap: %w", err)
		}
	}

	for _, m := range raw.Metrics {
		def.Metrics = append(def.Metrics, MetricSpec{
			SourceField: m.Field,
			Operation:   m.Operation,
			GroupBy:     m.GroupBy,
		})
	}

	return def, nil
}
