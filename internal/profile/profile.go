// Package profile loads bake profiles: named quality/scope presets for the
// headless build driver.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lightforge.dev/internal/lighting"
	"lightforge.dev/internal/scene"
)

type Profile struct {
	Quality         string   `yaml:"quality"`
	SelectedOnly    bool     `yaml:"selected_only"`
	VisibilityOnly  bool     `yaml:"visibility_only"`
	SortMappings    *bool    `yaml:"sort_mappings"`
	ImmediateImport bool     `yaml:"immediate_import"`
	DumpBlobsTo     string   `yaml:"dump_blobs_to"`
	ClientName      string   `yaml:"client_name"`
	Levels          []string `yaml:"levels"` // empty means every level
}

func Load(path string) (Profile, error) {
	var p Profile
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Options converts the profile into build options, starting from defaults.
func (p Profile) Options() (lighting.Options, error) {
	opts := lighting.DefaultOptions()
	if p.Quality != "" {
		q, err := lighting.ParseQuality(p.Quality)
		if err != nil {
			return opts, err
		}
		opts.Quality = q
	}
	opts.SelectedOnly = p.SelectedOnly
	opts.VisibilityOnly = p.VisibilityOnly
	if p.SortMappings != nil {
		opts.SortMappings = *p.SortMappings
	}
	opts.ImmediateImport = p.ImmediateImport
	opts.DumpBlobsTo = p.DumpBlobsTo
	if p.ClientName != "" {
		opts.ClientName = p.ClientName
	}
	if len(p.Levels) > 0 {
		include := make(map[string]bool, len(p.Levels))
		for _, name := range p.Levels {
			include[name] = true
		}
		opts.ShouldBuildLevel = func(l *scene.Level) bool { return include[l.Name] }
	}
	return opts, nil
}
