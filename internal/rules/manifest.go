package rules

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk description of a rule base.
//
//	name: cooking
//	program: rules.mg        # relative to the manifest, or
//	source: |                # inline Mangle program
//	  Decl at(X, Y).
//	inverse_pairs:
//	  - [north_of, south_of]
//	symmetric: [adjacent]
//	policy:
//	  player_type: P
type Manifest struct {
	Name         string     `yaml:"name"`
	Program      string     `yaml:"program"`
	Source       string     `yaml:"source"`
	InversePairs [][]string `yaml:"inverse_pairs"`
	Symmetric    []string   `yaml:"symmetric"`
	Policy       Policy     `yaml:"policy"`
}

// LoadManifest reads a manifest and the program it points to.
func LoadManifest(path string) (*RuleBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, configErr("", "", "failed to parse manifest %s: %v", path, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(path)
	}

	source := m.Source
	if m.Program != "" {
		if source != "" {
			return nil, configErr("", "", "manifest %s sets both program and source", path)
		}
		programPath := m.Program
		if !filepath.IsAbs(programPath) {
			programPath = filepath.Join(filepath.Dir(path), programPath)
		}
		raw, err := os.ReadFile(programPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule program %s: %w", programPath, err)
		}
		source = string(raw)
	}
	if source == "" {
		return nil, configErr("", "", "manifest %s has no program", path)
	}

	opts, err := m.Options()
	if err != nil {
		return nil, err
	}
	return Parse(source, opts)
}

// Options converts the manifest's metadata into parse options.
func (m Manifest) Options() (Options, error) {
	opts := Options{Name: m.Name, Policy: m.Policy}
	for _, pair := range m.InversePairs {
		if len(pair) != 2 {
			return Options{}, configErr("", "", "inverse pair %v must name exactly two predicates", pair)
		}
		opts.Pairs = append(opts.Pairs, InversePair{Left: pair[0], Right: pair[1]})
	}
	for _, p := range m.Symmetric {
		opts.Pairs = append(opts.Pairs, InversePair{Left: p, Right: p})
	}
	return opts, nil
}
