// Package manifest loads component definitions from a YAML file.
//
// A manifest is either a bare list of components or a mapping with a
// components list and optional global styles:
//
//	globalStyles: ":host { display: block }"
//	components:
//	  - selector: x-counter
//	    templateFile: counter.html
//	    styleFile: counter.css
//	    styleMode: scoped
//	    inputs: [label]
//	    outputs: [changed]
//	    state:
//	      count: 0
//
// Relative file references resolve against the manifest's directory.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/kiln/internal/component"
	kerrors "github.com/conneroisu/kiln/internal/errors"
	"github.com/conneroisu/kiln/internal/registry"
)

// Entry is one component as written in a manifest.
type Entry struct {
	Selector     string              `yaml:"selector"`
	Template     string              `yaml:"template"`
	TemplateFile string              `yaml:"templateFile"`
	Style        string              `yaml:"style"`
	StyleFile    string              `yaml:"styleFile"`
	StyleMode    component.StyleMode `yaml:"styleMode"`
	Inputs       []string            `yaml:"inputs"`
	Outputs      []string            `yaml:"outputs"`
	State        map[string]any      `yaml:"state"`
}

// Manifest is a parsed manifest file.
type Manifest struct {
	Path         string
	GlobalStyles string
	Definitions  []*registry.Definition
}

type document struct {
	GlobalStyles string  `yaml:"globalStyles"`
	Components   []Entry `yaml:"components"`
}

var selectorPattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)+$`)

// Load reads and resolves the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeFileNotFound, "cannot read manifest", err).
			WithContext("path", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, kerrors.NewIOError(kerrors.ErrCodeFileNotFound, "cannot stat manifest", err).
			WithContext("path", path)
	}

	m, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m.Path = path
	for _, def := range m.Definitions {
		def.Source = path
		def.LastMod = info.ModTime()
	}
	return m, nil
}

// Parse decodes manifest data, resolving file references against dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, kerrors.NewConfigError("manifest is not valid YAML").WithCause(err)
	}

	var doc document
	if len(root.Content) > 0 {
		switch root.Content[0].Kind {
		case yaml.SequenceNode:
			if err := root.Content[0].Decode(&doc.Components); err != nil {
				return nil, kerrors.NewConfigError("invalid component list").WithCause(err)
			}
		case yaml.MappingNode:
			if err := root.Content[0].Decode(&doc); err != nil {
				return nil, kerrors.NewConfigError("invalid manifest").WithCause(err)
			}
		default:
			return nil, kerrors.NewConfigError("manifest must be a list or a mapping")
		}
	}

	m := &Manifest{GlobalStyles: doc.GlobalStyles}
	seen := make(map[string]bool)
	for i, entry := range doc.Components {
		def, err := entry.resolve(dir)
		if err != nil {
			return nil, kerrors.NewConfigError(fmt.Sprintf("component %d is invalid", i)).
				WithComponent(entry.Selector).WithCause(err)
		}
		if seen[def.Config.Selector] {
			return nil, kerrors.NewConfigError("duplicate selector").WithComponent(def.Config.Selector)
		}
		seen[def.Config.Selector] = true
		m.Definitions = append(m.Definitions, def)
	}
	return m, nil
}

// Files returns the manifest and every file it references.
func (m *Manifest) Files() []string {
	files := []string{m.Path}
	for _, def := range m.Definitions {
		files = append(files, def.Files...)
	}
	return files
}

// Register defines every component in reg. Existing selectors are
// replaced when replace is set and skipped otherwise.
func (m *Manifest) Register(reg *registry.Registry, replace bool) {
	for _, def := range m.Definitions {
		if replace {
			reg.Replace(def)
		} else {
			reg.Define(def)
		}
	}
}

func (e Entry) resolve(dir string) (*registry.Definition, error) {
	if !selectorPattern.MatchString(e.Selector) {
		return nil, fmt.Errorf("selector %q must be lowercase and contain a dash", e.Selector)
	}
	if e.Template != "" && e.TemplateFile != "" {
		return nil, fmt.Errorf("template and templateFile are mutually exclusive")
	}
	if e.Style != "" && e.StyleFile != "" {
		return nil, fmt.Errorf("style and styleFile are mutually exclusive")
	}

	mode := e.StyleMode
	switch mode {
	case "":
		mode = component.StyleGlobal
	case component.StyleGlobal, component.StyleScoped:
	default:
		return nil, fmt.Errorf("unknown styleMode %q", mode)
	}

	def := &registry.Definition{
		Config: component.Config{
			Selector:  e.Selector,
			Template:  e.Template,
			Style:     e.Style,
			StyleMode: mode,
			Inputs:    e.Inputs,
			Outputs:   e.Outputs,
			State:     e.State,
		},
		LastMod: time.Now(),
	}

	if e.TemplateFile != "" {
		path, body, err := readRelative(dir, e.TemplateFile)
		if err != nil {
			return nil, err
		}
		def.Config.Template = body
		def.Files = append(def.Files, path)
	}
	if e.StyleFile != "" {
		path, body, err := readRelative(dir, e.StyleFile)
		if err != nil {
			return nil, err
		}
		def.Config.Style = body
		def.Files = append(def.Files, path)
	}
	return def, nil
}

func readRelative(dir, name string) (string, string, error) {
	if err := validatePath(name); err != nil {
		return "", "", err
	}
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", name, err)
	}
	return path, string(data), nil
}

// validatePath rejects references that climb out of the manifest directory.
func validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	clean := filepath.Clean(path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}
	return nil
}
