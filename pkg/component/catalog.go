package component

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// componentFile is the on-disk YAML representation of a catalog component.
type componentFile struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
	Properties []struct {
		Ref               string   `yaml:"ref"`
		JSONDataType      string   `yaml:"json_type"`
		AllowedInputTypes []string `yaml:"allowed_input_types"`
		Default           string   `yaml:"default"`
	} `yaml:"properties"`
	Inputs []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"inputs"`
	Outputs []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"outputs"`
}

// DirectoryCatalog resolves components from YAML files laid out as
// <root>/<runtime type>/<classifier>.yaml. Loaded components are cached
// for the catalog's lifetime.
type DirectoryCatalog struct {
	root string

	mu    sync.Mutex
	cache map[string]*Component
}

// NewDirectoryCatalog creates a catalog rooted at dir.
func NewDirectoryCatalog(dir string) *DirectoryCatalog {
	return &DirectoryCatalog{root: dir, cache: make(map[string]*Component)}
}

// Get implements Catalog.
func (c *DirectoryCatalog) Get(runtimeType, classifier string) (*Component, error) {
	key := runtimeType + "/" + classifier

	c.mu.Lock()
	defer c.mu.Unlock()
	if comp, ok := c.cache[key]; ok {
		return comp, nil
	}

	path := filepath.Join(c.root, runtimeType, classifier+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("component %q not found for runtime %q", classifier, runtimeType)
		}
		return nil, fmt.Errorf("read component %q: %w", classifier, err)
	}

	comp, err := parseComponent(data, classifier)
	if err != nil {
		return nil, fmt.Errorf("component %s: %w", path, err)
	}
	c.cache[key] = comp
	return comp, nil
}

func parseComponent(data []byte, classifier string) (*Component, error) {
	var f componentFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse component: %w", err)
	}
	if f.Definition == "" {
		return nil, fmt.Errorf("invalid component: missing definition")
	}

	comp := &Component{
		ID:         f.ID,
		Name:       f.Name,
		Definition: f.Definition,
	}
	if comp.ID == "" {
		comp.ID = classifier
	}
	if comp.Name == "" {
		comp.Name = classifier
	}
	for _, p := range f.Properties {
		comp.Properties = append(comp.Properties, Property{
			Ref:               p.Ref,
			JSONDataType:      p.JSONDataType,
			AllowedInputTypes: p.AllowedInputTypes,
			Default:           p.Default,
		})
	}
	for _, in := range f.Inputs {
		comp.Inputs = append(comp.Inputs, Parameter{Name: in.Name, Type: in.Type})
	}
	for _, out := range f.Outputs {
		comp.Outputs = append(comp.Outputs, Parameter{Name: out.Name, Type: out.Type})
	}
	return comp, nil
}
