package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	corev1 "k8s.io/api/core/v1"
)

// pipelineFile is the on-disk YAML representation of a pipeline.
type pipelineFile struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	Runtime       string            `yaml:"runtime"`
	RuntimeConfig string            `yaml:"runtime_config"`
	Properties    map[string]string `yaml:"properties"`
	Nodes         []nodeFile        `yaml:"nodes"`
}

type nodeFile struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Doc          string   `yaml:"doc"`
	Type         string   `yaml:"type"`
	Dependencies []string `yaml:"dependencies"`

	Filename          string   `yaml:"filename"`
	RuntimeImage      string   `yaml:"runtime_image"`
	CPU               string   `yaml:"cpu"`
	Memory            int      `yaml:"memory"`
	GPU               int      `yaml:"gpu"`
	DependencyArchive string   `yaml:"dependency_archive"`
	Inputs            []string `yaml:"inputs"`
	Outputs           []string `yaml:"outputs"`

	Classifier      string                    `yaml:"classifier"`
	ComponentParams map[string]paramValueFile `yaml:"component_parameters"`

	Env             []string             `yaml:"env"`
	Secrets         []secretFile         `yaml:"kubernetes_secrets"`
	Volumes         []volumeFile         `yaml:"mounted_volumes"`
	Annotations     []keyValueFile       `yaml:"kubernetes_pod_annotations"`
	Labels          []keyValueFile       `yaml:"kubernetes_pod_labels"`
	Tolerations     []tolerationFile     `yaml:"kubernetes_tolerations"`
	SharedMemory    *sharedMemorySizeRef `yaml:"kubernetes_shared_mem_size"`
	DisableCaching  *bool                `yaml:"disable_node_caching"`
}

type paramValueFile struct {
	Widget string `yaml:"widget"`
	Value  string `yaml:"value"`
	NodeID string `yaml:"node_id"`
	Option string `yaml:"option"`
}

type secretFile struct {
	EnvVar string `yaml:"env_var"`
	Name   string `yaml:"name"`
	Key    string `yaml:"key"`
}

type volumeFile struct {
	Path     string `yaml:"path"`
	PVCName  string `yaml:"pvc_name"`
	SubPath  string `yaml:"sub_path"`
	ReadOnly bool   `yaml:"read_only"`
}

type keyValueFile struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type tolerationFile struct {
	Key      string `yaml:"key"`
	Operator string `yaml:"operator"`
	Value    string `yaml:"value"`
	Effect   string `yaml:"effect"`
}

type sharedMemorySizeRef struct {
	Size  int    `yaml:"size"`
	Units string `yaml:"units"`
}

// Load reads a pipeline definition from a YAML file.
func Load(filename string) (*Pipeline, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read pipeline: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", filename, err)
	}
	p.Source = filename
	return p, nil
}

// Parse decodes a YAML pipeline definition.
func Parse(data []byte) (*Pipeline, error) {
	var f pipelineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	if f.Name == "" {
		return nil, fmt.Errorf("invalid pipeline: missing name")
	}
	if len(f.Nodes) == 0 {
		return nil, fmt.Errorf("invalid pipeline %q: no nodes", f.Name)
	}

	p := &Pipeline{
		ID:            f.ID,
		Name:          f.Name,
		Description:   f.Description,
		Runtime:       f.Runtime,
		RuntimeConfig: f.RuntimeConfig,
		Nodes:         make(map[string]*Node, len(f.Nodes)),
		Properties:    f.Properties,
	}
	if p.Runtime == "" {
		p.Runtime = "kfp"
	}
	if p.Properties == nil {
		p.Properties = map[string]string{}
	}

	for _, nf := range f.Nodes {
		n, err := nf.node()
		if err != nil {
			return nil, err
		}
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if _, exists := p.Nodes[n.ID]; exists {
			return nil, fmt.Errorf("invalid pipeline %q: duplicate node id %s", f.Name, n.ID)
		}
		p.Nodes[n.ID] = n
	}

	for _, n := range p.Nodes {
		for _, parent := range n.ParentIDs {
			if _, ok := p.Nodes[parent]; !ok {
				return nil, fmt.Errorf("invalid pipeline %q: node %s depends on unknown node %s", f.Name, n.ID, parent)
			}
		}
	}
	return p, nil
}

func (nf nodeFile) node() (*Node, error) {
	n := &Node{
		ID:                nf.ID,
		Name:              nf.Name,
		Doc:               nf.Doc,
		ParentIDs:         nf.Dependencies,
		Filename:          nf.Filename,
		RuntimeImage:      nf.RuntimeImage,
		CPU:               nf.CPU,
		Memory:            nf.Memory,
		GPU:               nf.GPU,
		DependencyArchive: nf.DependencyArchive,
		Inputs:            ScrubList(nf.Inputs),
		Outputs:           ScrubList(nf.Outputs),
		Classifier:        nf.Classifier,
	}

	switch nf.Type {
	case "", string(KindGeneric):
		n.Kind = KindGeneric
	case string(KindCustom):
		n.Kind = KindCustom
	default:
		return nil, fmt.Errorf("invalid pipeline node %s: unknown type %q", nf.ID, nf.Type)
	}
	if n.Name == "" && n.Filename != "" {
		// A node without an explicit name inherits its source file's name.
		n.Name = filepath.Base(nf.Filename)
	}

	if len(nf.ComponentParams) > 0 {
		n.ComponentParams = make(map[string]ParamValue, len(nf.ComponentParams))
		for ref, pv := range nf.ComponentParams {
			n.ComponentParams[ref] = ParamValue{
				Widget: pv.Widget,
				Value:  pv.Value,
				NodeID: pv.NodeID,
				Option: pv.Option,
			}
		}
	}

	for _, kv := range nf.Env {
		if ev, ok := ParseEnvVar(kv); ok {
			n.Properties = append(n.Properties, ev)
		}
	}
	for _, s := range nf.Secrets {
		n.Properties = append(n.Properties, KubernetesSecret{EnvVar: s.EnvVar, Name: s.Name, Key: s.Key})
	}
	for _, v := range nf.Volumes {
		n.Properties = append(n.Properties, VolumeMount{
			Path: v.Path, PVCName: v.PVCName, SubPath: v.SubPath, ReadOnly: v.ReadOnly,
		})
	}
	for _, a := range nf.Annotations {
		n.Properties = append(n.Properties, KubernetesAnnotation{Key: a.Key, Value: a.Value})
	}
	for _, l := range nf.Labels {
		n.Properties = append(n.Properties, KubernetesLabel{Key: l.Key, Value: l.Value})
	}
	for _, tol := range nf.Tolerations {
		n.Properties = append(n.Properties, KubernetesToleration{
			Key:      tol.Key,
			Operator: corev1.TolerationOperator(tol.Operator),
			Value:    tol.Value,
			Effect:   corev1.TaintEffect(tol.Effect),
		})
	}
	if nf.SharedMemory != nil {
		units := nf.SharedMemory.Units
		if units == "" {
			units = "G"
		}
		n.Properties = append(n.Properties, SharedMemorySize{Size: nf.SharedMemory.Size, Units: units})
	}
	if nf.DisableCaching != nil {
		n.Properties = append(n.Properties, DisableNodeCaching{Selection: *nf.DisableCaching})
	}
	return n, nil
}
