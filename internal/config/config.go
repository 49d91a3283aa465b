// Package config holds the compiler's process-level settings and the
// per-target runtime configurations.
package config

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// WorkflowEngine selects the execution backend a compiled manifest targets.
type WorkflowEngine string

const (
	EngineArgo   WorkflowEngine = "argo"
	EngineTekton WorkflowEngine = "tekton"
)

// ParseWorkflowEngine maps a configuration value to a supported engine.
// An empty value defaults to Argo. Unknown values are a fatal
// configuration error, raised before any compilation work begins.
func ParseWorkflowEngine(value string) (WorkflowEngine, error) {
	switch strings.ToLower(value) {
	case "", string(EngineArgo):
		return EngineArgo, nil
	case string(EngineTekton):
		return EngineTekton, nil
	default:
		return "", fmt.Errorf("unsupported workflow engine: %q", value)
	}
}

// Settings are the process-level compiler settings. Environment-derived
// values are resolved once at construction and threaded into the compiler
// explicitly, never read ad hoc.
type Settings struct {
	// WritableContainerDir is a writable directory in the running
	// container where the notebook or script executes. It must exist
	// before the container starts.
	WritableContainerDir string `env:"KFPC_WRITABLE_CONTAINER_DIR" envDefault:"/tmp"`

	// BootstrapScriptURL, RequirementsURL, and RequirementsPy37URL locate
	// the bootstrapper and its dependency manifests downloaded by every
	// generic node's container command.
	BootstrapScriptURL  string `env:"KFPC_BOOTSTRAP_SCRIPT_URL"`
	RequirementsURL     string `env:"KFPC_REQUIREMENTS_URL"`
	RequirementsPy37URL string `env:"KFPC_REQUIREMENTS_PY37_URL"`

	// PipConfigURL locates the package-index configuration used on
	// restricted (CRI-O) runtimes.
	PipConfigURL string `env:"KFPC_PIP_CONFIG_URL"`

	// CRIORuntime marks a restricted runtime environment where packages
	// install into a designated user library path instead of system-wide.
	CRIORuntime bool `env:"CRIO_RUNTIME" envDefault:"false"`

	GithubOrg    string `env:"KFPC_GITHUB_ORG" envDefault:"elyra-ai"`
	GithubBranch string `env:"KFPC_GITHUB_BRANCH" envDefault:"main"`

	// RootDir anchors relative paths for file-based property values.
	RootDir string `env:"KFPC_ROOT_DIR"`
}

// LoadSettings resolves Settings from the process environment and fills
// URL defaults derived from the GitHub org/branch.
func LoadSettings() (*Settings, error) {
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, fmt.Errorf("parse settings from environment: %w", err)
	}
	s.ApplyDefaults()
	return s, nil
}

// ApplyDefaults normalizes the writable container directory and fills URL
// defaults derived from the GitHub org/branch. LoadSettings calls it; tests
// constructing Settings by hand may call it directly.
func (s *Settings) ApplyDefaults() {
	s.WritableContainerDir = strings.TrimRight(strings.TrimSpace(s.WritableContainerDir), "/")
	if s.WritableContainerDir == "" {
		s.WritableContainerDir = "/tmp"
	}
	raw := fmt.Sprintf("https://raw.githubusercontent.com/%s/elyra/%s", s.GithubOrg, s.GithubBranch)
	if s.GithubOrg == "" || s.GithubBranch == "" {
		raw = "https://raw.githubusercontent.com/elyra-ai/elyra/main"
	}
	if s.BootstrapScriptURL == "" {
		s.BootstrapScriptURL = raw + "/elyra/kfp/bootstrapper.py"
	}
	if s.RequirementsURL == "" {
		s.RequirementsURL = raw + "/etc/generic/requirements-elyra.txt"
	}
	if s.RequirementsPy37URL == "" {
		s.RequirementsPy37URL = raw + "/etc/generic/requirements-elyra-py37.txt"
	}
	if s.PipConfigURL == "" {
		s.PipConfigURL = raw + "/etc/kfp/pip.conf"
	}
	if s.RootDir == "" {
		if wd, err := os.Getwd(); err == nil {
			s.RootDir = wd
		}
	}
}

// RuntimeConfig is one named runtime configuration: where to submit
// workflows and where dependency artifacts are stored.
type RuntimeConfig struct {
	Name string `yaml:"name"`

	// APIEndpoint is the Kubeflow Pipelines API endpoint.
	APIEndpoint string `yaml:"api_endpoint"`
	// PublicAPIEndpoint is the endpoint reported in run URLs; defaults
	// to APIEndpoint.
	PublicAPIEndpoint string `yaml:"public_api_endpoint"`
	APIUsername       string `yaml:"api_username"`
	APIPassword       string `yaml:"api_password"`
	UserNamespace     string `yaml:"user_namespace"`
	// Engine selects the workflow engine variant ("argo" or "tekton").
	Engine string `yaml:"engine"`

	// Object storage ("cos") settings for dependency artifacts.
	COSEndpoint       string `yaml:"cos_endpoint"`
	PublicCOSEndpoint string `yaml:"public_cos_endpoint"`
	COSBucket         string `yaml:"cos_bucket"`
	COSUsername       string `yaml:"cos_username"`
	COSPassword       string `yaml:"cos_password"`
	// COSSecret names a Kubernetes secret holding the storage
	// credentials. When set, generated tasks reference the secret
	// instead of embedding literal credentials.
	COSSecret string `yaml:"cos_secret"`
}

// Validate checks the fields every submission requires.
func (c *RuntimeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("runtime configuration is missing a name")
	}
	if c.APIEndpoint == "" {
		return fmt.Errorf("runtime configuration %q is missing api_endpoint", c.Name)
	}
	if _, err := ParseWorkflowEngine(c.Engine); err != nil {
		return fmt.Errorf("runtime configuration %q: %w", c.Name, err)
	}
	return nil
}

// Normalized returns a copy with trailing endpoint slashes removed and the
// public endpoints defaulted.
func (c *RuntimeConfig) Normalized() RuntimeConfig {
	out := *c
	out.APIEndpoint = strings.TrimRight(out.APIEndpoint, "/")
	if out.PublicAPIEndpoint == "" {
		out.PublicAPIEndpoint = out.APIEndpoint
	} else {
		out.PublicAPIEndpoint = strings.TrimRight(out.PublicAPIEndpoint, "/")
	}
	if out.PublicCOSEndpoint == "" {
		out.PublicCOSEndpoint = out.COSEndpoint
	}
	return out
}

// LoadRuntimeConfig reads a runtime configuration from a YAML file.
func LoadRuntimeConfig(filename string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read runtime configuration: %w", err)
	}
	var c RuntimeConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse runtime configuration %s: %w", filename, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// JoinPaths joins object-storage path segments, skipping empty ones.
func JoinPaths(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return path.Join(parts...)
}
