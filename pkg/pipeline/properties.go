package pipeline

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// Property is a cross-cutting, platform-level attachment to a node,
// independent of the node's own declared schema. The set of kinds is closed;
// consumers dispatch with a type switch.
type Property interface {
	propertyKind() string
}

// EnvVar sets an environment variable in the node's container.
type EnvVar struct {
	Name  string
	Value string
}

// KubernetesSecret exposes a secret value as an environment variable.
type KubernetesSecret struct {
	// EnvVar is the environment variable the secret value is bound to.
	EnvVar string
	// Name is the Kubernetes secret name.
	Name string
	// Key selects the entry within the secret.
	Key string
}

// VolumeMount mounts a persistent volume claim into the container.
type VolumeMount struct {
	Path     string
	PVCName  string
	SubPath  string
	ReadOnly bool
}

// KubernetesAnnotation attaches a pod annotation.
type KubernetesAnnotation struct {
	Key   string
	Value string
}

// KubernetesLabel attaches a pod label.
type KubernetesLabel struct {
	Key   string
	Value string
}

// KubernetesToleration attaches a pod toleration.
type KubernetesToleration struct {
	Key      string
	Operator corev1.TolerationOperator
	Value    string
	Effect   corev1.TaintEffect
}

// SharedMemorySize overrides the default shared memory size of the pod.
type SharedMemorySize struct {
	Size  int
	Units string
}

// DisableNodeCaching forces re-execution of the node on every run.
type DisableNodeCaching struct {
	Selection bool
}

func (EnvVar) propertyKind() string               { return "env_variables" }
func (KubernetesSecret) propertyKind() string     { return "kubernetes_secrets" }
func (VolumeMount) propertyKind() string          { return "mounted_volumes" }
func (KubernetesAnnotation) propertyKind() string { return "kubernetes_pod_annotations" }
func (KubernetesLabel) propertyKind() string      { return "kubernetes_pod_labels" }
func (KubernetesToleration) propertyKind() string { return "kubernetes_tolerations" }
func (SharedMemorySize) propertyKind() string     { return "kubernetes_shared_mem_size" }
func (DisableNodeCaching) propertyKind() string   { return "disable_node_caching" }

// ParseEnvVar parses the editor's "NAME=value" string form. Keys and values
// are stripped of surrounding whitespace. An entry without a separator, or
// with an empty key or value, yields ok=false and is skipped by callers; a
// value containing a further "=" is preserved verbatim.
func ParseEnvVar(kv string) (EnvVar, bool) {
	if !strings.Contains(kv, "=") {
		return EnvVar{}, false
	}
	key, value, _ := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return EnvVar{}, false
	}
	return EnvVar{Name: key, Value: value}, true
}
