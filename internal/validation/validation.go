// Package validation checks the platform properties attached to pipeline
// nodes against Kubernetes naming and syntax rules. Validation accumulates
// structured issues across all nodes and properties instead of stopping at
// the first failure, so one pass reports everything an author must fix.
package validation

import (
	"fmt"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
	k8svalidation "k8s.io/apimachinery/pkg/util/validation"

	"github.com/me/kfpc/pkg/pipeline"
)

// Severity grades an issue.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
)

// Issue is one validation finding, carrying enough context to locate the
// offending property in the pipeline definition.
type Issue struct {
	Severity Severity
	// Type is a stable machine-readable issue category.
	Type string
	// NodeID identifies the node the property is attached to.
	NodeID string
	// Property is the property kind the issue belongs to.
	Property string
	Message  string
}

// Issues collects validation findings.
type Issues struct {
	items []Issue
}

// Add appends an issue.
func (i *Issues) Add(issue Issue) {
	i.items = append(i.items, issue)
}

// All returns the collected issues in the order they were found.
func (i *Issues) All() []Issue {
	return i.items
}

// HasErrors reports whether any collected issue is an error.
func (i *Issues) HasErrors() bool {
	for _, issue := range i.items {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Error summarizes the collected errors as a single error value, or nil
// when the pipeline is clean.
func (i *Issues) Error() error {
	if !i.HasErrors() {
		return nil
	}
	var msgs []string
	for _, issue := range i.items {
		if issue.Severity == SeverityError {
			msgs = append(msgs, fmt.Sprintf("node %s: %s", issue.NodeID, issue.Message))
		}
	}
	return fmt.Errorf("invalid node properties: %s", strings.Join(msgs, "; "))
}

// ValidateProperties checks every node's platform properties. Nodes are
// visited in ID order so repeated runs report issues in the same order.
func ValidateProperties(p *pipeline.Pipeline) *Issues {
	issues := &Issues{}

	ids := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := p.Nodes[id]
		for _, prop := range node.Properties {
			validateProperty(issues, id, prop)
		}
	}
	return issues
}

func validateProperty(issues *Issues, nodeID string, prop pipeline.Property) {
	switch p := prop.(type) {
	case pipeline.EnvVar:
		validateEnvVar(issues, nodeID, p)
	case pipeline.KubernetesSecret:
		validateSecret(issues, nodeID, p)
	case pipeline.VolumeMount:
		validateVolumeMount(issues, nodeID, p)
	case pipeline.KubernetesAnnotation:
		validateAnnotation(issues, nodeID, p)
	case pipeline.KubernetesLabel:
		validateLabel(issues, nodeID, p)
	case pipeline.KubernetesToleration:
		validateToleration(issues, nodeID, p)
	case pipeline.SharedMemorySize:
		if p.Size < 0 {
			issues.Add(Issue{
				Severity: SeverityError,
				Type:     "invalidSharedMemSize",
				NodeID:   nodeID,
				Property: "kubernetes_shared_mem_size",
				Message:  fmt.Sprintf("Shared memory size '%d' must be a positive value.", p.Size),
			})
		}
	}
}

func validateEnvVar(issues *Issues, nodeID string, p pipeline.EnvVar) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidEnvironmentVariable",
			NodeID:   nodeID,
			Property: "env_variables",
			Message:  msg,
		})
	}
	if p.Name == "" {
		add("Required environment variable was not specified.")
		return
	}
	if strings.Contains(p.Name, " ") {
		add(fmt.Sprintf("Environment variable '%s' includes invalid space character(s).", p.Name))
	}
}

func validateSecret(issues *Issues, nodeID string, p pipeline.KubernetesSecret) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidKubernetesSecret",
			NodeID:   nodeID,
			Property: "kubernetes_secrets",
			Message:  msg,
		})
	}
	if p.EnvVar == "" {
		add("Required environment variable was not specified.")
	}
	if len(k8svalidation.IsDNS1123Subdomain(p.Name)) > 0 {
		add(fmt.Sprintf("Secret name '%s' is not a valid Kubernetes resource name.", p.Name))
	}
	if len(k8svalidation.IsConfigMapKey(p.Key)) > 0 {
		add(fmt.Sprintf("Key '%s' is not a valid Kubernetes secret key.", p.Key))
	}
}

func validateVolumeMount(issues *Issues, nodeID string, p pipeline.VolumeMount) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidVolumeMount",
			NodeID:   nodeID,
			Property: "mounted_volumes",
			Message:  msg,
		})
	}
	if strings.TrimSpace(p.Path) == "" {
		add("Required mount path was not specified.")
	}
	if len(k8svalidation.IsDNS1123Label(p.PVCName)) > 0 {
		add(fmt.Sprintf("PVC name '%s' is not a valid Kubernetes resource name.", p.PVCName))
	}
}

func validateAnnotation(issues *Issues, nodeID string, p pipeline.KubernetesAnnotation) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidKubernetesAnnotation",
			NodeID:   nodeID,
			Property: "kubernetes_pod_annotations",
			Message:  msg,
		})
	}
	if p.Value == "" {
		add("Kubernetes annotation must include a value.")
	}
	if len(k8svalidation.IsQualifiedName(p.Key)) > 0 {
		add(fmt.Sprintf("'%s' is not a valid Kubernetes annotation key.", p.Key))
	}
}

func validateLabel(issues *Issues, nodeID string, p pipeline.KubernetesLabel) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidKubernetesLabel",
			NodeID:   nodeID,
			Property: "kubernetes_pod_labels",
			Message:  msg,
		})
	}
	if len(k8svalidation.IsQualifiedName(p.Key)) > 0 {
		add(fmt.Sprintf("'%s' is not a valid Kubernetes label key.", p.Key))
	}
	if len(k8svalidation.IsValidLabelValue(p.Value)) > 0 {
		add(fmt.Sprintf("'%s' is not a valid Kubernetes label value.", p.Value))
	}
}

func validateToleration(issues *Issues, nodeID string, p pipeline.KubernetesToleration) {
	add := func(msg string) {
		issues.Add(Issue{
			Severity: SeverityError,
			Type:     "invalidKubernetesToleration",
			NodeID:   nodeID,
			Property: "kubernetes_tolerations",
			Message:  msg,
		})
	}

	switch p.Operator {
	case corev1.TolerationOpExists, corev1.TolerationOpEqual:
		if p.Key == "" && p.Operator != corev1.TolerationOpExists {
			add(fmt.Sprintf("'%s' is not a valid operator: operator must be 'Exists' if no key is specified.", p.Operator))
		} else if p.Operator == corev1.TolerationOpExists && p.Value != "" {
			add(fmt.Sprintf("'%s' is not a valid value: value should be empty if operator is 'Exists'.", p.Value))
		}
	default:
		add(fmt.Sprintf("'%s' is not a valid operator: the value must be one of 'Exists' or 'Equal'.", p.Operator))
	}

	switch p.Effect {
	case "", corev1.TaintEffectNoExecute, corev1.TaintEffectNoSchedule, corev1.TaintEffectPreferNoSchedule:
	default:
		add(fmt.Sprintf("'%s' is not a valid effect: effect must be one of 'NoExecute', 'NoSchedule', or 'PreferNoSchedule'.", p.Effect))
	}
}
