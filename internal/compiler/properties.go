package compiler

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/me/kfpc/pkg/pipeline"
)

// applyProperty folds one platform property into a task's modifier set.
// Each variant owns a distinct modifier field, so contributors never
// clobber one another; repeated variants of the same kind accumulate under
// content-derived keys.
func applyProperty(m *Modifiers, prop pipeline.Property) {
	switch p := prop.(type) {
	case pipeline.EnvVar:
		if p.Value == "" {
			return
		}
		m.EnvVariables[p.Name] = p.Value

	case pipeline.KubernetesSecret:
		m.Secrets[p.EnvVar] = SecretKeyRef{Name: p.Name, Key: p.Key}

	case pipeline.VolumeMount:
		m.Volumes[p.Path] = VolumeClaim{
			PVCName:  p.PVCName,
			SubPath:  p.SubPath,
			ReadOnly: p.ReadOnly,
		}

	case pipeline.KubernetesAnnotation:
		m.PodAnnotations[p.Key] = p.Value

	case pipeline.KubernetesLabel:
		m.PodLabels[p.Key] = p.Value

	case pipeline.KubernetesToleration:
		m.Tolerations[tolerationKey(p)] = corev1.Toleration{
			Key:      p.Key,
			Operator: p.Operator,
			Value:    p.Value,
			Effect:   p.Effect,
		}

	case pipeline.SharedMemorySize:
		if p.Size > 0 {
			m.SharedMemSize = &MemSize{Size: p.Size, Units: p.Units}
		}

	case pipeline.DisableNodeCaching:
		disabled := p.Selection
		m.DisableCaching = &disabled
	}
}

// tolerationKey derives the deduplication key for a toleration from its
// full content, so identical declarations collapse while near-identical
// ones stay distinct.
func tolerationKey(t pipeline.KubernetesToleration) string {
	return contentHash(fmt.Sprintf("%s::%s::%s::%s", t.Key, t.Operator, t.Value, t.Effect))
}
