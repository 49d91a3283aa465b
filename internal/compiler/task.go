package compiler

import (
	corev1 "k8s.io/api/core/v1"
)

// WorkflowTask is the fully resolved descriptor the code generator consumes,
// one per pipeline node. Descriptors are created fresh per compilation run
// and never persisted.
type WorkflowTask struct {
	// ID is the node's opaque identifier; EscapedID is its
	// generated-code-safe form.
	ID        string
	EscapedID string
	// Name is the final, collision-free task name.
	Name string
	Doc  string
	// UpstreamIDs are the IDs of the tasks this task depends on.
	UpstreamIDs []string

	// UsesCustomComponent distinguishes catalog-component tasks from
	// generic script/notebook tasks.
	UsesCustomComponent bool

	// ComponentDefinition is the component text this task executes;
	// DefinitionHash is its content hash, used to deduplicate identical
	// definitions across the task set.
	ComponentDefinition string
	DefinitionHash      string

	// Inputs maps sanitized parameter names to their resolved sources.
	Inputs map[string]*TaskInput
	// Outputs maps sanitized parameter names to their declared types.
	Outputs map[string]TaskOutput

	Modifiers Modifiers
}

// TaskInput is one resolved task parameter. Exactly one of Value,
// OutputRef, and PipelineParamRef is populated.
type TaskInput struct {
	// Value is a literal, already coerced to its structured form where
	// the declared type calls for it.
	Value any
	// OutputRef references an upstream task's output slot.
	OutputRef *OutputRef
	// PipelineParamRef names a pipeline-level parameter.
	PipelineParamRef string
	// DataType is the component-declared type, lowercased, defaulting
	// to "string".
	DataType string
	// RequiresQuotedRendering is false only for integer, float, and
	// bool types; everything else renders quoted in generated code.
	RequiresQuotedRendering bool
}

// OutputRef identifies an upstream task output. Both fields are sanitized
// so producer and consumer resolve by string equality.
type OutputRef struct {
	TaskID   string
	OutputID string
}

// TaskOutput is one declared task output.
type TaskOutput struct {
	DataType string
}

// SecretKeyRef selects one entry of a Kubernetes secret.
type SecretKeyRef struct {
	Name string
	Key  string
}

// VolumeClaim describes a persistent volume claim mounted into the task
// container.
type VolumeClaim struct {
	PVCName  string
	SubPath  string
	ReadOnly bool
}

// MemSize is a memory quantity with a fixed unit.
type MemSize struct {
	Size  int
	Units string
}

// GPULimit is a GPU request with its vendor resource name.
type GPULimit struct {
	Size   int
	Vendor string
}

// CRIOVolume is the empty-dir workspace volume attached on restricted
// runtimes.
type CRIOVolume struct {
	EmptyDirVolumeSize string
	EmptyDirVolumeName string
	EmptyDirMountPath  string
}

// Modifiers accumulates every cross-cutting attachment of a task. Each
// contributor owns a distinct field, so no contributor can clobber
// another's entries.
type Modifiers struct {
	// EnvVariables are literal environment values. System-reserved keys
	// take precedence over same-named user declarations.
	EnvVariables map[string]string
	// SecretEnvVariables are environment values resolved from
	// Kubernetes secrets at run time, keyed by environment variable
	// name. Storage credentials land here when a storage secret is
	// configured.
	SecretEnvVariables map[string]SecretKeyRef

	// SpecialOutputFiles are the fixed paths the platform's metric and
	// UI-metadata viewers read.
	SpecialOutputFiles map[string]string

	// ObjectStorageSecret names the Kubernetes secret holding storage
	// credentials, when one is configured.
	ObjectStorageSecret string

	ImagePullPolicy corev1.PullPolicy

	CPURequest string
	MemRequest *MemSize
	GPU        *GPULimit

	CRIORuntime *CRIOVolume

	PodLabels      map[string]string
	PodAnnotations map[string]string
	// Tolerations are keyed by a content hash of (key, operator, value,
	// effect) so semantically identical tolerations collapse to one.
	Tolerations map[string]corev1.Toleration
	// Volumes are keyed by mount path.
	Volumes map[string]VolumeClaim
	// Secrets are keyed by the environment variable they populate.
	Secrets map[string]SecretKeyRef

	SharedMemSize *MemSize
	// DisableCaching is nil when the node carries no caching directive.
	DisableCaching *bool

	// RunName is the run-name directive; its value depends on the
	// target workflow engine.
	RunName string

	// Custom holds custom-component property slots that do not match a
	// declared task input, keyed by sanitized property name.
	Custom map[string]*TaskInput
}

// newModifiers initializes every map-valued field.
func newModifiers() Modifiers {
	return Modifiers{
		EnvVariables:       map[string]string{},
		SecretEnvVariables: map[string]SecretKeyRef{},
		SpecialOutputFiles: map[string]string{},
		PodLabels:          map[string]string{},
		PodAnnotations:     map[string]string{},
		Tolerations:        map[string]corev1.Toleration{},
		Volumes:            map[string]VolumeClaim{},
		Secrets:            map[string]SecretKeyRef{},
		Custom:             map[string]*TaskInput{},
	}
}

// Workflow is the assembled compilation result: tasks in dependency order
// plus deduplicated component definitions and the pipeline-level
// configuration.
type Workflow struct {
	PipelineName        string
	PipelineDescription string
	// Tasks is keyed by node ID; Order lists node IDs in topological
	// order.
	Tasks map[string]*WorkflowTask
	Order []string
	// Definitions maps definition hash to definition text, deduplicated
	// across the task set.
	Definitions map[string]string
	Conf        *PipelineConf
}

// OrderedTasks returns the tasks in topological order.
func (w *Workflow) OrderedTasks() []*WorkflowTask {
	out := make([]*WorkflowTask, 0, len(w.Order))
	for _, id := range w.Order {
		out = append(out, w.Tasks[id])
	}
	return out
}

// PipelineConf is the pipeline-level configuration handed to the external
// compiler alongside the generated source.
type PipelineConf struct {
	// ImagePullSecrets are Kubernetes secret names for private container
	// registries, deduplicated across all generic nodes' images.
	ImagePullSecrets []string
}
