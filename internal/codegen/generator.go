// Package codegen renders a compiled workflow into Kubeflow Pipelines
// Python DSL source and drives the engine-specific external compiler that
// turns the source into a workflow manifest.
package codegen

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/me/kfpc/internal/compiler"
	"github.com/me/kfpc/internal/config"
)

// Generator renders workflow task descriptors into Python DSL source.
type Generator struct {
	tmpl *template.Template
}

// NewGenerator parses the DSL template once; the generator is safe for
// reuse across compilations.
func NewGenerator() (*Generator, error) {
	tmpl, err := template.New("dsl").Funcs(template.FuncMap{"q": pyQuote}).Parse(dslTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse DSL template: %w", err)
	}
	return &Generator{tmpl: tmpl}, nil
}

// Generate renders the workflow into a complete, self-contained DSL
// source file. Rendering is deterministic: identical workflows produce
// byte-identical source.
func (g *Generator) Generate(wf *compiler.Workflow, engine config.WorkflowEngine) (string, error) {
	model, err := buildModel(wf, engine)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := g.tmpl.Execute(&b, model); err != nil {
		return "", fmt.Errorf("render DSL for pipeline %q: %w", wf.PipelineName, err)
	}
	return b.String(), nil
}

// dslModel is the fully resolved view the template renders. All slices are
// sorted so output is stable.
type dslModel struct {
	Engine              string
	PipelineName        string
	PipelineDescription string
	UseAWSSecret        bool
	Definitions         []definitionView
	Tasks               []taskView
	ImagePullSecrets    []string
}

type definitionView struct {
	Var        string
	FactoryVar string
	Text       string
}

type taskView struct {
	Var        string
	FactoryVar string
	ArgList    string
	Name       string

	Envs       []keyValue
	SecretEnvs []secretEnv

	SpecialOutputs      []keyValue
	ObjectStorageSecret string
	ImagePullPolicy     string

	CPURequest string
	MemRequest string
	GPUSize    string
	GPUVendor  string

	CRIO *crioView

	Labels      []keyValue
	Annotations []keyValue
	Tolerations []tolerationView
	Volumes     []volumeView

	SharedMemSize     string
	DisableCachingSet bool
	RunName           string

	After []string
}

type keyValue struct {
	Key   string
	Value string
}

type secretEnv struct {
	EnvVar     string
	SecretName string
	SecretKey  string
}

type crioView struct {
	VolumeName string
	VolumeSize string
	MountPath  string
}

type tolerationView struct {
	Key      string
	Operator string
	Value    string
	Effect   string
}

type volumeView struct {
	Name     string
	Path     string
	PVCName  string
	SubPath  string
	ReadOnly bool
}

func buildModel(wf *compiler.Workflow, engine config.WorkflowEngine) (*dslModel, error) {
	m := &dslModel{
		Engine:              string(engine),
		PipelineName:        wf.PipelineName,
		PipelineDescription: wf.PipelineDescription,
	}
	if wf.Conf != nil {
		m.ImagePullSecrets = wf.Conf.ImagePullSecrets
	}

	hashes := make([]string, 0, len(wf.Definitions))
	for h := range wf.Definitions {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	for _, h := range hashes {
		m.Definitions = append(m.Definitions, definitionView{
			Var:        definitionVar(h),
			FactoryVar: factoryVar(h),
			Text:       wf.Definitions[h],
		})
	}

	for _, task := range wf.OrderedTasks() {
		view, err := buildTaskView(wf, task)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", task.Name, err)
		}
		if view.ObjectStorageSecret != "" {
			m.UseAWSSecret = true
		}
		m.Tasks = append(m.Tasks, view)
	}
	return m, nil
}

func buildTaskView(wf *compiler.Workflow, task *compiler.WorkflowTask) (taskView, error) {
	mod := task.Modifiers
	v := taskView{
		Var:                 "task_" + task.EscapedID,
		FactoryVar:          factoryVar(task.DefinitionHash),
		Name:                task.Name,
		ObjectStorageSecret: mod.ObjectStorageSecret,
		ImagePullPolicy:     string(mod.ImagePullPolicy),
		CPURequest:          mod.CPURequest,
		RunName:             mod.RunName,
		DisableCachingSet:   mod.DisableCaching != nil && *mod.DisableCaching,
	}

	v.ArgList = strings.Join(renderArgs(task), ", ")
	v.Envs = sortedKeyValues(mod.EnvVariables)
	v.SpecialOutputs = specialOutputs(mod.SpecialOutputFiles)
	v.Labels = sortedKeyValues(mod.PodLabels)
	v.Annotations = sortedKeyValues(mod.PodAnnotations)

	for _, name := range sortedKeys(mod.SecretEnvVariables) {
		ref := mod.SecretEnvVariables[name]
		v.SecretEnvs = append(v.SecretEnvs, secretEnv{EnvVar: name, SecretName: ref.Name, SecretKey: ref.Key})
	}
	for _, name := range sortedKeys(mod.Secrets) {
		ref := mod.Secrets[name]
		v.SecretEnvs = append(v.SecretEnvs, secretEnv{EnvVar: name, SecretName: ref.Name, SecretKey: ref.Key})
	}

	if mod.MemRequest != nil && mod.MemRequest.Size > 0 {
		v.MemRequest = fmt.Sprintf("%d%s", mod.MemRequest.Size, mod.MemRequest.Units)
	}
	if mod.GPU != nil && mod.GPU.Size > 0 {
		v.GPUSize = strconv.Itoa(mod.GPU.Size)
		v.GPUVendor = mod.GPU.Vendor
	}
	if mod.CRIORuntime != nil {
		v.CRIO = &crioView{
			VolumeName: mod.CRIORuntime.EmptyDirVolumeName,
			VolumeSize: mod.CRIORuntime.EmptyDirVolumeSize,
			MountPath:  mod.CRIORuntime.EmptyDirMountPath,
		}
	}
	if mod.SharedMemSize != nil && mod.SharedMemSize.Size > 0 {
		v.SharedMemSize = fmt.Sprintf("%d%s", mod.SharedMemSize.Size, mod.SharedMemSize.Units)
	}

	for _, key := range sortedKeys(mod.Tolerations) {
		t := mod.Tolerations[key]
		v.Tolerations = append(v.Tolerations, tolerationView{
			Key:      t.Key,
			Operator: string(t.Operator),
			Value:    t.Value,
			Effect:   string(t.Effect),
		})
	}
	for _, path := range sortedKeys(mod.Volumes) {
		claim := mod.Volumes[path]
		v.Volumes = append(v.Volumes, volumeView{
			Name:     claim.PVCName,
			Path:     path,
			PVCName:  claim.PVCName,
			SubPath:  claim.SubPath,
			ReadOnly: claim.ReadOnly,
		})
	}

	for _, upstream := range task.UpstreamIDs {
		dep, ok := wf.Tasks[upstream]
		if !ok {
			return taskView{}, fmt.Errorf("depends on unknown task %q", upstream)
		}
		v.After = append(v.After, "task_"+dep.EscapedID)
	}
	sort.Strings(v.After)

	return v, nil
}

// renderArgs renders the factory-call keyword arguments from the task's
// resolved inputs, sorted by parameter name. Inputs with no resolved value
// are omitted so the component's own defaults apply.
func renderArgs(task *compiler.WorkflowTask) []string {
	var args []string
	for _, name := range sortedKeys(task.Inputs) {
		in := task.Inputs[name]
		rendered, ok := renderInput(task, in)
		if !ok {
			continue
		}
		args = append(args, fmt.Sprintf("%s=%s", name, rendered))
	}
	return args
}

func renderInput(task *compiler.WorkflowTask, in *compiler.TaskInput) (string, bool) {
	switch {
	case in.OutputRef != nil:
		return fmt.Sprintf("task_%s.outputs[%s]", in.OutputRef.TaskID, pyQuote(in.OutputRef.OutputID)), true
	case in.Value == nil:
		return "", false
	}
	if s, ok := in.Value.(string); ok && !in.RequiresQuotedRendering {
		// Numeric and boolean values render verbatim.
		return s, true
	}
	return pyLiteral(in.Value), true
}

func specialOutputs(files map[string]string) []keyValue {
	// The artifact names use dashes where the modifier keys use
	// underscores.
	var out []keyValue
	for _, key := range sortedKeys(files) {
		out = append(out, keyValue{
			Key:   strings.ReplaceAll(key, "_", "-"),
			Value: files[key],
		})
	}
	return out
}

func definitionVar(hash string) string {
	return "component_def_" + shortHash(hash)
}

func factoryVar(hash string) string {
	return "factory_" + shortHash(hash)
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeyValues(m map[string]string) []keyValue {
	var out []keyValue
	for _, k := range sortedKeys(m) {
		out = append(out, keyValue{Key: k, Value: m[k]})
	}
	return out
}

// pyLiteral renders a coerced parameter value as a Python literal.
// Map keys are sorted so rendering is deterministic.
func pyLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return pyQuote(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, elem := range t {
			parts = append(parts, pyLiteral(elem))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		parts := make([]string, 0, len(t))
		for _, k := range sortedKeys(t) {
			parts = append(parts, fmt.Sprintf("%s: %s", pyQuote(k), pyLiteral(t[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// pyQuote renders s as a double-quoted Python string literal.
func pyQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
