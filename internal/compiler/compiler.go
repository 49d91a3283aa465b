// Package compiler walks a validated pipeline graph and produces, per node,
// a fully resolved task descriptor ready for code generation, plus the
// ordering, naming, and propagation that make the result deterministic and
// collision-free.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/me/kfpc/internal/cmdline"
	"github.com/me/kfpc/internal/config"
	"github.com/me/kfpc/internal/graph"
	"github.com/me/kfpc/internal/literal"
	"github.com/me/kfpc/internal/sanitize"
	"github.com/me/kfpc/pkg/component"
	"github.com/me/kfpc/pkg/pipeline"
)

// RunIDPlaceholder is substituted by the Argo-backed engine with the actual
// run identifier at execution time. The Tekton engine derives the run name
// from an annotation it manages itself and only needs a fixed placeholder.
const (
	RunIDPlaceholder   = "{{workflow.uid}}"
	tektonRunNameValue = "dummy value"
)

// Reserved environment variable names. System values always take precedence
// over same-named user declarations.
const (
	envRuntime      = "ELYRA_RUNTIME_ENV"
	envPipelineInfo = "ELYRA_ENABLE_PIPELINE_INFO"
	envWritableDir  = "ELYRA_WRITABLE_CONTAINER_DIR"
	envAccessKey    = "AWS_ACCESS_KEY_ID"
	envSecretKey    = "AWS_SECRET_ACCESS_KEY"
	envGPUVendor    = "GPU_VENDOR"
)

const runtimeName = "kfp"

// ImageConfig registers per-image settings: an optional pull policy and an
// optional pull secret for private registries. Lookup is by exact image
// name.
type ImageConfig struct {
	ImageName  string
	PullPolicy string
	PullSecret string
}

// Uploader places a generic node's dependency archive in object storage.
// Upload failures are fatal to the compilation run.
type Uploader interface {
	UploadDependencies(ctx context.Context, node *pipeline.Node, objectPrefix string) error
}

// Options parameterize one compilation run.
type Options struct {
	PipelineName string
	// InstanceID is the per-run identity (name plus timestamp) under
	// which dependency artifacts are stored.
	InstanceID     string
	Version        string
	ExperimentName string
	Engine         config.WorkflowEngine
	// Runtime supplies object-storage settings; required when the
	// pipeline contains generic nodes.
	Runtime *config.RuntimeConfig
	// Export suppresses side effects (archive upload, storage secret
	// attachment) for source-only exports.
	Export bool
	// Uploader receives one call per generic node. Nil skips uploads.
	Uploader Uploader
}

// Compiler builds workflow task descriptors from pipeline graphs.
type Compiler struct {
	settings *config.Settings
	catalog  component.Catalog
	images   []ImageConfig
	composer *cmdline.Composer
	logger   *slog.Logger
}

// New creates a Compiler.
func New(settings *config.Settings, catalog component.Catalog, images []ImageConfig, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		settings: settings,
		catalog:  catalog,
		images:   images,
		composer: cmdline.NewComposer(settings),
		logger:   logger,
	}
}

// Compile resolves the pipeline into an assembled Workflow: one task
// descriptor per node in topological order, deduplicated component
// definitions, and the pipeline-level configuration.
//
// Any failure while composing a node's descriptor aborts the whole run;
// no partial task list is returned.
func (c *Compiler) Compile(ctx context.Context, p *pipeline.Pipeline, opts Options) (*Workflow, error) {
	if opts.InstanceID == "" {
		opts.InstanceID = opts.PipelineName
	}

	ordered, err := graph.Sort(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", p.Name, err)
	}

	// Artifacts produced anywhere upstream become visible to every
	// downstream consumer.
	graph.Propagate(p, ordered)

	// Scrub node labels and enforce collision-free names. The registry
	// is the only mutable cross-node state in the loop.
	registry := sanitize.NewNameRegistry()
	for _, node := range ordered {
		node.Name = registry.Unique(sanitize.Label(node.DisplayName()))
	}

	artifactPrefix := config.JoinPaths(p.Properties[pipeline.COSObjectPrefix], opts.InstanceID)

	wf := &Workflow{
		PipelineName:        opts.PipelineName,
		PipelineDescription: p.Description,
		Tasks:               make(map[string]*WorkflowTask, len(ordered)),
		Order:               make([]string, 0, len(ordered)),
		Definitions:         map[string]string{},
	}

	for _, node := range ordered {
		task, err := c.buildTask(ctx, p, node, artifactPrefix, opts)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: node %q (%s): %w", p.Name, node.Name, node.ID, err)
		}
		c.logger.Debug("task descriptor built", "task", task.Name, "id", task.ID)
		wf.Tasks[task.ID] = task
		wf.Order = append(wf.Order, task.ID)
		wf.Definitions[task.DefinitionHash] = task.ComponentDefinition
	}

	wf.Conf = c.buildPipelineConf(p)
	return wf, nil
}

func (c *Compiler) buildTask(ctx context.Context, p *pipeline.Pipeline, node *pipeline.Node, artifactPrefix string, opts Options) (*WorkflowTask, error) {
	task := &WorkflowTask{
		ID:          node.ID,
		EscapedID:   sanitize.EscapedID(node.ID),
		Name:        node.Name,
		Doc:         node.Doc,
		UpstreamIDs: append([]string(nil), node.ParentIDs...),
		Inputs:      map[string]*TaskInput{},
		Outputs:     map[string]TaskOutput{},
		Modifiers:   newModifiers(),
	}

	// Cross-cutting platform properties first; the generic branch then
	// layers its system-reserved entries on top.
	for _, prop := range node.Properties {
		applyProperty(&task.Modifiers, prop)
	}

	switch node.Kind {
	case pipeline.KindGeneric:
		if err := c.buildGenericTask(ctx, p, node, task, artifactPrefix, opts); err != nil {
			return nil, err
		}
	case pipeline.KindCustom:
		if err := c.buildCustomTask(p, node, task); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown node kind %q", node.Kind)
	}

	return task, nil
}

func (c *Compiler) buildGenericTask(ctx context.Context, p *pipeline.Pipeline, node *pipeline.Node, task *WorkflowTask, artifactPrefix string, opts Options) error {
	rc := opts.Runtime
	if rc == nil {
		return fmt.Errorf("pipeline contains generic nodes but no runtime configuration was supplied")
	}

	task.UsesCustomComponent = false

	command, err := c.composer.Compose(cmdline.Args{
		PipelineName: opts.PipelineName,
		COSEndpoint:  rc.COSEndpoint,
		COSBucket:    rc.COSBucket,
		COSDirectory: artifactPrefix,
		Archive:      node.ArchiveName(),
		Filename:     node.Filename,
		Inputs:       node.Inputs,
		Outputs:      node.Outputs,
	})
	if err != nil {
		return err
	}

	task.ComponentDefinition = genericComponentDefinition(node.RuntimeImage, command)
	task.DefinitionHash = contentHash(task.ComponentDefinition)

	// Environment variables: system-reserved keys override any
	// same-named user declarations collected from node properties.
	envs := task.Modifiers.EnvVariables
	envs[envRuntime] = runtimeName
	envs[envPipelineInfo] = "True"
	envs[envWritableDir] = c.settings.WritableContainerDir
	if rc.COSSecret == "" {
		envs[envAccessKey] = rc.COSUsername
		envs[envSecretKey] = rc.COSPassword
	} else {
		// Credentials are resolved from the secret at run time;
		// literal values must not appear in the descriptor.
		delete(envs, envAccessKey)
		delete(envs, envSecretKey)
		if !opts.Export {
			// use_aws_secret injects the AWS credential pair itself, so
			// the secret refs are not added a second time here.
			task.Modifiers.ObjectStorageSecret = rc.COSSecret
		}
	}

	// Fixed output files read by the platform's metric and UI-metadata
	// viewers.
	task.Modifiers.SpecialOutputFiles = map[string]string{
		"mlpipeline_ui_metadata": c.settings.WritableContainerDir + "/mlpipeline-ui-metadata.json",
		"mlpipeline_metrics":     c.settings.WritableContainerDir + "/mlpipeline-metrics.json",
	}

	for _, img := range c.images {
		if img.ImageName == node.RuntimeImage && img.PullPolicy != "" {
			task.Modifiers.ImagePullPolicy = pullPolicy(img.PullPolicy)
			break
		}
	}

	task.Modifiers.CPURequest = node.CPU
	task.Modifiers.MemRequest = &MemSize{Size: node.Memory, Units: "G"}
	// The vendor default piggybacks on the env map collected above;
	// GPU_VENDOR may have been declared as a node env var.
	vendor := envs[envGPUVendor]
	if vendor == "" {
		vendor = "nvidia"
	}
	task.Modifiers.GPU = &GPULimit{Size: node.GPU, Vendor: vendor}

	if c.settings.CRIORuntime {
		task.Modifiers.CRIORuntime = &CRIOVolume{
			EmptyDirVolumeSize: cmdline.CRIOEmptyDirVolumeSize,
			EmptyDirVolumeName: cmdline.CRIOEmptyDirVolumeName,
			EmptyDirMountPath:  cmdline.CRIOEmptyDirMountPath,
		}
		envs["PYTHONPATH"] = cmdline.CRIOPythonUserLibPath
	}

	// Identifying metadata. Label values pass through the resource-value
	// sanitizer; labels have a stricter character set than task names.
	task.Modifiers.PodLabels["elyra/node-type"] = sanitize.LabelValue("notebook-script")
	task.Modifiers.PodLabels["elyra/pipeline-name"] = sanitize.LabelValue(opts.PipelineName)
	task.Modifiers.PodLabels["elyra/pipeline-version"] = sanitize.LabelValue(opts.Version)
	task.Modifiers.PodLabels["elyra/experiment-name"] = sanitize.LabelValue(opts.ExperimentName)
	task.Modifiers.PodLabels["elyra/node-name"] = sanitize.LabelValue(node.Name)

	task.Modifiers.PodAnnotations["elyra/node-file-name"] = node.Filename
	if p.Source != "" {
		task.Modifiers.PodAnnotations["elyra/pipeline-source"] = p.Source
	}

	if opts.Engine == config.EngineTekton {
		task.Modifiers.RunName = tektonRunNameValue
	} else {
		task.Modifiers.RunName = RunIDPlaceholder
	}

	if opts.Uploader != nil && !opts.Export {
		if err := opts.Uploader.UploadDependencies(ctx, node, artifactPrefix); err != nil {
			return fmt.Errorf("upload dependency archive %s: %w", node.ArchiveName(), err)
		}
	}

	return nil
}

func (c *Compiler) buildCustomTask(p *pipeline.Pipeline, node *pipeline.Node, task *WorkflowTask) error {
	task.UsesCustomComponent = true

	comp, err := c.catalog.Get(p.Runtime, node.Classifier)
	if err != nil {
		return fmt.Errorf("resolve component %q: %w", node.Classifier, err)
	}

	task.ComponentDefinition = comp.Definition
	task.DefinitionHash = contentHash(comp.Definition)

	// Seed inputs and outputs from the component's parameter schema.
	for _, in := range comp.Inputs {
		dataType := in.DataType()
		task.Inputs[sanitize.ParamName(in.Name)] = &TaskInput{
			DataType:                dataType,
			RequiresQuotedRendering: requiresQuotes(dataType),
		}
	}
	for _, out := range comp.Outputs {
		task.Outputs[sanitize.ParamName(out.Name)] = TaskOutput{DataType: out.DataType()}
	}

	// Assign values from the node's parameters, routing each property
	// either into a declared input slot or into the modifier bag.
	for _, prop := range comp.Properties {
		if !prop.AcceptsInput() {
			continue
		}

		name := sanitize.ParamName(prop.Ref)
		ref, isInput := task.Inputs[name]
		if !isInput {
			ref = &TaskInput{}
			task.Modifiers.Custom[name] = ref
		}

		pv, declared := node.ComponentParams[prop.Ref]
		if declared && pv.Widget == "inputpath" {
			// The value is the output of an upstream task.
			ref.OutputRef = &OutputRef{
				TaskID:   sanitize.EscapedID(pv.NodeID),
				OutputID: sanitize.ParamName(strings.ReplaceAll(pv.Option, "output_", "")),
			}
			continue
		}

		value, present, err := c.resolveRawValue(pv, declared)
		if err != nil {
			return fmt.Errorf("property %q: %w", prop.Ref, err)
		}
		if !present {
			if prop.Default == "" {
				continue
			}
			value = prop.Default
		}

		switch prop.JSONDataType {
		case "object":
			ref.Value = literal.ParseDict(value)
		case "array":
			ref.Value = literal.ParseList(value)
		default:
			ref.Value = value
		}
	}

	return nil
}

// resolveRawValue resolves a property's raw string value. A declared empty
// string is a value in its own right and does not fall back to the schema
// default; only an undeclared property is absent. "file" widgets read the
// file's contents from a path anchored at the configured root directory; a
// missing path or an empty file yields absent rather than an empty string.
func (c *Compiler) resolveRawValue(pv pipeline.ParamValue, declared bool) (string, bool, error) {
	if !declared {
		return "", false, nil
	}
	if pv.Widget != "file" {
		return pv.Value, true, nil
	}
	if pv.Value == "" {
		return "", false, nil
	}

	path := pv.Value
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.settings.RootDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read property value file: %w", err)
	}
	if len(data) == 0 {
		return "", false, nil
	}
	return string(data), true, nil
}

// buildPipelineConf collects pipeline-level configuration: image pull
// secrets for the generic nodes' container images, deduplicated and sorted
// for determinism.
func (c *Compiler) buildPipelineConf(p *pipeline.Pipeline) *PipelineConf {
	seen := map[string]bool{}
	var secrets []string
	for _, node := range p.Nodes {
		if node.Kind != pipeline.KindGeneric {
			continue
		}
		for _, img := range c.images {
			if img.ImageName != node.RuntimeImage {
				continue
			}
			if img.PullSecret != "" && !seen[img.PullSecret] {
				seen[img.PullSecret] = true
				secrets = append(secrets, img.PullSecret)
			}
			break
		}
	}
	sort.Strings(secrets)
	return &PipelineConf{ImagePullSecrets: secrets}
}

// genericComponentDefinition renders the component definition text for a
// generic node. Nodes producing byte-identical definitions share one
// physical template after deduplication.
func genericComponentDefinition(image, command string) string {
	var b strings.Builder
	b.WriteString("name: Run a file\n")
	b.WriteString("description: Run a Jupyter notebook or Python/R script\n")
	b.WriteString("implementation:\n")
	b.WriteString("  container:\n")
	fmt.Fprintf(&b, "    image: %s\n", image)
	b.WriteString("    command: [sh, -c]\n")
	b.WriteString("    args:\n")
	fmt.Fprintf(&b, "    - |-\n      %s\n", command)
	return b.String()
}

// requiresQuotes reports whether values of the given type render quoted in
// generated code.
func requiresQuotes(dataType string) bool {
	switch dataType {
	case "integer", "float", "bool":
		return false
	default:
		return true
	}
}

// pullPolicy maps a configured pull-policy string onto the Kubernetes
// constant, tolerating lowercase configuration values.
func pullPolicy(value string) corev1.PullPolicy {
	switch strings.ToLower(value) {
	case "always":
		return corev1.PullAlways
	case "never":
		return corev1.PullNever
	case "ifnotpresent":
		return corev1.PullIfNotPresent
	default:
		return corev1.PullPolicy(value)
	}
}

// contentHash returns the hex SHA-256 of text.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
