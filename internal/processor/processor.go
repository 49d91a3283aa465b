// Package processor orchestrates pipeline submission and export: it
// resolves the runtime configuration, compiles the pipeline down to a
// workflow manifest, places dependency artifacts in object storage, and
// drives the Kubeflow Pipelines platform API.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/kfpc/internal/codegen"
	"github.com/me/kfpc/internal/compiler"
	"github.com/me/kfpc/internal/config"
	"github.com/me/kfpc/internal/logging"
	"github.com/me/kfpc/internal/validation"
	"github.com/me/kfpc/pkg/pipeline"
)

// timestampLayout renders submission timestamps as MMDDhhmmss.
const timestampLayout = "0102150405"

// PlatformClient is the Kubeflow Pipelines API surface the processor
// needs. Authentication happens before construction; the processor only
// receives ready-to-use clients.
type PlatformClient interface {
	// ListExperiments is used with a page size of one to verify that the
	// configured namespace is reachable.
	ListExperiments(ctx context.Context, namespace string, pageSize int) error
	// GetPipelineID returns the ID of the named pipeline, or "" when the
	// platform does not know it yet.
	GetPipelineID(ctx context.Context, name string) (string, error)
	UploadPipeline(ctx context.Context, packagePath, name, description string) (pipelineID string, err error)
	UploadPipelineVersion(ctx context.Context, packagePath, versionName, pipelineID string) (versionID string, err error)
	CreateExperiment(ctx context.Context, name, namespace string) (experimentID string, err error)
	RunPipeline(ctx context.Context, experimentID, jobName, pipelineID, versionID string) (runID string, err error)
}

// ClientFactory builds a platform client for a runtime configuration.
type ClientFactory func(ctx context.Context, rc *config.RuntimeConfig) (PlatformClient, error)

// Response reports a successful submission. The object storage fields are
// set only when the pipeline contains generic nodes, since only those
// exchange artifacts through storage.
type Response struct {
	RunID             string
	RunURL            string
	ObjectStorageURL  string
	ObjectStoragePath string
}

// Processor ties the compiler, the code generator, and the platform
// together.
type Processor struct {
	settings    *config.Settings
	compiler    *compiler.Compiler
	generator   *codegen.Generator
	dslCompiler codegen.Compiler
	newClient   ClientFactory
	newUploader UploaderFactory
	loadRuntime func(name string) (*config.RuntimeConfig, error)
	now         func() time.Time
	logger      *slog.Logger
}

// Options configures a Processor. Compiler, Generator, DSLCompiler, and
// NewClient are required; the rest have working defaults.
type Options struct {
	Settings    *config.Settings
	Compiler    *compiler.Compiler
	Generator   *codegen.Generator
	DSLCompiler codegen.Compiler
	NewClient   ClientFactory
	// NewUploader builds the dependency-archive uploader for a runtime
	// configuration. Defaults to the object-storage uploader.
	NewUploader UploaderFactory
	// LoadRuntime resolves a runtime configuration name to its settings.
	// Defaults to reading a YAML file of that name.
	LoadRuntime func(name string) (*config.RuntimeConfig, error)
	Now         func() time.Time
	Logger      *slog.Logger
}

// New creates a Processor.
func New(opts Options) *Processor {
	p := &Processor{
		settings:    opts.Settings,
		compiler:    opts.Compiler,
		generator:   opts.Generator,
		dslCompiler: opts.DSLCompiler,
		newClient:   opts.NewClient,
		newUploader: opts.NewUploader,
		loadRuntime: opts.LoadRuntime,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if p.newUploader == nil {
		p.newUploader = NewStorageUploader
	}
	if p.loadRuntime == nil {
		p.loadRuntime = config.LoadRuntimeConfig
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Process compiles and submits the pipeline. Each submission uploads a new
// pipeline version under the same experiment name and starts a run of it.
func (p *Processor) Process(ctx context.Context, pl *pipeline.Pipeline) (*Response, error) {
	timestamp := p.now().Format(timestampLayout)
	submissionID := uuid.NewString()
	logger := p.logger.With("pipeline", pl.Name, "submission", submissionID)

	rc, engine, err := p.resolveRuntime(pl)
	if err != nil {
		return nil, err
	}

	if issues := validation.ValidateProperties(pl); issues.HasErrors() {
		return nil, issues.Error()
	}

	client, err := p.newClient(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: failed to initialize platform client against %q: %w%s%s",
			pl.Name, rc.APIEndpoint, err, endpointTip(rc.APIEndpoint), runtimeConfigNote(pl.RuntimeConfig))
	}

	if err := client.ListExperiments(ctx, rc.UserNamespace, 1); err != nil {
		tip := " [TIP: you probably need to set a namespace]"
		if rc.UserNamespace != "" {
			tip = fmt.Sprintf(" [TIP: ensure namespace %q is correct]", rc.UserNamespace)
		}
		return nil, fmt.Errorf("pipeline %q: failed to list experiments against %q: %w%s%s",
			pl.Name, rc.APIEndpoint, err, tip, runtimeConfigNote(pl.RuntimeConfig))
	}

	instanceID := fmt.Sprintf("%s-%s", pl.Name, timestamp)
	description := pl.Description
	if description == "" {
		description = fmt.Sprintf("Created with the pipeline editor using `%s`.", pl.Source)
	}

	logger.Info("submitting pipeline", "engine", engine)

	var uploader compiler.Uploader
	if pl.ContainsGenericNodes() {
		uploader, err = p.newUploader(ctx, rc, p.settings, p.logger)
		if err != nil {
			return nil, err
		}
	}

	// Pipeline ID decides the version name: the first version of a
	// pipeline carries the pipeline name itself.
	pipelineID, err := client.GetPipelineID(ctx, pl.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get ID of pipeline %q: %w", pl.Name, err)
	}
	versionName := pl.Name
	if pipelineID != "" {
		versionName = instanceID
	}

	tempDir, err := os.MkdirTemp("", "kfpc-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tempDir)
	packagePath := filepath.Join(tempDir, pl.Name+".tar.gz")

	t0 := p.now()
	if err := p.compileToFile(ctx, pl, compiler.Options{
		PipelineName:   pl.Name,
		InstanceID:     instanceID,
		Version:        versionName,
		ExperimentName: strings.ToLower(pl.Name),
		Engine:         engine,
		Runtime:        rc,
		Uploader:       uploader,
	}, packagePath); err != nil {
		return nil, err
	}
	logging.PipelineEvent(logger, pl.Name, "pipeline compiled", t0)

	versionID := ""
	if pipelineID == "" {
		pipelineID, err = client.UploadPipeline(ctx, packagePath, pl.Name, description)
		if err != nil {
			return nil, fmt.Errorf("failed to upload pipeline %q: %w%s%s",
				pl.Name, err, endpointTip(rc.APIEndpoint), runtimeConfigNote(pl.RuntimeConfig))
		}
		// The initial version shares the pipeline's ID.
		versionID = pipelineID
	} else {
		versionID, err = client.UploadPipelineVersion(ctx, packagePath, versionName, pipelineID)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: failed to upload pipeline version %q: %w%s%s",
				pl.Name, versionName, err, endpointTip(rc.APIEndpoint), runtimeConfigNote(pl.RuntimeConfig))
		}
	}
	logging.PipelineEvent(logger, pl.Name, "pipeline uploaded", t0)

	// Experiment names are case insensitive on the platform.
	experimentName := strings.ToLower(pl.Name)
	experimentID, err := client.CreateExperiment(ctx, experimentName, rc.UserNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create experiment %q: %w", experimentName, err)
	}
	logger.Info("created experiment", "experiment", experimentName)

	runID, err := client.RunPipeline(ctx, experimentID, instanceID, pipelineID, versionID)
	if err != nil || runID == "" {
		if err == nil {
			err = fmt.Errorf("platform returned no run")
		}
		return nil, fmt.Errorf("failed to create pipeline run %q: %w", instanceID, err)
	}

	resp := &Response{
		RunID:  runID,
		RunURL: fmt.Sprintf("%s/#/runs/details/%s", rc.PublicAPIEndpoint, runID),
	}
	if pl.ContainsGenericNodes() {
		resp.ObjectStorageURL = rc.PublicCOSEndpoint
		resp.ObjectStoragePath = "/" + rc.COSBucket + "/" +
			config.JoinPaths(pl.Properties[pipeline.COSObjectPrefix], instanceID)
	}
	logger.Info("pipeline submitted", "run_url", resp.RunURL)
	return resp, nil
}

// Export writes the pipeline either as generated DSL source ("py") or as a
// compiled workflow manifest ("yaml"). The returned path is the caller's
// path, not its absolute form.
func (p *Processor) Export(ctx context.Context, pl *pipeline.Pipeline, format, exportPath string, overwrite bool) (string, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format != "py" && format != "yaml" {
		return "", fmt.Errorf("unsupported export format %q: must be \"py\" or \"yaml\"", format)
	}

	rc, engine, err := p.resolveRuntime(pl)
	if err != nil {
		return "", err
	}

	absPath := exportPath
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(p.settings.RootDir, absPath)
	}
	if _, err := os.Stat(absPath); err == nil && !overwrite {
		return "", fmt.Errorf("file %s already exists", absPath)
	}

	if issues := validation.ValidateProperties(pl); issues.HasErrors() {
		return "", issues.Error()
	}

	timestamp := p.now().Format(timestampLayout)
	instanceID := fmt.Sprintf("%s-%s", pl.Name, timestamp)

	wf, err := p.compiler.Compile(ctx, pl, compiler.Options{
		PipelineName:   pl.Name,
		InstanceID:     instanceID,
		Version:        instanceID,
		ExperimentName: strings.ToLower(pl.Name),
		Engine:         engine,
		Runtime:        rc,
		Export:         true,
	})
	if err != nil {
		return "", err
	}
	dsl, err := p.generator.Generate(wf, engine)
	if err != nil {
		return "", err
	}

	p.logger.Info("exporting pipeline", "pipeline", pl.Name, "format", format, "path", exportPath)
	if format == "py" {
		if err := os.WriteFile(absPath, []byte(dsl), 0o644); err != nil {
			return "", fmt.Errorf("write exported DSL to %s: %w", absPath, err)
		}
		return exportPath, nil
	}
	if err := p.dslCompiler.Compile(ctx, dsl, engine, absPath); err != nil {
		return "", err
	}
	return exportPath, nil
}

// resolveRuntime loads and normalizes the pipeline's runtime configuration
// and checks that the selected engine's compiler is usable.
func (p *Processor) resolveRuntime(pl *pipeline.Pipeline) (*config.RuntimeConfig, config.WorkflowEngine, error) {
	rc, err := p.loadRuntime(pl.RuntimeConfig)
	if err != nil {
		return nil, "", fmt.Errorf("resolve runtime configuration %q: %w", pl.RuntimeConfig, err)
	}
	normalized := rc.Normalized()

	engine, err := config.ParseWorkflowEngine(normalized.Engine)
	if err != nil {
		return nil, "", fmt.Errorf("runtime configuration %q: %w", pl.RuntimeConfig, err)
	}
	if engine == config.EngineTekton && !p.dslCompiler.Available(engine) {
		return nil, "", fmt.Errorf("the compiler for workflow engine %q is not installed", engine)
	}
	return &normalized, engine, nil
}

// compileToFile renders the workflow DSL and compiles it into a workflow
// package at outputFile.
func (p *Processor) compileToFile(ctx context.Context, pl *pipeline.Pipeline, opts compiler.Options, outputFile string) error {
	wf, err := p.compiler.Compile(ctx, pl, opts)
	if err != nil {
		return err
	}
	dsl, err := p.generator.Generate(wf, opts.Engine)
	if err != nil {
		return err
	}
	return p.dslCompiler.Compile(ctx, dsl, opts.Engine, outputFile)
}

// runtimeConfigNote points a failed platform call back at the runtime
// configuration that produced the client.
func runtimeConfigNote(name string) string {
	return fmt.Sprintf(" Check Kubeflow Pipelines runtime configuration: '%s'.", name)
}

// endpointTip suggests the conventional endpoint path when client
// construction or uploads fail; forgetting the "/pipeline" suffix is the
// most common misconfiguration.
func endpointTip(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Path == "/pipeline" {
		return ""
	}
	u.Path = "/pipeline"
	return fmt.Sprintf(" [TIP: did you mean to set %q as the endpoint, take care not to include 's' at end]", u.String())
}
