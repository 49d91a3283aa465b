package codegen

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/me/kfpc/internal/config"
)

// compilerBinaries maps each workflow engine to the external compiler that
// turns DSL source into a workflow manifest.
var compilerBinaries = map[config.WorkflowEngine]string{
	config.EngineArgo:   "dsl-compile",
	config.EngineTekton: "dsl-compile-tekton",
}

// Compiler compiles generated DSL source into a workflow manifest.
type Compiler interface {
	Compile(ctx context.Context, dsl string, engine config.WorkflowEngine, outputFile string) error
	// Available reports whether the engine's compiler can be invoked on
	// this host.
	Available(engine config.WorkflowEngine) bool
}

// ExternalCompiler runs the engine's compiler as a subprocess.
type ExternalCompiler struct {
	logger *slog.Logger
}

// NewExternalCompiler creates an ExternalCompiler.
func NewExternalCompiler(logger *slog.Logger) *ExternalCompiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExternalCompiler{logger: logger.With("component", "dsl-compiler")}
}

// Available reports whether the engine's compiler binary is on PATH.
func (c *ExternalCompiler) Available(engine config.WorkflowEngine) bool {
	bin, ok := compilerBinaries[engine]
	if !ok {
		return false
	}
	_, err := exec.LookPath(bin)
	return err == nil
}

// Compile writes the DSL source to a scratch file and invokes the engine's
// compiler on it. An engine without a registered compiler is a fatal error
// raised before any work. When the compiler rejects the source, the full
// generated source is logged so the failure can be diagnosed without
// re-running the compilation.
func (c *ExternalCompiler) Compile(ctx context.Context, dsl string, engine config.WorkflowEngine, outputFile string) error {
	bin, ok := compilerBinaries[engine]
	if !ok {
		return fmt.Errorf("no compiler registered for workflow engine %q", engine)
	}

	tempDir, err := os.MkdirTemp("", "kfpc-dsl-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	dslFile := filepath.Join(tempDir, "pipeline_dsl.py")
	if err := os.WriteFile(dslFile, []byte(dsl), 0o644); err != nil {
		return fmt.Errorf("write DSL source: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "--py", dslFile, "--output", outputFile)
	cmd.Stderr = &stderr

	c.logger.Debug("compiling DSL", "compiler", bin, "output", outputFile)
	if err := cmd.Run(); err != nil {
		c.logger.Error("DSL compilation failed, generated source follows")
		c.logger.Error(dsl)
		return fmt.Errorf("compile DSL with %s: %w: %s", bin, err, stderr.String())
	}
	return nil
}
