// Package cli wires the cobra commands of the kfpc binary: submit a
// pipeline to a Kubeflow Pipelines cluster, or export it as generated DSL
// source or a compiled workflow manifest.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/kfpc/internal/codegen"
	"github.com/me/kfpc/internal/compiler"
	"github.com/me/kfpc/internal/config"
	"github.com/me/kfpc/internal/logging"
	"github.com/me/kfpc/internal/processor"
	"github.com/me/kfpc/pkg/component"
)

var (
	flagDebug      bool
	flagLogLevel   string
	flagLogFormat  string
	flagRuntimeDir string
	flagComponents string
	flagImages     string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the kfpc CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kfpc",
		Short: "kfpc compiles pipelines for Kubeflow Pipelines",
		Long:  "kfpc compiles pipeline definitions into Kubeflow Pipelines workflows and submits or exports them.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")
	root.PersistentFlags().StringVar(&flagRuntimeDir, "runtimes", ".", "Directory holding runtime configuration files")
	root.PersistentFlags().StringVar(&flagComponents, "components", "components", "Component catalog directory")
	root.PersistentFlags().StringVar(&flagImages, "images", "", "Image configuration file (pull policies and secrets)")

	root.AddCommand(
		newSubmitCmd(),
		newExportCmd(),
	)

	return root
}

// newProcessor assembles the processor from the persistent flags and the
// process environment.
func newProcessor() (*processor.Processor, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	images, err := loadImageConfigs(flagImages)
	if err != nil {
		return nil, err
	}

	catalog := component.NewDirectoryCatalog(flagComponents)
	generator, err := codegen.NewGenerator()
	if err != nil {
		return nil, err
	}

	return processor.New(processor.Options{
		Settings:    settings,
		Compiler:    compiler.New(settings, catalog, images, logger),
		Generator:   generator,
		DSLCompiler: codegen.NewExternalCompiler(logger),
		NewClient:   processor.NewKFPClientFactory(logger),
		LoadRuntime: loadRuntimeConfig,
		Logger:      logger,
	}), nil
}

// loadRuntimeConfig resolves a runtime configuration name against the
// runtimes directory. An absolute path or a name carrying an extension is
// used as given.
func loadRuntimeConfig(name string) (*config.RuntimeConfig, error) {
	path := name
	if filepath.Ext(path) == "" {
		path += ".yaml"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(flagRuntimeDir, path)
	}
	return config.LoadRuntimeConfig(path)
}

// loadImageConfigs reads the optional image configuration file: a YAML
// list of image name, pull policy, and pull secret entries.
func loadImageConfigs(path string) ([]compiler.ImageConfig, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image configuration: %w", err)
	}
	var entries []struct {
		ImageName  string `yaml:"image_name"`
		PullPolicy string `yaml:"pull_policy"`
		PullSecret string `yaml:"pull_secret"`
	}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse image configuration %s: %w", path, err)
	}
	images := make([]compiler.ImageConfig, 0, len(entries))
	for _, e := range entries {
		images = append(images, compiler.ImageConfig{
			ImageName:  e.ImageName,
			PullPolicy: e.PullPolicy,
			PullSecret: e.PullSecret,
		})
	}
	return images, nil
}
