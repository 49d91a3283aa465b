package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/me/kfpc/internal/config"
	"github.com/me/kfpc/pkg/component"
	"github.com/me/kfpc/pkg/pipeline"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := &config.Settings{
		WritableContainerDir: "/tmp",
		GithubOrg:            "elyra-ai",
		GithubBranch:         "main",
		RootDir:              t.TempDir(),
	}
	s.ApplyDefaults()
	return s
}

func testRuntime() *config.RuntimeConfig {
	return &config.RuntimeConfig{
		Name:        "test",
		APIEndpoint: "http://kfp.example.com",
		Engine:      "argo",
		COSEndpoint: "http://minio.example.com:9000",
		COSBucket:   "artifacts",
		COSUsername: "minioadmin",
		COSPassword: "miniopass",
	}
}

func testOptions() Options {
	return Options{
		PipelineName:   "untitled",
		InstanceID:     "untitled-0815120000",
		Version:        "untitled-0815120000",
		ExperimentName: "untitled",
		Engine:         config.EngineArgo,
		Runtime:        testRuntime(),
	}
}

func genericNode(id, name, filename string, parents ...string) *pipeline.Node {
	return &pipeline.Node{
		ID:           id,
		Name:         name,
		Kind:         pipeline.KindGeneric,
		ParentIDs:    parents,
		Filename:     filename,
		RuntimeImage: "tensorflow/tensorflow:2.8.0",
	}
}

func testPipeline(nodes ...*pipeline.Node) *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		ID:      "pipeline-1",
		Name:    "untitled",
		Runtime: "KUBEFLOW_PIPELINES",
		Source:  "untitled.pipeline",
		Nodes:   map[string]*pipeline.Node{},
		Properties: map[string]string{
			pipeline.COSObjectPrefix: "project/dir",
		},
	}
	for _, n := range nodes {
		p.Nodes[n.ID] = n
	}
	return p
}

type fakeCatalog map[string]*component.Component

func (f fakeCatalog) Get(runtimeType, classifier string) (*component.Component, error) {
	c, ok := f[classifier]
	if !ok {
		return nil, fmt.Errorf("component %q not found for runtime %q", classifier, runtimeType)
	}
	return c, nil
}

type fakeUploader struct {
	calls    []string
	prefixes []string
	err      error
}

func (u *fakeUploader) UploadDependencies(_ context.Context, node *pipeline.Node, prefix string) error {
	u.calls = append(u.calls, node.ArchiveName())
	u.prefixes = append(u.prefixes, prefix)
	return u.err
}

func TestCompileGenericTask(t *testing.T) {
	node := genericNode("node-1", "load data.py", "nb/load data.py")
	node.CPU = "2"
	node.Memory = 4
	node.GPU = 1
	p := testPipeline(node)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	task := wf.Tasks["node-1"]
	if task == nil {
		t.Fatal("Compile() produced no task for node-1")
	}
	if task.UsesCustomComponent {
		t.Error("UsesCustomComponent = true, want false")
	}
	if task.Name != "load-data" {
		t.Errorf("Name = %q, want %q", task.Name, "load-data")
	}
	if task.EscapedID != "node_1" {
		t.Errorf("EscapedID = %q, want %q", task.EscapedID, "node_1")
	}

	def := task.ComponentDefinition
	for _, want := range []string{
		"image: tensorflow/tensorflow:2.8.0",
		"--pipeline-name 'untitled'",
		"--cos-directory 'project/dir/untitled-0815120000'",
		"--cos-dependencies-archive 'load data-node-1.tar.gz'",
		"--file 'nb/load data.py'",
	} {
		if !strings.Contains(def, want) {
			t.Errorf("ComponentDefinition missing %q:\n%s", want, def)
		}
	}
	if got := wf.Definitions[task.DefinitionHash]; got != def {
		t.Error("definition not registered under its content hash")
	}

	envs := task.Modifiers.EnvVariables
	for key, want := range map[string]string{
		"ELYRA_RUNTIME_ENV":            "kfp",
		"ELYRA_ENABLE_PIPELINE_INFO":   "True",
		"ELYRA_WRITABLE_CONTAINER_DIR": "/tmp",
		"AWS_ACCESS_KEY_ID":            "minioadmin",
		"AWS_SECRET_ACCESS_KEY":        "miniopass",
	} {
		if envs[key] != want {
			t.Errorf("env %s = %q, want %q", key, envs[key], want)
		}
	}

	if got := task.Modifiers.SpecialOutputFiles["mlpipeline_metrics"]; got != "/tmp/mlpipeline-metrics.json" {
		t.Errorf("mlpipeline_metrics = %q, want %q", got, "/tmp/mlpipeline-metrics.json")
	}
	if got := task.Modifiers.SpecialOutputFiles["mlpipeline_ui_metadata"]; got != "/tmp/mlpipeline-ui-metadata.json" {
		t.Errorf("mlpipeline_ui_metadata = %q, want %q", got, "/tmp/mlpipeline-ui-metadata.json")
	}

	if task.Modifiers.CPURequest != "2" {
		t.Errorf("CPURequest = %q, want %q", task.Modifiers.CPURequest, "2")
	}
	if task.Modifiers.MemRequest == nil || task.Modifiers.MemRequest.Size != 4 || task.Modifiers.MemRequest.Units != "G" {
		t.Errorf("MemRequest = %+v, want size 4 units G", task.Modifiers.MemRequest)
	}
	if task.Modifiers.GPU == nil || task.Modifiers.GPU.Size != 1 || task.Modifiers.GPU.Vendor != "nvidia" {
		t.Errorf("GPU = %+v, want size 1 vendor nvidia", task.Modifiers.GPU)
	}

	if got := task.Modifiers.RunName; got != RunIDPlaceholder {
		t.Errorf("RunName = %q, want %q", got, RunIDPlaceholder)
	}

	labels := task.Modifiers.PodLabels
	if labels["elyra/node-type"] != "notebook-script" {
		t.Errorf("node-type label = %q, want %q", labels["elyra/node-type"], "notebook-script")
	}
	if labels["elyra/node-name"] != "load-data" {
		t.Errorf("node-name label = %q, want %q", labels["elyra/node-name"], "load-data")
	}
	if got := task.Modifiers.PodAnnotations["elyra/node-file-name"]; got != "nb/load data.py" {
		t.Errorf("node-file-name annotation = %q, want %q", got, "nb/load data.py")
	}
	if got := task.Modifiers.PodAnnotations["elyra/pipeline-source"]; got != "untitled.pipeline" {
		t.Errorf("pipeline-source annotation = %q, want %q", got, "untitled.pipeline")
	}
}

func TestCompileGPUVendorFromEnv(t *testing.T) {
	node := genericNode("node-1", "train.py", "train.py")
	node.GPU = 2
	node.Properties = []pipeline.Property{
		pipeline.EnvVar{Name: "GPU_VENDOR", Value: "amd"},
	}
	p := testPipeline(node)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	gpu := wf.Tasks["node-1"].Modifiers.GPU
	if gpu == nil || gpu.Vendor != "amd" {
		t.Errorf("GPU = %+v, want vendor amd", gpu)
	}
}

func TestCompileReservedEnvPrecedence(t *testing.T) {
	node := genericNode("node-1", "train.py", "train.py")
	node.Properties = []pipeline.Property{
		pipeline.EnvVar{Name: "ELYRA_RUNTIME_ENV", Value: "spoofed"},
		pipeline.EnvVar{Name: "MY_VAR", Value: "my-value"},
	}
	p := testPipeline(node)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	envs := wf.Tasks["node-1"].Modifiers.EnvVariables
	if envs["ELYRA_RUNTIME_ENV"] != "kfp" {
		t.Errorf("ELYRA_RUNTIME_ENV = %q, want %q", envs["ELYRA_RUNTIME_ENV"], "kfp")
	}
	if envs["MY_VAR"] != "my-value" {
		t.Errorf("MY_VAR = %q, want %q", envs["MY_VAR"], "my-value")
	}
}

func TestCompileSecretCredentials(t *testing.T) {
	rt := testRuntime()
	rt.COSSecret = "cos-secret"

	opts := testOptions()
	opts.Runtime = rt

	node := genericNode("node-1", "train.py", "train.py")
	p := testPipeline(node)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	m := wf.Tasks["node-1"].Modifiers
	if _, ok := m.EnvVariables["AWS_ACCESS_KEY_ID"]; ok {
		t.Error("literal AWS_ACCESS_KEY_ID present despite configured secret")
	}
	if _, ok := m.EnvVariables["AWS_SECRET_ACCESS_KEY"]; ok {
		t.Error("literal AWS_SECRET_ACCESS_KEY present despite configured secret")
	}
	if m.ObjectStorageSecret != "cos-secret" {
		t.Errorf("ObjectStorageSecret = %q, want %q", m.ObjectStorageSecret, "cos-secret")
	}
	// use_aws_secret injects the credential pair on its own; explicit
	// secret refs would duplicate the env entries in the pod spec.
	if len(m.SecretEnvVariables) != 0 {
		t.Errorf("SecretEnvVariables = %v, want none alongside the storage secret", m.SecretEnvVariables)
	}
}

func TestCompileSecretSkippedOnExport(t *testing.T) {
	rt := testRuntime()
	rt.COSSecret = "cos-secret"

	opts := testOptions()
	opts.Runtime = rt
	opts.Export = true

	p := testPipeline(genericNode("node-1", "train.py", "train.py"))

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	m := wf.Tasks["node-1"].Modifiers
	if m.ObjectStorageSecret != "" {
		t.Errorf("ObjectStorageSecret = %q, want empty on export", m.ObjectStorageSecret)
	}
	if len(m.SecretEnvVariables) != 0 {
		t.Errorf("SecretEnvVariables = %v, want empty on export", m.SecretEnvVariables)
	}
}

func TestCompileTektonRunName(t *testing.T) {
	opts := testOptions()
	opts.Engine = config.EngineTekton

	p := testPipeline(genericNode("node-1", "train.py", "train.py"))

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := wf.Tasks["node-1"].Modifiers.RunName; got != tektonRunNameValue {
		t.Errorf("RunName = %q, want %q", got, tektonRunNameValue)
	}
}

func TestCompileUniqueTaskNames(t *testing.T) {
	p := testPipeline(
		genericNode("a", "train.py", "train.py"),
		genericNode("b", "train.py", "train.py", "a"),
		genericNode("c", "train.py", "train.py", "b"),
	)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := []string{"train", "train_1", "train_2"}
	var got []string
	for _, task := range wf.OrderedTasks() {
		got = append(got, task.Name)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("task names = %v, want %v", got, want)
	}
}

func TestCompileDeterministicOrder(t *testing.T) {
	build := func() *pipeline.Pipeline {
		return testPipeline(
			genericNode("root", "a.py", "a.py"),
			genericNode("left", "b.py", "b.py", "root"),
			genericNode("right", "c.py", "c.py", "root"),
			genericNode("sink", "d.py", "d.py", "left", "right"),
		)
	}

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	first, err := c.Compile(context.Background(), build(), testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := c.Compile(context.Background(), build(), testOptions())
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if !reflect.DeepEqual(again.Order, first.Order) {
			t.Fatalf("Order = %v, want %v", again.Order, first.Order)
		}
	}
}

func TestCompileCycleFails(t *testing.T) {
	p := testPipeline(
		genericNode("a", "a.py", "a.py", "b"),
		genericNode("b", "b.py", "b.py", "a"),
	)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	if _, err := c.Compile(context.Background(), p, testOptions()); err == nil {
		t.Fatal("Compile() error = nil, want cycle error")
	}
}

func TestCompileOutputPropagation(t *testing.T) {
	producer := genericNode("a", "produce.py", "produce.py")
	producer.Outputs = []string{"f.txt"}
	middle := genericNode("b", "relay.py", "relay.py", "a")
	consumer := genericNode("c", "consume.py", "consume.py", "b")

	p := testPipeline(producer, middle, consumer)

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	def := wf.Tasks["c"].ComponentDefinition
	if !strings.Contains(def, "--inputs 'f.txt'") {
		t.Errorf("consumer command missing propagated input:\n%s", def)
	}
}

func TestCompileGenericWithoutRuntime(t *testing.T) {
	opts := testOptions()
	opts.Runtime = nil

	p := testPipeline(genericNode("node-1", "train.py", "train.py"))

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	_, err := c.Compile(context.Background(), p, opts)
	if err == nil {
		t.Fatal("Compile() error = nil, want missing runtime configuration error")
	}
	if !strings.Contains(err.Error(), "node-1") {
		t.Errorf("error %q does not name the failing node", err)
	}
}

func TestCompileUploader(t *testing.T) {
	p := testPipeline(genericNode("node-1", "train.py", "train.py"))

	up := &fakeUploader{}
	opts := testOptions()
	opts.Uploader = up

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	if _, err := c.Compile(context.Background(), p, opts); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(up.calls) != 1 || up.calls[0] != "train-node-1.tar.gz" {
		t.Errorf("uploads = %v, want [train-node-1.tar.gz]", up.calls)
	}
	if up.prefixes[0] != "project/dir/untitled-0815120000" {
		t.Errorf("upload prefix = %q, want %q", up.prefixes[0], "project/dir/untitled-0815120000")
	}

	t.Run("skipped on export", func(t *testing.T) {
		up := &fakeUploader{}
		opts := testOptions()
		opts.Uploader = up
		opts.Export = true
		if _, err := c.Compile(context.Background(), testPipeline(genericNode("node-1", "train.py", "train.py")), opts); err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if len(up.calls) != 0 {
			t.Errorf("uploads = %v, want none on export", up.calls)
		}
	})

	t.Run("failure is fatal", func(t *testing.T) {
		up := &fakeUploader{err: errors.New("bucket unreachable")}
		opts := testOptions()
		opts.Uploader = up
		_, err := c.Compile(context.Background(), testPipeline(genericNode("node-1", "train.py", "train.py")), opts)
		if err == nil || !strings.Contains(err.Error(), "bucket unreachable") {
			t.Errorf("Compile() error = %v, want upload failure", err)
		}
	})
}

func TestCompileCRIORuntime(t *testing.T) {
	s := testSettings(t)
	s.CRIORuntime = true

	p := testPipeline(genericNode("node-1", "train.py", "train.py"))

	c := New(s, fakeCatalog{}, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	m := wf.Tasks["node-1"].Modifiers
	if m.CRIORuntime == nil {
		t.Fatal("CRIORuntime modifier not set")
	}
	if m.CRIORuntime.EmptyDirVolumeSize != "20Gi" || m.CRIORuntime.EmptyDirVolumeName != "workspace" {
		t.Errorf("CRIORuntime = %+v", m.CRIORuntime)
	}
	if m.EnvVariables["PYTHONPATH"] == "" {
		t.Error("PYTHONPATH not set for restricted runtime")
	}
}

func TestCompileImageConfig(t *testing.T) {
	images := []ImageConfig{
		{ImageName: "tensorflow/tensorflow:2.8.0", PullPolicy: "always", PullSecret: "registry-secret"},
		{ImageName: "other/image:1.0", PullSecret: "other-secret"},
	}

	p := testPipeline(
		genericNode("a", "a.py", "a.py"),
		genericNode("b", "b.py", "b.py"),
	)

	c := New(testSettings(t), fakeCatalog{}, images, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if got := wf.Tasks["a"].Modifiers.ImagePullPolicy; string(got) != "Always" {
		t.Errorf("ImagePullPolicy = %q, want %q", got, "Always")
	}
	// Both nodes use the same image; its secret appears once.
	if want := []string{"registry-secret"}; !reflect.DeepEqual(wf.Conf.ImagePullSecrets, want) {
		t.Errorf("ImagePullSecrets = %v, want %v", wf.Conf.ImagePullSecrets, want)
	}
}

func TestCompileCustomTask(t *testing.T) {
	catalog := fakeCatalog{
		"download-data": {
			ID:         "download-data",
			Name:       "Download data",
			Definition: "name: Download data\n",
			Inputs: []component.Parameter{
				{Name: "URL", Type: "String"},
				{Name: "Retry Count", Type: "Integer"},
			},
			Outputs: []component.Parameter{
				{Name: "Result", Type: "String"},
			},
			Properties: []component.Property{
				{Ref: "url", JSONDataType: "string", AllowedInputTypes: []string{"inputvalue"}},
				{Ref: "retry_count", JSONDataType: "number", AllowedInputTypes: []string{"inputvalue"}, Default: "3"},
			},
		},
		"process-data": {
			ID:         "process-data",
			Name:       "Process data",
			Definition: "name: Process data\n",
			Inputs: []component.Parameter{
				{Name: "Source", Type: "String"},
				{Name: "Options", Type: "JsonObject"},
			},
			Properties: []component.Property{
				{Ref: "source", JSONDataType: "string", AllowedInputTypes: []string{"inputpath", "inputvalue"}},
				{Ref: "options", JSONDataType: "object", AllowedInputTypes: []string{"inputvalue"}},
				{Ref: "internal_state", JSONDataType: "string", AllowedInputTypes: nil},
			},
		},
	}

	download := &pipeline.Node{
		ID:         "dl-node",
		Name:       "Download",
		Kind:       pipeline.KindCustom,
		Classifier: "download-data",
		ComponentParams: map[string]pipeline.ParamValue{
			"url": {Widget: "string", Value: "https://example.com/data.csv"},
		},
	}
	process := &pipeline.Node{
		ID:         "proc-node",
		Name:       "Process",
		Kind:       pipeline.KindCustom,
		Classifier: "process-data",
		ParentIDs:  []string{"dl-node"},
		ComponentParams: map[string]pipeline.ParamValue{
			"source":  {Widget: "inputpath", NodeID: "dl-node", Option: "output_result"},
			"options": {Widget: "string", Value: "{'mode': 'fast', 'retries': 2}"},
		},
	}

	p := testPipeline(download, process)

	c := New(testSettings(t), catalog, nil, nil)
	wf, err := c.Compile(context.Background(), p, testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	dl := wf.Tasks["dl-node"]
	if !dl.UsesCustomComponent {
		t.Error("UsesCustomComponent = false, want true")
	}
	if got := dl.Inputs["url"]; got == nil || got.Value != "https://example.com/data.csv" {
		t.Errorf("url input = %+v, want literal value", got)
	}
	retry := dl.Inputs["retry_count"]
	if retry == nil || retry.Value != "3" {
		t.Errorf("retry_count input = %+v, want default 3", retry)
	}
	if retry != nil && retry.RequiresQuotedRendering {
		t.Error("integer input renders quoted, want unquoted")
	}
	if _, ok := dl.Outputs["result"]; !ok {
		t.Errorf("outputs = %v, want result slot", dl.Outputs)
	}

	proc := wf.Tasks["proc-node"]
	src := proc.Inputs["source"]
	if src == nil || src.OutputRef == nil {
		t.Fatalf("source input = %+v, want output reference", src)
	}
	if src.OutputRef.TaskID != "dl_node" || src.OutputRef.OutputID != "result" {
		t.Errorf("source ref = %+v, want {dl_node result}", src.OutputRef)
	}

	opts := proc.Inputs["options"]
	wantOpts := map[string]any{"mode": "fast", "retries": 2}
	if opts == nil || !reflect.DeepEqual(opts.Value, wantOpts) {
		t.Errorf("options input = %+v, want %v", opts, wantOpts)
	}

	if _, ok := proc.Inputs["internal_state"]; ok {
		t.Error("output-only property resolved as input")
	}
	if got := wf.Definitions[proc.DefinitionHash]; got != "name: Process data\n" {
		t.Errorf("definition = %q, want component text", got)
	}
}

func TestCompileCustomTaskFileProperty(t *testing.T) {
	s := testSettings(t)

	full := filepath.Join(s.RootDir, "payload.json")
	if err := os.WriteFile(full, []byte(`{"key": "value"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(s.RootDir, "empty.txt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	catalog := fakeCatalog{
		"run-script": {
			ID:         "run-script",
			Definition: "name: Run script\n",
			Inputs: []component.Parameter{
				{Name: "Code", Type: "String"},
				{Name: "Extra", Type: "String"},
			},
			Properties: []component.Property{
				{Ref: "code", JSONDataType: "string", AllowedInputTypes: []string{"file", "inputvalue"}},
				{Ref: "extra", JSONDataType: "string", AllowedInputTypes: []string{"file", "inputvalue"}},
			},
		},
	}

	node := &pipeline.Node{
		ID:         "script-node",
		Name:       "Script",
		Kind:       pipeline.KindCustom,
		Classifier: "run-script",
		ComponentParams: map[string]pipeline.ParamValue{
			"code":  {Widget: "file", Value: "payload.json"},
			"extra": {Widget: "file", Value: "empty.txt"},
		},
	}

	c := New(s, catalog, nil, nil)
	wf, err := c.Compile(context.Background(), testPipeline(node), testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	task := wf.Tasks["script-node"]
	if got := task.Inputs["code"].Value; got != `{"key": "value"}` {
		t.Errorf("code input = %v, want file contents", got)
	}
	if got := task.Inputs["extra"].Value; got != nil {
		t.Errorf("extra input = %v, want nil for empty file", got)
	}
}

func TestCompileCustomTaskDeclaredEmptyValue(t *testing.T) {
	catalog := fakeCatalog{
		"greet": {
			ID:         "greet",
			Definition: "name: Greet\n",
			Inputs: []component.Parameter{
				{Name: "Prefix", Type: "String"},
				{Name: "Suffix", Type: "String"},
			},
			Properties: []component.Property{
				{Ref: "prefix", JSONDataType: "string", AllowedInputTypes: []string{"inputvalue"}, Default: "Hello"},
				{Ref: "suffix", JSONDataType: "string", AllowedInputTypes: []string{"inputvalue"}, Default: "!"},
			},
		},
	}

	node := &pipeline.Node{
		ID:         "greet-node",
		Name:       "Greet",
		Kind:       pipeline.KindCustom,
		Classifier: "greet",
		ComponentParams: map[string]pipeline.ParamValue{
			// Declared as empty: stays an empty string, not the default.
			"prefix": {Widget: "string", Value: ""},
		},
	}

	c := New(testSettings(t), catalog, nil, nil)
	wf, err := c.Compile(context.Background(), testPipeline(node), testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	task := wf.Tasks["greet-node"]
	if got := task.Inputs["prefix"].Value; got != "" {
		t.Errorf("prefix input = %v, want declared empty string", got)
	}
	if got := task.Inputs["suffix"].Value; got != "!" {
		t.Errorf("suffix input = %v, want schema default for undeclared property", got)
	}
}

func TestCompileUnknownComponent(t *testing.T) {
	node := &pipeline.Node{
		ID:         "node-1",
		Name:       "Mystery",
		Kind:       pipeline.KindCustom,
		Classifier: "no-such-component",
	}

	c := New(testSettings(t), fakeCatalog{}, nil, nil)
	_, err := c.Compile(context.Background(), testPipeline(node), testOptions())
	if err == nil {
		t.Fatal("Compile() error = nil, want component resolution error")
	}
	if !strings.Contains(err.Error(), "no-such-component") {
		t.Errorf("error %q does not name the missing component", err)
	}
	if !strings.Contains(err.Error(), "untitled") {
		t.Errorf("error %q does not name the pipeline", err)
	}
}

func TestCompileDefinitionDedup(t *testing.T) {
	catalog := fakeCatalog{
		"echo": {
			ID:         "echo",
			Definition: "name: Echo\n",
		},
	}
	a := &pipeline.Node{ID: "a", Name: "Echo 1", Kind: pipeline.KindCustom, Classifier: "echo"}
	b := &pipeline.Node{ID: "b", Name: "Echo 2", Kind: pipeline.KindCustom, Classifier: "echo", ParentIDs: []string{"a"}}

	c := New(testSettings(t), catalog, nil, nil)
	wf, err := c.Compile(context.Background(), testPipeline(a, b), testOptions())
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(wf.Definitions) != 1 {
		t.Errorf("Definitions has %d entries, want 1", len(wf.Definitions))
	}
	if wf.Tasks["a"].DefinitionHash != wf.Tasks["b"].DefinitionHash {
		t.Error("identical definitions have different hashes")
	}
}
