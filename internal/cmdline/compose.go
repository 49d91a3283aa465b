// Package cmdline composes the shell command executed inside a generic
// node's container: download the bootstrapper and its requirements
// manifests, install them, then invoke the bootstrapper with the node's
// file, archive, and artifact lists.
package cmdline

import (
	"fmt"
	"path"
	"strings"

	"github.com/me/kfpc/internal/config"
)

// Separator joins input and output filename lists on the bootstrapper
// command line. The bootstrapper splits on the same character, so a
// filename containing it would corrupt the command.
const Separator = ";"

// Fixed CRI-O runtime layout. The empty-dir volume backs the working
// directory because the root filesystem is read-only on such runtimes.
const (
	CRIOEmptyDirVolumeSize = "20Gi"
	CRIOEmptyDirVolumeName = "workspace"
	CRIOEmptyDirMountPath  = "/opt/app-root/src/"
	crioPythonDirName      = "python3"
)

// CRIOWorkDir is the container working directory on CRI-O runtimes.
var CRIOWorkDir = path.Join(CRIOEmptyDirMountPath, "jupyter-work-dir")

// CRIOPythonUserLibPath is the user library path packages install into on
// CRI-O runtimes. It is exported to the container as PYTHONPATH.
var CRIOPythonUserLibPath = path.Join(CRIOWorkDir, crioPythonDirName)

// Composer builds container command lines from the process settings.
type Composer struct {
	settings *config.Settings
}

// NewComposer creates a Composer using the given settings.
func NewComposer(settings *config.Settings) *Composer {
	return &Composer{settings: settings}
}

// Args identifies one generic node's bootstrapper invocation.
type Args struct {
	PipelineName string
	COSEndpoint  string
	COSBucket    string
	// COSDirectory is the object prefix under which the node's artifacts
	// live for this pipeline instance.
	COSDirectory string
	// Archive is the node's dependency archive name.
	Archive string
	// Filename is the notebook or script the bootstrapper executes.
	Filename string
	// Inputs and Outputs are artifact filenames exchanged through object
	// storage. Optional.
	Inputs  []string
	Outputs []string
}

// Compose returns the full shell command string for the node. A filename
// containing the reserved separator character is a fatal configuration
// error, reported before any part of the command is emitted.
func (c *Composer) Compose(a Args) (string, error) {
	inputs, err := joinFileList(a.Inputs)
	if err != nil {
		return "", err
	}
	outputs, err := joinFileList(a.Outputs)
	if err != nil {
		return "", err
	}

	crio := c.settings.CRIORuntime
	workDir := path.Join(".", "jupyter-work-dir")
	if crio {
		workDir = CRIOWorkDir
	}

	curl := "--fail -H 'Cache-Control: no-cache'"
	var b strings.Builder

	fmt.Fprintf(&b, "mkdir -p %s && cd %s && ", workDir, workDir)
	fmt.Fprintf(&b, "echo 'Downloading %s' && ", c.settings.BootstrapScriptURL)
	fmt.Fprintf(&b, "curl %s -L %s --output bootstrapper.py && ", curl, c.settings.BootstrapScriptURL)
	fmt.Fprintf(&b, "echo 'Downloading %s' && ", c.settings.RequirementsURL)
	fmt.Fprintf(&b, "curl %s -L %s --output requirements-elyra.txt && ", curl, c.settings.RequirementsURL)
	fmt.Fprintf(&b, "echo 'Downloading %s' && ", c.settings.RequirementsPy37URL)
	fmt.Fprintf(&b, "curl %s -L %s --output requirements-elyra-py37.txt && ", curl, c.settings.RequirementsPy37URL)

	target := ""
	if crio {
		fmt.Fprintf(&b, "mkdir %s && cd %s && ", crioPythonDirName, crioPythonDirName)
		fmt.Fprintf(&b, "echo 'Downloading %s' && ", c.settings.PipConfigURL)
		fmt.Fprintf(&b, "curl %s -L %s --output pip.conf && cd .. && ", curl, c.settings.PipConfigURL)
		target = fmt.Sprintf("--target=%s ", CRIOPythonUserLibPath)
	}

	fmt.Fprintf(&b, "python3 -m pip install %spackaging && ", target)
	b.WriteString("python3 -m pip freeze > requirements-current.txt && ")
	b.WriteString("python3 bootstrapper.py ")
	fmt.Fprintf(&b, "--pipeline-name '%s' ", a.PipelineName)
	fmt.Fprintf(&b, "--cos-endpoint '%s' ", a.COSEndpoint)
	fmt.Fprintf(&b, "--cos-bucket '%s' ", a.COSBucket)
	fmt.Fprintf(&b, "--cos-directory '%s' ", a.COSDirectory)
	fmt.Fprintf(&b, "--cos-dependencies-archive '%s' ", a.Archive)
	fmt.Fprintf(&b, "--file '%s' ", a.Filename)

	if inputs != "" {
		fmt.Fprintf(&b, "--inputs '%s' ", inputs)
	}
	if outputs != "" {
		fmt.Fprintf(&b, "--outputs '%s' ", outputs)
	}
	if crio {
		fmt.Fprintf(&b, "--user-volume-path '%s' ", CRIOPythonUserLibPath)
	}

	return b.String(), nil
}

// joinFileList joins filenames with the reserved separator, rejecting any
// filename that already contains it.
func joinFileList(files []string) (string, error) {
	for _, f := range files {
		if strings.Contains(f, Separator) {
			return "", fmt.Errorf("illegal character (%s) found in filename %q", Separator, f)
		}
	}
	return strings.Join(files, Separator), nil
}
