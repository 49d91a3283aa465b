// Package pipeline defines the runtime-agnostic pipeline graph model that the
// compiler consumes: a Pipeline holding Nodes, where each Node is either a
// generic script/notebook execution or a reference to a catalog component.
package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
)

// COSObjectPrefix is the pipeline-level property naming the object-storage
// path prefix under which dependency artifacts are placed.
const COSObjectPrefix = "cos_object_prefix"

// NodeKind discriminates between the two node implementations.
type NodeKind string

const (
	// KindGeneric runs an arbitrary script or notebook in a container image.
	KindGeneric NodeKind = "generic"
	// KindCustom invokes a catalog component identified by its classifier.
	KindCustom NodeKind = "custom"
)

// Pipeline is the full graph as produced by the (out of scope) graph
// validator: acyclic, with every parent ID resolving to a node in Nodes.
type Pipeline struct {
	ID          string
	Name        string
	Description string
	Runtime     string
	// RuntimeConfig names the runtime configuration used to submit the
	// pipeline. It appears in every infrastructure error message so a
	// misconfiguration can be located.
	RuntimeConfig string
	// Source is the file the pipeline was loaded from, if known.
	Source string
	Nodes  map[string]*Node
	// Properties holds pipeline-level properties such as COSObjectPrefix.
	Properties map[string]string
}

// ContainsGenericNodes reports whether at least one node is generic.
// Generic nodes require object storage for their dependency archives.
func (p *Pipeline) ContainsGenericNodes() bool {
	for _, n := range p.Nodes {
		if n.Kind == KindGeneric {
			return true
		}
	}
	return false
}

// Node is one vertex of the pipeline graph.
//
// The compiler rewrites Name during sanitization; all other fields are
// treated as immutable once the pipeline is constructed.
type Node struct {
	ID   string
	Name string
	Doc  string
	Kind NodeKind
	// ParentIDs are the node IDs this node depends on. Order is preserved
	// from the pipeline definition.
	ParentIDs []string

	// Generic node fields.
	Filename          string
	RuntimeImage      string
	CPU               string
	Memory            int
	GPU               int
	DependencyArchive string
	// Inputs and Outputs are artifact filenames. The propagator extends
	// Inputs with everything produced upstream.
	Inputs  []string
	Outputs []string

	// Custom node fields.
	Classifier string
	// ComponentParams maps component-declared property refs to their
	// raw value sources.
	ComponentParams map[string]ParamValue

	// Properties are the cross-cutting platform attachments (env vars,
	// volumes, secrets, labels, annotations, tolerations, ...).
	Properties []Property
}

// ParamValue is the raw value source for one custom-component property,
// as captured by the pipeline editor.
type ParamValue struct {
	// Widget identifies how the value is interpreted: "inputpath" for an
	// upstream output reference, "file" for file contents, anything else
	// for a raw literal of the property's declared type.
	Widget string
	// Value is the raw literal or, for "file", the file path.
	Value string
	// NodeID and Option identify the upstream node and output slot when
	// Widget is "inputpath". Option carries the editor's "output_" prefix.
	NodeID string
	Option string
}

// DisplayName returns the node name with the source-file special case
// applied: a generic node named after its file reports the basename
// without extension.
func (n *Node) DisplayName() string {
	if n.Kind == KindGeneric && n.Name == filepath.Base(n.Filename) {
		base := filepath.Base(n.Name)
		if i := strings.Index(base, "."); i >= 0 {
			return base[:i]
		}
		return base
	}
	return n.Name
}

// ArchiveName returns the name of the node's dependency archive. When the
// node does not declare one explicitly, the archive is named after the
// source file and node ID.
func (n *Node) ArchiveName() string {
	if n.DependencyArchive != "" {
		return n.DependencyArchive
	}
	base := filepath.Base(n.Filename)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return fmt.Sprintf("%s-%s.tar.gz", base, n.ID)
}

// Validate checks the structural fields this package owns. Graph-level
// guarantees (acyclicity, parent resolution) belong to the upstream
// validator.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("invalid pipeline node: missing node id")
	}
	if n.Name == "" {
		return fmt.Errorf("invalid pipeline node %s: missing node name", n.ID)
	}
	switch n.Kind {
	case KindGeneric:
		if n.Filename == "" {
			return fmt.Errorf("invalid pipeline node %s: missing filename", n.ID)
		}
		if n.RuntimeImage == "" {
			return fmt.Errorf("invalid pipeline node %s: missing runtime image", n.ID)
		}
		if n.Memory < 0 {
			return fmt.Errorf("invalid pipeline node %s: memory must not be negative", n.ID)
		}
		if n.GPU < 0 {
			return fmt.Errorf("invalid pipeline node %s: gpu must not be negative", n.ID)
		}
	case KindCustom:
		if n.Classifier == "" {
			return fmt.Errorf("invalid pipeline node %s: missing classifier", n.ID)
		}
	default:
		return fmt.Errorf("invalid pipeline node %s: unknown kind %q", n.ID, n.Kind)
	}
	return nil
}

// ScrubList filters out empty entries from a list of artifact filenames.
func ScrubList(dirty []string) []string {
	clean := make([]string, 0, len(dirty))
	for _, s := range dirty {
		if s != "" {
			clean = append(clean, s)
		}
	}
	return clean
}
