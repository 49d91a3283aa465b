// Package component models catalog components: externally supplied task
// definitions with a declared property schema and input/output parameters.
package component

import "strings"

// Component is a catalog component as returned by the component cache.
// The definition text is immutable; the compiler deduplicates identical
// definitions by content hash.
type Component struct {
	ID         string
	Name       string
	Definition string
	// Properties is the component's configurable property schema.
	Properties []Property
	// Inputs and Outputs are the component's declared parameters.
	Inputs  []Parameter
	Outputs []Parameter
}

// Parameter is one declared input or output of a component.
type Parameter struct {
	Name string
	// Type is the declared data type. When empty, "string" is assumed.
	Type string
}

// DataType returns the lowercased declared type, defaulting to "string".
func (p Parameter) DataType() string {
	if p.Type == "" {
		return "string"
	}
	return strings.ToLower(p.Type)
}

// Property is one configurable property of a component.
type Property struct {
	// Ref is the property identifier used to look up values in a node's
	// component parameters.
	Ref string
	// JSONDataType is the JSON type of the property value ("string",
	// "object", "array", "number", "boolean", ...).
	JSONDataType string
	// AllowedInputTypes lists the value sources the property accepts
	// ("inputvalue", "inputpath", "file"). An output-only property
	// accepts none.
	AllowedInputTypes []string
	// Default is the schema-declared default value.
	Default string
}

// AcceptsInput reports whether the property can take any runtime input.
// Output-only properties declare no allowed input types and are skipped
// by the compiler.
func (p Property) AcceptsInput() bool {
	for _, t := range p.AllowedInputTypes {
		if t != "" {
			return true
		}
	}
	return false
}

// Catalog resolves component classifiers to definitions. The concrete
// cache (filesystem, URL, registry) lives outside the compiler.
type Catalog interface {
	// Get returns the component for the given runtime type and
	// classifier, or an error if the component is unknown.
	Get(runtimeType, classifier string) (*Component, error)
}
