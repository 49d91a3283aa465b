// Package sanitize normalizes human-readable names into identifiers that are
// safe as workflow task names, generated-code symbols, Kubeflow parameter
// names, and Kubernetes label values.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	invalidLabelChars = regexp.MustCompile(`[^-_0-9A-Za-z ]+`)
	dashRuns          = regexp.MustCompile(`-+`)
	nonWordRuns       = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	spaceRuns         = regexp.MustCompile(` +`)
	punctOrSpace      = regexp.MustCompile(`[[:punct:]\s]`)
	invalidValueChars = regexp.MustCompile(`[^-_.0-9A-Za-z]`)
	alphanumeric      = regexp.MustCompile(`[0-9A-Za-z]`)
)

// Label scrubs a node display name for use as a workflow task name:
// characters outside [-_0-9A-Za-z ] are replaced with "-", runs of "-" are
// collapsed, and leading/trailing "-" are trimmed.
func Label(name string) string {
	s := invalidLabelChars.ReplaceAllString(name, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ParamName normalizes a component parameter name exactly the way Kubeflow
// Pipelines v1 does. Task input and output names are cross-referenced between
// producer and consumer tasks purely by string equality, so any divergence
// from the platform's own normalization silently breaks wiring.
func ParamName(name string) string {
	s := strings.ToLower(name)
	s = nonWordRuns.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
	if len(s) > 0 && s[0] >= '0' && s[0] <= '9' {
		s = "n" + s
	}
	return strings.ReplaceAll(s, " ", "_")
}

// EscapedID replaces every punctuation or whitespace character with "_",
// producing an identifier safe for use as a generated-code symbol.
func EscapedID(id string) string {
	return punctOrSpace.ReplaceAllString(id, "_")
}

// LabelValue scrubs a string for use as a Kubernetes label value: invalid
// characters become "_", the value must begin and end with an alphanumeric
// character, and is capped at 63 characters. Label values have a stricter
// character set than task names, hence the separate sanitizer.
func LabelValue(value string) string {
	s := invalidValueChars.ReplaceAllString(value, "_")
	// Trim to characters that may begin/end a label value.
	for len(s) > 0 && !alphanumeric.MatchString(s[:1]) {
		s = s[1:]
	}
	for len(s) > 0 && !alphanumeric.MatchString(s[len(s)-1:]) {
		s = s[:len(s)-1]
	}
	if len(s) > 63 {
		s = s[:63]
		for len(s) > 0 && !alphanumeric.MatchString(s[len(s)-1:]) {
			s = s[:len(s)-1]
		}
	}
	return s
}

// NameRegistry enforces collision-free task names within one compilation
// run. It is the only cross-node mutable state touched during the node loop.
type NameRegistry struct {
	counters map[string]int
}

// NewNameRegistry creates an empty registry.
func NewNameRegistry() *NameRegistry {
	return &NameRegistry{counters: make(map[string]int)}
}

// Unique returns name unchanged on its first occurrence; later occurrences
// are suffixed "_1", "_2", ... in first-seen order. Stable for a fixed
// input order.
func (r *NameRegistry) Unique(name string) string {
	unique := name
	for {
		if _, taken := r.counters[unique]; !taken {
			break
		}
		unique = fmt.Sprintf("%s_%d", name, r.counters[name])
		r.counters[name]++
	}
	r.counters[unique] = 1
	return unique
}
