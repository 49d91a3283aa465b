package pipeline

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "generic named after file",
			node: Node{Kind: KindGeneric, Name: "load.ipynb", Filename: "notebooks/load.ipynb"},
			want: "load",
		},
		{
			name: "generic with explicit name",
			node: Node{Kind: KindGeneric, Name: "Load Data", Filename: "notebooks/load.ipynb"},
			want: "Load Data",
		},
		{
			name: "file with compound extension",
			node: Node{Kind: KindGeneric, Name: "model.tar.gz", Filename: "model.tar.gz"},
			want: "model",
		},
		{
			name: "custom node",
			node: Node{Kind: KindCustom, Name: "download.yaml", Classifier: "download"},
			want: "download.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiveName(t *testing.T) {
	n := Node{ID: "node-1", Kind: KindGeneric, Filename: "notebooks/load data.ipynb"}
	if got, want := n.ArchiveName(), "load data-node-1.tar.gz"; got != want {
		t.Errorf("ArchiveName() = %q, want %q", got, want)
	}

	n.DependencyArchive = "custom.tar.gz"
	if got, want := n.ArchiveName(), "custom.tar.gz"; got != want {
		t.Errorf("ArchiveName() with explicit archive = %q, want %q", got, want)
	}
}

func TestNodeValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    Node
		wantErr bool
	}{
		{"valid generic", Node{ID: "n1", Name: "a", Kind: KindGeneric, Filename: "a.py", RuntimeImage: "img"}, false},
		{"valid custom", Node{ID: "n1", Name: "a", Kind: KindCustom, Classifier: "download"}, false},
		{"missing id", Node{Name: "a", Kind: KindGeneric, Filename: "a.py", RuntimeImage: "img"}, true},
		{"missing name", Node{ID: "n1", Kind: KindGeneric, Filename: "a.py", RuntimeImage: "img"}, true},
		{"generic without filename", Node{ID: "n1", Name: "a", Kind: KindGeneric, RuntimeImage: "img"}, true},
		{"generic without image", Node{ID: "n1", Name: "a", Kind: KindGeneric, Filename: "a.py"}, true},
		{"negative memory", Node{ID: "n1", Name: "a", Kind: KindGeneric, Filename: "a.py", RuntimeImage: "img", Memory: -1}, true},
		{"negative gpu", Node{ID: "n1", Name: "a", Kind: KindGeneric, Filename: "a.py", RuntimeImage: "img", GPU: -1}, true},
		{"custom without classifier", Node{ID: "n1", Name: "a", Kind: KindCustom}, true},
		{"unknown kind", Node{ID: "n1", Name: "a", Kind: "other"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEnvVar(t *testing.T) {
	tests := []struct {
		in     string
		want   EnvVar
		wantOK bool
	}{
		{"NAME=value", EnvVar{Name: "NAME", Value: "value"}, true},
		{"  NAME = value ", EnvVar{Name: "NAME", Value: "value"}, true},
		{"NAME=a=b", EnvVar{Name: "NAME", Value: "a=b"}, true},
		{"NAME=", EnvVar{}, false},
		{"=value", EnvVar{}, false},
		{"no separator", EnvVar{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseEnvVar(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseEnvVar(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestContainsGenericNodes(t *testing.T) {
	p := &Pipeline{Nodes: map[string]*Node{
		"n1": {ID: "n1", Kind: KindCustom},
	}}
	if p.ContainsGenericNodes() {
		t.Error("ContainsGenericNodes() = true for custom-only pipeline")
	}
	p.Nodes["n2"] = &Node{ID: "n2", Kind: KindGeneric}
	if !p.ContainsGenericNodes() {
		t.Error("ContainsGenericNodes() = false with a generic node present")
	}
}

func TestScrubList(t *testing.T) {
	got := ScrubList([]string{"a.txt", "", "b.txt", ""})
	if len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("ScrubList() = %v, want [a.txt b.txt]", got)
	}
}
