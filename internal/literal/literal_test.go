package literal

import (
	"reflect"
	"testing"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"empty string", "", []any{}},
		{"none", "None", []any{}},
		{"empty list", "[]", []any{}},
		{"single elem", "['elem1']", []any{"elem1"}},
		{"strings", "['elem1', 'elem2', 'elem3']", []any{"elem1", "elem2", "elem3"}},
		{"whitespace", "  ['elem1',   'elem2' , 'elem3']  ", []any{"elem1", "elem2", "elem3"}},
		{"ints", "[1, 2]", []any{1, 2}},
		{"bools", "[True, False, True]", []any{true, false, true}},
		{"nested dicts", "[{'obj': 'val', 'obj2': 'val2'}, {}]",
			[]any{map[string]any{"obj": "val", "obj2": "val2"}, map[string]any{}}},
		{"double quotes", `["elem1", "elem2"]`, []any{"elem1", "elem2"}},
		{"trailing comma", "[1, 2,]", []any{1, 2}},
		{"trailing comma with space", "['elem1', 'elem2', ]", []any{"elem1", "elem2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseList(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseList(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseList_Fallback(t *testing.T) {
	// Malformed input degrades to the trimmed raw string.
	tests := []struct {
		in   string
		want string
	}{
		{"[[]", "[[]"},
		{"[elem1, elem2]", "[elem1, elem2]"},
		{"elem1, elem2", "elem1, elem2"},
		{"  elem1, elem2  ", "elem1, elem2"},
		{"'elem1', 'elem2'", "'elem1', 'elem2'"},
	}
	for _, tt := range tests {
		if got := ParseList(tt.in); got != any(tt.want) {
			t.Errorf("ParseList(%q) = %#v, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDict(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{"empty string", "", map[string]any{}},
		{"none", "None", map[string]any{}},
		{"empty dict", "{}", map[string]any{}},
		{"simple", "{'key': 'value'}", map[string]any{"key": "value"}},
		{"mixed types", "{'key1': 2, 'key2': 'value', 'key3': True, 'key4': None, 'key5': [1,2,3]}",
			map[string]any{"key1": 2, "key2": "value", "key3": true, "key4": nil, "key5": []any{1, 2, 3}}},
		{"nested lists", "{'key1': [1, 2, 3], 'key2': ['elem1', 'elem2']}",
			map[string]any{"key1": []any{1, 2, 3}, "key2": []any{"elem1", "elem2"}}},
		{"nested dict", "{'key1': {'nested': 'dict'}, 'key2': 1.5}",
			map[string]any{"key1": map[string]any{"nested": "dict"}, "key2": 1.5}},
		{"trailing comma", "{'a': 1,}", map[string]any{"a": 1}},
		{"trailing comma with space", "{'a': 1, 'b': 2, }", map[string]any{"a": 1, "b": 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDict(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseDict(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDict_Fallback(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"{{}", "{{}"},
		{"{key1: value, key2: value}", "{key1: value, key2: value}"},
		{"  { key1: value, key2: value }  ", "{ key1: value, key2: value }"},
		{"key1: value, key2: value", "key1: value, key2: value"},
		// Lowercase true is not part of the literal grammar.
		{"{'key1': true}", "{'key1': true}"},
	}
	for _, tt := range tests {
		if got := ParseDict(tt.in); got != any(tt.want) {
			t.Errorf("ParseDict(%q) = %#v, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDict_RejectsListInput(t *testing.T) {
	// A valid list literal is not a dict; the raw string comes back.
	if got := ParseDict("[1, 2]"); got != any("[1, 2]") {
		t.Errorf("ParseDict([1, 2]) = %#v, want raw string", got)
	}
}
