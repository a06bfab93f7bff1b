package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVariables_SetKeepsOrder(t *testing.T) {
	var v Variables
	v = v.Set("b", "1")
	v = v.Set("a", "2")
	v = v.Set("b", "3")

	want := Variables{{Key: "b", Value: "3"}, {Key: "a", Value: "2"}}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("Set() mismatch (-want +got):\n%s", diff)
	}

	if got, ok := v.Get("a"); !ok || got != "2" {
		t.Errorf("Get(a) = %q, %v", got, ok)
	}
	if _, ok := v.Get("missing"); ok {
		t.Error("Get(missing) reported ok")
	}
}

func TestVariables_Equal(t *testing.T) {
	tests := []struct {
		name string
		a, b Variables
		want bool
	}{
		{"nil and empty", nil, Variables{}, true},
		{"same pairs", Variables{{"k", "v"}}, Variables{{"k", "v"}}, true},
		{"different order", Variables{{"a", "1"}, {"b", "2"}}, Variables{{"b", "2"}, {"a", "1"}}, false},
		{"different value", Variables{{"k", "v"}}, Variables{{"k", "w"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVariables_ValueScan(t *testing.T) {
	orig := Variables{{Key: "componentId", Value: "42"}, {Key: "comment", Value: "looks fine"}}

	raw, err := orig.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}

	var got Variables
	if err := got.Scan(raw); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("Scan(Value()) mismatch (-want +got):\n%s", diff)
	}

	var empty Variables
	if err := empty.Scan("[]"); err != nil || empty != nil {
		t.Errorf("Scan([]) = %v, %v; want nil, nil", empty, err)
	}
	if err := empty.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestVariablesFromMap(t *testing.T) {
	m := map[string]string{"x": "1", "y": "2", "z": "3"}
	got := VariablesFromMap(m, "z", "x", "missing")
	want := Variables{{Key: "z", Value: "3"}, {Key: "x", Value: "1"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("VariablesFromMap() mismatch (-want +got):\n%s", diff)
	}
	if len(VariablesFromMap(m)) != 3 {
		t.Error("VariablesFromMap() without keys should copy every entry")
	}
}
