package addon

import (
	"errors"
	goplugin "plugin"
	"strings"
	"testing"
)

type namedObject struct{ name string }

func (o *namedObject) Name() string        { return o.name }
func (o *namedObject) SetName(name string) { o.name = name }

func TestInstanceFromSymbol(t *testing.T) {
	var shared Object = &namedObject{name: "shared"}

	cases := []struct {
		name   string
		symbol any
		want   string
	}{
		{"constructor", func() Object { return &namedObject{name: "ctor"} }, "ctor"},
		{"constructor with error", func() (Object, error) { return &namedObject{name: "ctor-err"}, nil }, "ctor-err"},
		{"variable", &shared, "shared"},
		{"object", &namedObject{name: "direct"}, "direct"},
	}
	for _, tc := range cases {
		obj, err := instanceFromSymbol(tc.symbol, "AddonClass")
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if obj.Name() != tc.want {
			t.Fatalf("%s: got %q", tc.name, obj.Name())
		}
	}
}

func TestInstanceFromSymbolRejects(t *testing.T) {
	var nilVar Object
	var typedNil *namedObject

	cases := []struct {
		name   string
		symbol any
		substr string
	}{
		{"wrong type", func() string { return "x" }, "not an addon object"},
		{"constructor failure", func() (Object, error) { return nil, errors.New("boom") }, "boom"},
		{"nil result", func() Object { return nil }, "nil object"},
		{"typed nil result", func() Object { return typedNil }, "nil object"},
		{"nil variable", &nilVar, "nil object"},
		{"nil pointer", (*Object)(nil), "is nil"},
	}
	for _, tc := range cases {
		_, err := instanceFromSymbol(tc.symbol, "AddonClass")
		if err == nil || !strings.Contains(err.Error(), tc.substr) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.substr, err)
		}
	}
}

func TestCreateInstanceLooksUpClass(t *testing.T) {
	mod := &goModule{path: "clock.so", lookup: func(name string) (goplugin.Symbol, error) {
		if name != "AddonClass" {
			return nil, errors.New("symbol " + name + " not found")
		}
		return func() Object { return &namedObject{name: "clock"} }, nil
	}}

	obj, err := GoPluginLoader{}.CreateInstance(mod, "AddonClass")
	if err != nil || obj.Name() != "clock" {
		t.Fatalf("unexpected result %v, %v", obj, err)
	}
	if _, err := (GoPluginLoader{}).CreateInstance(mod, "Missing"); err == nil {
		t.Fatalf("expected lookup failure")
	}
}

type foreignModule struct{}

func (foreignModule) Path() string { return "other" }

func TestGoPluginLoaderGuards(t *testing.T) {
	if _, err := (GoPluginLoader{}).CreateInstance(foreignModule{}, "AddonClass"); err == nil {
		t.Fatalf("expected error for a foreign module")
	}
	if _, err := (GoPluginLoader{}).LoadModule(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := (GoPluginLoader{}).LoadModule("/nonexistent/addon.so"); err == nil {
		t.Fatalf("expected error for a missing module")
	}
}

func TestIsNil(t *testing.T) {
	var p *namedObject
	if !isNil(nil) || !isNil(p) || !isNil(Object(p)) {
		t.Fatalf("nil values must be reported")
	}
	if isNil(&namedObject{}) || isNil(42) {
		t.Fatalf("non-nil values must not be reported")
	}
}
