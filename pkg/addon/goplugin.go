package addon

import (
	"errors"
	"fmt"
	goplugin "plugin"
	"reflect"
)

// GoPluginLoader loads code modules built with `go build -buildmode=plugin`.
// The main class is looked up as an exported symbol of the module.
type GoPluginLoader struct{}

type goModule struct {
	path   string
	lookup func(string) (goplugin.Symbol, error)
}

func (m *goModule) Path() string { return m.path }

// LoadModule implements ModuleLoader.
func (GoPluginLoader) LoadModule(path string) (Module, error) {
	if path == "" {
		return nil, errors.New("module path cannot be empty")
	}
	so, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return &goModule{path: path, lookup: so.Lookup}, nil
}

// CreateInstance resolves className to an Object. The symbol may be a
// constructor (func() Object or func() (Object, error)), which yields a fresh
// instance per call, or an exported variable, which is shared by every caller.
func (GoPluginLoader) CreateInstance(module Module, className string) (Object, error) {
	gm, ok := module.(*goModule)
	if !ok || gm == nil {
		return nil, fmt.Errorf("module %T was not loaded by GoPluginLoader", module)
	}
	symbol, err := gm.lookup(className)
	if err != nil {
		return nil, err
	}
	return instanceFromSymbol(symbol, className)
}

func instanceFromSymbol(symbol any, className string) (Object, error) {
	var obj Object
	switch s := symbol.(type) {
	case func() Object:
		obj = s()
	case func() (Object, error):
		created, err := s()
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", className, err)
		}
		obj = created
	case *Object:
		if s == nil {
			return nil, fmt.Errorf("symbol %s is nil", className)
		}
		obj = *s
	case Object:
		obj = s
	default:
		return nil, fmt.Errorf("symbol %s of type %T is not an addon object", className, symbol)
	}
	if isNil(obj) {
		return nil, fmt.Errorf("symbol %s produced a nil object", className)
	}
	return obj, nil
}

// isNil reports whether v is nil or an interface holding a nil pointer.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
