// Package script loads declarative addon scripts from the resource namespace.
//
// A script is an HCL file declaring the addon class and the node it builds:
//
//	addon "AddonClass" {
//	  description = "Heads-up display"
//	  properties = {
//	    opacity = 0.8
//	  }
//	  node "Timer" {
//	    properties = { wait_time = 1.5 }
//	  }
//	}
package script

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"AddonLoader/pkg/addon"
	"AddonLoader/pkg/scene"
)

// ResourceReader reads resource paths such as res://hud/AddonClass.hcl.
type ResourceReader interface {
	ReadResource(resourcePath string) ([]byte, error)
}

type fileSchema struct {
	Addons []*addonBlock `hcl:"addon,block"`
}

type addonBlock struct {
	Class       string       `hcl:"class,label"`
	Description string       `hcl:"description,optional"`
	Properties  cty.Value    `hcl:"properties,optional"`
	Nodes       []*nodeBlock `hcl:"node,block"`
}

type nodeBlock struct {
	Name       string       `hcl:"name,label"`
	Properties cty.Value    `hcl:"properties,optional"`
	Nodes      []*nodeBlock `hcl:"node,block"`
}

// Script is a parsed addon script.
type Script struct {
	path  string
	class string
	block *addonBlock
}

// Path implements addon.Script.
func (s *Script) Path() string { return s.path }

// Class returns the declared class name.
func (s *Script) Class() string { return s.class }

// Description returns the declared description.
func (s *Script) Description() string { return s.block.Description }

// Loader implements addon.ScriptLoader on top of a ResourceReader.
type Loader struct {
	res ResourceReader
}

var _ addon.ScriptLoader = (*Loader)(nil)

// NewLoader creates a script loader reading from res.
func NewLoader(res ResourceReader) *Loader {
	return &Loader{res: res}
}

// LoadScript reads and parses the script at resourcePath. The addon block
// whose label matches the file's base name is selected; a file with a single
// addon block may use any label.
func (l *Loader) LoadScript(resourcePath string) (addon.Script, error) {
	if l.res == nil {
		return nil, errors.New("script loader has no resource reader")
	}
	src, err := l.res.ReadResource(resourcePath)
	if err != nil {
		return nil, err
	}
	return Parse(resourcePath, src)
}

// Parse decodes script source. resourcePath is used for diagnostics and to
// pick the addon block.
func Parse(resourcePath string, src []byte) (*Script, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, resourcePath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse script %s: %s", resourcePath, diags.Error())
	}
	var decoded fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("decode script %s: %s", resourcePath, diags.Error())
	}

	class := addon.BaseName(path.Base(resourcePath))
	for _, block := range decoded.Addons {
		if block.Class == class {
			return &Script{path: resourcePath, class: class, block: block}, nil
		}
	}
	if len(decoded.Addons) == 1 {
		block := decoded.Addons[0]
		return &Script{path: resourcePath, class: block.Class, block: block}, nil
	}
	return nil, fmt.Errorf("script %s declares no addon %q", resourcePath, class)
}

// Instantiate implements addon.ScriptLoader by building a fresh node tree.
func (l *Loader) Instantiate(s addon.Script) (addon.Object, error) {
	script, ok := s.(*Script)
	if !ok || script == nil {
		return nil, fmt.Errorf("script %T was not produced by this loader", s)
	}
	root := scene.NewNode(script.class)
	if err := applyProperties(root, script.block.Properties); err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", script.path, err)
	}
	if script.block.Description != "" {
		root.SetProperty("description", script.block.Description)
	}
	if err := buildChildren(root, script.block.Nodes); err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", script.path, err)
	}
	return root, nil
}

func buildChildren(parent *scene.Node, blocks []*nodeBlock) error {
	for _, b := range blocks {
		child := scene.NewNode(b.Name)
		if err := applyProperties(child, b.Properties); err != nil {
			return fmt.Errorf("node %s: %w", b.Name, err)
		}
		if err := buildChildren(child, b.Nodes); err != nil {
			return err
		}
		if err := parent.AddChild(child, false); err != nil {
			return err
		}
	}
	return nil
}

func applyProperties(n *scene.Node, props cty.Value) error {
	if props.IsNull() || !props.IsKnown() {
		return nil
	}
	ty := props.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return fmt.Errorf("properties must be an object, got %s", ty.FriendlyName())
	}
	for it := props.ElementIterator(); it.Next(); {
		key, value := it.Element()
		converted, err := toGo(value)
		if err != nil {
			return fmt.Errorf("property %s: %w", key.AsString(), err)
		}
		n.SetProperty(key.AsString(), converted)
	}
	return nil
}

// toGo converts a cty value into plain Go values: string, float64, bool,
// []any and map[string]any.
func toGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, errors.New("value is unknown")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			converted, err := toGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any)
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			converted, err := toGo(elem)
			if err != nil {
				return nil, err
			}
			out[key.AsString()] = converted
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", strings.TrimSpace(ty.FriendlyName()))
}
