package addon

import (
	"slices"
	"strings"
)

// Extension returns the text after the final dot of name, or "" when there is none.
func Extension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}

// BaseName returns name without its extension.
func BaseName(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 {
		return name
	}
	return name[:idx]
}

// Classify routes a file name to a pipeline. Matching is case-sensitive.
func (c Config) Classify(fileName string) Kind {
	ext := Extension(fileName)
	if slices.Contains(c.ResourcePackExtensions, ext) {
		return KindResourcePack
	}
	if ext == c.ModuleExtension {
		return KindCodeModule
	}
	return KindUnknown
}

// Describe builds the descriptor of a directory entry.
func (c Config) Describe(fileName string) Descriptor {
	return Descriptor{
		FileName:  fileName,
		BaseName:  BaseName(fileName),
		Extension: Extension(fileName),
		Kind:      c.Classify(fileName),
	}
}

// ScriptPath is where the main script of a mounted resource pack lives:
// <root>/<baseName>/<mainClass>.<scriptExtension>.
func (c Config) ScriptPath(baseName string) string {
	return JoinResource(JoinResource(c.ResourceRoot, baseName), c.MainClass+"."+c.ScriptExtension)
}

// JoinResource appends a path element to a resource path with exactly one
// separator between them, so "res://" + "foo" is "res://foo".
func JoinResource(base, elem string) string {
	switch {
	case base == "":
		return elem
	case elem == "":
		return base
	case strings.HasSuffix(base, "/"):
		return base + strings.TrimPrefix(elem, "/")
	default:
		return base + "/" + strings.TrimPrefix(elem, "/")
	}
}
