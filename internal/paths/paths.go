// Package paths maps virtual user:// and res:// paths to host directories.
package paths

import (
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

const (
	UserScheme     = "user://"
	ResourceScheme = "res://"
	appName        = "addonloader"
)

// Resolver globalises virtual paths.
type Resolver struct {
	UserDir     string
	ResourceDir string
}

// Default returns a resolver rooted at $XDG_DATA_HOME/addonloader for user://
// and resourceDir for res://.
func Default(resourceDir string) Resolver {
	return Resolver{
		UserDir:     filepath.Join(xdg.DataHome, appName),
		ResourceDir: resourceDir,
	}
}

// Globalize turns a virtual path into a host path. Host paths are returned
// unchanged.
func (r Resolver) Globalize(p string) string {
	switch {
	case strings.HasPrefix(p, UserScheme):
		return filepath.Join(r.UserDir, filepath.FromSlash(strings.TrimPrefix(p, UserScheme)))
	case strings.HasPrefix(p, ResourceScheme):
		return filepath.Join(r.ResourceDir, filepath.FromSlash(strings.TrimPrefix(p, ResourceScheme)))
	default:
		return p
	}
}

// Localize is the inverse of Globalize for paths under UserDir or ResourceDir.
func (r Resolver) Localize(p string) string {
	if rel, ok := within(r.UserDir, p); ok {
		return UserScheme + rel
	}
	if rel, ok := within(r.ResourceDir, p); ok {
		return ResourceScheme + rel
	}
	return p
}

func within(root, p string) (string, bool) {
	if root == "" {
		return "", false
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}
