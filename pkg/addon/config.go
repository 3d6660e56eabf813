package addon

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	DefaultAddonsDir       = "user://addons"
	DefaultMainClass       = "AddonClass"
	DefaultModuleExtension = "so"
	DefaultScriptExtension = "hcl"
	DefaultResourceRoot    = "res://"
)

// DefaultResourcePackExtensions lists the archive formats mounted by default.
var DefaultResourcePackExtensions = []string{"pck", "zip"}

// Config describes what the loader scans and how entries are classified.
// A Config is copied into the Loader and never mutated afterwards.
type Config struct {
	AddonsDir              string   `yaml:"dir" toml:"dir"`
	MainClass              string   `yaml:"mainClass" toml:"main_class"`
	ResourcePackExtensions []string `yaml:"resourcePackExtensions" toml:"resource_pack_extensions"`
	ModuleExtension        string   `yaml:"moduleExtension" toml:"module_extension"`
	ScriptExtension        string   `yaml:"scriptExtension" toml:"script_extension"`
	ResourceRoot           string   `yaml:"resourceRoot" toml:"resource_root"`
	IncludeDirs            bool     `yaml:"includeDirs" toml:"include_dirs"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		AddonsDir:              DefaultAddonsDir,
		MainClass:              DefaultMainClass,
		ResourcePackExtensions: slices.Clone(DefaultResourcePackExtensions),
		ModuleExtension:        DefaultModuleExtension,
		ScriptExtension:        DefaultScriptExtension,
		ResourceRoot:           DefaultResourceRoot,
	}
}

// WithDefaults fills unset fields from DefaultConfig. Extensions supplied by
// the caller are kept verbatim since matching is case-sensitive.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if strings.TrimSpace(c.AddonsDir) == "" {
		c.AddonsDir = def.AddonsDir
	}
	if strings.TrimSpace(c.MainClass) == "" {
		c.MainClass = def.MainClass
	}
	if c.ResourcePackExtensions == nil {
		c.ResourcePackExtensions = def.ResourcePackExtensions
	}
	if c.ModuleExtension == "" {
		c.ModuleExtension = def.ModuleExtension
	}
	if c.ScriptExtension == "" {
		c.ScriptExtension = def.ScriptExtension
	}
	if c.ResourceRoot == "" {
		c.ResourceRoot = def.ResourceRoot
	}
	return c
}

// Validate ensures the configuration is internally consistent.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AddonsDir) == "" {
		return errors.New("addons directory cannot be empty")
	}
	if strings.TrimSpace(c.MainClass) == "" {
		return errors.New("main class cannot be empty")
	}
	if strings.ContainsAny(c.MainClass, `/\`) {
		return fmt.Errorf("main class %q cannot contain path separators", c.MainClass)
	}
	for _, ext := range c.ResourcePackExtensions {
		if ext == "" || strings.Contains(ext, ".") {
			return fmt.Errorf("invalid resource pack extension %q", ext)
		}
		if ext == c.ModuleExtension {
			return fmt.Errorf("extension %q is both a resource pack and a module extension", ext)
		}
	}
	if c.ModuleExtension == "" || strings.Contains(c.ModuleExtension, ".") {
		return fmt.Errorf("invalid module extension %q", c.ModuleExtension)
	}
	if c.ScriptExtension == "" || strings.Contains(c.ScriptExtension, ".") {
		return fmt.Errorf("invalid script extension %q", c.ScriptExtension)
	}
	return nil
}

// Clone returns a deep copy so the caller cannot mutate a running loader.
func (c Config) Clone() Config {
	c.ResourcePackExtensions = slices.Clone(c.ResourcePackExtensions)
	return c
}
