// Package vfs implements the res:// resource namespace. Packaged archives
// (zip or PCK) are mounted on top of an optional base filesystem; a path is
// resolved against the most recently mounted archive first.
package vfs

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
)

// DefaultRoot is the prefix of resource paths.
const DefaultRoot = "res://"

var (
	zipMagic = []byte("PK\x03\x04")
	pckMagic = []byte("GDPC")
)

type layer struct {
	source string
	fsys   fs.FS
	closer io.Closer
}

// Namespace is a stack of mounted archives. It is safe for concurrent use.
type Namespace struct {
	mu     sync.RWMutex
	root   string
	base   fs.FS
	layers []layer
}

// Option customises a Namespace.
type Option func(*Namespace)

// WithRoot changes the resource prefix.
func WithRoot(root string) Option {
	return func(n *Namespace) {
		if root != "" {
			n.root = root
		}
	}
}

// WithBase sets the filesystem consulted after every mounted archive, usually
// the project's own resource directory.
func WithBase(fsys fs.FS) Option {
	return func(n *Namespace) {
		n.base = fsys
	}
}

// New creates an empty namespace.
func New(opts ...Option) *Namespace {
	n := &Namespace{root: DefaultRoot}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Root returns the resource prefix.
func (n *Namespace) Root() string {
	return n.root
}

// Mount opens the archive at path and stacks it on the namespace. The format
// is detected from the file content, not the extension.
func (n *Namespace) Mount(archivePath string) error {
	if archivePath == "" {
		return errors.New("archive path cannot be empty")
	}
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat archive: %w", err)
	}
	fsys, err := openArchive(file, info.Size())
	if err != nil {
		file.Close()
		return fmt.Errorf("mount %s: %w", archivePath, err)
	}

	n.mu.Lock()
	n.layers = append(n.layers, layer{source: archivePath, fsys: fsys, closer: file})
	n.mu.Unlock()
	return nil
}

// MountFS stacks an already opened filesystem under the given source name.
func (n *Namespace) MountFS(source string, fsys fs.FS) {
	n.mu.Lock()
	n.layers = append(n.layers, layer{source: source, fsys: fsys})
	n.mu.Unlock()
}

func openArchive(r io.ReaderAt, size int64) (fs.FS, error) {
	head := make([]byte, 4)
	if _, err := r.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("read archive header: %w", err)
	}
	switch {
	case bytes.Equal(head, zipMagic):
		zr, err := zip.NewReader(r, size)
		if err != nil {
			return nil, fmt.Errorf("read zip: %w", err)
		}
		return zr, nil
	case bytes.Equal(head, pckMagic):
		return openPCK(r, 0, size)
	}
	if offset, ok := embeddedPCK(r, size); ok {
		return openPCK(r, offset, size)
	}
	return nil, errors.New("unrecognised archive format")
}

// Mounts lists the mounted archive sources in mount order.
func (n *Namespace) Mounts() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.layers))
	for _, l := range n.layers {
		out = append(out, l.source)
	}
	return out
}

// Open implements fs.FS over names relative to the root.
func (n *Namespace) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	n.mu.RLock()
	layers := append([]layer(nil), n.layers...)
	base := n.base
	n.mu.RUnlock()

	for i := len(layers) - 1; i >= 0; i-- {
		f, err := layers[i].fsys.Open(name)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if base != nil {
		return base.Open(name)
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Rel converts a resource path into a name accepted by Open.
func (n *Namespace) Rel(resourcePath string) (string, error) {
	if !strings.HasPrefix(resourcePath, n.root) {
		return "", fmt.Errorf("%s is outside %s", resourcePath, n.root)
	}
	rel := strings.TrimPrefix(resourcePath, n.root)
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		rel = "."
	}
	return rel, nil
}

// ReadResource returns the content of a resource path such as res://foo/a.hcl.
func (n *Namespace) ReadResource(resourcePath string) ([]byte, error) {
	rel, err := n.Rel(resourcePath)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(n, rel)
}

// Exists reports whether a resource path resolves to a regular file.
func (n *Namespace) Exists(resourcePath string) bool {
	rel, err := n.Rel(resourcePath)
	if err != nil {
		return false
	}
	info, err := fs.Stat(n, rel)
	return err == nil && !info.IsDir()
}

// Close unmounts every archive.
func (n *Namespace) Close() error {
	n.mu.Lock()
	layers := n.layers
	n.layers = nil
	n.mu.Unlock()
	var err error
	for _, l := range layers {
		if l.closer != nil {
			err = errors.Join(err, l.closer.Close())
		}
	}
	return err
}
