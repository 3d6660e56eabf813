package addon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/afero"
)

const listBatchSize = 32

// AferoLister lists directories of an afero filesystem. Hidden entries and
// navigation entries are never yielded; directories only when IncludeDirs is set.
type AferoLister struct {
	Fs          afero.Fs
	IncludeDirs bool
}

// NewOSLister lists directories on the host filesystem.
func NewOSLister(includeDirs bool) *AferoLister {
	return &AferoLister{Fs: afero.NewOsFs(), IncludeDirs: includeDirs}
}

// Open implements DirectoryLister.
func (l *AferoLister) Open(path string) (Listing, error) {
	if l == nil || l.Fs == nil {
		return nil, errors.New("lister has no filesystem")
	}
	if path == "" {
		return nil, errors.New("directory path cannot be empty")
	}
	info, err := l.Fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", path)
	}
	dir, err := l.Fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &aferoListing{dir: dir, includeDirs: l.IncludeDirs}, nil
}

type aferoListing struct {
	dir         afero.File
	includeDirs bool
	pending     []os.FileInfo
	done        bool
	err         error
}

func (l *aferoListing) Next() (string, bool) {
	for {
		for len(l.pending) > 0 {
			info := l.pending[0]
			l.pending = l.pending[1:]
			if skipEntry(info, l.includeDirs) {
				continue
			}
			return info.Name(), true
		}
		if l.done || l.dir == nil {
			return "", false
		}
		batch, err := l.dir.Readdir(listBatchSize)
		l.pending = batch
		if err != nil {
			l.done = true
			if !errors.Is(err, io.EOF) {
				l.err = err
			}
		} else if len(batch) == 0 {
			l.done = true
		}
	}
}

func (l *aferoListing) Close() error {
	if l.dir == nil {
		return nil
	}
	err := l.dir.Close()
	l.dir = nil
	return err
}

// Err reports a listing failure that ended the sequence early.
func (l *aferoListing) Err() error {
	return l.err
}

func skipEntry(info os.FileInfo, includeDirs bool) bool {
	name := info.Name()
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return true
	}
	return info.IsDir() && !includeDirs
}
