package addon

import (
	"sort"
	"testing"

	"github.com/spf13/afero"
)

func newMemFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/addons", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, f := range files {
		if err := afero.WriteFile(fs, "/addons/"+f, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}
	return fs
}

func drain(t *testing.T, l Listing) []string {
	t.Helper()
	var names []string
	for {
		name, ok := l.Next()
		if !ok {
			break
		}
		names = append(names, name)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sort.Strings(names)
	return names
}

func TestAferoListerSkipsHiddenAndDirs(t *testing.T) {
	fs := newMemFs(t, "foo.pck", "bar.so", ".hidden.pck")
	if err := fs.MkdirAll("/addons/nested", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	listing, err := (&AferoLister{Fs: fs}).Open("/addons")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := drain(t, listing)
	if len(got) != 2 || got[0] != "bar.so" || got[1] != "foo.pck" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestAferoListerIncludeDirs(t *testing.T) {
	fs := newMemFs(t, "foo.pck")
	if err := fs.MkdirAll("/addons/unpacked.pck", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	listing, err := (&AferoLister{Fs: fs, IncludeDirs: true}).Open("/addons")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got := drain(t, listing)
	if len(got) != 2 || got[1] != "unpacked.pck" {
		t.Fatalf("expected directories to be listed, got %v", got)
	}
}

func TestAferoListerBatches(t *testing.T) {
	var files []string
	for i := 0; i < listBatchSize*2+5; i++ {
		files = append(files, string(rune('a'+i%26))+string(rune('a'+i/26))+".so")
	}
	listing, err := (&AferoLister{Fs: newMemFs(t, files...)}).Open("/addons")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := drain(t, listing); len(got) != len(files) {
		t.Fatalf("expected %d entries, got %d", len(files), len(got))
	}
}

func TestAferoListerOpenFailures(t *testing.T) {
	fs := newMemFs(t, "file.so")
	lister := &AferoLister{Fs: fs}

	if _, err := lister.Open("/missing"); err == nil {
		t.Fatalf("expected error for missing directory")
	}
	if _, err := lister.Open("/addons/file.so"); err == nil {
		t.Fatalf("expected error for a regular file")
	}
	if _, err := lister.Open(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := (&AferoLister{}).Open("/addons"); err == nil {
		t.Fatalf("expected error without filesystem")
	}
}

func TestAferoListingCloseIsIdempotent(t *testing.T) {
	listing, err := (&AferoLister{Fs: newMemFs(t)}).Open("/addons")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := listing.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := listing.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, ok := listing.Next(); ok {
		t.Fatalf("closed listing yielded an entry")
	}
}
