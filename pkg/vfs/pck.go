package vfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	pckFormatV1       = 1
	pckFormatV2       = 2
	pckReservedWords  = 16
	pckFlagEncrypted  = 1
	maxPCKPathLength  = 4096
	maxPCKFileEntries = 1 << 20
	pckPreallocLimit  = 1024
)

type pckEntry struct {
	name      string
	offset    int64
	size      int64
	encrypted bool
}

// pckFS exposes the directory of a PCK archive as a read-only fs.FS.
type pckFS struct {
	r     io.ReaderAt
	files map[string]pckEntry
	dirs  map[string][]string
}

// embeddedPCK looks for a pack appended to another file (for example an
// exported executable): the file then ends with <pack size uint64><"GDPC">.
func embeddedPCK(r io.ReaderAt, size int64) (int64, bool) {
	if size < 12 {
		return 0, false
	}
	tail := make([]byte, 12)
	if _, err := r.ReadAt(tail, size-12); err != nil {
		return 0, false
	}
	if string(tail[8:]) != string(pckMagic) {
		return 0, false
	}
	packSize := int64(binary.LittleEndian.Uint64(tail[:8]))
	start := size - 12 - packSize
	if packSize <= 0 || start < 0 {
		return 0, false
	}
	return start, true
}

func openPCK(r io.ReaderAt, start, size int64) (fs.FS, error) {
	sr := io.NewSectionReader(r, start, size-start)
	var header struct {
		Magic   [4]byte
		Version uint32
		Major   uint32
		Minor   uint32
		Patch   uint32
	}
	if err := binary.Read(sr, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("read pck header: %w", err)
	}
	if string(header.Magic[:]) != string(pckMagic) {
		return nil, errors.New("missing pck magic")
	}

	fileBase := start
	switch header.Version {
	case pckFormatV1:
	case pckFormatV2:
		var v2 struct {
			Flags    uint32
			FileBase uint64
		}
		if err := binary.Read(sr, binary.LittleEndian, &v2); err != nil {
			return nil, fmt.Errorf("read pck v2 header: %w", err)
		}
		if v2.Flags&pckFlagEncrypted != 0 {
			return nil, errors.New("encrypted pck directories are not supported")
		}
		if v2.FileBase > uint64(size-start) {
			return nil, fmt.Errorf("pck file base %d points outside the archive", v2.FileBase)
		}
		fileBase = start + int64(v2.FileBase)
	default:
		return nil, fmt.Errorf("unsupported pck format version %d", header.Version)
	}

	if _, err := sr.Seek(pckReservedWords*4, io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("skip pck reserved block: %w", err)
	}
	var count uint32
	if err := binary.Read(sr, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read pck file count: %w", err)
	}
	if count > maxPCKFileEntries {
		return nil, fmt.Errorf("pck declares %d files", count)
	}

	p := &pckFS{r: r, files: make(map[string]pckEntry, min(count, pckPreallocLimit)), dirs: map[string][]string{".": nil}}
	for i := uint32(0); i < count; i++ {
		entry, err := readPCKEntry(sr, header.Version)
		if err != nil {
			return nil, fmt.Errorf("read pck entry %d: %w", i, err)
		}
		entry.offset += fileBase
		if entry.offset < 0 || entry.offset > size || entry.size > size-entry.offset {
			return nil, fmt.Errorf("pck entry %s points outside the archive", entry.name)
		}
		p.add(entry)
	}
	for dir := range p.dirs {
		sort.Strings(p.dirs[dir])
	}
	return p, nil
}

func readPCKEntry(r io.Reader, version uint32) (pckEntry, error) {
	var pathLen uint32
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return pckEntry{}, err
	}
	if pathLen == 0 || pathLen > maxPCKPathLength {
		return pckEntry{}, fmt.Errorf("invalid path length %d", pathLen)
	}
	raw := make([]byte, pathLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return pckEntry{}, err
	}
	var meta struct {
		Offset uint64
		Size   uint64
		MD5    [16]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &meta); err != nil {
		return pckEntry{}, err
	}
	if meta.Offset > math.MaxInt64 || meta.Size > math.MaxInt64 {
		return pckEntry{}, fmt.Errorf("entry offset %d or size %d out of range", meta.Offset, meta.Size)
	}
	entry := pckEntry{offset: int64(meta.Offset), size: int64(meta.Size)}
	if version >= pckFormatV2 {
		var flags uint32
		if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
			return pckEntry{}, err
		}
		entry.encrypted = flags&pckFlagEncrypted != 0
	}

	name := strings.TrimRight(string(raw), "\x00")
	name = strings.TrimPrefix(name, DefaultRoot)
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if !fs.ValidPath(name) || name == "." {
		return pckEntry{}, fmt.Errorf("invalid entry path %q", string(raw))
	}
	entry.name = name
	return entry, nil
}

func (p *pckFS) add(entry pckEntry) {
	if _, exists := p.files[entry.name]; !exists {
		child := entry.name
		for {
			dir := path.Dir(child)
			_, known := p.dirs[dir]
			p.dirs[dir] = appendUnique(p.dirs[dir], path.Base(child))
			if known || dir == "." {
				break
			}
			child = dir
		}
	}
	p.files[entry.name] = entry
}

func appendUnique(list []string, name string) []string {
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

func (p *pckFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if entry, ok := p.files[name]; ok {
		if entry.encrypted {
			return nil, &fs.PathError{Op: "open", Path: name, Err: errors.New("encrypted pck entries are not supported")}
		}
		return &pckFile{
			info:          pckInfo{name: path.Base(name), size: entry.size},
			SectionReader: io.NewSectionReader(p.r, entry.offset, entry.size),
		}, nil
	}
	if children, ok := p.dirs[name]; ok {
		entries := make([]fs.DirEntry, 0, len(children))
		for _, child := range children {
			full := path.Join(name, child)
			if entry, isFile := p.files[full]; isFile {
				entries = append(entries, pckInfo{name: child, size: entry.size})
			} else {
				entries = append(entries, pckInfo{name: child, dir: true})
			}
		}
		return &pckDir{info: pckInfo{name: path.Base(name), dir: true}, entries: entries}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

type pckInfo struct {
	name string
	size int64
	dir  bool
}

func (i pckInfo) Name() string       { return i.name }
func (i pckInfo) Size() int64        { return i.size }
func (i pckInfo) ModTime() time.Time { return time.Time{} }
func (i pckInfo) IsDir() bool        { return i.dir }
func (i pckInfo) Sys() any           { return nil }

func (i pckInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o555
	}
	return 0o444
}

func (i pckInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i pckInfo) Info() (fs.FileInfo, error) { return i, nil }

type pckFile struct {
	*io.SectionReader
	info pckInfo
}

func (f *pckFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *pckFile) Close() error               { return nil }

type pckDir struct {
	info    pckInfo
	entries []fs.DirEntry
	offset  int
}

func (d *pckDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *pckDir) Close() error               { return nil }

func (d *pckDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: errors.New("is a directory")}
}

func (d *pckDir) ReadDir(n int) ([]fs.DirEntry, error) {
	remaining := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	d.offset += n
	return remaining[:n], nil
}
