package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path"
	"sort"

	"github.com/spf13/afero"
)

// SpaceFunc reports total and free bytes for a backend
type SpaceFunc func() (total uint64, free uint64)

// FileBackend implements Backend on top of an afero filesystem
type FileBackend struct {
	name      string
	fs        afero.Fs
	space     SpaceFunc
	splitSize uint64
	scoped    *scopedFile
}

type scopedFile struct {
	path string
	mode FileMode
	file afero.File
}

// BackendOption configures a FileBackend
type BackendOption func(*FileBackend)

// WithSplitSize overrides the part size used for concatenation files
func WithSplitSize(size uint64) BackendOption {
	return func(b *FileBackend) {
		if size > 0 {
			b.splitSize = size
		}
	}
}

// WithSpace overrides how total and free space are reported
func WithSpace(fn SpaceFunc) BackendOption {
	return func(b *FileBackend) {
		b.space = fn
	}
}

// NewFileBackend wraps an arbitrary afero filesystem
func NewFileBackend(name string, fsys afero.Fs, opts ...BackendOption) *FileBackend {
	b := &FileBackend{
		name:      name,
		fs:        fsys,
		splitSize: DefaultSplitSize,
		space:     func() (uint64, uint64) { return 0, 0 },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewOSBackend serves a directory of the host filesystem as a partition
func NewOSBackend(name, root string, opts ...BackendOption) (*FileBackend, error) {
	if root == "" {
		return nil, fmt.Errorf("root for %s cannot be empty", name)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating root for %s: %w", name, err)
	}

	base := afero.NewBasePathFs(afero.NewOsFs(), root)
	opts = append([]BackendOption{WithSpace(func() (uint64, uint64) {
		return statfsSpace(root)
	})}, opts...)

	return NewFileBackend(name, base, opts...), nil
}

// NewMemoryBackend returns an in-memory partition with a fixed capacity. It is
// mostly useful for tests.
func NewMemoryBackend(name string, capacity uint64, opts ...BackendOption) *FileBackend {
	mem := afero.NewMemMapFs()
	opts = append([]BackendOption{WithSpace(func() (uint64, uint64) {
		used := usedBytes(mem)
		if used >= capacity {
			return capacity, 0
		}
		return capacity, capacity - used
	})}, opts...)

	return NewFileBackend(name, mem, opts...)
}

// Name returns the partition name this backend serves
func (b *FileBackend) Name() string {
	return b.name
}

// StartFile opens a scoped handle on path. Any previously scoped handle is closed.
func (b *FileBackend) StartFile(p string, mode FileMode) error {
	if err := b.EndFile(); err != nil {
		return err
	}
	if b.isConcatenation(p) {
		// parts are opened per call
		b.scoped = &scopedFile{path: p, mode: mode}
		return nil
	}

	f, err := b.fs.OpenFile(p, openFlags(mode), 0644)
	if err != nil {
		return fmt.Errorf("opening %s on %s: %w", p, b.name, err)
	}
	b.scoped = &scopedFile{path: p, mode: mode, file: f}
	return nil
}

// EndFile closes the scoped handle, if any
func (b *FileBackend) EndFile() error {
	if b.scoped == nil {
		return nil
	}
	s := b.scoped
	b.scoped = nil
	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("closing %s on %s: %w", s.path, b.name, err)
	}
	return nil
}

// ReadFile reads up to len(buf) bytes from path starting at offset
func (b *FileBackend) ReadFile(p string, offset uint64, buf []byte) (int, error) {
	if b.isConcatenation(p) {
		return b.readConcatenation(p, offset, buf)
	}

	if s := b.scoped; s != nil && s.path == p && s.file != nil && s.mode == FileModeRead {
		return readAt(s.file, buf, offset)
	}

	f, err := b.fs.Open(p)
	if err != nil {
		return 0, fmt.Errorf("opening %s on %s: %w", p, b.name, err)
	}
	defer f.Close()

	return readAt(f, buf, offset)
}

// WriteFile appends data to path
func (b *FileBackend) WriteFile(p string, data []byte) (int, error) {
	if b.isConcatenation(p) {
		return b.writeConcatenation(p, data)
	}

	if s := b.scoped; s != nil && s.path == p && s.file != nil && s.mode != FileModeRead {
		n, err := s.file.Write(data)
		if err != nil {
			return n, fmt.Errorf("writing %s on %s: %w", p, b.name, err)
		}
		return n, nil
	}

	f, err := b.fs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("opening %s on %s: %w", p, b.name, err)
	}
	defer f.Close()

	n, err := f.Write(data)
	if err != nil {
		return n, fmt.Errorf("writing %s on %s: %w", p, b.name, err)
	}
	return n, nil
}

// CreateFile creates an empty file, creating parent directories as needed
func (b *FileBackend) CreateFile(p string) error {
	if err := b.fs.MkdirAll(path.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating parent of %s on %s: %w", p, b.name, err)
	}
	f, err := b.fs.Create(p)
	if err != nil {
		return fmt.Errorf("creating %s on %s: %w", p, b.name, err)
	}
	return f.Close()
}

// DeleteFile removes a file. Deleting a missing file is not an error.
func (b *FileBackend) DeleteFile(p string) error {
	if b.scoped != nil && b.scoped.path == p {
		if err := b.EndFile(); err != nil {
			return err
		}
	}

	var err error
	if b.isConcatenation(p) {
		err = b.fs.RemoveAll(p)
	} else {
		err = b.fs.Remove(p)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s on %s: %w", p, b.name, err)
	}
	return nil
}

// CreateDirectory creates a directory and any missing parents
func (b *FileBackend) CreateDirectory(p string) error {
	if err := b.fs.MkdirAll(p, 0755); err != nil {
		return fmt.Errorf("creating directory %s on %s: %w", p, b.name, err)
	}
	return nil
}

// DeleteDirectory removes a directory and everything below it
func (b *FileBackend) DeleteDirectory(p string) error {
	if err := b.fs.RemoveAll(p); err != nil {
		return fmt.Errorf("deleting directory %s on %s: %w", p, b.name, err)
	}
	return nil
}

// IsFile reports whether path is a regular file or a concatenation file
func (b *FileBackend) IsFile(p string) bool {
	info, err := b.fs.Stat(p)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return b.isConcatenation(p)
	}
	return true
}

// IsDirectory reports whether path is a plain directory
func (b *FileBackend) IsDirectory(p string) bool {
	ok, err := afero.DirExists(b.fs, p)
	return err == nil && ok && !b.isConcatenation(p)
}

// FileSize returns the size of a file, or 0 if it doesn't exist
func (b *FileBackend) FileSize(p string) uint64 {
	if b.isConcatenation(p) {
		var total uint64
		for _, part := range b.concatenationParts(p) {
			total += b.FileSize(part)
		}
		return total
	}

	info, err := b.fs.Stat(p)
	if err != nil || info.IsDir() {
		return 0
	}
	return uint64(info.Size())
}

// ListFiles returns the names of files directly inside dir, sorted
func (b *FileBackend) ListFiles(dir string) ([]string, error) {
	return b.list(dir, true)
}

// ListDirectories returns the names of directories directly inside dir, sorted
func (b *FileBackend) ListDirectories(dir string) ([]string, error) {
	return b.list(dir, false)
}

func (b *FileBackend) list(dir string, files bool) ([]string, error) {
	infos, err := afero.ReadDir(b.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s on %s: %w", dir, b.name, err)
	}

	var names []string
	for _, info := range infos {
		child := path.Join(dir, info.Name())
		isFile := !info.IsDir() || b.isConcatenation(child)
		if isFile == files {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// TotalSpace returns the capacity of the partition in bytes
func (b *FileBackend) TotalSpace() uint64 {
	total, _ := b.space()
	return total
}

// FreeSpace returns the free bytes left on the partition
func (b *FileBackend) FreeSpace() uint64 {
	_, free := b.space()
	return free
}

func openFlags(mode FileMode) int {
	switch mode {
	case FileModeWrite:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case FileModeAppend:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	default:
		return os.O_RDONLY
	}
}

func readAt(r io.ReaderAt, buf []byte, offset uint64) (int, error) {
	if offset > math.MaxInt64 {
		return 0, fmt.Errorf("reading at offset %d: %w", offset, ErrOffsetRange)
	}
	n, err := r.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("reading at offset %d: %w", offset, err)
	}
	return n, nil
}

func usedBytes(fsys afero.Fs) uint64 {
	var used uint64
	err := afero.Walk(fsys, "/", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			used += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		slog.Debug("Walking memory backend failed", "error", err)
	}
	return used
}
