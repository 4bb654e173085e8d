package storage

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
)

// Partition identifies a physical storage medium
type Partition int

const (
	PartitionSdCard Partition = iota
	PartitionNANDUser
	PartitionNANDSystem
	PartitionNANDSafe
	PartitionPRODINFOF
	PartitionGameCard
)

// DefaultWorkBufferSize bounds the scratch buffer used by copies
const DefaultWorkBufferSize = 4 * 1024 * 1024

var partitionPrefixes = map[Partition]string{
	PartitionSdCard:     "sdmc",
	PartitionNANDUser:   "bis-user",
	PartitionNANDSystem: "bis-system",
	PartitionNANDSafe:   "bis-safe",
	PartitionPRODINFOF:  "prodinfof",
	PartitionGameCard:   "gamecard",
}

// AllPartitions lists every partition in display order
var AllPartitions = []Partition{
	PartitionSdCard,
	PartitionNANDUser,
	PartitionNANDSystem,
	PartitionNANDSafe,
	PartitionPRODINFOF,
	PartitionGameCard,
}

// Prefix returns the mount prefix of the partition, without the trailing colon
func (p Partition) Prefix() string {
	return partitionPrefixes[p]
}

func (p Partition) String() string {
	if prefix, ok := partitionPrefixes[p]; ok {
		return prefix
	}
	return fmt.Sprintf("partition(%d)", int(p))
}

// ParsePartition maps a mount prefix back to its partition
func ParsePartition(prefix string) (Partition, bool) {
	prefix = strings.TrimSuffix(strings.ToLower(prefix), ":")
	for p, name := range partitionPrefixes {
		if name == prefix {
			return p, true
		}
	}
	return 0, false
}

// Mounts owns one backend per mounted partition and routes prefixed paths to them
type Mounts struct {
	backends       map[Partition]Backend
	workBufferSize int
}

// NewMounts creates an empty mount table. A non-positive work buffer size selects
// DefaultWorkBufferSize.
func NewMounts(workBufferSize int) *Mounts {
	if workBufferSize <= 0 {
		workBufferSize = DefaultWorkBufferSize
	}
	return &Mounts{
		backends:       make(map[Partition]Backend),
		workBufferSize: workBufferSize,
	}
}

// Mount attaches a backend to a partition, replacing any previous one
func (m *Mounts) Mount(p Partition, b Backend) {
	slog.Debug("Mounted partition", "partition", p.String(), "backend", b.Name())
	m.backends[p] = b
}

// Backend returns the backend mounted for a partition
func (m *Mounts) Backend(p Partition) (Backend, bool) {
	b, ok := m.backends[p]
	return b, ok
}

// Resolve splits a prefixed path into its backend and the path inside it
func (m *Mounts) Resolve(full string) (Backend, string, error) {
	prefix, inner, found := strings.Cut(full, ":")
	if !found {
		return nil, "", fmt.Errorf("path %q has no partition prefix: %w", full, ErrNotMounted)
	}

	p, ok := ParsePartition(prefix)
	if !ok {
		return nil, "", fmt.Errorf("unknown partition %q: %w", prefix, ErrNotMounted)
	}
	b, ok := m.backends[p]
	if !ok {
		return nil, "", fmt.Errorf("partition %s: %w", p, ErrNotMounted)
	}

	return b, path.Clean("/" + inner), nil
}

// TotalSpace returns the capacity of a partition, or 0 if it is not mounted
func (m *Mounts) TotalSpace(p Partition) uint64 {
	if b, ok := m.backends[p]; ok {
		return b.TotalSpace()
	}
	return 0
}

// FreeSpace returns the free bytes of a partition, or 0 if it is not mounted
func (m *Mounts) FreeSpace(p Partition) uint64 {
	if b, ok := m.backends[p]; ok {
		return b.FreeSpace()
	}
	return 0
}

// CopyFileProgress copies a single file between any two mounted paths. Copies of
// large files onto the card are written as concatenation files.
//
// On cancellation or failure the partially written destination is left in place
// and the number of bytes written so far is returned with the error.
func (m *Mounts) CopyFileProgress(src, dst string, start CopyStartFunc, progress CopyProgressFunc) (uint64, error) {
	srcBackend, srcPath, err := m.Resolve(src)
	if err != nil {
		return 0, err
	}
	dstBackend, dstPath, err := m.Resolve(dst)
	if err != nil {
		return 0, err
	}
	if !srcBackend.IsFile(srcPath) {
		return 0, fmt.Errorf("source %s is not a file", src)
	}

	buf := make([]byte, m.workBufferSize)
	return m.copyFile(srcBackend, srcPath, dstBackend, dstPath, buf, start, progress)
}

// CopyDirectoryProgress recursively copies a directory between mounted paths
func (m *Mounts) CopyDirectoryProgress(src, dst string, dirStart DirectoryStartFunc, fileStart FileStartFunc, progress CopyProgressFunc) (uint64, error) {
	srcBackend, srcPath, err := m.Resolve(src)
	if err != nil {
		return 0, err
	}
	dstBackend, dstPath, err := m.Resolve(dst)
	if err != nil {
		return 0, err
	}
	if !srcBackend.IsDirectory(srcPath) {
		return 0, fmt.Errorf("source %s is not a directory", src)
	}
	if srcBackend == dstBackend && isWithin(srcPath, dstPath) {
		return 0, fmt.Errorf("copying %s to %s: %w", src, dst, ErrCopyIntoSelf)
	}

	buf := make([]byte, m.workBufferSize)
	return m.copyDirectory(srcBackend, srcPath, dstBackend, dstPath, buf, dirStart, fileStart, progress)
}

// isWithin reports whether p is dir or lies below it
func isWithin(dir, p string) bool {
	dir, p = path.Clean("/"+dir), path.Clean("/"+p)
	return p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, "/")+"/")
}

func (m *Mounts) copyDirectory(srcBackend Backend, srcDir string, dstBackend Backend, dstDir string, buf []byte, dirStart DirectoryStartFunc, fileStart FileStartFunc, progress CopyProgressFunc) (uint64, error) {
	if dirStart != nil {
		dirStart(srcDir)
	}
	if err := dstBackend.CreateDirectory(dstDir); err != nil {
		return 0, err
	}

	files, err := srcBackend.ListFiles(srcDir)
	if err != nil {
		return 0, err
	}

	var copied uint64
	for _, name := range files {
		srcPath := path.Join(srcDir, name)
		var start CopyStartFunc
		if fileStart != nil {
			start = func(total uint64) { fileStart(srcPath, total) }
		}
		n, err := m.copyFile(srcBackend, srcPath, dstBackend, path.Join(dstDir, name), buf, start, progress)
		copied += n
		if err != nil {
			return copied, err
		}
	}

	dirs, err := srcBackend.ListDirectories(srcDir)
	if err != nil {
		return copied, err
	}
	for _, name := range dirs {
		n, err := m.copyDirectory(srcBackend, path.Join(srcDir, name), dstBackend, path.Join(dstDir, name), buf, dirStart, fileStart, progress)
		copied += n
		if err != nil {
			return copied, err
		}
	}

	return copied, nil
}

func (m *Mounts) copyFile(srcBackend Backend, srcPath string, dstBackend Backend, dstPath string, buf []byte, start CopyStartFunc, progress CopyProgressFunc) (uint64, error) {
	total := srcBackend.FileSize(srcPath)

	sd, hasSd := m.backends[PartitionSdCard]
	if hasSd && dstBackend == sd && total >= LargeFileThreshold {
		slog.Debug("Creating concatenation file", "path", dstPath, "size", total)
		if err := dstBackend.CreateConcatenationFile(dstPath); err != nil {
			return 0, err
		}
	} else {
		if err := dstBackend.DeleteFile(dstPath); err != nil {
			return 0, err
		}
		if err := dstBackend.CreateFile(dstPath); err != nil {
			return 0, err
		}
	}

	if start != nil {
		start(total)
	}
	return CopyStream(srcBackend, srcPath, dstBackend, dstPath, total, buf, progress)
}

// CopyStream copies total bytes from srcPath to the end of dstPath through buf.
// Both files are held open for the whole copy and closed on every return path.
func CopyStream(srcBackend Backend, srcPath string, dstBackend Backend, dstPath string, total uint64, buf []byte, progress CopyProgressFunc) (written uint64, err error) {
	if err := srcBackend.StartFile(srcPath, FileModeRead); err != nil {
		return 0, err
	}
	defer func() {
		if endErr := srcBackend.EndFile(); endErr != nil && err == nil {
			err = endErr
		}
	}()
	if err := dstBackend.StartFile(dstPath, FileModeAppend); err != nil {
		return 0, err
	}
	defer func() {
		if endErr := dstBackend.EndFile(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	for written < total {
		chunk := buf
		if rem := total - written; rem < uint64(len(chunk)) {
			chunk = chunk[:rem]
		}

		n, err := srcBackend.ReadFile(srcPath, written, chunk)
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("reading %s at %d of %d: %w", srcPath, written, total, io.ErrUnexpectedEOF)
		}

		w, err := dstBackend.WriteFile(dstPath, chunk[:n])
		written += uint64(w)
		if err != nil {
			return written, err
		}

		if progress != nil && !progress(written, total) {
			slog.Debug("Copy canceled", "source", srcPath, "destination", dstPath, "written", written, "total", total)
			return written, ErrCopyCanceled
		}
	}

	return written, nil
}
