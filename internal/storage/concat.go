package storage

import (
	"fmt"
	"path"

	"github.com/spf13/afero"
)

// The removable card is FAT32 formatted, so files past 4 GiB are stored as a
// directory of numbered parts that reads and writes treat as one file.
const (
	// DefaultSplitSize is the largest part written into a concatenation file
	DefaultSplitSize uint64 = 0xFFFF0000

	// LargeFileThreshold is the size at which copies to the card need splitting
	LargeFileThreshold uint64 = 4 * 1024 * 1024 * 1024

	concatMarker = ".concatenation"
)

// CreateConcatenationFile creates an empty concatenation file at path
func (b *FileBackend) CreateConcatenationFile(p string) error {
	if err := b.DeleteFile(p); err != nil {
		return err
	}
	if err := b.fs.MkdirAll(p, 0755); err != nil {
		return fmt.Errorf("creating concatenation file %s on %s: %w", p, b.name, err)
	}
	if err := afero.WriteFile(b.fs, path.Join(p, concatMarker), nil, 0644); err != nil {
		return fmt.Errorf("marking concatenation file %s on %s: %w", p, b.name, err)
	}
	return nil
}

func (b *FileBackend) isConcatenation(p string) bool {
	ok, err := afero.Exists(b.fs, path.Join(p, concatMarker))
	return err == nil && ok
}

func partName(p string, i int) string {
	return path.Join(p, fmt.Sprintf("%02d", i))
}

func (b *FileBackend) concatenationParts(p string) []string {
	var parts []string
	for i := 0; ; i++ {
		part := partName(p, i)
		if ok, err := afero.Exists(b.fs, part); err != nil || !ok {
			return parts
		}
		parts = append(parts, part)
	}
}

func (b *FileBackend) readConcatenation(p string, offset uint64, buf []byte) (int, error) {
	parts := b.concatenationParts(p)

	n := 0
	for n < len(buf) {
		if offset/b.splitSize >= uint64(len(parts)) {
			break
		}
		idx := int(offset / b.splitSize)
		f, err := b.fs.Open(parts[idx])
		if err != nil {
			return n, fmt.Errorf("opening part %s on %s: %w", parts[idx], b.name, err)
		}
		read, err := readAt(f, buf[n:], offset%b.splitSize)
		f.Close()
		if err != nil {
			return n, err
		}
		if read == 0 {
			break
		}
		n += read
		offset += uint64(read)
	}
	return n, nil
}

func (b *FileBackend) writeConcatenation(p string, data []byte) (int, error) {
	parts := b.concatenationParts(p)
	idx := len(parts) - 1
	var partSize uint64
	if idx < 0 {
		idx = 0
	} else {
		partSize = b.FileSize(parts[idx])
	}

	n := 0
	for n < len(data) {
		if partSize >= b.splitSize {
			idx++
			partSize = 0
		}
		chunk := data[n:]
		if room := b.splitSize - partSize; uint64(len(chunk)) > room {
			chunk = chunk[:room]
		}

		f, err := b.fs.OpenFile(partName(p, idx), appendFlags, 0644)
		if err != nil {
			return n, fmt.Errorf("opening part %d of %s on %s: %w", idx, p, b.name, err)
		}
		written, err := f.Write(chunk)
		f.Close()
		n += written
		partSize += uint64(written)
		if err != nil {
			return n, fmt.Errorf("writing part %d of %s on %s: %w", idx, p, b.name, err)
		}
	}
	return n, nil
}

var appendFlags = openFlags(FileModeAppend)
