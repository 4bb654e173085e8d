// Package pfs0 reads PFS0 containers: flat archives made of a fixed header, an
// entry table, a NUL-separated string table and the raw payloads.
//
// Opening a file that is not a container is not an error. The returned Reader
// is simply invalid and every query on it yields an empty result, which lets
// callers probe arbitrary files cheaply.
package pfs0

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/nxpkg/internal/storage"
)

// ErrExtractCanceled is returned when a progress callback stops an extraction
var ErrExtractCanceled = errors.New("extraction canceled")

// Reader gives indexed access to the files embedded in a container
type Reader struct {
	path           string
	backend        storage.Backend
	ok             bool
	headerSize     uint64
	stringTable    []byte
	entries        []Entry
	workBufferSize int
}

// Option configures a Reader
type Option func(*Reader)

// WithWorkBufferSize sets the scratch buffer size used by ExtractTo
func WithWorkBufferSize(size int) Option {
	return func(r *Reader) {
		if size > 0 {
			r.workBufferSize = size
		}
	}
}

// Open parses the container at path. Only I/O failures are returned as errors; a
// file without the PFS0 magic yields an invalid Reader.
func Open(backend storage.Backend, path string, opts ...Option) (*Reader, error) {
	r := &Reader{
		path:           path,
		backend:        backend,
		workBufferSize: DefaultWorkBufferSize,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := backend.StartFile(path, storage.FileModeRead); err != nil {
		return nil, fmt.Errorf("opening container %s: %w", path, err)
	}
	if err := r.load(); err != nil {
		backend.EndFile()
		return nil, fmt.Errorf("loading container %s: %w", path, err)
	}
	if err := backend.EndFile(); err != nil {
		return nil, fmt.Errorf("closing container %s: %w", path, err)
	}

	slog.Debug("Opened container", "path", path, "valid", r.ok, "file_count", len(r.entries))
	return r, nil
}

func (r *Reader) load() error {
	raw := make([]byte, headerSize)
	n, err := r.backend.ReadFile(r.path, 0, raw)
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if uint64(n) < headerSize {
		return nil
	}

	var h header
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("decoding header: %w", err)
	}
	if h.Magic != Magic {
		return nil
	}

	stringTableOffset := headerSize + uint64(h.FileCount)*entrySize
	totalHeaderSize := stringTableOffset + uint64(h.StringTableSize)

	// a header claiming more than the file holds would make us allocate for it
	if fileSize := r.backend.FileSize(r.path); totalHeaderSize > fileSize {
		slog.Debug("Container header exceeds file size",
			"path", r.path,
			"file_count", h.FileCount,
			"string_table_size", h.StringTableSize,
			"file_size", fileSize)
		return nil
	}

	r.stringTable = make([]byte, h.StringTableSize)
	if _, err := r.backend.ReadFile(r.path, stringTableOffset, r.stringTable); err != nil {
		return fmt.Errorf("reading string table: %w", err)
	}

	table := make([]byte, uint64(h.FileCount)*entrySize)
	if _, err := r.backend.ReadFile(r.path, headerSize, table); err != nil {
		return fmt.Errorf("reading entry table: %w", err)
	}

	rd := bytes.NewReader(table)
	r.entries = make([]Entry, 0, h.FileCount)
	for i := uint32(0); i < h.FileCount; i++ {
		var fe fileEntry
		if err := binary.Read(rd, binary.LittleEndian, &fe); err != nil {
			return fmt.Errorf("decoding entry %d: %w", i, err)
		}
		r.entries = append(r.entries, Entry{
			Offset:            fe.Offset,
			Size:              fe.Size,
			StringTableOffset: fe.StringTableOffset,
			Name:              readName(r.stringTable, fe.StringTableOffset),
		})
	}

	r.headerSize = totalHeaderSize
	r.ok = true
	return nil
}

// readName scans from offset to the first NUL. A name running into the end of
// the table without a terminator is kept as is.
func readName(table []byte, offset uint32) string {
	if uint64(offset) >= uint64(len(table)) {
		return ""
	}
	rest := table[offset:]
	if end := bytes.IndexByte(rest, 0); end >= 0 {
		rest = rest[:end]
	}
	return string(rest)
}

// IsValid reports whether the file carried the PFS0 magic
func (r *Reader) IsValid() bool {
	return r.ok
}

// Path returns the backing path of the container
func (r *Reader) Path() string {
	return r.path
}

// Count returns the number of embedded files
func (r *Reader) Count() int {
	return len(r.entries)
}

// HeaderSize returns the byte length of header, entry table and string table
func (r *Reader) HeaderSize() uint64 {
	return r.headerSize
}

func (r *Reader) entry(idx uint32) (Entry, bool) {
	if IsInvalidIndex(idx) || uint64(idx) >= uint64(len(r.entries)) {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// FileName returns the name of the entry, or "" for an invalid index
func (r *Reader) FileName(idx uint32) string {
	e, _ := r.entry(idx)
	return e.Name
}

// FileSize returns the payload size of the entry, or 0 for an invalid index
func (r *Reader) FileSize(idx uint32) uint64 {
	e, _ := r.entry(idx)
	return e.Size
}

// ListFileNames returns the names of all entries in file order
func (r *Reader) ListFileNames() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the entry table
func (r *Reader) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// IndexOf finds the first entry whose name matches case-insensitively
func (r *Reader) IndexOf(name string) uint32 {
	for i, e := range r.entries {
		if strings.EqualFold(e.Name, name) {
			return uint32(i)
		}
	}
	return InvalidIndex
}

// ReadAt reads len(buf) bytes of the entry's payload starting at offset. Bounds
// are left to the backend, so reads near the end of the payload may return fewer
// bytes or spill into the next one.
func (r *Reader) ReadAt(idx uint32, offset uint64, buf []byte) (int, error) {
	e, ok := r.entry(idx)
	if !ok {
		return 0, nil
	}
	start := r.headerSize + e.Offset
	if start < e.Offset || start+offset < start {
		return 0, fmt.Errorf("reading %s: payload offset 0x%X overflows: %w", e.Name, e.Offset, storage.ErrOffsetRange)
	}
	return r.backend.ReadFile(r.path, start+offset, buf)
}

// ExtractTo writes the entry's payload to dstPath on dst
func (r *Reader) ExtractTo(idx uint32, dst storage.Backend, dstPath string) (uint64, error) {
	return r.ExtractToProgress(idx, dst, dstPath, nil)
}

// ExtractToProgress writes the entry's payload to dstPath, calling progress after
// every chunk. If progress returns false the copy stops, both files are closed
// and the partial destination is left behind; the returned count says how much
// of it was written.
func (r *Reader) ExtractToProgress(idx uint32, dst storage.Backend, dstPath string, progress storage.CopyProgressFunc) (written uint64, err error) {
	e, ok := r.entry(idx)
	if !ok {
		return 0, nil
	}

	if err := dst.DeleteFile(dstPath); err != nil {
		return 0, fmt.Errorf("removing %s: %w", dstPath, err)
	}
	if err := dst.CreateFile(dstPath); err != nil {
		return 0, fmt.Errorf("creating %s: %w", dstPath, err)
	}

	if err := r.backend.StartFile(r.path, storage.FileModeRead); err != nil {
		return 0, fmt.Errorf("opening container %s: %w", r.path, err)
	}
	defer func() {
		if endErr := r.backend.EndFile(); endErr != nil && err == nil {
			err = endErr
		}
	}()
	if err := dst.StartFile(dstPath, storage.FileModeAppend); err != nil {
		return 0, fmt.Errorf("opening %s: %w", dstPath, err)
	}
	defer func() {
		if endErr := dst.EndFile(); endErr != nil && err == nil {
			err = endErr
		}
	}()

	buf := make([]byte, r.workBufferSize)
	for written < e.Size {
		chunk := buf
		if rem := e.Size - written; rem < uint64(len(chunk)) {
			chunk = chunk[:rem]
		}

		n, err := r.ReadAt(idx, written, chunk)
		if err != nil {
			return written, fmt.Errorf("reading %s from %s: %w", e.Name, r.path, err)
		}
		if n == 0 {
			return written, fmt.Errorf("reading %s from %s: payload truncated at %d of %d bytes", e.Name, r.path, written, e.Size)
		}

		w, err := dst.WriteFile(dstPath, chunk[:n])
		written += uint64(w)
		if err != nil {
			return written, fmt.Errorf("writing %s: %w", dstPath, err)
		}

		if progress != nil && !progress(written, e.Size) {
			return written, ErrExtractCanceled
		}
	}

	slog.Debug("Extracted entry", "name", e.Name, "destination", dstPath, "size", written)
	return written, nil
}
