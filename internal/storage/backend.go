// Package storage provides path-addressed byte I/O over the console's physical
// partitions. Each partition is served by one Backend; Mounts resolves prefixed
// paths such as "sdmc:/switch/game.nsp" to the backend responsible for them.
package storage

import (
	"errors"
)

// FileMode selects how StartFile opens a scoped handle
type FileMode int

const (
	FileModeRead FileMode = iota
	FileModeWrite
	FileModeAppend
)

var (
	// ErrNotMounted is returned when a path prefix does not match any mounted partition
	ErrNotMounted = errors.New("partition not mounted")

	// ErrCopyCanceled is returned when a progress callback asks a copy to stop
	ErrCopyCanceled = errors.New("copy canceled")

	// ErrOffsetRange is returned for reads past the largest representable offset
	ErrOffsetRange = errors.New("offset out of range")

	// ErrCopyIntoSelf is returned when a directory would be copied into its own subtree
	ErrCopyIntoSelf = errors.New("destination is inside the source directory")
)

// Backend is byte-level access to a single storage medium.
//
// Paths are absolute within the backend ("/switch/game.nsp"). StartFile opens a
// scoped handle that subsequent ReadFile/WriteFile calls on the same path reuse
// until EndFile; without one, every call opens and closes its own handle.
type Backend interface {
	Name() string

	StartFile(path string, mode FileMode) error
	EndFile() error

	// ReadFile reads up to len(buf) bytes at offset and returns how many were read.
	// Reading at or past the end of the file is not an error.
	ReadFile(path string, offset uint64, buf []byte) (int, error)
	// WriteFile appends data to the file.
	WriteFile(path string, data []byte) (int, error)

	CreateFile(path string) error
	DeleteFile(path string) error
	CreateDirectory(path string) error
	DeleteDirectory(path string) error
	CreateConcatenationFile(path string) error

	IsFile(path string) bool
	IsDirectory(path string) bool
	FileSize(path string) uint64
	ListFiles(dir string) ([]string, error)
	ListDirectories(dir string) ([]string, error)

	TotalSpace() uint64
	FreeSpace() uint64
}

// CopyStartFunc is called once before a file copy begins with the total byte count
type CopyStartFunc func(total uint64)

// CopyProgressFunc is called after each chunk. Returning false stops the copy.
type CopyProgressFunc func(written, total uint64) bool

// DirectoryStartFunc is called when a directory copy begins
type DirectoryStartFunc func(dir string)

// FileStartFunc is called before each file of a directory copy
type FileStartFunc func(path string, total uint64)
