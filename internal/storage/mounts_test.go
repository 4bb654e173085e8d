package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMounts(t *testing.T, workBuffer int) (*Mounts, *FileBackend, *FileBackend) {
	t.Helper()
	m := NewMounts(workBuffer)
	sd := NewMemoryBackend("sdmc", 1<<30, WithSplitSize(256))
	nand := NewMemoryBackend("bis-user", 1<<20)
	m.Mount(PartitionSdCard, sd)
	m.Mount(PartitionNANDUser, nand)
	return m, sd, nand
}

func TestParsePartition(t *testing.T) {
	for _, p := range AllPartitions {
		got, ok := ParsePartition(p.Prefix())
		require.True(t, ok, p.Prefix())
		assert.Equal(t, p, got)
	}

	p, ok := ParsePartition("SDMC:")
	require.True(t, ok)
	assert.Equal(t, PartitionSdCard, p)

	_, ok = ParsePartition("usb")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	m, sd, _ := newTestMounts(t, 0)

	b, p, err := m.Resolve("sdmc:/switch/../games/app.nsp")
	require.NoError(t, err)
	assert.Same(t, sd, b)
	assert.Equal(t, "/games/app.nsp", p)

	b, p, err = m.Resolve("sdmc:relative")
	require.NoError(t, err)
	assert.Same(t, sd, b)
	assert.Equal(t, "/relative", p)

	_, _, err = m.Resolve("/no/prefix")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, _, err = m.Resolve("gamecard:/secure")
	assert.ErrorIs(t, err, ErrNotMounted)

	_, _, err = m.Resolve("usb:/x")
	assert.ErrorIs(t, err, ErrNotMounted)
}

func TestSpaceOfUnmountedPartition(t *testing.T) {
	m, _, _ := newTestMounts(t, 0)

	assert.Zero(t, m.TotalSpace(PartitionGameCard))
	assert.Zero(t, m.FreeSpace(PartitionGameCard))
	assert.Equal(t, uint64(1<<20), m.TotalSpace(PartitionNANDUser))
	assert.Equal(t, uint64(1<<20), m.FreeSpace(PartitionNANDUser))
}

func TestCopyFileProgress(t *testing.T) {
	m, sd, nand := newTestMounts(t, 100)
	payload := pattern(1000)
	writeFile(t, nand, "/save/data.bin", payload)

	var started uint64
	var calls int
	n, err := m.CopyFileProgress("bis-user:/save/data.bin", "sdmc:/backup/data.bin",
		func(total uint64) { started = total },
		func(written, total uint64) bool {
			calls++
			return true
		})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n)
	assert.Equal(t, uint64(1000), started)
	assert.Equal(t, 10, calls)

	// below the large file threshold the copy is a plain file
	assert.True(t, sd.IsFile("/backup/data.bin"))
	assert.False(t, sd.IsFile("/backup/data.bin/00"))
	assert.Equal(t, payload, readAll(t, sd, "/backup/data.bin"))
}

func TestCopyFileReplacesDestination(t *testing.T) {
	m, sd, nand := newTestMounts(t, 64)
	writeFile(t, nand, "/a.bin", []byte("fresh"))
	writeFile(t, sd, "/a.bin", []byte("stale stale stale"))

	_, err := m.CopyFileProgress("bis-user:/a.bin", "sdmc:/a.bin", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(readAll(t, sd, "/a.bin")))
}

func TestCopyFileWithinBackend(t *testing.T) {
	m, sd, _ := newTestMounts(t, 16)
	payload := pattern(100)
	writeFile(t, sd, "/a.bin", payload)

	n, err := m.CopyFileProgress("sdmc:/a.bin", "sdmc:/b.bin", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)
	assert.Equal(t, payload, readAll(t, sd, "/b.bin"))
}

func TestCopyFileRejectsDirectory(t *testing.T) {
	m, sd, _ := newTestMounts(t, 16)
	require.NoError(t, sd.CreateDirectory("/dir"))

	_, err := m.CopyFileProgress("sdmc:/dir", "bis-user:/dir", nil, nil)
	assert.Error(t, err)

	_, err = m.CopyDirectoryProgress("sdmc:/missing", "bis-user:/dir", nil, nil, nil)
	assert.Error(t, err)
}

func TestCopyCancel(t *testing.T) {
	m, sd, nand := newTestMounts(t, 100)
	writeFile(t, nand, "/data.bin", pattern(1000))

	n, err := m.CopyFileProgress("bis-user:/data.bin", "sdmc:/data.bin", nil,
		func(written, total uint64) bool { return written < 300 })
	require.ErrorIs(t, err, ErrCopyCanceled)
	assert.Equal(t, uint64(300), n)
	assert.Equal(t, uint64(300), sd.FileSize("/data.bin"))
}

func TestCopyDirectoryProgress(t *testing.T) {
	m, sd, nand := newTestMounts(t, 32)
	writeFile(t, nand, "/Contents/a.bin", pattern(10))
	writeFile(t, nand, "/Contents/b.bin", pattern(100))
	writeFile(t, nand, "/Contents/sub/c.bin", pattern(50))
	require.NoError(t, nand.CreateDirectory("/Contents/empty"))

	var dirs []string
	files := map[string]uint64{}
	n, err := m.CopyDirectoryProgress("bis-user:/Contents", "sdmc:/backup",
		func(dir string) { dirs = append(dirs, dir) },
		func(p string, total uint64) { files[p] = total },
		func(written, total uint64) bool { return true })
	require.NoError(t, err)

	assert.Equal(t, uint64(160), n)
	assert.Equal(t, []string{"/Contents", "/Contents/empty", "/Contents/sub"}, dirs)
	assert.Equal(t, map[string]uint64{
		"/Contents/a.bin":     10,
		"/Contents/b.bin":     100,
		"/Contents/sub/c.bin": 50,
	}, files)

	assert.Equal(t, pattern(100), readAll(t, sd, "/backup/b.bin"))
	assert.Equal(t, pattern(50), readAll(t, sd, "/backup/sub/c.bin"))
	assert.True(t, sd.IsDirectory("/backup/empty"))
}

func TestCopyStreamSplitsOntoConcatenation(t *testing.T) {
	sd := NewMemoryBackend("sdmc", 1<<30, WithSplitSize(256))
	nand := NewMemoryBackend("bis-user", 1<<30)
	payload := pattern(1000)
	writeFile(t, nand, "/big.bin", payload)
	require.NoError(t, sd.CreateConcatenationFile("/big.bin"))

	n, err := CopyStream(nand, "/big.bin", sd, "/big.bin", uint64(len(payload)), make([]byte, 300), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), n)
	assert.Equal(t, uint64(256), sd.FileSize("/big.bin/00"))
	assert.Equal(t, uint64(232), sd.FileSize("/big.bin/03"))
	assert.Equal(t, payload, readAll(t, sd, "/big.bin"))
}

func TestCopyStreamShortSource(t *testing.T) {
	sd := NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, sd, "/short.bin", pattern(10))
	require.NoError(t, sd.CreateFile("/out.bin"))

	n, err := CopyStream(sd, "/short.bin", sd, "/out.bin", 20, make([]byte, 8), nil)
	require.Error(t, err)
	assert.Equal(t, uint64(10), n)
}

func TestCopyDirectoryIntoItself(t *testing.T) {
	m, sd, nand := newTestMounts(t, 32)
	writeFile(t, sd, "/a/file.bin", pattern(10))
	writeFile(t, nand, "/a/file.bin", pattern(10))

	for _, dst := range []string{"sdmc:/a/b", "sdmc:/a", "sdmc:/a/b/c/"} {
		_, err := m.CopyDirectoryProgress("sdmc:/a", dst, nil, nil, nil)
		assert.ErrorIs(t, err, ErrCopyIntoSelf, dst)
	}
	assert.False(t, sd.IsDirectory("/a/b"))

	// a sibling sharing the name prefix is fine
	n, err := m.CopyDirectoryProgress("sdmc:/a", "sdmc:/ab", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)

	// the same path on another partition is fine
	n, err = m.CopyDirectoryProgress("bis-user:/a", "sdmc:/a/b", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), n)
}
