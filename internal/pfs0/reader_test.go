package pfs0

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/nxpkg/internal/storage"
)

type testFile struct {
	name string
	data []byte
}

// buildContainer lays files out the way packagers do: entries in order,
// payloads back to back, names NUL-terminated and the table padded to 0x20
func buildContainer(t *testing.T, files ...testFile) []byte {
	t.Helper()

	var names bytes.Buffer
	nameOffsets := make([]uint32, len(files))
	for i, f := range files {
		nameOffsets[i] = uint32(names.Len())
		names.WriteString(f.name)
		names.WriteByte(0)
	}
	for names.Len()%0x20 != 0 {
		names.WriteByte(0)
	}

	return buildRaw(t, files, nameOffsets, names.Bytes())
}

func buildRaw(t *testing.T, files []testFile, nameOffsets []uint32, stringTable []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	h := header{Magic: Magic, FileCount: uint32(len(files)), StringTableSize: uint32(len(stringTable))}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))

	var offset uint64
	for i, f := range files {
		fe := fileEntry{Offset: offset, Size: uint64(len(f.data)), StringTableOffset: nameOffsets[i]}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &fe))
		offset += uint64(len(f.data))
	}
	buf.Write(stringTable)
	for _, f := range files {
		buf.Write(f.data)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, b storage.Backend, p string, data []byte) {
	t.Helper()
	require.NoError(t, b.CreateFile(p))
	n, err := b.WriteFile(p, data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
}

func readAll(t *testing.T, b storage.Backend, p string) []byte {
	t.Helper()
	data := make([]byte, b.FileSize(p))
	n, err := b.ReadFile(p, 0, data)
	require.NoError(t, err)
	return data[:n]
}

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i/251)
	}
	return data
}

func TestOpenListsEntries(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	files := []testFile{
		{name: "main", data: pattern(300)},
		{name: "main.npdm", data: []byte("npdm")},
		{name: "control.nacp", data: pattern(64)},
	}
	writeFile(t, b, "/game.nsp", buildContainer(t, files...))

	r, err := Open(b, "/game.nsp")
	require.NoError(t, err)
	require.True(t, r.IsValid())

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"main", "main.npdm", "control.nacp"}, r.ListFileNames())
	assert.Equal(t, "main.npdm", r.FileName(1))
	assert.Equal(t, uint64(4), r.FileSize(1))

	// 0x10 header, three 0x18 entries and a 0x20 string table
	assert.Equal(t, uint64(0x10+3*0x18+0x20), r.HeaderSize())

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(304), entries[2].Offset)
	entries[0].Name = "changed"
	assert.Equal(t, "main", r.FileName(0))
}

func TestOpenInvalidContainer(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)

	cases := map[string][]byte{
		"wrong magic": append([]byte("HFS0"), make([]byte, 60)...),
		"short file":  []byte("PFS0"),
		"empty file":  {},
		"huge header": func() []byte {
			var buf bytes.Buffer
			h := header{Magic: Magic, FileCount: 0xFFFFFF, StringTableSize: 0x10}
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
			return buf.Bytes()
		}(),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			writeFile(t, b, "/bad.bin", data)

			r, err := Open(b, "/bad.bin")
			require.NoError(t, err)
			assert.False(t, r.IsValid())
			assert.Zero(t, r.Count())
			assert.Empty(t, r.ListFileNames())
			assert.Empty(t, r.FileName(0))
			assert.Zero(t, r.FileSize(0))
			assert.True(t, IsInvalidIndex(r.IndexOf("main")))

			n, err := r.ExtractTo(0, b, "/out.bin")
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.False(t, b.IsFile("/out.bin"))

			require.NoError(t, b.DeleteFile("/bad.bin"))
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)

	_, err := Open(b, "/missing.nsp")
	assert.Error(t, err)
}

func TestIndexOfIgnoresCase(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, b, "/game.nsp", buildContainer(t,
		testFile{name: "Program.NCA", data: []byte("a")},
		testFile{name: "program.nca", data: []byte("b")},
	))

	r, err := Open(b, "/game.nsp")
	require.NoError(t, err)

	assert.Equal(t, uint32(0), r.IndexOf("program.nca"))
	assert.Equal(t, uint32(0), r.IndexOf("PROGRAM.NCA"))
	assert.Equal(t, InvalidIndex, r.IndexOf("program"))
}

func TestEmptyContainer(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, b, "/empty.nsp", buildContainer(t))

	r, err := Open(b, "/empty.nsp")
	require.NoError(t, err)
	assert.True(t, r.IsValid())
	assert.Zero(t, r.Count())
	assert.Empty(t, r.ListFileNames())
}

func TestUnterminatedNameRunsToTableEnd(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	files := []testFile{
		{name: "first", data: []byte("1")},
		{name: "second", data: []byte("2")},
	}
	// neither name is terminated, so the first one swallows the second
	writeFile(t, b, "/odd.nsp", buildRaw(t, files, []uint32{0, 5}, []byte("firstsecond")))

	r, err := Open(b, "/odd.nsp")
	require.NoError(t, err)
	require.True(t, r.IsValid())
	assert.Equal(t, "firstsecond", r.FileName(0))
	assert.Equal(t, "second", r.FileName(1))
}

func TestReadAt(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, b, "/game.nsp", buildContainer(t,
		testFile{name: "a", data: []byte("hello")},
		testFile{name: "b", data: []byte("world")},
	))

	r, err := Open(b, "/game.nsp")
	require.NoError(t, err)

	buf := make([]byte, 3)
	n, err := r.ReadAt(1, 1, buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "orl", string(buf))

	n, err = r.ReadAt(InvalidIndex, 0, buf)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExtractLargerThanWorkBuffer(t *testing.T) {
	src := storage.NewMemoryBackend("sdmc", 1<<30)
	dst := storage.NewMemoryBackend("bis-user", 1<<30)
	payload := pattern(10_000)
	writeFile(t, src, "/game.nsp", buildContainer(t,
		testFile{name: "small", data: []byte("tiny")},
		testFile{name: "big", data: payload},
		testFile{name: "tail", data: []byte("after")},
	))

	r, err := Open(src, "/game.nsp", WithWorkBufferSize(1024))
	require.NoError(t, err)

	// stale content is replaced, not appended to
	writeFile(t, dst, "/out/big.bin", []byte("stale"))

	var calls int
	var last uint64
	n, err := r.ExtractToProgress(r.IndexOf("big"), dst, "/out/big.bin", func(written, total uint64) bool {
		calls++
		assert.Greater(t, written, last)
		assert.Equal(t, uint64(len(payload)), total)
		last = written
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), n)
	assert.Equal(t, 10, calls)
	assert.Equal(t, uint64(len(payload)), dst.FileSize("/out/big.bin"))
	assert.Equal(t, payload, readAll(t, dst, "/out/big.bin"))
}

func TestExtractOntoSameBackend(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	payload := pattern(5000)
	writeFile(t, b, "/game.nsp", buildContainer(t, testFile{name: "data", data: payload}))

	r, err := Open(b, "/game.nsp", WithWorkBufferSize(512))
	require.NoError(t, err)

	n, err := r.ExtractTo(0, b, "/data.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(payload)), n)
	assert.Equal(t, payload, readAll(t, b, "/data.bin"))
}

func TestExtractEmptyEntry(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, b, "/game.nsp", buildContainer(t, testFile{name: "empty", data: nil}))

	r, err := Open(b, "/game.nsp")
	require.NoError(t, err)

	n, err := r.ExtractTo(0, b, "/empty.bin")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, b.IsFile("/empty.bin"))
	assert.Zero(t, b.FileSize("/empty.bin"))
}

func TestExtractCancel(t *testing.T) {
	src := storage.NewMemoryBackend("sdmc", 1<<30)
	dst := storage.NewMemoryBackend("bis-user", 1<<30)
	writeFile(t, src, "/game.nsp", buildContainer(t, testFile{name: "big", data: pattern(4096)}))

	r, err := Open(src, "/game.nsp", WithWorkBufferSize(1024))
	require.NoError(t, err)

	var calls int
	n, err := r.ExtractToProgress(0, dst, "/big.bin", func(written, total uint64) bool {
		calls++
		return calls < 2
	})
	require.ErrorIs(t, err, ErrExtractCanceled)
	assert.Equal(t, uint64(2048), n)
	assert.Equal(t, 2, calls)

	// the partial file stays behind
	assert.Equal(t, uint64(2048), dst.FileSize("/big.bin"))
}

func TestExtractTruncatedPayload(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	data := buildContainer(t, testFile{name: "cut", data: pattern(1000)})
	writeFile(t, b, "/cut.nsp", data[:len(data)-100])

	r, err := Open(b, "/cut.nsp")
	require.NoError(t, err)
	require.True(t, r.IsValid())

	n, err := r.ExtractTo(0, b, "/cut.bin")
	require.Error(t, err)
	assert.Equal(t, uint64(900), n)
}

func TestHugePayloadOffset(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)

	high := buildContainer(t, testFile{name: "far", data: []byte("payload")})
	// bit 63 of the first entry's offset
	high[0x10+7] = 0x80
	writeFile(t, b, "/high.nsp", high)

	wrap := buildContainer(t, testFile{name: "wrap", data: []byte("payload")})
	binary.LittleEndian.PutUint64(wrap[0x10:], math.MaxUint64-4)
	writeFile(t, b, "/wrap.nsp", wrap)

	for _, p := range []string{"/high.nsp", "/wrap.nsp"} {
		r, err := Open(b, p)
		require.NoError(t, err, p)
		require.True(t, r.IsValid(), p)

		buf := make([]byte, 4)
		n, err := r.ReadAt(0, 0, buf)
		assert.ErrorIs(t, err, storage.ErrOffsetRange, p)
		assert.Zero(t, n, p)

		written, err := r.ExtractTo(0, b, "/out.bin")
		assert.ErrorIs(t, err, storage.ErrOffsetRange, p)
		assert.Zero(t, written, p)
	}
}

// closeFailBackend fails to release its scoped handle
type closeFailBackend struct {
	storage.Backend
}

func (closeFailBackend) EndFile() error {
	return errors.New("medium removed")
}

func TestOpenReportsCloseError(t *testing.T) {
	b := storage.NewMemoryBackend("sdmc", 1<<30)
	writeFile(t, b, "/game.nsp", buildContainer(t, testFile{name: "a", data: []byte("a")}))

	_, err := Open(closeFailBackend{b}, "/game.nsp")
	assert.ErrorContains(t, err, "medium removed")
}
