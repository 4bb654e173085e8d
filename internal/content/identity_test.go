package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleAppIDs = []uint64{
	0x0100000000010000,
	0x01007EF00011E000,
	0x0100F2C0115B6000,
	0x010000000000E000,
}

func TestBaseApplicationIDPatch(t *testing.T) {
	for _, id := range sampleAppIDs {
		patch := id | 0x800
		assert.Equal(t, id, BaseApplicationID(patch, ContentMetaTypePatch), FormatID(id))
		// the transform is its own inverse
		assert.Equal(t, id, BaseApplicationID(BaseApplicationID(id, ContentMetaTypePatch), ContentMetaTypePatch))
	}
}

func TestBaseApplicationIDAddOnContent(t *testing.T) {
	for _, id := range sampleAppIDs {
		for _, local := range []uint64{1, 2, 0x7F, 0xFFF} {
			aoc := (id + 0x1000) | local
			base := BaseApplicationID(aoc, ContentMetaTypeAddOnContent)
			assert.Equal(t, id, base, FormatID(aoc))
			assert.Zero(t, base&0xFFF)
			assert.Equal(t, uint32(local), AddOnContentID(aoc))
		}
	}
}

func TestBaseApplicationIDOtherTypes(t *testing.T) {
	for _, kind := range []ContentMetaType{ContentMetaTypeApplication, ContentMetaTypeSystemProgram, ContentMetaTypeDelta, ContentMetaTypeDataPatch} {
		assert.Equal(t, uint64(0x0100000000010000), BaseApplicationID(0x0100000000010000, kind))
	}
}

func TestStorageIDFromSource(t *testing.T) {
	cases := map[Source]StorageID{
		SourceSdCard:      StorageIDSdCard,
		SourceBuiltInUser: StorageIDBuiltInUser,
		SourceGameCard:    StorageIDGameCard,
	}
	for src, want := range cases {
		got, err := StorageIDFromSource(src)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := StorageIDFromSource(Source(99))
	assert.Error(t, err)
}

func TestNamesRoundTrip(t *testing.T) {
	for kind, name := range contentMetaTypeNames {
		assert.Equal(t, name, kind.String())
		got, ok := ContentMetaTypeByName(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, got)
	}
	kind, ok := ContentMetaTypeByName("patch")
	require.True(t, ok)
	assert.Equal(t, ContentMetaTypePatch, kind)
	assert.Equal(t, "ContentMetaType(0x42)", ContentMetaType(0x42).String())

	storage, ok := StorageIDByName("sdcard")
	require.True(t, ok)
	assert.Equal(t, StorageIDSdCard, storage)
	_, ok = StorageIDByName("usb")
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	for _, s := range []string{"0100000000010000", "0x0100000000010000", "100000000010000"} {
		id, err := ParseID(s)
		require.NoError(t, err, s)
		assert.Equal(t, uint64(0x0100000000010000), id)
	}

	_, err := ParseID("not-hex")
	assert.Error(t, err)
	_, err = ParseID("")
	assert.Error(t, err)

	assert.Equal(t, "01007EF00011E000", FormatID(0x01007EF00011E000))
}
