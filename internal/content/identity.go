// Package content models installed applications and the identifier rules that
// tie a base application to its patches and add-on content.
package content

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentMetaType classifies an installed content unit
type ContentMetaType uint8

const (
	ContentMetaTypeUnknown              ContentMetaType = 0x00
	ContentMetaTypeSystemProgram        ContentMetaType = 0x01
	ContentMetaTypeSystemData           ContentMetaType = 0x02
	ContentMetaTypeSystemUpdate         ContentMetaType = 0x03
	ContentMetaTypeBootImagePackage     ContentMetaType = 0x04
	ContentMetaTypeBootImagePackageSafe ContentMetaType = 0x05
	ContentMetaTypeApplication          ContentMetaType = 0x80
	ContentMetaTypePatch                ContentMetaType = 0x81
	ContentMetaTypeAddOnContent         ContentMetaType = 0x82
	ContentMetaTypeDelta                ContentMetaType = 0x83
	ContentMetaTypeDataPatch            ContentMetaType = 0x84
)

var contentMetaTypeNames = map[ContentMetaType]string{
	ContentMetaTypeUnknown:              "Unknown",
	ContentMetaTypeSystemProgram:        "SystemProgram",
	ContentMetaTypeSystemData:           "SystemData",
	ContentMetaTypeSystemUpdate:         "SystemUpdate",
	ContentMetaTypeBootImagePackage:     "BootImagePackage",
	ContentMetaTypeBootImagePackageSafe: "BootImagePackageSafe",
	ContentMetaTypeApplication:          "Application",
	ContentMetaTypePatch:                "Patch",
	ContentMetaTypeAddOnContent:         "AddOnContent",
	ContentMetaTypeDelta:                "Delta",
	ContentMetaTypeDataPatch:            "DataPatch",
}

func (t ContentMetaType) String() string {
	if name, ok := contentMetaTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ContentMetaType(0x%02X)", uint8(t))
}

// StorageID names where a content unit is installed
type StorageID uint8

const (
	StorageIDNone StorageID = iota
	StorageIDHost
	StorageIDGameCard
	StorageIDBuiltInSystem
	StorageIDBuiltInUser
	StorageIDSdCard
	StorageIDAny
)

var storageIDNames = []string{"None", "Host", "GameCard", "BuiltInSystem", "BuiltInUser", "SdCard", "Any"}

func (s StorageID) String() string {
	if int(s) < len(storageIDNames) {
		return storageIDNames[s]
	}
	return fmt.Sprintf("StorageID(%d)", uint8(s))
}

// InstallStorages are the storages scanned for installed content
var InstallStorages = []StorageID{StorageIDBuiltInUser, StorageIDSdCard, StorageIDGameCard}

// Source is an install location a user can pick
type Source int

const (
	SourceSdCard Source = iota
	SourceBuiltInUser
	SourceGameCard
)

// StorageIDFromSource maps an install source to its storage
func StorageIDFromSource(src Source) (StorageID, error) {
	switch src {
	case SourceSdCard:
		return StorageIDSdCard, nil
	case SourceBuiltInUser:
		return StorageIDBuiltInUser, nil
	case SourceGameCard:
		return StorageIDGameCard, nil
	default:
		return StorageIDNone, fmt.Errorf("invalid source %d", int(src))
	}
}

// BaseApplicationID strips the patch or add-on-content transform from id
func BaseApplicationID(id uint64, kind ContentMetaType) uint64 {
	switch kind {
	case ContentMetaTypePatch:
		return id ^ 0x800
	case ContentMetaTypeAddOnContent:
		return (id ^ 0x1000) &^ 0xFFF
	default:
		return id
	}
}

// AddOnContentID returns the per-entry discriminator inside an add-on-content group
func AddOnContentID(id uint64) uint32 {
	return uint32(id & 0xFFF)
}

// FormatID renders an application id the way the platform prints them
func FormatID(id uint64) string {
	return fmt.Sprintf("%016X", id)
}

// ContentMetaTypeByName looks a content-meta type up by name, ignoring case
func ContentMetaTypeByName(name string) (ContentMetaType, bool) {
	for t, n := range contentMetaTypeNames {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return 0, false
}

// StorageIDByName looks a storage up by name, ignoring case
func StorageIDByName(name string) (StorageID, bool) {
	for i, n := range storageIDNames {
		if strings.EqualFold(n, name) {
			return StorageID(i), true
		}
	}
	return StorageIDNone, false
}

// ParseID parses a hexadecimal application or content id, with or without 0x
func ParseID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}
