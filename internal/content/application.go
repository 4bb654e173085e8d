package content

import (
	"fmt"
)

// ContentType is the role of one content piece inside a content-meta entry.
// The value doubles as the slot index in ApplicationContent.ContentIDs.
type ContentType uint8

const (
	ContentTypeMeta ContentType = iota
	ContentTypeProgram
	ContentTypeData
	ContentTypeControl
	ContentTypeHtmlDocument
	ContentTypeLegalInformation
	ContentTypeDeltaFragment
)

// MaxContentCount is the number of content piece slots per content-meta entry
const MaxContentCount = 7

var contentTypeNames = [MaxContentCount]string{
	"Meta", "Program", "Data", "Control", "HtmlDocument", "LegalInformation", "DeltaFragment",
}

func (t ContentType) String() string {
	if int(t) < MaxContentCount {
		return contentTypeNames[t]
	}
	return fmt.Sprintf("ContentType(%d)", uint8(t))
}

// ContentID identifies one installed content piece
type ContentID [16]byte

func (id ContentID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// ContentMetaKey identifies one installed content-meta entry
type ContentMetaKey struct {
	ID      uint64
	Version uint32
	Type    ContentMetaType
}

// ContentMetaStatus is a content-meta entry together with where it is installed
type ContentMetaStatus struct {
	ID        uint64
	Version   uint32
	Type      ContentMetaType
	StorageID StorageID
}

// Key returns the content-meta key of the status entry
func (s ContentMetaStatus) Key() ContentMetaKey {
	return ContentMetaKey{ID: s.ID, Version: s.Version, Type: s.Type}
}

// ContentInfo pairs a content piece id with its role
type ContentInfo struct {
	ID   ContentID
	Type ContentType
}

// ApplicationContent groups the content pieces of one content-meta entry. Slots
// are indexed by ContentType and may be empty.
type ApplicationContent struct {
	MetaKey    ContentMetaKey
	ContentIDs [MaxContentCount]*ContentID
}

// Get returns the content piece in the given slot
func (c *ApplicationContent) Get(t ContentType) (ContentID, bool) {
	if int(t) >= MaxContentCount || c.ContentIDs[t] == nil {
		return ContentID{}, false
	}
	return *c.ContentIDs[t], true
}

// RecordEvent is the last event the platform recorded for an application
type RecordEvent uint8

const (
	RecordEventNone RecordEvent = iota
	RecordEventInstalled
	RecordEventDownloading
	RecordEventUpdated
	RecordEventArchived
	RecordEventGameCardInserted
	RecordEventGameCardRemoved
)

var recordEventNames = []string{"None", "Installed", "Downloading", "Updated", "Archived", "GameCardInserted", "GameCardRemoved"}

func (e RecordEvent) String() string {
	if int(e) < len(recordEventNames) {
		return recordEventNames[e]
	}
	return fmt.Sprintf("RecordEvent(%d)", uint8(e))
}

// ApplicationRecord is the platform's record of an installed base application
type ApplicationRecord struct {
	ID        uint64
	LastEvent RecordEvent
	// LastUpdated is a platform tick count, not wall time
	LastUpdated uint64
}

// ViewFlag is a bit in ApplicationView.Flags
type ViewFlag uint32

const (
	ViewFlagValid ViewFlag = 1 << iota
	ViewFlagHasMainContents
	ViewFlagHasContentsInstalled
	ViewFlagIsDownloading
	ViewFlagIsGameCard
	ViewFlagIsGameCardInserted
	ViewFlagCanLaunch
	ViewFlagNeedsUpdate
	ViewFlagCanUpdate
)

var viewFlagNames = []struct {
	flag ViewFlag
	name string
}{
	{ViewFlagValid, "Valid"},
	{ViewFlagHasMainContents, "HasMainContents"},
	{ViewFlagHasContentsInstalled, "HasContentsInstalled"},
	{ViewFlagIsDownloading, "IsDownloading"},
	{ViewFlagIsGameCard, "IsGameCard"},
	{ViewFlagIsGameCardInserted, "IsGameCardInserted"},
	{ViewFlagCanLaunch, "CanLaunch"},
	{ViewFlagNeedsUpdate, "NeedsUpdate"},
	{ViewFlagCanUpdate, "CanUpdate"},
}

// ApplicationView is the platform's view-state of an application
type ApplicationView struct {
	ID    uint64
	Flags ViewFlag
}

// FlagNames returns the names of the set flags in bit order
func (v ApplicationView) FlagNames() []string {
	var names []string
	for _, f := range viewFlagNames {
		if v.Flags&f.flag != 0 {
			names = append(names, f.name)
		}
	}
	return names
}

// Metadata is the display data the platform caches for an application
type Metadata struct {
	Name      string
	Publisher string
	Icon      []byte
	// Nacp is the raw control block, empty when the platform has none
	Nacp []byte
}

// StorageOccupiedSize is the space used on one storage, per content kind
type StorageOccupiedSize struct {
	StorageID        StorageID
	AppSize          uint64
	PatchSize        uint64
	AddOnContentSize uint64
}

// Total returns the bytes used on the storage
func (s StorageOccupiedSize) Total() uint64 {
	return s.AppSize + s.PatchSize + s.AddOnContentSize
}

// OccupiedSize is the space an application takes on each install storage
type OccupiedSize struct {
	Storages []StorageOccupiedSize
}

// Total returns the bytes used across all storages
func (o OccupiedSize) Total() uint64 {
	var total uint64
	for _, s := range o.Storages {
		total += s.Total()
	}
	return total
}

// ApplicationCache holds the strings derived for display
type ApplicationCache struct {
	DisplayName     string
	DisplayAuthor   string
	IconPath        string
	RecordLastEvent string
	ViewFlags       []string
}

// PlayStats summarize how an application has been played
type PlayStats struct {
	TotalPlaySecs         uint64
	SecsFromLastLaunched  uint64
	SecsFromFirstLaunched uint64
}

// noCopy makes go vet's copylocks check reject copies of the embedding struct
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Application is one installed base application with everything installed under
// it. Applications are large and owned by the Registry; pass them by pointer.
//
// MetaStatus and Contents always have the same length and matching indices.
type Application struct {
	noCopy noCopy

	Record       ApplicationRecord
	View         ApplicationView
	Metadata     Metadata
	Misc         NacpMisc
	MetaStatus   []ContentMetaStatus
	Contents     []ApplicationContent
	OccupiedSize OccupiedSize

	MinVersion            uint32
	MaxVersion            uint32
	LaunchRequiredVersion uint32

	Cache ApplicationCache
}

// ID returns the base application id
func (a *Application) ID() uint64 {
	return a.Record.ID
}

// HasMetadata reports whether both a name and a publisher are known
func (a *Application) HasMetadata() bool {
	return a.Metadata.Name != "" && a.Metadata.Publisher != ""
}

// HasIcon reports whether icon bytes are available
func (a *Application) HasIcon() bool {
	return len(a.Metadata.Icon) > 0
}

// HasContent reports whether a content-meta entry with this id and type is installed
func (a *Application) HasContent(id uint64, kind ContentMetaType) bool {
	return a.contentIndex(id, kind) >= 0
}

// ContentsOfType returns the status entries of the given type
func (a *Application) ContentsOfType(kind ContentMetaType) []ContentMetaStatus {
	var out []ContentMetaStatus
	for _, s := range a.MetaStatus {
		if s.Type == kind {
			out = append(out, s)
		}
	}
	return out
}

func (a *Application) contentIndex(id uint64, kind ContentMetaType) int {
	for i, s := range a.MetaStatus {
		if s.ID == id && s.Type == kind {
			return i
		}
	}
	return -1
}

func (a *Application) hasStatus(status ContentMetaStatus) bool {
	for _, s := range a.MetaStatus {
		if s.ID == status.ID && s.Type == status.Type && s.StorageID == status.StorageID {
			return true
		}
	}
	return false
}

// updateVersionBounds recomputes MinVersion/MaxVersion from the status list
func (a *Application) updateVersionBounds() {
	a.MinVersion, a.MaxVersion = 0, 0
	for i, s := range a.MetaStatus {
		if i == 0 || s.Version < a.MinVersion {
			a.MinVersion = s.Version
		}
		if s.Version > a.MaxVersion {
			a.MaxVersion = s.Version
		}
	}
}
