package content

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// NacpSize is the size of a raw control block
const NacpSize = 0x4000

// Language indexes the title entries of a control block
type Language int

const (
	LanguageAmericanEnglish Language = iota
	LanguageBritishEnglish
	LanguageJapanese
	LanguageFrench
	LanguageGerman
	LanguageLatinAmericanSpanish
	LanguageSpanish
	LanguageItalian
	LanguageDutch
	LanguageCanadianFrench
	LanguagePortuguese
	LanguageRussian
	LanguageKorean
	LanguageTraditionalChinese
	LanguageSimplifiedChinese
	LanguageBrazilianPortuguese

	LanguageCount
)

var languageNames = [LanguageCount]string{
	"AmericanEnglish",
	"BritishEnglish",
	"Japanese",
	"French",
	"German",
	"LatinAmericanSpanish",
	"Spanish",
	"Italian",
	"Dutch",
	"CanadianFrench",
	"Portuguese",
	"Russian",
	"Korean",
	"TraditionalChinese",
	"SimplifiedChinese",
	"BrazilianPortuguese",
}

func (l Language) String() string {
	if l >= 0 && l < LanguageCount {
		return languageNames[l]
	}
	return fmt.Sprintf("Language(%d)", int(l))
}

// LanguageByName looks a language up by name, ignoring case
func LanguageByName(name string) (Language, bool) {
	for i, n := range languageNames {
		if strings.EqualFold(n, name) {
			return Language(i), true
		}
	}
	return 0, false
}

type rawNacpTitle struct {
	Name   [0x200]byte
	Author [0x100]byte
}

type rawNacp struct {
	Titles                         [LanguageCount]rawNacpTitle
	_                              [0x60]byte
	DisplayVersion                 [0x10]byte
	AddOnContentBaseID             uint64
	SaveDataOwnerID                uint64
	UserAccountSaveDataSize        uint64
	UserAccountSaveDataJournalSize uint64
	DeviceSaveDataSize             uint64
	DeviceSaveDataJournalSize      uint64
	_                              [NacpSize - 0x30A0]byte
}

// NacpTitle is the name and author for one language
type NacpTitle struct {
	Name   string
	Author string
}

// Nacp is the application control property block
type Nacp struct {
	Titles                         [LanguageCount]NacpTitle
	DisplayVersion                 string
	AddOnContentBaseID             uint64
	SaveDataOwnerID                uint64
	UserAccountSaveDataSize        uint64
	UserAccountSaveDataJournalSize uint64
	DeviceSaveDataSize             uint64
	DeviceSaveDataJournalSize      uint64
}

// NacpMisc holds the control fields shown alongside an application
type NacpMisc struct {
	DisplayVersion          string
	DeviceSaveDataSize      uint64
	UserAccountSaveDataSize uint64
}

// ParseNacp decodes a raw control block
func ParseNacp(data []byte) (*Nacp, error) {
	if len(data) < NacpSize {
		return nil, fmt.Errorf("control block too small: got %d bytes, need %d", len(data), NacpSize)
	}

	var raw rawNacp
	if err := binary.Read(bytes.NewReader(data[:NacpSize]), binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("decoding control block: %w", err)
	}

	n := &Nacp{
		DisplayVersion:                 cString(raw.DisplayVersion[:]),
		AddOnContentBaseID:             raw.AddOnContentBaseID,
		SaveDataOwnerID:                raw.SaveDataOwnerID,
		UserAccountSaveDataSize:        raw.UserAccountSaveDataSize,
		UserAccountSaveDataJournalSize: raw.UserAccountSaveDataJournalSize,
		DeviceSaveDataSize:             raw.DeviceSaveDataSize,
		DeviceSaveDataJournalSize:      raw.DeviceSaveDataJournalSize,
	}
	for i, t := range raw.Titles {
		n.Titles[i] = NacpTitle{
			Name:   cString(t.Name[:]),
			Author: cString(t.Author[:]),
		}
	}
	return n, nil
}

// MarshalBinary encodes the block back into its raw layout. Strings longer than
// their field are truncated so the terminator always fits.
func (n *Nacp) MarshalBinary() ([]byte, error) {
	var raw rawNacp
	for i, t := range n.Titles {
		putCString(raw.Titles[i].Name[:], t.Name)
		putCString(raw.Titles[i].Author[:], t.Author)
	}
	putCString(raw.DisplayVersion[:], n.DisplayVersion)
	raw.AddOnContentBaseID = n.AddOnContentBaseID
	raw.SaveDataOwnerID = n.SaveDataOwnerID
	raw.UserAccountSaveDataSize = n.UserAccountSaveDataSize
	raw.UserAccountSaveDataJournalSize = n.UserAccountSaveDataJournalSize
	raw.DeviceSaveDataSize = n.DeviceSaveDataSize
	raw.DeviceSaveDataJournalSize = n.DeviceSaveDataJournalSize

	var buf bytes.Buffer
	buf.Grow(NacpSize)
	if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("encoding control block: %w", err)
	}
	return buf.Bytes(), nil
}

// Misc extracts the display version and save data sizes
func (n *Nacp) Misc() NacpMisc {
	return NacpMisc{
		DisplayVersion:          n.DisplayVersion,
		DeviceSaveDataSize:      n.DeviceSaveDataSize,
		UserAccountSaveDataSize: n.UserAccountSaveDataSize,
	}
}

// IsNacpEmpty reports whether the block was never populated. The display version
// is always set in a real control block.
func IsNacpEmpty(n *Nacp) bool {
	return n == nil || n.DisplayVersion == ""
}

// languageOrder puts preferred languages first, then the rest in table order
func languageOrder(preferred []Language) []Language {
	order := make([]Language, 0, LanguageCount)
	seen := make(map[Language]bool, LanguageCount)
	for _, l := range preferred {
		if l >= 0 && l < LanguageCount && !seen[l] {
			order = append(order, l)
			seen[l] = true
		}
	}
	for l := Language(0); l < LanguageCount; l++ {
		if !seen[l] {
			order = append(order, l)
		}
	}
	return order
}

// FindNacpName returns the first non-empty title name in priority order
func FindNacpName(n *Nacp, preferred ...Language) string {
	if n == nil {
		return ""
	}
	for _, l := range languageOrder(preferred) {
		if name := n.Titles[l].Name; name != "" {
			return name
		}
	}
	return ""
}

// FindNacpAuthor returns the first non-empty author in priority order
func FindNacpAuthor(n *Nacp, preferred ...Language) string {
	if n == nil {
		return ""
	}
	for _, l := range languageOrder(preferred) {
		if author := n.Titles[l].Author; author != "" {
			return author
		}
	}
	return ""
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func putCString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
}
