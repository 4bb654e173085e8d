package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// VersionInfo represents the components of a packed title version
type VersionInfo struct {
	Major       uint32
	Minor       uint32
	Micro       uint32
	ReleaseStep uint32
}

// DecodeVersion splits a packed title version into its components.
// Bits 26-31 hold major, 20-25 minor, 16-19 micro and 0-15 the release step.
func DecodeVersion(v uint32) VersionInfo {
	return VersionInfo{
		Major:       v >> 26,
		Minor:       (v >> 20) & 0x3F,
		Micro:       (v >> 16) & 0xF,
		ReleaseStep: v & 0xFFFF,
	}
}

// Encode packs the components back into a title version
func (i VersionInfo) Encode() uint32 {
	return (i.Major&0x3F)<<26 | (i.Minor&0x3F)<<20 | (i.Micro&0xF)<<16 | i.ReleaseStep&0xFFFF
}

// String renders "major.minor.micro", with "-step" appended when a release step is set
func (i VersionInfo) String() string {
	s := fmt.Sprintf("%d.%d.%d", i.Major, i.Minor, i.Micro)
	if i.ReleaseStep != 0 {
		s += fmt.Sprintf("-%d", i.ReleaseStep)
	}
	return s
}

// FormatVersion renders a packed title version as "major.minor.micro"
func FormatVersion(v uint32) string {
	return DecodeVersion(v).String()
}

// FormatRawVersion renders a packed title version the way update listings show it
func FormatRawVersion(v uint32) string {
	return fmt.Sprintf("v%d", v)
}

// ParseVersion parses either a raw "v<number>" version or a
// "major.minor.micro[-step]" string into its packed form
func ParseVersion(version string) (uint32, error) {
	if version == "" {
		return 0, fmt.Errorf("version string cannot be empty")
	}

	if raw, ok := strings.CutPrefix(version, "v"); ok {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid raw version: %s", version)
		}
		return uint32(v), nil
	}

	dotted, step, hasStep := strings.Cut(version, "-")
	parts := strings.Split(dotted, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid version format: %s (expected major.minor[.micro])", version)
	}

	limits := []uint64{0x3F, 0x3F, 0xF}
	var fields [3]uint32
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n > limits[i] {
			return 0, fmt.Errorf("invalid version component %q in %s", part, version)
		}
		fields[i] = uint32(n)
	}

	info := VersionInfo{Major: fields[0], Minor: fields[1], Micro: fields[2]}
	if hasStep {
		n, err := strconv.ParseUint(step, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid release step: %s", step)
		}
		info.ReleaseStep = uint32(n)
	}

	return info.Encode(), nil
}

// CompareVersions compares two packed versions
// Returns -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 uint32) int {
	switch {
	case v1 < v2:
		return -1
	case v1 > v2:
		return 1
	default:
		return 0
	}
}
