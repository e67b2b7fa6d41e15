package model

import (
	"fmt"
	"strings"
)

// AccessLevel is the ordered trust tier assigned to a caller for reading
// network-usage data. Ranks are explicit so "at least" comparisons stay
// stable regardless of declaration order.
type AccessLevel int

const (
	// LevelDefault sees only its own uid.
	LevelDefault AccessLevel = 0
	// LevelUser sees its own user plus system, removed and tethering data.
	LevelUser AccessLevel = 1
	// LevelDeviceSummary sees its own user plus every special uid.
	LevelDeviceSummary AccessLevel = 2
	// LevelDevice sees everything.
	LevelDevice AccessLevel = 3
)

func (l AccessLevel) String() string {
	switch l {
	case LevelDefault:
		return "DEFAULT"
	case LevelUser:
		return "USER"
	case LevelDeviceSummary:
		return "DEVICESUMMARY"
	case LevelDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether l is one of the four defined levels.
func (l AccessLevel) Valid() bool {
	return l >= LevelDefault && l <= LevelDevice
}

// AtLeast reports whether l grants at least the trust of min.
// An unrecognized level never satisfies any requirement above DEFAULT.
func (l AccessLevel) AtLeast(min AccessLevel) bool {
	if !l.Valid() {
		return min == LevelDefault
	}
	return l >= min
}

// ParseAccessLevel maps a level name (case-insensitive) to an AccessLevel.
func ParseAccessLevel(s string) (AccessLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEFAULT":
		return LevelDefault, nil
	case "USER":
		return LevelUser, nil
	case "DEVICESUMMARY", "DEVICE_SUMMARY":
		return LevelDeviceSummary, nil
	case "DEVICE":
		return LevelDevice, nil
	default:
		return LevelDefault, fmt.Errorf("unknown access level %q", s)
	}
}

// MarshalText encodes the level by name.
func (l AccessLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name.
func (l *AccessLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAccessLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
