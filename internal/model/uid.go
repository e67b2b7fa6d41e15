package model

// PerUserRange is the number of uids reserved for each user. A uid encodes
// (user * PerUserRange) + appID.
const PerUserRange = 100000

// UserHandle identifies one user (profile) on a multi-user device.
type UserHandle int

// SpecialUID is a sentinel uid not bound to any single installed app.
type SpecialUID int

// The set is closed: SpecialOf and every switch over SpecialUID must be
// updated together when a category is added.
const (
	UIDSystem    SpecialUID = 1000
	UIDAll       SpecialUID = -1
	UIDRemoved   SpecialUID = -4
	UIDTethering SpecialUID = -5
)

func (s SpecialUID) String() string {
	switch s {
	case UIDSystem:
		return "SYSTEM"
	case UIDAll:
		return "ALL"
	case UIDRemoved:
		return "REMOVED"
	case UIDTethering:
		return "TETHERING"
	default:
		return "UNKNOWN"
	}
}

// SpecialOf classifies uid as one of the special sentinels.
func SpecialOf(uid int) (SpecialUID, bool) {
	switch SpecialUID(uid) {
	case UIDSystem, UIDAll, UIDRemoved, UIDTethering:
		return SpecialUID(uid), true
	default:
		return 0, false
	}
}

// AppID strips the user component from uid.
func AppID(uid int) int {
	return uid % PerUserRange
}

// UserOf extracts the user component from uid.
func UserOf(uid int) UserHandle {
	return UserHandle(uid / PerUserRange)
}

// UIDCodec answers pure questions about the uid encoding. It performs no
// I/O and never consults platform services.
type UIDCodec interface {
	IsSystemUID(uid int) bool
	UserOf(uid int) UserHandle
}

// StandardCodec implements the multi-user uid encoding.
type StandardCodec struct{}

// IsSystemUID reports whether uid is the system app-id in any user.
func (StandardCodec) IsSystemUID(uid int) bool {
	return AppID(uid) == int(UIDSystem)
}

// UserOf returns the user handle of uid.
func (StandardCodec) UserOf(uid int) UserHandle {
	return UserOf(uid)
}

// RangeCodec is the uid encoding with a custom per-user range, for
// platforms that partition uids differently. A zero PerUser uses
// PerUserRange.
type RangeCodec struct {
	PerUser int
}

func (c RangeCodec) perUser() int {
	if c.PerUser <= 0 {
		return PerUserRange
	}
	return c.PerUser
}

// IsSystemUID reports whether uid is the system app-id in any user.
func (c RangeCodec) IsSystemUID(uid int) bool {
	return uid%c.perUser() == int(UIDSystem)
}

// UserOf returns the user handle of uid.
func (c RangeCodec) UserOf(uid int) UserHandle {
	return UserHandle(uid / c.perUser())
}
