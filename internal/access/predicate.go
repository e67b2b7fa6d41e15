package access

import "github.com/ppiankov/usageguard/internal/model"

// Checker decides whether a caller at a given level may see data
// attributed to a target uid. The zero value uses the standard uid encoding.
type Checker struct {
	Codec model.UIDCodec
}

// IsAccessible reports whether callerUID at level may see targetUID's data.
// An unrecognized level falls back to DEFAULT semantics.
func (c Checker) IsAccessible(targetUID, callerUID int, level model.AccessLevel) bool {
	switch level {
	case model.LevelDevice:
		return true
	case model.LevelDeviceSummary, model.LevelUser:
		if s, ok := model.SpecialOf(targetUID); ok {
			return specialVisible(s, level)
		}
		return c.codec().UserOf(targetUID) == c.codec().UserOf(callerUID)
	default:
		return targetUID == callerUID
	}
}

// Filter returns the targets visible to callerUID at level, in input order.
func (c Checker) Filter(targets []int, callerUID int, level model.AccessLevel) []int {
	visible := make([]int, 0, len(targets))
	for _, uid := range targets {
		if c.IsAccessible(uid, callerUID, level) {
			visible = append(visible, uid)
		}
	}
	return visible
}

func (c Checker) codec() model.UIDCodec {
	if c.Codec == nil {
		return model.StandardCodec{}
	}
	return c.Codec
}

// specialVisible decides special uids. They belong to no user, so the
// same-user rule never applies to them. USER callers may see per-user
// aggregates but not the cross-user ALL aggregate.
func specialVisible(s model.SpecialUID, level model.AccessLevel) bool {
	switch s {
	case model.UIDSystem, model.UIDRemoved, model.UIDTethering:
		return level >= model.LevelUser
	case model.UIDAll:
		return level >= model.LevelDeviceSummary
	default:
		return false
	}
}

// IsAccessibleToUser is Checker.IsAccessible with the standard uid encoding.
func IsAccessibleToUser(targetUID, callerUID int, level model.AccessLevel) bool {
	return Checker{}.IsAccessible(targetUID, callerUID, level)
}

// Filter is Checker.Filter with the standard uid encoding.
func Filter(targets []int, callerUID int, level model.AccessLevel) []int {
	return Checker{}.Filter(targets, callerUID, level)
}
