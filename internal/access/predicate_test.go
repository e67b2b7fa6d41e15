package access

import (
	"testing"

	"github.com/ppiankov/usageguard/internal/model"
)

var allLevels = []model.AccessLevel{
	model.LevelDefault, model.LevelUser, model.LevelDeviceSummary, model.LevelDevice,
}

var specials = []int{
	int(model.UIDSystem), int(model.UIDRemoved), int(model.UIDTethering), int(model.UIDAll),
}

func TestSelfAccessAlwaysAllowed(t *testing.T) {
	for _, uid := range []int{10050, 1010050, 0, 99999} {
		for _, level := range allLevels {
			if !IsAccessibleToUser(uid, uid, level) {
				t.Errorf("uid %d denied own data at %v", uid, level)
			}
		}
	}
}

func TestSystemUIDVisibleAtUserAndAbove(t *testing.T) {
	for _, caller := range []int{10050, 1010050, 2020099} {
		for _, level := range []model.AccessLevel{model.LevelUser, model.LevelDeviceSummary, model.LevelDevice} {
			if !IsAccessibleToUser(int(model.UIDSystem), caller, level) {
				t.Errorf("caller %d at %v denied SYSTEM uid", caller, level)
			}
		}
	}
}

func TestDefaultOnlySeesSelf(t *testing.T) {
	if IsAccessibleToUser(10051, 10050, model.LevelDefault) {
		t.Error("DEFAULT must not see another app in the same user")
	}
	for _, s := range specials {
		if IsAccessibleToUser(s, 10050, model.LevelDefault) {
			t.Errorf("DEFAULT must not see special uid %d", s)
		}
	}
}

func TestAllUIDAsymmetry(t *testing.T) {
	all := int(model.UIDAll)
	for _, caller := range []int{10050, 1010050} {
		if IsAccessibleToUser(all, caller, model.LevelUser) {
			t.Errorf("caller %d: USER must not see ALL", caller)
		}
		if !IsAccessibleToUser(all, caller, model.LevelDeviceSummary) {
			t.Errorf("caller %d: DEVICESUMMARY must see ALL", caller)
		}
	}
}

func TestMonotonicityExceptAll(t *testing.T) {
	targets := append([]int{10050, 10051, 20099, 1010050, 2000000}, specials...)
	callers := []int{10050, 1010077}
	for _, c := range callers {
		for _, tgt := range targets {
			if IsAccessibleToUser(tgt, c, model.LevelDefault) && !IsAccessibleToUser(tgt, c, model.LevelUser) {
				t.Errorf("DEFAULT->USER not monotonic for target %d caller %d", tgt, c)
			}
			if !IsAccessibleToUser(tgt, c, model.LevelUser) {
				continue
			}
			if !IsAccessibleToUser(tgt, c, model.LevelDeviceSummary) {
				t.Errorf("USER->DEVICESUMMARY not monotonic for target %d caller %d", tgt, c)
			}
			if !IsAccessibleToUser(tgt, c, model.LevelDevice) {
				t.Errorf("USER->DEVICE not monotonic for target %d caller %d", tgt, c)
			}
		}
	}
}

func TestSameUserRule(t *testing.T) {
	tests := []struct {
		target, caller int
		level          model.AccessLevel
		want           bool
	}{
		{10051, 10050, model.LevelDeviceSummary, true},
		{20099, 10050, model.LevelDeviceSummary, true},
		{1010051, 10050, model.LevelDeviceSummary, false},
		{1010051, 1010050, model.LevelUser, true},
		{10051, 1010050, model.LevelUser, false},
		{1010051, 10050, model.LevelDevice, true},
	}
	for _, tt := range tests {
		if got := IsAccessibleToUser(tt.target, tt.caller, tt.level); got != tt.want {
			t.Errorf("IsAccessibleToUser(%d, %d, %v) = %v, want %v", tt.target, tt.caller, tt.level, got, tt.want)
		}
	}
}

func TestUnknownLevelDegradesToDefault(t *testing.T) {
	for _, level := range []model.AccessLevel{-1, 4, 99} {
		if IsAccessibleToUser(10051, 10050, level) {
			t.Errorf("level %d must not see another uid", level)
		}
		if IsAccessibleToUser(int(model.UIDAll), 10050, level) {
			t.Errorf("level %d must not see ALL", level)
		}
		if !IsAccessibleToUser(10050, 10050, level) {
			t.Errorf("level %d must still see own uid", level)
		}
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	targets := []int{int(model.UIDAll), 10051, 1010050, int(model.UIDTethering), 10050}
	got := Filter(targets, 10050, model.LevelUser)
	want := []int{10051, int(model.UIDTethering), 10050}
	if len(got) != len(want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Filter[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCheckerCustomCodec(t *testing.T) {
	c := Checker{Codec: fixedCodec{}}
	// fixedCodec places every uid in user 0.
	if !c.IsAccessible(1010051, 10050, model.LevelUser) {
		t.Error("expected custom codec to decide user membership")
	}
}
