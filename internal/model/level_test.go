package model

import (
	"encoding/json"
	"testing"
)

func TestAccessLevelOrdering(t *testing.T) {
	if !(LevelDefault < LevelUser && LevelUser < LevelDeviceSummary && LevelDeviceSummary < LevelDevice) {
		t.Fatal("expected DEFAULT < USER < DEVICESUMMARY < DEVICE")
	}
}

func TestAccessLevelAtLeast(t *testing.T) {
	tests := []struct {
		level, min AccessLevel
		want       bool
	}{
		{LevelDevice, LevelUser, true},
		{LevelDeviceSummary, LevelDeviceSummary, true},
		{LevelUser, LevelDeviceSummary, false},
		{LevelDefault, LevelDefault, true},
		{AccessLevel(42), LevelUser, false},
		{AccessLevel(-3), LevelDefault, true},
	}
	for _, tt := range tests {
		if got := tt.level.AtLeast(tt.min); got != tt.want {
			t.Errorf("%v.AtLeast(%v) = %v, want %v", tt.level, tt.min, got, tt.want)
		}
	}
}

func TestParseAccessLevel(t *testing.T) {
	for _, l := range []AccessLevel{LevelDefault, LevelUser, LevelDeviceSummary, LevelDevice} {
		got, err := ParseAccessLevel(l.String())
		if err != nil {
			t.Fatalf("ParseAccessLevel(%q): %v", l.String(), err)
		}
		if got != l {
			t.Errorf("ParseAccessLevel(%q) = %v", l.String(), got)
		}
	}
	if got, _ := ParseAccessLevel("device_summary"); got != LevelDeviceSummary {
		t.Errorf("expected device_summary alias, got %v", got)
	}
	if _, err := ParseAccessLevel("root"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestUnknownLevelString(t *testing.T) {
	if AccessLevel(9).String() != "UNKNOWN" {
		t.Errorf("expected UNKNOWN, got %s", AccessLevel(9))
	}
}

func TestAccessLevelJSON(t *testing.T) {
	out, err := json.Marshal(struct {
		Level AccessLevel `json:"level"`
	}{LevelDeviceSummary})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"level":"DEVICESUMMARY"}` {
		t.Errorf("unexpected JSON %s", out)
	}

	var in struct {
		Level AccessLevel `json:"level"`
	}
	if err := json.Unmarshal([]byte(`{"level":"user"}`), &in); err != nil {
		t.Fatal(err)
	}
	if in.Level != LevelUser {
		t.Errorf("expected USER, got %v", in.Level)
	}
}
