package access

import (
	"context"
	"testing"

	"github.com/ppiankov/usageguard/internal/model"
)

func TestUsageStatsAppEndToEnd(t *testing.T) {
	// Ten thousand uids per user: 10050 and 10051 share user 1, 20099 is user 2.
	codec := model.RangeCodec{PerUser: 10000}
	p := &fakeProvider{appOp: model.AppOpDefault, usageStats: true}
	caller := app(10050, "com.example")

	level := NewResolver(p, WithCodec(codec)).Resolve(context.Background(), caller).Level
	if level != model.LevelDeviceSummary {
		t.Fatalf("expected DEVICESUMMARY, got %v", level)
	}

	checker := Checker{Codec: codec}
	if !checker.IsAccessible(10051, caller.UID, level) {
		t.Error("expected same-user app to be visible")
	}
	if checker.IsAccessible(20099, caller.UID, level) {
		t.Error("expected app in another user to be hidden")
	}
}

func TestUsageStatsAppStandardEncoding(t *testing.T) {
	p := &fakeProvider{appOp: model.AppOpDefault, usageStats: true}
	caller := app(10050, "com.example")

	level := ResolveAccessLevel(context.Background(), p, caller)
	if !IsAccessibleToUser(10051, caller.UID, level) {
		t.Error("expected same-user app to be visible")
	}
	if IsAccessibleToUser(1020099, caller.UID, level) {
		t.Error("expected app in user 10 to be hidden")
	}
}

func TestProfileOwnerEndToEnd(t *testing.T) {
	p := &fakeProvider{appOp: model.AppOpDenied, profileOwner: true}
	caller := app(1010077, "com.corp.work")

	level := NewResolver(p).Resolve(context.Background(), caller).Level
	if level != model.LevelUser {
		t.Fatalf("expected USER, got %v", level)
	}
	if !IsAccessibleToUser(int(model.UIDTethering), caller.UID, level) {
		t.Error("expected tethering aggregate visible at USER")
	}
	if IsAccessibleToUser(int(model.UIDAll), caller.UID, level) {
		t.Error("expected ALL aggregate hidden at USER")
	}
}
