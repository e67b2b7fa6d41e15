package access

import (
	"context"
	"errors"

	"github.com/ppiankov/usageguard/internal/model"
)

var errUnavailable = errors.New("service unavailable")

// fakeProvider answers from fixed fields and records every query.
type fakeProvider struct {
	carrier      bool
	deviceOwner  bool
	profileOwner bool
	networkStack bool
	appOp        model.AppOpMode
	usageStats   bool
	readHistory  bool

	failing map[model.Fact]bool
	calls   []model.Fact
}

func (f *fakeProvider) answer(fact model.Fact, v bool) (bool, error) {
	f.calls = append(f.calls, fact)
	if f.failing[fact] {
		return true, errUnavailable
	}
	return v, nil
}

func (f *fakeProvider) HasCarrierPrivileges(_ context.Context, _ string) (bool, error) {
	return f.answer(model.FactCarrierPrivileges, f.carrier)
}

func (f *fakeProvider) IsDeviceOwner(_ context.Context, _ string) (bool, error) {
	return f.answer(model.FactDeviceOwner, f.deviceOwner)
}

func (f *fakeProvider) IsProfileOwner(_ context.Context, _ string) (bool, error) {
	return f.answer(model.FactProfileOwner, f.profileOwner)
}

func (f *fakeProvider) HasNetworkStackPermission(_ context.Context, _, _ int) (bool, error) {
	return f.answer(model.FactNetworkStack, f.networkStack)
}

func (f *fakeProvider) UsageStatsAppOpState(_ context.Context, _ int, _ string) (model.AppOpMode, error) {
	f.calls = append(f.calls, model.FactUsageStatsAppOp)
	if f.failing[model.FactUsageStatsAppOp] {
		// A failing provider may still hand back a permissive value.
		return model.AppOpAllowed, errUnavailable
	}
	if f.appOp == "" {
		return model.AppOpDenied, nil
	}
	return f.appOp, nil
}

func (f *fakeProvider) HasUsageStatsPermission(_ context.Context, _ int) (bool, error) {
	return f.answer(model.FactUsageStatsPermission, f.usageStats)
}

func (f *fakeProvider) HasReadHistoryPermission(_ context.Context, _ int) (bool, error) {
	return f.answer(model.FactReadHistoryPermission, f.readHistory)
}

func (f *fakeProvider) called(fact model.Fact) bool {
	for _, c := range f.calls {
		if c == fact {
			return true
		}
	}
	return false
}
