package access

import (
	"context"

	"github.com/ppiankov/usageguard/internal/model"
)

// IdentityProvider supplies raw identity facts from platform services.
// Implementations own identity clearing around their own internal checks,
// and any timeout or cancellation of an in-flight query.
//
// A returned error means the fact could not be established; the resolver
// treats it as not granted.
type IdentityProvider interface {
	HasCarrierPrivileges(ctx context.Context, pkg string) (bool, error)
	IsDeviceOwner(ctx context.Context, pkg string) (bool, error)
	IsProfileOwner(ctx context.Context, pkg string) (bool, error)
	HasNetworkStackPermission(ctx context.Context, pid, uid int) (bool, error)
	UsageStatsAppOpState(ctx context.Context, uid int, pkg string) (model.AppOpMode, error)
	HasUsageStatsPermission(ctx context.Context, uid int) (bool, error)
	HasReadHistoryPermission(ctx context.Context, uid int) (bool, error)
}

// DenyAll is an IdentityProvider that grants nothing. It stands in while
// the real platform services are still starting, leaving only the
// system-uid fast path able to reach DEVICE.
type DenyAll struct{}

func (DenyAll) HasCarrierPrivileges(context.Context, string) (bool, error) { return false, nil }
func (DenyAll) IsDeviceOwner(context.Context, string) (bool, error) { return false, nil }
func (DenyAll) IsProfileOwner(context.Context, string) (bool, error) { return false, nil }
func (DenyAll) HasNetworkStackPermission(context.Context, int, int) (bool, error) { return false, nil }
func (DenyAll) HasUsageStatsPermission(context.Context, int) (bool, error) { return false, nil }
func (DenyAll) HasReadHistoryPermission(context.Context, int) (bool, error) { return false, nil }

func (DenyAll) UsageStatsAppOpState(context.Context, int, string) (model.AppOpMode, error) {
	return model.AppOpDenied, nil
}
