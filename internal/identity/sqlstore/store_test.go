package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/usageguard/internal/access"
	"github.com/ppiankov/usageguard/internal/identity"
	"github.com/ppiankov/usageguard/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "facts.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGrantAndRevoke(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Grant(ctx, model.FactReadHistoryPermission, 10077, ""))
	ok, err := s.HasReadHistoryPermission(ctx, 10077)
	require.NoError(t, err)
	assert.True(t, ok)

	// Granting twice is idempotent.
	require.NoError(t, s.Grant(ctx, model.FactReadHistoryPermission, 10077, ""))

	require.NoError(t, s.Revoke(ctx, model.FactReadHistoryPermission, 10077, ""))
	ok, err = s.HasReadHistoryPermission(ctx, 10077)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	assert.Error(t, s.Grant(ctx, model.FactDeviceOwner, 0, ""), "package-scoped fact needs a package")
	assert.Error(t, s.Grant(ctx, model.FactSystemUID, 1000, ""), "system uid is not grantable")
	assert.Error(t, s.SetAppOp(ctx, 10050, "com.example", model.AppOpMode("maybe")))
}

func TestDeviceOwnerIsSingleExactPackage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Grant(ctx, model.FactDeviceOwner, 0, "com.corp.*"))
	ok, err := s.IsDeviceOwner(ctx, "com.corp.app")
	require.NoError(t, err)
	assert.False(t, ok, "device owner is not a pattern")
	ok, err = s.IsDeviceOwner(ctx, "com.corp.*")
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-granting the current owner is idempotent; a second owner is not.
	require.NoError(t, s.Grant(ctx, model.FactDeviceOwner, 0, "com.corp.*"))
	err = s.Grant(ctx, model.FactDeviceOwner, 0, "com.other.mdm")
	require.ErrorIs(t, err, ErrDeviceOwnerSet)
	ok, err = s.IsDeviceOwner(ctx, "com.other.mdm")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Revoke(ctx, model.FactDeviceOwner, 0, "com.corp.*"))
	require.NoError(t, s.Grant(ctx, model.FactDeviceOwner, 0, "com.other.mdm"))
	ok, err = s.IsDeviceOwner(ctx, "com.other.mdm")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestImportRejectsSecondDeviceOwner(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Import(ctx, identity.Facts{DeviceOwner: "com.corp.mdm"}))
	require.NoError(t, s.Import(ctx, identity.Facts{DeviceOwner: "com.corp.mdm"}))

	err := s.Import(ctx, identity.Facts{
		DeviceOwner:   "com.other.mdm",
		ProfileOwners: []string{"com.corp.work"},
	})
	require.ErrorIs(t, err, ErrDeviceOwnerSet)

	ok, err := s.IsDeviceOwner(ctx, "com.other.mdm")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.IsProfileOwner(ctx, "com.corp.work")
	require.NoError(t, err)
	assert.False(t, ok, "rejected import rolls back")
}

func TestAppOpModes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	mode, err := s.UsageStatsAppOpState(ctx, 10050, "com.example")
	require.NoError(t, err)
	assert.Equal(t, model.AppOpDefault, mode, "unset pair is DEFAULT")

	require.NoError(t, s.SetAppOp(ctx, 10050, "com.example", model.AppOpAllowed))
	require.NoError(t, s.SetAppOp(ctx, 10050, "com.example", model.AppOpDenied))
	mode, err = s.UsageStatsAppOpState(ctx, 10050, "com.example")
	require.NoError(t, err)
	assert.Equal(t, model.AppOpDenied, mode)
}

func TestImportAndResolve(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Import(ctx, identity.Facts{
		CarrierPrivileged: []string{"com.carrier.*"},
		ProfileOwners:     []string{"com.corp.work"},
		UsageStatsUIDs:    []int{10050},
		AppOps: []identity.AppOpEntry{
			{UID: 10050, Package: "com.example", Mode: "default"},
		},
	}))

	r := access.NewResolver(s)
	tests := []struct {
		id   model.CallerIdentity
		want model.AccessLevel
	}{
		{model.CallerIdentity{UID: 10099, Package: "com.carrier.app"}, model.LevelDevice},
		{model.CallerIdentity{UID: 10050, Package: "com.example"}, model.LevelDeviceSummary},
		{model.CallerIdentity{UID: 1010077, Package: "com.corp.work"}, model.LevelUser},
		{model.CallerIdentity{UID: 10044, Package: "com.other"}, model.LevelDefault},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Resolve(ctx, tt.id).Level, "%+v", tt.id)
	}
}

func TestImportRejectsBadMode(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.Import(ctx, identity.Facts{
		ProfileOwners: []string{"com.corp.work"},
		AppOps:        []identity.AppOpEntry{{UID: 1, Package: "a", Mode: "sometimes"}},
	})
	require.Error(t, err)

	// The transaction rolled back: nothing from the batch was kept.
	ok, err := s.IsProfileOwner(ctx, "com.corp.work")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClosedStoreFailsClosed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "facts.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Grant(ctx, model.FactNetworkStack, 10050, ""))
	require.NoError(t, s.Close())

	res := access.NewResolver(s).Resolve(ctx, model.CallerIdentity{UID: 10050, Package: "com.example"})
	assert.Equal(t, model.LevelDefault, res.Level)
	assert.NotEmpty(t, res.Facts.Failed)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("", nil)
	require.Error(t, err)
}
