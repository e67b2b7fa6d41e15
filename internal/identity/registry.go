// Package identity supplies identity facts to the access resolver from a
// declarative facts file.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/usageguard/internal/model"
)

// ErrServiceUnavailable is returned for queries against a platform
// service marked unavailable.
var ErrServiceUnavailable = errors.New("identity: platform service unavailable")

// Service names a platform facility that answers identity queries.
type Service string

const (
	ServiceTelephony    Service = "telephony"
	ServiceDevicePolicy Service = "device_policy"
	ServiceAppOps       Service = "app_ops"
	ServicePermissions  Service = "permissions"
)

// AppOpEntry sets the usage-stats app-op mode for one uid/package pair.
type AppOpEntry struct {
	UID     int    `yaml:"uid" json:"uid"`
	Package string `yaml:"package" json:"package"`
	Mode    string `yaml:"mode" json:"mode"`
}

// Facts is the on-disk description of who holds which grant.
type Facts struct {
	CarrierPrivileged []string     `yaml:"carrier_privileged" json:"carrier_privileged"`
	DeviceOwner       string       `yaml:"device_owner" json:"device_owner"`
	ProfileOwners     []string     `yaml:"profile_owners" json:"profile_owners"`
	NetworkStackUIDs  []int        `yaml:"network_stack_uids" json:"network_stack_uids"`
	UsageStatsUIDs    []int        `yaml:"usage_stats_uids" json:"usage_stats_uids"`
	ReadHistoryUIDs   []int        `yaml:"read_history_uids" json:"read_history_uids"`
	AppOps            []AppOpEntry `yaml:"app_ops" json:"app_ops"`
	Unavailable       []Service    `yaml:"unavailable,omitempty" json:"unavailable,omitempty"`
}

type appOpKey struct {
	uid int
	pkg string
}

// Registry answers identity queries from a Facts snapshot. It is
// read-only after construction and safe for concurrent use.
type Registry struct {
	facts        Facts
	networkStack map[int]bool
	usageStats   map[int]bool
	readHistory  map[int]bool
	appOps       map[appOpKey]model.AppOpMode
	unavailable  map[Service]bool
}

// NewRegistry indexes facts. An app-op entry with an unknown mode is an error.
func NewRegistry(facts Facts) (*Registry, error) {
	r := &Registry{
		facts:        facts,
		networkStack: uidSet(facts.NetworkStackUIDs),
		usageStats:   uidSet(facts.UsageStatsUIDs),
		readHistory:  uidSet(facts.ReadHistoryUIDs),
		appOps:       make(map[appOpKey]model.AppOpMode, len(facts.AppOps)),
		unavailable:  make(map[Service]bool, len(facts.Unavailable)),
	}
	for i, op := range facts.AppOps {
		mode, err := model.ParseAppOpMode(op.Mode)
		if err != nil {
			return nil, fmt.Errorf("app_ops[%d]: %w", i, err)
		}
		r.appOps[appOpKey{uid: op.UID, pkg: op.Package}] = mode
	}
	for _, s := range facts.Unavailable {
		r.unavailable[s] = true
	}
	return r, nil
}

// Facts returns the snapshot the registry was built from.
func (r *Registry) Facts() Facts {
	return r.facts
}

func (r *Registry) HasCarrierPrivileges(_ context.Context, pkg string) (bool, error) {
	if r.unavailable[ServiceTelephony] {
		return false, ErrServiceUnavailable
	}
	return matchAny(r.facts.CarrierPrivileged, pkg), nil
}

func (r *Registry) IsDeviceOwner(_ context.Context, pkg string) (bool, error) {
	if r.unavailable[ServiceDevicePolicy] {
		return false, ErrServiceUnavailable
	}
	return pkg != "" && r.facts.DeviceOwner == pkg, nil
}

func (r *Registry) IsProfileOwner(_ context.Context, pkg string) (bool, error) {
	if r.unavailable[ServiceDevicePolicy] {
		return false, ErrServiceUnavailable
	}
	return matchAny(r.facts.ProfileOwners, pkg), nil
}

// HasNetworkStackPermission grants by uid; the pid is accepted for
// interface parity and not consulted.
func (r *Registry) HasNetworkStackPermission(_ context.Context, _, uid int) (bool, error) {
	if r.unavailable[ServicePermissions] {
		return false, ErrServiceUnavailable
	}
	return r.networkStack[uid], nil
}

// UsageStatsAppOpState returns the configured mode, or DEFAULT when the
// pair has no explicit entry.
func (r *Registry) UsageStatsAppOpState(_ context.Context, uid int, pkg string) (model.AppOpMode, error) {
	if r.unavailable[ServiceAppOps] {
		return model.AppOpDenied, ErrServiceUnavailable
	}
	if mode, ok := r.appOps[appOpKey{uid: uid, pkg: pkg}]; ok {
		return mode, nil
	}
	return model.AppOpDefault, nil
}

func (r *Registry) HasUsageStatsPermission(_ context.Context, uid int) (bool, error) {
	if r.unavailable[ServicePermissions] {
		return false, ErrServiceUnavailable
	}
	return r.usageStats[uid], nil
}

func (r *Registry) HasReadHistoryPermission(_ context.Context, uid int) (bool, error) {
	if r.unavailable[ServicePermissions] {
		return false, ErrServiceUnavailable
	}
	return r.readHistory[uid], nil
}

// DefaultPath returns ~/.usageguard/facts.yaml, or "" when the home
// directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".usageguard", "facts.yaml")
}

// Load reads a facts file and returns its registry and the SHA-256 of the
// raw bytes. Empty path falls back to DefaultPath. A missing file yields an
// empty registry that grants nothing. Invalid YAML returns an error.
func Load(path string) (*Registry, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read facts file: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	var facts Facts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, "", fmt.Errorf("failed to parse facts file: %w", err)
	}

	r, err := NewRegistry(facts)
	if err != nil {
		return nil, "", fmt.Errorf("invalid facts file: %w", err)
	}
	return r, hash, nil
}

func uidSet(uids []int) map[int]bool {
	set := make(map[int]bool, len(uids))
	for _, u := range uids {
		set[u] = true
	}
	return set
}

func matchAny(patterns []string, pkg string) bool {
	if pkg == "" {
		return false
	}
	for _, p := range patterns {
		if MatchPackage(p, pkg) {
			return true
		}
	}
	return false
}

// MatchPackage checks a package name against a pattern.
// Supports: exact match and a trailing ".*" for every package under a
// prefix (com.carrier.* matches com.carrier.app, not com.carrier).
// Package names are case-sensitive.
func MatchPackage(pattern, pkg string) bool {
	if pattern == "" || pkg == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		return strings.HasPrefix(pkg, prefix+".")
	}
	return pattern == pkg
}

// DefaultFactsYAML returns a commented facts file for init-facts.
func DefaultFactsYAML() string {
	return `# usageguard identity facts
# Generated by: usageguard init-facts
#
# Resolution order (cannot be changed):
#   1. system uid                                  -> DEVICE
#   2. carrier privileges | device owner | network stack -> DEVICE
#   3. usage-stats app-op allowed
#      | app-op default + usage_stats_uids
#      | read_history_uids                         -> DEVICESUMMARY
#   4. profile owner                               -> USER
#   5. otherwise                                   -> DEFAULT

# Packages holding carrier privileges. "com.carrier.*" matches sub-packages.
carrier_privileged: []

# Device owner package (at most one).
device_owner: ""

# Profile owner packages.
profile_owners: []

# Uids holding the network stack permission.
network_stack_uids: []

# Uids holding the static usage-stats permission. Only consulted when the
# app-op for the caller is "default".
usage_stats_uids: []

# Uids holding the read-network-usage-history permission.
read_history_uids: []

# Usage-stats app-op modes: allowed | default | denied.
# Pairs not listed are "default".
app_ops: []

# Platform services treated as not yet available. Queries against them
# fail and resolve as not granted.
# Values: telephony | device_policy | app_ops | permissions
unavailable: []
`
}
