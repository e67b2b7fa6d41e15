package model

import (
	"fmt"
	"strings"
)

// CallerIdentity is the identity of the process requesting usage data.
// An empty Package means the caller supplied no package name.
type CallerIdentity struct {
	PID     int    `json:"pid" yaml:"pid"`
	UID     int    `json:"uid" yaml:"uid"`
	Package string `json:"package,omitempty" yaml:"package,omitempty"`
}

// HasPackage reports whether a package name was supplied.
func (c CallerIdentity) HasPackage() bool {
	return strings.TrimSpace(c.Package) != ""
}

// AppOpMode is the state of the usage-stats app-op for one uid/package.
type AppOpMode string

const (
	AppOpAllowed AppOpMode = "allowed"
	// AppOpDefault means no explicit grant or deny; the static
	// permission decides.
	AppOpDefault AppOpMode = "default"
	AppOpDenied  AppOpMode = "denied"
)

// ParseAppOpMode maps a mode name to an AppOpMode. Fail-closed: an unknown
// name is reported as an error and maps to AppOpDenied.
func ParseAppOpMode(s string) (AppOpMode, error) {
	switch AppOpMode(strings.ToLower(strings.TrimSpace(s))) {
	case AppOpAllowed:
		return AppOpAllowed, nil
	case AppOpDefault, "":
		return AppOpDefault, nil
	case AppOpDenied, "ignored", "errored":
		return AppOpDenied, nil
	default:
		return AppOpDenied, fmt.Errorf("unknown app-op mode %q", s)
	}
}

// Fact names one identity fact consulted during resolution.
type Fact string

const (
	FactSystemUID             Fact = "system_uid"
	FactCarrierPrivileges     Fact = "carrier_privileges"
	FactDeviceOwner           Fact = "device_owner"
	FactNetworkStack          Fact = "network_stack"
	FactUsageStatsAppOp       Fact = "usage_stats_app_op"
	FactUsageStatsPermission  Fact = "usage_stats_permission"
	FactReadHistoryPermission Fact = "read_history_permission"
	FactProfileOwner          Fact = "profile_owner"
)

// IdentityFacts holds the facts gathered for one resolution. Only facts
// that were actually evaluated are present; resolution short-circuits.
type IdentityFacts struct {
	Granted map[Fact]bool `json:"granted"`
	AppOp   AppOpMode     `json:"app_op,omitempty"`
	// Failed lists facts whose provider query errored and were taken as
	// not granted.
	Failed []Fact `json:"failed,omitempty"`
}

// NewIdentityFacts returns an empty fact set.
func NewIdentityFacts() *IdentityFacts {
	return &IdentityFacts{Granted: make(map[Fact]bool)}
}

// Evaluated reports whether f was consulted.
func (f *IdentityFacts) Evaluated(fact Fact) bool {
	_, ok := f.Granted[fact]
	return ok
}
