// Package access decides who may read network-usage data.
//
// Resolution runs once per request and maps a caller identity to an
// ordered AccessLevel. The predicate then filters each target uid against
// that level. Neither holds state between calls.
package access

import (
	"context"
	"log/slog"

	"github.com/ppiankov/usageguard/internal/model"
)

// RuleDefault is the rule name reported when no grant matched.
const RuleDefault = "default"

// Resolution is the outcome of resolving one caller.
type Resolution struct {
	Level model.AccessLevel    `json:"level"`
	Rule  string               `json:"rule"`
	Facts *model.IdentityFacts `json:"facts"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCodec overrides the uid encoding used for the system-uid fast path.
func WithCodec(codec model.UIDCodec) Option {
	return func(r *Resolver) { r.codec = codec }
}

// WithLogger sets the logger that receives provider failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// Resolver computes a caller's AccessLevel from provider facts.
// It is safe for concurrent use.
type Resolver struct {
	provider IdentityProvider
	codec    model.UIDCodec
	logger   *slog.Logger
}

// NewResolver returns a Resolver backed by provider. A nil provider is
// replaced by DenyAll.
func NewResolver(provider IdentityProvider, opts ...Option) *Resolver {
	if provider == nil {
		provider = DenyAll{}
	}
	r := &Resolver{
		provider: provider,
		codec:    model.StandardCodec{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// check evaluates one grant and reports the fact that matched.
type check func(ctx context.Context, e *evaluation) (model.Fact, bool)

// tier grants level when any of its checks matches.
type tier struct {
	level  model.AccessLevel
	checks []check
}

// ladder lists tiers from most to least privileged. Order is
// security-relevant: the first matching check wins and later checks are
// never consulted.
var ladder = []tier{
	{level: model.LevelDevice, checks: []check{checkCarrierPrivileges, checkDeviceOwner, checkNetworkStack}},
	{level: model.LevelDeviceSummary, checks: []check{checkUsageStats, checkReadHistory}},
	{level: model.LevelUser, checks: []check{checkProfileOwner}},
}

// Resolve computes the access level for id. It never fails: facts that
// cannot be established count as not granted.
func (r *Resolver) Resolve(ctx context.Context, id model.CallerIdentity) Resolution {
	facts := model.NewIdentityFacts()

	// The system uid is decided before any provider call. Platform services
	// may themselves be waiting on the system server during early boot.
	isSystem := r.codec.IsSystemUID(id.UID)
	facts.Granted[model.FactSystemUID] = isSystem
	if isSystem {
		return Resolution{Level: model.LevelDevice, Rule: string(model.FactSystemUID), Facts: facts}
	}

	e := &evaluation{r: r, id: id, facts: facts}
	for _, t := range ladder {
		for _, c := range t.checks {
			if fact, ok := c(ctx, e); ok {
				return Resolution{Level: t.level, Rule: string(fact), Facts: facts}
			}
		}
	}
	return Resolution{Level: model.LevelDefault, Rule: RuleDefault, Facts: facts}
}

// ResolveAccessLevel resolves id against provider with the standard uid
// encoding and returns only the level.
func ResolveAccessLevel(ctx context.Context, provider IdentityProvider, id model.CallerIdentity) model.AccessLevel {
	return NewResolver(provider).Resolve(ctx, id).Level
}

// evaluation carries the request-scoped state of one Resolve call.
type evaluation struct {
	r     *Resolver
	id    model.CallerIdentity
	facts *model.IdentityFacts
}

// query records the answer for fact. A provider error is logged, recorded
// as a failure, and taken as not granted.
func (e *evaluation) query(fact model.Fact, fn func() (bool, error)) bool {
	granted, err := fn()
	if err != nil {
		e.fail(fact, err)
		granted = false
	}
	e.facts.Granted[fact] = granted
	return granted
}

// queryPackage is query for facts scoped to the caller's package. Without
// a package the fact is not granted and the provider is not consulted.
func (e *evaluation) queryPackage(fact model.Fact, fn func(pkg string) (bool, error)) bool {
	if !e.id.HasPackage() {
		e.facts.Granted[fact] = false
		return false
	}
	return e.query(fact, func() (bool, error) { return fn(e.id.Package) })
}

func (e *evaluation) fail(fact model.Fact, err error) {
	e.facts.Failed = append(e.facts.Failed, fact)
	e.r.logger.Warn("identity fact unavailable, treating as not granted",
		"fact", string(fact),
		"uid", e.id.UID,
		"package", e.id.Package,
		"error", err,
	)
}

func checkCarrierPrivileges(ctx context.Context, e *evaluation) (model.Fact, bool) {
	return model.FactCarrierPrivileges, e.queryPackage(model.FactCarrierPrivileges, func(pkg string) (bool, error) {
		return e.r.provider.HasCarrierPrivileges(ctx, pkg)
	})
}

func checkDeviceOwner(ctx context.Context, e *evaluation) (model.Fact, bool) {
	return model.FactDeviceOwner, e.queryPackage(model.FactDeviceOwner, func(pkg string) (bool, error) {
		return e.r.provider.IsDeviceOwner(ctx, pkg)
	})
}

func checkNetworkStack(ctx context.Context, e *evaluation) (model.Fact, bool) {
	return model.FactNetworkStack, e.query(model.FactNetworkStack, func() (bool, error) {
		return e.r.provider.HasNetworkStackPermission(ctx, e.id.PID, e.id.UID)
	})
}

// checkUsageStats consults the usage-stats app-op. ALLOWED grants outright;
// DEFAULT defers to the static usage-stats permission; DENIED does not grant.
func checkUsageStats(ctx context.Context, e *evaluation) (model.Fact, bool) {
	mode := model.AppOpDenied
	if e.id.HasPackage() {
		m, err := e.r.provider.UsageStatsAppOpState(ctx, e.id.UID, e.id.Package)
		if err != nil {
			e.fail(model.FactUsageStatsAppOp, err)
		} else {
			mode = m
		}
	}
	e.facts.AppOp = mode
	e.facts.Granted[model.FactUsageStatsAppOp] = mode == model.AppOpAllowed

	switch mode {
	case model.AppOpAllowed:
		return model.FactUsageStatsAppOp, true
	case model.AppOpDefault:
		return model.FactUsageStatsPermission, e.query(model.FactUsageStatsPermission, func() (bool, error) {
			return e.r.provider.HasUsageStatsPermission(ctx, e.id.UID)
		})
	default:
		return model.FactUsageStatsAppOp, false
	}
}

func checkReadHistory(ctx context.Context, e *evaluation) (model.Fact, bool) {
	return model.FactReadHistoryPermission, e.query(model.FactReadHistoryPermission, func() (bool, error) {
		return e.r.provider.HasReadHistoryPermission(ctx, e.id.UID)
	})
}

func checkProfileOwner(ctx context.Context, e *evaluation) (model.Fact, bool) {
	return model.FactProfileOwner, e.queryPackage(model.FactProfileOwner, func(pkg string) (bool, error) {
		return e.r.provider.IsProfileOwner(ctx, pkg)
	})
}
