// Package guard is the request boundary around the access policy: it owns
// the identity provider, resolves callers, filters target uids, and
// records every decision.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/usageguard/internal/access"
	"github.com/ppiankov/usageguard/internal/alert"
	"github.com/ppiankov/usageguard/internal/audit"
	"github.com/ppiankov/usageguard/internal/identity"
	"github.com/ppiankov/usageguard/internal/identity/sqlstore"
	"github.com/ppiankov/usageguard/internal/metrics"
	"github.com/ppiankov/usageguard/internal/model"
)

// Config holds guard configuration. FactsPath and FactsDB are mutually
// exclusive; with neither set the default facts file is used.
type Config struct {
	FactsPath    string
	FactsDB      string
	AuditLogPath string
	// PerUserRange overrides the uid encoding; zero uses model.PerUserRange.
	PerUserRange int
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	// Alerts are webhook destinations for provider failures, failed
	// reloads and DEVICE grants.
	Alerts []alert.AlertConfig
}

// Decision is the outcome of a resolve or filter request.
type Decision struct {
	RequestID string               `json:"request_id"`
	Caller    model.CallerIdentity `json:"caller"`
	access.Resolution
	Visible []int `json:"visible,omitempty"`
}

// Guard serves access decisions. It is safe for concurrent use; Reload
// swaps the provider atomically between requests.
type Guard struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	codec   model.UIDCodec
	checker access.Checker
	store   *sqlstore.Store
	alerts  *alert.Dispatcher

	mu        sync.RWMutex
	resolver  *access.Resolver
	factsHash string

	auditLog *audit.Log
}

// New loads the identity provider and opens the audit log if configured.
func New(cfg Config) (*Guard, error) {
	if cfg.FactsPath != "" && cfg.FactsDB != "" {
		return nil, errors.New("facts file and facts database are mutually exclusive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	codec := model.RangeCodec{PerUser: cfg.PerUserRange}

	g := &Guard{
		cfg:     cfg,
		logger:  logger,
		metrics: cfg.Metrics,
		codec:   codec,
		checker: access.Checker{Codec: codec},
		alerts:  alert.NewDispatcher(cfg.Alerts, logger),
	}

	if cfg.FactsDB != "" {
		store, err := sqlstore.Open(cfg.FactsDB, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open facts database: %w", err)
		}
		g.store = store
		g.resolver = g.newResolver(store)
		g.factsHash = "sqlite:" + cfg.FactsDB
	} else {
		reg, hash, err := identity.Load(cfg.FactsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load identity facts: %w", err)
		}
		g.resolver = g.newResolver(reg)
		g.factsHash = hash
	}

	if cfg.AuditLogPath != "" {
		l, err := audit.Open(cfg.AuditLogPath)
		if err != nil {
			g.closeStore()
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		g.auditLog = l
	}
	return g, nil
}

func (g *Guard) newResolver(p access.IdentityProvider) *access.Resolver {
	return access.NewResolver(p, access.WithCodec(g.codec), access.WithLogger(g.logger))
}

// Store returns the SQLite facts store, or nil when facts come from a file.
func (g *Guard) Store() *sqlstore.Store {
	return g.store
}

// FactsHash identifies the facts snapshot decisions are made against.
func (g *Guard) FactsHash() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.factsHash
}

// WatchPaths lists files whose change should trigger Reload.
func (g *Guard) WatchPaths() []string {
	if g.store != nil {
		return nil
	}
	path := g.cfg.FactsPath
	if path == "" {
		path = identity.DefaultPath()
	}
	if path == "" {
		return nil
	}
	return []string{path}
}

// Reload re-reads the facts file and swaps it in. On error the previous
// facts stay in effect. A database-backed guard reads live and has
// nothing to reload.
func (g *Guard) Reload() error {
	if g.store != nil {
		return nil
	}
	reg, hash, err := identity.Load(g.cfg.FactsPath)
	g.metrics.ObserveReload(err)
	if err != nil {
		g.alerts.Dispatch(alert.AlertEvent{
			Timestamp: time.Now().UTC().Format(audit.TimeFormat),
			Type:      alert.EventReloadFailed,
			Reason:    err.Error(),
			FactsHash: g.FactsHash(),
		})
		return fmt.Errorf("failed to reload identity facts: %w", err)
	}

	g.mu.Lock()
	g.resolver = g.newResolver(reg)
	g.factsHash = hash
	g.mu.Unlock()

	g.logger.Info("identity facts reloaded", "facts_hash", hash)
	return nil
}

func (g *Guard) snapshot() (*access.Resolver, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolver, g.factsHash
}

// Resolve computes the caller's access level.
func (g *Guard) Resolve(ctx context.Context, id model.CallerIdentity) Decision {
	resolver, hash := g.snapshot()
	res := resolver.Resolve(ctx, id)
	d := Decision{RequestID: uuid.NewString(), Caller: id, Resolution: res}

	g.metrics.ObserveResolution(res)
	g.record(audit.EventResolve, d, nil, hash)
	g.alert(d, hash)
	return d
}

// Check reports whether callerUID at level may see targetUID's data.
func (g *Guard) Check(targetUID, callerUID int, level model.AccessLevel) bool {
	allowed := g.checker.IsAccessible(targetUID, callerUID, level)
	g.metrics.ObserveCheck(level, allowed)

	d := Decision{
		RequestID:  uuid.NewString(),
		Caller:     model.CallerIdentity{UID: callerUID},
		Resolution: access.Resolution{Level: level},
	}
	if allowed {
		d.Visible = []int{targetUID}
	}
	_, hash := g.snapshot()
	g.record(audit.EventCheck, d, []int{targetUID}, hash)
	return allowed
}

// Filter resolves the caller once and returns the targets it may see, in
// input order.
func (g *Guard) Filter(ctx context.Context, id model.CallerIdentity, targets []int) Decision {
	resolver, hash := g.snapshot()
	res := resolver.Resolve(ctx, id)
	g.metrics.ObserveResolution(res)

	visible := g.checker.Filter(targets, id.UID, res.Level)
	for _, t := range targets {
		g.metrics.ObserveCheck(res.Level, slices.Contains(visible, t))
	}

	d := Decision{RequestID: uuid.NewString(), Caller: id, Resolution: res, Visible: visible}
	g.record(audit.EventFilter, d, targets, hash)
	g.alert(d, hash)
	return d
}

// alert reports resolutions that failed closed on a provider error or
// that granted DEVICE to a non-system caller.
func (g *Guard) alert(d Decision, factsHash string) {
	if g.alerts == nil {
		return
	}
	event := alert.AlertEvent{
		Timestamp: time.Now().UTC().Format(audit.TimeFormat),
		RequestID: d.RequestID,
		CallerUID: d.Caller.UID,
		Package:   d.Caller.Package,
		Level:     d.Level.String(),
		Rule:      d.Rule,
		FactsHash: factsHash,
	}
	if d.Facts != nil && len(d.Facts.Failed) > 0 {
		failed := event
		failed.Type = alert.EventProviderFailure
		for _, f := range d.Facts.Failed {
			failed.Failed = append(failed.Failed, string(f))
		}
		g.alerts.Dispatch(failed)
	}
	if d.Level == model.LevelDevice && d.Rule != string(model.FactSystemUID) {
		granted := event
		granted.Type = alert.EventDeviceGrant
		g.alerts.Dispatch(granted)
	}
}

func (g *Guard) record(event string, d Decision, targets []int, factsHash string) {
	if g.auditLog == nil {
		return
	}
	entry := audit.AuditEntry{
		RequestID: d.RequestID,
		Event:     event,
		Caller:    audit.AuditCaller{PID: d.Caller.PID, UID: d.Caller.UID, Package: d.Caller.Package},
		Level:     d.Level.String(),
		Rule:      d.Rule,
		Targets:   targets,
		Visible:   d.Visible,
		FactsHash: factsHash,
	}
	if d.Facts != nil {
		for _, f := range d.Facts.Failed {
			entry.Failed = append(entry.Failed, string(f))
		}
	}
	if err := g.auditLog.Record(entry); err != nil {
		g.logger.Error("audit record failed", "request_id", d.RequestID, "error", err)
	}
}

// Close stops pending alert deliveries and releases the audit log and
// facts database.
func (g *Guard) Close() error {
	g.alerts.Close()
	var errs []error
	if g.auditLog != nil {
		errs = append(errs, g.auditLog.Close())
	}
	errs = append(errs, g.closeStore())
	return errors.Join(errs...)
}

func (g *Guard) closeStore() error {
	if g.store == nil {
		return nil
	}
	return g.store.Close()
}
