// Package sqlstore persists identity facts in SQLite and serves them to
// the access resolver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/usageguard/internal/identity"
	"github.com/ppiankov/usageguard/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS grants (
	fact    TEXT    NOT NULL,
	uid     INTEGER NOT NULL DEFAULT -1,
	package TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (fact, uid, package)
);
CREATE TABLE IF NOT EXISTS app_ops (
	uid     INTEGER NOT NULL,
	package TEXT    NOT NULL,
	mode    TEXT    NOT NULL,
	PRIMARY KEY (uid, package)
);
`

// noUID marks a package-scoped grant row.
const noUID = -1

// packageFacts are granted per package; the rest are granted per uid.
var packageFacts = map[model.Fact]bool{
	model.FactCarrierPrivileges: true,
	model.FactDeviceOwner:       true,
	model.FactProfileOwner:      true,
}

var uidFacts = map[model.Fact]bool{
	model.FactNetworkStack:          true,
	model.FactUsageStatsPermission:  true,
	model.FactReadHistoryPermission: true,
}

// ErrDeviceOwnerSet is returned when granting device ownership to a package
// while another package already holds it.
var ErrDeviceOwnerSet = errors.New("sqlstore: device owner already set")

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a SQLite-backed identity provider. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// A nil logger discards output.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return nil, errors.New("sqlstore: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("sqlstore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	// One connection: every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: apply schema: %w", err)
	}

	logger.Info("identity store opened", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Grant records fact for a uid (uid-scoped facts) or a package
// (package-scoped facts). The unused argument is ignored. A device has at
// most one owner: granting device_owner to a second package fails with
// ErrDeviceOwnerSet until the first is revoked.
func (s *Store) Grant(ctx context.Context, fact model.Fact, uid int, pkg string) error {
	uid, pkg, err := grantKey(fact, uid, pkg)
	if err != nil {
		return err
	}
	if fact == model.FactDeviceOwner {
		return s.grantDeviceOwner(ctx, pkg)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (fact, uid, package) VALUES (?, ?, ?)`,
		string(fact), uid, pkg)
	if err != nil {
		return fmt.Errorf("sqlstore: grant %s: %w", fact, err)
	}
	return nil
}

func (s *Store) grantDeviceOwner(ctx context.Context, pkg string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin grant: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = checkDeviceOwner(ctx, tx, pkg); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO grants (fact, uid, package) VALUES (?, ?, ?)`,
		string(model.FactDeviceOwner), noUID, pkg); err != nil {
		return fmt.Errorf("sqlstore: grant %s: %w", model.FactDeviceOwner, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit grant: %w", err)
	}
	return nil
}

// checkDeviceOwner fails when a package other than pkg owns the device.
func checkDeviceOwner(ctx context.Context, q querier, pkg string) error {
	var owner string
	err := q.QueryRowContext(ctx,
		`SELECT package FROM grants WHERE fact = ? AND package != ? LIMIT 1`,
		string(model.FactDeviceOwner), pkg).Scan(&owner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("sqlstore: query %s: %w", model.FactDeviceOwner, err)
	default:
		return fmt.Errorf("%w: %s", ErrDeviceOwnerSet, owner)
	}
}

// Revoke removes a grant recorded by Grant.
func (s *Store) Revoke(ctx context.Context, fact model.Fact, uid int, pkg string) error {
	uid, pkg, err := grantKey(fact, uid, pkg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM grants WHERE fact = ? AND uid = ? AND package = ?`,
		string(fact), uid, pkg)
	if err != nil {
		return fmt.Errorf("sqlstore: revoke %s: %w", fact, err)
	}
	return nil
}

// SetAppOp sets the usage-stats app-op mode for a uid/package pair.
func (s *Store) SetAppOp(ctx context.Context, uid int, pkg string, mode model.AppOpMode) error {
	if _, err := model.ParseAppOpMode(string(mode)); err != nil {
		return fmt.Errorf("sqlstore: %w", err)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO app_ops (uid, package, mode) VALUES (?, ?, ?)
		 ON CONFLICT (uid, package) DO UPDATE SET mode = excluded.mode`,
		uid, pkg, string(mode))
	if err != nil {
		return fmt.Errorf("sqlstore: set app-op: %w", err)
	}
	return nil
}

// Import copies every grant in facts into the store in one transaction.
// Unavailable services are runtime conditions and are not persisted.
func (s *Store) Import(ctx context.Context, facts identity.Facts) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin import: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	insert := func(fact model.Fact, uid int, pkg string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO grants (fact, uid, package) VALUES (?, ?, ?)`,
			string(fact), uid, pkg)
		return err
	}

	for _, pkg := range facts.CarrierPrivileged {
		if err = insert(model.FactCarrierPrivileges, noUID, pkg); err != nil {
			return fmt.Errorf("sqlstore: import carrier privileges: %w", err)
		}
	}
	if facts.DeviceOwner != "" {
		if err = checkDeviceOwner(ctx, tx, facts.DeviceOwner); err != nil {
			return err
		}
		if err = insert(model.FactDeviceOwner, noUID, facts.DeviceOwner); err != nil {
			return fmt.Errorf("sqlstore: import device owner: %w", err)
		}
	}
	for _, pkg := range facts.ProfileOwners {
		if err = insert(model.FactProfileOwner, noUID, pkg); err != nil {
			return fmt.Errorf("sqlstore: import profile owner: %w", err)
		}
	}
	uidGrants := []struct {
		fact model.Fact
		uids []int
	}{
		{model.FactNetworkStack, facts.NetworkStackUIDs},
		{model.FactUsageStatsPermission, facts.UsageStatsUIDs},
		{model.FactReadHistoryPermission, facts.ReadHistoryUIDs},
	}
	for _, g := range uidGrants {
		for _, uid := range g.uids {
			if err = insert(g.fact, uid, ""); err != nil {
				return fmt.Errorf("sqlstore: import %s: %w", g.fact, err)
			}
		}
	}
	for i, op := range facts.AppOps {
		mode, perr := model.ParseAppOpMode(op.Mode)
		if perr != nil {
			err = fmt.Errorf("sqlstore: import app_ops[%d]: %w", i, perr)
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO app_ops (uid, package, mode) VALUES (?, ?, ?)
			 ON CONFLICT (uid, package) DO UPDATE SET mode = excluded.mode`,
			op.UID, op.Package, string(mode))
		if err != nil {
			return fmt.Errorf("sqlstore: import app_ops[%d]: %w", i, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit import: %w", err)
	}
	return nil
}

func (s *Store) HasCarrierPrivileges(ctx context.Context, pkg string) (bool, error) {
	return s.packageGranted(ctx, model.FactCarrierPrivileges, pkg)
}

// IsDeviceOwner matches pkg exactly; the device owner is a single package,
// never a pattern.
func (s *Store) IsDeviceOwner(ctx context.Context, pkg string) (bool, error) {
	if pkg == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grants WHERE fact = ? AND package = ?`,
		string(model.FactDeviceOwner), pkg).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: query %s: %w", model.FactDeviceOwner, err)
	}
	return n > 0, nil
}

func (s *Store) IsProfileOwner(ctx context.Context, pkg string) (bool, error) {
	return s.packageGranted(ctx, model.FactProfileOwner, pkg)
}

func (s *Store) HasNetworkStackPermission(ctx context.Context, _, uid int) (bool, error) {
	return s.uidGranted(ctx, model.FactNetworkStack, uid)
}

func (s *Store) HasUsageStatsPermission(ctx context.Context, uid int) (bool, error) {
	return s.uidGranted(ctx, model.FactUsageStatsPermission, uid)
}

func (s *Store) HasReadHistoryPermission(ctx context.Context, uid int) (bool, error) {
	return s.uidGranted(ctx, model.FactReadHistoryPermission, uid)
}

// UsageStatsAppOpState returns the stored mode, or DEFAULT when the pair
// has no row. A stored mode that no longer parses is reported as DENIED.
func (s *Store) UsageStatsAppOpState(ctx context.Context, uid int, pkg string) (model.AppOpMode, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT mode FROM app_ops WHERE uid = ? AND package = ?`, uid, pkg).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AppOpDefault, nil
	}
	if err != nil {
		return model.AppOpDenied, fmt.Errorf("sqlstore: query app-op: %w", err)
	}
	mode, err := model.ParseAppOpMode(raw)
	if err != nil {
		s.logger.Warn("stored app-op mode is invalid", "uid", uid, "package", pkg, "mode", raw)
		return model.AppOpDenied, nil
	}
	return mode, nil
}

func (s *Store) uidGranted(ctx context.Context, fact model.Fact, uid int) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM grants WHERE fact = ? AND uid = ?`, string(fact), uid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlstore: query %s: %w", fact, err)
	}
	return n > 0, nil
}

// packageGranted matches pkg against every stored pattern for fact, so
// prefix patterns imported from a facts file keep their meaning.
func (s *Store) packageGranted(ctx context.Context, fact model.Fact, pkg string) (bool, error) {
	if pkg == "" {
		return false, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT package FROM grants WHERE fact = ?`, string(fact))
	if err != nil {
		return false, fmt.Errorf("sqlstore: query %s: %w", fact, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pattern string
		if err := rows.Scan(&pattern); err != nil {
			return false, fmt.Errorf("sqlstore: scan %s: %w", fact, err)
		}
		if identity.MatchPackage(pattern, pkg) {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("sqlstore: iterate %s: %w", fact, err)
	}
	return false, nil
}

func grantKey(fact model.Fact, uid int, pkg string) (int, string, error) {
	switch {
	case packageFacts[fact]:
		if pkg == "" {
			return 0, "", fmt.Errorf("sqlstore: %s requires a package", fact)
		}
		return noUID, pkg, nil
	case uidFacts[fact]:
		return uid, "", nil
	default:
		return 0, "", fmt.Errorf("sqlstore: %s is not a grantable fact", fact)
	}
}
