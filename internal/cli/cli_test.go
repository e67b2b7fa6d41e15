package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ppiankov/usageguard/internal/audit"
	"github.com/ppiankov/usageguard/internal/identity"
)

// resetFlags restores every flag to its default so runs do not leak
// values into each other through the package-level flag variables.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("usageguard %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func writeFacts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facts.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestInitFactsWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "facts.yaml")

	out := execute(t, "init-facts", "--path", path)
	if !strings.Contains(out, "Created") {
		t.Fatalf("expected Created, got %q", out)
	}
	if _, _, err := identity.Load(path); err != nil {
		t.Fatalf("generated facts do not load: %v", err)
	}

	out = execute(t, "init-facts", "--path", path)
	if !strings.Contains(out, "already exists") {
		t.Errorf("expected no overwrite, got %q", out)
	}
}

func TestResolveJSON(t *testing.T) {
	facts := writeFacts(t, "read_history_uids: [10050]\n")
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")

	out := execute(t, "resolve", "--facts", facts, "--audit-log", logPath,
		"--uid", "10050", "--format", "json")

	var got struct {
		Level string `json:"level"`
		Rule  string `json:"rule"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.Level != "DEVICESUMMARY" || got.Rule != "read_history_permission" {
		t.Errorf("expected DEVICESUMMARY/read_history_permission, got %s/%s", got.Level, got.Rule)
	}

	if r := audit.Verify(logPath); !r.Valid || r.Lines != 1 {
		t.Errorf("expected one verified audit entry, got %+v", r)
	}
}

func TestCheckJSON(t *testing.T) {
	facts := writeFacts(t, "")

	out := execute(t, "check", "--facts", facts,
		"--target", "10050", "--caller", "10050", "--format", "json")

	var got struct {
		TargetUID int    `json:"target_uid"`
		Level     string `json:"level"`
		Allowed   bool   `json:"allowed"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if !got.Allowed || got.TargetUID != 10050 || got.Level != "DEFAULT" {
		t.Errorf("expected own uid allowed at DEFAULT, got %+v", got)
	}
}

func TestResolveWithTargets(t *testing.T) {
	facts := writeFacts(t, "")

	out := execute(t, "resolve", "--facts", facts, "--uid", "10050",
		"--target", "10050", "--target", "10051", "--format", "text")
	if !strings.Contains(out, "level:   DEFAULT") {
		t.Errorf("expected DEFAULT level, got %q", out)
	}
	if !strings.Contains(out, "visible: [10050]") {
		t.Errorf("expected only own uid visible, got %q", out)
	}
}

func TestFactsDatabaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "facts.db")
	facts := writeFacts(t, "profile_owners: [com.corp.work]\n")

	execute(t, "facts", "import", facts, "--db", db)
	execute(t, "facts", "grant", "carrier_privileges", "--db", db, "--package", "com.carrier.*")
	execute(t, "facts", "set-app-op", "10060", "com.example.stats", "allowed", "--db", db)

	tests := []struct {
		args  []string
		level string
	}{
		{[]string{"--uid", "10070", "--package", "com.corp.work"}, "USER"},
		{[]string{"--uid", "10071", "--package", "com.carrier.app"}, "DEVICE"},
		{[]string{"--uid", "10060", "--package", "com.example.stats"}, "DEVICESUMMARY"},
	}
	for _, tt := range tests {
		args := append([]string{"resolve", "--facts-db", db, "--format", "text"}, tt.args...)
		out := execute(t, args...)
		if !strings.Contains(out, "level:   "+tt.level) {
			t.Errorf("%v: expected %s, got %q", tt.args, tt.level, out)
		}
	}

	execute(t, "facts", "revoke", "profile_owner", "--db", db, "--package", "com.corp.work")
	out := execute(t, "resolve", "--facts-db", db, "--uid", "10070", "--package", "com.corp.work")
	if !strings.Contains(out, "level:   DEFAULT") {
		t.Errorf("expected DEFAULT after revoke, got %q", out)
	}
}
