package audit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-audit.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	return l, path
}

func testEntry(uid int, level string) AuditEntry {
	return AuditEntry{
		RequestID: "req-test",
		Event:     EventResolve,
		Caller:    AuditCaller{PID: 4242, UID: uid, Package: "com.example"},
		Level:     level,
		Rule:      "usage_stats_app_op",
		FactsHash: "sha256:abc123",
	}
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 5; i++ {
		if err := l.Record(testEntry(10050, "DEVICESUMMARY")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain, got error at line %d: %s", result.ErrorLine, result.Error)
	}
	if result.Lines != 5 {
		t.Fatalf("expected 5 lines, got %d", result.Lines)
	}
}

func TestVerifyDetectsTamperedLevel(t *testing.T) {
	l, path := newTestLog(t)

	for i := 0; i < 3; i++ {
		if err := l.Record(testEntry(10050, "DEFAULT")); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	l.Close()

	// Upgrade the level recorded on line 2.
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	lines[1] = strings.Replace(lines[1], `"DEFAULT"`, `"DEVICE"`, 1)
	os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected tampered chain to be invalid")
	}
	if result.ErrorLine != 3 {
		t.Fatalf("expected error at line 3, got line %d", result.ErrorLine)
	}
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 3; i++ {
		l.Record(testEntry(10050, "DEFAULT"))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	os.WriteFile(path, []byte(lines[0]+"\n"+lines[2]+"\n"), 0644)

	result := Verify(path)
	if result.Valid {
		t.Fatal("expected chain with deleted entry to be invalid")
	}
	if result.ErrorLine != 2 {
		t.Fatalf("expected error at line 2, got %d", result.ErrorLine)
	}
}

func TestVerifyRejectsNonGenesisStart(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 2; i++ {
		l.Record(testEntry(10050, "DEFAULT"))
	}
	l.Close()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	os.WriteFile(path, []byte(lines[1]+"\n"), 0644)

	result := Verify(path)
	if result.Valid || result.ErrorLine != 1 {
		t.Fatalf("expected failure at line 1, got %+v", result)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(10050, "DEFAULT"))
	l.Record(testEntry(10050, "DEFAULT"))
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	l2.Record(testEntry(10051, "USER"))
	l2.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain after reopen: %s", result.Error)
	}
	if result.Lines != 3 {
		t.Fatalf("expected 3 lines, got %d", result.Lines)
	}
}

func TestConcurrentWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(uid int) {
			defer wg.Done()
			l.Record(testEntry(uid, "DEFAULT"))
		}(10000 + i)
	}
	wg.Wait()
	l.Close()

	result := Verify(path)
	if !result.Valid {
		t.Fatalf("expected valid chain under concurrency: %s", result.Error)
	}
	if result.Lines != 20 {
		t.Fatalf("expected 20 lines, got %d", result.Lines)
	}
}

func TestRecordFillsTimestamp(t *testing.T) {
	l, path := newTestLog(t)
	l.Record(testEntry(10050, "DEFAULT"))
	l.Close()

	entries, err := Tail(path, Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Timestamp == "" {
		t.Fatalf("expected one timestamped entry, got %+v", entries)
	}
	if entries[0].PrevHash != GenesisHash {
		t.Errorf("expected genesis prev_hash, got %s", entries[0].PrevHash)
	}
}

func TestTailFiltersAndLimits(t *testing.T) {
	l, path := newTestLog(t)
	for i := 0; i < 4; i++ {
		l.Record(testEntry(10050, "DEFAULT"))
	}
	check := testEntry(10051, "USER")
	check.Event = EventCheck
	check.Targets = []int{-5}
	check.Visible = []int{-5}
	l.Record(check)
	l.Close()

	uid := 10050
	entries, err := Tail(path, Query{CallerUID: &uid, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	entries, _ = Tail(path, Query{Event: EventCheck})
	if len(entries) != 1 || entries[0].Caller.UID != 10051 {
		t.Fatalf("expected the single check entry, got %+v", entries)
	}
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "nope.jsonl"))
	if result.Valid {
		t.Fatal("expected missing file to be invalid")
	}
}
