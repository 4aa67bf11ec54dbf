package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/surge-downloader/trickle/internal/engine/types"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	CloseDB()
	Configure(filepath.Join(t.TempDir(), "trickle.db"))
	t.Cleanup(CloseDB)
}

func sampleRecord(id string, finished int64) types.TransferRecord {
	return types.TransferRecord{
		ID:         id,
		URL:        "https://example.com/" + id + ".bin",
		Filename:   id + ".bin",
		DestPath:   "/tmp/" + id + ".bin",
		TotalSize:  2048,
		Downloaded: 2048,
		Status:     types.StatusCompleted,
		MimeType:   "application/zip",
		StartedAt:  finished - 10,
		FinishedAt: finished,
	}
}

func TestGetDB_NotConfigured(t *testing.T) {
	CloseDB()
	Configure("")
	t.Cleanup(CloseDB)

	if _, err := GetDB(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestGetDB_CreatesDirectory(t *testing.T) {
	CloseDB()
	path := filepath.Join(t.TempDir(), "nested", "state", "trickle.db")
	Configure(path)
	t.Cleanup(CloseDB)

	first, err := GetDB()
	if err != nil {
		t.Fatalf("GetDB failed: %v", err)
	}
	second, err := GetDB()
	if err != nil {
		t.Fatalf("GetDB failed: %v", err)
	}
	if first != second {
		t.Error("GetDB should return the shared handle")
	}
}

func TestRecordAndGetTransfer(t *testing.T) {
	setupTestDB(t)

	rec := sampleRecord("abc", 1700000000)
	rec.Status = types.StatusFailed
	rec.Error = "read error: unexpected EOF"
	rec.Downloaded = 1024

	if err := RecordTransfer(rec); err != nil {
		t.Fatalf("RecordTransfer failed: %v", err)
	}

	got, err := GetTransfer("abc")
	if err != nil {
		t.Fatalf("GetTransfer failed: %v", err)
	}
	if *got != rec {
		t.Errorf("Record mismatch:\n got  %+v\n want %+v", *got, rec)
	}
}

func TestRecordTransfer_Replaces(t *testing.T) {
	setupTestDB(t)

	rec := sampleRecord("abc", 1700000000)
	rec.Status = types.StatusRunning
	if err := RecordTransfer(rec); err != nil {
		t.Fatal(err)
	}
	rec.Status = types.StatusCompleted
	if err := RecordTransfer(rec); err != nil {
		t.Fatal(err)
	}

	all, err := ListHistory(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(all))
	}
	if all[0].Status != types.StatusCompleted {
		t.Errorf("Expected completed, got %s", all[0].Status)
	}
}

func TestGetTransfer_NotFound(t *testing.T) {
	setupTestDB(t)

	if _, err := GetTransfer("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestListHistory_NewestFirst(t *testing.T) {
	setupTestDB(t)

	for i, id := range []string{"old", "new", "mid"} {
		finished := map[int]int64{0: 100, 1: 300, 2: 200}[i]
		if err := RecordTransfer(sampleRecord(id, finished)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := ListHistory(0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "new" || ids[1] != "mid" || ids[2] != "old" {
		t.Errorf("Unexpected order: %v", ids)
	}

	limited, err := ListHistory(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 records with limit, got %d", len(limited))
	}
}

func TestListHistory_Empty(t *testing.T) {
	setupTestDB(t)

	all, err := ListHistory(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("Expected empty history, got %d", len(all))
	}
}

func TestClearHistory(t *testing.T) {
	setupTestDB(t)

	for _, id := range []string{"a", "b"} {
		if err := RecordTransfer(sampleRecord(id, 1)); err != nil {
			t.Fatal(err)
		}
	}

	n, err := ClearHistory()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 removed, got %d", n)
	}
	all, _ := ListHistory(0)
	if len(all) != 0 {
		t.Errorf("Expected empty history after clear, got %d", len(all))
	}
}

func TestHistory_SurvivesReopen(t *testing.T) {
	setupTestDB(t)

	if err := RecordTransfer(sampleRecord("persist", 5)); err != nil {
		t.Fatal(err)
	}
	CloseDB()

	got, err := GetTransfer("persist")
	if err != nil {
		t.Fatalf("Record should survive reopen: %v", err)
	}
	if got.Filename != "persist.bin" {
		t.Errorf("Unexpected filename %s", got.Filename)
	}
}
