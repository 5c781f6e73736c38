package service

import (
	"path/filepath"
	"testing"
	"time"

	"tvbridge/models"
)

func TestHistoryStoreUpsertKeepsOneRowPerSerial(t *testing.T) {
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	d := models.DeviceInfo{Serial: "192.168.1.50:5555", Name: "Sony Bravia", Model: "Bravia", Status: models.StatusConnected}
	if err := store.Record(d); err != nil {
		t.Fatal(err)
	}

	d.Name = "Sony Bravia 4K"
	if err := store.Record(d); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one row per serial, got %d", len(entries))
	}
	if entries[0].Name != "Sony Bravia 4K" {
		t.Errorf("upsert did not refresh fields: %+v", entries[0])
	}
	if entries[0].LastStatus != string(models.StatusConnected) {
		t.Errorf("wrong status: %q", entries[0].LastStatus)
	}
}

func TestHistoryStoreListNewestFirst(t *testing.T) {
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Record(models.DeviceInfo{Serial: "old", Status: models.StatusConnected}); err != nil {
		t.Fatal(err)
	}
	// last_seen has second resolution; make the second record newer.
	time.Sleep(1100 * time.Millisecond)
	if err := store.Record(models.DeviceInfo{Serial: "new", Status: models.StatusConnected}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Serial != "new" {
		t.Errorf("wrong order: %+v", entries)
	}
}

func TestOpenHistoryStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := OpenHistoryStore(path)
	if err != nil {
		t.Fatal(err)
	}
	store.Close()
}
