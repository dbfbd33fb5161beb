package device

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/nerrad567/fieldgate/internal/infrastructure/database"
	_ "github.com/nerrad567/fieldgate/migrations"
)

const testConfigYAML = `# gateway settings
site:
  name: "Plant room"
discovery:
  enabled: true # learn new devices
devices:
  - id: boiler
    address: "AA:BB:CC:DD:EE:01"
    unit: 1
  - id: spare
    enabled: false
    address: "AA:BB:CC:DD:EE:02"
    unit: 2
    config:
      zone: north
`

func TestYAMLStore_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	records, err := NewYAMLStore(path).LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}

	want := []Record{
		{ID: "boiler", Enabled: true, Address: "AA:BB:CC:DD:EE:01", Unit: 1},
		{ID: "spare", Enabled: false, Address: "AA:BB:CC:DD:EE:02", Unit: 2, Config: map[string]any{"zone": "north"}},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("LoadRecords() = %+v, want %+v", records, want)
	}
}

func TestYAMLStore_SavePreservesDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfigYAML), 0640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	store := NewYAMLStore(path)

	records := []Record{
		{ID: "auto-DDEEFF", Enabled: true, Address: "AA:BB:CC:DD:EE:FF", Unit: 3},
	}
	if err := store.SaveRecords(context.Background(), records); err != nil {
		t.Fatalf("SaveRecords() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	text := string(data)
	for _, want := range []string{"# gateway settings", "Plant room", "# learn new devices", "auto-DDEEFF"} {
		if !strings.Contains(text, want) {
			t.Errorf("saved file missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "boiler") {
		t.Errorf("saved file still lists old devices:\n%s", text)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("mode = %v, want 0640", info.Mode().Perm())
	}

	got, err := store.LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(got) != 1 || got[0].Address != "AA:BB:CC:DD:EE:FF" || got[0].Unit != 3 || !got[0].Enabled {
		t.Errorf("reloaded records = %+v", got)
	}
}

func TestYAMLStore_SaveCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	store := NewYAMLStore(path)

	if err := store.SaveRecords(context.Background(), []Record{{ID: "x", Enabled: true, Address: "AA:BB:CC:DD:EE:01", Unit: 1}}); err != nil {
		t.Fatalf("SaveRecords() error = %v", err)
	}
	got, err := store.LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "x" {
		t.Errorf("LoadRecords() = %+v", got)
	}
}

func TestYAMLStore_LoadMissingFile(t *testing.T) {
	store := NewYAMLStore(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := store.LoadRecords(context.Background()); err == nil {
		t.Error("LoadRecords() error = nil, want error")
	}
}

func openRecordDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := NewSQLiteStore(openRecordDB(t))
	ctx := context.Background()

	empty, err := store.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("LoadRecords() on empty table = %+v", empty)
	}

	records := []Record{
		{ID: "auto-DDEEFF", Enabled: true, Address: "AA:BB:CC:DD:EE:FF", Unit: 1},
		{ID: "spare", Enabled: false, Address: "AA:BB:CC:DD:EE:02", Unit: 1, Config: map[string]any{"zone": "north"}},
		{ID: "boiler", Enabled: true, Address: "AA:BB:CC:DD:EE:01", Unit: 5},
	}
	if err := store.SaveRecords(ctx, records); err != nil {
		t.Fatalf("SaveRecords() error = %v", err)
	}

	got, err := store.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if !reflect.DeepEqual(got, records) {
		t.Errorf("LoadRecords() = %+v, want %+v", got, records)
	}

	// A second save replaces the table.
	if err := store.SaveRecords(ctx, records[2:]); err != nil {
		t.Fatalf("SaveRecords() error = %v", err)
	}
	got, err = store.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "boiler" {
		t.Errorf("LoadRecords() after replace = %+v", got)
	}
}

func TestSQLiteStore_WithRegistry(t *testing.T) {
	store := NewSQLiteStore(openRecordDB(t))
	r := NewRegistry(Options{AutoDiscovery: true, Remember: true, Store: store})

	if err := r.HandleReport(rssiReport("AA:BB:CC:DD:EE:FF", -50)); err != nil {
		t.Fatalf("HandleReport() error = %v", err)
	}
	if err := r.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	records, err := store.LoadRecords(context.Background())
	if err != nil {
		t.Fatalf("LoadRecords() error = %v", err)
	}
	if len(records) != 1 || records[0].ID != "auto-DDEEFF" || records[0].Unit != 1 {
		t.Errorf("records = %+v", records)
	}
}
