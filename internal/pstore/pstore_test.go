package pstore

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relaymud/relaymud/common/crypto"
)

func testKey() []byte {
	k := make([]byte, crypto.KeySize)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestNewDir_CreatesLayout(t *testing.T) {
	base := t.TempDir()
	d, err := NewDir(base)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	for _, sub := range []string{"logs", "plugins", "db"} {
		if _, err := os.Stat(filepath.Join(base, "data", sub)); err != nil {
			t.Fatalf("expected data/%s to exist: %v", sub, err)
		}
	}
	if got := d.DBPath("audit"); got != filepath.Join(base, "data", "db", "audit.sqlite") {
		t.Fatalf("unexpected DBPath: %s", got)
	}
}

func TestDir_PluginFileCreatesPluginDir(t *testing.T) {
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	path, err := d.PluginFile("core.commands", "history.txt")
	if err != nil {
		t.Fatalf("PluginFile: %v", err)
	}
	if filepath.Base(path) != "history.txt" {
		t.Fatalf("unexpected path: %s", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected plugin dir to exist: %v", err)
	}
}

func TestKV_SetGetRoundtripsPlainValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settingvalues.txt")
	kv, err := OpenKV(path, nil)
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	if err := kv.Set("antispamlinecount", "5", false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := kv.Get("antispamlinecount")
	if err != nil || v != "5" {
		t.Fatalf("Get = %q, %v", v, err)
	}
}

func TestKV_SecretValuesAreEncryptedOnDiskAndDecryptedOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settingvalues.txt")
	key := testKey()

	kv, err := OpenKV(path, key)
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	if err := kv.Set("mudpassword", "hunter2", true); err != nil {
		t.Fatalf("Set secret: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(raw), "hunter2") {
		t.Fatal("secret value must not appear in cleartext on disk")
	}

	reloaded, err := OpenKV(path, key)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, err := reloaded.Get("mudpassword")
	if err != nil || v != "hunter2" {
		t.Fatalf("Get after reload = %q, %v", v, err)
	}
}

func TestKV_SecretValueWithoutMasterKeyRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settingvalues.txt")
	kv, err := OpenKV(path, nil)
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	if err := kv.Set("mudpassword", "hunter2", true); err == nil {
		t.Fatal("expected an error storing a secret value without a master key")
	}
}

func TestKV_DeleteRemovesKeyAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settingvalues.txt")
	kv, err := OpenKV(path, nil)
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	kv.Set("a", "1", false)
	kv.Set("b", "2", false)
	if err := kv.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := kv.Get("a"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	reloaded, err := OpenKV(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := reloaded.Get("a"); err != ErrNotFound {
		t.Fatal("expected delete to persist across reload")
	}
	if v, err := reloaded.Get("b"); err != nil || v != "2" {
		t.Fatalf("expected b to survive, got %q, %v", v, err)
	}
}

func TestKV_ListReturnsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settingvalues.txt")
	kv, _ := OpenKV(path, nil)
	kv.Set("x", "1", false)
	kv.Set("y", "2", false)
	got := kv.List()
	if len(got) != 2 || got["x"] != "1" || got["y"] != "2" {
		t.Fatalf("unexpected List result: %v", got)
	}
}

//go:embed testdata/migrations/*.sql
var testMigrations embed.FS

func TestRunMigrations_AppliesInOrderAndIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, testMigrations, "testdata/migrations"); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// Running again must be a no-op, not an error (no duplicate-table failure).
	if err := RunMigrations(db, testMigrations, "testdata/migrations"); err != nil {
		t.Fatalf("RunMigrations (second run): %v", err)
	}

	if _, err := db.Exec("INSERT INTO widgets (name) VALUES (?)", "gizmo"); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}

	assertSchemaVersion(t, db, 2)
}

func assertSchemaVersion(t *testing.T, db *sql.DB, want int) {
	t.Helper()
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("read schema_migrations: %v", err)
	}
	if version != want {
		t.Fatalf("schema version = %d, want %d", version, want)
	}
}
