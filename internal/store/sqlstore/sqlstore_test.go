package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/sdforge/sdforge-gateway/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(store.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnknownDriverFails(t *testing.T) {
	if _, err := Open(store.StoreConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected an error for an unknown driver")
	}
}

func TestOpen_PostgresWithoutDSNFails(t *testing.T) {
	if _, err := Open(store.StoreConfig{Driver: "postgres"}); err == nil {
		t.Fatalf("expected an error when no postgres DSN is configured")
	}
}

func TestOpenStores_WiresAllFiveStores(t *testing.T) {
	stores, err := OpenStores(store.StoreConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("OpenStores: %v", err)
	}
	if stores.Conversations == nil || stores.LoRA == nil || stores.Classifier == nil || stores.Queue == nil || stores.Hosting == nil {
		t.Fatalf("expected all five stores to be wired, got %+v", stores)
	}
}

func TestRebind_LeavesSqliteQueriesUnchanged(t *testing.T) {
	db := &DB{driver: "sqlite"}
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	if got := db.rebind(q); got != q {
		t.Fatalf("got %q, want unchanged", got)
	}
}

func TestRebind_NumbersPostgresPlaceholdersInOrder(t *testing.T) {
	db := &DB{driver: "postgres"}
	got := db.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
