package txm

import (
	"errors"
	"testing"

	"github.com/Astronomax/transaction-manager/internal/mvcc"
)

func keyField(t *mvcc.Tuple) int64 { return t.Payload.(int64) }

func newTestEngine(t *testing.T) (*Engine, *mvcc.Space) {
	t.Helper()
	eng := NewEngine(DefaultConfig())
	t.Cleanup(eng.Close)
	sp, err := eng.Catalog().CreateSpace("widgets", keyField)
	if err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	return eng, sp
}

func TestEngineInsertCommitGet(t *testing.T) {
	eng, sp := newTestEngine(t)

	writer := NewFiber()
	if err := eng.Begin(writer); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := eng.Insert(writer, sp, mvcc.NewTuple(int64(5))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := eng.Commit(writer); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := NewFiber()
	if err := eng.Begin(reader); err != nil {
		t.Fatalf("Begin reader: %v", err)
	}
	got, err := eng.Get(reader, sp, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Payload.(int64) != 5 {
		t.Fatalf("Get(5) = %v, want tuple{5}", got)
	}
	eng.Rollback(reader)
}

func TestEngineGetWithoutTransactionFails(t *testing.T) {
	eng, sp := newTestEngine(t)
	fiber := NewFiber()
	if _, err := eng.Get(fiber, sp, 1); !errors.Is(err, ErrNoTransaction) {
		t.Fatalf("Get without txn: err = %v, want ErrNoTransaction", err)
	}
}

func TestEngineDoubleBeginFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	fiber := NewFiber()
	if err := eng.Begin(fiber); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := eng.Begin(fiber); !errors.Is(err, ErrTransactionOpen) {
		t.Fatalf("second Begin: err = %v, want ErrTransactionOpen", err)
	}
	eng.Rollback(fiber)
}

func TestEngineDeleteMissingKeyFails(t *testing.T) {
	eng, sp := newTestEngine(t)
	fiber := NewFiber()
	if err := eng.Begin(fiber); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := eng.Delete(fiber, sp, 42); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Delete missing key: err = %v, want ErrKeyNotFound", err)
	}
	eng.Rollback(fiber)
}

func TestEngineInsertThenDeleteRoundTrips(t *testing.T) {
	eng, sp := newTestEngine(t)
	fiber := NewFiber()

	if err := eng.Begin(fiber); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := eng.Insert(fiber, sp, mvcc.NewTuple(int64(7))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	old, err := eng.Delete(fiber, sp, 7)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if old == nil || old.Payload.(int64) != 7 {
		t.Fatalf("Delete returned %v, want tuple{7}", old)
	}
	if err := eng.Commit(fiber); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := NewFiber()
	eng.Begin(reader)
	got, err := eng.Get(reader, sp, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get(7) after insert+delete = %v, want nil", got)
	}
	eng.Rollback(reader)
}

func TestCatalogDuplicateSpace(t *testing.T) {
	c := NewCatalog()
	if _, err := c.CreateSpace("s", keyField); err != nil {
		t.Fatalf("CreateSpace: %v", err)
	}
	if _, err := c.CreateSpace("s", keyField); !errors.Is(err, ErrSpaceExists) {
		t.Fatalf("second CreateSpace: err = %v, want ErrSpaceExists", err)
	}
	c.DropSpace("s")
	if _, ok := c.Space("s"); ok {
		t.Fatalf("space %q still present after DropSpace", "s")
	}
}

func TestLoadConfigDefaultsOnMissingFile(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	if cfg != want {
		t.Fatalf("LoadConfig() = %+v, want defaults %+v", cfg, want)
	}
}
