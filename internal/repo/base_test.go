package repo

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ctxKey struct{}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:repo_base?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return conn
}

func TestDBCarriesContext(t *testing.T) {
	db := openSQLite(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "sweep")
	scoped := base.DB(ctx)
	if scoped.Statement == nil || scoped.Statement.Context != ctx {
		t.Fatalf("expected context to flow into statement")
	}
	if base.DB(nil) != db {
		t.Fatalf("expected nil context to return raw handle")
	}
}

func TestBindSwapsHandle(t *testing.T) {
	db := openSQLite(t)
	base := NewBase(db)

	if got := base.Bind(nil); got.db != db {
		t.Fatalf("expected nil tx to keep handle")
	}

	tx := db.Begin()
	defer tx.Rollback()
	bound := base.Bind(tx)
	if bound.db != tx {
		t.Fatalf("expected bound base to use tx")
	}
	if base.db != db {
		t.Fatalf("bind must not mutate receiver")
	}
}
