package store

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyRetryableCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "23505"} {
		err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: code, Message: "boom"})
		if got := classify(err); !errors.Is(got, ErrConflict) {
			t.Fatalf("code %s: want ErrConflict, got %v", code, got)
		}
	}
}

func TestClassifyPassThrough(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", Message: "fk"}
	if got := classify(pgErr); errors.Is(got, ErrConflict) {
		t.Fatalf("foreign key violation must not be retried: %v", got)
	}
	if got := classify(ErrStopFull); !errors.Is(got, ErrStopFull) {
		t.Fatalf("sentinel lost: %v", got)
	}
}

func TestNullIfNil(t *testing.T) {
	if v := nullIfNil(nil); v != nil {
		t.Fatalf("nil pointer -> nil expected")
	}
	s := "x"
	if v := nullIfNil(&s); v != "x" {
		t.Fatalf("got %v", v)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(names) == 0 {
		t.Fatalf("no migrations embedded: %v", err)
	}
	body, err := migrations.ReadFile(names[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"delivery_stops_key", "capacity_used <= capacity_max", "stock_qty"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("migration %s missing %q", names[0], want)
		}
	}
}
