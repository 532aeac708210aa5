package internalerr

import (
	"database/sql"
	"errors"
	"testing"
)

func TestStorageWrapsBoth(t *testing.T) {
	err := Storage("insert tags", sql.ErrConnDone)
	if !errors.Is(err, ErrStorage) {
		t.Errorf("expected ErrStorage in chain, got %v", err)
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("expected driver error in chain, got %v", err)
	}
}

func TestStorageNil(t *testing.T) {
	if err := Storage("noop", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestStorageNoDoubleWrap(t *testing.T) {
	inner := Storage("begin", sql.ErrTxDone)
	outer := Storage("tag all", inner)
	want := "tag all: begin: storage error: sql: transaction has already been committed or rolled back"
	if outer.Error() != want {
		t.Errorf("got %q, want %q", outer.Error(), want)
	}
}
