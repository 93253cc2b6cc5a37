package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"gnutrition/internal/refdata/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("driver = %s", s.Driver())
	}
	s.PutString("b/WEIGHT.txt", "w")
	s.PutString("a/WEIGHT.txt", "first")
	s.PutString("a/WEIGHT.txt", "second")

	rc, err := s.Open(ctx, "a/WEIGHT.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "second" {
		t.Fatalf("content = %q", b)
	}
	info, err := s.Stat(ctx, "a/WEIGHT.txt")
	if err != nil || info.Size != 6 {
		t.Fatalf("stat = %#v, %v", info, err)
	}
	list, _ := s.List(ctx, "")
	if len(list) != 2 || list[0].Key != "a/WEIGHT.txt" {
		t.Fatalf("list = %#v", list)
	}
	if list, _ := s.List(ctx, "b/"); len(list) != 1 {
		t.Fatalf("prefix list = %#v", list)
	}
}

func TestMissing(t *testing.T) {
	s := New()
	if _, err := s.Open(context.Background(), "x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("open = %v", err)
	}
	if _, err := s.Stat(context.Background(), "x"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("stat = %v", err)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestPutReadError(t *testing.T) {
	if _, err := New().Put(context.Background(), "k", errReader{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := New().Put(context.Background(), "k", strings.NewReader("")); err != nil {
		t.Fatalf("empty put: %v", err)
	}
}
