// Copyright 2025 James Ross
package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/adaspeas/deliveryd/internal/joberr"
)

func TestLocalDriverListAndStream(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "A"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "A", "f.bin"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := NewLocalDriver(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	top, err := d.List(ctx, "/")
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Kind != KindDir || top[0].Path != "/A" {
		t.Fatalf("unexpected top listing: %+v", top)
	}

	children, err := d.List(ctx, "/A")
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 1 || children[0].Path != "/A/f.bin" {
		t.Fatalf("unexpected children: %+v", children)
	}

	rc, err := d.Stream(ctx, "/A/f.bin")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
}

func TestLocalDriverRejectsEscape(t *testing.T) {
	root := t.TempDir()
	d, err := NewLocalDriver(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.List(context.Background(), "/../../etc"); err == nil {
		t.Fatal("expected escape rejection")
	}
}

func TestLocalDriverClassifiesErrors(t *testing.T) {
	root := t.TempDir()
	d, err := NewLocalDriver(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, err = d.Stream(ctx, "/missing.bin")
	if err == nil || joberr.Classify(err) != joberr.ClassNotFound {
		t.Fatalf("expected not_found for missing file, got %v", err)
	}

	_, err = d.List(ctx, "/no-such-dir")
	if err == nil || joberr.Classify(err) != joberr.ClassNotFound {
		t.Fatalf("expected not_found for missing dir, got %v", err)
	}

	_, err = d.Stream(ctx, "/../../etc/passwd")
	if err == nil || joberr.Classify(err) != joberr.ClassInvariant {
		t.Fatalf("expected invariant for root escape, got %v", err)
	}
}
