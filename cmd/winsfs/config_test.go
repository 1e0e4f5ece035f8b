package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/winsfs/winsfs/internal/sfs"
)

func TestLooksShuffledDetectsMagic(t *testing.T) {
	dir := t.TempDir()
	shuffled := filepath.Join(dir, "shuffled.bin")
	if err := os.WriteFile(shuffled, []byte("winsfshu\x01extra"), 0o644); err != nil {
		t.Fatalf("write shuffled file: %v", err)
	}
	if !looksShuffled(shuffled) {
		t.Fatalf("expected looksShuffled to detect the magic")
	}

	saf := filepath.Join(dir, "pop1.saf")
	if err := os.WriteFile(saf, []byte("#SAF shape=3\nchr1\t1\t1 0 0\n"), 0o644); err != nil {
		t.Fatalf("write saf file: %v", err)
	}
	if looksShuffled(saf) {
		t.Fatalf("expected looksShuffled to reject a SAF text file")
	}

	if looksShuffled(filepath.Join(dir, "missing")) {
		t.Fatalf("expected looksShuffled to return false for a missing file")
	}
}

func TestIsNpyPath(t *testing.T) {
	if !isNpyPath("out.npy") {
		t.Fatalf("expected out.npy to be recognised")
	}
	if isNpyPath("out.txt") {
		t.Fatalf("expected out.txt to not be recognised as npy")
	}
}

func TestLoadInitialEmptyPathReturnsNil(t *testing.T) {
	q, err := loadInitial("")
	if err != nil {
		t.Fatalf("loadInitial(\"\") returned error: %v", err)
	}
	if q != nil {
		t.Fatalf("expected nil initial Sfs for empty path")
	}
}

func TestWriteSfsTextRoundTrip(t *testing.T) {
	q, err := sfs.New(sfs.Shape{2, 2})
	if err != nil {
		t.Fatalf("sfs.New: %v", err)
	}
	q.Data()[0] = 3
	q.Data()[3] = 1

	path := filepath.Join(t.TempDir(), "out.sfs")
	if err := writeSfs(q, path); err != nil {
		t.Fatalf("writeSfs: %v", err)
	}

	got, err := loadInitial(path)
	if err != nil {
		t.Fatalf("loadInitial round trip: %v", err)
	}
	if !got.Shape().Equal(q.Shape()) {
		t.Fatalf("shape mismatch: got %s want %s", got.Shape(), q.Shape())
	}
	if got.Sum() != q.Sum() {
		t.Fatalf("sum mismatch: got %v want %v", got.Sum(), q.Sum())
	}
}

func TestLoadIntersectionNoSitesIsError(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.saf")
	b := filepath.Join(dir, "b.saf")
	if err := os.WriteFile(a, []byte("#SAF shape=2\nchr1\t1\t1 0\n"), 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("#SAF shape=2\nchr1\t2\t1 0\n"), 0o644); err != nil {
		t.Fatalf("write b: %v", err)
	}

	if _, err := loadIntersection([]string{a, b}); err == nil {
		t.Fatalf("expected an error when no positions intersect")
	}
}
