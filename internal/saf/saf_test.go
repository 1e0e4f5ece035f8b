package saf

import (
	"bytes"
	"io"
	"testing"

	"github.com/winsfs/winsfs/internal/site"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func TestWriteThenReadRoundTrip(t *testing.T) {
	records := []Record{
		{Contig: "chr1", Pos: 1, Lik: site.Likelihoods{0.1, 0.7, 0.2}},
		{Contig: "chr1", Pos: 2, Lik: site.Likelihoods{0.5, 0.4, 0.1}},
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, 3, records); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	data := buf.Bytes()
	r, err := Open("mem", func(string) (io.ReadCloser, error) {
		return memFile{bytes.NewReader(data)}, nil
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r.Shape() != 3 {
		t.Fatalf("expected shape 3, got %d", r.Shape())
	}

	var got []Record
	for {
		rec, ok, err := r.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, rec)
	}
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i := range records {
		if got[i].Contig != records[i].Contig || got[i].Pos != records[i].Pos {
			t.Fatalf("record %d mismatch: %+v vs %+v", i, got[i], records[i])
		}
	}
}

func TestResetRereads(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteText(&buf, 2, []Record{{Contig: "chr1", Pos: 1, Lik: site.Likelihoods{1, 0}}})
	data := buf.Bytes()
	opener := func(string) (io.ReadCloser, error) { return memFile{bytes.NewReader(data)}, nil }

	r, err := Open("mem", opener)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := r.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	rec, ok, err := r.Next()
	if err != nil || !ok {
		t.Fatalf("expected a record after reset, got ok=%v err=%v", ok, err)
	}
	if rec.Pos != 1 {
		t.Fatalf("expected pos 1 after reset, got %d", rec.Pos)
	}
}
