package intersect

import (
	"bytes"
	"io"
	"testing"

	"github.com/winsfs/winsfs/internal/saf"
)

type memFile struct{ *bytes.Reader }

func (memFile) Close() error { return nil }

func openerFor(shape int, records []saf.Record) saf.Reader {
	var buf bytes.Buffer
	if err := saf.WriteText(&buf, shape, records); err != nil {
		panic(err)
	}
	data := buf.Bytes()
	r, err := saf.Open("mem", func(string) (io.ReadCloser, error) {
		return memFile{bytes.NewReader(data)}, nil
	})
	if err != nil {
		panic(err)
	}
	return r
}

func TestIntersectCorrectness(t *testing.T) {
	a := openerFor(2, []saf.Record{
		{Contig: "chr1", Pos: 1, Lik: []float64{1, 0}},
		{Contig: "chr1", Pos: 2, Lik: []float64{1, 0}},
		{Contig: "chr1", Pos: 4, Lik: []float64{1, 0}},
	})
	b := openerFor(2, []saf.Record{
		{Contig: "chr1", Pos: 2, Lik: []float64{0, 1}},
		{Contig: "chr1", Pos: 3, Lik: []float64{0, 1}},
		{Contig: "chr1", Pos: 4, Lik: []float64{0, 1}},
	})

	stream := New([]saf.Reader{a, b})

	var positions []uint64
	for {
		_, _, pos, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		positions = append(positions, pos)
	}

	if len(positions) != 2 || positions[0] != 2 || positions[1] != 4 {
		t.Fatalf("expected emitted positions [2 4], got %v", positions)
	}
}

func TestIntersectAscending(t *testing.T) {
	a := openerFor(2, []saf.Record{
		{Contig: "chr1", Pos: 1, Lik: []float64{1, 0}},
		{Contig: "chr1", Pos: 5, Lik: []float64{1, 0}},
		{Contig: "chr2", Pos: 1, Lik: []float64{1, 0}},
	})
	b := openerFor(2, []saf.Record{
		{Contig: "chr1", Pos: 1, Lik: []float64{0, 1}},
		{Contig: "chr1", Pos: 5, Lik: []float64{0, 1}},
		{Contig: "chr2", Pos: 1, Lik: []float64{0, 1}},
	})
	stream := New([]saf.Reader{a, b})

	type seen struct {
		contig string
		pos    uint64
	}
	var all []seen
	for {
		_, contig, pos, ok, err := stream.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		all = append(all, seen{contig, pos})
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 sites, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if cur.contig < prev.contig || (cur.contig == prev.contig && cur.pos <= prev.pos) {
			t.Fatalf("emitted sites not strictly ascending: %v", all)
		}
	}
}

func TestIntersectEmptyIsError(t *testing.T) {
	a := openerFor(2, []saf.Record{{Contig: "chr1", Pos: 1, Lik: []float64{1, 0}}})
	b := openerFor(2, []saf.Record{{Contig: "chr1", Pos: 2, Lik: []float64{1, 0}}})
	stream := New([]saf.Reader{a, b})
	_, err := Collect(stream)
	if err == nil {
		t.Fatalf("expected error for empty intersection")
	}
}
