// Package intersect aligns multiple sorted per-contig position streams
// and emits only the sites present in every population, as described in
// spec.md 4.3.
package intersect

import (
	"github.com/winsfs/winsfs/internal/saf"
	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
)

// key is a position comparable lexicographically on (contig rank,
// position), where contig rank is the order in which contigs are first
// seen while polling the readers (readers[0] first in each round); a
// contig that first appears in a later reader takes its rank from there.
type key struct {
	contigRank int
	pos        uint64
}

func less(a, b key) bool {
	if a.contigRank != b.contigRank {
		return a.contigRank < b.contigRank
	}
	return a.pos < b.pos
}

// Stream is a restartable finite stream of D-tuples present in every
// input reader.
type Stream struct {
	readers     []saf.Reader
	contigOrder map[string]int
	nextOrder   int
	cur         []saf.Record
	have        []bool
}

// New builds an intersection Stream over readers. The common contig
// order is derived lazily from whichever reader first mentions a given
// contig, biased toward readers[0] by virtue of it being polled first in
// each advance.
func New(readers []saf.Reader) *Stream {
	return &Stream{
		readers:     readers,
		contigOrder: make(map[string]int),
		cur:         make([]saf.Record, len(readers)),
		have:        make([]bool, len(readers)),
	}
}

func (s *Stream) rank(contig string) int {
	if r, ok := s.contigOrder[contig]; ok {
		return r
	}
	r := s.nextOrder
	s.contigOrder[contig] = r
	s.nextOrder++
	return r
}

func (s *Stream) keyOf(rec saf.Record) key {
	return key{contigRank: s.rank(rec.Contig), pos: rec.Pos}
}

func (s *Stream) fill(i int) error {
	if s.have[i] {
		return nil
	}
	rec, ok, err := s.readers[i].Next()
	if err != nil {
		return werr.Wrap(werr.Io, err, "intersect: reader %d", i)
	}
	if !ok {
		return nil
	}
	s.cur[i] = rec
	s.have[i] = true
	return nil
}

// Next advances the intersection, returning the next tuple present in
// every reader, or ok=false once any reader is exhausted.
func (s *Stream) Next() (tuple site.Site, contig string, pos uint64, ok bool, err error) {
	for {
		for i := range s.readers {
			if err := s.fill(i); err != nil {
				return nil, "", 0, false, err
			}
			if !s.have[i] {
				return nil, "", 0, false, nil
			}
		}

		minKey := s.keyOf(s.cur[0])
		for i := 1; i < len(s.readers); i++ {
			k := s.keyOf(s.cur[i])
			if less(k, minKey) {
				minKey = k
			}
		}

		allEqual := true
		for i := range s.readers {
			if s.keyOf(s.cur[i]) != minKey {
				allEqual = false
				break
			}
		}

		if allEqual {
			tup := make(site.Site, len(s.readers))
			contigOut := s.cur[0].Contig
			posOut := s.cur[0].Pos
			for i := range s.readers {
				tup[i] = s.cur[i].Lik
				s.have[i] = false
			}
			return tup, contigOut, posOut, true, nil
		}

		for i := range s.readers {
			if s.keyOf(s.cur[i]) == minKey {
				s.have[i] = false
			}
		}
	}
}

// Reset rewinds every reader and clears the position cursor state, so
// the same Stream can be replayed.
func (s *Stream) Reset() error {
	for i, r := range s.readers {
		if err := r.Reset(); err != nil {
			return werr.Wrap(werr.Io, err, "intersect: reset reader %d", i)
		}
		s.have[i] = false
	}
	return nil
}

// Collect drains the stream into an in-memory slice of sites, for use by
// the in-memory winEM driver. It returns werr.Intersection if the
// resulting set is empty.
func Collect(s *Stream) ([]site.Site, error) {
	var out []site.Site
	for {
		tuple, _, _, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, tuple)
	}
	if len(out) == 0 {
		return nil, werr.New(werr.Intersection, "intersect: no sites present in every input")
	}
	return out, nil
}
