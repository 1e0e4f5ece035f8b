// Package shuffle implements the one-pass permutation of intersected
// sites into a pre-allocated, block-structured on-disk file (C6), per
// spec.md 4.6.
package shuffle

import (
	"encoding/binary"
	"math"
	"math/rand"
	"os"

	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
)

// DefaultThreshold bounds the in-memory Fisher-Yates permutation state
// (N*8 bytes) before the writer falls back to the two-pass bucketed
// shuffle (spec.md 4.6).
const DefaultThreshold = 1 << 30 // 1 GiB of permutation state

// DefaultBuckets is the bucket count used by the two-pass path when the
// caller does not override it.
const DefaultBuckets = 64

// Config configures Write.
type Config struct {
	Seed      int64
	Threshold int64 // bytes of permutation state before switching to buckets
	Buckets   int
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Buckets <= 0 {
		c.Buckets = DefaultBuckets
	}
	return c
}

// Write shuffles every site in idx into a freshly created file at path.
// path must not already exist. Identical seed and identical input yield
// identical file bytes (spec.md 4.6 Determinism).
func Write(path string, idx site.Index, cfg Config) error {
	cfg = cfg.withDefaults()

	shapeInts := idx.Shape()
	shape := make([]uint16, len(shapeInts))
	stride := 0
	for i, s := range shapeInts {
		shape[i] = uint16(s)
		stride += 8 * s
	}
	n := idx.Len()
	header := Header{Dimensions: uint8(len(shape)), Shape: shape, SiteCount: uint64(n), Stride: uint32(stride)}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: create %s", path)
	}
	defer f.Close()

	totalSize := int64(header.Size()) + int64(n)*int64(stride)
	if err := f.Truncate(totalSize); err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: truncate %s", path)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: seek %s", path)
	}
	if err := WriteHeader(f, header); err != nil {
		return err
	}
	headerSize := int64(header.Size())

	rng := rand.New(rand.NewSource(cfg.Seed))

	permState := int64(n) * 8
	if permState <= cfg.Threshold {
		return writeFisherYates(f, headerSize, stride, idx, rng)
	}
	return writeBucketed(f, headerSize, stride, idx, rng, cfg.Buckets)
}

// writeFisherYates builds a full in-memory destination-slot permutation
// and writes every site to its assigned offset via WriteAt (pwrite).
func writeFisherYates(f *os.File, headerSize int64, stride int, idx site.Index, rng *rand.Rand) error {
	n := idx.Len()
	dest := make([]int, n)
	for i := range dest {
		dest[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		dest[i], dest[j] = dest[j], dest[i]
	}

	buf := make([]byte, stride)
	sites := idx.Slice(0, n)
	for i, s := range sites {
		encodeSite(buf, s)
		offset := headerSize + int64(dest[i])*int64(stride)
		if _, err := f.WriteAt(buf, offset); err != nil {
			return werr.Wrap(werr.Io, err, "shuffle: write site %d", i)
		}
	}
	return nil
}

// writeBucketed streams sites into K roughly-equal, pre-allocated bucket
// regions of the final file (O(K) state, not O(N)), then seek-shuffles
// the records within each bucket in memory. Required when the full
// Fisher-Yates permutation state would exceed cfg.Threshold.
func writeBucketed(f *os.File, headerSize int64, stride int, idx site.Index, rng *rand.Rand, buckets int) error {
	n := idx.Len()
	if buckets > n {
		buckets = n
	}
	if buckets < 1 {
		buckets = 1
	}

	capacities := make([]int, buckets)
	base := n / buckets
	extra := n % buckets
	offsets := make([]int64, buckets)
	cursor := headerSize
	for b := 0; b < buckets; b++ {
		capacities[b] = base
		if b < extra {
			capacities[b]++
		}
		offsets[b] = cursor
		cursor += int64(capacities[b]) * int64(stride)
	}

	fill := make([]int, buckets)
	buf := make([]byte, stride)
	sites := idx.Slice(0, n)
	for i, s := range sites {
		b := pickBucket(rng, capacities, fill)
		encodeSite(buf, s)
		offset := offsets[b] + int64(fill[b])*int64(stride)
		if _, err := f.WriteAt(buf, offset); err != nil {
			return werr.Wrap(werr.Io, err, "shuffle: write bucket %d site %d", b, i)
		}
		fill[b]++
	}

	for b := 0; b < buckets; b++ {
		if err := shuffleBucketInPlace(f, offsets[b], capacities[b], stride, rng); err != nil {
			return err
		}
	}
	return nil
}

// pickBucket draws uniformly among the buckets that still have
// remaining capacity.
func pickBucket(rng *rand.Rand, capacities, fill []int) int {
	for {
		b := rng.Intn(len(capacities))
		if fill[b] < capacities[b] {
			return b
		}
	}
}

// shuffleBucketInPlace reads a bucket's region back into memory,
// Fisher-Yates shuffles its records, and writes it back.
func shuffleBucketInPlace(f *os.File, offset int64, count, stride int, rng *rand.Rand) error {
	if count <= 1 {
		return nil
	}
	data := make([]byte, count*stride)
	if _, err := f.ReadAt(data, offset); err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: read bucket at %d", offset)
	}
	rec := make([]byte, stride)
	for i := count - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		if i == j {
			continue
		}
		copy(rec, data[i*stride:(i+1)*stride])
		copy(data[i*stride:(i+1)*stride], data[j*stride:(j+1)*stride])
		copy(data[j*stride:(j+1)*stride], rec)
	}
	if _, err := f.WriteAt(data, offset); err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: write bucket at %d", offset)
	}
	return nil
}

// encodeSite writes s's concatenated per-population likelihoods as
// little-endian f64 into buf, which must be exactly stride bytes.
func encodeSite(buf []byte, s site.Site) {
	off := 0
	for _, lik := range s {
		for _, v := range lik {
			binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(v))
			off += 8
		}
	}
}

// decodeSite reconstructs a Site from a raw record given the per
// population shape.
func decodeSite(buf []byte, shape []uint16) site.Site {
	s := make(site.Site, len(shape))
	off := 0
	for i, sp := range shape {
		lik := make(site.Likelihoods, sp)
		for j := range lik {
			lik[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
			off += 8
		}
		s[i] = lik
	}
	return s
}

// DecodeSite is the exported form of decodeSite, used by internal/stream
// to parse records read from the shuffled file.
func DecodeSite(buf []byte, shape []uint16) site.Site { return decodeSite(buf, shape) }
