// Package stream implements the single-threaded streaming driver (C7):
// it opens a shuffled file produced by internal/shuffle, reads it
// sequentially in fixed-size blocks, and runs the same EM/window
// machinery as internal/winem without parallelism or per-epoch
// re-permutation, per spec.md 4.7.
package stream

import (
	"os"

	"github.com/winsfs/winsfs/internal/shuffle"
	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
)

// recordAccess abstracts the platform-specific byte source backing a
// File: a memory-mapped region on unix-likes, a buffered ReadAt
// elsewhere (mmap_unix.go / mmap_other.go).
type recordAccess interface {
	readBlock(start, count int, dst []byte) ([]byte, error)
	close() error
}

// File is an opened, validated shuffled file ready for block-at-a-time
// sequential access.
type File struct {
	f      *os.File
	header shuffle.Header
	access recordAccess
}

// Open validates the header (magic, version) and prepares File for
// sequential block reads.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, werr.Wrap(werr.Io, err, "stream: open %s", path)
	}
	header, err := shuffle.ReadHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	headerSize := int64(header.Size())
	recordsSize := int64(header.SiteCount) * int64(header.Stride)

	access, err := newRecordAccess(f, headerSize, recordsSize, int(header.Stride))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{f: f, header: header, access: access}, nil
}

// Close releases the underlying file and any mapped memory.
func (sf *File) Close() error {
	err := sf.access.close()
	if cerr := sf.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Len returns the total site count, N.
func (sf *File) Len() int { return int(sf.header.SiteCount) }

// Shape returns the per-population category counts.
func (sf *File) Shape() []int {
	shape := make([]int, len(sf.header.Shape))
	for i, s := range sf.header.Shape {
		shape[i] = int(s)
	}
	return shape
}

// Blocks splits the file into blocks of blockSize sites (the last block
// may be short). Block boundaries are identical across epochs (spec.md
// 4.7: "no per-epoch re-permutation").
func (sf *File) Blocks(blockSize int) []site.Block {
	return site.PlanBySize(sf.Len(), blockSize)
}

// ReadBlock decodes the sites of block b, reusing dst as scratch space
// where the access layer supports it (the ReadAt fallback); the mmap
// path ignores dst and returns a view into the mapped region.
func (sf *File) ReadBlock(b site.Block, dst []byte) ([]site.Site, error) {
	raw, err := sf.access.readBlock(b.Start, b.Count, dst)
	if err != nil {
		return nil, werr.Wrap(werr.Io, err, "stream: read block at %d", b.Start)
	}
	out := make([]site.Site, b.Count)
	stride := int(sf.header.Stride)
	for i := 0; i < b.Count; i++ {
		out[i] = shuffle.DecodeSite(raw[i*stride:(i+1)*stride], sf.header.Shape)
	}
	return out, nil
}
