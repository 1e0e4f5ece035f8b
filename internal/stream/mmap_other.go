// +build !linux,!darwin

package stream

import (
	"os"

	"github.com/winsfs/winsfs/internal/werr"
)

// readAtAccess is the portable fallback for platforms without the
// unix.Mmap path: a buffered sequential ReadAt, bounding the working set
// to O(stride*blockSize) instead of mapping the whole file (spec.md 4.7
// Memory bound).
type readAtAccess struct {
	f          *os.File
	headerSize int64
	stride     int
}

func newRecordAccess(f *os.File, headerSize, _ int64, stride int) (recordAccess, error) {
	return &readAtAccess{f: f, headerSize: headerSize, stride: stride}, nil
}

func (r *readAtAccess) readBlock(start, count int, dst []byte) ([]byte, error) {
	need := count * r.stride
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	off := r.headerSize + int64(start)*int64(r.stride)
	if _, err := r.f.ReadAt(dst, off); err != nil {
		return nil, werr.Wrap(werr.Io, err, "stream: read at %d", off)
	}
	return dst, nil
}

func (r *readAtAccess) close() error { return nil }
