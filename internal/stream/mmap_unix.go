// +build linux darwin

package stream

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/winsfs/winsfs/internal/werr"
)

// mmapAccess backs a File with a read-only memory mapping of the
// records region, giving ReadBlock a zero-copy view (spec.md 4.7
// "memory-maps ... the file").
type mmapAccess struct {
	data   []byte
	base   int // offset of the first record within data
	stride int
}

func newRecordAccess(f *os.File, headerSize, size int64, stride int) (recordAccess, error) {
	if size == 0 {
		return &mmapAccess{data: nil, stride: stride}, nil
	}
	// mmap offsets must be page-aligned, so the mapping starts at the
	// beginning of the file and the header is skipped via base.
	data, err := unix.Mmap(int(f.Fd()), 0, int(headerSize+size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, werr.Wrap(werr.Io, err, "stream: mmap")
	}
	return &mmapAccess{data: data, base: int(headerSize), stride: stride}, nil
}

func (m *mmapAccess) readBlock(start, count int, _ []byte) ([]byte, error) {
	off := m.base + start*m.stride
	end := off + count*m.stride
	return m.data[off:end], nil
}

func (m *mmapAccess) close() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}
