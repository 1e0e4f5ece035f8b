package shuffle

import (
	"encoding/binary"
	"io"

	"github.com/winsfs/winsfs/internal/werr"
)

// Magic identifies a shuffled-file, bit-exact with spec.md 4.6.
const Magic = "winsfshu"

// FormatVersion is the only version this package understands. Readers
// must reject any other value.
const FormatVersion = 1

// alignment is the byte boundary the header is padded to.
const alignment = 64

// Header is the fixed, little-endian shuffled-file header described in
// spec.md 4.6.
type Header struct {
	Dimensions uint8
	Shape      []uint16 // per-population category count, length Dimensions
	SiteCount  uint64
	Stride     uint32 // bytes per site = 8 * sum(Shape)
}

// rawSize is the header size before alignment padding: 8 (magic) + 1
// (version) + 1 (dimensions) + 2*D (shape) + 8 (site count) + 4 (stride).
func (h Header) rawSize() int {
	return len(Magic) + 1 + 1 + 2*len(h.Shape) + 8 + 4
}

// Size returns the total on-disk header size, including padding to a
// 64-byte boundary.
func (h Header) Size() int {
	raw := h.rawSize()
	pad := (alignment - raw%alignment) % alignment
	return raw + pad
}

// RecordStride exposes the per-site byte stride.
func (h Header) RecordStride() int { return int(h.Stride) }

// WriteHeader writes h to w in the bit-exact layout of spec.md 4.6,
// padded with zero bytes to a 64-byte boundary.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, h.Size())
	copy(buf[0:8], []byte(Magic))
	buf[8] = FormatVersion
	buf[9] = uint8(len(h.Shape))
	off := 10
	for _, s := range h.Shape {
		binary.LittleEndian.PutUint16(buf[off:off+2], s)
		off += 2
	}
	binary.LittleEndian.PutUint64(buf[off:off+8], h.SiteCount)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], h.Stride)
	if _, err := w.Write(buf); err != nil {
		return werr.Wrap(werr.Io, err, "shuffle: write header")
	}
	return nil
}

// ReadHeader parses a Header from r, rejecting unknown magic or version.
func ReadHeader(r io.Reader) (Header, error) {
	prefix := make([]byte, 10)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return Header{}, werr.Wrap(werr.Io, err, "shuffle: read header prefix")
	}
	if string(prefix[0:8]) != Magic {
		return Header{}, werr.New(werr.InputParse, "shuffle: bad magic %q", prefix[0:8])
	}
	if prefix[8] != FormatVersion {
		return Header{}, werr.New(werr.InputParse, "shuffle: unsupported format version %d", prefix[8])
	}
	dims := int(prefix[9])
	rest := make([]byte, 2*dims+8+4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, werr.Wrap(werr.Io, err, "shuffle: read header body")
	}
	shape := make([]uint16, dims)
	off := 0
	for i := range shape {
		shape[i] = binary.LittleEndian.Uint16(rest[off : off+2])
		off += 2
	}
	siteCount := binary.LittleEndian.Uint64(rest[off : off+8])
	off += 8
	stride := binary.LittleEndian.Uint32(rest[off : off+4])

	h := Header{Dimensions: uint8(dims), Shape: shape, SiteCount: siteCount, Stride: stride}
	padded := h.Size()
	consumed := 10 + len(rest)
	if pad := padded - consumed; pad > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
			return Header{}, werr.Wrap(werr.Io, err, "shuffle: read header padding")
		}
	}
	return h, nil
}
