// Package saf is a minimal, self-contained stand-in for the real SAF
// (site allele frequency likelihood) file reader/writer. spec.md treats
// that reader as an external collaborator; this package exists only so
// the intersector, shuffler, and both drivers have a concrete, testable
// input to read end to end. It is not a reimplementation of ANGSD's
// three-file binary SAF format.
//
// Layout: a one-line text header `#SAF shape=<n>` (n = sample-allele
// count + 1 for this population), followed by one line per site:
// `contig<TAB>position<TAB>l0 l1 ... l(n-1)`, contigs and positions
// ascending as spec.md 4.3 requires of every input stream.
package saf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/winsfs/winsfs/internal/site"
	"github.com/winsfs/winsfs/internal/werr"
)

// Record is one parsed line of a SAF file: a position and its
// per-category likelihood vector.
type Record struct {
	Contig string
	Pos    uint64
	Lik    site.Likelihoods
}

// Reader sequentially yields Records in ascending (contig, position)
// order. It is restartable via Reset.
type Reader interface {
	Next() (Record, bool, error)
	Shape() int
	Reset() error
}

// fileReader reads a SAF text file from disk, restartable by reopening.
type fileReader struct {
	path  string
	f     io.ReadCloser
	br    *bufio.Reader
	shape int
	open  func(path string) (io.ReadCloser, error)
}

// Open reads the SAF header from path and returns a restartable Reader.
func Open(path string, openFn func(path string) (io.ReadCloser, error)) (Reader, error) {
	r := &fileReader{path: path, open: openFn}
	if err := r.Reset(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *fileReader) Reset() error {
	if r.f != nil {
		r.f.Close()
	}
	f, err := r.open(r.path)
	if err != nil {
		return werr.Wrap(werr.Io, err, "saf: open %s", r.path)
	}
	r.f = f
	r.br = bufio.NewReader(f)
	header, err := r.br.ReadString('\n')
	if err != nil {
		return werr.Wrap(werr.InputParse, err, "saf: read header of %s", r.path)
	}
	header = strings.TrimSpace(header)
	const prefix = "#SAF shape="
	if !strings.HasPrefix(header, prefix) {
		return werr.New(werr.InputParse, "saf: %s: missing %q header, got %q", r.path, prefix, header)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(header, prefix))
	if err != nil {
		return werr.Wrap(werr.InputParse, err, "saf: %s: parse shape", r.path)
	}
	r.shape = n
	return nil
}

func (r *fileReader) Shape() int { return r.shape }

func (r *fileReader) Next() (Record, bool, error) {
	line, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && len(strings.TrimSpace(line)) == 0 {
			return Record{}, false, nil
		}
		if err != io.EOF {
			return Record{}, false, werr.Wrap(werr.Io, err, "saf: read %s", r.path)
		}
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false, nil
	}
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return Record{}, false, werr.New(werr.InputParse, "saf: %s: malformed line %q", r.path, line)
	}
	pos, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Record{}, false, werr.Wrap(werr.InputParse, err, "saf: %s: parse position", r.path)
	}
	litFields := strings.Fields(fields[2])
	if len(litFields) != r.shape {
		return Record{}, false, werr.New(werr.InputParse, "saf: %s: expected %d likelihoods, got %d", r.path, r.shape, len(litFields))
	}
	lik := make(site.Likelihoods, r.shape)
	for i, lf := range litFields {
		v, err := strconv.ParseFloat(lf, 64)
		if err != nil {
			return Record{}, false, werr.Wrap(werr.InputParse, err, "saf: %s: parse likelihood", r.path)
		}
		lik[i] = v
	}
	return Record{Contig: fields[0], Pos: pos, Lik: lik}, true, nil
}

// WriteText writes records to w in the format Open/Reader expect.
func WriteText(w io.Writer, shape int, records []Record) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "#SAF shape=%d\n", shape); err != nil {
		return werr.Wrap(werr.Io, err, "saf: write header")
	}
	for _, rec := range records {
		if len(rec.Lik) != shape {
			return werr.New(werr.InputParse, "saf: record likelihood length %d != shape %d", len(rec.Lik), shape)
		}
		litStrs := make([]string, len(rec.Lik))
		for i, v := range rec.Lik {
			litStrs[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if _, err := fmt.Fprintf(bw, "%s\t%d\t%s\n", rec.Contig, rec.Pos, strings.Join(litStrs, " ")); err != nil {
			return werr.Wrap(werr.Io, err, "saf: write record")
		}
	}
	return bw.Flush()
}
