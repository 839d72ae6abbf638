package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

// maxRecords bounds any declared element count before a slice is allocated.
const maxRecords = 1 << 22

func getMagic(r io.ReadSeeker, n int) []byte {
	ret := make([]byte, n)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	if _, err := io.ReadFull(r, ret); err != nil {
		return nil
	}
	return ret
}

func streamSize(r io.Seeker) (int64, error) {
	cur, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "seek failed")
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, "seek failed")
	}
	if _, err := r.Seek(cur, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "seek failed")
	}
	return end, nil
}

func truncated(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(models.ErrTruncatedRead, what)
	}
	return errors.Wrap(err, what)
}

// readFull reads exactly n bytes at off.
func readFull(r io.ReadSeeker, off int64, n uint64, what string) ([]byte, error) {
	if n > 1<<31 {
		return nil, errors.Wrapf(models.ErrAllocation, "%s: %d bytes", what, n)
	}
	size, err := streamSize(r)
	if err != nil {
		return nil, err
	}
	if off < 0 || uint64(off)+n > uint64(size) {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "%s: %d bytes at %#x past end of %d byte file", what, n, off, size)
	}
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek failed")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, truncated(err, what)
	}
	return buf, nil
}

// unpack reads one fixed-size record from the current position.
func unpack(r io.Reader, v interface{}, order binary.ByteOrder, what string) error {
	size, err := struc.Sizeof(v)
	if err != nil {
		return errors.Wrap(err, "struc.Sizeof() failed")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return truncated(err, what)
	}
	if err := struc.UnpackWithOrder(bytes.NewReader(buf), v, order); err != nil {
		return errors.Wrap(err, "struc.Unpack() failed")
	}
	return nil
}

func unpackAt(r io.ReadSeeker, v interface{}, off int64, order binary.ByteOrder, what string) error {
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek failed")
	}
	return unpack(r, v, order, what)
}

// checkCount rejects declared record arrays that cannot fit in the stream.
func checkCount(r io.Seeker, off int64, count, recSize uint64, what string) error {
	if count > maxRecords {
		return errors.Wrapf(models.ErrAllocation, "%s: %d records", what, count)
	}
	size, err := streamSize(r)
	if err != nil {
		return err
	}
	if off < 0 || uint64(off)+count*recSize > uint64(size) {
		return errors.Wrapf(models.ErrTruncatedRead, "%s: %d records at %#x", what, count, off)
	}
	return nil
}

// cstr returns the NUL-terminated string at off, borrowing tab.
func cstr(tab []byte, off uint64) ([]byte, bool) {
	if off >= uint64(len(tab)) {
		return nil, false
	}
	s := tab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s, true
}
