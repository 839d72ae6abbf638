package ar

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

// maxMember bounds a single payload read into memory.
const maxMember = 1 << 31

// Reader walks archive members over a seekable stream. A member's data may
// be read or skipped; either way Next continues at the following header.
type Reader struct {
	r    io.ReadSeeker
	size int64

	// extended name heap from the "//" or "ARFILENAMES/" member
	names []byte

	pos     int64 // next header
	last    int64 // header of the current member
	dataOff int64
	cur     *Header
}

func NewReader(r io.ReadSeeker) (*Reader, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, errors.Wrap(err, "seek failed")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek failed")
	}
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, Magic) {
		return nil, errors.Wrap(models.ErrMalformedMagic, "ar")
	}
	a := &Reader{r: r, size: size}
	if err := a.loadNames(); err != nil {
		return nil, err
	}
	a.Rewind()
	return a, nil
}

// loadNames probes for an extended name table, preferring GNU's "//".
func (a *Reader) loadNames() error {
	a.Rewind()
	var svr4 []byte
	for a.HasNext() {
		h, err := a.Next()
		if err != nil {
			return err
		}
		switch h.RawName {
		case NameTableName:
			data, err := a.ReadData()
			if err != nil {
				return err
			}
			a.names = data
			return nil
		case SVR4NameTableName:
			if svr4 == nil {
				if svr4, err = a.ReadData(); err != nil {
					return err
				}
			}
		}
	}
	a.names = svr4
	return nil
}

// Names returns the extended name heap, or nil.
func (a *Reader) Names() []byte { return a.names }

// Rewind moves back to the first member.
func (a *Reader) Rewind() {
	a.pos = int64(len(Magic))
	a.cur = nil
}

func (a *Reader) HasNext() bool {
	return a.pos < a.size
}

// Next decodes the header at the cursor and resolves the member name.
// It returns io.EOF after the last member.
func (a *Reader) Next() (*Header, error) {
	if !a.HasNext() {
		return nil, io.EOF
	}
	if a.pos+HeaderSize > a.size {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "ar: header at %#x", a.pos)
	}
	raw := make([]byte, HeaderSize)
	if err := a.readAt(raw, a.pos); err != nil {
		return nil, err
	}
	h, err := parseHeader(raw)
	if err != nil {
		return nil, err
	}
	dataOff := a.pos + HeaderSize
	if h.Size > a.size-dataOff {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "ar: member %q of %d bytes", h.RawName, h.Size)
	}
	if err := a.resolveName(h, dataOff); err != nil {
		return nil, err
	}
	a.last = a.pos
	a.dataOff = dataOff
	a.cur = h
	a.pos = dataOff + h.Size + h.Size&1
	return h, nil
}

// Unread rewinds to the start of the current member's header, so the next
// call to Next returns it again.
func (a *Reader) Unread() {
	if a.cur != nil {
		a.pos = a.last
		a.cur = nil
	}
}

// Offset is the file offset of the current member's header, the value a
// symbol index stores for it.
func (a *Reader) Offset() int64 { return a.last }

// NextName resolves the name of the next member without advancing.
func (a *Reader) NextName() (string, error) {
	h, err := a.Next()
	if err != nil {
		return "", err
	}
	a.Unread()
	return h.Name, nil
}

// ReadData returns the current member's content.
func (a *Reader) ReadData() ([]byte, error) {
	if a.cur == nil {
		return nil, errors.New("ar: ReadData called before Next")
	}
	n := a.cur.DataSize()
	if n > maxMember {
		return nil, errors.Wrapf(models.ErrAllocation, "ar: member of %d bytes", n)
	}
	buf := make([]byte, n)
	if err := a.readAt(buf, a.dataOff+a.cur.nameLen); err != nil {
		return nil, err
	}
	return buf, nil
}

// Skip leaves the current member's data unread.
func (a *Reader) Skip() { a.cur = nil }

// FindNext scans forward from the cursor for a member called name.
func (a *Reader) FindNext(name string) (*Header, []byte, error) {
	for a.HasNext() {
		h, err := a.Next()
		if err != nil {
			return nil, nil, err
		}
		if h.Name != name {
			a.Skip()
			continue
		}
		data, err := a.ReadData()
		if err != nil {
			return nil, nil, err
		}
		return h, data, nil
	}
	return nil, nil, errors.Wrap(ErrNotFound, name)
}

func (a *Reader) readAt(buf []byte, off int64) error {
	if _, err := a.r.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek failed")
	}
	if _, err := io.ReadFull(a.r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return errors.Wrapf(models.ErrTruncatedRead, "ar: %d bytes at %#x", len(buf), off)
		}
		return errors.Wrap(err, "read failed")
	}
	return nil
}

func (a *Reader) resolveName(h *Header, dataOff int64) error {
	raw := h.RawName
	switch {
	case strings.HasPrefix(raw, bsdPrefix):
		n, err := strconv.ParseInt(strings.TrimSpace(raw[len(bsdPrefix):]), 10, 64)
		if err != nil || n < 0 || n > h.Size {
			return errors.Wrapf(models.ErrInvalidField, "ar: bsd name length %q", raw)
		}
		name := make([]byte, n)
		if err := a.readAt(name, dataOff); err != nil {
			return err
		}
		h.Name = string(bytes.TrimRight(name, "\x00"))
		h.nameLen = n
		return nil
	case a.names != nil && isGNUIndirect(raw):
		off, err := strconv.ParseUint(strings.TrimSpace(raw[1:]), 10, 64)
		if err != nil {
			break
		}
		if off >= uint64(len(a.names)) {
			return errors.Wrapf(models.ErrUnresolvedReference, "ar: name offset %d outside %d byte table", off, len(a.names))
		}
		name := a.names[off:]
		if i := bytes.IndexByte(name, '\n'); i >= 0 {
			name = name[:i]
		}
		if i := bytes.IndexByte(name, '/'); i >= 0 {
			name = name[:i]
		}
		h.Name = string(name)
		return nil
	}
	h.Name = raw
	if raw != SymbolIndexName && raw != NameTableName {
		h.Name = strings.TrimSuffix(raw, "/")
	}
	return nil
}

// isGNUIndirect matches "/<digits>" and " <digits>" but not "/" or "//".
func isGNUIndirect(raw string) bool {
	if raw == "" {
		return false
	}
	if raw[0] == ' ' {
		return true
	}
	return raw[0] == '/' && len(raw) > 1 && raw[1] != '/' && raw[1] != ' '
}
