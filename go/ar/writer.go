package ar

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

var (
	ErrTooLong  = errors.New("ar: write too long")
	ErrTooShort = errors.New("ar: member shorter than its header")
)

// Writer writes archive members in order. WriteHeader starts a member and
// Write fills exactly Size bytes of it.
type Writer struct {
	inner     io.Writer
	remaining int64
	size      int64
	open      bool
	err       error
}

func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(Magic); err != nil {
		return nil, errors.Wrap(err, "ar: write magic")
	}
	return &Writer{inner: w}, nil
}

func (w *Writer) WriteHeader(h *Header) error {
	if w.err != nil {
		return w.err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	raw, err := h.Encode()
	if err != nil {
		return err
	}
	if _, err := w.inner.Write(raw); err != nil {
		w.err = errors.Wrap(err, "ar: write header")
		return w.err
	}
	w.open = true
	w.size, w.remaining = h.Size, h.Size
	return nil
}

func (w *Writer) Write(bs []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if !w.open {
		return 0, errors.New("ar: Write called before WriteHeader")
	}
	short := false
	if int64(len(bs)) > w.remaining {
		bs = bs[:w.remaining]
		short = true
	}
	n, err := w.inner.Write(bs)
	w.remaining -= int64(n)
	if err != nil {
		w.err = errors.Wrap(err, "ar: write data")
		return n, w.err
	}
	if short {
		return n, ErrTooLong
	}
	return n, nil
}

// Flush finishes the current member, padding it to an even length.
func (w *Writer) Flush() error {
	if !w.open {
		return nil
	}
	if w.err != nil {
		return w.err
	}
	if w.remaining > 0 {
		return ErrTooShort
	}
	if w.size%2 == 1 {
		if _, err := w.inner.Write([]byte{'\n'}); err != nil {
			w.err = errors.Wrap(err, "ar: write padding")
		}
	}
	w.open = false
	return w.err
}

func (w *Writer) Close() error {
	return w.Flush()
}

// Member is one file to be stored by Build.
type Member struct {
	Name    string
	Data    []byte
	ModTime time.Time
	Uid     int
	Gid     int
	Mode    uint32
	// Symbols lists the global names the member defines, for the index.
	Symbols []string
}

// NameTable accumulates the GNU "//" member. Each name is stored as "name/\n".
type NameTable struct {
	buf bytes.Buffer
}

// Add stores name and returns its header name field, "/<offset>".
func (t *NameTable) Add(name string) string {
	off := t.buf.Len()
	t.buf.WriteString(name)
	t.buf.WriteString("/\n")
	return "/" + strconv.Itoa(off)
}

func (t *NameTable) Len() int { return t.buf.Len() }

func (t *NameTable) Bytes() []byte { return t.buf.Bytes() }

// shortName reports whether name fits inline as "name/".
func shortName(name string) bool {
	return len(name)+1 <= 16
}

func memberSpan(size int) int64 {
	return HeaderSize + int64(size) + int64(size&1)
}

// SymbolIndex is the decoded GNU "/" member: each symbol name paired with
// the file offset of the header of the member that defines it.
type SymbolIndex struct {
	Names   []string
	Offsets []uint32
}

func (s *SymbolIndex) encode() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, uint32(len(s.Names)))
	for _, off := range s.Offsets {
		binary.Write(buf, binary.BigEndian, off)
	}
	for _, name := range s.Names {
		buf.WriteString(name)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// ParseSymbolIndex decodes a GNU "/" member.
func ParseSymbolIndex(data []byte) (*SymbolIndex, error) {
	if len(data) < 4 {
		return nil, errors.Wrap(models.ErrTruncatedRead, "ar: symbol index count")
	}
	count := binary.BigEndian.Uint32(data)
	if uint64(count)*4 > uint64(len(data)-4) {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "ar: symbol index of %d entries", count)
	}
	s := &SymbolIndex{Offsets: make([]uint32, count), Names: make([]string, 0, count)}
	for i := range s.Offsets {
		s.Offsets[i] = binary.BigEndian.Uint32(data[4+i*4:])
	}
	strs := data[4+count*4:]
	for i := uint32(0); i < count; i++ {
		end := bytes.IndexByte(strs, 0)
		if end < 0 {
			return nil, errors.Wrapf(models.ErrTruncatedRead, "ar: symbol index name %d", i)
		}
		s.Names = append(s.Names, string(strs[:end]))
		strs = strs[end+1:]
	}
	return s, nil
}

// Build writes a complete archive holding members. Names longer than 15
// bytes go to a "//" table. With index set, and at least one member
// symbol, a "/" symbol index comes first.
func Build(out io.Writer, members []Member, index bool) error {
	var names NameTable
	rawNames := make([]string, len(members))
	for i, m := range members {
		if shortName(m.Name) {
			rawNames[i] = m.Name + "/"
		} else {
			rawNames[i] = names.Add(m.Name)
		}
	}

	nsyms := 0
	for _, m := range members {
		nsyms += len(m.Symbols)
	}
	if nsyms == 0 {
		index = false
	}
	var symidx *SymbolIndex
	var symData []byte
	if index {
		symidx = &SymbolIndex{}
		for _, m := range members {
			for _, sym := range m.Symbols {
				symidx.Names = append(symidx.Names, sym)
				symidx.Offsets = append(symidx.Offsets, 0)
			}
		}
		// Offsets have fixed width, so the index size is known before layout.
		symData = symidx.encode()
		off := int64(len(Magic)) + memberSpan(len(symData))
		if names.Len() > 0 {
			off += memberSpan(names.Len())
		}
		k := 0
		for _, m := range members {
			if off > 0xffffffff {
				return errors.Wrap(models.ErrInvalidField, "ar: archive too large for symbol index")
			}
			for range m.Symbols {
				symidx.Offsets[k] = uint32(off)
				k++
			}
			off += memberSpan(len(m.Data))
		}
		symData = symidx.encode()
	}

	w, err := NewWriter(out)
	if err != nil {
		return err
	}
	put := func(h *Header, data []byte) error {
		if err := w.WriteHeader(h); err != nil {
			return err
		}
		_, err := w.Write(data)
		return err
	}
	if index {
		h := &Header{RawName: SymbolIndexName, Size: int64(len(symData)), ModTime: time.Unix(0, 0)}
		if err := put(h, symData); err != nil {
			return err
		}
	}
	if names.Len() > 0 {
		h := &Header{RawName: NameTableName, Size: int64(names.Len()), Blank: true}
		if err := put(h, names.Bytes()); err != nil {
			return err
		}
	}
	for i, m := range members {
		h := &Header{
			RawName: rawNames[i],
			Name:    m.Name,
			ModTime: m.ModTime,
			Uid:     m.Uid,
			Gid:     m.Gid,
			Mode:    m.Mode,
			Size:    int64(len(m.Data)),
		}
		if err := put(h, m.Data); err != nil {
			return err
		}
	}
	return w.Close()
}
