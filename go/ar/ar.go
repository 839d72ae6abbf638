// Package ar reads and writes Unix archives, including the GNU and BSD
// long member name schemes.
package ar

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

var (
	Magic      = []byte("!<arch>\n")
	terminator = []byte{0x60, 0x0A}
)

const HeaderSize = 60

// Member names with a meaning to the archive format itself.
const (
	SymbolIndexName   = "/"
	SymbolIndex64Name = "/SYM64/"
	NameTableName     = "//"
	SVR4NameTableName = "ARFILENAMES/"
	BSDSymdefName     = "__.SYMDEF"
	bsdPrefix         = "#1/"
)

var ErrNotFound = errors.New("ar: member not found")

type Header struct {
	// RawName is the 16-byte name field without trailing spaces.
	RawName string
	Name    string
	ModTime time.Time
	Uid     int
	Gid     int
	Mode    uint32
	// Size counts the whole payload, including a BSD embedded name.
	Size int64
	// Blank marks headers whose date, owner, group and mode are empty.
	Blank bool
	// BlankFields marks the individual fields that were empty on disk.
	BlankFields BlankField

	nameLen int64
}

// BlankField selects header fields left empty by the archiver.
type BlankField uint8

const (
	BlankDate BlankField = 1 << iota
	BlankUid
	BlankGid
	BlankMode
)

func (h *Header) blank(f BlankField) bool {
	return h.Blank || h.BlankFields&f != 0
}

// DataSize is the member's content size, excluding a BSD embedded name.
func (h *Header) DataSize() int64 { return h.Size - h.nameLen }

// Special reports whether the member is archive metadata rather than a file.
func (h *Header) Special() bool {
	switch h.RawName {
	case SymbolIndexName, SymbolIndex64Name, NameTableName, SVR4NameTableName:
		return true
	}
	return strings.HasPrefix(h.Name, BSDSymdefName)
}

func readHeaderField(bs []byte) string {
	return strings.TrimRight(string(bs), " ")
}

func parseDecimal(field []byte, what string) (int64, error) {
	s := strings.TrimSpace(string(field))
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.Wrapf(models.ErrInvalidField, "ar: %s %q", what, s)
	}
	return v, nil
}

// parseHeader decodes the fixed fields; name resolution is left to the Reader.
func parseHeader(raw []byte) (*Header, error) {
	if !bytes.Equal(raw[58:60], terminator) {
		return nil, errors.Wrap(models.ErrInvalidField, "ar: bad header terminator")
	}
	h := &Header{RawName: readHeaderField(raw[0:16])}
	date, err := parseDecimal(raw[16:28], "date")
	if err != nil {
		return nil, err
	}
	uid, err := parseDecimal(raw[28:34], "uid")
	if err != nil {
		return nil, err
	}
	gid, err := parseDecimal(raw[34:40], "gid")
	if err != nil {
		return nil, err
	}
	var mode uint64
	if s := strings.TrimSpace(string(raw[40:48])); s != "" {
		if mode, err = strconv.ParseUint(s, 8, 32); err != nil {
			return nil, errors.Wrapf(models.ErrInvalidField, "ar: mode %q", s)
		}
	}
	size, err := parseDecimal(raw[48:58], "size")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(raw[48:58])) == "" {
		return nil, errors.Wrap(models.ErrInvalidField, "ar: empty size")
	}
	h.ModTime = time.Unix(date, 0)
	h.Uid, h.Gid, h.Mode, h.Size = int(uid), int(gid), uint32(mode), size
	for _, f := range []struct {
		bit   BlankField
		field []byte
	}{
		{BlankDate, raw[16:28]},
		{BlankUid, raw[28:34]},
		{BlankGid, raw[34:40]},
		{BlankMode, raw[40:48]},
	} {
		if len(bytes.TrimSpace(f.field)) == 0 {
			h.BlankFields |= f.bit
		}
	}
	h.Blank = h.BlankFields == BlankDate|BlankUid|BlankGid|BlankMode
	return h, nil
}

func writeHeaderField(w *bytes.Buffer, s string, n int) {
	if len(s) > n {
		s = s[:n]
	}
	w.WriteString(s)
	w.WriteString(strings.Repeat(" ", n-len(s)))
}

// date is the on-disk timestamp. Times before the epoch, including the zero
// Time, are written as 0.
func (h *Header) date() int64 {
	if h.ModTime.IsZero() || h.ModTime.Unix() < 0 {
		return 0
	}
	return h.ModTime.Unix()
}

// Encode renders h as a 60-byte member header.
func (h *Header) Encode() ([]byte, error) {
	name := h.RawName
	if name == "" {
		name = h.Name + "/"
	}
	if len(name) > 16 {
		return nil, errors.Errorf("ar: member name %q too long for header", name)
	}
	buf := new(bytes.Buffer)
	writeHeaderField(buf, name, 16)
	field := func(f BlankField, s string, n int) {
		if h.blank(f) {
			s = ""
		}
		writeHeaderField(buf, s, n)
	}
	field(BlankDate, strconv.FormatInt(h.date(), 10), 12)
	field(BlankUid, strconv.Itoa(h.Uid), 6)
	field(BlankGid, strconv.Itoa(h.Gid), 6)
	field(BlankMode, strconv.FormatUint(uint64(h.Mode), 8), 8)
	writeHeaderField(buf, strconv.FormatInt(h.Size, 10), 10)
	buf.Write(terminator)
	return buf.Bytes(), nil
}
