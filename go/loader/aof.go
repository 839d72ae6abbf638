package loader

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
	"github.com/alex-s168/ubinutils/go/symtab"
)

const aofSymtabBuckets = 16

type AofHeader struct {
	FileType    uint32
	Version     uint32
	NumAreas    uint32
	NumSyms     uint32
	EntryArea   uint32 // 1-based, 0 means no entry point
	EntryOffset uint32
}

const aofHeaderSize = 24

type AreaHeader struct {
	NameOff    uint32
	Attributes uint32
	Size       uint32
	NumRelocs  uint32
	BaseAddr   uint32
}

const areaHeaderSize = 20

func (a *AreaHeader) Attr() AreaAttr { return AreaAttr(a.Attributes &^ 0xFF) }
func (a *AreaHeader) Align() uint8   { return uint8(a.Attributes) }

type AofSym struct {
	NameOff uint32
	Attribs uint32
	Value   uint32
	RefArea uint32 // string table offset of the defining area's name
}

const aofSymSize = 16

func (s *AofSym) Attr() SymAttr { return SymAttr(s.Attribs) }

type Area struct {
	AreaHeader
	Name string

	relocs     []Reloc
	relocsRead bool
}

type AofSymbol struct {
	AofSym
	Name []byte
	// Area is the index of the defining area, or -1.
	Area int
}

type AofFile struct {
	Chunks *ChunkFile
	Header AofHeader
	Areas  []Area
	Syms   []AofSymbol

	index *symtab.Index[int]
}

func MatchAof(r io.ReadSeeker) bool {
	return MatchChunkFile(r)
}

func OpenAof(r io.ReadSeeker, diag models.Diag) (*AofFile, error) {
	c, err := OpenChunkFile(r, diag)
	if err != nil {
		return nil, err
	}
	return NewAof(c)
}

// NewAof decodes the object held by an already opened chunk container.
func NewAof(c *ChunkFile) (*AofFile, error) {
	if c.head == nil {
		c.diag.Printf("no %s chunk", ChunkHead)
		return nil, errors.Wrap(models.ErrMissingChunk, ChunkHead)
	}
	r, order := c.r, c.order
	f := &AofFile{Chunks: c}
	if err := unpackAt(r, &f.Header, int64(c.head.Offset), order, "aof header"); err != nil {
		return nil, err
	}
	if err := checkCount(r, int64(c.head.Offset)+aofHeaderSize, uint64(f.Header.NumAreas), areaHeaderSize, "area headers"); err != nil {
		c.diag.Printf("%d area headers do not fit the file", f.Header.NumAreas)
		return nil, err
	}
	f.Areas = make([]Area, f.Header.NumAreas)
	for i := range f.Areas {
		if err := unpack(r, &f.Areas[i].AreaHeader, order, "area header"); err != nil {
			return nil, err
		}
	}
	if err := f.readSymbols(); err != nil {
		return nil, err
	}
	for i := range f.Areas {
		a := &f.Areas[i]
		name, err := c.Str(a.NameOff)
		if err != nil {
			c.diag.Printf("area %d: %v", i, err)
			continue
		}
		a.Name = string(name)
	}
	for i := range f.Syms {
		f.Syms[i].Area = f.resolveArea(&f.Syms[i].AofSym)
	}
	return f, nil
}

func (f *AofFile) readSymbols() error {
	c := f.Chunks
	f.index = symtab.New[int](aofSymtabBuckets)
	if c.symtab == nil || f.Header.NumSyms == 0 {
		return nil
	}
	off := int64(c.symtab.Offset)
	if err := checkCount(c.r, off, uint64(f.Header.NumSyms), aofSymSize, "symbol table"); err != nil {
		c.diag.Printf("%d symbols do not fit the file", f.Header.NumSyms)
		return err
	}
	if _, err := c.r.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek failed")
	}
	f.Syms = make([]AofSymbol, f.Header.NumSyms)
	for i := range f.Syms {
		if err := unpack(c.r, &f.Syms[i].AofSym, c.order, "symbol"); err != nil {
			return err
		}
	}
	for i := range f.Syms {
		s := &f.Syms[i]
		name, err := c.Str(s.NameOff)
		if err != nil {
			c.diag.Printf("symbol %d: unresolvable name", i)
			return errors.Wrapf(err, "symbol %d", i)
		}
		s.Name = name
		f.index.Insert(name, i)
	}
	return nil
}

func (f *AofFile) resolveArea(s *AofSym) int {
	if !s.Attr().Has(SymDefine) || s.Attr().Has(SymAbsolute) {
		return -1
	}
	for i := range f.Areas {
		if f.Areas[i].NameOff == s.RefArea {
			return i
		}
	}
	name, err := f.Chunks.Str(s.RefArea)
	if err != nil {
		return -1
	}
	if i, ok := f.FindArea(string(name)); ok {
		return i
	}
	return -1
}

// AreaOffset is the file offset of area i's payload. Areas are laid out in
// index order, each payload directly followed by its relocation table.
func (f *AofFile) AreaOffset(i int) (int64, bool) {
	if f.Chunks.area == nil || i < 0 || i >= len(f.Areas) {
		return 0, false
	}
	off := uint64(f.Chunks.area.Offset)
	for _, a := range f.Areas[:i] {
		off += uint64(a.Size) + uint64(a.NumRelocs)*relocSize
	}
	return int64(off), true
}

// Relocations reads area i's relocation table on first use and caches it.
// Without an area chunk there is nothing to read and nil is returned.
func (f *AofFile) Relocations(i int) ([]Reloc, error) {
	if i < 0 || i >= len(f.Areas) {
		return nil, errors.Errorf("area index %d out of range", i)
	}
	a := &f.Areas[i]
	if a.relocsRead {
		return a.relocs, nil
	}
	off, ok := f.AreaOffset(i)
	if !ok {
		return nil, nil
	}
	relocs := []Reloc{}
	if a.NumRelocs > 0 {
		start := off + int64(a.Size)
		if err := checkCount(f.Chunks.r, start, uint64(a.NumRelocs), relocSize, "relocations"); err != nil {
			return nil, err
		}
		if _, err := f.Chunks.r.Seek(start, io.SeekStart); err != nil {
			return nil, errors.Wrap(err, "seek failed")
		}
		relocs = make([]Reloc, a.NumRelocs)
		for j := range relocs {
			if err := unpack(f.Chunks.r, &relocs[j], f.Chunks.order, "relocation"); err != nil {
				return nil, err
			}
		}
	}
	a.relocs = relocs
	a.relocsRead = true
	return relocs, nil
}

// AreaData returns area i's payload. Zero-initialised areas read as zeroes.
func (f *AofFile) AreaData(i int) ([]byte, error) {
	if i < 0 || i >= len(f.Areas) {
		return nil, errors.Errorf("area index %d out of range", i)
	}
	a := &f.Areas[i]
	if a.Attr().Has(AreaZeroInit) {
		if uint64(a.Size) > maxRecords*16 {
			return nil, errors.Wrapf(models.ErrAllocation, "zero-init area of %d bytes", a.Size)
		}
		return make([]byte, a.Size), nil
	}
	off, ok := f.AreaOffset(i)
	if !ok {
		return nil, nil
	}
	return readFull(f.Chunks.r, off, uint64(a.Size), "area "+a.Name)
}

func (f *AofFile) FindArea(name string) (int, bool) {
	for i := range f.Areas {
		if f.Areas[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Lookup finds the first symbol with the given name.
func (f *AofFile) Lookup(name string) (*AofSymbol, bool) {
	i, ok := f.index.Lookup([]byte(name))
	if !ok {
		return nil, false
	}
	return &f.Syms[i], true
}

// Entry returns the entry area index and offset.
func (f *AofFile) Entry() (int, uint32, bool) {
	a := f.Header.EntryArea
	if a == 0 || a > f.Header.NumAreas {
		return -1, 0, false
	}
	return int(a - 1), f.Header.EntryOffset, true
}

func (f *AofFile) RelocTarget(r Reloc) string {
	sid := int(r.SID())
	if r.A() {
		if sid < len(f.Syms) {
			return string(f.Syms[sid].Name)
		}
	} else if sid < len(f.Areas) {
		return f.Areas[sid].Name
	}
	return "?"
}

func (f *AofFile) Format() models.Format       { return models.FormatAof }
func (f *AofFile) ByteOrder() binary.ByteOrder { return f.Chunks.order }
func (f *AofFile) Arch() string                { return "arm" }
func (f *AofFile) Bits() int                   { return 32 }

func (f *AofFile) Sections() []models.Section {
	ret := make([]models.Section, len(f.Areas))
	for i := range f.Areas {
		a := &f.Areas[i]
		off, _ := f.AreaOffset(i)
		ret[i] = models.Section{
			Name:   a.Name,
			Addr:   uint64(a.BaseAddr),
			Offset: uint64(off),
			Size:   uint64(a.Size),
			Kind:   areaKind(a.Attr()),
		}
	}
	return ret
}

func areaKind(a AreaAttr) models.SectionKind {
	switch {
	case a.Has(AreaCode):
		return models.SectionText
	case a.Has(AreaZeroInit):
		return models.SectionBSS
	case a.Has(AreaReadOnly):
		return models.SectionROData
	}
	return models.SectionData
}

func (f *AofFile) FindSection(name string) (int, bool) { return f.FindArea(name) }
func (f *AofFile) SectionData(i int) ([]byte, error)   { return f.AreaData(i) }

func (f *AofFile) Symbols() ([]models.Symbol, error) {
	ret := make([]models.Symbol, len(f.Syms))
	for i := range f.Syms {
		s := &f.Syms[i]
		attr := s.Attr()
		sym := models.Symbol{
			Name:    string(s.Name),
			Value:   uint64(s.Value),
			Section: s.Area,
			Global:  attr.Has(SymGlobal),
			Kind:    models.SymUnknown,
		}
		switch {
		case attr.Has(SymAbsolute):
			sym.Kind = models.SymAbs
			sym.Section = models.SectionAbs
		case attr.Has(SymCommon):
			sym.Kind = models.SymCommon
			sym.Section = models.SectionCommon
		case !attr.Has(SymDefine):
			sym.Kind = models.SymUndef
			sym.Section = models.SectionUndef
		case s.Area >= 0:
			switch areaKind(f.Areas[s.Area].Attr()) {
			case models.SectionText:
				sym.Kind = models.SymText
			case models.SectionROData:
				sym.Kind = models.SymROData
			case models.SectionBSS:
				sym.Kind = models.SymBSS
			default:
				sym.Kind = models.SymData
			}
		default:
			sym.Kind = models.SymData
			sym.Section = models.SectionUnknown
		}
		ret[i] = sym
	}
	return ret, nil
}

func (f *AofFile) Close() error {
	f.Areas = nil
	f.Syms = nil
	f.index = nil
	return f.Chunks.Close()
}
