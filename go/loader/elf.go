package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

var elfMagic = []byte{0x7f, 0x45, 0x4c, 0x46}

var machineMap = map[elf.Machine]string{
	elf.EM_386:     "x86",
	elf.EM_X86_64:  "x86_64",
	elf.EM_ARM:     "arm",
	elf.EM_AARCH64: "arm64",
	elf.EM_MIPS:    "mips",
	elf.EM_PPC:     "ppc",
	elf.EM_PPC64:   "ppc64",
	elf.EM_RISCV:   "riscv",
}

type elfIdent struct {
	Ident   [16]byte
	Type    uint16
	Machine uint16
	Version uint32
}

type elfMid32 struct {
	Entry uint64 `struc:"uint32"`
	Phoff uint64 `struc:"uint32"`
	Shoff uint64 `struc:"uint32"`
}

type elfMid64 struct {
	Entry uint64
	Phoff uint64
	Shoff uint64
}

type elfTail struct {
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// ElfHeader is the file header with the class-dependent words widened.
type ElfHeader struct {
	Ident   [16]byte
	Type    uint16
	Machine uint16
	Version uint32
	elfMid64
	elfTail
}

func (h *ElfHeader) Class() elf.Class { return elf.Class(h.Ident[elf.EI_CLASS]) }
func (h *ElfHeader) Data() elf.Data   { return elf.Data(h.Ident[elf.EI_DATA]) }

type ElfSection struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
}

type elfSection32 struct {
	Name      uint32
	Type      uint32
	Flags     uint64 `struc:"uint32"`
	Addr      uint64 `struc:"uint32"`
	Offset    uint64 `struc:"uint32"`
	Size      uint64 `struc:"uint32"`
	Link      uint32
	Info      uint32
	Addralign uint64 `struc:"uint32"`
	Entsize   uint64 `struc:"uint32"`
}

const (
	elfSection32Size = 40
	elfSection64Size = 64
	elfSym32Size     = 16
	elfSym64Size     = 24
)

// ElfSym has the 64-bit field order; 32-bit records are widened into it.
type ElfSym struct {
	Name  uint32
	Info  uint8
	Other uint8
	Shndx uint16
	Value uint64
	Size  uint64
}

type elfSym32 struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

func (s *ElfSym) Bind() elf.SymBind { return elf.ST_BIND(s.Info) }
func (s *ElfSym) Type() elf.SymType { return elf.ST_TYPE(s.Info) }

type ElfFile struct {
	r     io.ReadSeeker
	order binary.ByteOrder
	diag  models.Diag

	Header ElfHeader
	Shdrs  []ElfSection

	shstrtab []byte
	strtabs  map[uint32][]byte
}

func MatchElf(r io.ReadSeeker) bool {
	return bytes.Equal(getMagic(r, 4), elfMagic)
}

func OpenElf(r io.ReadSeeker, diag models.Diag) (*ElfFile, error) {
	if !MatchElf(r) {
		diag.Printf("invalid file magic sequence")
		return nil, errors.Wrap(models.ErrMalformedMagic, "elf")
	}
	f := &ElfFile{r: r, diag: diag, strtabs: make(map[uint32][]byte)}
	h := &f.Header
	// the identification bytes are order independent
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek failed")
	}
	if _, err := io.ReadFull(r, h.Ident[:]); err != nil {
		return nil, truncated(err, "elf ident")
	}
	class := h.Class()
	if class != elf.ELFCLASS32 && class != elf.ELFCLASS64 {
		diag.Printf("invalid elf class")
		return nil, errors.Wrapf(models.ErrInvalidField, "elf class %d", class)
	}
	switch h.Data() {
	case elf.ELFDATA2LSB:
		f.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		f.order = binary.BigEndian
	default:
		diag.Printf("invalid elf data type")
		return nil, errors.Wrapf(models.ErrInvalidField, "elf data %d", h.Data())
	}

	var id elfIdent
	if err := unpackAt(r, &id, 0, f.order, "elf header"); err != nil {
		return nil, err
	}
	h.Type, h.Machine, h.Version = id.Type, id.Machine, id.Version
	if class == elf.ELFCLASS32 {
		var mid elfMid32
		if err := unpack(r, &mid, f.order, "elf header"); err != nil {
			return nil, err
		}
		h.elfMid64 = elfMid64(mid)
	} else if err := unpack(r, &h.elfMid64, f.order, "elf header"); err != nil {
		return nil, err
	}
	if err := unpack(r, &h.elfTail, f.order, "elf header"); err != nil {
		return nil, err
	}
	if uint32(h.Ident[elf.EI_VERSION]) != h.Version {
		diag.Printf("mismatched elf version")
		return nil, errors.Wrapf(models.ErrInvalidField, "elf version %d != %d", h.Ident[elf.EI_VERSION], h.Version)
	}
	if h.Version != uint32(elf.EV_CURRENT) {
		diag.Printf("invalid elf version")
		return nil, errors.Wrapf(models.ErrInvalidField, "elf version %d", h.Version)
	}
	if err := f.readSections(); err != nil {
		return nil, err
	}
	if h.Shstrndx != uint16(elf.SHN_UNDEF) && len(f.Shdrs) > 0 {
		idx := uint32(h.Shstrndx)
		if h.Shstrndx == uint16(elf.SHN_XINDEX) {
			idx = f.Shdrs[0].Link
		}
		tab, err := f.StrTable(idx)
		if err != nil {
			diag.Printf("failed to decode section name table")
			return nil, err
		}
		f.shstrtab = tab
	}
	return f, nil
}

// readSections also handles extended numbering, where a zero e_shnum
// defers the section count to the first header's sh_size.
func (f *ElfFile) readSections() error {
	h := &f.Header
	if h.Shnum == 0 && h.Shoff == 0 {
		return nil
	}
	recSize := uint16(elfSection64Size)
	if h.Class() == elf.ELFCLASS32 {
		recSize = elfSection32Size
	}
	if h.Shentsize < recSize {
		f.diag.Printf("section header entry size %d too small", h.Shentsize)
		return errors.Wrapf(models.ErrInvalidField, "shentsize %d", h.Shentsize)
	}
	if h.Shoff > 1<<62 {
		return errors.Wrapf(models.ErrTruncatedRead, "section headers at %#x", h.Shoff)
	}
	read := func(i uint64, s *ElfSection) error {
		off := int64(h.Shoff) + int64(i)*int64(h.Shentsize)
		var err error
		if recSize == elfSection32Size {
			var s32 elfSection32
			err = unpackAt(f.r, &s32, off, f.order, "section header")
			*s = ElfSection(s32)
		} else {
			err = unpackAt(f.r, s, off, f.order, "section header")
		}
		if err != nil {
			f.diag.Printf("failed to decode section header %d", i)
		}
		return err
	}
	count := uint64(h.Shnum)
	if count == 0 {
		var first ElfSection
		if err := read(0, &first); err != nil {
			return err
		}
		if count = first.Size; count == 0 {
			return nil
		}
	}
	if err := checkCount(f.r, int64(h.Shoff), count, uint64(h.Shentsize), "section headers"); err != nil {
		f.diag.Printf("failed to decode section header array")
		return err
	}
	sections := make([]ElfSection, count)
	for i := range sections {
		if err := read(uint64(i), &sections[i]); err != nil {
			return err
		}
	}
	f.Shdrs = sections
	return nil
}

// StrTable loads the string table held in section idx, once.
func (f *ElfFile) StrTable(idx uint32) ([]byte, error) {
	if tab, ok := f.strtabs[idx]; ok {
		return tab, nil
	}
	if int(idx) >= len(f.Shdrs) {
		return nil, errors.Wrapf(models.ErrUnresolvedReference, "string table section %d of %d", idx, len(f.Shdrs))
	}
	s := &f.Shdrs[idx]
	if s.Type != uint32(elf.SHT_STRTAB) {
		f.diag.Printf("section %d is not a string table", idx)
		return nil, errors.Wrapf(models.ErrInvalidField, "section %d type %d", idx, s.Type)
	}
	if s.Offset > 1<<62 {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "string table at %#x", s.Offset)
	}
	tab, err := readFull(f.r, int64(s.Offset), s.Size, "string table")
	if err != nil {
		return nil, err
	}
	f.strtabs[idx] = tab
	return tab, nil
}

func (f *ElfFile) SectionName(i int) (string, error) {
	if i < 0 || i >= len(f.Shdrs) {
		return "", errors.Errorf("section index %d out of range", i)
	}
	name, ok := cstr(f.shstrtab, uint64(f.Shdrs[i].Name))
	if !ok {
		if f.Shdrs[i].Name == 0 {
			return "", nil
		}
		return "", errors.Wrapf(models.ErrUnresolvedReference, "section %d name %#x", i, f.Shdrs[i].Name)
	}
	return string(name), nil
}

func (f *ElfFile) FindSection(name string) (int, bool) {
	for i := range f.Shdrs {
		if n, err := f.SectionName(i); err == nil && n == name {
			return i, true
		}
	}
	return -1, false
}

// SymTable decodes every record of symbol section sec, including the
// reserved entry at index 0.
func (f *ElfFile) SymTable(sec int) ([]ElfSym, error) {
	if sec < 0 || sec >= len(f.Shdrs) {
		return nil, errors.Errorf("section index %d out of range", sec)
	}
	s := &f.Shdrs[sec]
	if s.Type != uint32(elf.SHT_SYMTAB) && s.Type != uint32(elf.SHT_DYNSYM) {
		return nil, errors.Wrapf(models.ErrInvalidField, "section %d is not a symbol table", sec)
	}
	is32 := f.Header.Class() == elf.ELFCLASS32
	recSize := uint64(elfSym64Size)
	if is32 {
		recSize = elfSym32Size
	}
	stride := s.Entsize
	if stride < recSize {
		stride = recSize
	}
	count := s.Size / stride
	if s.Offset > 1<<62 {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "symbol table at %#x", s.Offset)
	}
	if err := checkCount(f.r, int64(s.Offset), count, stride, "symbol table"); err != nil {
		f.diag.Printf("failed to decode symbol table")
		return nil, err
	}
	syms := make([]ElfSym, count)
	for i := range syms {
		off := int64(s.Offset) + int64(uint64(i)*stride)
		if is32 {
			var s32 elfSym32
			if err := unpackAt(f.r, &s32, off, f.order, "symbol"); err != nil {
				return nil, err
			}
			syms[i] = ElfSym{
				Name:  s32.Name,
				Info:  s32.Info,
				Other: s32.Other,
				Shndx: s32.Shndx,
				Value: uint64(s32.Value),
				Size:  uint64(s32.Size),
			}
		} else if err := unpackAt(f.r, &syms[i], off, f.order, "symbol"); err != nil {
			return nil, err
		}
	}
	return syms, nil
}

func (f *ElfFile) Format() models.Format       { return models.FormatElf }
func (f *ElfFile) ByteOrder() binary.ByteOrder { return f.order }

func (f *ElfFile) Arch() string {
	if name, ok := machineMap[elf.Machine(f.Header.Machine)]; ok {
		return name
	}
	return elf.Machine(f.Header.Machine).String()
}

func (f *ElfFile) Bits() int {
	if f.Header.Class() == elf.ELFCLASS32 {
		return 32
	}
	return 64
}

func (f *ElfFile) Sections() []models.Section {
	ret := make([]models.Section, len(f.Shdrs))
	for i, s := range f.Shdrs {
		name, _ := f.SectionName(i)
		ret[i] = models.Section{
			Name:   name,
			Addr:   s.Addr,
			Offset: s.Offset,
			Size:   s.Size,
			Kind:   models.KindByName(name),
		}
	}
	return ret
}

func (f *ElfFile) SectionData(i int) ([]byte, error) {
	if i < 0 || i >= len(f.Shdrs) {
		return nil, errors.Errorf("section index %d out of range", i)
	}
	s := &f.Shdrs[i]
	if s.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}
	if s.Offset > 1<<62 {
		return nil, errors.Wrapf(models.ErrTruncatedRead, "section data at %#x", s.Offset)
	}
	return readFull(f.r, int64(s.Offset), s.Size, "section data")
}

// SymbolSection returns the index of .symtab, or .dynsym when stripped.
func (f *ElfFile) SymbolSection() (int, bool) {
	if i, ok := f.FindSection(".symtab"); ok {
		return i, true
	}
	return f.FindSection(".dynsym")
}

// Symbols returns the definitions and references of the main symbol table,
// without the reserved entry and without section and file symbols.
func (f *ElfFile) Symbols() ([]models.Symbol, error) {
	sec, ok := f.SymbolSection()
	if !ok {
		return nil, nil
	}
	strtab, err := f.StrTable(f.Shdrs[sec].Link)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode string table used by section")
	}
	raw, err := f.SymTable(sec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode symbol table")
	}
	if len(raw) > 0 {
		raw = raw[1:]
	}
	info := f.Shdrs[sec].Info
	ret := make([]models.Symbol, 0, len(raw))
	for i := range raw {
		s := &raw[i]
		if t := s.Type(); t == elf.STT_SECTION || t == elf.STT_FILE {
			continue
		}
		name, ok := cstr(strtab, uint64(s.Name))
		if !ok {
			return nil, errors.Wrapf(models.ErrUnresolvedReference, "symbol %d name %#x", i+1, s.Name)
		}
		sym := models.Symbol{
			Name:  string(name),
			Value: s.Value,
			Size:  s.Size,
		}
		switch s.Bind() {
		case elf.STB_GLOBAL, elf.STB_WEAK:
			sym.Global = true
		case elf.STB_LOCAL:
		default:
			sym.Global = uint32(i+1) >= info
		}
		sym.Section, sym.Kind = f.classify(s.Shndx)
		ret = append(ret, sym)
	}
	return ret, nil
}

func (f *ElfFile) classify(shndx uint16) (int, models.SymKind) {
	switch elf.SectionIndex(shndx) {
	case elf.SHN_UNDEF:
		return models.SectionUndef, models.SymUndef
	case elf.SHN_ABS:
		return models.SectionAbs, models.SymAbs
	case elf.SHN_COMMON:
		return models.SectionCommon, models.SymCommon
	}
	idx := int(shndx)
	if idx >= len(f.Shdrs) {
		return idx, models.SymUnknown
	}
	name, _ := f.SectionName(idx)
	switch models.KindByName(name) {
	case models.SectionText:
		return idx, models.SymText
	case models.SectionData:
		return idx, models.SymData
	case models.SectionROData:
		return idx, models.SymROData
	case models.SectionBSS:
		return idx, models.SymBSS
	}
	s := &f.Shdrs[idx]
	flags := elf.SectionFlag(s.Flags)
	switch {
	case flags&elf.SHF_ALLOC == 0:
		return idx, models.SymUnknown
	case flags&elf.SHF_EXECINSTR != 0:
		return idx, models.SymText
	case s.Type == uint32(elf.SHT_NOBITS):
		return idx, models.SymBSS
	case flags&elf.SHF_WRITE != 0:
		return idx, models.SymData
	}
	return idx, models.SymROData
}

func (f *ElfFile) Close() error {
	f.Shdrs = nil
	f.shstrtab = nil
	f.strtabs = nil
	return nil
}
