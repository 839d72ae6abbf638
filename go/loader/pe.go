package loader

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"io"
	"strconv"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

// first two bytes of object files that carry no DOS stub
var coffMagics = [][]byte{
	{0x4C, 0x01},
	{0x64, 0x86},
	{0x00, 0x02},
}

var peSignature = []byte("PE\x00\x00")

var peMachineMap = map[uint16]string{
	pe.IMAGE_FILE_MACHINE_I386:  "x86",
	pe.IMAGE_FILE_MACHINE_AMD64: "x86_64",
	pe.IMAGE_FILE_MACHINE_ARM:   "arm",
	pe.IMAGE_FILE_MACHINE_ARMNT: "arm",
	pe.IMAGE_FILE_MACHINE_ARM64: "arm64",
}

// COFF symbol storage classes used by nm.
const (
	coffClassExternal     = 2
	coffClassStatic       = 3
	coffClassFile         = 103
	coffClassSection      = 104
	coffClassWeakExternal = 105
	coffClassCLRToken     = 107
)

const (
	coffSectionAbs   = 0xFFFF
	coffSectionDebug = 0xFFFE
)

type CoffHeader struct {
	Machine         uint16
	NumSections     uint16
	TimeDateStamp   uint32
	SymtabOffset    uint32
	NumSyms         uint32
	OptHeaderSize   uint16
	Characteristics uint16
}

const coffSymSize = 18

type peSection struct {
	Name            [8]byte
	VirtualSize     uint32
	VirtualAddress  uint32
	DataSize        uint32
	DataOffset      uint32
	RelocsOffset    uint32
	LinenumsOffset  uint32
	NumRelocs       uint32 `struc:"uint16"`
	NumLinenums     uint32 `struc:"uint16"`
	Characteristics uint32
}

type coffSection struct {
	Name            [8]byte
	VirtualSize     uint32
	VirtualAddress  uint32
	DataSize        uint32
	DataOffset      uint32
	RelocsOffset    uint32
	LinenumsOffset  uint32
	NumRelocs       uint32
	NumLinenums     uint32
	Characteristics uint32
	Pad             [4]byte
}

// PeSection is the common shape of both on-disk section records.
type PeSection struct {
	RawName         [8]byte
	Name            string
	VirtualSize     uint32
	VirtualAddress  uint32
	DataSize        uint32
	DataOffset      uint32
	RelocsOffset    uint32
	LinenumsOffset  uint32
	NumRelocs       uint32
	NumLinenums     uint32
	Characteristics uint32
}

type CoffSym struct {
	Name         [8]byte
	Value        uint32
	SectionID    uint16
	Type         uint16
	StorageClass uint8
	NumAux       uint8
}

type PeFile struct {
	r    io.ReadSeeker
	diag models.Diag

	IsCoff bool
	Header CoffHeader
	Sects  []PeSection

	strtab []byte
	cursor uint32
}

func isCoffMagic(magic []byte) bool {
	for _, m := range coffMagics {
		if bytes.HasPrefix(magic, m) {
			return true
		}
	}
	return false
}

// peHeaderOffset finds the COFF header, reporting whether the file is raw COFF.
func peHeaderOffset(r io.ReadSeeker) (int64, bool, bool) {
	if isCoffMagic(getMagic(r, 2)) {
		return 0, true, true
	}
	word, err := readFull(r, 0x3C, 4, "e_lfanew")
	if err != nil {
		return 0, false, false
	}
	lfanew := binary.LittleEndian.Uint32(word)
	sig := make([]byte, 4)
	if _, err := r.Seek(int64(lfanew), io.SeekStart); err != nil {
		return 0, false, false
	}
	if _, err := io.ReadFull(r, sig); err != nil || !bytes.Equal(sig, peSignature) {
		return 0, false, false
	}
	return int64(lfanew) + 4, false, true
}

func MatchPe(r io.ReadSeeker) bool {
	_, _, ok := peHeaderOffset(r)
	return ok
}

func OpenPe(r io.ReadSeeker, diag models.Diag) (*PeFile, error) {
	off, isCoff, ok := peHeaderOffset(r)
	if !ok {
		return nil, errors.Wrap(models.ErrMalformedMagic, "pe")
	}
	f := &PeFile{r: r, diag: diag, IsCoff: isCoff}
	if err := unpackAt(r, &f.Header, off, binary.LittleEndian, "coff header"); err != nil {
		return nil, err
	}
	off += 20 + int64(f.Header.OptHeaderSize)
	if isCoff {
		off += 2
	}
	recSize := uint64(40)
	if isCoff {
		recSize = 48
	}
	if err := checkCount(r, off, uint64(f.Header.NumSections), recSize, "section table"); err != nil {
		diag.Printf("section table of %d entries does not fit the file", f.Header.NumSections)
		return nil, err
	}
	if _, err := r.Seek(off, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek failed")
	}
	f.Sects = make([]PeSection, f.Header.NumSections)
	for i := range f.Sects {
		if isCoff {
			var s coffSection
			if err := unpack(r, &s, binary.LittleEndian, "section header"); err != nil {
				return nil, err
			}
			f.Sects[i] = PeSection{
				RawName:         s.Name,
				VirtualSize:     s.VirtualSize,
				VirtualAddress:  s.VirtualAddress,
				DataSize:        s.DataSize,
				DataOffset:      s.DataOffset,
				RelocsOffset:    s.RelocsOffset,
				LinenumsOffset:  s.LinenumsOffset,
				NumRelocs:       s.NumRelocs,
				NumLinenums:     s.NumLinenums,
				Characteristics: s.Characteristics,
			}
		} else {
			var s peSection
			if err := unpack(r, &s, binary.LittleEndian, "section header"); err != nil {
				return nil, err
			}
			f.Sects[i] = PeSection{
				RawName:         s.Name,
				VirtualSize:     s.VirtualSize,
				VirtualAddress:  s.VirtualAddress,
				DataSize:        s.DataSize,
				DataOffset:      s.DataOffset,
				RelocsOffset:    s.RelocsOffset,
				LinenumsOffset:  s.LinenumsOffset,
				NumRelocs:       s.NumRelocs,
				NumLinenums:     s.NumLinenums,
				Characteristics: s.Characteristics,
			}
		}
	}
	if err := f.readStrTable(); err != nil {
		return nil, err
	}
	for i := range f.Sects {
		name, err := f.sectionName(f.Sects[i].RawName)
		if err != nil {
			diag.Printf("section %d: %v", i, err)
			return nil, err
		}
		f.Sects[i].Name = name
	}
	if err := f.RewindSymbols(); err != nil {
		return nil, err
	}
	return f, nil
}

// readStrTable loads the table that follows the symbols. Its length word
// counts itself and is not kept.
func (f *PeFile) readStrTable() error {
	if f.Header.SymtabOffset == 0 {
		return nil
	}
	off := int64(f.Header.SymtabOffset) + int64(f.Header.NumSyms)*coffSymSize
	size, err := streamSize(f.r)
	if err != nil {
		return err
	}
	if off == size && f.Header.NumSyms == 0 {
		return nil
	}
	word, err := readFull(f.r, off, 4, "string table length")
	if err != nil {
		f.diag.Printf("missing string table")
		return err
	}
	length := binary.LittleEndian.Uint32(word)
	if length <= 4 {
		f.strtab = []byte{}
		return nil
	}
	tab, err := readFull(f.r, off+4, uint64(length-4), "string table")
	if err != nil {
		return err
	}
	f.strtab = tab
	return nil
}

// Str resolves an offset as stored in the file, counting the length word.
func (f *PeFile) Str(off uint32) (string, error) {
	if off < 4 {
		return "", errors.Wrapf(models.ErrUnresolvedReference, "string offset %d", off)
	}
	s, ok := cstr(f.strtab, uint64(off-4))
	if !ok {
		return "", errors.Wrapf(models.ErrUnresolvedReference, "string offset %#x outside %d byte table", off, len(f.strtab)+4)
	}
	return string(s), nil
}

func inlineName(raw [8]byte) string {
	name := raw[:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(bytes.TrimRight(name, " "))
}

func (f *PeFile) sectionName(raw [8]byte) (string, error) {
	name := inlineName(raw)
	if len(name) > 1 && name[0] == '/' {
		if off, err := strconv.ParseUint(name[1:], 10, 32); err == nil {
			return f.Str(uint32(off))
		}
	}
	return name, nil
}

func (f *PeFile) SymbolName(s *CoffSym) (string, error) {
	if s.Name[0] == 0 {
		return f.Str(binary.LittleEndian.Uint32(s.Name[4:8]))
	}
	return inlineName(s.Name), nil
}

func (f *PeFile) RewindSymbols() error {
	f.cursor = 0
	_, err := f.r.Seek(int64(f.Header.SymtabOffset), io.SeekStart)
	return errors.Wrap(err, "seek failed")
}

// NextSymbol decodes the record under the cursor. Auxiliary records are
// not interpreted; the caller passes NumAux to SkipAux.
func (f *PeFile) NextSymbol() (CoffSym, error) {
	var s CoffSym
	if f.cursor >= f.Header.NumSyms {
		return s, io.EOF
	}
	off := int64(f.Header.SymtabOffset) + int64(f.cursor)*coffSymSize
	if err := unpackAt(f.r, &s, off, binary.LittleEndian, "coff symbol"); err != nil {
		return s, err
	}
	f.cursor++
	return s, nil
}

func (f *PeFile) SkipAux(n uint8) {
	f.cursor += uint32(n)
	if f.cursor > f.Header.NumSyms {
		f.cursor = f.Header.NumSyms
	}
}

func (f *PeFile) Format() models.Format       { return models.FormatPe }
func (f *PeFile) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

func (f *PeFile) Arch() string {
	if name, ok := peMachineMap[f.Header.Machine]; ok {
		return name
	}
	return "unknown"
}

func (f *PeFile) Bits() int {
	if f.Header.Machine == pe.IMAGE_FILE_MACHINE_AMD64 || f.Header.Machine == pe.IMAGE_FILE_MACHINE_ARM64 {
		return 64
	}
	return 32
}

func (s *PeSection) size() uint64 {
	if s.DataSize != 0 {
		return uint64(s.DataSize)
	}
	return uint64(s.VirtualSize)
}

func (f *PeFile) Sections() []models.Section {
	ret := make([]models.Section, len(f.Sects))
	for i := range f.Sects {
		s := &f.Sects[i]
		ret[i] = models.Section{
			Name:   s.Name,
			Addr:   uint64(s.VirtualAddress),
			Offset: uint64(s.DataOffset),
			Size:   s.size(),
			Kind:   models.KindByName(s.Name),
		}
	}
	return ret
}

func (f *PeFile) FindSection(name string) (int, bool) {
	for i := range f.Sects {
		if f.Sects[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

func (f *PeFile) SectionData(i int) ([]byte, error) {
	if i < 0 || i >= len(f.Sects) {
		return nil, errors.Errorf("section index %d out of range", i)
	}
	s := &f.Sects[i]
	if s.Characteristics&pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0 || s.DataOffset == 0 {
		return nil, nil
	}
	return readFull(f.r, int64(s.DataOffset), uint64(s.DataSize), "section "+s.Name)
}

// Symbols walks the symbol table the way nm lists it: debug, file and
// section symbols are dropped and auxiliary records are skipped.
func (f *PeFile) Symbols() ([]models.Symbol, error) {
	if err := f.RewindSymbols(); err != nil {
		return nil, err
	}
	var ret []models.Symbol
	for {
		s, err := f.NextSymbol()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		f.SkipAux(s.NumAux)
		if s.SectionID == coffSectionDebug {
			continue
		}
		switch s.StorageClass {
		case coffClassSection, coffClassCLRToken, coffClassFile:
			continue
		case coffClassStatic:
			if s.Name[0] == '.' {
				continue
			}
		}
		name, err := f.SymbolName(&s)
		if err != nil {
			return nil, err
		}
		sym := models.Symbol{
			Name:   name,
			Value:  uint64(s.Value),
			Global: s.StorageClass == coffClassExternal || s.StorageClass == coffClassWeakExternal,
		}
		sym.Section, sym.Kind = f.classify(&s)
		ret = append(ret, sym)
	}
	return ret, nil
}

func (f *PeFile) classify(s *CoffSym) (int, models.SymKind) {
	switch s.SectionID {
	case coffSectionAbs:
		return models.SectionAbs, models.SymAbs
	case 0:
		if s.StorageClass == coffClassExternal && s.Value != 0 {
			return models.SectionCommon, models.SymCommon
		}
		return models.SectionUndef, models.SymUndef
	}
	// section numbers are 1-based
	idx := int(s.SectionID) - 1
	if idx >= len(f.Sects) {
		return idx, models.SymUnknown
	}
	sec := &f.Sects[idx]
	switch models.KindByName(sec.Name) {
	case models.SectionText:
		return idx, models.SymText
	case models.SectionData:
		return idx, models.SymData
	case models.SectionROData:
		return idx, models.SymROData
	case models.SectionBSS:
		return idx, models.SymBSS
	}
	c := sec.Characteristics
	switch {
	case c&pe.IMAGE_SCN_CNT_CODE != 0:
		return idx, models.SymText
	case c&pe.IMAGE_SCN_CNT_UNINITIALIZED_DATA != 0:
		return idx, models.SymBSS
	case c&pe.IMAGE_SCN_MEM_WRITE != 0:
		return idx, models.SymData
	case c&pe.IMAGE_SCN_CNT_INITIALIZED_DATA != 0:
		return idx, models.SymROData
	}
	return idx, models.SymUnknown
}

func (f *PeFile) Close() error {
	f.Sects = nil
	f.strtab = nil
	return nil
}
