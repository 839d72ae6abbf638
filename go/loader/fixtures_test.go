package loader

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

type countingReader struct {
	*bytes.Reader
	reads int
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.Reader.Read(p)
}

func pack(buf *bytes.Buffer, order binary.ByteOrder, v ...interface{}) {
	for _, x := range v {
		if err := struc.PackWithOrder(buf, x, order); err != nil {
			panic(err)
		}
	}
}

type testChunk struct {
	id   string
	data []byte
}

func buildChunkFile(order binary.ByteOrder, chunks []testChunk) []byte {
	var buf bytes.Buffer
	n := uint32(len(chunks))
	pack(&buf, order, &chunkFileHeader{Magic: ChunkFileMagic, MaxChunks: n, NumChunks: n})
	off := uint32(12 + chunkEntrySize*len(chunks))
	for _, c := range chunks {
		e := ChunkEntry{Offset: off, Size: uint32(len(c.data))}
		copy(e.ID[:], c.id)
		pack(&buf, order, &e)
		off += uint32(len(c.data))
	}
	for _, c := range chunks {
		buf.Write(c.data)
	}
	return buf.Bytes()
}

// string table offsets in aofStrtab
const (
	strCode   = 4
	strData   = 9
	strMain   = 14
	strPrintf = 19
)

var aofStrtab = []byte("\x1a\x00\x00\x00code\x00data\x00main\x00printf\x00")

const aofIdent = "unit test compiler"

type aofOpts struct {
	noHead, noArea, noSymtab bool
	badSymName, badRefArea   bool
}

func buildAof(order binary.ByteOrder, o aofOpts) []byte {
	var head, area, symt bytes.Buffer
	pack(&head, order, &AofHeader{
		FileType:    0xC5E2D080,
		Version:     310,
		NumAreas:    2,
		NumSyms:     2,
		EntryArea:   1,
		EntryOffset: 4,
	})
	pack(&head, order,
		&AreaHeader{NameOff: strCode, Attributes: uint32(AreaCode|AreaReadOnly) | 2, Size: 8, NumRelocs: 1},
		&AreaHeader{NameOff: strData, Attributes: 2, Size: 4, BaseAddr: 0x100},
	)

	area.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0})
	pack(&area, order, &Reloc{Offset: 4, Flags: RelocWord<<24 | 1<<27 | 1})
	area.Write([]byte{1, 2, 3, 4})

	mainName := uint32(strMain)
	if o.badSymName {
		mainName = 1000
	}
	refArea := uint32(strCode)
	if o.badRefArea {
		refArea = 1000
	}
	pack(&symt, order,
		&AofSym{NameOff: mainName, Attribs: uint32(SymDefine | SymGlobal), Value: 0, RefArea: refArea},
		&AofSym{NameOff: strPrintf},
	)

	var chunks []testChunk
	if !o.noHead {
		chunks = append(chunks, testChunk{ChunkHead, head.Bytes()})
	}
	if !o.noArea {
		chunks = append(chunks, testChunk{ChunkArea, area.Bytes()})
	}
	chunks = append(chunks, testChunk{ChunkIdent, []byte(aofIdent + "\x00")})
	if !o.noSymtab {
		chunks = append(chunks, testChunk{ChunkSymtab, symt.Bytes()})
	}
	chunks = append(chunks, testChunk{ChunkStrtab, aofStrtab})
	return buildChunkFile(order, chunks)
}

// ELF fixture: null, .text, .symtab, .strtab, .shstrtab
var (
	elfShstrtab = []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	elfStrtab   = []byte("\x00main\x00big\x00ext\x00")
	elfText     = []byte{0x90, 0x90, 0xc3, 0x00}
)

func buildElf(class byte, order binary.ByteOrder) []byte {
	is32 := class == 1
	data := byte(1)
	if order == binary.ByteOrder(binary.BigEndian) {
		data = 2
	}
	ehsize, shentsize, symsize := 64, elfSection64Size, elfSym64Size
	machine := uint16(62)
	if is32 {
		ehsize, shentsize, symsize = 52, elfSection32Size, elfSym32Size
		machine = 3
	}
	syms := []ElfSym{
		{},
		{Name: 6, Info: 0<<4 | 2, Shndx: 1, Value: 0, Size: 0xFFFFFFFF},
		{Name: 1, Info: 1<<4 | 2, Shndx: 1, Value: 2, Size: 1},
		{Name: 10, Info: 1<<4 | 0, Shndx: 0},
	}
	textOff := uint64(ehsize)
	symOff := textOff + uint64(len(elfText))
	strOff := symOff + uint64(len(syms)*symsize)
	shstrOff := strOff + uint64(len(elfStrtab))
	shOff := shstrOff + uint64(len(elfShstrtab))

	sections := []ElfSection{
		{},
		{Name: 1, Type: 1, Flags: 6, Offset: textOff, Size: uint64(len(elfText)), Addralign: 1},
		{Name: 7, Type: 2, Offset: symOff, Size: uint64(len(syms) * symsize), Link: 3, Info: 2, Entsize: uint64(symsize)},
		{Name: 15, Type: 3, Offset: strOff, Size: uint64(len(elfStrtab))},
		{Name: 23, Type: 3, Offset: shstrOff, Size: uint64(len(elfShstrtab))},
	}

	var buf bytes.Buffer
	id := elfIdent{Type: 1, Machine: machine, Version: 1}
	copy(id.Ident[:], []byte{0x7f, 'E', 'L', 'F', class, data, 1})
	pack(&buf, order, &id)
	if is32 {
		pack(&buf, order, &elfMid32{Shoff: shOff})
	} else {
		pack(&buf, order, &elfMid64{Shoff: shOff})
	}
	pack(&buf, order, &elfTail{
		Ehsize:    uint16(ehsize),
		Shentsize: uint16(shentsize),
		Shnum:     uint16(len(sections)),
		Shstrndx:  4,
	})
	buf.Write(elfText)
	for i := range syms {
		s := &syms[i]
		if is32 {
			pack(&buf, order, &elfSym32{
				Name: s.Name, Value: uint32(s.Value), Size: uint32(s.Size),
				Info: s.Info, Other: s.Other, Shndx: s.Shndx,
			})
		} else {
			pack(&buf, order, s)
		}
	}
	buf.Write(elfStrtab)
	buf.Write(elfShstrtab)
	for i := range sections {
		if is32 {
			s := elfSection32(sections[i])
			pack(&buf, order, &s)
		} else {
			pack(&buf, order, &sections[i])
		}
	}
	return buf.Bytes()
}

// COFF fixture strings, offsets count the length word
var coffStrtab = []byte("averylongsectionname\x00a_really_long_symbol_name\x00")

const (
	coffStrSection = 4
	coffStrSymbol  = 4 + 21
)

func coffName(s string) (n [8]byte) {
	copy(n[:], s)
	return
}

func coffLongName(off uint32) (n [8]byte) {
	binary.LittleEndian.PutUint32(n[4:], off)
	return
}

func buildCoff() []byte {
	le := binary.LittleEndian
	syms := []CoffSym{
		{Name: coffName(".file"), SectionID: 0xFFFE, StorageClass: coffClassFile, NumAux: 1},
		{Name: coffName("main.c")},
		{Name: coffName("_main"), Value: 0x10, SectionID: 1, StorageClass: coffClassExternal},
		{Name: coffLongName(coffStrSymbol), Value: 4, SectionID: 2, StorageClass: coffClassStatic},
		{Name: coffName("ext"), StorageClass: coffClassExternal},
		{Name: coffName(".text"), SectionID: 1, StorageClass: coffClassStatic, NumAux: 1},
		{},
		{Name: coffName("_abs"), Value: 7, SectionID: 0xFFFF, StorageClass: coffClassExternal},
	}
	text := make([]byte, 16)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	hdrSize := 20 + 2 + 2*48
	textOff := uint32(hdrSize)
	dataOff := textOff + uint32(len(text))
	symOff := dataOff + uint32(len(data))

	var buf bytes.Buffer
	pack(&buf, le, &CoffHeader{Machine: 0x14c, NumSections: 2, SymtabOffset: symOff, NumSyms: uint32(len(syms))})
	buf.Write([]byte{0, 0})
	pack(&buf, le,
		&coffSection{Name: coffName(".text"), DataSize: uint32(len(text)), DataOffset: textOff, Characteristics: 0x60000020},
		&coffSection{Name: coffName("/4"), DataSize: uint32(len(data)), DataOffset: dataOff, Characteristics: 0xC0000040},
	)
	buf.Write(text)
	buf.Write(data)
	for i := range syms {
		pack(&buf, le, &syms[i])
	}
	var length [4]byte
	le.PutUint32(length[:], uint32(4+len(coffStrtab)))
	buf.Write(length[:])
	buf.Write(coffStrtab)
	return buf.Bytes()
}

func buildPe() []byte {
	le := binary.LittleEndian
	var buf bytes.Buffer
	stub := make([]byte, 0x40)
	copy(stub, "MZ")
	le.PutUint32(stub[0x3C:], 0x40)
	buf.Write(stub)
	buf.Write(peSignature)
	pack(&buf, le, &CoffHeader{Machine: 0x8664, NumSections: 1, OptHeaderSize: 16})
	buf.Write(make([]byte, 16))
	textOff := uint32(buf.Len() + 40)
	pack(&buf, le, &peSection{
		Name: coffName(".text"), VirtualSize: 3, VirtualAddress: 0x1000,
		DataSize: 4, DataOffset: textOff, NumRelocs: 0, Characteristics: 0x60000020,
	})
	buf.Write([]byte{0x90, 0x90, 0xc3, 0xcc})
	return buf.Bytes()
}
