package loader

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

func openAof(t *testing.T, p []byte) *AofFile {
	f, err := OpenAof(bytes.NewReader(p), nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestAofEndianInvariance(t *testing.T) {
	le := openAof(t, buildAof(binary.LittleEndian, aofOpts{}))
	be := openAof(t, buildAof(binary.BigEndian, aofOpts{}))
	if le.Chunks.ByteOrder() == be.Chunks.ByteOrder() {
		t.Fatal("both files decoded with the same byte order")
	}
	if le.Header != be.Header {
		t.Fatalf("headers differ: %+v vs %+v", le.Header, be.Header)
	}
	if len(le.Areas) != 2 || len(be.Areas) != 2 {
		t.Fatal("wrong area count")
	}
	for i := range le.Areas {
		if le.Areas[i].AreaHeader != be.Areas[i].AreaHeader || le.Areas[i].Name != be.Areas[i].Name {
			t.Fatalf("area %d differs", i)
		}
	}
	for i := range le.Syms {
		a, b := le.Syms[i], be.Syms[i]
		if a.AofSym != b.AofSym || !bytes.Equal(a.Name, b.Name) || a.Area != b.Area {
			t.Fatalf("symbol %d differs", i)
		}
	}
	lr, err := le.Relocations(0)
	if err != nil {
		t.Fatal(err)
	}
	br, err := be.Relocations(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(lr, br) {
		t.Fatalf("relocations differ: %v vs %v", lr, br)
	}
}

func TestAofDecode(t *testing.T) {
	f := openAof(t, buildAof(binary.LittleEndian, aofOpts{}))
	if f.Header.NumAreas != 2 || f.Header.NumSyms != 2 {
		t.Fatalf("bad header %+v", f.Header)
	}
	code := &f.Areas[0]
	if code.Name != "code" || code.Align() != 2 || code.Attr().String() != "CODE,RO" {
		t.Fatalf("bad code area: %q align=%d attr=%s", code.Name, code.Align(), code.Attr())
	}
	if f.Areas[1].Name != "data" || f.Areas[1].BaseAddr != 0x100 {
		t.Fatal("bad data area")
	}
	if off, ok := f.AreaOffset(1); !ok || off != int64(f.Chunks.area.Offset)+8+8 {
		t.Fatalf("area 1 offset %d", off)
	}
	if area, off, ok := f.Entry(); !ok || area != 0 || off != 4 {
		t.Fatalf("entry = %d+%d %v", area, off, ok)
	}
	ident, err := f.Chunks.Ident()
	if err != nil || string(bytes.TrimRight(ident, "\x00")) != aofIdent {
		t.Fatalf("ident = %q %v", ident, err)
	}
	data, err := f.AreaData(1)
	if err != nil || !bytes.Equal(data, []byte{1, 2, 3, 4}) {
		t.Fatalf("area data = %x %v", data, err)
	}

	sym, ok := f.Lookup("printf")
	if !ok || sym.Attr() != 0 || sym.Area != -1 {
		t.Fatal("printf lookup failed")
	}
	if _, ok := f.Lookup("print"); ok {
		t.Fatal("prefix lookup matched")
	}
	relocs, err := f.Relocations(0)
	if err != nil || len(relocs) != 1 {
		t.Fatalf("relocs = %v %v", relocs, err)
	}
	r := relocs[0]
	if r.Offset != 4 || r.FieldType() != RelocWord || !r.A() || r.SID() != 1 || r.R() || r.B() {
		t.Fatalf("bad reloc %+v", r)
	}
	if f.RelocTarget(r) != "printf" {
		t.Fatalf("reloc target %q", f.RelocTarget(r))
	}
	if relocs, err := f.Relocations(1); err != nil || len(relocs) != 0 {
		t.Fatal("area without relocations")
	}

	syms, err := f.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	if syms[0].Name != "main" || syms[0].Letter() != 'T' {
		t.Fatalf("main = %+v", syms[0])
	}
	if syms[1].Name != "printf" || syms[1].Letter() != 'U' {
		t.Fatalf("printf = %+v", syms[1])
	}
	secs := f.Sections()
	if secs[0].Kind != models.SectionText || secs[1].Kind != models.SectionData {
		t.Fatal("bad section kinds")
	}
}

func TestAofRelocationCache(t *testing.T) {
	cr := &countingReader{Reader: bytes.NewReader(buildAof(binary.LittleEndian, aofOpts{}))}
	f, err := OpenAof(cr, nil)
	if err != nil {
		t.Fatal(err)
	}
	first, err := f.Relocations(0)
	if err != nil {
		t.Fatal(err)
	}
	reads := cr.reads
	second, err := f.Relocations(0)
	if err != nil {
		t.Fatal(err)
	}
	if cr.reads != reads {
		t.Fatalf("second call read the file again (%d -> %d)", reads, cr.reads)
	}
	if len(first) == 0 || &first[0] != &second[0] {
		t.Fatal("second call did not return the cached slice")
	}
}

func TestAofMissingHead(t *testing.T) {
	var buf models.DiagBuffer
	f, err := OpenAof(bytes.NewReader(buildAof(binary.LittleEndian, aofOpts{noHead: true})), buf.Diag())
	if f != nil || !errors.Is(err, models.ErrMissingChunk) {
		t.Fatalf("got %v, %v", f, err)
	}
	if len(buf.Messages()) == 0 {
		t.Fatal("no diagnostic")
	}
}

func TestAofOptionalChunks(t *testing.T) {
	f := openAof(t, buildAof(binary.BigEndian, aofOpts{noSymtab: true}))
	if len(f.Syms) != 0 {
		t.Fatal("symbols without a symbol table")
	}
	if _, ok := f.Chunks.Find(ChunkSymtab); ok {
		t.Fatal("found absent chunk")
	}

	f = openAof(t, buildAof(binary.LittleEndian, aofOpts{noArea: true}))
	relocs, err := f.Relocations(0)
	if relocs != nil || err != nil {
		t.Fatalf("relocations without area chunk: %v %v", relocs, err)
	}
	if _, ok := f.AreaOffset(0); ok {
		t.Fatal("area offset without area chunk")
	}
}

func TestAofUnresolvedSymbol(t *testing.T) {
	_, err := OpenAof(bytes.NewReader(buildAof(binary.LittleEndian, aofOpts{badSymName: true})), nil)
	if !errors.Is(err, models.ErrUnresolvedReference) {
		t.Fatalf("got %v", err)
	}
}

func TestChunkFileErrors(t *testing.T) {
	if _, err := OpenChunkFile(bytes.NewReader([]byte("not a chunk file")), nil); !models.IsMalformedMagic(err) {
		t.Fatalf("bad magic: %v", err)
	}
	p := buildAof(binary.LittleEndian, aofOpts{})
	if _, err := OpenChunkFile(bytes.NewReader(p[:20]), nil); !errors.Is(err, models.ErrTruncatedRead) {
		t.Fatalf("truncated table: %v", err)
	}
	c, err := OpenChunkFile(bytes.NewReader(p), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Entries) != 5 || c.MaxChunks != 5 {
		t.Fatal("bad chunk table")
	}
	e, ok := c.Find(ChunkStrtab)
	if !ok {
		t.Fatal("no string table")
	}
	data, err := c.Read(e)
	if err != nil || !bytes.Equal(data, aofStrtab) {
		t.Fatalf("read chunk: %v", err)
	}
	s, err := c.Str(strMain)
	if err != nil || string(s) != "main" {
		t.Fatalf("Str = %q %v", s, err)
	}
	if _, err := c.Str(uint32(len(aofStrtab))); !errors.Is(err, models.ErrUnresolvedReference) {
		t.Fatal("out of range string resolved")
	}
	e.Size += 1000
	if _, err := c.Read(e); !errors.Is(err, models.ErrTruncatedRead) {
		t.Fatal("oversized chunk read succeeded")
	}
}

func TestRelocBits(t *testing.T) {
	r := Reloc{Offset: 2, Flags: RelocInstr<<24 | 1<<26 | 1<<28 | 2<<29 | 0xABCDEF}
	if r.FieldType() != RelocInstr || !r.R() || r.A() || !r.B() || r.II() != 2 || r.SID() != 0xABCDEF {
		t.Fatalf("bad decode of %#x", r.Flags)
	}
	if !r.IsThumbInstr() {
		t.Fatal("even instruction offset should be thumb")
	}
	r.Offset = 3
	if r.IsThumbInstr() {
		t.Fatal("odd instruction offset should not be thumb")
	}
}

func TestAttrStrings(t *testing.T) {
	if s := (AreaZeroInit | AreaThumb).String(); s != "ZI,THUMB" {
		t.Fatalf("area attr %q", s)
	}
	if s := (SymDefine | SymGlobal | SymWeak).String(); s != "DEF,PUB,WEAK" {
		t.Fatalf("sym attr %q", s)
	}
}

// zeroChunk clears the offset of the descriptor named id.
func zeroChunk(p []byte, order binary.ByteOrder, id string) []byte {
	p = append([]byte(nil), p...)
	n := int(order.Uint32(p[8:12]))
	for i := 0; i < n; i++ {
		e := p[12+i*chunkEntrySize:]
		if string(bytes.TrimRight(e[:8], "\x00")) == id {
			order.PutUint32(e[8:12], 0)
		}
	}
	return p
}

func TestChunkZeroOffset(t *testing.T) {
	p := buildAof(binary.LittleEndian, aofOpts{})
	for _, id := range []string{ChunkHead, ChunkArea, ChunkIdent, ChunkSymtab, ChunkStrtab} {
		c, err := OpenChunkFile(bytes.NewReader(zeroChunk(p, binary.LittleEndian, id)), nil)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		if _, ok := c.Find(id); ok {
			t.Fatalf("%s: zero offset chunk found", id)
		}
	}

	c, err := OpenChunkFile(bytes.NewReader(zeroChunk(p, binary.LittleEndian, ChunkIdent)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ident, err := c.Ident(); ident != nil || err != nil {
		t.Fatalf("Ident = %q %v", ident, err)
	}

	c, err = OpenChunkFile(bytes.NewReader(zeroChunk(p, binary.LittleEndian, ChunkStrtab)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if tab, err := c.StrTable(); tab != nil || err != nil {
		t.Fatalf("StrTable = %q %v", tab, err)
	}
	if _, err := c.Str(strMain); !errors.Is(err, models.ErrUnresolvedReference) {
		t.Fatalf("Str without table: %v", err)
	}

	_, err = OpenAof(bytes.NewReader(zeroChunk(p, binary.LittleEndian, ChunkHead)), nil)
	if !errors.Is(err, models.ErrMissingChunk) {
		t.Fatalf("zero head: %v", err)
	}

	f := openAof(t, zeroChunk(p, binary.LittleEndian, ChunkArea))
	if _, ok := f.AreaOffset(0); ok {
		t.Fatal("area offset with zero area chunk")
	}
	if relocs, err := f.Relocations(0); relocs != nil || err != nil {
		t.Fatalf("relocations with zero area chunk: %v %v", relocs, err)
	}

	be := buildAof(binary.BigEndian, aofOpts{})
	f = openAof(t, zeroChunk(be, binary.BigEndian, ChunkSymtab))
	if len(f.Syms) != 0 {
		t.Fatal("symbols with zero symbol table offset")
	}
}

func TestAofUnknownArea(t *testing.T) {
	f := openAof(t, buildAof(binary.LittleEndian, aofOpts{badRefArea: true}))
	if f.Syms[0].Area != -1 {
		t.Fatalf("area = %d", f.Syms[0].Area)
	}
	syms, err := f.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	main := syms[0]
	if !main.Defined() || main.Section != models.SectionUnknown || main.Letter() != 'D' {
		t.Fatalf("main = %+v", main)
	}
}
