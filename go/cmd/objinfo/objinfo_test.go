package objinfo

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/lunixbochs/struc"

	"github.com/alex-s168/ubinutils/go/loader"
)

func pack(buf *bytes.Buffer, v ...interface{}) {
	for _, x := range v {
		if err := struc.PackWithOrder(buf, x, binary.BigEndian); err != nil {
			panic(err)
		}
	}
}

// object builds a big-endian AOF with a code area referencing "ext" and a
// zero-initialised area.
func object(t *testing.T) *loader.AofFile {
	strtab := []byte("\x00\x00\x00\x1bcode\x00bss\x00start\x00ext\x00\x00\x00")
	const (
		strCode  = 4
		strBss   = 9
		strStart = 13
		strExt   = 19
	)
	binary.BigEndian.PutUint32(strtab, uint32(len(strtab)))

	var head, area, symt bytes.Buffer
	pack(&head,
		&loader.AofHeader{FileType: 0xC5E2D080, Version: 310, NumAreas: 2, NumSyms: 2, EntryArea: 1},
		&loader.AreaHeader{NameOff: strCode, Attributes: uint32(loader.AreaCode|loader.AreaReadOnly) | 2, Size: 4, NumRelocs: 1},
		&loader.AreaHeader{NameOff: strBss, Attributes: uint32(loader.AreaZeroInit) | 3, Size: 16},
	)
	area.Write([]byte{0xeb, 0xff, 0xff, 0xfe})
	pack(&area, &loader.Reloc{Offset: 0, Flags: loader.RelocInstr<<24 | 1<<27 | 1})
	pack(&symt,
		&loader.AofSym{NameOff: strStart, Attribs: uint32(loader.SymDefine | loader.SymGlobal), Value: 0, RefArea: strCode},
		&loader.AofSym{NameOff: strExt, Attribs: uint32(loader.SymGlobal)},
	)

	chunks := []struct {
		id   string
		data []byte
	}{
		{loader.ChunkHead, head.Bytes()},
		{loader.ChunkArea, area.Bytes()},
		{loader.ChunkIdent, []byte("armcc 4.1\x00")},
		{loader.ChunkSymtab, symt.Bytes()},
		{loader.ChunkStrtab, strtab},
	}
	var out bytes.Buffer
	for _, v := range []uint32{loader.ChunkFileMagic, 5, 5} {
		binary.Write(&out, binary.BigEndian, v)
	}
	off := uint32(12 + 16*len(chunks))
	for _, c := range chunks {
		e := loader.ChunkEntry{Offset: off, Size: uint32(len(c.data))}
		copy(e.ID[:], c.id)
		pack(&out, &e)
		off += uint32(len(c.data))
	}
	for _, c := range chunks {
		out.Write(c.data)
	}
	f, err := loader.OpenAof(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func plain(s string) string { return s }

func TestDump(t *testing.T) {
	f := object(t)
	var buf bytes.Buffer
	if err := Dump(&buf, f, plain); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	for _, want := range []string{
		"compiler identification: armcc 4.1\n",
		"entry: code + 0x0\n",
		"areas:\n",
		"- code\talign=2\tsize=0x4\tCODE,RO\n",
		"    relocs (1):\n    - 0x0 symbol: ext\n",
		"- bss \talign=3\tsize=0x10\tZI\n    relocs (0):\n",
		"symbols:\n- start\tDEF,PUB\tcode + 0x0\n- ext\tPUB\n",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in:\n%s", want, got)
		}
	}
}

func TestExtract(t *testing.T) {
	f := object(t)
	var buf bytes.Buffer
	if err := Extract(&buf, f, "code"); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0xeb, 0xff, 0xff, 0xfe}) {
		t.Fatalf("got % x", buf.Bytes())
	}
	buf.Reset()
	if err := Extract(&buf, f, "bss"); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 16 {
		t.Fatalf("zero-init area gave %d bytes", buf.Len())
	}
	if err := Extract(&buf, f, "nope"); err == nil {
		t.Fatal("missing area accepted")
	}
}
