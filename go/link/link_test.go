package link

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/loader"
)

type sym struct {
	name    string
	defined bool
}

func pack(buf *bytes.Buffer, v ...interface{}) {
	for _, x := range v {
		if err := struc.PackWithOrder(buf, x, binary.LittleEndian); err != nil {
			panic(err)
		}
	}
}

// object builds a one-area AOF image with head, symbol and string chunks.
func object(t *testing.T, syms ...sym) *loader.AofFile {
	strs := bytes.NewBuffer(make([]byte, 4))
	strs.WriteString("code\x00")
	var symt bytes.Buffer
	for _, s := range syms {
		off := uint32(strs.Len())
		strs.WriteString(s.name + "\x00")
		attr := loader.SymGlobal
		if s.defined {
			attr |= loader.SymDefine
		}
		pack(&symt, &loader.AofSym{NameOff: off, Attribs: uint32(attr), RefArea: 4})
	}
	strtab := strs.Bytes()
	binary.LittleEndian.PutUint32(strtab, uint32(len(strtab)))

	var head bytes.Buffer
	pack(&head,
		&loader.AofHeader{FileType: 0xC5E2D080, Version: 310, NumAreas: 1, NumSyms: uint32(len(syms))},
		&loader.AreaHeader{NameOff: 4, Attributes: uint32(loader.AreaCode) | 2},
	)

	chunks := []struct {
		id   string
		data []byte
	}{
		{loader.ChunkHead, head.Bytes()},
		{loader.ChunkSymtab, symt.Bytes()},
		{loader.ChunkStrtab, strtab},
	}
	var out bytes.Buffer
	for _, v := range []uint32{loader.ChunkFileMagic, 3, 3} {
		binary.Write(&out, binary.LittleEndian, v)
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
	obj, err := loader.OpenAof(bytes.NewReader(out.Bytes()), nil)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

func TestLookupAcrossObjects(t *testing.T) {
	tab := NewTable()
	tab.Add("a.o", object(t, sym{"main", true}, sym{"puts", false}))
	tab.Add("b.o", object(t, sym{"puts", true}, sym{"helper", true}))
	defer tab.Close()

	if tab.Len() != 4 {
		t.Fatalf("indexed %d symbols", tab.Len())
	}
	refs := tab.Lookup("puts")
	if len(refs) != 2 {
		t.Fatalf("puts: %v", refs)
	}
	if refs[0] != (Ref{Obj: 0, Sym: 1}) || refs[1] != (Ref{Obj: 1, Sym: 0}) {
		t.Fatalf("wrong order: %v", refs)
	}
	if tab.Symbol(refs[0]).Attr().Has(loader.SymDefine) {
		t.Fatal("reference reported as definition")
	}
	if !tab.Symbol(refs[1]).Attr().Has(loader.SymDefine) {
		t.Fatal("definition reported as reference")
	}
	if tab.Names[refs[1].Obj] != "b.o" {
		t.Fatalf("owner %q", tab.Names[refs[1].Obj])
	}
	if len(tab.Lookup("pu")) != 0 {
		t.Fatal("prefix matched")
	}
}

func TestDedup(t *testing.T) {
	tab := NewTable()
	if err := tab.Dedup(); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}
