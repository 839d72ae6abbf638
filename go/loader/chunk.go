package loader

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/endian"
	"github.com/alex-s168/ubinutils/go/models"
)

const ChunkFileMagic = 0xC3CBC6C5

// Well-known chunk identifiers.
const (
	ChunkHead   = "OBJ_HEAD"
	ChunkArea   = "OBJ_AREA"
	ChunkIdent  = "OBJ_IDFN"
	ChunkSymtab = "OBJ_SYMT"
	ChunkStrtab = "OBJ_STRT"
)

type chunkFileHeader struct {
	Magic     uint32
	MaxChunks uint32
	NumChunks uint32
}

type ChunkEntry struct {
	ID     [8]byte
	Offset uint32
	Size   uint32
}

const chunkEntrySize = 16

func (e *ChunkEntry) Name() string {
	return string(bytes.TrimRight(e.ID[:], "\x00 "))
}

type ChunkFile struct {
	r     io.ReadSeeker
	order binary.ByteOrder
	diag  models.Diag

	MaxChunks uint32
	Entries   []ChunkEntry

	head, area, ident, symtab, strtab *ChunkEntry

	identCache  []byte
	strtabCache []byte
}

// chunkOrder returns the byte order implied by the first four bytes.
func chunkOrder(magic []byte) (binary.ByteOrder, bool) {
	if len(magic) < 4 {
		return nil, false
	}
	raw := append([]byte(nil), magic[:4]...)
	if endian.Host().Uint32(raw) == ChunkFileMagic {
		return endian.Host(), true
	}
	endian.Swap(raw)
	if endian.Host().Uint32(raw) == ChunkFileMagic {
		return endian.Opposite(endian.Host()), true
	}
	return nil, false
}

func MatchChunkFile(r io.ReadSeeker) bool {
	_, ok := chunkOrder(getMagic(r, 4))
	return ok
}

func OpenChunkFile(r io.ReadSeeker, diag models.Diag) (*ChunkFile, error) {
	order, ok := chunkOrder(getMagic(r, 4))
	if !ok {
		return nil, errors.Wrap(models.ErrMalformedMagic, "chunk file")
	}
	var hdr chunkFileHeader
	if err := unpackAt(r, &hdr, 0, order, "chunk file header"); err != nil {
		return nil, err
	}
	if err := checkCount(r, 12, uint64(hdr.NumChunks), chunkEntrySize, "chunk table"); err != nil {
		diag.Printf("chunk table of %d entries does not fit the file", hdr.NumChunks)
		return nil, err
	}
	c := &ChunkFile{
		r:         r,
		order:     order,
		diag:      diag,
		MaxChunks: hdr.MaxChunks,
		Entries:   make([]ChunkEntry, hdr.NumChunks),
	}
	for i := range c.Entries {
		if err := unpack(r, &c.Entries[i], order, "chunk entry"); err != nil {
			return nil, err
		}
	}
	c.head = c.find(ChunkHead)
	c.area = c.find(ChunkArea)
	c.ident = c.find(ChunkIdent)
	c.symtab = c.find(ChunkSymtab)
	c.strtab = c.find(ChunkStrtab)
	return c, nil
}

// find skips descriptors with a zero offset, which mark an absent chunk.
func (c *ChunkFile) find(id string) *ChunkEntry {
	for i := range c.Entries {
		if c.Entries[i].Offset != 0 && c.Entries[i].Name() == id {
			return &c.Entries[i]
		}
	}
	return nil
}

// Find does a linear scan of the chunk table. Absent chunks are not found.
func (c *ChunkFile) Find(id string) (ChunkEntry, bool) {
	if e := c.find(id); e != nil {
		return *e, true
	}
	return ChunkEntry{}, false
}

// Read returns exactly the declared bytes of e.
func (c *ChunkFile) Read(e ChunkEntry) ([]byte, error) {
	return readFull(c.r, int64(e.Offset), uint64(e.Size), "chunk "+e.Name())
}

func (c *ChunkFile) ByteOrder() binary.ByteOrder { return c.order }

// Swapped reports whether the file's fields are stored opposite to host order.
func (c *ChunkFile) Swapped() bool { return endian.NeedSwap(c.order) }

// Ident returns the identification blob, or nil if the file has none.
func (c *ChunkFile) Ident() ([]byte, error) {
	if c.ident == nil {
		return nil, nil
	}
	if c.identCache == nil {
		data, err := c.Read(*c.ident)
		if err != nil {
			return nil, err
		}
		c.identCache = data
	}
	return c.identCache, nil
}

// StrTable returns the string table chunk, or nil if absent.
func (c *ChunkFile) StrTable() ([]byte, error) {
	if c.strtab == nil {
		return nil, nil
	}
	if c.strtabCache == nil {
		data, err := c.Read(*c.strtab)
		if err != nil {
			return nil, err
		}
		c.strtabCache = data
	}
	return c.strtabCache, nil
}

// Str resolves a string table offset. The result borrows the cached table.
func (c *ChunkFile) Str(off uint32) ([]byte, error) {
	tab, err := c.StrTable()
	if err != nil {
		return nil, err
	}
	if tab == nil {
		return nil, errors.Wrapf(models.ErrUnresolvedReference, "string %#x: no %s chunk", off, ChunkStrtab)
	}
	s, ok := cstr(tab, uint64(off))
	if !ok {
		return nil, errors.Wrapf(models.ErrUnresolvedReference, "string %#x outside %d byte table", off, len(tab))
	}
	return s, nil
}

func (c *ChunkFile) Close() error {
	c.identCache = nil
	c.strtabCache = nil
	c.Entries = nil
	c.head, c.area, c.ident, c.symtab, c.strtab = nil, nil, nil, nil, nil
	return nil
}
