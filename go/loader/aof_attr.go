package loader

import (
	"strings"
)

type AreaAttr uint32

const (
	AreaAbsolute AreaAttr = 0x100
	AreaCode     AreaAttr = 0x200
	AreaCBD      AreaAttr = 0x400
	AreaCBR      AreaAttr = 0x800
	AreaZeroInit AreaAttr = 0x1000
	AreaReadOnly AreaAttr = 0x2000
	AreaPIE      AreaAttr = 0x4000
	AreaDebug    AreaAttr = 0x8000
	AreaAPCS32   AreaAttr = 0x10000
	AreaREE      AreaAttr = 0x20000
	AreaExFP     AreaAttr = 0x40000
	AreaNoSPP    AreaAttr = 0x80000
	AreaThumb    AreaAttr = 0x100000
	AreaHWInst   AreaAttr = 0x200000
	AreaIW       AreaAttr = 0x400000
)

type attrName struct {
	bit  uint32
	name string
}

var areaAttrNames = []attrName{
	{uint32(AreaAbsolute), "ABS"},
	{uint32(AreaCode), "CODE"},
	{uint32(AreaCBD), "CBD"},
	{uint32(AreaCBR), "CBR"},
	{uint32(AreaZeroInit), "ZI"},
	{uint32(AreaReadOnly), "RO"},
	{uint32(AreaPIE), "PIE"},
	{uint32(AreaDebug), "DBG"},
	{uint32(AreaAPCS32), "APCS32"},
	{uint32(AreaREE), "REE"},
	{uint32(AreaExFP), "EXFP"},
	{uint32(AreaNoSPP), "NOSPP"},
	{uint32(AreaThumb), "THUMB"},
	{uint32(AreaHWInst), "HW"},
	{uint32(AreaIW), "IW"},
}

type SymAttr uint32

const (
	SymDefine    SymAttr = 0x1
	SymGlobal    SymAttr = 0x2
	SymAbsolute  SymAttr = 0x4
	SymCaseInsen SymAttr = 0x8
	SymWeak      SymAttr = 0x10
	SymCommon    SymAttr = 0x40
	SymDatum     SymAttr = 0x100
	SymFPRegArgs SymAttr = 0x200
	SymThumb     SymAttr = 0x1000
)

var symAttrNames = []attrName{
	{uint32(SymDefine), "DEF"},
	{uint32(SymGlobal), "PUB"},
	{uint32(SymAbsolute), "ABS"},
	{uint32(SymCaseInsen), "CI"},
	{uint32(SymWeak), "WEAK"},
	{uint32(SymCommon), "C"},
	{uint32(SymDatum), "DATUM"},
	{uint32(SymFPRegArgs), "FP_REG_ARGS"},
	{uint32(SymThumb), "THUMB"},
}

func attrString(v uint32, names []attrName) string {
	var out []string
	for _, n := range names {
		if v&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return strings.Join(out, ",")
}

func (a AreaAttr) String() string      { return attrString(uint32(a), areaAttrNames) }
func (a AreaAttr) Has(b AreaAttr) bool { return a&b == b }

func (a SymAttr) String() string     { return attrString(uint32(a), symAttrNames) }
func (a SymAttr) Has(b SymAttr) bool { return a&b == b }

// Relocation field types.
const (
	RelocByte  = 0
	RelocHalf  = 1
	RelocWord  = 2
	RelocInstr = 3
)

type Reloc struct {
	Offset uint32
	Flags  uint32
}

const relocSize = 8

func (r Reloc) FieldType() uint32 { return (r.Flags >> 24) & 3 }

// R marks a PC-relative relocation.
func (r Reloc) R() bool { return r.Flags&(1<<26) != 0 }

// A is set when SID indexes the symbol table rather than the area table.
func (r Reloc) A() bool { return r.Flags&(1<<27) != 0 }

// B marks a base-relative relocation.
func (r Reloc) B() bool { return r.Flags&(1<<28) != 0 }

// II is the instruction count for instruction-sequence relocations.
func (r Reloc) II() uint32 { return (r.Flags >> 29) & 3 }

func (r Reloc) SID() uint32 { return r.Flags & 0xFFFFFF }

func (r Reloc) IsThumbInstr() bool {
	return r.FieldType() == RelocInstr && r.Offset&1 == 0
}
