//go:build !capstone

package disas

import (
	"encoding/binary"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"
)

// word returns the next 4 bytes in little-endian order, the only order the
// x/arch decoders take.
func word(mem []byte, big bool) []byte {
	if !big {
		return mem[:4]
	}
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], binary.BigEndian.Uint32(mem))
	return le[:]
}

type arm struct {
	big bool
}

func (d *arm) Dis(mem []byte, addr uint64) ([]Ins, error) {
	var out []Ins
	for len(mem) >= 4 {
		in, err := armasm.Decode(word(mem, d.big), armasm.ModeARM)
		if err != nil {
			out = append(out, badInst(addr, mem[:4]))
		} else {
			out = append(out, newInst(addr, mem[:4], armasm.GNUSyntax(in)))
		}
		mem = mem[4:]
		addr += 4
	}
	if len(mem) > 0 {
		out = append(out, badInst(addr, mem))
	}
	return out, nil
}

type arm64 struct {
	big bool
}

func (d *arm64) Dis(mem []byte, addr uint64) ([]Ins, error) {
	var out []Ins
	for len(mem) >= 4 {
		in, err := arm64asm.Decode(word(mem, d.big))
		if err != nil {
			out = append(out, badInst(addr, mem[:4]))
		} else {
			out = append(out, newInst(addr, mem[:4], arm64asm.GNUSyntax(in)))
		}
		mem = mem[4:]
		addr += 4
	}
	if len(mem) > 0 {
		out = append(out, badInst(addr, mem))
	}
	return out, nil
}

func init() {
	Register(func(big bool) (Disassembler, error) { return &arm{big: big}, nil }, "arm")
	Register(func(big bool) (Disassembler, error) { return &arm64{big: big}, nil }, "arm64", "aarch64")
}
