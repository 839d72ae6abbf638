//go:build !capstone

package disas

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

type x86 struct {
	mode int
}

func (d *x86) Dis(mem []byte, addr uint64) ([]Ins, error) {
	var out []Ins
	for len(mem) > 0 {
		in, err := x86asm.Decode(mem, d.mode)
		size := in.Len
		if size == 0 {
			size = 1
		}
		if err != nil || in.Op == 0 {
			out = append(out, badInst(addr, mem[:1]))
			size = 1
		} else {
			out = append(out, newInst(addr, mem[:size], x86asm.GNUSyntax(in, addr, nil)))
		}
		mem = mem[size:]
		addr += uint64(size)
	}
	return out, nil
}

func openX86(mode int) Opener {
	return func(bigEndian bool) (Disassembler, error) {
		if bigEndian {
			return nil, errors.New("x86 is little-endian only")
		}
		return &x86{mode: mode}, nil
	}
}

func init() {
	Register(openX86(16), "x86_16", "8086")
	Register(openX86(32), "x86", "i386", "386")
	Register(openX86(64), "x86_64", "amd64")
}
