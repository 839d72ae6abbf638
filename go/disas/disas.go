// Package disas turns machine code into instruction listings through a
// small registry of per-architecture backends.
package disas

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type Ins interface {
	Addr() uint64
	Bytes() []byte
	Mnemonic() string
	OpStr() string
}

type Disassembler interface {
	// Dis decodes all of mem, which is loaded at addr. Undecodable bytes
	// come back as "(bad)" instructions rather than an error.
	Dis(mem []byte, addr uint64) ([]Ins, error)
}

type Opener func(bigEndian bool) (Disassembler, error)

var backends = make(map[string]Opener)

// Register adds or replaces the backend for each name.
func Register(open Opener, names ...string) {
	for _, name := range names {
		backends[name] = open
	}
}

func New(arch string, bigEndian bool) (Disassembler, error) {
	open, ok := backends[strings.ToLower(arch)]
	if !ok {
		return nil, errors.Errorf("no disassembler for arch %q (have %s)", arch, strings.Join(Arches(), ", "))
	}
	return open(bigEndian)
}

func Arches() []string {
	ret := make([]string, 0, len(backends))
	for name := range backends {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

type inst struct {
	addr     uint64
	bytes    []byte
	mnemonic string
	opstr    string
}

func (i *inst) Addr() uint64     { return i.addr }
func (i *inst) Bytes() []byte    { return i.bytes }
func (i *inst) Mnemonic() string { return i.mnemonic }
func (i *inst) OpStr() string    { return i.opstr }

// newInst splits GNU syntax text into mnemonic and operands.
func newInst(addr uint64, raw []byte, text string) *inst {
	text = strings.TrimSpace(text)
	mn, ops := text, ""
	if i := strings.IndexByte(text, ' '); i >= 0 {
		mn, ops = text[:i], strings.TrimSpace(text[i+1:])
	}
	return &inst{addr: addr, bytes: raw, mnemonic: mn, opstr: ops}
}

func badInst(addr uint64, raw []byte) *inst {
	return &inst{addr: addr, bytes: raw, mnemonic: "(bad)"}
}
