//go:build capstone

package disas

import (
	"bytes"
	"sync"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"
)

type cacheEntry struct {
	mem []byte
	dis []Ins
}

// discache remembers the last listing per address, as long as the bytes
// there have not changed.
type discache struct {
	sync.RWMutex
	cache map[uint64]*cacheEntry
}

func (d *discache) get(addr uint64, mem []byte) []Ins {
	d.RLock()
	defer d.RUnlock()
	if ent, ok := d.cache[addr]; ok && bytes.Equal(mem, ent.mem) {
		return ent.dis
	}
	return nil
}

func (d *discache) put(addr uint64, mem []byte, dis []Ins) {
	d.Lock()
	d.cache[addr] = &cacheEntry{mem: mem, dis: dis}
	d.Unlock()
}

type Capstr struct {
	Arch, Mode int

	cs *cs.Engine
	dc discache
}

func (c *Capstr) Open() error {
	engine, err := cs.New(c.Arch, c.Mode)
	if err != nil {
		return errors.Wrap(err, "cs.New() failed")
	}
	c.cs = engine
	c.dc.cache = make(map[uint64]*cacheEntry)
	return nil
}

func (c *Capstr) Dis(mem []byte, addr uint64) ([]Ins, error) {
	if c.cs == nil {
		if err := c.Open(); err != nil {
			return nil, err
		}
	}
	if dis := c.dc.get(addr, mem); dis != nil {
		return dis, nil
	}
	dis, err := c.cs.Dis(mem, addr, 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]Ins, len(dis))
	for i, v := range dis {
		ret[i] = v
	}
	c.dc.put(addr, mem, ret)
	return ret, nil
}

func openCapstr(arch, mode int) Opener {
	return func(bigEndian bool) (Disassembler, error) {
		m := mode
		if bigEndian {
			m |= cs.MODE_BIG_ENDIAN
		}
		c := &Capstr{Arch: arch, Mode: m}
		return c, c.Open()
	}
}

func init() {
	Register(openCapstr(cs.ARCH_X86, cs.MODE_16), "x86_16", "8086")
	Register(openCapstr(cs.ARCH_X86, cs.MODE_32), "x86", "i386", "386")
	Register(openCapstr(cs.ARCH_X86, cs.MODE_64), "x86_64", "amd64")
	Register(openCapstr(cs.ARCH_ARM, cs.MODE_ARM), "arm")
	Register(openCapstr(cs.ARCH_ARM, cs.MODE_THUMB), "thumb")
	Register(openCapstr(cs.ARCH_ARM64, cs.MODE_ARM), "arm64", "aarch64")
}
