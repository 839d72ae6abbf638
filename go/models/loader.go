package models

import (
	"encoding/binary"
)

// Object is the format-independent view every decoder produces.
type Object interface {
	Format() Format
	Arch() string
	ByteOrder() binary.ByteOrder
	Bits() int
	Sections() []Section
	FindSection(name string) (int, bool)
	SectionData(i int) ([]byte, error)
	Symbols() ([]Symbol, error)
	Close() error
}
