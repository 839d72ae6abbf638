package models

// SectionKind groups sections the way size(1) reports them.
type SectionKind int

const (
	SectionOther SectionKind = iota
	SectionText
	SectionData
	SectionROData
	SectionBSS
)

type Section struct {
	Name   string
	Addr   uint64
	Offset uint64
	Size   uint64
	Kind   SectionKind
}

// KindByName classifies the conventional ELF and PE section names.
func KindByName(name string) SectionKind {
	switch name {
	case ".text":
		return SectionText
	case ".data":
		return SectionData
	case ".rodata", ".rdata":
		return SectionROData
	case ".bss":
		return SectionBSS
	}
	return SectionOther
}
