package models

// Section sentinels for symbols that are not defined in a real section.
// SectionUnknown is a definition whose section could not be resolved.
const (
	SectionUndef   = -1
	SectionAbs     = -2
	SectionCommon  = -3
	SectionUnknown = -4
)

// SymKind is the nm type letter of a symbol, in its global (upper case) form.
type SymKind byte

const (
	SymUnknown SymKind = '?'
	SymText    SymKind = 'T'
	SymData    SymKind = 'D'
	SymROData  SymKind = 'R'
	SymBSS     SymKind = 'B'
	SymUndef   SymKind = 'U'
	SymAbs     SymKind = 'A'
	SymCommon  SymKind = 'C'
)

type Symbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Section int
	Kind    SymKind
	Global  bool
}

// Letter returns the nm letter, lower case for local definitions.
func (s Symbol) Letter() byte {
	switch s.Kind {
	case SymText, SymData, SymROData, SymBSS:
		if !s.Global {
			return byte(s.Kind) + ('a' - 'A')
		}
	}
	return byte(s.Kind)
}

func (s Symbol) Defined() bool {
	return s.Section != SectionUndef
}
