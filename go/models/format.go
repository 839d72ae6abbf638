package models

type Format int

const (
	FormatUnknown Format = iota
	FormatElf
	FormatPe
	FormatAof
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatElf:     "elf",
	FormatPe:      "pe",
	FormatAof:     "aof",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return "unknown"
}
