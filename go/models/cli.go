package models

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const usageWidth = 80

// PrintFlags writes a wrapped two-column flag listing.
func PrintFlags(w io.Writer, fs *flag.FlagSet) {
	var flags []*flag.Flag
	fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })

	wname, wdef := 0, 0
	for _, f := range flags {
		if n := runewidth.StringWidth(f.Name); n > wname {
			wname = n
		}
		if n := runewidth.StringWidth(f.DefValue); n > wdef {
			wdef = n
		}
	}
	wdesc := usageWidth - wname - wdef - 7
	if wdesc < 20 {
		wdesc = 20
	}
	lpad := strings.Repeat(" ", wname+wdef+7)
	for _, f := range flags {
		def := ""
		if f.DefValue != "" && f.DefValue != "[]" {
			def = "(" + f.DefValue + ")"
		}
		fmt.Fprintf(w, "  -%s %s ", runewidth.FillRight(f.Name, wname), runewidth.FillRight(def, wdef+2))
		for i, line := range wrap(f.Usage, wdesc) {
			if i > 0 {
				fmt.Fprint(w, lpad)
			}
			fmt.Fprintln(w, line)
		}
	}
}

// wrap splits s on newlines, then on the last space before width.
func wrap(s string, width int) []string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		for runewidth.StringWidth(para) > width {
			cut := strings.LastIndex(para[:width], " ")
			if cut <= 0 {
				cut = width
			}
			out = append(out, para[:cut])
			para = strings.TrimLeft(para[cut:], " ")
		}
		out = append(out, para)
	}
	return out
}
