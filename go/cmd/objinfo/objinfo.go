package objinfo

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/cmd"
	"github.com/alex-s168/ubinutils/go/loader"
)

// Dump writes the identification, areas with their relocations, and the
// symbols of f. heading decorates the section titles.
func Dump(w io.Writer, f *loader.AofFile, heading func(string) string) error {
	ident, err := f.Chunks.Ident()
	if err != nil {
		return err
	}
	if ident != nil {
		fmt.Fprintf(w, "compiler identification: %s\n", trimNul(ident))
	}
	if area, off, ok := f.Entry(); ok {
		fmt.Fprintf(w, "entry: %s + 0x%X\n", f.Areas[area].Name, off)
	}

	fmt.Fprintln(w, heading("areas:"))
	pad := 0
	for i := range f.Areas {
		if n := runewidth.StringWidth(f.Areas[i].Name); n > pad {
			pad = n
		}
	}
	for i := range f.Areas {
		a := &f.Areas[i]
		fmt.Fprintf(w, "- %s\talign=%d\tsize=0x%X\t%s\n", runewidth.FillRight(a.Name, pad), a.Align(), a.Size, a.Attr())
		relocs, err := f.Relocations(i)
		if err != nil {
			return errors.Wrapf(err, "area %s", a.Name)
		}
		fmt.Fprintf(w, "    relocs (%d):\n", a.NumRelocs)
		for _, r := range relocs {
			kind := "area"
			if r.A() {
				kind = "symbol"
			}
			fmt.Fprintf(w, "    - 0x%X %s: %s\n", r.Offset, kind, f.RelocTarget(r))
		}
	}

	fmt.Fprintln(w, heading("symbols:"))
	for i := range f.Syms {
		s := &f.Syms[i]
		fmt.Fprintf(w, "- %s\t%s", s.Name, s.Attr())
		switch {
		case s.Attr().Has(loader.SymAbsolute):
			fmt.Fprintf(w, "\t=0x%X", s.Value)
		case s.Attr().Has(loader.SymDefine):
			area := "?"
			if s.Area >= 0 {
				area = f.Areas[s.Area].Name
			}
			fmt.Fprintf(w, "\t%s + 0x%X", area, s.Value)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func trimNul(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// Extract copies the payload of the named area to w.
func Extract(w io.Writer, f *loader.AofFile, name string) error {
	i, ok := f.FindArea(name)
	if !ok {
		return errors.Errorf("no area named %q", name)
	}
	data, err := f.AreaData(i)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "write failed")
}

func objinfo(t *cmd.Tool, path, area, out string) error {
	fp, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open failed")
	}
	defer fp.Close()
	f, err := loader.OpenAof(fp, t.Diag(path))
	if err != nil {
		return errors.Wrap(err, "doesn't seem like an AOF file")
	}
	defer f.Close()
	if area == "" {
		return Dump(t.Stdout(), f, t.Heading)
	}
	var w io.Writer = t.Stdout()
	if out != "" {
		o, err := os.Create(out)
		if err != nil {
			return errors.Wrap(err, "could not create output")
		}
		defer o.Close()
		w = o
	}
	return Extract(w, f, area)
}

func Main(args []string) {
	t := cmd.NewTool("objinfo", "<file.aof>")
	area := t.Flags.String("x", "", "extract the raw bytes of this area")
	out := t.Flags.String("o", "", "write the extracted area here instead of stdout")
	paths := t.Parse(args)
	if len(paths) != 1 {
		t.Usage()
	}
	if err := objinfo(t, paths[0], *area, *out); err != nil {
		t.PrintError(err)
		os.Exit(1)
	}
}

func init() { cmd.Register("objinfo", "dump the structure of an AOF object", Main) }
