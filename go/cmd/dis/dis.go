package dis

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/cmd"
	"github.com/alex-s168/ubinutils/go/disas"
	"github.com/alex-s168/ubinutils/go/loader"
	"github.com/alex-s168/ubinutils/go/models"
)

// Print writes one "0xADDR:\tmnemonic\t\toperands" line per instruction.
func Print(w io.Writer, ins []disas.Ins) {
	for _, in := range ins {
		fmt.Fprintf(w, "0x%x:\t%s\t\t%s\n", in.Addr(), in.Mnemonic(), in.OpStr())
	}
}

type options struct {
	arch    string
	base    uint64
	section string
	// set when the user passed -arch or -base explicitly
	archSet, baseSet bool
}

// codeSection picks the section to disassemble: the named one, else
// .text, else the first code section.
func codeSection(obj models.Object, name string) (int, error) {
	if name != "" {
		i, ok := obj.FindSection(name)
		if !ok {
			return -1, errors.Errorf("no section named %q", name)
		}
		return i, nil
	}
	if i, ok := obj.FindSection(".text"); ok {
		return i, nil
	}
	for i, s := range obj.Sections() {
		if s.Kind == models.SectionText {
			return i, nil
		}
	}
	return -1, errors.New("no code section found, pick one with -section")
}

func dis(w io.Writer, path string, o options, diag models.Diag) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "can't open file")
	}
	defer f.Close()

	arch, base, big := o.arch, o.base, false
	var code []byte
	if loader.Sniff(f) == models.FormatUnknown {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "seek failed")
		}
		if code, err = io.ReadAll(f); err != nil {
			return errors.Wrap(err, "read failed")
		}
	} else {
		obj, err := loader.Load(f, diag)
		if err != nil {
			return err
		}
		defer obj.Close()
		i, err := codeSection(obj, o.section)
		if err != nil {
			return err
		}
		if code, err = obj.SectionData(i); err != nil {
			return err
		}
		if !o.archSet {
			arch = obj.Arch()
		}
		if !o.baseSet {
			if addr := obj.Sections()[i].Addr; addr != 0 {
				base = addr
			}
		}
		big = obj.ByteOrder() == binary.ByteOrder(binary.BigEndian)
	}
	d, err := disas.New(arch, big)
	if err != nil {
		return err
	}
	ins, err := d.Dis(code, base)
	if err != nil {
		return err
	}
	Print(w, ins)
	return nil
}

func Main(args []string) {
	t := cmd.NewTool("dis", "<file>")
	var o options
	t.Flags.StringVar(&o.arch, "arch", t.Config.DisArch, "instruction set of flat binaries; objects default to their own")
	t.Flags.Uint64Var(&o.base, "base", t.Config.DisBase, "load address of the first byte")
	t.Flags.StringVar(&o.section, "section", "", "section or area to disassemble (default .text)")
	paths := t.Parse(args)
	if len(paths) != 1 {
		t.Usage()
	}
	t.Flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "arch":
			o.archSet = true
		case "base":
			o.baseSet = true
		}
	})
	if err := dis(t.Stdout(), paths[0], o, t.Diag(paths[0])); err != nil {
		t.PrintError(err)
		os.Exit(1)
	}
}

func init() { cmd.Register("dis", "disassemble a flat binary or one section of an object", Main) }
