package nm

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/ar"
	"github.com/alex-s168/ubinutils/go/cmd"
	"github.com/alex-s168/ubinutils/go/loader"
	"github.com/alex-s168/ubinutils/go/models"
)

// PrintSymbols writes one "value letter name" line per symbol. Undefined
// symbols get a blank value column.
func PrintSymbols(w io.Writer, obj models.Object) error {
	syms, err := obj.Symbols()
	if err != nil {
		return err
	}
	width := obj.Bits() / 4
	if width < 8 {
		width = 8
	}
	for _, s := range syms {
		value := strings.Repeat(" ", width)
		if s.Defined() {
			value = fmt.Sprintf("%0*X", width, s.Value)
		}
		name := s.Name
		if name == "" {
			name = "unnamed"
		}
		fmt.Fprintf(w, "%s %c %s\n", value, s.Letter(), name)
	}
	return nil
}

// PrintIndex writes the GNU symbol index of an archive as "symbol in member".
func PrintIndex(w io.Writer, a *ar.Reader) error {
	a.Rewind()
	owners := make(map[int64]string)
	var idx *ar.SymbolIndex
	for a.HasNext() {
		h, err := a.Next()
		if err != nil {
			return err
		}
		owners[a.Offset()] = h.Name
		if h.RawName == ar.SymbolIndexName && idx == nil {
			data, err := a.ReadData()
			if err != nil {
				return err
			}
			if idx, err = ar.ParseSymbolIndex(data); err != nil {
				return err
			}
		} else {
			a.Skip()
		}
	}
	if idx == nil {
		return nil
	}
	fmt.Fprintln(w, "Archive index:")
	for i, name := range idx.Names {
		owner, ok := owners[int64(idx.Offsets[i])]
		if !ok {
			owner = fmt.Sprintf("<bad offset %#x>", idx.Offsets[i])
		}
		fmt.Fprintf(w, "%s in %s\n", name, owner)
	}
	fmt.Fprintln(w)
	return nil
}

type options struct {
	index  bool
	banner bool
}

func nm(t *cmd.Tool, w io.Writer, path string, o options) error {
	in, err := cmd.OpenInput(path)
	if err != nil {
		return err
	}
	defer in.Close()
	if o.banner {
		fmt.Fprintf(w, "\n%s:\n", t.Heading(path))
	}
	if in.Archive == nil {
		obj, err := loader.Load(in.File(), t.Diag(path))
		if err != nil {
			return err
		}
		defer obj.Close()
		return PrintSymbols(w, obj)
	}
	if o.index {
		if err := PrintIndex(w, in.Archive); err != nil {
			return err
		}
	}
	return in.Members(func(h *ar.Header, r io.ReadSeeker) error {
		fmt.Fprintf(w, "%s:\n", t.Heading(h.Name))
		obj, err := loader.Load(r, t.Diag(path+"("+h.Name+")"))
		switch {
		case models.IsMalformedMagic(err):
			fmt.Fprintln(w, "unrecognized format")
		case err != nil:
			return errors.Wrap(err, h.Name)
		default:
			err := PrintSymbols(w, obj)
			obj.Close()
			if err != nil {
				return errors.Wrap(err, h.Name)
			}
		}
		fmt.Fprintln(w)
		return nil
	})
}

func Main(args []string) {
	t := cmd.NewTool("nm", "<file>...")
	t.JobsFlag()
	index := t.Flags.Bool("s", false, "print the archive symbol index")
	paths := t.Parse(args)
	if len(paths) == 0 {
		t.Usage()
	}
	o := options{index: *index, banner: len(paths) > 1}
	os.Exit(t.Run(paths, func(w io.Writer, path string) error {
		return nm(t, w, path, o)
	}))
}

func init() { cmd.Register("nm", "list symbols of objects and archives", Main) }
