package size

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/ar"
	"github.com/alex-s168/ubinutils/go/cmd"
	"github.com/alex-s168/ubinutils/go/loader"
	"github.com/alex-s168/ubinutils/go/models"
)

const Header = "text\tdata\tbss\ttotal\tfilename"

type Totals struct {
	Text, Data, BSS uint64
}

func (t Totals) Total() uint64 { return t.Text + t.Data + t.BSS }

// Count sums section sizes. ELF and PE sections count by their
// conventional names; AOF areas by their attributes.
func Count(obj models.Object) Totals {
	var t Totals
	for _, s := range obj.Sections() {
		kind := models.KindByName(s.Name)
		if obj.Format() == models.FormatAof {
			kind = s.Kind
		}
		switch kind {
		case models.SectionText:
			t.Text += s.Size
		case models.SectionData, models.SectionROData:
			t.Data += s.Size
		case models.SectionBSS:
			t.BSS += s.Size
		}
	}
	return t
}

func PrintLine(w io.Writer, t Totals, name string) {
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\n", t.Text, t.Data, t.BSS, t.Total(), name)
}

func size(tool *cmd.Tool, w io.Writer, path string) error {
	in, err := cmd.OpenInput(path)
	if err != nil {
		return err
	}
	defer in.Close()
	if in.Archive == nil {
		obj, err := loader.Load(in.File(), tool.Diag(path))
		if err != nil {
			return err
		}
		defer obj.Close()
		PrintLine(w, Count(obj), path)
		return nil
	}
	return in.Members(func(h *ar.Header, r io.ReadSeeker) error {
		obj, err := loader.Load(r, tool.Diag(path+"("+h.Name+")"))
		if models.IsMalformedMagic(err) {
			tool.Warnf("%s: unrecognized format", h.Name)
			return nil
		} else if err != nil {
			return errors.Wrap(err, h.Name)
		}
		defer obj.Close()
		PrintLine(w, Count(obj), fmt.Sprintf("%s (ex %s)", h.Name, path))
		return nil
	})
}

func Main(args []string) {
	t := cmd.NewTool("size", "<file>...")
	t.JobsFlag()
	paths := t.Parse(args)
	if len(paths) == 0 {
		t.Usage()
	}
	fmt.Fprintln(t.Stdout(), Header)
	os.Exit(t.Run(paths, func(w io.Writer, path string) error {
		return size(t, w, path)
	}))
}

func init() { cmd.Register("size", "list section sizes", Main) }
