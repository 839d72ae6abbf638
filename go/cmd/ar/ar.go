package artool

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/ar"
	"github.com/alex-s168/ubinutils/go/cmd"
	"github.com/alex-s168/ubinutils/go/loader"
	"github.com/alex-s168/ubinutils/go/models"
)

const usage = `<command> <archive> [file...]

Commands:
  t    list the members of the archive
  tv   list members with mode, owner, size and date
  x    extract the named members, or all of them
  p    print the named members, or all of them, to stdout
  rc   create an archive from the files
  rcs  create an archive with a symbol index`

// List writes the name of every regular member.
func List(w io.Writer, a *ar.Reader, verbose bool) error {
	a.Rewind()
	for a.HasNext() {
		h, err := a.Next()
		if err != nil {
			return err
		}
		a.Skip()
		if h.Special() || h.Name == "" {
			continue
		}
		if !verbose {
			fmt.Fprintln(w, h.Name)
			continue
		}
		mode := os.FileMode(h.Mode).Perm().String()[1:]
		owner := strconv.Itoa(h.Uid) + "/" + strconv.Itoa(h.Gid)
		size := runewidth.FillLeft(strconv.FormatInt(h.DataSize(), 10), 6)
		date := h.ModTime.UTC().Format("Jan _2 15:04 2006")
		fmt.Fprintf(w, "%s %s %s %s %s\n", mode, owner, size, date, h.Name)
	}
	return nil
}

// each visits the named members, or every regular member when names is
// empty. A name that is not in the archive is reported and skipped.
func each(t *cmd.Tool, a *ar.Reader, names []string, fn func(h *ar.Header, data []byte) error) error {
	if len(names) == 0 {
		a.Rewind()
		for a.HasNext() {
			h, err := a.Next()
			if err != nil {
				return err
			}
			if h.Special() {
				a.Skip()
				continue
			}
			data, err := a.ReadData()
			if err != nil {
				return err
			}
			if err := fn(h, data); err != nil {
				return err
			}
		}
		return nil
	}
	var missing error
	for _, name := range names {
		a.Rewind()
		h, data, err := a.FindNext(name)
		if errors.Is(err, ar.ErrNotFound) {
			t.Warnf("%s not found in archive", name)
			missing = err
			continue
		} else if err != nil {
			return err
		}
		if err := fn(h, data); err != nil {
			return err
		}
	}
	return missing
}

// Extract writes members into dir under their base names.
func Extract(t *cmd.Tool, a *ar.Reader, names []string, dir string) error {
	return each(t, a, names, func(h *ar.Header, data []byte) error {
		mode := os.FileMode(h.Mode).Perm()
		if mode == 0 {
			mode = 0644
		}
		path := filepath.Join(dir, filepath.Base(h.Name))
		if err := os.WriteFile(path, data, mode); err != nil {
			return errors.Wrapf(err, "could not write %s", path)
		}
		return nil
	})
}

func Print(t *cmd.Tool, w io.Writer, a *ar.Reader, names []string) error {
	return each(t, a, names, func(h *ar.Header, data []byte) error {
		_, err := w.Write(data)
		return err
	})
}

// globalSymbols returns the names a linker could resolve against data.
func globalSymbols(data []byte, diag models.Diag) ([]string, error) {
	obj, err := loader.Load(bytes.NewReader(data), diag)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	syms, err := obj.Symbols()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, s := range syms {
		if s.Global && s.Defined() && s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// Create builds an archive from paths. With index set, the global defined
// symbols of every recognized object go into a symbol index.
func Create(t *cmd.Tool, w io.Writer, paths []string, index bool) error {
	members := make([]ar.Member, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "could not read input")
		}
		m := ar.Member{
			Name:    filepath.Base(path),
			Data:    data,
			ModTime: time.Unix(0, 0),
			Mode:    0644,
		}
		if st, err := os.Stat(path); err == nil {
			m.Mode = uint32(st.Mode().Perm())
		}
		if index {
			m.Symbols, err = globalSymbols(data, t.Diag(path))
			if err != nil {
				t.Warnf("could not generate symbol index for %s: %v", path, err)
			}
		}
		members = append(members, m)
	}
	return ar.Build(w, members, index)
}

func open(path string) (*ar.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open archive")
	}
	a, err := ar.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "error reading archive")
	}
	return a, f, nil
}

func run(t *cmd.Tool, command, archive string, files []string) error {
	switch command {
	case "rc", "rcs":
		out, err := os.Create(archive)
		if err != nil {
			return errors.Wrap(err, "could not create archive")
		}
		if err := Create(t, out, files, command == "rcs"); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case "t", "tv", "x", "p":
	default:
		return errors.Errorf("unknown command %q", command)
	}
	a, f, err := open(archive)
	if err != nil {
		return err
	}
	defer f.Close()
	switch command {
	case "t", "tv":
		return List(t.Stdout(), a, command == "tv")
	case "x":
		return Extract(t, a, files, ".")
	default:
		return Print(t, t.Stdout(), a, files)
	}
}

func Main(args []string) {
	t := cmd.NewTool("ar", usage)
	rest := t.Parse(args)
	if len(rest) < 2 {
		t.Usage()
	}
	if err := run(t, rest[0], rest[1], rest[2:]); err != nil {
		t.PrintError(err)
		os.Exit(1)
	}
}

func init() { cmd.Register("ar", "create, list and extract archives", Main) }
