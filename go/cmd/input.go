package cmd

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/ar"
	"github.com/alex-s168/ubinutils/go/models"
)

// Input is one command line file: a plain object, or an archive whose
// members are decoded from memory.
type Input struct {
	Path    string
	Archive *ar.Reader

	f *os.File
}

func OpenInput(path string) (*Input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open failed")
	}
	in := &Input{Path: path, f: f}
	a, err := ar.NewReader(f)
	if err == nil {
		in.Archive = a
	} else if !models.IsMalformedMagic(err) {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "seek failed")
	}
	return in, nil
}

// File is the underlying stream, positioned at the start.
func (in *Input) File() io.ReadSeeker { return in.f }

// Members calls fn for every regular archive member, in archive order.
// Archive metadata such as the symbol index and name table is skipped.
func (in *Input) Members(fn func(h *ar.Header, r io.ReadSeeker) error) error {
	if in.Archive == nil {
		return errors.Errorf("%s is not an archive", in.Path)
	}
	a := in.Archive
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
		if err := fn(h, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}

func (in *Input) Close() error {
	return in.f.Close()
}
