package loader

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

var UnknownMagic = errors.Wrap(models.ErrMalformedMagic, "could not identify file magic")

type decoder struct {
	format models.Format
	open   func(r io.ReadSeeker, diag models.Diag) (models.Object, error)
}

// formats are tried in this order.
var decoders = []decoder{
	{models.FormatElf, func(r io.ReadSeeker, d models.Diag) (models.Object, error) { return OpenElf(r, d) }},
	{models.FormatPe, func(r io.ReadSeeker, d models.Diag) (models.Object, error) { return OpenPe(r, d) }},
	{models.FormatAof, func(r io.ReadSeeker, d models.Diag) (models.Object, error) { return OpenAof(r, d) }},
}

func LoadFile(path string, diag models.Diag) (models.Object, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return Load(bytes.NewReader(p), diag)
}

// Load tries each decoder in turn. Only a magic mismatch moves on to the
// next one; any other failure is returned, with that decoder's diagnostics.
func Load(r io.ReadSeeker, diag models.Diag) (models.Object, error) {
	for _, d := range decoders {
		var buf models.DiagBuffer
		obj, err := d.open(r, buf.Diag())
		if err == nil {
			buf.Flush(diag)
			return obj, nil
		}
		if models.IsMalformedMagic(err) {
			continue
		}
		buf.Flush(diag)
		return nil, errors.Wrap(err, d.format.String())
	}
	return nil, errors.WithStack(UnknownMagic)
}

// Sniff reports which object format r holds without decoding it.
func Sniff(r io.ReadSeeker) models.Format {
	switch {
	case MatchElf(r):
		return models.FormatElf
	case MatchPe(r):
		return models.FormatPe
	case MatchAof(r):
		return models.FormatAof
	}
	return models.FormatUnknown
}
