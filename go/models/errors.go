package models

import (
	"github.com/pkg/errors"
)

// Decoder failures. Only ErrMalformedMagic means "try the next format".
var (
	ErrMalformedMagic      = errors.New("malformed magic")
	ErrTruncatedRead       = errors.New("truncated read")
	ErrAllocation          = errors.New("allocation failure")
	ErrInvalidField        = errors.New("invalid field")
	ErrMissingChunk        = errors.New("missing required chunk")
	ErrUnresolvedReference = errors.New("unresolved reference")
)

func IsMalformedMagic(err error) bool {
	return errors.Is(err, ErrMalformedMagic)
}
