package models

import (
	"fmt"
)

// Diag receives human-readable descriptions of structural problems
// found while decoding. A nil Diag discards them.
type Diag func(msg string)

func (d Diag) Printf(format string, a ...interface{}) {
	if d != nil {
		d(fmt.Sprintf(format, a...))
	}
}

// DiagBuffer collects messages until Flush is called.
type DiagBuffer struct {
	msgs []string
}

func (b *DiagBuffer) Diag() Diag {
	return func(msg string) { b.msgs = append(b.msgs, msg) }
}

func (b *DiagBuffer) Flush(to Diag) {
	if to != nil {
		for _, m := range b.msgs {
			to(m)
		}
	}
	b.msgs = nil
}

func (b *DiagBuffer) Messages() []string { return b.msgs }
