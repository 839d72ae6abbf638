// Package link collects the symbols of several AOF objects into one index,
// the groundwork for resolving references between them.
package link

import (
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/loader"
	"github.com/alex-s168/ubinutils/go/symtab"
)

const buckets = 32

var ErrNotImplemented = errors.New("link: symbol deduplication is not implemented")

type Ref struct {
	Obj int
	Sym int
}

type Table struct {
	Objs  []*loader.AofFile
	Names []string
	index *symtab.Index[Ref]
}

func NewTable() *Table {
	return &Table{index: symtab.New[Ref](buckets)}
}

// Add indexes every symbol of obj. The table keeps obj, whose name
// storage the index entries borrow, until the table is dropped.
func (t *Table) Add(name string, obj *loader.AofFile) int {
	id := len(t.Objs)
	t.Objs = append(t.Objs, obj)
	t.Names = append(t.Names, name)
	for i := range obj.Syms {
		t.index.Insert(obj.Syms[i].Name, Ref{Obj: id, Sym: i})
	}
	return id
}

// Lookup returns every symbol called name, definitions and references
// alike, in the order the objects were added.
func (t *Table) Lookup(name string) []Ref {
	return t.index.LookupAll([]byte(name))
}

func (t *Table) Symbol(r Ref) *loader.AofSymbol {
	return &t.Objs[r.Obj].Syms[r.Sym]
}

func (t *Table) Len() int { return t.index.Len() }

// Dedup would merge multiple definitions, weak and common symbols across
// objects. Those rules are not settled yet.
func (t *Table) Dedup() error {
	return ErrNotImplemented
}

func (t *Table) Close() error {
	var first error
	for _, obj := range t.Objs {
		if err := obj.Close(); err != nil && first == nil {
			first = err
		}
	}
	t.Objs = nil
	return first
}
