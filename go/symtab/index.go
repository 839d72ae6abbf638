// Package symtab implements a fixed-bucket symbol name index.
//
// Names are stored as slices that borrow the decoded string table they
// were cut from; the index must not outlive the object that owns it.
package symtab

import (
	"bytes"
	"hash/fnv"
)

type Entry[T any] struct {
	Name []byte
	Ref  T
}

type Index[T any] struct {
	buckets [][]Entry[T]
	count   int
}

// New returns an index with n buckets. n < 1 is treated as 1.
func New[T any](n int) *Index[T] {
	if n < 1 {
		n = 1
	}
	return &Index[T]{buckets: make([][]Entry[T], n)}
}

// Hash is 64-bit FNV-1a over the raw name bytes.
func Hash(name []byte) uint64 {
	h := fnv.New64a()
	h.Write(name)
	return h.Sum64()
}

func (x *Index[T]) bucket(name []byte) int {
	return int(Hash(name) % uint64(len(x.buckets)))
}

// Insert appends ref under name. Duplicate names are kept in insertion order.
func (x *Index[T]) Insert(name []byte, ref T) {
	b := x.bucket(name)
	x.buckets[b] = append(x.buckets[b], Entry[T]{Name: name, Ref: ref})
	x.count++
}

// Lookup returns the first ref inserted under exactly name.
func (x *Index[T]) Lookup(name []byte) (T, bool) {
	for _, e := range x.buckets[x.bucket(name)] {
		if len(e.Name) == len(name) && bytes.Equal(e.Name, name) {
			return e.Ref, true
		}
	}
	var zero T
	return zero, false
}

// LookupAll returns every ref inserted under name, oldest first.
func (x *Index[T]) LookupAll(name []byte) []T {
	var ret []T
	for _, e := range x.buckets[x.bucket(name)] {
		if bytes.Equal(e.Name, name) {
			ret = append(ret, e.Ref)
		}
	}
	return ret
}

func (x *Index[T]) Len() int     { return x.count }
func (x *Index[T]) Buckets() int { return len(x.buckets) }
