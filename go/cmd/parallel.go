package cmd

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Each runs fn for every path with at most jobs running at once. Every
// call writes to its own buffer, and the buffers are copied to out in
// argument order. The returned slice holds each path's error.
func Each(out io.Writer, jobs int, paths []string, fn func(w io.Writer, path string) error) []error {
	if jobs < 1 {
		jobs = 1
	}
	bufs := make([]bytes.Buffer, len(paths))
	errs := make([]error, len(paths))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			errs[i] = fn(&bufs[i], path)
			return nil
		})
	}
	g.Wait()
	for i := range bufs {
		out.Write(bufs[i].Bytes())
	}
	return errs
}

// Run is Each that reports every failure through t and returns the exit
// status.
func (t *Tool) Run(paths []string, fn func(w io.Writer, path string) error) int {
	status := 0
	for i, err := range Each(t.Stdout(), t.Config.Jobs, paths, fn) {
		if err != nil {
			t.PrintError(errors.WithMessage(err, paths[i]))
			status = 1
		}
	}
	return status
}
