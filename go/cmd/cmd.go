// Package cmd holds the launcher and the plumbing shared by every tool:
// flags layered over the user config, logging, colors and error output.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/pkg/errors"

	"github.com/alex-s168/ubinutils/go/models"
)

type Tool struct {
	Name   string
	Config *models.Config
	Flags  *flag.FlagSet
	Log    *log.Logger

	synopsis string
	color    string
	verbose  bool
	jobs     *int

	outColor, errColor bool
}

// NewTool prepares the flag set for one tool. The config file supplies the
// defaults, so flags parsed later override it.
func NewTool(name, synopsis string) *Tool {
	config, err := models.LoadConfig()
	t := &Tool{Name: name, synopsis: synopsis}
	t.Log = log.New(os.Stderr, name+": ", 0)
	if err != nil {
		t.Log.Printf("ignoring config: %v", err)
		config = models.DefaultConfig()
	}
	t.Config = config

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.BoolVar(&t.verbose, "v", config.Verbose, "verbose output, with stack traces on errors")
	fs.StringVar(&t.color, "color", config.Color, "colorize output: auto, always or never")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] %s\n\nOptions:\n", name, t.synopsis)
		models.PrintFlags(os.Stderr, fs)
	}
	t.Flags = fs
	return t
}

// JobsFlag adds -j, the number of inputs decoded at once.
func (t *Tool) JobsFlag() {
	t.jobs = t.Flags.Int("j", t.Config.Jobs, "decode up to this many files in parallel")
}

// Parse parses args (which still include the program name) and returns
// the positional arguments.
func (t *Tool) Parse(args []string) []string {
	if len(args) > 0 {
		t.Flags.Parse(args[1:])
	}
	switch t.color {
	case models.ColorAuto, models.ColorAlways, models.ColorNever:
		t.Config.Color = t.color
	default:
		t.Log.Printf("invalid -color %q", t.color)
		t.Flags.Usage()
		os.Exit(2)
	}
	t.Config.Verbose = t.verbose
	if t.jobs != nil {
		t.Config.Jobs = *t.jobs
		if t.Config.Jobs < 1 {
			t.Config.Jobs = 1
		}
	}
	t.outColor = t.Config.Output == nil && t.Config.UseColor(os.Stdout)
	t.errColor = t.Config.Errout == nil && t.Config.UseColor(os.Stderr)
	t.Log.SetOutput(t.Config.Stderr())
	if t.errColor {
		t.Log.SetPrefix(ansi.Color(t.Name+":", "white+b") + " ")
	}
	return t.Flags.Args()
}

func (t *Tool) Stdout() io.Writer { return t.Config.Stdout() }

// Heading colors s for stdout when color output is on.
func (t *Tool) Heading(s string) string {
	if t.outColor {
		return ansi.Color(s, "cyan+b")
	}
	return s
}

// Diag returns a diagnostic sink that logs under the tool name.
func (t *Tool) Diag(path string) models.Diag {
	return func(msg string) {
		t.Warnf("%s: %s", path, msg)
	}
}

func (t *Tool) Warnf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if t.errColor {
		msg = ansi.Color(msg, "yellow")
	}
	t.Log.Print(msg)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// PrintError logs err. In verbose mode it also prints the innermost stack
// trace pkg/errors recorded.
func (t *Tool) PrintError(err error) {
	msg := err.Error()
	if t.errColor {
		msg = ansi.Color(msg, "red")
	}
	t.Log.Print(msg)
	if !t.Config.Verbose {
		return
	}
	var tracer stackTracer
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			tracer = st
		}
	}
	if tracer == nil {
		return
	}
	w := t.Config.Stderr()
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	// parse full path and method name for each stack frame
	var frames [][]string
	for _, f := range tracer.StackTrace() {
		fullpath := ""
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)

		frame := fmt.Sprintf("%+s", f)
		tmp := strings.SplitN(frame, "\n", 3)
		if len(tmp) == 2 {
			pathsplit := strings.Split(tmp[0], "/")
			method = pathsplit[len(pathsplit)-1]
			fullpath = strings.TrimSpace(tmp[1])
		}
		frames = append(frames, []string{fullpath, fileline, method})
		if method == "main.main" {
			break
		}
	}
	widths := make([]int, 2)
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if len(f[i]) > widths[i] {
				widths[i] = len(f[i])
			}
		}
	}
	for _, f := range frames {
		for i := 0; i < 2; i++ {
			if widths[i] > 0 {
				fmt.Fprintf(w, "%s%s | ", f[i], strings.Repeat(" ", widths[i]-len(f[i])))
			}
		}
		fmt.Fprintf(w, "%s()\n", f[2])
	}
}

// Usage prints the usage text and exits with status 1.
func (t *Tool) Usage() {
	t.Flags.Usage()
	os.Exit(1)
}
