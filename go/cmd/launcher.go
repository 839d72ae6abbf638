package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-runewidth"
)

type command struct {
	name, desc string
	main       func(args []string)
}

var commands map[string]*command
var order []string
var pad int

func init() { commands = make(map[string]*command) }

func Register(name, desc string, main func(args []string)) {
	if n := runewidth.StringWidth(name); n > pad {
		pad = n
	}
	commands[name] = &command{name, desc, main}
	order = append(order, name)
}

// Main dispatches on os.Args[1], or on the binary's own name when it is
// invoked through a link called after one of the tools.
func Main() {
	usage := func() {
		fmt.Fprintln(os.Stderr, "Commands:")
		for _, name := range order {
			cmd := commands[name]
			fmt.Fprintf(os.Stderr, "  %s | %s\n", runewidth.FillRight(cmd.name, pad), cmd.desc)
		}
		fmt.Fprintf(os.Stderr, "\nExample: %s nm -j 4 libfoo.a main.o\n\n", os.Args[0])
	}
	if cmd, ok := commands[filepath.Base(os.Args[0])]; ok {
		cmd.main(os.Args)
		return
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	} else {
		cmd, ok := commands[os.Args[1]]
		if ok {
			args := append([]string{strings.Join(os.Args[:2], " ")}, os.Args[2:]...)
			cmd.main(args)
		} else {
			fmt.Fprintf(os.Stderr, "Command '%s' not found.\n\n", os.Args[1])
			usage()
			os.Exit(1)
		}
	}
}
