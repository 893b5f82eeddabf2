// Copyright (C) The Metharray Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package metharray

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// version is reported by the version subcommand. Release builds
// override it with -ldflags "-X github.com/exposomics/metharray.version=...".
var version = "development"

// A commandHandler runs one subcommand. Exit codes follow the usual
// convention: 0 success, 1 runtime error, 2 usage error.
type commandHandler interface {
	RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int
}

var handlers = map[string]commandHandler{
	"version":   versioncmd{},
	"-version":  versioncmd{},
	"--version": versioncmd{},

	"import":     &importer{},
	"qc":         &qccmd{},
	"preprocess": &preprocesscmd{},
	"pca":        &pcacmd{},
	"aggregate":  &aggregator{},
}

type versioncmd struct{}

func (versioncmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if i := strings.Index(prog, " "); i >= 0 {
		prog = prog[:i]
	}
	fmt.Fprintf(stdout, "%s %s (%s)\n", filepath.Base(prog), version, runtime.Version())
	return 0
}

// runCommand dispatches to the subcommand named by args[0].
func runCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "usage: %s <command> [options]\n", prog)
		usage(stderr)
		return 2
	}
	cmd, ok := handlers[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "%s: unrecognized command %q\n", prog, args[0])
		usage(stderr)
		return 2
	}
	return cmd.RunCommand(prog+" "+args[0], args[1:], stdin, stdout, stderr)
}

func usage(w io.Writer) {
	var names []string
	for name := range handlers {
		if !strings.HasPrefix(name, "-") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	fmt.Fprintf(w, "\nAvailable commands:\n")
	for _, name := range names {
		fmt.Fprintf(w, "    %s\n", name)
	}
}

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		logrus.StandardLogger().Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(runCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
