// Package main provides the crd command line client.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/kailas-cloud/crd"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "crd:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode separates problems the user can fix from upstream failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, crd.ErrInvalidRequest),
		errors.Is(err, crd.ErrConstruction),
		errors.Is(err, crd.ErrService),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}
