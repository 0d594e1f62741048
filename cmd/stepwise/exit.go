package main

import (
	"errors"
	"fmt"
	"io"
)

const (
	exitHalted  = 1
	exitFailure = 2
)

// exitError carries a process exit code. An empty message means the
// command already reported the outcome.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.msg
}

func halted(msg string) error { return &exitError{code: exitHalted, msg: msg} }

// reportError prints err and returns the exit code for it.
func reportError(w io.Writer, err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintf(w, "Error: %s\n", ee.msg)
		}
		return ee.code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return exitFailure
}
