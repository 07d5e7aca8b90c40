package cli

import (
	"fmt"
	"io"
)

// IO is a command's view of stdout and stderr.
//
// Warnings collected with [IO.Warn] are written to stderr twice: before
// the first stdout line and again by [IO.Finish]. A long listing piped
// into head still shows them, and so does the tail of a terminal.
type IO struct {
	out      io.Writer
	errOut   io.Writer
	warnings []string
	started  bool
}

func NewIO(out, errOut io.Writer) *IO {
	return &IO{out: out, errOut: errOut}
}

// Warn records a problem the operator should act on, e.g. a counter tie.
// Any warning makes [IO.Finish] return exit code 1.
func (o *IO) Warn(issue string, action string) {
	o.warnings = append(o.warnings, issue+": "+action)
}

func (o *IO) Println(a ...any) {
	o.begin()
	_, _ = fmt.Fprintln(o.out, a...)
}

func (o *IO) Printf(format string, a ...any) {
	o.begin()
	_, _ = fmt.Fprintf(o.out, format, a...)
}

func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Finish repeats the warnings at the end of the output and returns the
// exit code for a command that otherwise succeeded.
func (o *IO) Finish() int {
	o.begin()
	o.printWarnings()

	if len(o.warnings) == 0 {
		return 0
	}

	return 1
}

// begin prints pending warnings once, ahead of the first stdout write.
func (o *IO) begin() {
	if o.started || len(o.warnings) == 0 {
		return
	}

	o.started = true
	o.printWarnings()
}

func (o *IO) printWarnings() {
	for _, w := range o.warnings {
		_, _ = fmt.Fprintln(o.errOut, "warning:", w)
	}
}
