package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// helpColumn is the width of the usage column in command listings.
const helpColumn = 28

// Command is one bootnv subcommand.
type Command struct {
	Flags *flag.FlagSet

	// Usage starts with the command name, followed by its arguments,
	// e.g. "set <key> <value>". The FlagSet name is ignored.
	Usage string

	Short string

	// Long is shown by "bootnv <cmd> --help". Short is used when empty.
	Long string

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine formats c for the command listing of the main usage and the
// shell's help.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-*s %s", helpColumn, c.Usage, c.Short)
}

func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: bootnv", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	var defaults strings.Builder

	c.Flags.SetOutput(&defaults)
	c.Flags.PrintDefaults()

	o.Println()
	o.Println("Flags:")
	o.Printf("%s", defaults.String())
}

// Run parses args into c.Flags and calls Exec with the remaining
// positional arguments. Errors are printed to o; the result is the exit
// code. A parse error also prints the command's help.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	// pflag prints its own errors and usage unless silenced.
	c.Flags.SetOutput(&strings.Builder{})

	switch err := c.Flags.Parse(args); {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o)

		return 0
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	err := c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return 0
}

// exactArgs fails with [ErrUsage] unless len(args) == n. names describe
// the expected arguments in the message.
func exactArgs(args []string, n int, names ...string) error {
	switch {
	case len(args) == n:
		return nil
	case n == 0:
		return fmt.Errorf("%w: want no arguments, got %d", ErrUsage, len(args))
	default:
		return fmt.Errorf("%w: want %s, got %d argument(s)", ErrUsage, strings.Join(names, " "), len(args))
	}
}
