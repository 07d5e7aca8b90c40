package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

func (a *app) commitCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("commit", flag.ContinueOnError),
		Usage: "commit",
		Short: "Write pending changes to the inactive bank",
		Long: "Write pending changes to the inactive bank. Single commands commit on\n" +
			"their own; this is mostly useful in the shell.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			if !env.Dirty() {
				o.Println("nothing to commit")

				return nil
			}

			err = env.Commit()
			if err != nil {
				return err
			}

			st := env.Status()
			o.Printf("committed to bank %d (counter %d)\n", st.Active, st.Banks[st.Active].Header.Counter)

			return nil
		},
	}
}

// errClearNotConfirmed is returned by clear without --yes.
var errClearNotConfirmed = fmt.Errorf("%w: clear erases both banks; pass --yes to confirm", ErrUsage)

func (a *app) clearCmd() *Command {
	flags := flag.NewFlagSet("clear", flag.ContinueOnError)
	yes := flags.BoolP("yes", "y", false, "Confirm erasing both banks")

	return &Command{
		Flags: flags,
		Usage: "clear --yes",
		Short: "Erase both banks (factory reset)",
		Long: "Erase both banks. All entries, including boot bookkeeping, are lost;\n" +
			"the next boot reinitializes defaults.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			if !*yes {
				return errClearNotConfirmed
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			err = env.Clear()
			if err != nil {
				return err
			}

			o.Println("cleared")

			return nil
		},
	}
}
