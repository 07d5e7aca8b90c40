package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) listCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("list", flag.ContinueOnError),
		Usage: "list",
		Short: "Print all entries as key=value",
		Long:  "Print every entry of the active bank as key=value, in storage order.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			for _, e := range env.List() {
				o.Println(e.Key + "=" + e.Value)
			}

			return nil
		},
	}
}

func (a *app) getCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("get", flag.ContinueOnError),
		Usage: "get <key>",
		Short: "Print the value of key",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 1, "<key>")
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			value, err := env.Get(args[0])
			if err != nil {
				return err
			}

			o.Println(value)

			return nil
		},
	}
}

func (a *app) setCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("set", flag.ContinueOnError),
		Usage: "set <key> <value>",
		Short: "Set key to value and commit",
		Long: "Set key to value and commit immediately. Keys and values are limited\n" +
			"to 255 bytes. Setting the value a key already holds writes nothing.",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			err := exactArgs(args, 2, "<key>", "<value>")
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			err = env.Set(args[0], args[1])
			if err != nil {
				return err
			}

			return env.Commit()
		},
	}
}

func (a *app) deleteCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <key>",
		Short: "Delete key and commit",
		Exec: func(_ context.Context, _ *IO, args []string) error {
			err := exactArgs(args, 1, "<key>")
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			err = env.Delete(args[0])
			if err != nil {
				return err
			}

			return env.Commit()
		},
	}
}
