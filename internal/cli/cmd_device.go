package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// defaultImageSize is the size "image create" uses without --size.
const defaultImageSize = "64KiB"

func (a *app) dumpCmd() *Command {
	flags := flag.NewFlagSet("dump", flag.ContinueOnError)
	bank := flags.IntP("bank", "b", -1, "Bank to dump (default: the active bank, or 0)")

	return &Command{
		Flags: flags,
		Usage: "dump <file> [--bank N]",
		Short: "Export a raw bank to a file",
		Long: "Copy the raw contents of one bank to a file. The file is replaced\n" +
			"atomically, so an interrupted dump never leaves a partial export.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 1, "<file>")
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			b := *bank
			if b < 0 {
				b = max(env.Status().Active, 0)
			}

			if b >= flash.Banks {
				return fmt.Errorf("%w: bank %d (want 0 or 1)", ErrUsage, b)
			}

			buf := make([]byte, a.dev.Size())

			err = a.dev.ReadBank(b, buf)
			if err != nil {
				return fmt.Errorf("read bank %d: %w", b, err)
			}

			err = a.fsys.WriteFileAtomic(args[0], buf, 0o644)
			if err != nil {
				return err
			}

			o.Printf("wrote %s from bank %d to %s\n", humanize.IBytes(uint64(len(buf))), b, args[0])

			return nil
		},
	}
}

func (a *app) selfTestCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("test", flag.ContinueOnError),
		Usage: "test <len>",
		Short: "Write, read back and compare random data on the inactive bank",
		Long: "Write len random bytes to the inactive bank, read them back and compare.\n" +
			"The active bank is not touched. The tested bank is invalid afterwards\n" +
			"and is rewritten by the next commit.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 1, "<len>")
			if err != nil {
				return err
			}

			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: invalid length %q", ErrUsage, args[0])
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			err = env.SelfTest(n)
			if err != nil {
				return err
			}

			o.Printf("self-test passed: %s\n", humanize.IBytes(uint64(n)))

			return nil
		},
	}
}

func (a *app) imageCmd() *Command {
	flags := flag.NewFlagSet("image", flag.ContinueOnError)
	size := flags.StringP("size", "s", defaultImageSize, "Image size, both banks together (e.g. 8KiB, 1MiB)")

	return &Command{
		Flags: flags,
		Usage: "image create <path> [--size N]",
		Short: "Create an erased flash image file",
		Long: "Create a flash image filled with 0xFF. Bank 1 starts at half the size.\n" +
			"Use it with --device-type image.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] != "create" {
				return fmt.Errorf("%w: want 'image create <path>'", ErrUsage)
			}

			err := exactArgs(args[1:], 1, "<path>")
			if err != nil {
				return err
			}

			n, err := humanize.ParseBytes(*size)
			if err != nil {
				return fmt.Errorf("%w: invalid size %q: %w", ErrUsage, *size, err)
			}

			if n < 2*nvram.HeaderSize || n > 1<<30 {
				return fmt.Errorf("%w: size %s outside %d B..1 GiB", ErrUsage, *size, 2*nvram.HeaderSize)
			}

			err = flash.CreateImage(a.fsys, args[1], int(n))
			if err != nil {
				return err
			}

			o.Printf("created %s (%s, 2 banks of %s)\n", args[1], humanize.IBytes(n), humanize.IBytes(n/2))

			return nil
		},
	}
}
