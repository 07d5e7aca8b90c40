package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// entryOverhead is the per-entry length prefix on flash.
const entryOverhead = 8

func (a *app) infoCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("info", flag.ContinueOnError),
		Usage: "info",
		Short: "Show bank status and usage",
		Long: "Show the device, both banks with their counters and validity, the active\n" +
			"bank and how much of the capacity the entries use.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			printInfo(o, a.cfg.Device.Path, a.cfg.Device.Type, a.dev.Size(), env)

			return nil
		},
	}
}

func printInfo(o *IO, path, typ string, bankSize int, env *nvram.Env) {
	st := env.Status()

	o.Printf("device=%s (%s)\n", path, typ)
	o.Printf("bank_size=%s\n", humanize.IBytes(uint64(bankSize)))
	o.Printf("capacity=%s (%d bytes)\n", humanize.IBytes(uint64(st.Capacity)), st.Capacity)

	if st.Active == nvram.NoBank {
		o.Println("active=none")
	} else {
		o.Printf("active=bank %d\n", st.Active)
	}

	for bank := range flash.Banks {
		b := st.Banks[bank]
		if !b.Valid {
			o.Printf("bank %d: invalid (%s)\n", bank, b.Reason)

			continue
		}

		o.Printf("bank %d: valid counter=%d data=%s\n", bank, b.Header.Counter, humanize.IBytes(uint64(b.Header.DataSize)))
	}

	entries := env.List()

	used := 0
	for _, e := range entries {
		used += entryOverhead + len(e.Key) + len(e.Value)
	}

	percent := 0.0
	if st.Capacity > 0 {
		percent = 100 * float64(used) / float64(st.Capacity)
	}

	o.Printf("entries=%d used=%s (%s%%)\n", len(entries), humanize.IBytes(uint64(used)), humanize.FtoaWithDigits(percent, 1))

	if env.Dirty() {
		o.Println("uncommitted changes pending")
	}

	if st.CounterTie {
		o.Warn(
			fmt.Sprintf("both banks are valid with counter %d", st.Banks[0].Header.Counter),
			"run 'bootnv commit' after any change to resolve",
		)
	}
}
