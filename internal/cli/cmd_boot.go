package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bootnv/pkg/nvram"
)

func (a *app) bootCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("boot", flag.ContinueOnError),
		Usage: "boot",
		Short: "Select the slot to boot and consume one attempt",
		Long: "Select the slot to boot from BOOT_ORDER and the retry counters, decrement\n" +
			"the chosen counter and commit it before printing the result. Missing or\n" +
			"corrupt bookkeeping is reinitialized from defaults.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			sel, err := env.SelectBootSlot()
			if err != nil {
				return err
			}

			o.Println("slot=" + string(sel.Slot))
			o.Printf("partition=%d\n", sel.Partition)
			o.Println(nvram.KeyBootOrder + "=" + sel.Order)
			o.Printf("%s=%d\n", nvram.KeyBootALeft, sel.Left[nvram.SlotA])
			o.Printf("%s=%d\n", nvram.KeyBootBLeft, sel.Left[nvram.SlotB])

			return nil
		},
	}
}

func (a *app) initCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("init", flag.ContinueOnError),
		Usage: "init",
		Short: "Reset boot bookkeeping to defaults",
		Long: "Write BOOT_ORDER for the configured running partition and both retry\n" +
			"counters at the default budget, then commit.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			env, err := a.open()
			if err != nil {
				return err
			}

			err = env.ReinitializeDefaults()
			if err != nil {
				return err
			}

			for _, key := range []string{nvram.KeyBootOrder, nvram.KeyBootALeft, nvram.KeyBootBLeft} {
				value, err := env.Get(key)
				if err != nil {
					return err
				}

				o.Println(key + "=" + value)
			}

			return nil
		},
	}
}
