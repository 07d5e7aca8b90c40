package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bootnv/internal/config"
)

func (a *app) printConfigCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			execPrintConfig(o, a.cfg)

			return nil
		},
	}
}

func execPrintConfig(o *IO, cfg config.Config) {
	o.Println(config.Format(cfg))
	o.Println("")
	o.Println("# sources")

	if cfg.Sources.System == "" && cfg.Sources.Explicit == "" {
		o.Println("(defaults only)")

		return
	}

	if cfg.Sources.System != "" {
		o.Println("system_config=" + cfg.Sources.System)
	}

	if cfg.Sources.Explicit != "" {
		o.Println("explicit_config=" + cfg.Sources.Explicit)
	}
}
