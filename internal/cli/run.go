package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/bootnv/internal/config"
	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/fs"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// ErrUsage indicates wrong command arguments.
var ErrUsage = errors.New("usage")

// Run is the main entry point. Returns exit code.
//
// args[0] is the program name. sigCh may be nil; when it fires the context
// passed to commands is cancelled.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := flag.NewFlagSet("bootnv", flag.ContinueOnError)
	globals.SetInterspersed(false)
	globals.SetOutput(&strings.Builder{})

	configPath := globals.StringP("config", "c", "", "Use specified config file")
	device := globals.String("device", "", "Flash device or image path")
	deviceType := globals.String("device-type", "", "Device type: mtd or image")
	verbose := globals.BoolP("verbose", "v", false, "Log debug output to stderr")
	quiet := globals.BoolP("quiet", "q", false, "Log errors only")
	help := globals.BoolP("help", "h", false, "Show help")

	if len(args) > 0 {
		args = args[1:]
	}

	err := globals.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	rest := globals.Args()
	if *help || len(rest) == 0 {
		printUsage(out)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		ConfigPath:     *configPath,
		DeviceOverride: *device,
		TypeOverride:   *deviceType,
		Env:            env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{
		cfg:  cfg,
		log:  newLogger(errOut, *verbose, *quiet),
		in:   in,
		fsys: fs.NewReal(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	o := NewIO(out, errOut)
	code := a.dispatch(ctx, o, rest, out, errOut)

	closeErr := a.close()
	if closeErr != nil {
		fprintln(errOut, "error:", closeErr)

		return 1
	}

	return code
}

// dispatch runs one command line and returns its exit code.
func (a *app) dispatch(ctx context.Context, o *IO, rest []string, out, errOut io.Writer) int {
	name := rest[0]
	if name == "help" {
		printUsage(out)

		return 0
	}

	cmd := a.command(name)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut)

		return 1
	}

	code := cmd.Run(ctx, o, rest[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

func newLogger(w io.Writer, verbose, quiet bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)

	switch {
	case verbose:
		logger.SetLevel(logrus.DebugLevel)
	case quiet:
		logger.SetLevel(logrus.ErrorLevel)
	}

	return logger
}

// app carries what the commands of one invocation share. The nvram
// environment is opened on first use and kept open, so that a shell
// session works on one loaded store.
type app struct {
	cfg  config.Config
	log  *logrus.Logger
	in   io.Reader
	fsys fs.FS

	dev  flash.Device
	env  *nvram.Env
	lock *fs.Lock
}

// deviceLockTimeout bounds the wait for another bootnv process to release
// the device.
const deviceLockTimeout = 5 * time.Second

// commands returns a fresh command table. Flag sets are single-use, so
// every command line gets new ones.
func (a *app) commands() []*Command {
	return []*Command{
		a.listCmd(),
		a.getCmd(),
		a.setCmd(),
		a.deleteCmd(),
		a.commitCmd(),
		a.clearCmd(),
		a.bootCmd(),
		a.initCmd(),
		a.infoCmd(),
		a.dumpCmd(),
		a.selfTestCmd(),
		a.imageCmd(),
		a.shellCmd(),
		a.printConfigCmd(),
	}
}

func (a *app) command(name string) *Command {
	for _, c := range a.commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

// open returns the nvram environment, opening the device on first use.
func (a *app) open() (*nvram.Env, error) {
	if a.env != nil {
		return a.env, nil
	}

	if a.cfg.Device.Path == "" {
		return nil, config.ErrNoDevice
	}

	lock, err := fs.NewLocker(a.fsys).LockWithTimeout(a.cfg.Device.Path, deviceLockTimeout)
	if err != nil {
		return nil, err
	}

	dev, err := a.openDevice()
	if err != nil {
		return nil, errors.Join(err, lock.Close())
	}

	opts := a.cfg.Options()
	opts.Logger = a.log

	env, err := nvram.Open(dev, opts)
	if err != nil {
		return nil, errors.Join(err, dev.Close(), lock.Close())
	}

	a.dev = dev
	a.env = env
	a.lock = lock

	return env, nil
}

func (a *app) openDevice() (flash.Device, error) {
	path := a.cfg.Device.Path

	switch a.cfg.Device.Type {
	case config.DeviceImage:
		img, err := flash.OpenImage(path, flash.ImageOptions{FS: a.fsys, EraseSize: a.cfg.Device.EraseSize})
		if err != nil {
			return nil, err
		}

		return img, nil
	case config.DeviceMTD:
		mtd, err := flash.OpenMTD(path, flash.MTDOptions{FS: a.fsys})
		if err != nil {
			return nil, err
		}

		return mtd, nil
	default:
		return nil, fmt.Errorf("%w: device.type %q", config.ErrConfigInvalid, a.cfg.Device.Type)
	}
}

func (a *app) close() error {
	if a.env == nil {
		return nil
	}

	err := errors.Join(a.env.Close(), a.lock.Close())
	a.env = nil
	a.dev = nil
	a.lock = nil

	return err
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	fprintln(w, `bootnv - power-fail-safe boot slot storage on raw flash

Usage: bootnv [options] <command> [args]

Options:
  -c, --config <file>    Use specified config file
      --device <path>    Flash device or image path
      --device-type <t>  Device type: mtd or image
  -v, --verbose          Log debug output to stderr
  -q, --quiet            Log errors only

Commands:`)

	a := &app{}
	for _, c := range a.commands() {
		fprintln(w, c.HelpLine())
	}
}
