package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

const shellPrompt = "bootnv> "

var errShellFailures = errors.New("shell: commands failed")

// lineReader is the part of liner the shell uses. Non-terminal input is
// read through scannerReader instead, so scripts can be piped in.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

type scannerReader struct {
	sc *bufio.Scanner
}

func (s *scannerReader) Prompt(string) (string, error) {
	if !s.sc.Scan() {
		err := s.sc.Err()
		if err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return s.sc.Text(), nil
}

func (*scannerReader) AppendHistory(string) {}

func (*scannerReader) Close() error { return nil }

func (a *app) shellCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Run commands interactively on one loaded store",
		Long: "Read commands line by line and run them against one opened store.\n" +
			"Changes made with set and delete are committed per command; use\n" +
			"'exit' or Ctrl-D to leave. Reads a script when stdin is not a terminal.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			err := exactArgs(args, 0)
			if err != nil {
				return err
			}

			return a.runShell(ctx, o)
		},
	}
}

func (a *app) runShell(ctx context.Context, o *IO) error {
	r, interactive := a.lineReader()
	defer func() { _ = r.Close() }()

	if interactive {
		a.loadHistory(r.(*liner.State))
		defer a.saveHistory(r.(*liner.State))

		o.Println("bootnv shell. Type 'help' for commands, 'exit' to leave.")
	}

	failed := 0

	for ctx.Err() == nil {
		line, err := r.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r.AppendHistory(line)

		fields := strings.Fields(line)

		switch fields[0] {
		case "exit", "quit":
			return shellResult(failed)
		case "help", "?":
			a.printShellHelp(o)

			continue
		case "shell":
			o.ErrPrintln("error: already in a shell")

			failed++

			continue
		}

		cmd := a.command(fields[0])
		if cmd == nil {
			o.ErrPrintln("error: unknown command:", fields[0])

			failed++

			continue
		}

		lineIO := NewIO(o.out, o.errOut)

		code := cmd.Run(ctx, lineIO, fields[1:])
		if code == 0 {
			code = lineIO.Finish()
		}

		if code != 0 {
			failed++
		}
	}

	return shellResult(failed)
}

func shellResult(failed int) error {
	if failed == 0 {
		return nil
	}

	return fmt.Errorf("%w: %d", errShellFailures, failed)
}

func (a *app) lineReader() (lineReader, bool) {
	if f, ok := a.in.(*os.File); ok && f == os.Stdin && liner.TerminalSupported() {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(a.completeCommand)

		return state, true
	}

	in := a.in
	if in == nil {
		in = strings.NewReader("")
	}

	return &scannerReader{sc: bufio.NewScanner(in)}, false
}

func (a *app) completeCommand(line string) []string {
	var out []string

	for _, c := range a.commands() {
		if c.Name() != "shell" && strings.HasPrefix(c.Name(), line) {
			out = append(out, c.Name())
		}
	}

	return out
}

func (a *app) printShellHelp(o *IO) {
	o.Println("Commands:")

	for _, c := range a.commands() {
		if c.Name() == "shell" {
			continue
		}

		o.Println(c.HelpLine())
	}

	o.Println("  exit                         Leave the shell")
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".bootnv_history")
}

func (a *app) loadHistory(state *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}

	data, err := a.fsys.ReadFile(path)
	if err != nil {
		return
	}

	_, _ = state.ReadHistory(bytes.NewReader(data))
}

func (a *app) saveHistory(state *liner.State) {
	path := historyFile()
	if path == "" {
		return
	}

	var buf bytes.Buffer

	_, err := state.WriteHistory(&buf)
	if err != nil {
		return
	}

	err = a.fsys.WriteFileAtomic(path, buf.Bytes(), 0o600)
	if err != nil {
		a.log.WithError(err).Debug("saving shell history")
	}
}
