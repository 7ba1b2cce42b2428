// Command capture runs another command with its standard output and error
// streams captured through a pseudo terminal, optionally relaying the output
// to the real terminal in real time, and emits or saves the captured output
// once the command exits. The exit code mirrors the command's.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	capturer "github.com/joeycumines/go-capturer"
	"golang.org/x/term"
)

func main() {
	code, err := run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run() (int, error) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	split := fs.Bool("split", false, "capture stdout and stderr separately")
	quiet := fs.Bool("quiet", false, "do not relay captured output to the terminal")
	encoding := fs.String("encoding", capturer.DefaultEncoding, "IANA `name` of the encoding used to decode captured output")
	chunkSize := fs.Int("chunk-size", capturer.DefaultChunkSize, "maximum `bytes` per drain read")
	delay := fs.Duration("delay", capturer.DefaultTerminationDelay, "drain delay before capture stops")
	raw := fs.Bool("raw", false, "emit raw captured bytes instead of interpreted text")
	output := fs.String("o", "", "write captured output to `path` (split mode appends .stdout/.stderr)")
	show := fs.Bool("print", false, "print the captured output after the command exits")
	verbose := fs.Bool("v", false, "enable debug logging")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: capture [flags] -- command [args...]")
		_, _ = fmt.Fprintln(os.Stderr, "\nRuns a command with stdout/stderr captured through a pseudo terminal.")
		_, _ = fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 2, errors.New("no command given")
	}

	quietSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "quiet" {
			quietSet = true
		}
	})

	opts := capturer.Options{
		Split:            *split,
		NoRelay:          relayDisabled(quietSet, *quiet, term.IsTerminal(int(os.Stderr.Fd()))),
		Encoding:         *encoding,
		TerminationDelay: *delay,
		ChunkSize:        *chunkSize,
	}
	if *verbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	capture := capturer.New(opts)
	if err := capture.StartCapture(); err != nil {
		return 1, fmt.Errorf("start capture: %w", err)
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	runErr := cmd.Run()

	if err := capture.FinishCapture(); err != nil {
		return 1, fmt.Errorf("finish capture: %w", err)
	}

	if err := emit(capture, *split, *raw, *output, *show); err != nil {
		return 1, err
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if runErr != nil {
		return 1, fmt.Errorf("run %s: %w", args[0], runErr)
	}
	return 0, nil
}

// relayDisabled decides whether live relay is off: an explicit -quiet value
// always wins (so -quiet=false forces relay even without a tty), otherwise
// relay is only kept when stderr is a real terminal.
func relayDisabled(quietSet, quiet, terminal bool) bool {
	if quietSet {
		return quiet
	}
	return !terminal
}

// emit writes the captured output to the requested destinations. Capture is
// already finished, so the descriptors are restored and everything below
// reaches the real terminal or filesystem.
func emit(capture *capturer.CaptureOutput, split, raw bool, output string, show bool) error {
	type sink struct {
		handle interface {
			Bytes(partial bool) ([]byte, error)
			Text(interpreted, partial bool) (string, error)
			SaveToPath(path string, partial bool) error
		}
		path string
	}
	var sinks []sink
	if split {
		stdout, err := capture.Stdout()
		if err != nil {
			return err
		}
		stderr, err := capture.Stderr()
		if err != nil {
			return err
		}
		if output != "" {
			sinks = append(sinks,
				sink{stdout, output + ".stdout"},
				sink{stderr, output + ".stderr"})
		} else {
			sinks = append(sinks, sink{stdout, ""}, sink{stderr, ""})
		}
	} else {
		sinks = append(sinks, sink{capture, output})
	}

	for _, s := range sinks {
		if s.path != "" {
			if err := s.handle.SaveToPath(s.path, false); err != nil {
				return err
			}
		}
		if show {
			if raw {
				data, err := s.handle.Bytes(false)
				if err != nil {
					return err
				}
				if _, err := os.Stdout.Write(data); err != nil {
					return err
				}
				continue
			}
			text, err := s.handle.Text(true, false)
			if err != nil {
				return err
			}
			if _, err := fmt.Println(text); err != nil {
				return err
			}
		}
	}
	return nil
}
