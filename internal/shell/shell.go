// Package shell is the gemratectl command interpreter. It runs either as
// an interactive prompt or over a script read from a pipe.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/gemrate/internal/client"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/types"
)

var log = logging.Component("shell")

var (
	// ErrExit is returned by Execute for exit and quit.
	ErrExit = errors.New("exit")

	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const defaultWidth = 80

// Shell executes commands against one server.
type Shell struct {
	c      *client.Client
	out    io.Writer
	errOut io.Writer

	// width returns the terminal width in columns.
	width func() int

	// kinds feeds the completer. Refreshed by Run.
	kinds []types.Kind
}

// Option configures a Shell.
type Option func(*Shell)

// WithErrorOutput sends error lines to w instead of the main output.
func WithErrorOutput(w io.Writer) Option {
	return func(s *Shell) { s.errOut = w }
}

// WithWidth fixes the table width. Zero or less means 80 columns.
func WithWidth(cols int) Option {
	return func(s *Shell) {
		s.width = func() int { return cols }
	}
}

// WithTerminal sizes tables to the terminal behind f.
func WithTerminal(f *os.File) Option {
	return func(s *Shell) {
		s.width = func() int { return TerminalWidth(f) }
	}
}

// New creates a shell writing to out.
func New(c *client.Client, out io.Writer, opts ...Option) *Shell {
	s := &Shell{
		c:      c,
		out:    out,
		errOut: out,
		width:  func() int { return defaultWidth },
		kinds:  types.AllKinds(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the column count of the terminal behind f, or 80
// when f is not a terminal.
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

func (s *Shell) cols() int {
	if w := s.width(); w > 0 {
		return w
	}
	return defaultWidth
}

// Run starts the interactive prompt and returns after exit or Ctrl-D.
func (s *Shell) Run(ctx context.Context) error {
	s.loadKinds(ctx)

	fmt.Fprintf(s.out, "connected to %s, type help for commands\n", s.c.BaseURL())

	p := prompt.New(
		func(line string) {
			// The prompt restores the terminal before calling us, so
			// Ctrl-C arrives as a signal and ends long commands like watch.
			cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			if err := s.Execute(cmdCtx, line); err != nil && err != ErrExit {
				fmt.Fprintf(s.errOut, "error: %v\n", err)
			}
		},
		s.Complete,
		prompt.OptionPrefix("gemrate> "),
		prompt.OptionTitle("gemratectl"),
		prompt.OptionMaxSuggestion(8),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return breakline && isExit(in)
		}),
	)
	p.Run()
	return nil
}

// RunScript executes one command per line of r. Blank lines and lines
// starting with # are skipped. Failing commands are reported and the
// script goes on; the last failure is returned.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) error {
	var last error

	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		err := s.Execute(ctx, text)
		if err == ErrExit {
			return last
		}
		if err != nil {
			fmt.Fprintf(s.errOut, "line %d: %v\n", line, err)
			last = err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return last
}

func (s *Shell) loadKinds(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	kinds, err := s.c.Kinds(ctx)
	if err != nil {
		log.Debug("list kinds for completion", "error", err)
		return
	}
	if len(kinds) > 0 {
		s.kinds = kinds
	}
}

func isExit(line string) bool {
	switch strings.TrimSpace(line) {
	case "exit", "quit":
		return true
	}
	return false
}

// =============================================================================
// Completion
// =============================================================================

// Complete suggests command names for the first word and kinds for the
// second.
func (s *Shell) Complete(d prompt.Document) []prompt.Suggest {
	before := d.TextBeforeCursor()
	words := strings.Fields(before)
	word := d.GetWordBeforeCursor()

	// Position of the word being typed.
	pos := len(words)
	if word == "" || strings.HasSuffix(before, " ") {
		pos++
		word = ""
	}

	switch pos {
	case 1:
		suggests := make([]prompt.Suggest, 0, len(commands))
		for _, c := range commands {
			suggests = append(suggests, prompt.Suggest{Text: c.name, Description: c.help})
		}
		return prompt.FilterHasPrefix(suggests, word, true)

	case 2:
		cmd, ok := lookup(words[0])
		if !ok || !cmd.takesKind {
			return nil
		}
		suggests := make([]prompt.Suggest, 0, len(s.kinds))
		for _, k := range s.kinds {
			suggests = append(suggests, prompt.Suggest{Text: k.String(), Description: k.Label()})
		}
		return prompt.FilterHasPrefix(suggests, word, true)
	}
	return nil
}
