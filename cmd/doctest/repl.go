package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/doctest"
	"github.com/caffeineduck/doctest/checker"
	"github.com/caffeineduck/doctest/parser"
)

func newReplCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Interactive session with persistent state",
		Long: `Start an interactive session against the configured sandbox.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input (end line with \)

With --record, the session is written as doctest text that "doctest run"
can replay. Type 'exit' or 'quit' to end the session, or press Ctrl+D.`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
	cmd.Flags().String("history", "", "History file path (default: ~/.doctest_history)")
	cmd.Flags().String("record", "", "Write the session to FILE as doctest text")
	return cmd
}

func runRepl(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	historyFile, _ := cmd.Flags().GetString("history")
	if historyFile == "" {
		home, _ := os.UserHomeDir()
		historyFile = filepath.Join(home, ".doctest_history")
	}

	sb, release, err := buildSandbox(cmd, s)
	if err != nil {
		return err
	}
	defer release()

	var rec *recorder
	if path, _ := cmd.Flags().GetString("record"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		rec = newRecorder(f, s.syntax)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.syntax.Prompt + " ",
		HistoryFile:       historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
		Stderr:            cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(cmd.ErrOrStderr(), "doctest %s REPL (type 'exit' to quit, Ctrl+D to exit)\n", s.cfg.Sandbox)

	env := doctest.Environment(s.cfg.Globals).Clone()
	defer env.Clear()

	loop := &repl{
		in:      rl,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		sandbox: sb,
		syntax:  s.syntax,
		rec:     rec,
	}
	return loop.run(cmd.Context(), env)
}

// lineReader is the part of *readline.Instance the loop uses.
type lineReader interface {
	Readline() (string, error)
	SetPrompt(prompt string)
}

type repl struct {
	in      lineReader
	out     io.Writer
	errOut  io.Writer
	sandbox doctest.Sandbox
	syntax  parser.Syntax
	rec     *recorder
}

func (r *repl) run(ctx context.Context, env doctest.Environment) error {
	prompt := r.syntax.Prompt + " "
	cont := r.syntax.Continuation + " "

	var multiLine strings.Builder
	inMultiLine := false

	for {
		line, err := r.in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if inMultiLine {
					multiLine.Reset()
					inMultiLine = false
					r.in.SetPrompt(prompt)
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if strings.HasSuffix(line, "\\") {
			multiLine.WriteString(strings.TrimSuffix(line, "\\"))
			multiLine.WriteString("\n")
			inMultiLine = true
			r.in.SetPrompt(cont)
			continue
		}
		if inMultiLine {
			multiLine.WriteString(line)
			line = multiLine.String()
			multiLine.Reset()
			inMultiLine = false
			r.in.SetPrompt(prompt)
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		if t := strings.TrimSpace(line); t == "exit" || t == "quit" {
			return nil
		}

		res := r.sandbox.Execute(ctx, line+"\n", env)
		if res.Env != nil {
			env = res.Env
		}
		if res.Output != "" {
			fmt.Fprint(r.out, res.Output)
			if !strings.HasSuffix(res.Output, "\n") {
				fmt.Fprintln(r.out)
			}
		}
		if res.Error != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", res.Error)
		}
		if r.rec != nil {
			if err := r.rec.add(line, res.Output, res.Error); err != nil {
				return fmt.Errorf("record: %w", err)
			}
		}
	}
}

// recorder writes REPL interactions as doctest examples.
type recorder struct {
	w      io.Writer
	syntax parser.Syntax
}

func newRecorder(w io.Writer, syntax parser.Syntax) *recorder {
	return &recorder{w: w, syntax: syntax}
}

// add writes one interaction. Source lines after the first carry the
// continuation token, whitespace-only output lines become the blank-line
// marker and an error is rendered the way the syntax expects it.
func (r *recorder) add(source, output string, err error) error {
	var b strings.Builder
	for i, line := range strings.Split(strings.TrimRight(source, "\n"), "\n") {
		token := r.syntax.Prompt
		if i > 0 {
			token = r.syntax.Continuation
		}
		b.WriteString(token + " " + line + "\n")
	}
	if output != "" {
		for _, line := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
			if strings.TrimSpace(line) == "" {
				line = checker.BlankLineMarker
			}
			b.WriteString(line + "\n")
		}
	}
	if err != nil {
		b.WriteString(r.syntax.FormatError(err.Error()))
	}
	_, werr := io.WriteString(r.w, b.String())
	return werr
}
