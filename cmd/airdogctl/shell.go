package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// shell runs an interactive prompt until quit, EOF or ctx is cancelled.
// Verb errors are printed and the loop continues.
func (s *session) shell(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "airdog> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	})
	if err != nil {
		return fmt.Errorf("creating readline: %w", err)
	}
	defer rl.Close()

	// Route output through readline so it does not tear the prompt.
	s.out = rl.Stdout()
	fmt.Fprintf(s.out, "Connected to %s (session %s). Type 'help' for commands.\n", s.host, s.id[:8])

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	return s.loop(ctx, rl.Readline)
}

// loop reads lines from next and executes them. Split from shell so the
// dispatch can be driven without a terminal.
func (s *session) loop(ctx context.Context, next func() (string, error)) error {
	for {
		line, err := next()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch strings.ToLower(args[0]) {
		case "quit", "exit", "q":
			return nil
		case "shell":
			continue
		}

		if err := s.exec(ctx, args); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("info"),
		readline.PcItem("status"),
		readline.PcItem("state"),
		readline.PcItem("on"),
		readline.PcItem("off"),
		readline.PcItem("set-mode",
			readline.PcItem("auto"),
			readline.PcItem("manual"),
			readline.PcItem("sleep"),
		),
		readline.PcItem("set-speed"),
		readline.PcItem("child-lock",
			readline.PcItem("on"),
			readline.PcItem("off"),
		),
		readline.PcItem("clean"),
		readline.PcItem("refresh"),
		readline.PcItem("quit"),
	)
}
