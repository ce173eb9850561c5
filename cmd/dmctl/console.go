package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"sds/internal/domain"
)

// consoleInput is one parsed console line. Exactly one field is set.
type consoleInput struct {
	Command    *domain.Command
	Hypothesis domain.Hypothesis
	Quit       bool
}

var slashCommands = map[string]string{
	"/flush": domain.CommandFlush,
	"/new":   domain.CommandNewDialogue,
	"/end":   domain.CommandEndDialogue,
	"/stop":  domain.CommandStop,
}

// parseLine turns a console line into a command or a hypothesis.
//
//	/new /flush /end /stop   control commands
//	/quit, exit              leave the console
//	/nbest 0.7 hello() | 0.3 bye()
//	inform(food=chinese)&request(area)
func parseLine(line string) (consoleInput, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return consoleInput{}, fmt.Errorf("empty input")
	case "/quit", "exit", "quit":
		return consoleInput{Quit: true}, nil
	}
	if name, ok := slashCommands[line]; ok {
		cmd := domain.NewCommand(name, domain.ComponentHub, domain.ComponentDM)
		return consoleInput{Command: &cmd}, nil
	}
	if rest, ok := strings.CutPrefix(line, "/nbest"); ok {
		h, err := parseNBest(rest)
		if err != nil {
			return consoleInput{}, err
		}
		return consoleInput{Hypothesis: h}, nil
	}
	if strings.HasPrefix(line, "/") {
		return consoleInput{}, fmt.Errorf("unknown console command %q", line)
	}

	act, err := domain.ParseAct(line)
	if err != nil {
		return consoleInput{}, err
	}
	return consoleInput{Hypothesis: domain.SingleAct{Act: act}}, nil
}

func parseNBest(s string) (domain.NBest, error) {
	var out domain.NBest
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		probText, actText, ok := strings.Cut(part, " ")
		if !ok {
			return nil, fmt.Errorf("n-best entry %q: want \"<prob> <act>\"", part)
		}
		prob, err := strconv.ParseFloat(probText, 64)
		if err != nil {
			return nil, fmt.Errorf("n-best entry %q: %w", part, err)
		}
		act, err := domain.ParseAct(strings.TrimSpace(actText))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.NBestEntry{Prob: prob, Act: act})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("n-best list is empty")
	}
	return out, nil
}

// dialoguePort is where console input goes: a local registry or a remote hub.
type dialoguePort interface {
	SendCommand(ctx context.Context, cmd domain.Command) error
	SendHypothesis(ctx context.Context, h domain.Hypothesis) error
}

// consolePrinter renders session output. It implements sessions.Sink.
type consolePrinter struct {
	mu  sync.Mutex
	out io.Writer
	rl  *readline.Instance
}

func (p *consolePrinter) PublishAct(_ context.Context, _ string, msg domain.ActMessage) error {
	p.printf("DM> %s\n", msg.Act)
	return nil
}

func (p *consolePrinter) PublishEvent(_ context.Context, _ string, cmd domain.Command) error {
	if cmd.Name == domain.CommandActGenerated {
		return nil
	}
	if msg, ok := cmd.Args["error"]; ok {
		p.printf("[%s] %s\n", cmd.Name, msg)
		return nil
	}
	p.printf("[%s]\n", cmd.Name)
	return nil
}

func (p *consolePrinter) attach(rl *readline.Instance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rl = rl
}

func (p *consolePrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rl != nil {
		p.rl.Clean()
		defer p.rl.Refresh()
	}
	fmt.Fprintf(p.out, format, args...)
}

// runConsole reads lines until quit, stop, EOF or ctx ends.
func runConsole(ctx context.Context, port dialoguePort, printer *consolePrinter) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "USR> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".dmctl_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	closeRL := sync.OnceFunc(func() { _ = rl.Close() })
	printer.attach(rl)
	defer func() {
		printer.attach(nil)
		closeRL()
	}()

	go func() {
		<-ctx.Done()
		closeRL()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		in, err := parseLine(line)
		if err != nil {
			printer.printf("error: %v\n", err)
			continue
		}
		switch {
		case in.Quit:
			return nil
		case in.Command != nil:
			if err := port.SendCommand(ctx, *in.Command); err != nil {
				printer.printf("error: %v\n", err)
				continue
			}
			if in.Command.Name == domain.CommandStop {
				return nil
			}
		default:
			if err := port.SendHypothesis(ctx, in.Hypothesis); err != nil {
				printer.printf("error: %v\n", err)
			}
		}
	}
}
