package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"trail-go/internal/trail"
)

var stdin = bufio.NewReader(os.Stdin)

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassphrase prompts on stderr and reads a passphrase without echo when
// stdin is a terminal, or a plain line otherwise.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !stdinIsTerminal() {
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

// terminalConfirmer asks yes/no questions on the terminal.
type terminalConfirmer struct{}

func (terminalConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "\n%s [y/N] ", prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

var _ trail.Confirmer = terminalConfirmer{}
