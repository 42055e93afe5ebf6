package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// prompt reads one trimmed line. A flag value, when set, wins.
func (a *app) prompt(label, preset string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	fmt.Fprint(a.out, label)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(a.in.Text()), nil
}

// readPassword reads a password with masking when input is a terminal and
// falls back to a plain line otherwise.
func (a *app) readPassword(label string) (string, error) {
	if a.inFD < 0 {
		return a.prompt(label, "")
	}
	fmt.Fprint(a.out, label)
	bytePassword, err := term.ReadPassword(a.inFD)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(a.out)
	return strings.TrimSpace(string(bytePassword)), nil
}

func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, s)
	}
	return id, nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var errCancelled = errors.New("cancelled")

// confirm asks a yes/no question; anything but y/yes declines.
func (a *app) confirm(question string, assumeYes bool) error {
	if assumeYes {
		return nil
	}
	ans, err := a.prompt(question+" [y/N]: ", "")
	if err != nil {
		return err
	}
	switch strings.ToLower(ans) {
	case "y", "yes":
		return nil
	}
	return errCancelled
}
