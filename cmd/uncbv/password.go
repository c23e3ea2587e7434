// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gbtami/cbv"
	"golang.org/x/term"
)

// passwordSource supplies passwords for encrypted archives: a fixed one when
// given, otherwise a prompt per archive.
type passwordSource struct {
	fixed  string
	in     io.Reader
	lines  *bufio.Reader
	prompt io.Writer
}

func newPasswordSource(in io.Reader, prompt io.Writer, fixed string) *passwordSource {
	return &passwordSource{fixed: fixed, in: in, prompt: prompt}
}

// get returns the password for archive path.
func (s *passwordSource) get(path string) (string, error) {
	if s.fixed != "" {
		return s.fixed, nil
	}

	_, _ = fmt.Fprintf(s.prompt, "Password for %s: ", path)
	if f, ok := s.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits int
		password, err := term.ReadPassword(int(f.Fd())) //nolint:gosec // fd fits int
		_, _ = fmt.Fprintln(s.prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}

		return string(password), nil
	}

	if s.lines == nil {
		s.lines = bufio.NewReader(s.in)
	}

	line, err := s.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", cbv.ErrEmptyPassword
	}

	return password, nil
}
