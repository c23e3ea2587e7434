// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

// Command uncbv extracts CBV and CBZ comic archives.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cmd := newRootCmd(os.Stdin, os.Stdout, log.Logger)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
