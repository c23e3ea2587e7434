// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/gbtami/cbv"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/woozymasta/pathrules"
)

// Environment variables read as flag defaults.
const (
	envOutput   = "UNCBV_OUTPUT"
	envPassword = "UNCBV_PASSWORD"
	envCharset  = "UNCBV_CHARSET"
)

// errDecryptInProgress means another process holds the lock of a decrypted copy.
var errDecryptInProgress = errors.New("another process is decrypting")

// options holds parsed command line flags.
type options struct {
	output        string
	password      string
	charset       string
	include       []string
	exclude       []string
	list          bool
	rawNames      bool
	noOverwrite   bool
	keepDecrypted bool
	verbose       bool
}

// newRootCmd builds the uncbv command. stdin is used for password prompts and
// stdout for listings; logger receives progress and per-file failures.
func newRootCmd(stdin io.Reader, stdout io.Writer, logger zerolog.Logger) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "uncbv [flags] FILE...",
		Short: "Extract CBV and CBZ comic archives",
		Long: `uncbv extracts CBV comic archives and their DES-encrypted CBZ variant.

Every archive is processed on its own: a failing archive is reported and the
next one is still processed. Passwords for .cbz archives are taken from
--password, from $` + envPassword + `, or prompted for each archive.`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := zerolog.InfoLevel
			if opts.verbose {
				level = zerolog.DebugLevel
			}

			u := &unarchiver{
				opts:      opts,
				stdout:    stdout,
				passwords: newPasswordSource(stdin, cmd.ErrOrStderr(), opts.password),
				log:       logger.Level(level),
			}

			u.run(cmd.Context(), args)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", getEnvString(envOutput, "."), "Output directory")
	flags.StringVarP(&opts.password, "password", "p", os.Getenv(envPassword), "Password for encrypted .cbz archives")
	flags.StringVar(&opts.charset, "charset", getEnvString(envCharset, cbv.CharsetISO88591), "Codepage of stored file names")
	flags.StringSliceVarP(&opts.include, "include", "i", nil, "Extract only entries matching pattern (repeatable)")
	flags.StringSliceVarP(&opts.exclude, "exclude", "e", nil, "Skip entries matching pattern (repeatable)")
	flags.BoolVarP(&opts.list, "list", "l", false, "List entries instead of extracting")
	flags.BoolVar(&opts.rawNames, "raw-names", false, "Do not sanitize output file names")
	flags.BoolVar(&opts.noOverwrite, "no-overwrite", false, "Keep existing output files")
	flags.BoolVar(&opts.keepDecrypted, "keep-decrypted", false, "Write the decrypted .cbv next to each .cbz")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

// unarchiver processes archives one after another.
type unarchiver struct {
	opts      *options
	stdout    io.Writer
	passwords *passwordSource
	log       zerolog.Logger
}

// run processes every archive; failures are logged and never stop the loop.
func (u *unarchiver) run(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := u.process(ctx, path); err != nil {
			u.log.Error().Err(err).Str("archive", path).Msg("failed to extract archive")
		}
	}
}

// process opens one archive and lists or extracts it.
func (u *unarchiver) process(ctx context.Context, path string) error {
	r, err := u.open(path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	h := r.Header()
	u.log.Debug().
		Str("archive", path).
		Uint16("entries", h.EntryCount).
		Uint8("record_size", h.RecordSize).
		Msg("archive opened")

	rules := u.rules()
	if u.opts.list {
		return u.list(r, rules)
	}

	mode := cbv.ExtractFileModeOverwrite
	if u.opts.noOverwrite {
		mode = cbv.ExtractFileModeSkipExisting
	}

	logger := u.log.With().Str("archive", path).Logger()
	res, err := r.Extract(ctx, u.opts.output, cbv.ExtractOptions{
		Logger:   &logger,
		FileMode: mode,
		Rules:    rules,
		RawNames: u.opts.rawNames,
	})
	if res != nil {
		u.log.Info().
			Str("archive", path).
			Int("extracted", res.Extracted).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Int64("bytes", res.Bytes).
			Msg("archive extracted")
	}

	return err
}

// open opens a plain archive or decrypts an encrypted one.
func (u *unarchiver) open(path string) (*cbv.Reader, error) {
	readerOpts := cbv.ReaderOptions{NameCharset: u.opts.charset}
	if !cbv.IsEncryptedName(path) {
		return cbv.OpenWithOptions(path, readerOpts)
	}

	password, err := u.passwords.get(path)
	if err != nil {
		return nil, err
	}

	if !u.opts.keepDecrypted {
		return cbv.OpenEncrypted(path, password, readerOpts)
	}

	plain := cbv.DecryptedName(path)
	if err := decryptLocked(path, plain, password); err != nil {
		return nil, err
	}

	u.log.Info().Str("archive", path).Str("decrypted", plain).Msg("archive decrypted")
	return cbv.OpenWithOptions(plain, readerOpts)
}

// decryptLocked writes the decrypted copy of path to plain while holding a
// lock file next to it.
func decryptLocked(path, plain, password string) error {
	lockPath := plain + ".lock"
	fileLock := flock.New(lockPath)

	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", errDecryptInProgress, plain)
	}
	defer func() {
		_ = fileLock.Unlock()
		_ = os.Remove(lockPath)
	}()

	return cbv.DecryptFile(path, plain, password)
}

// list prints selected entries as size and path columns.
func (u *unarchiver) list(r *cbv.Reader, rules []pathrules.Rule) error {
	entries, err := cbv.FilterEntries(r.Entries(), rules, pathrules.MatcherOptions{CaseInsensitive: true})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(u.stdout, 0, 8, 2, ' ', tabwriter.AlignRight)
	for _, e := range entries {
		if _, err := fmt.Fprintf(tw, "%d\t %s\n", e.Size, e.Path); err != nil {
			return err
		}
	}

	return tw.Flush()
}

// rules converts include and exclude patterns to ordered selection rules.
// Excludes come last so they win over includes.
func (u *unarchiver) rules() []pathrules.Rule {
	rules := make([]pathrules.Rule, 0, len(u.opts.include)+len(u.opts.exclude))
	for _, pattern := range u.opts.include {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: pattern})
	}
	for _, pattern := range u.opts.exclude {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionExclude, Pattern: pattern})
	}

	return rules
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
