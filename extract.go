// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	// extractWriteBufferSize is the buffered writer size for one output file.
	extractWriteBufferSize = 64 * 1024
	// extractTempPattern names partial outputs until they are renamed into place.
	extractTempPattern = ".cbv-*.part"
	extractDirMode     = 0o750
	extractFileMode    = 0o644
)

// extractTask is one entry with its resolved output path.
type extractTask struct {
	entry   EntryInfo
	outPath string
}

// Extract decodes every entry in stream order and writes selected entries under dstDir.
//
// Output for an entry is written to a temporary file and renamed into place
// only after the entry decoded to exactly its declared size. Output-side
// failures fail that entry only; framing and decode failures stop extraction
// because the next entry can not be located. All failures are joined in the
// returned error.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if r == nil || r.ra == nil {
		return nil, ErrNilReader
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	opts.applyDefaults()
	log := opts.Logger
	switch opts.FileMode {
	case ExtractFileModeOverwrite, ExtractFileModeCreateOnly, ExtractFileModeSkipExisting:
	default:
		return nil, fmt.Errorf("unknown extract file mode %q", opts.FileMode)
	}

	selector, err := newEntrySelector(opts.Rules, opts.MatcherOptions)
	if err != nil {
		return nil, err
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, ioError("resolve output dir", err)
	}

	if err := os.MkdirAll(dstRootAbs, extractDirMode); err != nil {
		return nil, ioError("create output dir", err)
	}

	var sanitizer *pathSanitizer
	if !opts.RawNames {
		sanitizer = newPathSanitizer(len(r.entries))
	}

	cursor, err := r.seekEntry(0)
	if err != nil {
		return nil, err
	}

	res := &ExtractResult{}
	var failures []error
	for _, entry := range r.entries {
		if err := ctx.Err(); err != nil {
			return res, errors.Join(append(failures, err)...)
		}

		if !selector.Match(entry.Path) {
			if _, err := cursor.decodeEntry(entry, nil); err != nil {
				return res, errors.Join(append(failures, err)...)
			}

			res.Skipped++
			continue
		}

		task, taskErr := prepareExtractTask(dstRootAbs, entry, sanitizer)
		if taskErr == nil {
			var skip bool
			skip, taskErr = checkExistingOutput(task.outPath, opts.FileMode)
			if skip {
				if _, err := cursor.decodeEntry(entry, nil); err != nil {
					return res, errors.Join(append(failures, err)...)
				}

				log.Debug().Str("entry", entry.Path).Str("output", task.outPath).Msg("output exists, skipped")
				res.Skipped++
				continue
			}
		}

		var (
			written int64
			digest  uint64
		)
		if taskErr == nil {
			written, digest, taskErr = extractEntry(cursor, task)
		} else if _, err := cursor.decodeEntry(entry, nil); err != nil {
			return res, errors.Join(append(failures, err)...)
		}

		if taskErr != nil {
			if cursor.err != nil {
				return res, errors.Join(append(failures, taskErr)...)
			}

			log.Warn().Err(taskErr).Str("entry", entry.Path).Msg("entry not extracted")
			failures = append(failures, taskErr)
			res.Failed++
			continue
		}

		res.Extracted++
		res.Bytes += written
		log.Debug().
			Str("entry", entry.Path).
			Int64("size", written).
			Str("xxhash", fmt.Sprintf("%016x", digest)).
			Msg("entry extracted")

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(entry, written, task.outPath, digest)
		}
	}

	return res, errors.Join(failures...)
}

// prepareExtractTask resolves the output path of one entry under the destination root.
func prepareExtractTask(dstRootAbs string, entry EntryInfo, sanitizer *pathSanitizer) (extractTask, error) {
	var (
		relPath string
		err     error
	)
	if sanitizer != nil {
		relPath, err = sanitizer.sanitize(entry.Path)
	} else {
		relPath, err = normalizeExtractEntryPath(entry.Path)
	}
	if err != nil {
		return extractTask{}, fmt.Errorf("normalize entry path %q: %w", entry.Path, err)
	}

	outPath := filepath.Join(dstRootAbs, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(dstRootAbs, outPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return extractTask{}, fmt.Errorf("%w: %s", ErrExtractPathOutsideRoot, entry.Path)
	}

	return extractTask{entry: entry, outPath: outPath}, nil
}

// checkExistingOutput applies the file mode to an already existing output path.
func checkExistingOutput(outPath string, mode ExtractFileMode) (bool, error) {
	if mode == ExtractFileModeOverwrite {
		return false, nil
	}

	if _, err := os.Lstat(outPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, ioError("stat "+outPath, err)
	}

	if mode == ExtractFileModeSkipExisting {
		return true, nil
	}

	return false, fmt.Errorf("%w: %s", ErrOutputExists, outPath)
}

// extractEntry decodes one entry into a temporary file next to its output path
// and renames it into place. The cursor always ends at the next entry unless
// decoding itself failed.
func extractEntry(cursor *entryCursor, task extractTask) (int64, uint64, error) {
	dir := filepath.Dir(task.outPath)
	if err := os.MkdirAll(dir, extractDirMode); err != nil {
		return discardEntry(cursor, task.entry, ioError("create output directory "+dir, err))
	}

	tmp, err := os.CreateTemp(dir, extractTempPattern)
	if err != nil {
		return discardEntry(cursor, task.entry, ioError("create temporary output", err))
	}

	tmpPath := tmp.Name()
	digest := xxhash.New()
	bw := bufio.NewWriterSize(io.MultiWriter(tmp, digest), extractWriteBufferSize)

	written, err := cursor.decodeEntry(task.entry, bw)
	if err == nil {
		if flushErr := bw.Flush(); flushErr != nil {
			err = ioError("write "+task.entry.Path, flushErr)
		}
	}

	closeErr := tmp.Close()
	if err == nil && closeErr != nil {
		err = ioError("close "+task.entry.Path, closeErr)
	}

	if err == nil {
		err = finalizeOutput(tmpPath, task.outPath)
	}

	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, 0, err
	}

	return written, digest.Sum64(), nil
}

// finalizeOutput makes a completed temporary file visible under its final name.
func finalizeOutput(tmpPath string, outPath string) error {
	if err := os.Chmod(tmpPath, extractFileMode); err != nil {
		return ioError("chmod "+outPath, err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return ioError("rename "+outPath, err)
	}

	return nil
}

// discardEntry decodes entry without output so the cursor stays aligned, then returns cause.
func discardEntry(cursor *entryCursor, entry EntryInfo, cause error) (int64, uint64, error) {
	if _, err := cursor.decodeEntry(entry, nil); err != nil {
		return 0, 0, err
	}

	return 0, 0, cause
}

// normalizeExtractEntryPath normalizes entry path and rejects absolute/traversal inputs.
func normalizeExtractEntryPath(entryPath string) (string, error) {
	raw := strings.TrimSpace(entryPath)
	if raw == "" || strings.ContainsRune(raw, 0) {
		return "", ErrInvalidExtractPath
	}

	raw = strings.ReplaceAll(raw, `\`, `/`)
	if strings.HasPrefix(raw, "/") || hasWindowsAbsDrivePrefix(raw) {
		return "", ErrInvalidExtractPath
	}

	parts := strings.Split(raw, "/")
	cleanParts := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			return "", ErrInvalidExtractPath
		default:
			cleanParts = append(cleanParts, part)
		}
	}
	if len(cleanParts) == 0 {
		return "", ErrInvalidExtractPath
	}

	return strings.Join(cleanParts, "/"), nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with drive prefix like C:.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}

	b := path[0]
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
