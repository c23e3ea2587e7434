// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"path"
	"strings"
)

// NormalizePath converts an archive path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return raw
}

// normalizeEntryName replaces stored "\" separators with "/" and reports
// whether any replacement happened.
func normalizeEntryName(name string) (string, bool) {
	if !strings.Contains(name, `\`) {
		return name, false
	}

	return strings.ReplaceAll(name, `\`, `/`), true
}

// entryNameBytes returns the stored name of one entry record: bytes before
// the first NUL, never reaching into the size field.
func entryNameBytes(record []byte) []byte {
	name := record[:min(len(record), recordSizeFieldOff)]
	for i, b := range name {
		if b == 0 {
			return name[:i]
		}
	}

	return name
}
