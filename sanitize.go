// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// maxSanitizedSegmentLen limits one path segment to common filesystem-safe length.
const maxSanitizedSegmentLen = 240

// reservedDeviceNames contains case-insensitive reserved DOS/Windows device names.
var reservedDeviceNames = map[string]struct{}{
	"aux": {}, "con": {}, "nul": {}, "prn": {}, "clock$": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {}, "com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {}, "lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// SanitizePath rewrites one path to deterministic filesystem-safe slash-separated form.
func SanitizePath(pathValue string) (string, error) {
	normalized := NormalizePath(pathValue)
	if normalized == "" {
		return "", nil
	}

	sanitized, err := sanitizeRelativePath(normalized)
	if err != nil {
		return "", err
	}

	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", err
	}

	return sanitized, nil
}

// pathSanitizer rewrites entry paths of one archive and keeps them unique.
type pathSanitizer struct {
	used       map[string]struct{}
	nextSuffix map[string]int
}

func newPathSanitizer(capacity int) *pathSanitizer {
	return &pathSanitizer{
		used:       make(map[string]struct{}, capacity),
		nextSuffix: make(map[string]int, capacity),
	}
}

// sanitize returns a filesystem-safe path for entryPath that no earlier call returned.
func (s *pathSanitizer) sanitize(entryPath string) (string, error) {
	relative := entryPath
	if normalized, err := normalizeExtractEntryPath(entryPath); err == nil {
		relative = normalized
	} else {
		// Mangled names are sanitized segment by segment instead of failing.
		relative = strings.ReplaceAll(relative, `\`, `/`)
	}

	sanitized, err := sanitizeRelativePath(relative)
	if err != nil {
		return "", fmt.Errorf("sanitize path %s: %w", entryPath, err)
	}

	sanitized, err = s.unique(sanitized)
	if err != nil {
		return "", fmt.Errorf("sanitize path %s: %w", entryPath, err)
	}

	if _, err := normalizeExtractEntryPath(sanitized); err != nil {
		return "", fmt.Errorf("sanitize path %s: %w", entryPath, err)
	}

	return sanitized, nil
}

// unique resolves case-insensitive collisions by adding a "~N" suffix.
func (s *pathSanitizer) unique(pathValue string) (string, error) {
	key := strings.ToLower(pathValue)
	if _, exists := s.used[key]; !exists {
		s.used[key] = struct{}{}
		return pathValue, nil
	}

	dir, name := path.Dir(pathValue), path.Base(pathValue)
	start := max(s.nextSuffix[key], 2)
	for idx := start; idx < 1000000; idx++ {
		candidate := withNumericSuffix(name, idx)
		if dir != "." {
			candidate = dir + "/" + candidate
		}

		candidateKey := strings.ToLower(candidate)
		if _, exists := s.used[candidateKey]; exists {
			continue
		}

		s.used[candidateKey] = struct{}{}
		s.nextSuffix[key] = idx + 1
		return candidate, nil
	}

	return "", ErrInvalidExtractPath
}

// sanitizeRelativePath sanitizes each segment of relative slash-separated path.
func sanitizeRelativePath(relativePath string) (string, error) {
	parts := strings.Split(relativePath, "/")
	sanitized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == "." {
			continue
		}

		segment, err := sanitizePathSegment(part)
		if err != nil {
			return "", err
		}

		sanitized = append(sanitized, segment)
	}
	if len(sanitized) == 0 {
		return "_", nil
	}

	return strings.Join(sanitized, "/"), nil
}

// sanitizePathSegment sanitizes one path segment for broad filesystem compatibility.
func sanitizePathSegment(segment string) (string, error) {
	segment = strings.TrimSpace(segment)
	if segment == "" || segment == ".." {
		return "_", nil
	}

	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if isUnsafeControlCharRune(r) || strings.ContainsRune(`<>:"/\|?*`, r) {
			b.WriteRune('_')
			continue
		}

		b.WriteRune(r)
	}

	sanitized := strings.TrimRight(b.String(), ". ")
	if sanitized == "" {
		sanitized = "_"
	}

	if isReservedDeviceName(segment) || isReservedDeviceName(sanitized) {
		sanitized = "_" + sanitized
	}

	if len(sanitized) > maxSanitizedSegmentLen {
		sanitized = shortenSegmentDeterministic(sanitized, maxSanitizedSegmentLen)
	}

	return sanitized, nil
}

// isUnsafeControlCharRune reports whether rune is unsafe for file names and should be replaced.
func isUnsafeControlCharRune(r rune) bool {
	if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
		return true
	}

	return r == unicode.ReplacementChar
}

// isReservedDeviceName reports whether name matches a reserved device identifier, with or without extension.
func isReservedDeviceName(name string) bool {
	candidate := strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ". :"))
	if dot := strings.IndexByte(candidate, '.'); dot >= 0 {
		candidate = candidate[:dot]
	}

	_, ok := reservedDeviceNames[strings.TrimRight(candidate, " :")]
	return ok
}

// withNumericSuffix appends "~N" before extension and preserves max segment length.
func withNumericSuffix(name string, n int) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := "~" + strconv.Itoa(n)
	allowedBaseLen := max(maxSanitizedSegmentLen-len(ext)-len(suffix), 1)
	if len(base) > allowedBaseLen {
		base = shortenSegmentDeterministic(base, allowedBaseLen)
	}

	return base + suffix + ext
}

// shortenSegmentDeterministic shortens a long segment and appends a hash of the full value.
func shortenSegmentDeterministic(value string, maxLen int) string {
	if len(value) <= maxLen {
		return value
	}
	if maxLen <= 18 {
		return value[:maxLen]
	}

	hashPart := fmt.Sprintf("~%016x", xxhash.Sum64String(value))
	return value[:maxLen-len(hashPart)] + hashPart
}
