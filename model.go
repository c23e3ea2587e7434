// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"github.com/rs/zerolog"
	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize          = 8   // fixed archive preamble size in bytes
	entryCountOffset    = 2   // LE uint16 entry count inside preamble
	recordSizeOffset    = 4   // uint8 entry record size inside preamble
	recordSizeFieldOff  = 136 // LE int32 decompressed size inside each record
	minRecordSize       = recordSizeFieldOff + 4
	blockFrameSize      = 4 // LE uint16 payload length + 2 reserved bytes
	huffmanPreambleSize = 3 // flags byte + BE uint16 pre-LZ size
)

// encryptedHeaderMagic is the value of the first byte of every known CBV preamble.
// Encrypted archives are accepted only when decryption reproduces it.
const encryptedHeaderMagic = 0x08

// Header is the parsed 8-byte archive preamble.
type Header struct {
	// Raw holds the preamble bytes as stored; bytes other than count and record size are opaque.
	Raw [headerSize]byte `json:"-" yaml:"-"`
	// EntryCount is the number of records in the entry table.
	EntryCount uint16 `json:"entry_count" yaml:"entry_count"`
	// RecordSize is the fixed size of one entry table record in bytes.
	RecordSize uint8 `json:"record_size" yaml:"record_size"`
}

// EntryInfo describes a single parsed archive entry.
type EntryInfo struct {
	// Path is the UTF-8 entry path with "/" separators.
	Path string `json:"path" yaml:"path"`
	// RawName is the name as stored in the record, in the legacy codepage.
	RawName []byte `json:"-" yaml:"-"`
	// Index is the zero-based position in the entry table and in the block stream.
	Index int `json:"index" yaml:"index"`
	// Size is the declared decompressed size in bytes.
	Size int64 `json:"size" yaml:"size"`
	// HasDirs reports whether the stored name contained "\" separators,
	// so parent directories must exist before the entry is written.
	HasDirs bool `json:"has_dirs,omitempty" yaml:"has_dirs,omitempty"`
}

// Charset names accepted by ReaderOptions.NameCharset.
const (
	CharsetISO88591    = "iso-8859-1"
	CharsetWindows1252 = "windows-1252"
	CharsetCP437       = "cp437"
	CharsetCP850       = "cp850"
	CharsetUTF8        = "utf-8"
)

// ReaderOptions configures archive parsing.
type ReaderOptions struct {
	// NameCharset selects the codepage of stored entry names. Default is ISO-8859-1.
	NameCharset string `json:"name_charset,omitempty" yaml:"name_charset,omitempty"`
}

// ExtractFileMode controls output file policy during extraction.
type ExtractFileMode string

// Output file policies for extraction.
const (
	// ExtractFileModeOverwrite replaces existing files.
	ExtractFileModeOverwrite ExtractFileMode = "overwrite"
	// ExtractFileModeCreateOnly fails the entry when output file already exists.
	ExtractFileModeCreateOnly ExtractFileMode = "create_only"
	// ExtractFileModeSkipExisting leaves existing files untouched and skips the entry.
	ExtractFileModeSkipExisting ExtractFileMode = "skip_existing"
)

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written and renamed into place.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string, digest uint64) `json:"-" yaml:"-"`
	// Logger receives per-entry debug events and entry failures. Zero value logs nothing.
	Logger *zerolog.Logger `json:"-" yaml:"-"`
	// FileMode controls output file creation policy.
	FileMode ExtractFileMode `json:"file_mode,omitempty" yaml:"file_mode,omitempty"`
	// Rules selects entries by path; empty means all entries.
	Rules []pathrules.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	// MatcherOptions control selection rule matching.
	MatcherOptions pathrules.MatcherOptions `json:"matcher_options,omitzero" yaml:"matcher_options,omitzero"`
	// RawNames disables default path sanitization during extract.
	RawNames bool `json:"raw_names,omitempty" yaml:"raw_names,omitempty"`
}

// ExtractResult contains extraction statistics.
type ExtractResult struct {
	// Extracted is number of entries written to disk.
	Extracted int `json:"extracted" yaml:"extracted"`
	// Skipped is number of entries decoded but not written (unselected or existing).
	Skipped int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Failed is number of entries whose output could not be written.
	Failed int `json:"failed,omitempty" yaml:"failed,omitempty"`
	// Bytes is total decompressed bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// applyDefaults fills zero-valued reader options with defaults.
func (opts *ReaderOptions) applyDefaults() {
	if opts.NameCharset == "" {
		opts.NameCharset = CharsetISO88591
	}
}

// applyDefaults fills zero-valued extract options with defaults.
func (opts *ExtractOptions) applyDefaults() {
	if opts.FileMode == "" {
		opts.FileMode = ExtractFileModeOverwrite
	}

	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	if opts.MatcherOptions == (pathrules.MatcherOptions{}) {
		opts.MatcherOptions.CaseInsensitive = true
	}

	opts.MatcherOptions = withDefaultAction(opts.MatcherOptions, opts.Rules)
}
