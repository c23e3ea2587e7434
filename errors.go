// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"errors"
	"fmt"
)

// Error kinds. Archive, decode and file system failures wrap one of them.
var (
	// ErrFormat means header, entry table or block framing is malformed or truncated.
	ErrFormat = errors.New("invalid CBV format")
	// ErrDecode means compressed payload could not be decoded.
	ErrDecode = errors.New("decode failed")
	// ErrPassword means the decrypted archive does not look like a CBV container.
	ErrPassword = errors.New("wrong password")
	// ErrIO means the archive could not be read or the output could not be written.
	ErrIO = errors.New("i/o failure")
)

// Format errors.
var (
	// ErrShortHeader means the archive is shorter than the 8-byte preamble.
	ErrShortHeader = fmt.Errorf("%w: short header", ErrFormat)
	// ErrTruncatedTable means the archive ends inside the entry table.
	ErrTruncatedTable = fmt.Errorf("%w: truncated entry table", ErrFormat)
	// ErrRecordTooSmall means entry records are too small to hold the size field.
	ErrRecordTooSmall = fmt.Errorf("%w: entry record too small", ErrFormat)
	// ErrInvalidEntrySize means an entry declares a negative decompressed size.
	ErrInvalidEntrySize = fmt.Errorf("%w: invalid entry size", ErrFormat)
	// ErrTruncatedBlock means the archive ends inside a block frame or payload.
	ErrTruncatedBlock = fmt.Errorf("%w: truncated block", ErrFormat)
	// ErrEmptyBlock means a block payload has no flags byte.
	ErrEmptyBlock = fmt.Errorf("%w: empty block payload", ErrFormat)
)

// Decode errors.
var (
	// ErrEntryOverflow means decoded data would exceed the entry declared size.
	ErrEntryOverflow = fmt.Errorf("%w: output exceeds declared entry size", ErrDecode)
	// ErrBadBackReference means a back-reference points before the start of block output.
	ErrBadBackReference = fmt.Errorf("%w: back-reference out of range", ErrDecode)
	// ErrTruncatedToken means the LZ stream ends inside a token or control word.
	ErrTruncatedToken = fmt.Errorf("%w: truncated LZ token", ErrDecode)
	// ErrInvalidHuffmanTable means the embedded code tree is malformed.
	ErrInvalidHuffmanTable = fmt.Errorf("%w: invalid Huffman table", ErrDecode)
	// ErrShortHuffmanStream means the Huffman bitstream ended before the requested length.
	ErrShortHuffmanStream = fmt.Errorf("%w: Huffman stream exhausted", ErrDecode)
)

// API and collaborator errors.
var (
	// ErrEmptyPassword means an encrypted archive was opened with an empty password.
	ErrEmptyPassword = fmt.Errorf("%w: empty password", ErrPassword)
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrClosed means the reader is already closed.
	ErrClosed = errors.New("reader already closed")
	// ErrEntryNotFound means the entry is not found.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrUnknownCharset means the requested filename charset is not supported.
	ErrUnknownCharset = errors.New("unknown filename charset")
	// ErrInvalidRules means one or more entry selection rules are invalid.
	ErrInvalidRules = errors.New("invalid selection rules")
	// ErrInvalidExtractPath means archive entry path is invalid for extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrExtractPathOutsideRoot means resolved extraction path escapes destination root.
	ErrExtractPathOutsideRoot = errors.New("extract path escapes destination root")
	// ErrOutputExists means create-only extraction found an existing output file.
	ErrOutputExists = fmt.Errorf("%w: output file exists", ErrIO)
)

// ioError wraps err with ErrIO unless it already carries one of the error kinds.
func ioError(op string, err error) error {
	if errors.Is(err, ErrIO) || errors.Is(err, ErrFormat) || errors.Is(err, ErrDecode) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}
