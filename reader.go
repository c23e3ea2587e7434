// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	// readerTableBufferSize is a sequential read buffer for entry table parsing.
	readerTableBufferSize = 64 * 1024
	// readerBodyBufferSize is a sequential read buffer for the block stream.
	readerBodyBufferSize = 128 * 1024
)

var (
	// tableReaderPool reuses buffered readers for sequential table parsing.
	tableReaderPool = sync.Pool{
		New: func() any {
			return bufio.NewReaderSize(bytes.NewReader(nil), readerTableBufferSize)
		},
	}
)

// Reader provides read-only access to a parsed CBV archive.
type Reader struct {
	// ra is the underlying random-access reader.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// cleanup removes files owned by the reader (decrypted copies) after Close.
	cleanup func() error
	// cursor is the sequential position in the block stream.
	cursor *entryCursor
	// entries stores parsed immutable entry metadata in stream order.
	entries []EntryInfo
	// size is total source size in bytes.
	size int64
	// dataStart is absolute offset of the first block frame.
	dataStart int64
	// mu guards the cursor and closed state.
	mu sync.Mutex
	// header is the parsed preamble.
	header Header
	// closed reports whether Close was already called.
	closed bool
}

// Open opens a CBV file by path and parses its header and entry table.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens a CBV file by path using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReaderFromReaderAtWithOptions(f, size, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReaderFromReaderAt parses a CBV archive from existing ReaderAt and known size.
func NewReaderFromReaderAt(ra io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderFromReaderAtWithOptions(ra, size, ReaderOptions{})
}

// NewReaderFromReaderAtWithOptions parses a CBV archive from existing ReaderAt and known size
// using explicit reader options.
func NewReaderFromReaderAtWithOptions(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()
	names, err := newNameDecoder(opts.NameCharset)
	if err != nil {
		return nil, err
	}

	r := &Reader{ra: ra, size: size}
	if err := r.parse(names); err != nil {
		return nil, err
	}

	return r, nil
}

// Header returns the parsed archive preamble.
func (r *Reader) Header() Header {
	if r == nil {
		return Header{}
	}

	return r.header
}

// Entries returns a copy of parsed entries in stream order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.entries))
	copy(entries, r.entries)
	return entries
}

// DataOffset returns the absolute offset of the first block frame.
func (r *Reader) DataOffset() int64 {
	if r == nil {
		return 0
	}

	return r.dataStart
}

// Close closes the underlying file if reader owns one and removes owned temporary files.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	r.cursor = nil

	var errs []error
	if r.file != nil {
		errs = append(errs, r.file.Close())
	}
	if r.cleanup != nil {
		errs = append(errs, r.cleanup())
	}

	return errors.Join(errs...)
}

// parse reads the preamble and the entry table.
func (r *Reader) parse(names nameDecoder) error {
	header, err := parseHeader(r.ra, r.size)
	if err != nil {
		return err
	}

	r.header = header
	entries, end, err := parseEntryTable(r.ra, r.size, header, names)
	if err != nil {
		return err
	}

	r.entries = entries
	r.dataStart = end
	return nil
}

// parseHeader reads and decodes the fixed 8-byte preamble.
func parseHeader(ra io.ReaderAt, size int64) (Header, error) {
	var h Header
	if size < headerSize {
		return h, fmt.Errorf("%w: %d bytes", ErrShortHeader, size)
	}

	if _, err := ra.ReadAt(h.Raw[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return h, ErrShortHeader
		}

		return h, ioError("read header", err)
	}

	h.EntryCount = binary.LittleEndian.Uint16(h.Raw[entryCountOffset:])
	h.RecordSize = h.Raw[recordSizeOffset]
	return h, nil
}

// parseEntryTable reads all fixed-size entry records and returns the offset right after the table.
func parseEntryTable(ra io.ReaderAt, size int64, h Header, names nameDecoder) ([]EntryInfo, int64, error) {
	count := int(h.EntryCount)
	recordSize := int(h.RecordSize)
	if count == 0 {
		return []EntryInfo{}, headerSize, nil
	}

	if recordSize < minRecordSize {
		return nil, 0, fmt.Errorf("%w: %d bytes, need %d", ErrRecordTooSmall, recordSize, minRecordSize)
	}

	end := int64(headerSize) + int64(count)*int64(recordSize)
	if end > size {
		return nil, 0, fmt.Errorf("%w: %d records of %d bytes need %d bytes, have %d",
			ErrTruncatedTable, count, recordSize, end, size)
	}

	sr := io.NewSectionReader(ra, headerSize, end-headerSize)
	br := tableReaderPool.Get().(*bufio.Reader) //nolint:forcetypeassert // pool contains only *bufio.Reader
	br.Reset(sr)
	defer tableReaderPool.Put(br)

	entries := make([]EntryInfo, 0, count)
	record := make([]byte, recordSize)
	for i := range count {
		if _, err := io.ReadFull(br, record); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, 0, fmt.Errorf("%w: record %d", ErrTruncatedTable, i)
			}

			return nil, 0, ioError(fmt.Sprintf("read record %d", i), err)
		}

		entry, err := parseEntryRecord(i, record, names)
		if err != nil {
			return nil, 0, err
		}

		entries = append(entries, entry)
	}

	return entries, end, nil
}

// parseEntryRecord decodes one entry table record.
func parseEntryRecord(index int, record []byte, names nameDecoder) (EntryInfo, error) {
	declared := int32(binary.LittleEndian.Uint32(record[recordSizeFieldOff:])) //nolint:gosec // field is signed on disk
	if declared < 0 {
		return EntryInfo{}, fmt.Errorf("%w: record %d declares %d bytes", ErrInvalidEntrySize, index, declared)
	}

	raw := bytes.Clone(entryNameBytes(record))
	name, err := names.decode(raw)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("record %d: %w", index, err)
	}

	name, hasDirs := normalizeEntryName(name)
	return EntryInfo{
		Path:    name,
		RawName: raw,
		Index:   index,
		Size:    int64(declared),
		HasDirs: hasDirs,
	}, nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, ioError("open archive", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, ioError("stat archive", err)
	}

	return f, fi.Size(), nil
}
