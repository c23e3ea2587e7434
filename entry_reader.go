// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
)

// entryCursor is the sequential decode position in the block stream.
// Entry bodies carry no offsets, so entry i can only be reached by decoding entries 0..i-1.
type entryCursor struct {
	blocks *blockDecoder
	// err is the framing or decode error that left the stream misaligned.
	err error
	// next is the index of the entry whose first block is at the current position.
	next int
}

// newEntryCursor returns a cursor positioned at the first block of entry 0.
func (r *Reader) newEntryCursor() *entryCursor {
	sr := io.NewSectionReader(r.ra, r.dataStart, r.size-r.dataStart)
	return &entryCursor{blocks: newBlockDecoder(bufio.NewReaderSize(sr, readerBodyBufferSize))}
}

// decodeEntry decodes all blocks of entry and writes them to w.
//
// A write failure does not stop decoding: the remaining blocks are still
// consumed so the cursor ends at the next entry, and the write error is
// returned afterwards. Decode failures are sticky and poison the cursor.
func (c *entryCursor) decodeEntry(entry EntryInfo, w io.Writer) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}

	var (
		written  int64
		writeErr error
	)

	for remaining := entry.Size; remaining > 0; {
		block, err := c.blocks.next(int(min(remaining, math.MaxInt32)))
		if err != nil {
			c.err = fmt.Errorf("entry %s: %w", entry.Path, err)
			return written, c.err
		}

		remaining -= int64(len(block))
		if writeErr != nil || w == nil {
			continue
		}

		n, err := w.Write(block)
		written += int64(n)
		if err == nil && n != len(block) {
			err = io.ErrShortWrite
		}
		if err != nil {
			writeErr = ioError("write "+entry.Path, err)
		}
	}

	c.next = entry.Index + 1
	return written, writeErr
}

// seekEntry positions the cursor at entry index, decoding and discarding preceding entries.
func (r *Reader) seekEntry(index int) (*entryCursor, error) {
	if r.cursor == nil || r.cursor.err != nil || r.cursor.next > index {
		r.cursor = r.newEntryCursor()
	}

	for r.cursor.next < index {
		if _, err := r.cursor.decodeEntry(r.entries[r.cursor.next], nil); err != nil {
			return nil, err
		}
	}

	return r.cursor, nil
}

// findEntryByName resolves one entry by normalized path.
func (r *Reader) findEntryByName(name string) (EntryInfo, bool) {
	lookupName := NormalizePath(name)
	for i := range r.entries {
		if NormalizePath(r.entries[i].Path) == lookupName {
			return r.entries[i], true
		}
	}

	return EntryInfo{}, false
}

// WriteEntryTo decodes the named entry into w and returns the number of bytes written.
func (r *Reader) WriteEntryTo(w io.Writer, name string) (int64, error) {
	if r == nil || r.ra == nil {
		return 0, ErrNilReader
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	entry, ok := r.findEntryByName(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	cursor, err := r.seekEntry(entry.Index)
	if err != nil {
		return 0, err
	}

	return cursor.decodeEntry(entry, w)
}

// ReadEntry reads full decompressed content of the named entry.
func (r *Reader) ReadEntry(name string) ([]byte, error) {
	var buf bytes.Buffer
	if r != nil {
		if entry, ok := r.findEntryByName(name); ok {
			buf.Grow(int(min(entry.Size, lzMaxReserve)))
		}
	}

	if _, err := r.WriteEntryTo(&buf, name); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
