// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"encoding/binary"
	"fmt"
)

// LZ token geometry.
const (
	lzShortRunBase = 3    // H == 0: run length is L + 3
	lzLongRunBase  = 0x13 // H == 1: run length is L + (n << 4) + 0x13
	lzOffsetBase   = 3    // H >= 2: offset is (n << 4) + L + 3
	lzLongCopyBase = 0x10 // H == 2: copy length is n + 0x10

	lzMaxReserve = 1 << 20
)

// decodeLZ appends decoded bytes of one LZ block to dst and returns the extended slice.
//
// The stream is gated by 16-bit control words (two bytes, little-endian) tested
// from the most significant bit: 0 selects a literal byte, 1 selects a coded
// token. Back-references address only bytes produced by this call; limit bounds
// the number of bytes this call may produce.
func decodeLZ(dst []byte, src []byte, limit int) ([]byte, error) {
	base := len(dst)
	end := base + limit
	// Preallocation is capped at lzMaxReserve; larger outputs grow through append.
	if reserve := min(limit, lzMaxReserve); cap(dst)-base < reserve {
		grown := make([]byte, base, base+reserve)
		copy(grown, dst)
		dst = grown
	}

	var (
		control uint16
		mask    uint16
		pos     int
	)

	for pos < len(src) {
		mask >>= 1
		if mask == 0 {
			if len(src)-pos < 2 {
				return dst, fmt.Errorf("%w: control word at %d", ErrTruncatedToken, pos)
			}

			control = binary.LittleEndian.Uint16(src[pos:])
			mask = 0x8000
			pos += 2
			if pos == len(src) {
				break
			}
		}

		if control&mask == 0 {
			if len(dst) >= end {
				return dst, ErrEntryOverflow
			}

			dst = append(dst, src[pos])
			pos++
			continue
		}

		code := src[pos]
		high, low := int(code>>4), int(code&0x0F)
		switch high {
		case 0:
			if len(src)-pos < 2 {
				return dst, fmt.Errorf("%w: short run at %d", ErrTruncatedToken, pos)
			}

			var err error
			dst, err = appendRun(dst, src[pos+1], low+lzShortRunBase, end)
			if err != nil {
				return dst, err
			}

			pos += 2
		case 1:
			if len(src)-pos < 3 {
				return dst, fmt.Errorf("%w: long run at %d", ErrTruncatedToken, pos)
			}

			length := low + int(src[pos+1])<<4 + lzLongRunBase
			var err error
			dst, err = appendRun(dst, src[pos+2], length, end)
			if err != nil {
				return dst, err
			}

			pos += 3
		default:
			if len(src)-pos < 2 {
				return dst, fmt.Errorf("%w: back-reference at %d", ErrTruncatedToken, pos)
			}

			offset := int(src[pos+1])<<4 + low + lzOffsetBase
			length := high
			pos += 2
			if high == 2 {
				if pos >= len(src) {
					return dst, fmt.Errorf("%w: back-reference length at %d", ErrTruncatedToken, pos)
				}

				length = int(src[pos]) + lzLongCopyBase
				pos++
			}

			var err error
			dst, err = appendBackReference(dst, base, offset, length, end)
			if err != nil {
				return dst, err
			}
		}
	}

	return dst, nil
}

// appendRun appends length copies of value, bounded by end.
func appendRun(dst []byte, value byte, length int, end int) ([]byte, error) {
	if length > end-len(dst) {
		return dst, ErrEntryOverflow
	}

	for range length {
		dst = append(dst, value)
	}

	return dst, nil
}

// appendBackReference copies length bytes starting offset bytes behind the write position.
// The copy is byte by byte: with offset < length the source overlaps bytes written
// earlier in the same copy.
func appendBackReference(dst []byte, base int, offset int, length int, end int) ([]byte, error) {
	from := len(dst) - offset
	if from < base {
		return dst, fmt.Errorf("%w: offset %d at output position %d", ErrBadBackReference, offset, len(dst)-base)
	}

	if length > end-len(dst) {
		return dst, ErrEntryOverflow
	}

	for j := range length {
		dst = append(dst, dst[from+j])
	}

	return dst, nil
}
