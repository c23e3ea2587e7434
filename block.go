// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// blockFlags is the first payload byte of every block.
type blockFlags byte

// Block flag bits.
const (
	flagLZ      blockFlags = 1 << 0
	flagHuffman blockFlags = 1 << 1
)

func (f blockFlags) lz() bool      { return f&flagLZ != 0 }
func (f blockFlags) huffman() bool { return f&flagHuffman != 0 }

// payloadOffset is where the post-Huffman stage starts reading the payload.
type payloadOffset int

const (
	// offsetFlagByte skips the flags byte still present in a raw payload.
	offsetFlagByte payloadOffset = 1
	// offsetStripped reads Huffman output, which carries no flags byte.
	offsetStripped payloadOffset = 0
)

// blockDecoder reads framed blocks from the body of an archive.
// It owns its scratch buffers; returned slices stay valid until the next call.
type blockDecoder struct {
	r       io.Reader
	payload []byte
	out     []byte
	// blocks counts frames read, for error messages.
	blocks int
}

func newBlockDecoder(r io.Reader) *blockDecoder {
	return &blockDecoder{r: r}
}

// next reads one block and returns its decoded bytes, at most limit of them.
func (d *blockDecoder) next(limit int) ([]byte, error) {
	var frame [blockFrameSize]byte
	if _, err := io.ReadFull(d.r, frame[:]); err != nil {
		return nil, d.readError("frame", err)
	}

	// frame[2:4] is reserved and never interpreted.
	n := int(binary.LittleEndian.Uint16(frame[0:2]))
	if cap(d.payload) < n {
		d.payload = make([]byte, n)
	}

	payload := d.payload[:n]
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, d.readError("payload", err)
	}

	d.blocks++
	out, err := d.decodePayload(payload, limit)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", d.blocks, err)
	}

	return out, nil
}

// decodePayload routes one payload through the Huffman and LZ stages selected by its flags.
func (d *blockDecoder) decodePayload(payload []byte, limit int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyBlock
	}

	flags := blockFlags(payload[0])
	data := payload
	offset := offsetFlagByte
	if flags.huffman() {
		if len(payload) < huffmanPreambleSize {
			return nil, fmt.Errorf("%w: Huffman block of %d bytes", ErrTruncatedBlock, len(payload))
		}

		preLZSize := int(binary.BigEndian.Uint16(payload[1:3]))
		decoded, err := decodeHuffman(payload[huffmanPreambleSize:], preLZSize)
		if err != nil {
			return nil, err
		}

		data = decoded
		offset = offsetStripped
	}

	data = data[offset:]
	if !flags.lz() {
		if len(data) > limit {
			return nil, fmt.Errorf("%w: stored block of %d bytes, %d left", ErrEntryOverflow, len(data), limit)
		}

		return data, nil
	}

	out, err := decodeLZ(d.out[:0], data, limit)
	if out != nil {
		d.out = out
	}
	if err != nil {
		return nil, err
	}

	return out, nil
}

// readError classifies a short read inside a frame as a format error.
func (d *blockDecoder) readError(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: block %d %s", ErrTruncatedBlock, d.blocks+1, part)
	}

	return ioError(fmt.Sprintf("read block %d %s", d.blocks+1, part), err)
}
