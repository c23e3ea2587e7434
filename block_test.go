// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bytes"
	"errors"
	"testing"
)

func TestBlockDecoderRouting(t *testing.T) {
	t.Parallel()

	data := sampleData(7, 2000)
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "stored", payload: storedPayload(data)},
		{name: "lz", payload: lzPayload(data)},
		{name: "huffman", payload: huffmanPayload(data)},
		{name: "huffman over lz", payload: huffmanLZPayload(data)},
		{name: "unknown flag bits", payload: append([]byte{0xF0 | byte(flagLZ)}, lzEncode(data)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newBlockDecoder(bytes.NewReader(frameBlock(tt.payload)))
			got, err := d.next(len(data))
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("decoded %d bytes, want %d identical bytes", len(got), len(data))
			}
		})
	}
}

func TestBlockDecoderSequence(t *testing.T) {
	t.Parallel()

	parts := [][]byte{
		[]byte("first block"),
		bytes.Repeat([]byte("second "), 20),
		[]byte("third"),
	}

	var stream []byte
	stream = append(stream, frameBlock(lzPayload(parts[0]))...)
	stream = append(stream, frameBlock(huffmanLZPayload(parts[1]))...)
	stream = append(stream, frameBlock(storedPayload(parts[2]))...)

	d := newBlockDecoder(bytes.NewReader(stream))
	for i, want := range parts {
		got, err := d.next(1 << 12)
		if err != nil {
			t.Fatalf("block %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("block %d=%q, want %q", i, got, want)
		}
	}

	if _, err := d.next(1); !errors.Is(err, ErrTruncatedBlock) {
		t.Fatalf("expected ErrTruncatedBlock, got %v", err)
	}
}

func TestBlockDecoderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stream  []byte
		limit   int
		wantErr error
	}{
		{name: "no frame", stream: nil, limit: 10, wantErr: ErrTruncatedBlock},
		{name: "short frame", stream: []byte{0x05, 0x00}, limit: 10, wantErr: ErrTruncatedBlock},
		{name: "short payload", stream: []byte{0x05, 0x00, 0x00, 0x00, 0x00, 'a'}, limit: 10, wantErr: ErrTruncatedBlock},
		{name: "empty payload", stream: frameBlock(nil), limit: 10, wantErr: ErrEmptyBlock},
		{name: "short huffman preamble", stream: frameBlock([]byte{0x02, 0x00}), limit: 10, wantErr: ErrTruncatedBlock},
		{name: "stored past limit", stream: frameBlock(storedPayload([]byte("abcdef"))), limit: 5, wantErr: ErrEntryOverflow},
		{name: "lz past limit", stream: frameBlock(lzPayload([]byte("abcdef"))), limit: 5, wantErr: ErrEntryOverflow},
		{
			name:    "huffman stream too short",
			stream:  frameBlock(append([]byte{0x02, 0x00, 0x06}, twoSymbolStream...)),
			limit:   10,
			wantErr: ErrShortHuffmanStream,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newBlockDecoder(bytes.NewReader(tt.stream)).next(tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBlockDecoderHuffmanSizeIsPreLZSize(t *testing.T) {
	t.Parallel()

	// Huffman output carries no flags byte: all of it is block data.
	payload := append([]byte{0x02, 0x00, 0x02}, twoSymbolStream...)
	got, err := newBlockDecoder(bytes.NewReader(frameBlock(payload))).next(2)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if string(got) != "ab" {
		t.Fatalf("next=%q, want %q", got, "ab")
	}
}
