// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bytes"
	"errors"
	"testing"
)

// twoSymbolStream is the tree {0: 'a', 1: 'b'} followed by the codes for "ab"
// and three bits of zero padding.
var twoSymbolStream = []byte{0x58, 0x6C, 0x48}

func TestDecodeHuffmanCraftedTree(t *testing.T) {
	t.Parallel()

	got, err := decodeHuffman(twoSymbolStream, 2)
	if err != nil {
		t.Fatalf("decodeHuffman: %v", err)
	}
	if string(got) != "ab" {
		t.Fatalf("decodeHuffman=%q, want %q", got, "ab")
	}

	// Padding bits decode as code 0 until the stream runs dry.
	got, err = decodeHuffman(twoSymbolStream, 5)
	if err != nil {
		t.Fatalf("decodeHuffman padded: %v", err)
	}
	if string(got) != "abaaa" {
		t.Fatalf("decodeHuffman=%q, want %q", got, "abaaa")
	}

	_, err = decodeHuffman(twoSymbolStream, 6)
	if !errors.Is(err, ErrShortHuffmanStream) || !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrShortHuffmanStream, got %v", err)
	}
}

func TestDecodeHuffmanSingleLeaf(t *testing.T) {
	t.Parallel()

	stream := huffmanEncode([]byte("qqqq"))
	if len(stream) != 2 {
		t.Fatalf("len(stream)=%d, want 2", len(stream))
	}

	for _, n := range []int{4, 1000} {
		got, err := decodeHuffman(stream, n)
		if err != nil {
			t.Fatalf("decodeHuffman(%d): %v", n, err)
		}
		if !bytes.Equal(got, bytes.Repeat([]byte("q"), n)) {
			t.Fatalf("decodeHuffman(%d) returned %q", n, got)
		}
	}
}

func TestDecodeHuffmanZeroLength(t *testing.T) {
	t.Parallel()

	got, err := decodeHuffman(twoSymbolStream, 0)
	if err != nil {
		t.Fatalf("decodeHuffman: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got)=%d, want 0", len(got))
	}
}

func TestDecodeHuffmanInvalidTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  []byte
	}{
		{name: "empty", src: nil},
		{name: "inner nodes only", src: []byte{0x00}},
		{name: "leaf symbol cut", src: []byte{0x80}},
		{name: "second subtree missing", src: []byte{0x58, 0x6C}},
		{name: "too many inner nodes", src: make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeHuffman(tt.src, 1)
			if !errors.Is(err, ErrInvalidHuffmanTable) || !errors.Is(err, ErrDecode) {
				t.Fatalf("expected ErrInvalidHuffmanTable, got %v", err)
			}
		})
	}
}

func TestDecodeHuffmanRoundTrip(t *testing.T) {
	t.Parallel()

	all := make([]byte, 0, 512)
	for i := range 512 {
		all = append(all, byte(i*7))
	}

	inputs := map[string][]byte{
		"text":      []byte("the quick brown fox jumps over the lazy dog"),
		"sample":    sampleData(3, 3000),
		"all bytes": all,
		"skewed":    append(bytes.Repeat([]byte{0}, 900), 1, 2, 3, 4, 5, 6, 7, 8),
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := decodeHuffman(huffmanEncode(data), len(data))
			if err != nil {
				t.Fatalf("decodeHuffman: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
			}
		})
	}
}
