// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import "fmt"

// maxHuffmanLeaves bounds the embedded code tree: one leaf per byte value.
const maxHuffmanLeaves = 256

// huffmanNode is one code tree node; leaves have zero == one == -1.
type huffmanNode struct {
	zero, one int
	symbol    byte
}

// bitReader reads a byte slice as an MSB-first bitstream.
type bitReader struct {
	src  []byte
	pos  int // byte position
	bit  uint8
	left int // unread bits
}

func newBitReader(src []byte) *bitReader {
	return &bitReader{src: src, left: len(src) * 8}
}

// readBit returns the next bit or false when the stream is exhausted.
func (br *bitReader) readBit() (uint8, bool) {
	if br.left == 0 {
		return 0, false
	}

	b := (br.src[br.pos] >> (7 - br.bit)) & 1
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	br.left--

	return b, true
}

// readByte returns the next 8 bits as one byte.
func (br *bitReader) readByte() (byte, bool) {
	if br.left < 8 {
		return 0, false
	}

	var v byte
	for range 8 {
		b, _ := br.readBit()
		v = v<<1 | b
	}

	return v, true
}

// decodeHuffman decodes exactly n bytes from a Huffman block.
//
// The block starts with the code tree serialized in pre-order: bit 1 is a leaf
// followed by its 8-bit symbol, bit 0 is an inner node followed by its 0 and
// then its 1 subtree. Codes follow immediately, packed MSB first. This table
// layout is an assumption of this package, not a documented property of CBV
// Huffman blocks.
func decodeHuffman(src []byte, n int) ([]byte, error) {
	br := newBitReader(src)
	nodes, err := readHuffmanTree(br)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	if nodes[0].zero < 0 {
		// A single-leaf tree has zero-length codes.
		for i := range out {
			out[i] = nodes[0].symbol
		}

		return out, nil
	}

	for i := range out {
		node := 0
		for nodes[node].zero >= 0 {
			b, ok := br.readBit()
			if !ok {
				return nil, fmt.Errorf("%w: %d of %d bytes decoded", ErrShortHuffmanStream, i, n)
			}

			if b == 0 {
				node = nodes[node].zero
			} else {
				node = nodes[node].one
			}
		}

		out[i] = nodes[node].symbol
	}

	return out, nil
}

// huffmanSlot is a child pointer waiting for its subtree.
type huffmanSlot struct {
	parent int
	one    bool
}

// readHuffmanTree parses the pre-order code tree without recursion.
func readHuffmanTree(br *bitReader) ([]huffmanNode, error) {
	nodes := make([]huffmanNode, 0, 2*maxHuffmanLeaves-1)
	slots := []huffmanSlot{{parent: -1}}
	inner := 0

	for len(slots) > 0 {
		slot := slots[len(slots)-1]
		slots = slots[:len(slots)-1]

		b, ok := br.readBit()
		if !ok {
			return nil, fmt.Errorf("%w: tree truncated", ErrInvalidHuffmanTable)
		}

		idx := len(nodes)
		if b == 1 {
			sym, ok := br.readByte()
			if !ok {
				return nil, fmt.Errorf("%w: leaf symbol truncated", ErrInvalidHuffmanTable)
			}

			nodes = append(nodes, huffmanNode{zero: -1, one: -1, symbol: sym})
		} else {
			inner++
			if inner >= maxHuffmanLeaves {
				return nil, fmt.Errorf("%w: more than %d leaves", ErrInvalidHuffmanTable, maxHuffmanLeaves)
			}

			nodes = append(nodes, huffmanNode{zero: -1, one: -1})
			// The 0 subtree is serialized first, so it is pushed last.
			slots = append(slots, huffmanSlot{parent: idx, one: true}, huffmanSlot{parent: idx})
		}

		switch {
		case slot.parent < 0:
		case slot.one:
			nodes[slot.parent].one = idx
		default:
			nodes[slot.parent].zero = idx
		}
	}

	return nodes, nil
}
