// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bytes"
	"container/heap"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// Test-side encoder limits for the LZ dialect.
const (
	testMaxShortRun = 0x0F + lzShortRunBase
	testMaxLongRun  = 0x0F + 0xFF<<4 + lzLongRunBase
	testMaxOffset   = 0xFF<<4 + 0x0F + lzOffsetBase
	testMaxCopy     = 0xFF + lzLongCopyBase
)

// lzEncode is a greedy encoder for the LZ dialect decoded by decodeLZ.
func lzEncode(data []byte) []byte {
	var (
		out     []byte
		ctrlPos int
		bit     int = 16
		ctrl    uint16
	)

	flush := func() {
		if len(out) > 0 {
			binary.LittleEndian.PutUint16(out[ctrlPos:], ctrl)
		}
	}
	decision := func(coded bool) {
		if bit == 16 {
			flush()
			ctrlPos = len(out)
			out = append(out, 0, 0)
			ctrl, bit = 0, 0
		}
		if coded {
			ctrl |= 0x8000 >> bit
		}
		bit++
	}

	for pos := 0; pos < len(data); {
		run := 1
		for pos+run < len(data) && data[pos+run] == data[pos] && run < testMaxLongRun {
			run++
		}

		bestLen, bestOff := 0, 0
		for off := lzOffsetBase; off <= min(pos, testMaxOffset); off++ {
			n := 0
			for pos+n < len(data) && n < testMaxCopy && data[pos+n] == data[pos-off+n] {
				n++
			}
			if n > bestLen {
				bestLen, bestOff = n, off
			}
		}

		switch {
		case run >= lzShortRunBase && run >= bestLen:
			decision(true)
			if run <= testMaxShortRun {
				out = append(out, byte(run-lzShortRunBase), data[pos])
			} else {
				n := run - lzLongRunBase
				out = append(out, 0x10|byte(n&0x0F), byte(n>>4), data[pos])
			}
			pos += run
		case bestLen >= 3:
			n := bestOff - lzOffsetBase
			decision(true)
			if bestLen <= 0x0F {
				out = append(out, byte(bestLen<<4)|byte(n&0x0F), byte(n>>4))
			} else {
				out = append(out, 0x20|byte(n&0x0F), byte(n>>4), byte(bestLen-lzLongCopyBase))
			}
			pos += bestLen
		default:
			decision(false)
			out = append(out, data[pos])
			pos++
		}
	}

	flush()
	return out
}

// bitWriter packs bits MSB first.
type bitWriter struct {
	out  []byte
	nbit uint
}

func (w *bitWriter) writeBit(b byte) {
	if w.nbit%8 == 0 {
		w.out = append(w.out, 0)
	}
	w.out[len(w.out)-1] |= (b & 1) << (7 - w.nbit%8)
	w.nbit++
}

func (w *bitWriter) writeByte(v byte) {
	for i := 7; i >= 0; i-- {
		w.writeBit(v >> uint(i))
	}
}

// testHuffNode is a code tree node used by huffmanEncode.
type testHuffNode struct {
	weight      int
	symbol      byte
	order       int
	left, right *testHuffNode
}

type testHuffHeap []*testHuffNode

func (h testHuffHeap) Len() int { return len(h) }
func (h testHuffHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].order < h[j].order
}
func (h testHuffHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *testHuffHeap) Push(x any)   { *h = append(*h, x.(*testHuffNode)) }
func (h *testHuffHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// huffmanEncode writes the pre-order code tree followed by the codes of data.
func huffmanEncode(data []byte) []byte {
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	h := &testHuffHeap{}
	order := 0
	for sym, f := range freq {
		if f > 0 {
			*h = append(*h, &testHuffNode{weight: f, symbol: byte(sym), order: order})
			order++
		}
	}
	if h.Len() == 0 {
		*h = append(*h, &testHuffNode{weight: 1})
	}

	heap.Init(h)
	for h.Len() > 1 {
		a := heap.Pop(h).(*testHuffNode)
		b := heap.Pop(h).(*testHuffNode)
		heap.Push(h, &testHuffNode{weight: a.weight + b.weight, order: order, left: a, right: b})
		order++
	}
	root := (*h)[0]

	codes := make(map[byte][]byte)
	w := &bitWriter{}
	var walk func(n *testHuffNode, prefix []byte)
	walk = func(n *testHuffNode, prefix []byte) {
		if n.left == nil {
			w.writeBit(1)
			w.writeByte(n.symbol)
			codes[n.symbol] = append([]byte(nil), prefix...)
			return
		}
		w.writeBit(0)
		walk(n.left, append(prefix, 0))
		walk(n.right, append(prefix, 1))
	}
	walk(root, nil)

	for _, b := range data {
		for _, bit := range codes[b] {
			w.writeBit(bit)
		}
	}

	return w.out
}

// Block payload builders.
func storedPayload(data []byte) []byte {
	return append([]byte{0x00}, data...)
}

func lzPayload(data []byte) []byte {
	return append([]byte{byte(flagLZ)}, lzEncode(data)...)
}

func huffmanPayload(data []byte) []byte {
	p := []byte{byte(flagHuffman), 0, 0}
	binary.BigEndian.PutUint16(p[1:], uint16(len(data)))
	return append(p, huffmanEncode(data)...)
}

func huffmanLZPayload(data []byte) []byte {
	lz := lzEncode(data)
	p := []byte{byte(flagHuffman | flagLZ), 0, 0}
	binary.BigEndian.PutUint16(p[1:], uint16(len(lz)))
	return append(p, huffmanEncode(lz)...)
}

// frameBlock wraps one payload in a block frame with non-zero reserved bytes.
func frameBlock(payload []byte) []byte {
	frame := make([]byte, blockFrameSize, blockFrameSize+len(payload))
	binary.LittleEndian.PutUint16(frame, uint16(len(payload)))
	frame[2], frame[3] = 0xA5, 0x5A
	return append(frame, payload...)
}

// testEntry describes one entry of a synthetic archive.
type testEntry struct {
	name     []byte
	payloads [][]byte
	// size overrides the declared size when non-nil.
	size *int32
	data []byte
}

// newTestEntry splits data into blocks of blockSize and encodes them with enc.
func newTestEntry(name string, data []byte, blockSize int, enc func([]byte) []byte) testEntry {
	e := testEntry{name: []byte(name), data: data}
	for off := 0; off < len(data); off += blockSize {
		e.payloads = append(e.payloads, enc(data[off:min(off+blockSize, len(data))]))
	}

	return e
}

// buildArchive serializes entries with the given record size.
func buildArchive(recordSize int, entries []testEntry) []byte {
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	header[0] = encryptedHeaderMagic
	binary.LittleEndian.PutUint16(header[entryCountOffset:], uint16(len(entries)))
	header[recordSizeOffset] = byte(recordSize)
	buf.Write(header)

	for _, e := range entries {
		record := make([]byte, recordSize)
		copy(record[:recordSizeFieldOff], e.name)
		size := int32(len(e.data))
		if e.size != nil {
			size = *e.size
		}
		binary.LittleEndian.PutUint32(record[recordSizeFieldOff:], uint32(size))
		buf.Write(record)
	}

	for _, e := range entries {
		for _, p := range e.payloads {
			buf.Write(frameBlock(p))
		}
	}

	return buf.Bytes()
}

// writeArchive writes an archive to a temporary directory and returns its path.
func writeArchive(t testing.TB, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

// sampleData returns deterministic, compressible content.
func sampleData(seed int64, n int) []byte {
	rng := rand.New(rand.NewSource(seed))
	words := [][]byte{[]byte("page"), []byte("panel"), []byte("\x00\x00\x00\x00\x00\x00"), []byte("ink"), {0xFF, 0xD8, 0xFF}}
	out := make([]byte, 0, n)
	for len(out) < n {
		if rng.Intn(4) == 0 {
			out = append(out, byte(rng.Intn(256)))
			continue
		}
		out = append(out, words[rng.Intn(len(words))]...)
	}

	return out[:n]
}

// sortedPaths returns entry paths in lexical order.
func sortedPaths(entries []EntryInfo) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Path)
	}
	sort.Strings(out)
	return out
}

func int32Ptr(v int32) *int32 { return &v }
