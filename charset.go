// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// nameDecoder converts stored entry names to UTF-8.
type nameDecoder struct {
	enc encoding.Encoding // nil means names are already UTF-8
}

// newNameDecoder resolves a charset name to a decoder.
func newNameDecoder(charset string) (nameDecoder, error) {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case CharsetISO88591, "latin1", "iso8859-1":
		return nameDecoder{enc: charmap.ISO8859_1}, nil
	case CharsetWindows1252, "cp1252":
		return nameDecoder{enc: charmap.Windows1252}, nil
	case CharsetCP437, "ibm437":
		return nameDecoder{enc: charmap.CodePage437}, nil
	case CharsetCP850, "ibm850":
		return nameDecoder{enc: charmap.CodePage850}, nil
	case CharsetUTF8, "utf8":
		return nameDecoder{}, nil
	default:
		return nameDecoder{}, fmt.Errorf("%w: %q", ErrUnknownCharset, charset)
	}
}

// decode returns raw as a UTF-8 string.
func (d nameDecoder) decode(raw []byte) (string, error) {
	if d.enc == nil || isASCII(raw) {
		return string(raw), nil
	}

	decoded, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: decode entry name: %w", ErrFormat, err)
	}

	return string(decoded), nil
}

// isASCII reports whether raw contains only ASCII bytes.
func isASCII(raw []byte) bool {
	for _, b := range raw {
		if b >= 0x80 {
			return false
		}
	}

	return true
}
