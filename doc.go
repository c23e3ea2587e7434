// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

/*
Package cbv reads and extracts CBV comic archives and their DES-encrypted
CBZ variant.

A CBV archive is an 8-byte preamble, a table of fixed-size entry records
(name in a legacy codepage, declared size at record offset 136) and then the
entry bodies as one stream of framed blocks. Every block is either stored,
LZ-compressed, Huffman-coded, or Huffman-coded LZ data. Bodies carry no
offsets, so entries are decoded strictly in table order.

# Reading

Open an archive and list or read entries:

	r, err := cbv.Open("book.cbv")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    fmt.Println(e.Path, e.Size)
	}
	data, err := r.ReadEntry("page001.jpg")

Names are decoded from ISO-8859-1 by default; select another codepage with
ReaderOptions:

	r, err := cbv.OpenWithOptions("book.cbv", cbv.ReaderOptions{
	    NameCharset: cbv.CharsetCP437,
	})

# Extracting

Extract all entries to a directory. Each file is written to a temporary name
and renamed into place once it decoded to exactly its declared size:

	res, err := r.Extract(ctx, "out/", cbv.ExtractOptions{})

Select entries with github.com/woozymasta/pathrules rules:

	res, err := r.Extract(ctx, "out/", cbv.ExtractOptions{
	    Rules: []pathrules.Rule{
	        {Action: pathrules.ActionInclude, Pattern: "*.jpg"},
	    },
	})

# Encrypted archives

CBZ archives are DES-ECB encrypted with a key derived from a password:

	r, err := cbv.OpenEncrypted("book.cbz", password, cbv.ReaderOptions{})
	if errors.Is(err, cbv.ErrPassword) {
	    // wrong password
	}

The password check only compares the first decrypted byte with the known
preamble byte; it is a heuristic, not an integrity check.

# Errors

Archive, decode and file system failures wrap one of ErrFormat, ErrDecode,
ErrPassword or ErrIO, so callers can branch with errors.Is on the kind.
*/
package cbv
