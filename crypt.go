// SPDX-License-Identifier: MIT
// Copyright (c) 2026 gbtami
// Source: github.com/gbtami/cbv

package cbv

import (
	"bufio"
	"crypto/cipher"
	"crypto/des" //nolint:gosec // CBZ archives are DES-ECB encrypted.
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EncryptedExt is the file extension of DES-encrypted archives.
	EncryptedExt = ".cbz"
	// PlainExt is the file extension of plain archives.
	PlainExt = ".cbv"

	keySize = 8
	// decryptChunkSize is a multiple of the DES block size.
	decryptChunkSize = 64 * 1024
)

// IsEncryptedName reports whether path names an encrypted archive.
func IsEncryptedName(path string) bool {
	return strings.EqualFold(filepath.Ext(path), EncryptedExt)
}

// DecryptedName returns the plain archive name for an encrypted archive path.
func DecryptedName(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + PlainExt
}

// DeriveKey derives the 8-byte DES key from a password.
//
// Shorter passwords are repeated cyclically, longer ones are folded into a
// zero key with key[i%8] = key[i%8]*2 ^ password[i], and 8-byte passwords are
// used verbatim.
func DeriveKey(password string) ([keySize]byte, error) {
	var key [keySize]byte
	p := []byte(password)

	switch {
	case len(p) == 0:
		return key, ErrEmptyPassword
	case len(p) < keySize:
		for i := range key {
			key[i] = p[i%len(p)]
		}
	case len(p) > keySize:
		for i, b := range p {
			key[i%keySize] = key[i%keySize]*2 ^ b
		}
	default:
		copy(key[:], p)
	}

	return key, nil
}

// decryptReader decrypts a DES-ECB stream. A trailing partial block is passed through unchanged.
type decryptReader struct {
	src   *bufio.Reader
	block cipher.Block
	buf   []byte
	out   []byte
	err   error
}

// NewDecryptReader returns a reader of the decrypted archive.
//
// The password is checked only heuristically: the first decrypted byte must
// equal the first byte of a CBV preamble. A wrong key that happens to produce
// it is not detected here and fails later as a format or decode error.
func NewDecryptReader(src io.Reader, password string) (io.Reader, error) {
	key, err := DeriveKey(password)
	if err != nil {
		return nil, err
	}

	block, err := des.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("des cipher: %w", err)
	}

	d := &decryptReader{
		src:   bufio.NewReaderSize(src, decryptChunkSize),
		block: block,
		buf:   make([]byte, decryptChunkSize),
	}

	if err := d.fill(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if len(d.out) == 0 || d.out[0] != encryptedHeaderMagic {
		return nil, ErrPassword
	}

	return d, nil
}

// Read implements io.Reader.
func (d *decryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}

		if err := d.fill(); err != nil {
			d.err = err
		}
	}

	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

// fill reads and decrypts the next chunk into d.out.
func (d *decryptReader) fill() error {
	n, err := io.ReadFull(d.src, d.buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = io.EOF
	case err != nil && !errors.Is(err, io.EOF):
		return ioError("read encrypted archive", err)
	}

	chunk := d.buf[:n]
	bs := d.block.BlockSize()
	for off := 0; off+bs <= len(chunk); off += bs {
		d.block.Decrypt(chunk[off:off+bs], chunk[off:off+bs])
	}

	d.out = chunk
	return err
}

// DecryptFile decrypts an encrypted archive at src into dst.
// Nothing is left at dst when the password check or any write fails.
func DecryptFile(src string, dst string, password string) error {
	in, err := os.Open(src)
	if err != nil {
		return ioError("open encrypted archive", err)
	}
	defer func() { _ = in.Close() }()

	plain, err := NewDecryptReader(in, password)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), extractTempPattern)
	if err != nil {
		return ioError("create decrypted archive", err)
	}

	tmpPath := tmp.Name()
	_, err = io.Copy(tmp, plain)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = finalizeOutput(tmpPath, dst)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return ioError("write decrypted archive", err)
	}

	return nil
}

// OpenEncrypted decrypts an encrypted archive into a temporary file and opens it.
// The temporary file is removed when the returned Reader is closed.
func OpenEncrypted(path string, password string, opts ReaderOptions) (*Reader, error) {
	tmp, err := os.CreateTemp("", "cbv-decrypted-*"+PlainExt)
	if err != nil {
		return nil, ioError("create decrypted archive", err)
	}

	tmpPath := tmp.Name()
	_ = tmp.Close()
	if err := DecryptFile(path, tmpPath, password); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	r, err := OpenWithOptions(tmpPath, opts)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	r.cleanup = func() error {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}

		return nil
	}

	return r, nil
}
