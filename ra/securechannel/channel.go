// Copyright (C) 2025 The go-ra Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package securechannel implements the framed, sequenced,
// authenticated-encryption channel built over a byte stream once MK is
// established. Each direction carries an independent 64-bit sequence
// counter and an AES-128-GCM key.
//
// Record format, per direction:
//
//	u32 length (big-endian; covers nonce || ciphertext || tag)
//	12 bytes random nonce
//	ciphertext (= encrypt(seq(8, big-endian) || payload))
//	16 bytes GCM tag
package securechannel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// DefaultCapacity is the default write-buffering capacity and the
// maximum accepted record size, per spec.
const DefaultCapacity = 1 << 20 // 1 MiB

const (
	nonceSize  = 12
	tagSize    = 16
	seqPrefix  = 8
	headerSize = 4
)

// Channel is a duplex authenticated-encryption channel over an
// underlying io.ReadWriter. Writes are buffered up to Capacity and
// emitted as a single record on Flush or when the buffer is full. Reads
// pull and decrypt one record at a time and serve Read from it.
type Channel struct {
	rw io.ReadWriter

	seal     cipher.AEAD
	open     cipher.AEAD
	sealSeq  uint64
	openSeq  uint64
	capacity int

	writeBuf []byte

	readBuf []byte
	readPos int

	closed bool
}

// Option configures a Channel at construction.
type Option func(*Channel)

// WithCapacity overrides the default write-buffering / maximum-record
// capacity.
func WithCapacity(n int) Option {
	return func(c *Channel) { c.capacity = n }
}

// NewChannel constructs a Channel over rw using sealKey to encrypt
// outgoing records and openKey to decrypt incoming ones. Passing the
// same 16-byte key for both models the original single-MK design;
// passing two keys derived via ra/crypto.DeriveChannelKeys gives
// directional keys instead.
func NewChannel(rw io.ReadWriter, sealKey, openKey []byte, opts ...Option) (*Channel, error) {
	sealBlock, err := aes.NewCipher(sealKey)
	if err != nil {
		return nil, fmt.Errorf("%w: seal key: %s", raerrors.ErrCryptographic, err)
	}
	seal, err := cipher.NewGCM(sealBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: seal AEAD: %s", raerrors.ErrCryptographic, err)
	}
	openBlock, err := aes.NewCipher(openKey)
	if err != nil {
		return nil, fmt.Errorf("%w: open key: %s", raerrors.ErrCryptographic, err)
	}
	open, err := cipher.NewGCM(openBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: open AEAD: %s", raerrors.ErrCryptographic, err)
	}

	c := &Channel{ // nolint:exhaustruct
		rw:       rw,
		seal:     seal,
		open:     open,
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Write appends p to the pending write buffer, flushing a record
// whenever the buffer reaches Capacity. A write larger than the room
// left in the buffer is split across records within the same call.
func (c *Channel) Write(p []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("%w: channel closed", raerrors.ErrTransport)
	}
	n := len(p)
	for len(p) > 0 {
		room := c.capacity - len(c.writeBuf)
		if room <= 0 {
			if err := c.Flush(); err != nil {
				return n - len(p), err
			}
			room = c.capacity
		}
		take := room
		if take > len(p) {
			take = len(p)
		}
		c.writeBuf = append(c.writeBuf, p[:take]...)
		p = p[take:]
	}
	return n, nil
}

// Flush emits one record containing the accumulated write buffer, if
// any, and resets the buffer.
func (c *Channel) Flush() error {
	if len(c.writeBuf) == 0 {
		return nil
	}
	plaintext := make([]byte, seqPrefix+len(c.writeBuf))
	binary.BigEndian.PutUint64(plaintext[:seqPrefix], c.sealSeq)
	copy(plaintext[seqPrefix:], c.writeBuf)

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("%w: generate record nonce: %s", raerrors.ErrCryptographic, err)
	}

	sealed := c.seal.Seal(nil, nonce, plaintext, nil)

	record := make([]byte, headerSize+nonceSize+len(sealed))
	binary.BigEndian.PutUint32(record[:headerSize], uint32(nonceSize+len(sealed)))
	copy(record[headerSize:headerSize+nonceSize], nonce)
	copy(record[headerSize+nonceSize:], sealed)

	if _, err := c.rw.Write(record); err != nil {
		return fmt.Errorf("%w: write record: %s", raerrors.ErrTransport, err)
	}

	c.sealSeq++
	c.writeBuf = c.writeBuf[:0]
	return nil
}

// Read fills p from the current decrypted record, pulling and
// decrypting a new one from the stream when exhausted.
func (c *Channel) Read(p []byte) (int, error) {
	if c.closed {
		return 0, fmt.Errorf("%w: channel closed", raerrors.ErrTransport)
	}
	if c.readPos >= len(c.readBuf) {
		if err := c.readRecord(); err != nil {
			return 0, err
		}
	}
	n := copy(p, c.readBuf[c.readPos:])
	c.readPos += n
	return n, nil
}

// readRecord reads one record header and body, decrypts it, validates
// the sequence prefix, and stores the remaining payload for Read.
func (c *Channel) readRecord() error {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: EOF before record header", raerrors.ErrTransport)
		}
		return fmt.Errorf("%w: read record header: %s", raerrors.ErrTransport, err)
	}
	recordLen := binary.BigEndian.Uint32(header[:])
	if int(recordLen) > c.capacity+seqPrefix+nonceSize+tagSize {
		c.closed = true
		return fmt.Errorf("%w: record length %d exceeds channel capacity", raerrors.ErrInvalidInput, recordLen)
	}
	if int(recordLen) < nonceSize+tagSize {
		c.closed = true
		return fmt.Errorf("%w: record length %d too small for nonce+tag", raerrors.ErrInvalidInput, recordLen)
	}

	body := make([]byte, recordLen)
	if _, err := io.ReadFull(c.rw, body); err != nil {
		c.closed = true
		return fmt.Errorf("%w: truncated record: %s", raerrors.ErrTransport, err)
	}

	nonce := body[:nonceSize]
	sealed := body[nonceSize:]

	plaintext, err := c.open.Open(nil, nonce, sealed, nil)
	if err != nil {
		c.closed = true
		return fmt.Errorf("%w: record authentication failed", raerrors.ErrIntegrity)
	}
	if len(plaintext) < seqPrefix {
		c.closed = true
		return fmt.Errorf("%w: decrypted record shorter than sequence prefix", raerrors.ErrIntegrity)
	}

	seq := binary.BigEndian.Uint64(plaintext[:seqPrefix])
	if seq != c.openSeq {
		c.closed = true
		return fmt.Errorf("%w: unexpected sequence number %d, want %d", raerrors.ErrIntegrity, seq, c.openSeq)
	}
	c.openSeq++

	c.readBuf = plaintext[seqPrefix:]
	c.readPos = 0
	return nil
}

// Close marks the channel unusable. It does not close the underlying
// stream; callers own that lifecycle.
func (c *Channel) Close() error {
	c.closed = true
	return nil
}
