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

// Package transport provides the minimal length-prefixed message
// boundary the two peer links (Client<->Enclave, Client<->SP) need to
// carry MSG0-MSG4 over a byte stream such as a TCP connection. Socket
// accept/connect and TLS setup themselves are out of scope (spec §1);
// this is only the framing needed so the wire formats in ra/msg are
// bytes-on-a-socket rather than an abstraction.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// maxMessageSize bounds a single framed message to guard against a
// malicious or corrupt length prefix causing an unbounded allocation.
const maxMessageSize = 16 * 1024 * 1024

// Transport is the narrow interface the attestation contexts use to
// exchange framed messages with a peer. Implementations are expected to
// be safe for use by a single goroutine at a time, matching the
// single-threaded-per-context concurrency model.
type Transport interface {
	Transmit(ctx context.Context, b []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Stream implements Transport over any io.ReadWriteCloser by prefixing
// each message with a big-endian uint32 length.
type Stream struct {
	rwc io.ReadWriteCloser
}

// NewStream wraps rwc (typically a net.Conn) in length-prefixed framing.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{rwc: rwc}
}

// Transmit writes b as one length-prefixed frame. ctx is accepted for
// interface symmetry with Receive; cancellation of an in-flight write on
// a plain io.Writer is the caller's responsibility (e.g. via a
// context-aware net.Conn deadline).
func (s *Stream) Transmit(_ context.Context, b []byte) error {
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(b)))
	if _, err := s.rwc.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("%w: write length prefix: %s", raerrors.ErrTransport, err)
	}
	if _, err := s.rwc.Write(b); err != nil {
		return fmt.Errorf("%w: write message: %s", raerrors.ErrTransport, err)
	}
	return nil
}

// Receive reads one length-prefixed frame.
func (s *Stream) Receive(_ context.Context) ([]byte, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(s.rwc, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("%w: read length prefix: %s", raerrors.ErrTransport, err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("%w: message length %d exceeds maximum %d", raerrors.ErrInvalidInput, n, maxMessageSize)
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(s.rwc, b); err != nil {
			return nil, fmt.Errorf("%w: read message: %s", raerrors.ErrTransport, err)
		}
	}
	return b, nil
}

// Close closes the underlying stream.
func (s *Stream) Close() error {
	if err := s.rwc.Close(); err != nil {
		return fmt.Errorf("%w: close stream: %s", raerrors.ErrTransport, err)
	}
	return nil
}
