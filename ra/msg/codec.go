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

package msg

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// writeVarBytes writes a uint32 little-endian length prefix followed by b.
func writeVarBytes(buf *bytes.Buffer, b []byte) {
	var lenBytes [4]byte
	binary.LittleEndian.PutUint32(lenBytes[:], uint32(len(b)))
	buf.Write(lenBytes[:])
	buf.Write(b)
}

// readVarBytes reads a uint32 little-endian length prefix followed by
// that many bytes.
func readVarBytes(r *bytes.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, fmt.Errorf("%w: read length prefix: %s", raerrors.ErrEncoding, err)
	}
	n := binary.LittleEndian.Uint32(lenBytes[:])
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: read %d bytes: %s", raerrors.ErrEncoding, n, err)
		}
	}
	return b, nil
}

// writeOptionalFixed writes a one-byte presence flag, and if present the
// fixed-size payload with no length prefix.
func writeOptionalFixed(buf *bytes.Buffer, present bool, payload []byte) {
	if !present {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	buf.Write(payload)
}

// readOptionalFixed reads a one-byte presence flag and, if set, n bytes.
func readOptionalFixed(r *bytes.Reader, n int) (payload []byte, present bool, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, false, fmt.Errorf("%w: read presence flag: %s", raerrors.ErrEncoding, err)
	}
	if flag == 0 {
		return nil, false, nil
	}
	payload = make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, fmt.Errorf("%w: read optional payload: %s", raerrors.ErrEncoding, err)
	}
	return payload, true, nil
}

// writeOptionalVar writes a one-byte presence flag and, if present, a
// uint32 little-endian length prefix followed by payload. present=false
// models "absent" (e.g. a zero Content-Length sigRL response); present=true
// with an empty payload models an explicit empty list — the two are
// distinguishable on the wire.
func writeOptionalVar(buf *bytes.Buffer, present bool, payload []byte) {
	if !present {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeVarBytes(buf, payload)
}

// readOptionalVar reads the encoding written by writeOptionalVar.
func readOptionalVar(r *bytes.Reader) (payload []byte, present bool, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return nil, false, fmt.Errorf("%w: read presence flag: %s", raerrors.ErrEncoding, err)
	}
	if flag == 0 {
		return nil, false, nil
	}
	payload, err = readVarBytes(r)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func readFixed(r *bytes.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: read %d bytes: %s", raerrors.ErrEncoding, n, err)
	}
	return b, nil
}
