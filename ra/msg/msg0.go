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

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// RaMsg0 carries the extended EPID group ID. Only exgid == 0 (IAS-based
// attestation) is supported; an SP receiving any other value rejects it.
type RaMsg0 struct {
	Exgid uint32
}

// Bytes returns the canonical little-endian encoding of m.
func (m RaMsg0) Bytes() []byte {
	var buf bytes.Buffer
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], m.Exgid)
	buf.Write(b[:])
	return buf.Bytes()
}

// ParseRaMsg0 decodes a RaMsg0 from its canonical encoding.
func ParseRaMsg0(data []byte) (RaMsg0, error) {
	if len(data) != 4 {
		return RaMsg0{}, fmt.Errorf("%w: RaMsg0 must be 4 bytes, got %d", raerrors.ErrEncoding, len(data))
	}
	return RaMsg0{Exgid: binary.LittleEndian.Uint32(data)}, nil
}
