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
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// RaMsg1Size is the fixed wire size of a RaMsg1: Gid (4) || g_a (65).
const RaMsg1Size = GidSize + DHKEPublicKeySize

// DHKEPublicKeySize is re-declared here for readability; it matches
// ra/crypto.DHKEPublicKeySize.
const DHKEPublicKeySize = 65

// RaMsg1 is sent client -> SP, carrying the platform's EPID group and
// the enclave's ephemeral ECDH public key.
type RaMsg1 struct {
	Gid Gid
	GA  DHKEPublicKey
}

// Bytes returns the canonical encoding of m.
func (m RaMsg1) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.Gid[:])
	buf.Write(m.GA[:])
	return buf.Bytes()
}

// ParseRaMsg1 decodes a RaMsg1 from its canonical encoding.
func ParseRaMsg1(data []byte) (RaMsg1, error) {
	if len(data) != RaMsg1Size {
		return RaMsg1{}, fmt.Errorf("%w: RaMsg1 must be %d bytes, got %d", raerrors.ErrEncoding, RaMsg1Size, len(data))
	}
	var m RaMsg1
	copy(m.Gid[:], data[0:GidSize])
	copy(m.GA[:], data[GidSize:RaMsg1Size])
	return m, nil
}
