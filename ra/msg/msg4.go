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
)

// RaMsg4 is sent SP -> client -> enclave, carrying the trust decision.
type RaMsg4 struct {
	IsEnclaveTrusted bool

	IsPseManifestTrusted        bool
	IsPseManifestTrustedPresent bool

	Pib        []byte
	PibPresent bool
}

// Bytes returns the canonical encoding of m.
func (m RaMsg4) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(boolByte(m.IsEnclaveTrusted))
	writeOptionalFixed(&buf, m.IsPseManifestTrustedPresent, []byte{boolByte(m.IsPseManifestTrusted)})
	writeOptionalVar(&buf, m.PibPresent, m.Pib)
	return buf.Bytes()
}

// ParseRaMsg4 decodes a RaMsg4 from its canonical encoding.
func ParseRaMsg4(data []byte) (RaMsg4, error) {
	r := bytes.NewReader(data)
	var m RaMsg4

	trustedByte, err := readFixed(r, 1)
	if err != nil {
		return RaMsg4{}, err
	}
	m.IsEnclaveTrusted = trustedByte[0] != 0

	pse, present, err := readOptionalFixed(r, 1)
	if err != nil {
		return RaMsg4{}, err
	}
	m.IsPseManifestTrustedPresent = present
	if present {
		m.IsPseManifestTrusted = pse[0] != 0
	}

	m.Pib, m.PibPresent, err = readOptionalVar(r)
	if err != nil {
		return RaMsg4{}, err
	}

	return m, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
