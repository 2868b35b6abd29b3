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
)

// RaMsg2 is sent SP -> client -> enclave. SigRLPresent distinguishes an
// absent sig_rl (a Content-Length: 0 sigrl response) from an
// explicit empty revocation list (SigRLPresent true, len(SigRL) == 0).
type RaMsg2 struct {
	GB         DHKEPublicKey
	Spid       Spid
	QuoteType  QuoteType
	SignGBGA   []byte // RSA-PKCS1v15 signature, modulus-length bytes.
	Mac        MacTag
	SigRL      []byte
	SigRLPresent bool
}

// Bytes returns the canonical encoding of m.
func (m RaMsg2) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.GB[:])
	buf.Write(m.Spid[:])
	var qt [2]byte
	binary.LittleEndian.PutUint16(qt[:], uint16(m.QuoteType))
	buf.Write(qt[:])
	writeVarBytes(&buf, m.SignGBGA)
	buf.Write(m.Mac[:])
	writeOptionalVar(&buf, m.SigRLPresent, m.SigRL)
	return buf.Bytes()
}

// ParseRaMsg2 decodes a RaMsg2 from its canonical encoding.
func ParseRaMsg2(data []byte) (RaMsg2, error) {
	r := bytes.NewReader(data)
	var m RaMsg2

	gb, err := readFixed(r, DHKEPublicKeySize)
	if err != nil {
		return RaMsg2{}, err
	}
	copy(m.GB[:], gb)

	spid, err := readFixed(r, SpidSize)
	if err != nil {
		return RaMsg2{}, err
	}
	copy(m.Spid[:], spid)

	qtBytes, err := readFixed(r, 2)
	if err != nil {
		return RaMsg2{}, err
	}
	m.QuoteType = QuoteType(binary.LittleEndian.Uint16(qtBytes))

	m.SignGBGA, err = readVarBytes(r)
	if err != nil {
		return RaMsg2{}, err
	}

	mac, err := readFixed(r, 16)
	if err != nil {
		return RaMsg2{}, err
	}
	copy(m.Mac[:], mac)

	m.SigRL, m.SigRLPresent, err = readOptionalVar(r)
	if err != nil {
		return RaMsg2{}, err
	}

	return m, nil
}

// Transcript returns the byte string a = g_b || spid || quote_type (LE
// u16) || sign_gb_ga, which MSG2's mac field authenticates under SMK.
func (m RaMsg2) Transcript() []byte {
	var buf bytes.Buffer
	buf.Write(m.GB[:])
	buf.Write(m.Spid[:])
	var qt [2]byte
	binary.LittleEndian.PutUint16(qt[:], uint16(m.QuoteType))
	buf.Write(qt[:])
	buf.Write(m.SignGBGA)
	return buf.Bytes()
}

// SignedTranscript returns g_b || g_a, the bytes the SP's RSA signature
// in sign_gb_ga is computed over.
func SignedTranscript(gb, ga DHKEPublicKey) []byte {
	out := make([]byte, 0, DHKEPublicKeySize*2)
	out = append(out, gb[:]...)
	out = append(out, ga[:]...)
	return out
}
