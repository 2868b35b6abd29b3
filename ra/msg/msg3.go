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

import "bytes"

// RaMsg3 is sent enclave -> client -> SP.
type RaMsg3 struct {
	Mac             MacTag
	GA              DHKEPublicKey
	PsSecProp       [PSSecPropSize]byte
	PsSecPropPresent bool
	Quote           Quote
}

// Bytes returns the canonical encoding of m.
func (m RaMsg3) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.Mac[:])
	buf.Write(m.GA[:])
	writeOptionalFixed(&buf, m.PsSecPropPresent, m.PsSecProp[:])
	buf.Write(m.Quote[:])
	return buf.Bytes()
}

// ParseRaMsg3 decodes a RaMsg3 from its canonical encoding.
func ParseRaMsg3(data []byte) (RaMsg3, error) {
	r := bytes.NewReader(data)
	var m RaMsg3

	mac, err := readFixed(r, 16)
	if err != nil {
		return RaMsg3{}, err
	}
	copy(m.Mac[:], mac)

	ga, err := readFixed(r, DHKEPublicKeySize)
	if err != nil {
		return RaMsg3{}, err
	}
	copy(m.GA[:], ga)

	pse, present, err := readOptionalFixed(r, PSSecPropSize)
	if err != nil {
		return RaMsg3{}, err
	}
	m.PsSecPropPresent = present
	if present {
		copy(m.PsSecProp[:], pse)
	}

	quote, err := readFixed(r, QuoteSize)
	if err != nil {
		return RaMsg3{}, err
	}
	copy(m.Quote[:], quote)

	return m, nil
}

// Transcript returns the byte string m = g_a || [ps_sec_prop if present]
// || quote, which MSG3's mac field authenticates under SMK.
func (m RaMsg3) Transcript() []byte {
	var buf bytes.Buffer
	buf.Write(m.GA[:])
	if m.PsSecPropPresent {
		buf.Write(m.PsSecProp[:])
	}
	buf.Write(m.Quote[:])
	return buf.Bytes()
}
