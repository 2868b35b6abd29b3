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

package crypto

import "fmt"

// KDK is the 16-byte key-derivation key extracted from the ECDH shared
// secret.
type KDK [16]byte // nolint:revive

// DerivedKey is any of the four 16-byte keys derived from a KDK.
type DerivedKey [16]byte // nolint:revive

// zeroKey is the all-zero 16-byte AES-128 key used to extract KDK from
// the raw shared secret, per the KDK-extraction step of the key-agreement
// design.
var zeroKey = make([]byte, 16)

// labels are the exact on-wire bytes signed under KDK to derive each
// child key. These are literal byte slices, not built at runtime, so the
// exact bytes are reviewable: 0x01 || ASCII(label) || 0x00 || 0x80 0x00.
var (
	labelSMK = []byte{0x01, 0x53, 0x4D, 0x4B, 0x00, 0x80, 0x00}
	labelSK  = []byte{0x01, 0x53, 0x4B, 0x00, 0x80, 0x00}
	labelMK  = []byte{0x01, 0x4D, 0x4B, 0x00, 0x80, 0x00}
	labelVK  = []byte{0x01, 0x56, 0x4B, 0x00, 0x80, 0x00}
)

// ExtractKDK computes KDK = AES-128-CMAC(key = 16 zero bytes, data =
// sharedSecret).
func ExtractKDK(sharedSecret []byte) (KDK, error) {
	tag, err := CMACSign(zeroKey, sharedSecret)
	if err != nil {
		return KDK{}, fmt.Errorf("extract KDK: %w", err)
	}
	return KDK(tag), nil
}

// ChildKeys holds the four keys derived from a KDK.
type ChildKeys struct {
	SMK DerivedKey
	SK  DerivedKey
	MK  DerivedKey
	VK  DerivedKey
}

// DeriveChildKeys derives SMK, SK, MK, and VK from kdk.
func DeriveChildKeys(kdk KDK) (ChildKeys, error) {
	var keys ChildKeys
	for _, d := range []struct {
		label []byte
		out   *DerivedKey
	}{
		{labelSMK, &keys.SMK},
		{labelSK, &keys.SK},
		{labelMK, &keys.MK},
		{labelVK, &keys.VK},
	} {
		tag, err := CMACSign(kdk[:], d.label)
		if err != nil {
			return ChildKeys{}, fmt.Errorf("derive child key: %w", err)
		}
		*d.out = DerivedKey(tag)
	}
	return keys, nil
}

// channel-direction labels used by DeriveChannelKeys. These are this
// module's own addition (see SPEC_FULL.md §9 on secure-channel key
// direction) and are not part of the original four-label table.
var (
	labelClientToEnclave = []byte("C2E")
	labelEnclaveToClient = []byte("E2C")
)

// DeriveChannelKeys splits MK into two directional AES-128-GCM keys via
// CMAC(MK, label), for callers that want distinct seal/open keys instead
// of reusing MK in both directions.
func DeriveChannelKeys(mk DerivedKey) (clientToEnclave, enclaveToClient DerivedKey, err error) {
	c2e, err := CMACSign(mk[:], labelClientToEnclave)
	if err != nil {
		return DerivedKey{}, DerivedKey{}, fmt.Errorf("derive channel keys: %w", err)
	}
	e2c, err := CMACSign(mk[:], labelEnclaveToClient)
	if err != nil {
		return DerivedKey{}, DerivedKey{}, fmt.Errorf("derive channel keys: %w", err)
	}
	return DerivedKey(c2e), DerivedKey(e2c), nil
}
