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

import (
	"crypto/ecdh"
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// DHKEPublicKeySize is the encoded length of an uncompressed P-256 point
// (0x04 || X || Y).
const DHKEPublicKeySize = 65

// DHKEPublicKey is an uncompressed P-256 point.
type DHKEPublicKey [DHKEPublicKeySize]byte // nolint:revive

// ECDHPrivateKey is an ephemeral P-256 private key. It is a one-shot
// capability: Derive consumes it, and a second call returns
// raerrors.ErrKeyConsumed instead of silently reusing the scalar. This is
// an assertion-time guard, not a compile-time one, since Go has no linear
// types; see SPEC_FULL.md's note on ephemeral-key ownership.
type ECDHPrivateKey struct {
	key *ecdh.PrivateKey
}

// GenerateECDHKeypair generates a fresh ephemeral P-256 keypair.
func GenerateECDHKeypair() (*ECDHPrivateKey, DHKEPublicKey, error) {
	key, err := ecdh.P256().GenerateKey(cryptoRandReader{})
	if err != nil {
		return nil, DHKEPublicKey{}, fmt.Errorf("%w: generate ECDH keypair: %s", raerrors.ErrCryptographic, err)
	}
	pub, err := publicKeyBytes(key.PublicKey())
	if err != nil {
		return nil, DHKEPublicKey{}, err
	}
	return &ECDHPrivateKey{key: key}, pub, nil
}

// Derive computes the raw X-coordinate shared secret between own and
// peer, then consumes own so it cannot be reused.
func (k *ECDHPrivateKey) Derive(peer DHKEPublicKey) ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, fmt.Errorf("%w: ECDH private key already consumed", raerrors.ErrKeyConsumed)
	}
	peerKey, err := ecdh.P256().NewPublicKey(peer[:])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid peer public key: %s", raerrors.ErrCryptographic, err)
	}
	secret, err := k.key.ECDH(peerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: ECDH derive: %s", raerrors.ErrCryptographic, err)
	}
	k.key = nil
	return secret, nil
}

func publicKeyBytes(pub *ecdh.PublicKey) (DHKEPublicKey, error) {
	raw := pub.Bytes()
	var out DHKEPublicKey
	if len(raw) != DHKEPublicKeySize {
		return out, fmt.Errorf("%w: unexpected P-256 public key length %d", raerrors.ErrCryptographic, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// cryptoRandReader forwards to crypto/rand.Reader. Defined locally so
// this file's only import of the CSPRNG is explicit and auditable.
type cryptoRandReader struct{}

func (cryptoRandReader) Read(p []byte) (int, error) {
	b, err := RandomBytes(len(p))
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}
