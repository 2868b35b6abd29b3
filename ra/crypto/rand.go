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

// Package crypto implements the primitives the attestation core needs:
// AES-128-CMAC, SHA-256, ECDH on P-256, RSA-PKCS1v15 sign/verify, and
// X.509 chain verification.
package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// RandomBytes returns n cryptographically random bytes read from the
// system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: %s", raerrors.ErrCryptographic, err)
	}
	return b, nil
}

// Zero overwrites b in place with zeros. Used to scrub secret material
// from a context on teardown or on any error path.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
