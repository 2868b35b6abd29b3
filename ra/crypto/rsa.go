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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// minRSAModulusBits and maxRSAModulusBits bound the moduli accepted on
// verification, per the 2048-8192-bit range the design allows.
const (
	minRSAModulusBits = 2048
	maxRSAModulusBits = 8192
)

// RSASign signs data with PKCS#1 v1.5 / SHA-256 under the SP's private
// key.
func RSASign(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: RSA sign: %s", raerrors.ErrCryptographic, err)
	}
	return sig, nil
}

// RSAVerify verifies a PKCS#1 v1.5 / SHA-256 signature under pub. The
// modulus size is checked against the accepted range before verifying;
// a signature that fails cryptographic verification is an integrity
// failure of the peer-supplied message, not a primitive malfunction.
func RSAVerify(pub *rsa.PublicKey, data, sig []byte) error {
	bits := pub.N.BitLen()
	if bits < minRSAModulusBits || bits > maxRSAModulusBits {
		return fmt.Errorf("%w: RSA modulus size %d bits out of accepted range", raerrors.ErrCryptographic, bits)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return raerrors.ErrIntegrity
	}
	return nil
}
