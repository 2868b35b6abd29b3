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
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// ParseRSAPrivateKeyPEM parses a PEM-encoded RSA private key in either
// PKCS#1 or PKCS#8 form.
func ParseRSAPrivateKeyPEM(b []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found in private key", raerrors.ErrEncoding)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse RSA private key: %s", raerrors.ErrEncoding, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not RSA", raerrors.ErrEncoding)
	}
	return rsaKey, nil
}

// ParseRSAPublicKeyPEM parses a PEM-encoded RSA public key in PKIX form,
// the format an enclave's pinned SP verification key is distributed in.
func ParseRSAPublicKeyPEM(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found in public key", raerrors.ErrEncoding)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse RSA public key: %s", raerrors.ErrEncoding, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not RSA", raerrors.ErrEncoding)
	}
	return rsaKey, nil
}

// ParseCertificatePEMOrDER parses a single X.509 certificate from either
// PEM or raw DER bytes.
func ParseCertificatePEMOrDER(b []byte) (*x509.Certificate, error) {
	der := b
	if block, _ := pem.Decode(b); block != nil {
		der = block.Bytes
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parse certificate: %s", raerrors.ErrEncoding, err)
	}
	return cert, nil
}

// VerifyLeafAgainstCA checks that leaf was signed by ca, evaluated at
// verifyTime. The caller supplies verifyTime explicitly rather than this
// package defaulting to a pinned constant; see SPEC_FULL.md's open
// question on X.509 verification time.
func VerifyLeafAgainstCA(leaf, ca *x509.Certificate, verifyTime time.Time) error {
	roots := x509.NewCertPool()
	roots.AddCert(ca)
	_, err := leaf.Verify(x509.VerifyOptions{ // nolint:exhaustruct
		Roots:       roots,
		CurrentTime: verifyTime,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return fmt.Errorf("%w: leaf certificate does not chain to trusted CA: %s", raerrors.ErrAttestationService, err)
	}
	return nil
}

// VerifySignatureUnderLeaf verifies sig over data using the leaf
// certificate's RSA public key.
func VerifySignatureUnderLeaf(leaf *x509.Certificate, data, sig []byte) error {
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: leaf certificate key is not RSA", raerrors.ErrCryptographic)
	}
	if err := RSAVerify(pub, data, sig); err != nil {
		return fmt.Errorf("%w: report signature verification failed", raerrors.ErrAttestationService)
	}
	return nil
}
