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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func mustSelfSignedCA(t *testing.T) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{ // nolint:exhaustruct
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test IAS root"}, // nolint:exhaustruct
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("x509.CreateCertificate() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("x509.ParseCertificate() error = %v", err)
	}
	return cert, priv
}

func mustLeafSignedBy(t *testing.T, ca *x509.Certificate, caKey *rsa.PrivateKey) (*x509.Certificate, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{ // nolint:exhaustruct
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test IAS report signer"}, // nolint:exhaustruct
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &priv.PublicKey, caKey)
	if err != nil {
		t.Fatalf("x509.CreateCertificate() error = %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("x509.ParseCertificate() error = %v", err)
	}
	return cert, priv
}

func TestVerifyLeafAgainstCA(t *testing.T) {
	ca, caKey := mustSelfSignedCA(t)
	leaf, _ := mustLeafSignedBy(t, ca, caKey)

	if err := VerifyLeafAgainstCA(leaf, ca, time.Now()); err != nil {
		t.Errorf("VerifyLeafAgainstCA() error = %v, want nil", err)
	}
}

func TestVerifyLeafAgainstCARejectsUntrustedCA(t *testing.T) {
	ca, _ := mustSelfSignedCA(t)
	otherCA, otherKey := mustSelfSignedCA(t)
	leaf, _ := mustLeafSignedBy(t, otherCA, otherKey)

	if err := VerifyLeafAgainstCA(leaf, ca, time.Now()); err == nil {
		t.Errorf("VerifyLeafAgainstCA() error = nil, want error for untrusted CA")
	}
}

func TestVerifySignatureUnderLeaf(t *testing.T) {
	ca, caKey := mustSelfSignedCA(t)
	leaf, leafKey := mustLeafSignedBy(t, ca, caKey)

	body := []byte(`{"isvEnclaveQuoteStatus":"OK"}`)
	sig, err := RSASign(leafKey, body)
	if err != nil {
		t.Fatalf("RSASign() error = %v", err)
	}

	if err := VerifySignatureUnderLeaf(leaf, body, sig); err != nil {
		t.Errorf("VerifySignatureUnderLeaf() error = %v, want nil", err)
	}

	tampered := append([]byte{}, body...)
	tampered[0] ^= 0xFF
	if err := VerifySignatureUnderLeaf(leaf, tampered, sig); err == nil {
		t.Errorf("VerifySignatureUnderLeaf() error = nil, want error for tampered body")
	}
}
