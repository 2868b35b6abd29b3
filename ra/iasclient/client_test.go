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

package iasclient

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/raerrors"
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

func pemEncodeCert(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})) // nolint:exhaustruct
}

func TestClientFetchSigRLReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/attestation/v3/sigrl/deadbeef" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get(subscriptionHeader) != "sub-key" {
			t.Errorf("missing subscription header")
		}
		_, _ = w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", nil)
	got, present, err := c.FetchSigRL(t.Context(), "deadbeef")
	if err != nil {
		t.Fatalf("FetchSigRL() error = %v", err)
	}
	if !present {
		t.Errorf("FetchSigRL() present = false, want true")
	}
	if len(got) != 3 {
		t.Errorf("FetchSigRL() = %v, want 3 bytes", got)
	}
}

func TestClientFetchSigRLAbsentOnZeroContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", nil)
	got, present, err := c.FetchSigRL(t.Context(), "deadbeef")
	if err != nil {
		t.Fatalf("FetchSigRL() error = %v", err)
	}
	if present {
		t.Errorf("FetchSigRL() present = true, want false")
	}
	if len(got) != 0 {
		t.Errorf("FetchSigRL() = %v, want empty", got)
	}
}

func TestClientFetchReportVerifiesSignatureChain(t *testing.T) {
	ca, caKey := mustSelfSignedCA(t)
	leaf, leafKey := mustLeafSignedBy(t, ca, caKey)

	body := []byte(`{"id":"1","isvEnclaveQuoteStatus":"OK"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig, err := racrypto.RSASign(leafKey, body)
		if err != nil {
			t.Fatalf("RSASign() error = %v", err)
		}
		chain := pemEncodeCert(leaf) + pemEncodeCert(ca)
		w.Header().Set(signingCertHeader, chain)
		w.Header().Set(signatureHeader, base64.StdEncoding.EncodeToString(sig))
		w.Header().Set(requestIDHeader, "req-123")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", ca)
	report, err := c.FetchReport(t.Context(), []byte("quote bytes"))
	if err != nil {
		t.Fatalf("FetchReport() error = %v", err)
	}
	if string(report.Body) != string(body) {
		t.Errorf("FetchReport() body = %q, want %q", report.Body, body)
	}
	if report.RequestID != "req-123" {
		t.Errorf("FetchReport() request id = %q, want req-123", report.RequestID)
	}
}

func TestClientFetchReportRejectsWrongRootCA(t *testing.T) {
	ca, caKey := mustSelfSignedCA(t)
	leaf, leafKey := mustLeafSignedBy(t, ca, caKey)
	otherCA, _ := mustSelfSignedCA(t)

	body := []byte(`{"isvEnclaveQuoteStatus":"OK"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig, err := racrypto.RSASign(leafKey, body)
		if err != nil {
			t.Fatalf("RSASign() error = %v", err)
		}
		chain := pemEncodeCert(leaf) + pemEncodeCert(ca)
		w.Header().Set(signingCertHeader, chain)
		w.Header().Set(signatureHeader, base64.StdEncoding.EncodeToString(sig))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", otherCA)
	_, err := c.FetchReport(t.Context(), []byte("quote bytes"))
	if !errors.Is(err, raerrors.ErrAttestationService) {
		t.Errorf("FetchReport() error = %v, want ErrAttestationService", err)
	}
}

func TestClientFetchReportRejectsTamperedBody(t *testing.T) {
	ca, caKey := mustSelfSignedCA(t)
	leaf, leafKey := mustLeafSignedBy(t, ca, caKey)

	signedBody := []byte(`{"isvEnclaveQuoteStatus":"OK"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig, err := racrypto.RSASign(leafKey, signedBody)
		if err != nil {
			t.Fatalf("RSASign() error = %v", err)
		}
		chain := pemEncodeCert(leaf) + pemEncodeCert(ca)
		w.Header().Set(signingCertHeader, chain)
		w.Header().Set(signatureHeader, base64.StdEncoding.EncodeToString(sig))
		w.WriteHeader(http.StatusOK)
		// Respond with a body different from what was signed.
		_, _ = w.Write([]byte(`{"isvEnclaveQuoteStatus":"SIGNATURE_INVALID"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", ca)
	_, err := c.FetchReport(t.Context(), []byte("quote bytes"))
	if !errors.Is(err, raerrors.ErrAttestationService) {
		t.Errorf("FetchReport() error = %v, want ErrAttestationService", err)
	}
}

func TestClientFetchReportRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sub-key", nil)
	_, err := c.FetchReport(t.Context(), []byte("quote bytes"))
	if !errors.Is(err, raerrors.ErrAttestationService) {
		t.Errorf("FetchReport() error = %v, want ErrAttestationService", err)
	}
}
