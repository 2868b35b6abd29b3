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
	"errors"
	"testing"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

func TestRSASignVerifyRoundTrip(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	data := []byte("g_b || g_a")

	sig, err := RSASign(priv, data)
	if err != nil {
		t.Fatalf("RSASign() error = %v", err)
	}
	if err := RSAVerify(&priv.PublicKey, data, sig); err != nil {
		t.Errorf("RSAVerify() error = %v, want nil", err)
	}
}

func TestRSAVerifyRejectsTamperedSignature(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	data := []byte("g_b || g_a")

	sig, err := RSASign(priv, data)
	if err != nil {
		t.Fatalf("RSASign() error = %v", err)
	}
	sig[0] ^= 0xFF

	if err := RSAVerify(&priv.PublicKey, data, sig); !errors.Is(err, raerrors.ErrIntegrity) {
		t.Errorf("RSAVerify() error = %v, want ErrIntegrity", err)
	}
}

func TestRSAVerifyRejectsUndersizeModulus(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}
	data := []byte("x")

	if err := RSAVerify(&priv.PublicKey, data, []byte{0}); !errors.Is(err, raerrors.ErrCryptographic) {
		t.Errorf("RSAVerify() error = %v, want ErrCryptographic for undersize modulus", err)
	}
}
