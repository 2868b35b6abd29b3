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
	"crypto/aes"
	"crypto/subtle"
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/enceve/crypto/cmac"
)

// MacTag is a 16-byte AES-128-CMAC output.
type MacTag [16]byte // nolint:revive

// CMACSign computes AES-128-CMAC(key, data). key must be 16 bytes.
// A fresh cmac.Hash is constructed on every call; no state is carried
// between a MSG2 computation and a MSG3 computation even when both are
// keyed with the same SMK.
func CMACSign(key, data []byte) (MacTag, error) {
	var tag MacTag
	block, err := aes.NewCipher(key)
	if err != nil {
		return tag, fmt.Errorf("%w: %s", raerrors.ErrCryptographic, err)
	}
	mac, err := cmac.New(block)
	if err != nil {
		return tag, fmt.Errorf("%w: %s", raerrors.ErrCryptographic, err)
	}
	if _, err := mac.Write(data); err != nil {
		return tag, fmt.Errorf("%w: %s", raerrors.ErrCryptographic, err)
	}
	copy(tag[:], mac.Sum(nil))
	return tag, nil
}

// CMACVerify reports whether tag is the correct AES-128-CMAC(key, data),
// comparing in constant time. A mismatch is an integrity failure, not a
// cryptographic one: it means a peer-supplied value failed authentication,
// not that the primitive itself malfunctioned.
func CMACVerify(key, data []byte, tag MacTag) error {
	want, err := CMACSign(key, data)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(want[:], tag[:]) != 1 {
		return raerrors.ErrIntegrity
	}
	return nil
}
