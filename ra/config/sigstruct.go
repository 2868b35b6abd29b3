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

package config

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/cybergarage/go-ra/ra/raerrors"
)

// Fixed byte offsets within a SIGSTRUCT, per the Intel SGX architecture
// (the signing enclave metadata the SP is configured with out of
// band). Only the fields the SP's identity check needs are read; the
// RSA-3072 signature fields themselves are not verified here (the
// SIGSTRUCT is a trusted local input, not something received over the
// wire).
const (
	sigstructSize            = 1808
	sigstructModulusOffset   = 128
	sigstructModulusSize     = 384
	sigstructAttrFlagsOffset = 928
	sigstructEnclaveHashOff  = 960
	sigstructEnclaveHashSize = 32
	sigstructISVProdIDOffset = 1024
	sigstructISVSVNOffset    = 1026
)

// Sigstruct is the subset of a SIGSTRUCT's fields the SP's identity
// check needs: the enclave measurement, the signer's modulus (from
// which MRSIGNER is derived as SHA-256(modulus)), and the declared
// product ID / security version number.
type Sigstruct struct {
	EnclaveHash [32]byte
	Modulus     [sigstructModulusSize]byte
	ISVProdID   uint16
	ISVSVN      uint16
	AttrFlags   uint64
}

// MRSigner returns SHA-256 of the signer's RSA modulus, the value the
// platform reports as MRSIGNER in a Quote.
func (s Sigstruct) MRSigner() [32]byte {
	return sha256.Sum256(s.Modulus[:])
}

// ParseSigstruct parses a raw SIGSTRUCT blob.
func ParseSigstruct(b []byte) (Sigstruct, error) {
	if len(b) < sigstructSize {
		return Sigstruct{}, fmt.Errorf("%w: sigstruct is %d bytes, want at least %d", raerrors.ErrEncoding, len(b), sigstructSize)
	}
	var s Sigstruct
	copy(s.EnclaveHash[:], b[sigstructEnclaveHashOff:sigstructEnclaveHashOff+sigstructEnclaveHashSize])
	copy(s.Modulus[:], b[sigstructModulusOffset:sigstructModulusOffset+sigstructModulusSize])
	s.ISVProdID = binary.LittleEndian.Uint16(b[sigstructISVProdIDOffset : sigstructISVProdIDOffset+2])
	s.ISVSVN = binary.LittleEndian.Uint16(b[sigstructISVSVNOffset : sigstructISVSVNOffset+2])
	s.AttrFlags = binary.LittleEndian.Uint64(b[sigstructAttrFlagsOffset : sigstructAttrFlagsOffset+8])
	return s, nil
}
