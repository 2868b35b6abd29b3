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

package enclavectx

import (
	"fmt"

	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/raerrors"
)

// VerifyLocalAttestation checks that qeReport was produced by the
// platform's Quoting Enclave targeted at wantTargetInfo: its embedded
// Targetinfo must match, and its MAC (CMAC under reportKey) must
// verify. This is the narrow, spec-consistent version of local
// attestation described in SPEC_FULL.md §4.8: reportKey models the
// platform report key a real EGETKEY-derived key would provide,
// configured out of band between the enclave and the quoting service
// rather than negotiated over the wire.
func VerifyLocalAttestation(qeReport quoting.QEReport, wantTargetInfo quoting.TargetInfo, reportKey [16]byte) error {
	if qeReport.TargetInfo() != wantTargetInfo {
		return fmt.Errorf("%w: QE report targeted at a different enclave", raerrors.ErrIdentityMismatch)
	}
	if err := racrypto.CMACVerify(reportKey[:], qeReport.MACBody(), racrypto.MacTag(qeReport.MAC())); err != nil {
		return fmt.Errorf("%w: QE report MAC invalid", raerrors.ErrIntegrity)
	}
	return nil
}
