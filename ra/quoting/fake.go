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

package quoting

import (
	"context"
	"fmt"

	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/raerrors"
)

// FakeService is an in-memory, deterministic Service double for tests
// and sample binaries. It is explicitly not EPID: quotes carry no
// signature at all, and the only authentication it produces is a CMAC
// over the QEReport under a fixed per-instance key, which is sufficient
// for exercising the identity/MAC/report-data bindings the rest of the
// module checks.
type FakeService struct {
	Gid        msg.Gid
	MRenclave  [32]byte
	MRSigner   [32]byte
	ISVProdID  uint16
	ISVSVN     uint16
	Debug      bool
	ReportKey  [16]byte // CMAC key used to "sign" QEReport.MAC
	targetInfo TargetInfo
}

// NewFakeService builds a FakeService reporting the given enclave
// identity fields in every Quote it issues.
func NewFakeService(gid msg.Gid, mrenclave, mrsigner [32]byte, isvProdID, isvSVN uint16, debug bool, reportKey [16]byte) *FakeService {
	ti := TargetInfo{}
	copy(ti[:4], gid[:])
	return &FakeService{
		Gid:        gid,
		MRenclave:  mrenclave,
		MRSigner:   mrsigner,
		ISVProdID:  isvProdID,
		ISVSVN:     isvSVN,
		Debug:      debug,
		ReportKey:  reportKey,
		targetInfo: ti,
	}
}

// InitQuote returns the fake quoting enclave's TargetInfo and Gid.
func (s *FakeService) InitQuote(_ context.Context) (TargetInfo, msg.Gid, error) {
	return s.targetInfo, s.Gid, nil
}

// GetQuote fabricates a Quote carrying this service's configured
// identity fields and the caller's report-data, plus a QEReport whose
// embedded Targetinfo and MAC a local-attestation check can verify.
func (s *FakeService) GetQuote(_ context.Context, report Report, _ msg.Spid, _ []byte, quoteType msg.QuoteType, _ [16]byte) (msg.Quote, QEReport, error) {
	if report.TargetInfo() != s.targetInfo {
		return msg.Quote{}, QEReport{}, fmt.Errorf("%w: report targeted at a different quoting enclave", raerrors.ErrIdentityMismatch)
	}

	var q msg.Quote
	q.SetMREnclave(s.MRenclave)
	q.SetMRSigner(s.MRSigner)
	q.SetISVProdIDAndSVN(s.ISVProdID, s.ISVSVN)
	q.SetDebug(s.Debug)
	q.SetReportData(report.ReportData())
	_ = quoteType // recorded by the real EPID signature; not modeled here

	var qe QEReport
	qe.SetTargetInfo(s.targetInfo)
	tag, err := racrypto.CMACSign(s.ReportKey[:], qe.MACBody())
	if err != nil {
		return msg.Quote{}, QEReport{}, fmt.Errorf("%w: sign QEReport: %s", raerrors.ErrCryptographic, err)
	}
	qe.SetMAC([16]byte(tag))

	return q, qe, nil
}
