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

// Package quoting declares the boundary between an enclave and the
// platform's quoting enclave. The protocol itself treats this boundary
// as opaque (EPID quote generation is out of scope); this package gives
// it a concrete Go shape so the rest of the module is exercisable
// without real SGX hardware.
package quoting

import (
	"context"

	"github.com/cybergarage/go-ra/ra/msg"
)

// TargetInfoSize is the opaque, platform-local size of a TargetInfo
// blob.
const TargetInfoSize = 512

// ReportDataSize is the size of the report-data field embedded in a
// Report and, ultimately, in the Quote the quoting enclave produces
// from it: SHA-256(g_a || g_b || VK), matching ra/msg.Quote's own
// report-data field.
const ReportDataSize = 32

// ReportSize is the opaque size of a local-attestation Report: the
// embedded TargetInfo of the quoting enclave it's addressed to,
// followed by the enclave's report-data payload.
const ReportSize = TargetInfoSize + ReportDataSize

// reportDataOffset is where a Report carries the enclave-chosen
// report-data payload, directly after the embedded TargetInfo.
const reportDataOffset = TargetInfoSize

// TargetInfo identifies the quoting enclave a Report is meant to be
// verifiable against. It is opaque platform state: the enclave obtains
// it from InitQuote and embeds it unmodified in the Report it asks the
// quoting enclave to sign.
type TargetInfo [TargetInfoSize]byte

// Report is the local-attestation structure an enclave builds and asks
// the quoting enclave to convert into a Quote.
type Report [ReportSize]byte

// ReportData returns the 32-byte report-data field, the channel the
// protocol uses to bind a Quote to a specific g_a||g_b||VK digest.
func (r *Report) ReportData() [ReportDataSize]byte {
	var out [ReportDataSize]byte
	copy(out[:], r[reportDataOffset:reportDataOffset+ReportDataSize])
	return out
}

// SetReportData writes the report-data field.
func (r *Report) SetReportData(data [ReportDataSize]byte) {
	copy(r[reportDataOffset:reportDataOffset+ReportDataSize], data[:])
}

// SetTargetInfo embeds ti at the start of the report, the layout the
// quoting enclave and QEReport.TargetInfo agree on.
func (r *Report) SetTargetInfo(ti TargetInfo) {
	copy(r[:TargetInfoSize], ti[:])
}

// TargetInfo extracts the embedded TargetInfo.
func (r *Report) TargetInfo() TargetInfo {
	var ti TargetInfo
	copy(ti[:], r[:TargetInfoSize])
	return ti
}

// QEReportSize is the opaque size of a QEReport, the quoting enclave's
// own local-attestation report proving it produced a given Quote: an
// embedded Targetinfo followed by a 16-byte MAC over it.
const QEReportSize = TargetInfoSize + qeMacSize

// QEReport is the report the quoting enclave returns alongside a Quote
// so the requesting enclave can locally attest that the Quote really
// came from the platform's quoting enclave targeted at its own
// Targetinfo (spec §4.8).
type QEReport [QEReportSize]byte

// qeTargetInfoOffset and qeMacOffset mirror Report's own layout: the
// QEReport embeds the Targetinfo it was generated against, and a MAC
// over the rest of the structure.
const (
	qeTargetInfoOffset = 0
	qeMacOffset        = TargetInfoSize
	qeMacSize          = 16
)

// TargetInfo extracts the Targetinfo the quoting enclave says it used.
func (q *QEReport) TargetInfo() TargetInfo {
	var ti TargetInfo
	copy(ti[:], q[qeTargetInfoOffset:qeTargetInfoOffset+TargetInfoSize])
	return ti
}

// SetTargetInfo sets the Targetinfo field (used by Service
// implementations and local-attestation tests).
func (q *QEReport) SetTargetInfo(ti TargetInfo) {
	copy(q[qeTargetInfoOffset:qeTargetInfoOffset+TargetInfoSize], ti[:])
}

// MAC extracts the report's authentication tag.
func (q *QEReport) MAC() [qeMacSize]byte {
	var m [qeMacSize]byte
	copy(m[:], q[qeMacOffset:qeMacOffset+qeMacSize])
	return m
}

// SetMAC sets the report's authentication tag.
func (q *QEReport) SetMAC(m [qeMacSize]byte) {
	copy(q[qeMacOffset:qeMacOffset+qeMacSize], m[:])
}

// MACBody returns the bytes the MAC is computed over: everything except
// the MAC field itself.
func (q *QEReport) MACBody() []byte {
	return q[:qeMacOffset]
}

// Service is the quoting-service bridge spec.md names as out of scope
// but requires as an interface boundary: InitQuote retrieves platform
// state (TargetInfo, Gid) and GetQuote converts a local Report into a
// Quote plus the QEReport that lets the enclave locally attest it.
type Service interface {
	InitQuote(ctx context.Context) (TargetInfo, msg.Gid, error)
	GetQuote(ctx context.Context, report Report, spid msg.Spid, sigRL []byte, quoteType msg.QuoteType, nonce [16]byte) (msg.Quote, QEReport, error)
}
