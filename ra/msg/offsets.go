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

package msg

import "encoding/binary"

// Fixed byte offsets the core inspects within an opaque Quote blob, per
// the SGX quote body layout. The core never parses the rest of the
// blob; EPID signing and verification are handled entirely by the
// out-of-scope quoting service and Attestation Service.
const (
	offsetFlags     = 96  // 8 bytes, little-endian; bit 0x2 is the DEBUG attribute.
	offsetMREnclave = 112 // 32 bytes
	offsetMRSigner  = 176 // 32 bytes
	offsetISVProdID = 304 // 2 bytes, little-endian
	offsetISVSVN    = 306 // 2 bytes, little-endian
	offsetReportData = 368 // 32 bytes: SHA-256(g_a || g_b || VK)
)

// flagDebug is the DEBUG attribute bit within the flags field.
const flagDebug = 0x2

// MREnclave returns the 32-byte MRENCLAVE measurement embedded in q.
func (q Quote) MREnclave() [32]byte {
	var out [32]byte
	copy(out[:], q[offsetMREnclave:offsetMREnclave+32])
	return out
}

// MRSigner returns the 32-byte MRSIGNER measurement embedded in q.
func (q Quote) MRSigner() [32]byte {
	var out [32]byte
	copy(out[:], q[offsetMRSigner:offsetMRSigner+32])
	return out
}

// ISVProdID returns the little-endian ISV product ID embedded in q.
func (q Quote) ISVProdID() uint16 {
	return binary.LittleEndian.Uint16(q[offsetISVProdID : offsetISVProdID+2])
}

// ISVSVN returns the little-endian ISV security version number embedded
// in q.
func (q Quote) ISVSVN() uint16 {
	return binary.LittleEndian.Uint16(q[offsetISVSVN : offsetISVSVN+2])
}

// ReportData returns the 32-byte report-data binding embedded in q.
func (q Quote) ReportData() [32]byte {
	var out [32]byte
	copy(out[:], q[offsetReportData:offsetReportData+32])
	return out
}

// IsDebug reports whether q's enclave advertises the DEBUG attribute.
func (q Quote) IsDebug() bool {
	flags := binary.LittleEndian.Uint64(q[offsetFlags : offsetFlags+8])
	return flags&flagDebug != 0
}

// SetReportData writes data into q's report-data field, for use when a
// quoting-service stand-in constructs a Quote (see ra/quoting).
func (q *Quote) SetReportData(data [32]byte) {
	copy(q[offsetReportData:offsetReportData+32], data[:])
}

// SetMREnclave writes mrenclave into q, for use by quoting-service
// stand-ins constructing test/demo quotes.
func (q *Quote) SetMREnclave(mrenclave [32]byte) {
	copy(q[offsetMREnclave:offsetMREnclave+32], mrenclave[:])
}

// SetMRSigner writes mrsigner into q, for use by quoting-service
// stand-ins constructing test/demo quotes.
func (q *Quote) SetMRSigner(mrsigner [32]byte) {
	copy(q[offsetMRSigner:offsetMRSigner+32], mrsigner[:])
}

// SetISVProdIDAndSVN writes the product ID and security version number
// into q.
func (q *Quote) SetISVProdIDAndSVN(prodID, svn uint16) {
	binary.LittleEndian.PutUint16(q[offsetISVProdID:offsetISVProdID+2], prodID)
	binary.LittleEndian.PutUint16(q[offsetISVSVN:offsetISVSVN+2], svn)
}

// SetDebug sets or clears the DEBUG attribute bit in q.
func (q *Quote) SetDebug(debug bool) {
	flags := binary.LittleEndian.Uint64(q[offsetFlags : offsetFlags+8])
	if debug {
		flags |= flagDebug
	} else {
		flags &^= flagDebug
	}
	binary.LittleEndian.PutUint64(q[offsetFlags:offsetFlags+8], flags)
}
