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

// Package msg implements the canonical binary encoding of MSG0-MSG4 and
// the transcript helpers (a, m, gb||ga) the state machines MAC and sign
// over. All multi-byte integers on these peer messages are little-endian.
package msg

import racrypto "github.com/cybergarage/go-ra/ra/crypto"

// QuoteSize is the fixed, opaque size of a platform Quote blob.
const QuoteSize = 1116

// GidSize is the EPID group identifier size.
const GidSize = 4

// SpidSize is the service provider identifier size.
const SpidSize = 16

// Gid is a 4-byte EPID group identifier.
type Gid [GidSize]byte

// Spid is a 16-byte service provider identifier.
type Spid [SpidSize]byte

// Quote is an opaque, fixed-size blob from the platform quoting service.
// The core inspects only fixed offsets within it (see offsets.go).
type Quote [QuoteSize]byte

// QuoteType selects EPID linkability.
type QuoteType uint16

const (
	// QuoteTypeUnlinkable selects an unlinkable EPID signature.
	QuoteTypeUnlinkable QuoteType = 0
	// QuoteTypeLinkable selects a linkable EPID signature.
	QuoteTypeLinkable QuoteType = 1
)

// DHKEPublicKey re-exports the crypto package's ECDH public key encoding
// so callers of this package don't need to import ra/crypto directly for
// message construction.
type DHKEPublicKey = racrypto.DHKEPublicKey

// MacTag re-exports the crypto package's CMAC tag type.
type MacTag = racrypto.MacTag

// PSSecPropSize is the fixed size of the optional platform-services
// security-properties blob.
const PSSecPropSize = 256
