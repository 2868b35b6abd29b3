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

import "crypto/sha256"

// Sha256Digest is a 32-byte SHA-256 digest.
type Sha256Digest [32]byte // nolint:revive

// SHA256 hashes the concatenation of data and returns the 32-byte digest.
func SHA256(data ...[]byte) Sha256Digest {
	h := sha256.New()
	for _, d := range data {
		h.Write(d) // nolint:errcheck
	}
	var out Sha256Digest
	copy(out[:], h.Sum(nil))
	return out
}
