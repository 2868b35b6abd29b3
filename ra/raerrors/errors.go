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

// Package raerrors centralizes the error kinds produced by the attestation
// core so that callers can classify a failure with errors.Is. The wrapped
// message names the specific check for local logs; no error text is sent
// to a peer.
package raerrors

import "errors"

var (
	// ErrTransport indicates a socket or HTTPS transport failure.
	ErrTransport = errors.New("ra: transport error")
	// ErrEncoding indicates a peer message failed to deserialize.
	ErrEncoding = errors.New("ra: encoding error")
	// ErrCryptographic indicates a primitive-level cryptographic failure.
	ErrCryptographic = errors.New("ra: cryptographic error")
	// ErrIntegrity indicates a MAC, signature, digest-binding, or sequence
	// check failed. Always fatal; never retried.
	ErrIntegrity = errors.New("ra: integrity error")
	// ErrIdentityMismatch indicates MRENCLAVE/MRSIGNER/ISVPRODID/ISVSVN
	// deviate from the configured Sigstruct.
	ErrIdentityMismatch = errors.New("ra: identity mismatch")
	// ErrDebugInProduction indicates the enclave advertises the DEBUG
	// attribute while the verifier is a release build.
	ErrDebugInProduction = errors.New("ra: debug enclave rejected in production")
	// ErrNotTrusted indicates MSG4 reported the enclave or PSE manifest
	// as untrusted.
	ErrNotTrusted = errors.New("ra: not trusted")
	// ErrAttestationService indicates a non-200 response or an invalid
	// signature on an Attestation Service response.
	ErrAttestationService = errors.New("ra: attestation service error")
	// ErrInvalidInput indicates a caller- or peer-supplied value violated
	// a documented precondition (e.g. an oversize record header).
	ErrInvalidInput = errors.New("ra: invalid input")
	// ErrKeyConsumed indicates an ephemeral private key was used in a
	// second Derive call after being consumed by the first.
	ErrKeyConsumed = errors.New("ra: ephemeral key already consumed")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target, and if so,
// sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
