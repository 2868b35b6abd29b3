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

// Package spctx implements the Service Provider side of the attestation
// state machine: INIT -> AWAIT_M1 -> AWAIT_M3 -> DONE | REJECTED. It
// talks to the Client over a single transport.Transport and to the
// Attestation Service via ra/iasclient.
package spctx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cybergarage/go-logger/log"
	"github.com/cybergarage/go-ra/ra/config"
	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/iasclient"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/google/uuid"
)

// State is the SP-side attestation state.
type State int

const (
	StateInit State = iota
	StateAwaitMsg1
	StateAwaitMsg3
	StateDone
	StateRejected
)

// IAS is the narrow Attestation Service surface spctx needs, satisfied
// by *iasclient.Client.
type IAS interface {
	FetchSigRL(ctx context.Context, gidHex string) (sigRL []byte, present bool, err error)
	FetchReport(ctx context.Context, quote []byte) (*iasclient.Report, error)
}

// Context holds one SP-side attestation's secret and protocol state. It
// is single-use: Run may be called exactly once.
type Context struct {
	link transport.Transport
	cfg  *config.SPConfig
	ias  IAS

	// sessionID tags this context's own log lines. It is generated
	// locally and is not exchanged with the enclave or client.
	sessionID string

	state State

	priv *racrypto.ECDHPrivateKey
	ga   msg.DHKEPublicKey
	gb   msg.DHKEPublicKey
	gid  msg.Gid

	smk racrypto.DerivedKey
	sk  racrypto.DerivedKey
	mk  racrypto.DerivedKey
	vk  racrypto.DerivedKey
}

// NewContext builds an SP attestation context against cfg and ias.
func NewContext(link transport.Transport, cfg *config.SPConfig, ias IAS) *Context {
	return &Context{ // nolint:exhaustruct
		link:      link,
		cfg:       cfg,
		ias:       ias,
		sessionID: uuid.New().String(),
		state:     StateInit,
	}
}

// State returns the context's current state, for tests and logging.
func (c *Context) State() State { return c.state }

// Run drives the full SP side of the handshake to completion, returning
// the derived SK and MK on success.
func (c *Context) Run(ctx context.Context) (racrypto.DerivedKey, racrypto.DerivedKey, error) {
	defer c.zeroizeOnExit()
	log.Debugf("spctx[%s]: starting attestation", c.sessionID)

	msg0Bytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive MSG0: %s", raerrors.ErrTransport, err)
	}
	m0, err := msg.ParseRaMsg0(msg0Bytes)
	if err != nil {
		c.state = StateRejected
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}
	if m0.Exgid != 0 {
		c.state = StateRejected
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: unsupported exgid %d, only IAS-based attestation (0) is supported", raerrors.ErrInvalidInput, m0.Exgid)
	}
	c.state = StateAwaitMsg1

	msg1Bytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive MSG1: %s", raerrors.ErrTransport, err)
	}
	m1, err := msg.ParseRaMsg1(msg1Bytes)
	if err != nil {
		c.state = StateRejected
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}
	c.gid = m1.Gid
	c.ga = m1.GA

	m2, err := c.buildMsg2(ctx)
	if err != nil {
		c.state = StateRejected
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}
	if err := c.link.Transmit(ctx, m2.Bytes()); err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: send MSG2: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitMsg3

	msg3Bytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive MSG3: %s", raerrors.ErrTransport, err)
	}
	m4, decisionErr := c.processMsg3(ctx, msg3Bytes)
	// Even an untrusted decision is sent as a valid MSG4 so the enclave
	// learns the outcome; only a processing failure (integrity,
	// encoding, identity, attestation-service) skips straight to
	// rejection without notifying the peer.
	if decisionErr != nil && !isTrustDecisionError(decisionErr) {
		c.state = StateRejected
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, decisionErr
	}
	if err := c.link.Transmit(ctx, m4.Bytes()); err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: send MSG4: %s", raerrors.ErrTransport, err)
	}
	if decisionErr != nil {
		c.state = StateRejected
		log.Warnf("spctx[%s]: rejected: %s", c.sessionID, decisionErr)
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, decisionErr
	}

	c.state = StateDone
	log.Debugf("spctx[%s]: attestation complete", c.sessionID)
	return c.sk, c.mk, nil
}

// isTrustDecisionError reports whether err is the expected "we decided
// not to trust this enclave" outcome rather than a processing failure.
func isTrustDecisionError(err error) bool {
	return errors.Is(err, raerrors.ErrNotTrusted) ||
		errors.Is(err, raerrors.ErrDebugInProduction)
}

// buildMsg2 fetches sig_rl, generates the SP's ephemeral keypair,
// derives child keys, signs g_b||g_a, and MACs the MSG2 transcript.
func (c *Context) buildMsg2(ctx context.Context) (msg.RaMsg2, error) {
	sigRL, sigRLPresent, err := c.ias.FetchSigRL(ctx, hex.EncodeToString(c.gid[:]))
	if err != nil {
		return msg.RaMsg2{}, err
	}

	priv, gb, err := racrypto.GenerateECDHKeypair()
	if err != nil {
		return msg.RaMsg2{}, fmt.Errorf("%w: generate ephemeral keypair: %s", raerrors.ErrCryptographic, err)
	}
	c.priv = priv
	c.gb = gb

	shared, err := c.priv.Derive(c.ga)
	if err != nil {
		return msg.RaMsg2{}, fmt.Errorf("%w: derive shared secret: %s", raerrors.ErrCryptographic, err)
	}
	kdk, err := racrypto.ExtractKDK(shared)
	if err != nil {
		return msg.RaMsg2{}, err
	}
	keys, err := racrypto.DeriveChildKeys(kdk)
	if err != nil {
		return msg.RaMsg2{}, err
	}
	c.smk, c.sk, c.mk, c.vk = keys.SMK, keys.SK, keys.MK, keys.VK

	sig, err := racrypto.RSASign(c.cfg.SPPrivateKey, msg.SignedTranscript(c.gb, c.ga))
	if err != nil {
		return msg.RaMsg2{}, err
	}

	m2 := msg.RaMsg2{
		GB:           c.gb,
		Spid:         c.cfg.Spid,
		QuoteType:    c.cfg.QuoteType(),
		SignGBGA:     sig,
		SigRL:        sigRL,
		SigRLPresent: sigRLPresent,
	}
	tag, err := racrypto.CMACSign(c.smk[:], m2.Transcript())
	if err != nil {
		return msg.RaMsg2{}, err
	}
	m2.Mac = tag
	return m2, nil
}

// processMsg3 validates MSG3 and, if every structural check passes,
// calls the Attestation Service and applies the trust decision. A
// returned RaMsg4 is always meaningful, even alongside a non-nil error
// that represents an untrusted decision rather than a processing
// failure (see isTrustDecisionError).
func (c *Context) processMsg3(ctx context.Context, raw []byte) (msg.RaMsg4, error) {
	m3, err := msg.ParseRaMsg3(raw)
	if err != nil {
		return msg.RaMsg4{}, err
	}

	if m3.GA != c.ga {
		return msg.RaMsg4{}, fmt.Errorf("%w: MSG3 g_a does not match MSG1 g_a", raerrors.ErrIntegrity)
	}
	if err := racrypto.CMACVerify(c.smk[:], m3.Transcript(), m3.Mac); err != nil {
		return msg.RaMsg4{}, fmt.Errorf("%w: MSG3 MAC invalid", raerrors.ErrIntegrity)
	}

	wantDigest := racrypto.SHA256(c.ga[:], c.gb[:], c.vk[:])
	if gotDigest := m3.Quote.ReportData(); !bytes.Equal(gotDigest[:], wantDigest[:]) {
		return msg.RaMsg4{}, fmt.Errorf("%w: quote report-data does not bind g_a||g_b||VK", raerrors.ErrIntegrity)
	}

	if m3.Quote.IsDebug() && !c.cfg.DebugBuild {
		return msg.RaMsg4{IsEnclaveTrusted: false}, fmt.Errorf("%w: enclave advertises DEBUG attribute", raerrors.ErrDebugInProduction) // nolint:exhaustruct
	}

	if err := c.checkIdentity(m3.Quote); err != nil {
		return msg.RaMsg4{IsEnclaveTrusted: false}, err // nolint:exhaustruct
	}

	report, err := c.ias.FetchReport(ctx, m3.Quote[:])
	if err != nil {
		return msg.RaMsg4{}, err
	}
	body, err := iasclient.DecodeReportBody(report.Body)
	if err != nil {
		return msg.RaMsg4{}, err
	}

	isEnclaveTrusted := body.ISVEnclaveQuoteStatus == "OK" || c.cfg.IsQuoteStatusTrusted(body.ISVEnclaveQuoteStatus)

	m4 := msg.RaMsg4{IsEnclaveTrusted: isEnclaveTrusted} // nolint:exhaustruct
	if body.PseManifestStatus != nil {
		m4.IsPseManifestTrustedPresent = true
		m4.IsPseManifestTrusted = *body.PseManifestStatus == "OK" || c.cfg.IsPseStatusTrusted(*body.PseManifestStatus)
	}

	if !isEnclaveTrusted {
		return m4, fmt.Errorf("%w: IAS quote status %q", raerrors.ErrNotTrusted, body.ISVEnclaveQuoteStatus)
	}
	if m4.IsPseManifestTrustedPresent && !m4.IsPseManifestTrusted {
		return m4, fmt.Errorf("%w: IAS PSE manifest status %q", raerrors.ErrNotTrusted, *body.PseManifestStatus)
	}

	log.Debugf("spctx[%s]: enclave trusted, IAS request-id %s", c.sessionID, report.RequestID)
	return m4, nil
}

// checkIdentity compares quote's embedded identity against the SP's
// trusted Sigstruct.
func (c *Context) checkIdentity(quote msg.Quote) error {
	mrenclave := quote.MREnclave()
	if mrenclave != c.cfg.Sigstruct.EnclaveHash {
		return fmt.Errorf("%w: MRENCLAVE does not match trusted Sigstruct", raerrors.ErrIdentityMismatch)
	}
	if quote.MRSigner() != c.cfg.Sigstruct.MRSigner() {
		return fmt.Errorf("%w: MRSIGNER does not match trusted Sigstruct", raerrors.ErrIdentityMismatch)
	}
	if quote.ISVProdID() != c.cfg.Sigstruct.ISVProdID {
		return fmt.Errorf("%w: ISVPRODID does not match trusted Sigstruct", raerrors.ErrIdentityMismatch)
	}
	if quote.ISVSVN() != c.cfg.Sigstruct.ISVSVN {
		return fmt.Errorf("%w: ISVSVN does not match trusted Sigstruct", raerrors.ErrIdentityMismatch)
	}
	return nil
}

// zeroizeOnExit destroys ephemeral and derived secrets. It is always
// safe to call, including when the handshake failed partway through.
func (c *Context) zeroizeOnExit() {
	racrypto.Zero(c.smk[:])
	racrypto.Zero(c.vk[:])
	if c.state != StateDone {
		racrypto.Zero(c.sk[:])
		racrypto.Zero(c.mk[:])
	}
}
