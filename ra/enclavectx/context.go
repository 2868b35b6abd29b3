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

// Package enclavectx implements the enclave side of the attestation
// state machine: INIT -> AWAIT_M2 -> AWAIT_QUOTE -> AWAIT_M4 -> DONE |
// REJECTED. It never touches the network directly: Run drives the
// conversation over a single transport.Transport to the Client, which
// is the only peer the enclave ever sees.
package enclavectx

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/cybergarage/go-logger/log"
	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/google/uuid"
)

// State is the enclave-side attestation state.
type State int

const (
	StateInit State = iota
	StateAwaitMsg2
	StateAwaitQuote
	StateAwaitMsg4
	StateDone
	StateRejected
)

// Context holds one enclave attestation's secret and protocol state.
// It is single-use: Run may be called exactly once.
type Context struct {
	link        transport.Transport
	spVerifyKey *rsa.PublicKey
	reportKey   [16]byte

	// sessionID tags this context's own log lines. It is generated
	// locally and is not exchanged with the client or SP.
	sessionID string

	state State

	priv *racrypto.ECDHPrivateKey
	ga   msg.DHKEPublicKey
	gb   msg.DHKEPublicKey

	targetInfo quoting.TargetInfo

	smk racrypto.DerivedKey
	sk  racrypto.DerivedKey
	mk  racrypto.DerivedKey
	vk  racrypto.DerivedKey
}

// NewContext builds an enclave attestation context. spVerifyKey is the
// SP's RSA public key, pinned into the enclave ahead of time (spec
// §4.3: "Alice has the SP's verification key baked in"). reportKey is
// the CMAC key the quoting service uses to authenticate a QEReport to
// this enclave (see localattest.go).
func NewContext(link transport.Transport, spVerifyKey *rsa.PublicKey, reportKey [16]byte) *Context {
	return &Context{ // nolint:exhaustruct
		link:        link,
		spVerifyKey: spVerifyKey,
		reportKey:   reportKey,
		sessionID:   uuid.New().String(),
		state:       StateInit,
	}
}

// State returns the context's current state, for tests and logging.
func (c *Context) State() State { return c.state }

// Run drives the full enclave side of the handshake to completion,
// returning the derived SK and MK on success.
func (c *Context) Run(ctx context.Context) (racrypto.DerivedKey, racrypto.DerivedKey, error) {
	defer c.zeroizeOnExit()
	log.Debugf("enclavectx[%s]: starting attestation", c.sessionID)

	tiBytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive target info: %s", raerrors.ErrTransport, err)
	}
	if len(tiBytes) != quoting.TargetInfoSize {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: target info is %d bytes, want %d", raerrors.ErrEncoding, len(tiBytes), quoting.TargetInfoSize)
	}
	copy(c.targetInfo[:], tiBytes)

	priv, ga, err := racrypto.GenerateECDHKeypair()
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: generate ephemeral keypair: %s", raerrors.ErrCryptographic, err)
	}
	c.priv = priv
	c.ga = ga
	if err := c.link.Transmit(ctx, c.ga[:]); err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: send g_a: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitMsg2

	msg2Bytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive MSG2: %s", raerrors.ErrTransport, err)
	}
	report, err := c.processMsg2(msg2Bytes)
	if err != nil {
		c.state = StateRejected
		log.Warnf("enclavectx[%s]: rejected MSG2: %s", c.sessionID, err)
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}
	if err := c.link.Transmit(ctx, report[:]); err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: send report: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitQuote

	quoteBytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive quote: %s", raerrors.ErrTransport, err)
	}
	qeReportBytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive qe report: %s", raerrors.ErrTransport, err)
	}
	macM, err := c.processQuote(quoteBytes, qeReportBytes)
	if err != nil {
		c.state = StateRejected
		log.Warnf("enclavectx[%s]: rejected quote: %s", c.sessionID, err)
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}
	if err := c.link.Transmit(ctx, macM[:]); err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: send mac_m: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitMsg4

	msg4Bytes, err := c.link.Receive(ctx)
	if err != nil {
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, fmt.Errorf("%w: receive MSG4: %s", raerrors.ErrTransport, err)
	}
	if err := c.processMsg4(msg4Bytes); err != nil {
		c.state = StateRejected
		log.Warnf("enclavectx[%s]: rejected: %s", c.sessionID, err)
		return racrypto.DerivedKey{}, racrypto.DerivedKey{}, err
	}

	c.state = StateDone
	log.Debugf("enclavectx[%s]: attestation complete", c.sessionID)
	return c.sk, c.mk, nil
}

// processMsg2 derives the child keys, verifies MSG2's signature and
// MAC, and builds the Report to forward for quoting.
func (c *Context) processMsg2(raw []byte) (quoting.Report, error) {
	m2, err := msg.ParseRaMsg2(raw)
	if err != nil {
		return quoting.Report{}, err
	}
	c.gb = m2.GB

	shared, err := c.priv.Derive(c.gb)
	if err != nil {
		return quoting.Report{}, fmt.Errorf("%w: derive shared secret: %s", raerrors.ErrCryptographic, err)
	}
	kdk, err := racrypto.ExtractKDK(shared)
	if err != nil {
		return quoting.Report{}, err
	}
	keys, err := racrypto.DeriveChildKeys(kdk)
	if err != nil {
		return quoting.Report{}, err
	}
	c.smk, c.sk, c.mk, c.vk = keys.SMK, keys.SK, keys.MK, keys.VK

	if err := racrypto.RSAVerify(c.spVerifyKey, msg.SignedTranscript(c.gb, c.ga), m2.SignGBGA); err != nil {
		return quoting.Report{}, fmt.Errorf("%w: MSG2 signature invalid", raerrors.ErrIntegrity)
	}
	if err := racrypto.CMACVerify(c.smk[:], m2.Transcript(), m2.Mac); err != nil {
		return quoting.Report{}, fmt.Errorf("%w: MSG2 MAC invalid", raerrors.ErrIntegrity)
	}

	digest := racrypto.SHA256(c.ga[:], c.gb[:], c.vk[:])
	var report quoting.Report
	report.SetTargetInfo(c.targetInfo)
	var reportData [quoting.ReportDataSize]byte
	copy(reportData[:], digest[:])
	report.SetReportData(reportData)
	return report, nil
}

// processQuote performs local attestation on qeReport and computes the
// MSG3 MAC over the m transcript (ps_sec_prop is never present, per
// this module's non-goal on the PSE path).
func (c *Context) processQuote(quoteBytes, qeReportBytes []byte) (msg.MacTag, error) {
	if len(quoteBytes) != msg.QuoteSize {
		return msg.MacTag{}, fmt.Errorf("%w: quote is %d bytes, want %d", raerrors.ErrEncoding, len(quoteBytes), msg.QuoteSize)
	}
	if len(qeReportBytes) != quoting.QEReportSize {
		return msg.MacTag{}, fmt.Errorf("%w: qe report is %d bytes, want %d", raerrors.ErrEncoding, len(qeReportBytes), quoting.QEReportSize)
	}
	var quote msg.Quote
	copy(quote[:], quoteBytes)
	var qeReport quoting.QEReport
	copy(qeReport[:], qeReportBytes)

	if err := VerifyLocalAttestation(qeReport, c.targetInfo, c.reportKey); err != nil {
		return msg.MacTag{}, err
	}

	transcript := append(append([]byte{}, c.ga[:]...), quote[:]...)
	tag, err := racrypto.CMACSign(c.smk[:], transcript)
	if err != nil {
		return msg.MacTag{}, err
	}
	return msg.MacTag(tag), nil
}

// processMsg4 applies the SP's trust decision.
func (c *Context) processMsg4(raw []byte) error {
	m4, err := msg.ParseRaMsg4(raw)
	if err != nil {
		return err
	}
	if !m4.IsEnclaveTrusted {
		return fmt.Errorf("%w: SP reports enclave not trusted", raerrors.ErrNotTrusted)
	}
	if m4.IsPseManifestTrustedPresent && !m4.IsPseManifestTrusted {
		return fmt.Errorf("%w: SP reports PSE manifest not trusted", raerrors.ErrNotTrusted)
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
