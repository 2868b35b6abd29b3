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

// Package clientctx implements the Client side of the attestation
// protocol: a relay between the Enclave and SP streams, with exactly
// one active contribution — bridging to the platform's quoting service
// between MSG2 and MSG3 (spec.md §4.4 step 4). The client never touches
// SK, MK, or any derived key: it only ever forwards opaque frames.
package clientctx

import (
	"context"
	"fmt"

	"github.com/cybergarage/go-logger/log"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/google/uuid"
)

// State is the client-side relay state. The client never derives keys,
// so its state machine only tracks where in the relay sequence it is.
type State int

const (
	StateInit State = iota
	StateAwaitMsg1
	StateAwaitMsg2
	StateAwaitQuote
	StateAwaitMsg3
	StateAwaitMsg4
	StateDone
	StateRejected
)

// Context relays framed messages between the enclave link and the SP
// link, invoking the quoting service bridge in between. It is
// single-use: Run may be called exactly once.
type Context struct {
	enclaveLink transport.Transport
	spLink      transport.Transport
	quoter      quoting.Service

	// sessionID tags this relay's own log lines. It is generated
	// locally and is not exchanged with the enclave or SP.
	sessionID string

	state State
}

// NewContext builds a client relay context. The SPID forwarded to the
// quoting service's GetQuote call is the one the SP sends in MSG2, not
// a separately configured value — see Run.
func NewContext(enclaveLink, spLink transport.Transport, quoter quoting.Service) *Context {
	return &Context{ // nolint:exhaustruct
		enclaveLink: enclaveLink,
		spLink:      spLink,
		quoter:      quoter,
		sessionID:   uuid.New().String(),
		state:       StateInit,
	}
}

// State returns the context's current state, for tests and logging.
func (c *Context) State() State { return c.state }

// Run drives the full client-side relay to completion: the enclave's
// TargetInfo/g_a exchange, MSG0/MSG1 to the SP, MSG2 down to the enclave,
// the quoting round-trip, MSG3 up to the SP, and MSG4 back down to the
// enclave.
func (c *Context) Run(ctx context.Context) error {
	log.Debugf("clientctx[%s]: starting relay", c.sessionID)
	ti, gid, err := c.quoter.InitQuote(ctx)
	if err != nil {
		c.state = StateRejected
		return fmt.Errorf("%w: init quote: %s", raerrors.ErrCryptographic, err)
	}

	if err := c.enclaveLink.Transmit(ctx, ti[:]); err != nil {
		return fmt.Errorf("%w: send target info: %s", raerrors.ErrTransport, err)
	}
	gaBytes, err := c.enclaveLink.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive g_a: %s", raerrors.ErrTransport, err)
	}
	var ga msg.DHKEPublicKey
	if len(gaBytes) != len(ga) {
		return fmt.Errorf("%w: g_a is %d bytes, want %d", raerrors.ErrEncoding, len(gaBytes), len(ga))
	}
	copy(ga[:], gaBytes)
	c.state = StateAwaitMsg1

	m0 := msg.RaMsg0{Exgid: 0}
	if err := c.spLink.Transmit(ctx, m0.Bytes()); err != nil {
		return fmt.Errorf("%w: send MSG0: %s", raerrors.ErrTransport, err)
	}
	m1 := msg.RaMsg1{Gid: gid, GA: ga}
	if err := c.spLink.Transmit(ctx, m1.Bytes()); err != nil {
		return fmt.Errorf("%w: send MSG1: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitMsg2

	msg2Bytes, err := c.spLink.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive MSG2: %s", raerrors.ErrTransport, err)
	}
	if err := c.enclaveLink.Transmit(ctx, msg2Bytes); err != nil {
		return fmt.Errorf("%w: forward MSG2: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitQuote

	reportBytes, err := c.enclaveLink.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive report: %s", raerrors.ErrTransport, err)
	}
	var report quoting.Report
	if len(reportBytes) != len(report) {
		return fmt.Errorf("%w: report is %d bytes, want %d", raerrors.ErrEncoding, len(reportBytes), len(report))
	}
	copy(report[:], reportBytes)

	m2, err := msg.ParseRaMsg2(msg2Bytes)
	if err != nil {
		return err
	}
	quote, qeReport, err := c.quoter.GetQuote(ctx, report, m2.Spid, m2.SigRL, m2.QuoteType, [16]byte{})
	if err != nil {
		c.state = StateRejected
		return fmt.Errorf("%w: get quote: %s", raerrors.ErrCryptographic, err)
	}
	log.Debugf("clientctx[%s]: obtained quote for gid %x", c.sessionID, gid)

	if err := c.enclaveLink.Transmit(ctx, quote[:]); err != nil {
		return fmt.Errorf("%w: send quote: %s", raerrors.ErrTransport, err)
	}
	if err := c.enclaveLink.Transmit(ctx, qeReport[:]); err != nil {
		return fmt.Errorf("%w: send qe report: %s", raerrors.ErrTransport, err)
	}

	macMBytes, err := c.enclaveLink.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive mac_m: %s", raerrors.ErrTransport, err)
	}
	var macM msg.MacTag
	if len(macMBytes) != len(macM) {
		return fmt.Errorf("%w: mac_m is %d bytes, want %d", raerrors.ErrEncoding, len(macMBytes), len(macM))
	}
	copy(macM[:], macMBytes)
	c.state = StateAwaitMsg3

	m3 := msg.RaMsg3{Mac: macM, GA: ga, Quote: quote} // nolint:exhaustruct
	if err := c.spLink.Transmit(ctx, m3.Bytes()); err != nil {
		return fmt.Errorf("%w: send MSG3: %s", raerrors.ErrTransport, err)
	}
	c.state = StateAwaitMsg4

	msg4Bytes, err := c.spLink.Receive(ctx)
	if err != nil {
		return fmt.Errorf("%w: receive MSG4: %s", raerrors.ErrTransport, err)
	}
	if err := c.enclaveLink.Transmit(ctx, msg4Bytes); err != nil {
		return fmt.Errorf("%w: forward MSG4: %s", raerrors.ErrTransport, err)
	}

	m4, err := msg.ParseRaMsg4(msg4Bytes)
	if err != nil {
		return err
	}
	c.state = StateDone
	if !m4.IsEnclaveTrusted || (m4.IsPseManifestTrustedPresent && !m4.IsPseManifestTrusted) {
		// The relay itself succeeded; the trust decision is the
		// enclave's and SP's to act on, not the client's, so this is
		// reported but does not flip State to Rejected.
		log.Warnf("clientctx[%s]: SP reported enclave untrusted", c.sessionID)
	} else {
		log.Debugf("clientctx[%s]: relay complete", c.sessionID)
	}
	return nil
}
