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

// Package integration wires all three attestation contexts together over
// real net.Pipe-backed transports and a fake quoting service/IAS double,
// covering these scenarios from SPEC_FULL.md §8: happy path, wrong
// MRENCLAVE, a downgraded IAS quote status, channel tamper/replay, and an
// oversize transport frame. The tampered-MSG2 scenario is covered by
// ra/enclavectx's own tests.
package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"testing"

	"github.com/cybergarage/go-ra/ra/clientctx"
	"github.com/cybergarage/go-ra/ra/config"
	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/enclavectx"
	"github.com/cybergarage/go-ra/ra/iasclient"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/cybergarage/go-ra/ra/securechannel"
	"github.com/cybergarage/go-ra/ra/spctx"
	"github.com/cybergarage/go-ra/ra/transport"
)

// fakeIAS is a scripted Attestation Service double, shared with
// ra/spctx's own unit tests but redeclared here since it is unexported
// there.
type fakeIAS struct {
	quoteStatus string
}

func (f *fakeIAS) FetchSigRL(_ context.Context, _ string) ([]byte, bool, error) {
	return nil, false, nil
}

func (f *fakeIAS) FetchReport(_ context.Context, _ []byte) (*iasclient.Report, error) {
	body := []byte(`{"id":"1","isvEnclaveQuoteStatus":"` + f.quoteStatus + `"}`)
	return &iasclient.Report{Body: body, RequestID: "req-1"}, nil
}

// deployment bundles every participant's state for one three-way
// handshake: an SP-trusted identity, a matching fake quoting service, an
// enclave-side RSA-verifiable SP key, and the two net.Pipe links the
// real clientctx.Context relays between.
type deployment struct {
	cfg       *config.SPConfig
	ias       *fakeIAS
	svc       *quoting.FakeService
	reportKey [16]byte

	enclaveLink, enclavePeer net.Conn
	spLink, spPeer           net.Conn
}

func newDeployment(t *testing.T, quoteStatus string, mrenclaveOverride *[32]byte) *deployment {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error = %v", err)
	}

	var mrenclave, mrsigner [32]byte
	mrenclave[0] = 0xAA
	mrsigner[0] = 0xBB
	var gid msg.Gid
	copy(gid[:], []byte{9, 9, 9, 9})
	var reportKey [16]byte
	copy(reportKey[:], []byte("0123456789abcdef"))

	svcMrenclave := mrenclave
	if mrenclaveOverride != nil {
		svcMrenclave = *mrenclaveOverride
	}
	svc := quoting.NewFakeService(gid, svcMrenclave, mrsigner, 7, 3, false, reportKey)

	cfg := &config.SPConfig{ // nolint:exhaustruct
		Linkable:     false,
		SPPrivateKey: priv,
		Sigstruct: config.Sigstruct{ // nolint:exhaustruct
			EnclaveHash: mrenclave,
			Modulus:     [384]byte{0xCC},
			ISVProdID:   7,
			ISVSVN:      3,
		},
		DebugBuild: false,
	}
	// Sigstruct.MRSigner() hashes Modulus; FakeService reports MRSigner
	// directly, so align it to what the Sigstruct derives rather than an
	// arbitrary constant.
	svc.MRSigner = cfg.Sigstruct.MRSigner()

	enclaveLink, enclavePeer := net.Pipe()
	spLink, spPeer := net.Pipe()

	return &deployment{
		cfg:         cfg,
		ias:         &fakeIAS{quoteStatus: quoteStatus},
		svc:         svc,
		reportKey:   reportKey,
		enclaveLink: enclaveLink,
		enclavePeer: enclavePeer,
		spLink:      spLink,
		spPeer:      spPeer,
	}
}

func (d *deployment) close() {
	d.enclaveLink.Close()
	d.enclavePeer.Close()
	d.spLink.Close()
	d.spPeer.Close()
}

// runAll starts the Client and SP contexts as goroutines and runs the
// Enclave context on the calling goroutine, returning every participant's
// outcome once all three finish.
func (d *deployment) runAll(t *testing.T) (enclaveErr, clientErr, spErr error, sk, mk racrypto.DerivedKey) {
	t.Helper()
	ctx := t.Context()

	clientDone := make(chan error, 1)
	go func() {
		c := clientctx.NewContext(transport.NewStream(d.enclavePeer), transport.NewStream(d.spLink), d.svc)
		err := c.Run(ctx)
		// Unblock the enclave if the relay stopped before forwarding MSG4.
		d.enclavePeer.Close()
		clientDone <- err
	}()

	spDone := make(chan error, 1)
	var spSK, spMK racrypto.DerivedKey
	go func() {
		s := spctx.NewContext(transport.NewStream(d.spPeer), d.cfg, d.ias)
		var err error
		spSK, spMK, err = s.Run(ctx)
		// Unblock the client if the SP rejected without sending MSG4.
		d.spPeer.Close()
		spDone <- err
	}()

	e := enclavectx.NewContext(transport.NewStream(d.enclaveLink), &d.cfg.SPPrivateKey.PublicKey, d.reportKey)
	eSK, eMK, eErr := e.Run(ctx)

	d.close()
	cErr := <-clientDone
	sErr := <-spDone

	if eErr == nil {
		sk, mk = eSK, eMK
	} else {
		sk, mk = spSK, spMK
	}
	return eErr, cErr, sErr, sk, mk
}

func TestThreePartyHandshakeHappyPath(t *testing.T) {
	d := newDeployment(t, "OK", nil)
	eErr, cErr, sErr, sk, mk := d.runAll(t)
	if eErr != nil {
		t.Errorf("enclave error = %v", eErr)
	}
	if cErr != nil {
		t.Errorf("client error = %v", cErr)
	}
	if sErr != nil {
		t.Errorf("SP error = %v", sErr)
	}
	if sk == (racrypto.DerivedKey{}) || mk == (racrypto.DerivedKey{}) {
		t.Errorf("expected non-zero SK/MK")
	}
}

func TestThreePartyHandshakeWrongMREnclaveRejected(t *testing.T) {
	var wrong [32]byte
	wrong[0] = 0xFF
	d := newDeployment(t, "OK", &wrong)
	_, _, sErr, _, _ := d.runAll(t)
	if !errors.Is(sErr, raerrors.ErrIdentityMismatch) {
		t.Errorf("SP error = %v, want ErrIdentityMismatch", sErr)
	}
}

func TestThreePartyHandshakeDowngradedQuoteStatusRejected(t *testing.T) {
	d := newDeployment(t, "GROUP_OUT_OF_DATE", nil)
	_, _, sErr, _, _ := d.runAll(t)
	if !errors.Is(sErr, raerrors.ErrNotTrusted) {
		t.Errorf("SP error = %v, want ErrNotTrusted", sErr)
	}
}

// sealOneRecord builds one valid sealed record's raw bytes under the
// given key pair, for the tamper/replay tests below to manipulate
// directly without a concurrent peer.
func sealOneRecord(t *testing.T, sealKey, openKey []byte, payload string) []byte {
	t.Helper()
	var sink bytes.Buffer
	w, err := securechannel.NewChannel(&sink, sealKey, openKey)
	if err != nil {
		t.Fatalf("NewChannel() error = %v", err)
	}
	if _, err := w.Write([]byte(payload)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return sink.Bytes()
}

// TestSecureChannelHappyPath round-trips one record through distinct
// directional keys.
func TestSecureChannelHappyPath(t *testing.T) {
	var mk racrypto.DerivedKey
	copy(mk[:], []byte("0123456789abcdef"))
	c2e, e2c, err := racrypto.DeriveChannelKeys(mk)
	if err != nil {
		t.Fatalf("DeriveChannelKeys() error = %v", err)
	}

	record := sealOneRecord(t, c2e[:], e2c[:], "hello from enclave")
	reader, err := securechannel.NewChannel(bytes.NewBuffer(record), e2c[:], c2e[:])
	if err != nil {
		t.Fatalf("NewChannel(reader) error = %v", err)
	}
	var buf [64]byte
	n, err := reader.Read(buf[:])
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := string(buf[:n]); got != "hello from enclave" {
		t.Errorf("Read() = %q, want %q", got, "hello from enclave")
	}
}

// TestSecureChannelDetectsTamper flips one byte of the record's GCM tag
// and expects the tag check to fail as ErrIntegrity.
func TestSecureChannelDetectsTamper(t *testing.T) {
	var mk racrypto.DerivedKey
	copy(mk[:], []byte("0123456789abcdef"))
	c2e, e2c, err := racrypto.DeriveChannelKeys(mk)
	if err != nil {
		t.Fatalf("DeriveChannelKeys() error = %v", err)
	}

	record := sealOneRecord(t, c2e[:], e2c[:], "hello from enclave")
	tampered := append([]byte{}, record...)
	tampered[len(tampered)-1] ^= 0xFF // flip a byte inside the GCM tag

	reader, err := securechannel.NewChannel(bytes.NewBuffer(tampered), e2c[:], c2e[:])
	if err != nil {
		t.Fatalf("NewChannel(reader) error = %v", err)
	}
	var buf [64]byte
	_, err = reader.Read(buf[:])
	if !errors.Is(err, raerrors.ErrIntegrity) {
		t.Errorf("Read() error = %v, want ErrIntegrity", err)
	}
}

// TestSecureChannelDetectsReplay re-delivers the same valid record twice:
// the second copy still carries sequence number 0, but the reader's
// openSeq has already advanced to 1, so it must be rejected.
func TestSecureChannelDetectsReplay(t *testing.T) {
	var mk racrypto.DerivedKey
	copy(mk[:], []byte("0123456789abcdef"))
	c2e, e2c, err := racrypto.DeriveChannelKeys(mk)
	if err != nil {
		t.Fatalf("DeriveChannelKeys() error = %v", err)
	}

	record := sealOneRecord(t, c2e[:], e2c[:], "hello from enclave")
	replayed := append(append([]byte{}, record...), record...)

	reader, err := securechannel.NewChannel(bytes.NewBuffer(replayed), e2c[:], c2e[:])
	if err != nil {
		t.Fatalf("NewChannel(reader) error = %v", err)
	}
	var buf [64]byte
	if _, err := reader.Read(buf[:]); err != nil {
		t.Fatalf("first Read() error = %v, want nil", err)
	}
	_, err = reader.Read(buf[:])
	if !errors.Is(err, raerrors.ErrIntegrity) {
		t.Errorf("replayed Read() error = %v, want ErrIntegrity", err)
	}
}

// TestTransportRejectsOversizeRecord checks the length-prefix guard
// raerrors.ErrInvalidInput fires before any allocation is attempted, so a
// corrupt or hostile length prefix cannot be used to force an
// out-of-memory condition.
func TestTransportRejectsOversizeRecord(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	link := transport.NewStream(serverConn)
	done := make(chan struct{})
	var recvErr error
	go func() {
		defer close(done)
		_, recvErr = link.Receive(t.Context())
	}()

	// 0xFFFFFFFF bytes declared, far beyond the transport's own guard.
	oversizeHeader := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := clientConn.Write(oversizeHeader); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	clientConn.Close()
	<-done
	if !errors.Is(recvErr, raerrors.ErrInvalidInput) {
		t.Errorf("Receive() error = %v, want ErrInvalidInput", recvErr)
	}
}
