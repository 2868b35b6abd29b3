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

package clientctx

import (
	"context"
	"net"
	"testing"

	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/transport"
)

// runClientRelay wires a clientctx.Context between a scripted enclave
// peer and a scripted SP peer over two net.Pipe links, and returns the
// three frames each peer captured for the test to assert on.
type relayCapture struct {
	spMsg1    msg.RaMsg1
	spMsg3    msg.RaMsg3
	enclaveTI quoting.TargetInfo
}

func runClientRelay(t *testing.T, quoter quoting.Service, spid msg.Spid, msg4 msg.RaMsg4) (relayCapture, error) {
	t.Helper()
	ctx := context.Background()

	enclaveClientConn, enclavePeerConn := net.Pipe()
	spClientConn, spPeerConn := net.Pipe()
	t.Cleanup(func() {
		enclaveClientConn.Close()
		enclavePeerConn.Close()
		spClientConn.Close()
		spPeerConn.Close()
	})

	enclaveLink := transport.NewStream(enclaveClientConn)
	spLink := transport.NewStream(spClientConn)
	enclavePeer := transport.NewStream(enclavePeerConn)
	spPeer := transport.NewStream(spPeerConn)

	var capture relayCapture

	enclaveDone := make(chan struct{})
	go func() {
		defer close(enclaveDone)

		tiBytes, err := enclavePeer.Receive(ctx)
		if err != nil {
			t.Logf("enclave peer: receive target info: %v", err)
			return
		}
		var ti quoting.TargetInfo
		copy(ti[:], tiBytes)
		capture.enclaveTI = ti

		ga := throwawayGA()
		if err := enclavePeer.Transmit(ctx, ga[:]); err != nil {
			t.Logf("enclave peer: transmit g_a: %v", err)
			return
		}

		if _, err := enclavePeer.Receive(ctx); err != nil {
			t.Logf("enclave peer: receive MSG2: %v", err)
			return
		}

		var report quoting.Report
		report.SetTargetInfo(ti)
		if err := enclavePeer.Transmit(ctx, report[:]); err != nil {
			t.Logf("enclave peer: transmit report: %v", err)
			return
		}

		if _, err := enclavePeer.Receive(ctx); err != nil {
			t.Logf("enclave peer: receive quote: %v", err)
			return
		}
		if _, err := enclavePeer.Receive(ctx); err != nil {
			t.Logf("enclave peer: receive qe report: %v", err)
			return
		}

		var macM msg.MacTag
		if err := enclavePeer.Transmit(ctx, macM[:]); err != nil {
			t.Logf("enclave peer: transmit mac_m: %v", err)
			return
		}

		if _, err := enclavePeer.Receive(ctx); err != nil {
			t.Logf("enclave peer: receive MSG4: %v", err)
			return
		}
	}()

	spDone := make(chan struct{})
	go func() {
		defer close(spDone)

		if _, err := spPeer.Receive(ctx); err != nil {
			t.Logf("sp peer: receive MSG0: %v", err)
			return
		}
		m1Bytes, err := spPeer.Receive(ctx)
		if err != nil {
			t.Logf("sp peer: receive MSG1: %v", err)
			return
		}
		m1, err := msg.ParseRaMsg1(m1Bytes)
		if err != nil {
			t.Logf("sp peer: parse MSG1: %v", err)
			return
		}
		capture.spMsg1 = m1

		m2 := msg.RaMsg2{GB: m1.GA, Spid: spid, QuoteType: msg.QuoteTypeUnlinkable} // nolint:exhaustruct
		if err := spPeer.Transmit(ctx, m2.Bytes()); err != nil {
			t.Logf("sp peer: transmit MSG2: %v", err)
			return
		}

		m3Bytes, err := spPeer.Receive(ctx)
		if err != nil {
			t.Logf("sp peer: receive MSG3: %v", err)
			return
		}
		m3, err := msg.ParseRaMsg3(m3Bytes)
		if err != nil {
			t.Logf("sp peer: parse MSG3: %v", err)
			return
		}
		capture.spMsg3 = m3

		if err := spPeer.Transmit(ctx, msg4.Bytes()); err != nil {
			t.Logf("sp peer: transmit MSG4: %v", err)
			return
		}
	}()

	c := NewContext(enclaveLink, spLink, quoter)
	err := c.Run(t.Context())

	enclaveClientConn.Close()
	enclavePeerConn.Close()
	spClientConn.Close()
	spPeerConn.Close()
	<-enclaveDone
	<-spDone

	if err == nil && c.State() != StateDone {
		t.Errorf("State() = %v, want StateDone", c.State())
	}
	return capture, err
}

// throwawayGA returns a syntactically valid but otherwise meaningless
// ephemeral public key: this relay test never derives keys from it,
// since the client never touches SK/MK/SMK itself.
func throwawayGA() msg.DHKEPublicKey {
	var ga msg.DHKEPublicKey
	ga[0] = 0x04
	return ga
}

func newTestFakeService() (*quoting.FakeService, [32]byte, [32]byte) {
	var gid msg.Gid
	copy(gid[:], []byte{1, 2, 3, 4})
	var mrenclave, mrsigner [32]byte
	mrenclave[0] = 0xAA
	mrsigner[0] = 0xBB
	svc := quoting.NewFakeService(gid, mrenclave, mrsigner, 1, 1, false, [16]byte{0x42})
	return svc, mrenclave, mrsigner
}

func TestContextRunRelaysHandshakeToCompletion(t *testing.T) {
	svc, _, _ := newTestFakeService()
	var spid msg.Spid
	spid[0] = 0x07

	capture, err := runClientRelay(t, svc, spid, msg.RaMsg4{IsEnclaveTrusted: true}) // nolint:exhaustruct
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if capture.spMsg1.Gid != svc.Gid {
		t.Errorf("MSG1 gid = %x, want %x", capture.spMsg1.Gid, svc.Gid)
	}
	if capture.spMsg3.Quote.MREnclave() != svc.MRenclave {
		t.Errorf("MSG3 quote MRENCLAVE = %x, want %x", capture.spMsg3.Quote.MREnclave(), svc.MRenclave)
	}
	if capture.enclaveTI == (quoting.TargetInfo{}) {
		t.Errorf("enclave never received a non-zero target info")
	}
}

func TestContextRunSurvivesUntrustedMsg4(t *testing.T) {
	svc, _, _ := newTestFakeService()
	var spid msg.Spid

	_, err := runClientRelay(t, svc, spid, msg.RaMsg4{IsEnclaveTrusted: false}) // nolint:exhaustruct
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (client relays but does not act on the trust decision)", err)
	}
}
