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

// Package iasclient is an HTTPS client for the Attestation Service's
// sigrl and report endpoints, including the PEM-chain splitting and
// signature verification spec.md §4.5 describes.
package iasclient

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/cybergarage/go-logger/log"
	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/raerrors"
)

// pemBlockPattern matches one BEGIN/END-delimited PEM block, used to
// split the x-iasreport-signing-certificate header into its leaf and
// intermediate certificates.
var pemBlockPattern = regexp.MustCompile(`(?s)-----BEGIN CERTIFICATE-----.*?-----END CERTIFICATE-----`)

const (
	sigrlPathFmt       = "/attestation/v3/sigrl/%s"
	reportPath         = "/attestation/v3/report"
	subscriptionHeader = "Ocp-Apim-Subscription-Key"
	signingCertHeader  = "x-iasreport-signing-certificate"
	signatureHeader    = "x-iasreport-signature"
	requestIDHeader    = "request-id"
)

// Client talks to an Attestation Service instance at BaseURL, verifying
// every report response's signature chain against RootCA before
// returning it.
type Client struct {
	BaseURL         string
	SubscriptionKey string
	RootCA          *x509.Certificate
	HTTPClient      *http.Client
	VerifyTime      time.Time // zero means time.Now at call time
}

// NewClient builds a Client with a sane default http.Client timeout.
func NewClient(baseURL, subscriptionKey string, rootCA *x509.Certificate) *Client {
	return &Client{
		BaseURL:         baseURL,
		SubscriptionKey: subscriptionKey,
		RootCA:          rootCA,
		HTTPClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchSigRL retrieves the signature revocation list for gidHex. present
// is false when the Attestation Service answered with Content-Length: 0
// (no revocation list published for this gid), which spec.md §4.4
// distinguishes from an explicit empty list.
func (c *Client) FetchSigRL(ctx context.Context, gidHex string) (sigRL []byte, present bool, err error) {
	url := c.BaseURL + fmt.Sprintf(sigrlPathFmt, gidHex)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: build sigrl request: %s", raerrors.ErrTransport, err)
	}
	req.Header.Set(subscriptionHeader, c.SubscriptionKey)

	log.Debugf("iasclient: GET %s", url)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: sigrl request: %s", raerrors.ErrAttestationService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: read sigrl body: %s", raerrors.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: sigrl status %d", raerrors.ErrAttestationService, resp.StatusCode)
	}
	if resp.ContentLength == 0 {
		return nil, false, nil
	}
	return body, true, nil
}

// Report is the verified result of a report request: the raw JSON body
// plus the request-id the Attestation Service assigned.
type Report struct {
	Body      []byte
	RequestID string
}

// ReportBody is the subset of the Attestation Service's JSON report the
// SP's trust decision needs.
type ReportBody struct {
	ID                    string  `json:"id"`
	ISVEnclaveQuoteStatus string  `json:"isvEnclaveQuoteStatus"`
	PseManifestStatus     *string `json:"pseManifestStatus,omitempty"`
}

// DecodeReportBody unmarshals a Report's raw body.
func DecodeReportBody(body []byte) (ReportBody, error) {
	var rb ReportBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return ReportBody{}, fmt.Errorf("%w: decode IAS report body: %s", raerrors.ErrEncoding, err)
	}
	return rb, nil
}

// FetchReport posts the base64-encoded quote and verifies the returned
// signature chain and report signature before returning the raw body.
func (c *Client) FetchReport(ctx context.Context, quote []byte) (*Report, error) {
	payload, err := json.Marshal(map[string]string{
		"isvEnclaveQuote": base64.StdEncoding.EncodeToString(quote),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal report request: %s", raerrors.ErrEncoding, err)
	}

	url := c.BaseURL + reportPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build report request: %s", raerrors.ErrTransport, err)
	}
	req.Header.Set(subscriptionHeader, c.SubscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	log.Debugf("iasclient: POST %s", url)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: report request: %s", raerrors.ErrAttestationService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read report body: %s", raerrors.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: report status %d", raerrors.ErrAttestationService, resp.StatusCode)
	}

	if err := c.verifyReportSignature(resp.Header, body); err != nil {
		return nil, err
	}

	return &Report{Body: body, RequestID: resp.Header.Get(requestIDHeader)}, nil
}

// verifyReportSignature splits the signing-certificate header into its
// leaf and intermediate, checks the intermediate against RootCA,
// verifies the leaf under the intermediate, and verifies the reported
// signature over body under the leaf's public key.
func (c *Client) verifyReportSignature(header http.Header, body []byte) error {
	chainHeader := header.Get(signingCertHeader)
	if chainHeader == "" {
		return fmt.Errorf("%w: missing %s header", raerrors.ErrAttestationService, signingCertHeader)
	}
	decodedChain, err := urlDecodeOrPassthrough(chainHeader)
	if err != nil {
		return fmt.Errorf("%w: decode signing certificate header: %s", raerrors.ErrEncoding, err)
	}

	blocks := pemBlockPattern.FindAll([]byte(decodedChain), -1)
	if len(blocks) < 2 {
		return fmt.Errorf("%w: expected leaf and intermediate certificates, found %d", raerrors.ErrAttestationService, len(blocks))
	}
	leaf, err := racrypto.ParseCertificatePEMOrDER(blocks[0])
	if err != nil {
		return fmt.Errorf("%w: parse leaf certificate: %s", raerrors.ErrAttestationService, err)
	}
	intermediate, err := racrypto.ParseCertificatePEMOrDER(blocks[1])
	if err != nil {
		return fmt.Errorf("%w: parse intermediate certificate: %s", raerrors.ErrAttestationService, err)
	}

	if c.RootCA == nil || !bytes.Equal(intermediate.Raw, c.RootCA.Raw) {
		return fmt.Errorf("%w: intermediate certificate does not match configured IAS root CA", raerrors.ErrAttestationService)
	}

	verifyTime := c.VerifyTime
	if verifyTime.IsZero() {
		verifyTime = time.Now()
	}
	if err := racrypto.VerifyLeafAgainstCA(leaf, intermediate, verifyTime); err != nil {
		return fmt.Errorf("%w: leaf certificate not signed by intermediate: %s", raerrors.ErrAttestationService, err)
	}

	sigB64 := header.Get(signatureHeader)
	if sigB64 == "" {
		return fmt.Errorf("%w: missing %s header", raerrors.ErrAttestationService, signatureHeader)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("%w: decode report signature: %s", raerrors.ErrEncoding, err)
	}
	if err := racrypto.VerifySignatureUnderLeaf(leaf, body, sig); err != nil {
		return fmt.Errorf("%w: IAS report signature invalid: %s", raerrors.ErrAttestationService, err)
	}
	return nil
}

// urlDecodeOrPassthrough URL-decodes s if it looks percent-encoded,
// otherwise returns it unchanged. IAS is documented to URL-encode the
// certificate chain header, but test doubles commonly supply it
// verbatim.
func urlDecodeOrPassthrough(s string) (string, error) {
	if !bytes.ContainsRune([]byte(s), '%') {
		return s, nil
	}
	return url.QueryUnescape(s)
}
