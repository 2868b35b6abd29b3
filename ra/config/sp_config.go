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

// Package config loads the Service Provider's configuration: the
// recognized options spec.md §6 enumerates, plus the three
// persisted-by-path secrets (SP private key, IAS root certificate,
// SIGSTRUCT) parsed once and cached.
package config

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/raerrors"
	"github.com/spf13/viper"
)

// Recognized configuration keys, bound by LoadSPConfig via viper.
const (
	KeyLinkable                 = "linkable"
	KeyRandomNonce              = "random_nonce"
	KeyUsePlatformService       = "use_platform_service"
	KeySpid                     = "spid"
	KeyPrimarySubscriptionKey   = "primary_subscription_key"
	KeySecondarySubscriptionKey = "secondary_subscription_key"
	KeyQuoteTrustOptions        = "quote_trust_options"
	KeyPseTrustOptions          = "pse_trust_options"
	KeySPPrivateKeyPath         = "sp_private_key_pem_path"
	KeyIASRootCertPath          = "ias_root_cert_pem_path"
	KeySigstructPath            = "sigstruct_path"
	KeyDebugBuild               = "debug_build"
	KeyIASBaseURL               = "ias_base_url"
)

// SPConfig is the SP's resolved, immutable configuration. Trust-option
// lists are sorted once at construction so lookups can use
// sort.SearchStrings instead of a linear scan.
type SPConfig struct {
	Linkable           bool
	RandomNonce        bool
	UsePlatformService bool
	Spid               msg.Spid

	PrimarySubscriptionKey   string
	SecondarySubscriptionKey string

	quoteTrustOptions []string
	pseTrustOptions   []string

	SPPrivateKey *rsa.PrivateKey
	IASRootCert  *x509.Certificate
	Sigstruct    Sigstruct

	// DebugBuild records whether this verifier itself is a debug build,
	// the one condition under which spec.md §4.4 step 5 allows an
	// enclave's DEBUG attribute through instead of raising
	// ErrDebugInProduction.
	DebugBuild bool

	// IASBaseURL is the Attestation Service base URI iasclient.Client
	// should target.
	IASBaseURL string
}

// LoadSPConfig reads a fully populated SPConfig from v, which the
// caller has already pointed at a config file, environment prefix,
// and/or explicit overrides (see cmd/ra-sp for the viper wiring
// convention, matching matter/cmd/root.go's use of viper).
func LoadSPConfig(v *viper.Viper) (*SPConfig, error) {
	if v.GetBool(KeyRandomNonce) {
		return nil, fmt.Errorf("%w: %s must be false in this version", raerrors.ErrInvalidInput, KeyRandomNonce)
	}
	if v.GetBool(KeyUsePlatformService) {
		return nil, fmt.Errorf("%w: %s must be false (no PSE path)", raerrors.ErrInvalidInput, KeyUsePlatformService)
	}

	spidHex := v.GetString(KeySpid)
	spidBytes, err := decodeHexFixed(spidHex, msg.SpidSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", raerrors.ErrInvalidInput, KeySpid, err)
	}
	var spid msg.Spid
	copy(spid[:], spidBytes)

	quoteOpts := append([]string{}, v.GetStringSlice(KeyQuoteTrustOptions)...)
	sort.Strings(quoteOpts)
	pseOpts := append([]string{}, v.GetStringSlice(KeyPseTrustOptions)...)
	sort.Strings(pseOpts)

	privKeyPEM, err := os.ReadFile(v.GetString(KeySPPrivateKeyPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", raerrors.ErrInvalidInput, KeySPPrivateKeyPath, err)
	}
	privKey, err := racrypto.ParseRSAPrivateKeyPEM(privKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %s", raerrors.ErrInvalidInput, KeySPPrivateKeyPath, err)
	}

	rootCertPEM, err := os.ReadFile(v.GetString(KeyIASRootCertPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", raerrors.ErrInvalidInput, KeyIASRootCertPath, err)
	}
	rootCert, err := racrypto.ParseCertificatePEMOrDER(rootCertPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %s", raerrors.ErrInvalidInput, KeyIASRootCertPath, err)
	}

	sigstructBytes, err := os.ReadFile(v.GetString(KeySigstructPath))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %s", raerrors.ErrInvalidInput, KeySigstructPath, err)
	}
	sigstruct, err := ParseSigstruct(sigstructBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %s", raerrors.ErrInvalidInput, KeySigstructPath, err)
	}

	return &SPConfig{
		Linkable:                 v.GetBool(KeyLinkable),
		RandomNonce:              false,
		UsePlatformService:       false,
		Spid:                     spid,
		PrimarySubscriptionKey:   v.GetString(KeyPrimarySubscriptionKey),
		SecondarySubscriptionKey: v.GetString(KeySecondarySubscriptionKey),
		quoteTrustOptions:        quoteOpts,
		pseTrustOptions:          pseOpts,
		SPPrivateKey:             privKey,
		IASRootCert:              rootCert,
		Sigstruct:                sigstruct,
		DebugBuild:               v.GetBool(KeyDebugBuild),
		IASBaseURL:               v.GetString(KeyIASBaseURL),
	}, nil
}

// QuoteType returns the quote_type field MSG2 should carry.
func (c *SPConfig) QuoteType() msg.QuoteType {
	if c.Linkable {
		return msg.QuoteTypeLinkable
	}
	return msg.QuoteTypeUnlinkable
}

// IsQuoteStatusTrusted reports whether status (other than "OK", which
// callers should check separately) is one of the SP-configured
// quote_trust_options.
func (c *SPConfig) IsQuoteStatusTrusted(status string) bool {
	return searchSorted(c.quoteTrustOptions, status)
}

// IsPseStatusTrusted reports whether status is one of the
// SP-configured pse_trust_options.
func (c *SPConfig) IsPseStatusTrusted(status string) bool {
	return searchSorted(c.pseTrustOptions, status)
}

func searchSorted(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

func decodeHexFixed(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("decoded to %d bytes, want %d", len(b), n)
	}
	return b, nil
}
