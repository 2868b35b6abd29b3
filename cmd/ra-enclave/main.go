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

/*
ra-enclave runs the Enclave side of a single attestation handshake.

	NAME
	ra-enclave

	SYNOPSIS
	ra-enclave [OPTIONS]

	ra-enclave dials the Client, runs the Enclave side of the MSG0-MSG4
	handshake, and logs that SK/MK were derived on success.

	RETURN VALUE
	  Return EXIT_SUCCESS or EXIT_FAILURE
*/
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/cybergarage/go-logger/log"
	racrypto "github.com/cybergarage/go-ra/ra/crypto"
	"github.com/cybergarage/go-ra/ra/enclavectx"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const programName = "ra-enclave"

var rootCmd = &cobra.Command{ // nolint:exhaustruct
	Use:               programName,
	Short:             "Run the Enclave side of an attestation handshake",
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetBool("debug") {
			log.SetSharedLogger(log.NewStdoutLogger(log.LevelDebug))
		} else {
			log.SetSharedLogger(log.NewStdoutLogger(log.LevelInfo))
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEnclave(cmd.Context())
	},
}

func init() {
	viper.SetEnvPrefix("ra_enclave")

	rootCmd.PersistentFlags().String("client-addr", "127.0.0.1:9444", "address to dial the Client at")
	rootCmd.PersistentFlags().String("sp-pub-key", "", "path to the SP's PEM-encoded RSA public key")
	rootCmd.PersistentFlags().String("report-key", "", "16-byte QEReport CMAC key shared with the quoting service, hex-encoded")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	for _, key := range []string{"client-addr", "sp-pub-key", "report-key", "debug"} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
		viper.BindEnv(key)
	}
}

func runEnclave(ctx context.Context) error {
	pubKeyPath := viper.GetString("sp-pub-key")
	if pubKeyPath == "" {
		return fmt.Errorf("--sp-pub-key is required")
	}
	pubKeyPEM, err := os.ReadFile(pubKeyPath)
	if err != nil {
		return err
	}
	spVerifyKey, err := racrypto.ParseRSAPublicKeyPEM(pubKeyPEM)
	if err != nil {
		return err
	}

	var reportKey [16]byte
	if s := viper.GetString("report-key"); s != "" {
		b, err := hex.DecodeString(s)
		if err != nil {
			return err
		}
		if len(b) != len(reportKey) {
			return fmt.Errorf("--report-key decodes to %d bytes, want %d", len(b), len(reportKey))
		}
		copy(reportKey[:], b)
	}

	clientAddr := viper.GetString("client-addr")
	conn, err := net.Dial("tcp", clientAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("%s: connected to Client at %s", programName, clientAddr)

	link := transport.NewStream(conn)
	eCtx := enclavectx.NewContext(link, spVerifyKey, reportKey)
	sk, mk, err := eCtx.Run(ctx)
	if err != nil {
		log.Errorf("%s: handshake failed: %s", programName, err)
		return err
	}
	log.Infof("%s: handshake complete, state %v, SK/MK derived (%d/%d bytes)", programName, eCtx.State(), len(sk), len(mk))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
