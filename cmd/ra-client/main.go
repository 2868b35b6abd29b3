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
ra-client runs the untrusted relay between one Enclave connection and
one Service Provider connection, bridging the platform's quoting
service in between.

	NAME
	ra-client

	SYNOPSIS
	ra-client [OPTIONS]

	ra-client accepts one Enclave connection, dials one SP, and relays
	the MSG0-MSG4 handshake between them.

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
	"github.com/cybergarage/go-ra/ra/clientctx"
	"github.com/cybergarage/go-ra/ra/msg"
	"github.com/cybergarage/go-ra/ra/quoting"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const programName = "ra-client"

var rootCmd = &cobra.Command{ // nolint:exhaustruct
	Use:               programName,
	Short:             "Relay one attestation handshake between an Enclave and an SP",
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
		return runClient(cmd.Context())
	},
}

func init() {
	viper.SetEnvPrefix("ra_client")

	rootCmd.PersistentFlags().String("enclave-addr", ":9444", "address to listen on for the Enclave")
	rootCmd.PersistentFlags().String("sp-addr", "127.0.0.1:9443", "address to dial the Service Provider at")
	rootCmd.PersistentFlags().String("gid", "", "4-byte fake quoting-service EPID group id, hex-encoded")
	rootCmd.PersistentFlags().String("mrenclave", "", "32-byte fake quoting-service MRENCLAVE, hex-encoded")
	rootCmd.PersistentFlags().String("mrsigner", "", "32-byte fake quoting-service MRSIGNER, hex-encoded")
	rootCmd.PersistentFlags().Uint16("isv-prod-id", 0, "fake quoting-service ISVPRODID")
	rootCmd.PersistentFlags().Uint16("isv-svn", 0, "fake quoting-service ISVSVN")
	rootCmd.PersistentFlags().Bool("quote-debug", false, "have the fake quoting service mark quotes DEBUG")
	rootCmd.PersistentFlags().String("report-key", "", "16-byte QEReport CMAC key shared with the enclave, hex-encoded")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	for _, key := range []string{
		"enclave-addr", "sp-addr", "gid", "mrenclave", "mrsigner",
		"isv-prod-id", "isv-svn", "quote-debug", "report-key", "debug",
	} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
		viper.BindEnv(key)
	}
}

func decodeFixed(s string, n int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("%s decodes to %d bytes, want %d", s, len(b), n)
	}
	return b, nil
}

func buildFakeService() (*quoting.FakeService, error) {
	var gid msg.Gid
	var mrenclave, mrsigner [32]byte
	var reportKey [16]byte

	if s := viper.GetString("gid"); s != "" {
		b, err := decodeFixed(s, len(gid))
		if err != nil {
			return nil, err
		}
		copy(gid[:], b)
	}
	if s := viper.GetString("mrenclave"); s != "" {
		b, err := decodeFixed(s, len(mrenclave))
		if err != nil {
			return nil, err
		}
		copy(mrenclave[:], b)
	}
	if s := viper.GetString("mrsigner"); s != "" {
		b, err := decodeFixed(s, len(mrsigner))
		if err != nil {
			return nil, err
		}
		copy(mrsigner[:], b)
	}
	if s := viper.GetString("report-key"); s != "" {
		b, err := decodeFixed(s, len(reportKey))
		if err != nil {
			return nil, err
		}
		copy(reportKey[:], b)
	}

	isvProdID := uint16(viper.GetUint32("isv-prod-id"))
	isvSVN := uint16(viper.GetUint32("isv-svn"))
	debug := viper.GetBool("quote-debug")

	return quoting.NewFakeService(gid, mrenclave, mrsigner, isvProdID, isvSVN, debug, reportKey), nil
}

func runClient(ctx context.Context) error {
	svc, err := buildFakeService()
	if err != nil {
		return err
	}

	enclaveAddr := viper.GetString("enclave-addr")
	ln, err := net.Listen("tcp", enclaveAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Infof("%s: listening for the Enclave on %s", programName, enclaveAddr)

	enclaveConn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer enclaveConn.Close()

	spAddr := viper.GetString("sp-addr")
	spConn, err := net.Dial("tcp", spAddr)
	if err != nil {
		return err
	}
	defer spConn.Close()
	log.Infof("%s: connected to SP at %s", programName, spAddr)

	enclaveLink := transport.NewStream(enclaveConn)
	spLink := transport.NewStream(spConn)

	c := clientctx.NewContext(enclaveLink, spLink, svc)
	if err := c.Run(ctx); err != nil {
		log.Errorf("%s: relay failed: %s", programName, err)
		return err
	}
	log.Infof("%s: relay complete, state %v", programName, c.State())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
