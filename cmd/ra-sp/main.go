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
ra-sp runs the Service Provider side of a single attestation handshake.

	NAME
	ra-sp

	SYNOPSIS
	ra-sp [OPTIONS]

	ra-sp listens for one Client connection, runs the SP side of the
	MSG0-MSG4 handshake against it, and logs the trust decision.

	RETURN VALUE
	  Return EXIT_SUCCESS or EXIT_FAILURE
*/
package main

import (
	"context"
	"net"
	"os"

	"github.com/cybergarage/go-logger/log"
	"github.com/cybergarage/go-ra/ra/config"
	"github.com/cybergarage/go-ra/ra/iasclient"
	"github.com/cybergarage/go-ra/ra/spctx"
	"github.com/cybergarage/go-ra/ra/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	programName  = "ra-sp"
	addrParamStr = "addr"
)

var rootCmd = &cobra.Command{ // nolint:exhaustruct
	Use:               programName,
	Short:             "Run the Service Provider side of an attestation handshake",
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
		return runSP(cmd.Context())
	},
}

func init() {
	viper.SetEnvPrefix("ra_sp")

	rootCmd.PersistentFlags().String(addrParamStr, ":9443", "address to listen on for the Client")
	viper.BindPFlag(addrParamStr, rootCmd.PersistentFlags().Lookup(addrParamStr))
	viper.BindEnv(addrParamStr)

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindEnv("debug")

	rootCmd.PersistentFlags().String("config", "", "path to a viper-readable SP config file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	for _, key := range []string{
		config.KeySPPrivateKeyPath,
		config.KeyIASRootCertPath,
		config.KeySigstructPath,
		config.KeySpid,
		config.KeyIASBaseURL,
		config.KeyPrimarySubscriptionKey,
	} {
		rootCmd.PersistentFlags().String(key, "", key)
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
		viper.BindEnv(key)
	}
}

func runSP(ctx context.Context) error {
	if cfgPath := viper.GetString("config"); cfgPath != "" {
		viper.SetConfigFile(cfgPath)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	}

	cfg, err := config.LoadSPConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ias := iasclient.NewClient(cfg.IASBaseURL, cfg.PrimarySubscriptionKey, cfg.IASRootCert)

	addr := viper.GetString(addrParamStr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log.Infof("%s: listening on %s", programName, addr)

	conn, err := ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Infof("%s: accepted connection from %s", programName, conn.RemoteAddr())

	link := transport.NewStream(conn)
	spCtx := spctx.NewContext(link, cfg, ias)
	sk, mk, err := spCtx.Run(ctx)
	if err != nil {
		log.Errorf("%s: handshake failed: %s", programName, err)
		return err
	}
	log.Infof("%s: handshake complete, state %v, SK/MK derived (%d/%d bytes)", programName, spCtx.State(), len(sk), len(mk))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
