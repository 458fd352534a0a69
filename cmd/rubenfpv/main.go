// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// rubenfpv relays a video stream, and optionally telemetry, over a Wi-Fi card in monitor mode.
//
// Run "rubenfpv air" on the aircraft, next to the video encoder, and "rubenfpv ground" on the receiving station,
// next to the decoder.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rubenCodeforges/ruben-fpv/pkg/link"
	"github.com/rubenCodeforges/ruben-fpv/pkg/relay"
	"github.com/rubenCodeforges/ruben-fpv/pkg/status"
	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// cliFlags override the configuration file and the environment.
type cliFlags struct {
	config    string
	iface     string
	transport string
	mtu       int
	port      int
}

// apply each explicitly set flag to the configuration.
func (f cliFlags) apply(cmd *cobra.Command, conf *tomlConfig) {
	flags := cmd.Flags()

	if flags.Changed("interface") {
		conf.Link.Interface = f.iface
	}
	if flags.Changed("transport") {
		conf.Link.Transport = f.transport
	}
	if flags.Changed("mtu") {
		conf.Link.Mtu = f.mtu
	}
	if flags.Changed("port") {
		conf.Video.Port = f.port
	}
}

// buildConfig merges defaults, the configuration file, the environment and flags. The returned file
// configuration excludes the latter two.
func (f cliFlags) buildConfig(cmd *cobra.Command, getenv func(string) string) (conf, fileConf tomlConfig, err error) {
	if fileConf, err = loadConfig(f.config); err != nil {
		return
	}

	conf = fileConf
	if err = conf.applyEnv(getenv); err != nil {
		return
	}
	f.apply(cmd, &conf)

	err = conf.validate()
	return
}

// role of a relay, started by its subcommand.
type role int

const (
	airRole role = iota
	groundRole
)

func (r role) String() string {
	if r == airRole {
		return "air"
	}
	return "ground"
}

// run a relay until SIGINT or SIGTERM.
func (f cliFlags) run(cmd *cobra.Command, r role) error {
	conf, fileConf, err := f.buildConfig(cmd, os.Getenv)
	if err != nil {
		return err
	}

	setupLogging(conf.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.config != "" {
		if cw, cwErr := newConfigWatcher(f.config, fileConf); cwErr != nil {
			log.WithError(cwErr).Warn("Watching configuration file errored")
		} else {
			go cw.handle(ctx)
		}
	}

	transport, err := link.Open(conf.linkConfig())
	if err != nil {
		return fmt.Errorf("opening %s transport failed: %w", conf.Link.Transport, err)
	}
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Closing transport errored")
		}
	}()

	var board *status.Board
	if conf.Status.Listen != "" {
		board = status.NewBoard()
		server := status.NewServer(board)

		go func() {
			if err := server.ListenAndServe(ctx, conf.Status.Listen); err != nil {
				log.WithError(err).Warn("Status server errored")
			}
		}()
	}

	log.WithFields(log.Fields{
		"role":      r,
		"version":   version,
		"transport": transport,
	}).Info("Starting relay")

	switch r {
	case airRole:
		air, err := relay.NewAir(conf.airConfig(), transport, board)
		if err != nil {
			return err
		}
		return air.Run(ctx)

	default:
		ground, err := relay.NewGround(conf.groundConfig(), transport, board)
		if err != nil {
			return err
		}
		return ground.Run(ctx)
	}
}

func newRootCmd(f *cliFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "rubenfpv",
		Short:         "Ruben-FPV digital video link",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&f.config, "config", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&f.iface, "interface", "", "monitor mode Wi-Fi interface (default \"wlan1\")")
	rootCmd.PersistentFlags().StringVar(&f.transport, "transport", "", "transport: auto, structured, raw, rf95 (default \"auto\")")
	rootCmd.PersistentFlags().IntVar(&f.mtu, "mtu", 0, "link MTU in bytes (default 1400)")
	rootCmd.PersistentFlags().IntVar(&f.port, "port", 0, "local UDP video port (default 5000)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "air",
			Short: "Transmit local UDP chunks over the link",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return f.run(cmd, airRole)
			},
		},
		&cobra.Command{
			Use:   "ground",
			Short: "Receive chunks from the link and forward them to local UDP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return f.run(cmd, groundRole)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "rubenfpv %s, protocol version %d\n", version, wire.Version)
			},
		},
	)

	return rootCmd
}

func main() {
	if err := newRootCmd(&cliFlags{}).Execute(); err != nil {
		log.WithError(err).Fatal("rubenfpv failed")
	}
}
