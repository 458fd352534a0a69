// SPDX-FileCopyrightText: 2026 Ruben-FPV Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/rubenCodeforges/ruben-fpv/pkg/link"
	"github.com/rubenCodeforges/ruben-fpv/pkg/relay"
	"github.com/rubenCodeforges/ruben-fpv/pkg/wire"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Link      linkConf
	Video     videoConf
	Telemetry telemetryConf
	Beacon    beaconConf
	Status    statusConf
	Logging   logConf
}

// linkConf describes the Link-configuration block.
type linkConf struct {
	Interface      string
	Transport      string
	Mtu            int
	HeaderSize     int      `toml:"header-size"`
	CaptureTimeout duration `toml:"capture-timeout"`
	Checksum       bool
	Rf95Device     string  `toml:"rf95-device"`
	Rf95Frequency  float64 `toml:"rf95-frequency"`
}

// videoConf describes the Video-configuration block.
type videoConf struct {
	Port int
}

// telemetryConf describes the Telemetry-configuration block. Telemetry is disabled without a port.
type telemetryConf struct {
	Port     int
	Compress bool
}

// beaconConf describes the Beacon-configuration block.
type beaconConf struct {
	Interval duration
}

// statusConf describes the Status-configuration block. The status server is disabled without an address.
type statusConf struct {
	Listen        string
	StatsInterval duration `toml:"stats-interval"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// duration is a time.Duration, written as a string like "1.5s" in TOML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// defaultConfig holds the values for each unset option.
func defaultConfig() tomlConfig {
	return tomlConfig{
		Link: linkConf{
			Interface:      "wlan1",
			Transport:      string(link.Auto),
			Mtu:            1400,
			HeaderSize:     wire.HeaderSize,
			CaptureTimeout: duration{time.Second},
		},
		Video:  videoConf{Port: 5000},
		Beacon: beaconConf{Interval: duration{2 * time.Second}},
		Status: statusConf{StatsInterval: duration{relay.DefaultStatsInterval}},
	}
}

// loadConfig reads a TOML file on top of the defaultConfig. An empty filename results in the defaults.
func loadConfig(filename string) (conf tomlConfig, err error) {
	conf = defaultConfig()
	if filename == "" {
		return
	}

	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		err = fmt.Errorf("parsing configuration %s failed: %w", filename, err)
	}
	return
}

// applyEnv overrides options by the environment variables known from previous releases.
func (conf *tomlConfig) applyEnv(getenv func(string) string) error {
	var errs error

	if iface := getenv("WIFI_INTERFACE"); iface != "" {
		conf.Link.Interface = iface
	}

	ints := []struct {
		name  string
		field *int
	}{
		{"VIDEO_PORT", &conf.Video.Port},
		{"MTU_SIZE", &conf.Link.Mtu},
		{"TELEMETRY_PORT", &conf.Telemetry.Port},
	}
	for _, i := range ints {
		value := getenv(i.name)
		if value == "" {
			continue
		}

		if n, err := strconv.Atoi(value); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("environment variable %s: %w", i.name, err))
		} else {
			*i.field = n
		}
	}

	return errs
}

// validate the configuration and report every problem.
func (conf tomlConfig) validate() error {
	var errs error

	if !link.Variant(conf.Link.Transport).Known() {
		errs = multierror.Append(errs, fmt.Errorf("link.transport %q is none of %v", conf.Link.Transport, link.Variants))
	}

	if conf.Link.Interface == "" && link.Variant(conf.Link.Transport) != link.Rf95 {
		errs = multierror.Append(errs, fmt.Errorf("link.interface is empty"))
	}
	if link.Variant(conf.Link.Transport) == link.Rf95 && conf.Link.Rf95Device == "" {
		errs = multierror.Append(errs, fmt.Errorf("link.rf95-device is empty"))
	}

	if conf.Link.HeaderSize < wire.HeaderSize {
		errs = multierror.Append(errs, fmt.Errorf("link.header-size %d is smaller than %d", conf.Link.HeaderSize, wire.HeaderSize))
	}

	overhead := conf.Link.HeaderSize
	if conf.Link.Checksum {
		overhead += wire.ChecksumSize
	}
	if conf.Link.Mtu <= overhead || conf.Link.Mtu > link.MaxFrameSize {
		errs = multierror.Append(errs, fmt.Errorf("link.mtu %d is not within (%d, %d]", conf.Link.Mtu, overhead, link.MaxFrameSize))
	}

	if conf.Link.CaptureTimeout.Duration <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("link.capture-timeout must be positive"))
	}

	if !validPort(conf.Video.Port) {
		errs = multierror.Append(errs, fmt.Errorf("video.port %d is invalid", conf.Video.Port))
	}
	if conf.Telemetry.Port != 0 {
		if !validPort(conf.Telemetry.Port) {
			errs = multierror.Append(errs, fmt.Errorf("telemetry.port %d is invalid", conf.Telemetry.Port))
		} else if conf.Telemetry.Port == conf.Video.Port {
			errs = multierror.Append(errs, fmt.Errorf("telemetry.port equals video.port %d", conf.Video.Port))
		}
	}

	if conf.Beacon.Interval.Duration < 0 {
		errs = multierror.Append(errs, fmt.Errorf("beacon.interval must not be negative"))
	}
	if conf.Status.StatsInterval.Duration <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("status.stats-interval must be positive"))
	}
	if conf.Status.Listen != "" {
		if _, _, err := net.SplitHostPort(conf.Status.Listen); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("status.listen: %w", err))
		}
	}

	return errs
}

func validPort(port int) bool {
	return port > 0 && port <= 65535
}

func localAddr(port int) string {
	if port == 0 {
		return ""
	}
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func (conf tomlConfig) linkConfig() link.Config {
	return link.Config{
		Variant:        link.Variant(conf.Link.Transport),
		Interface:      conf.Link.Interface,
		Mtu:            conf.Link.Mtu,
		CaptureTimeout: conf.Link.CaptureTimeout.Duration,
		Rf95Device:     conf.Link.Rf95Device,
		Rf95Frequency:  conf.Link.Rf95Frequency,
	}
}

func (conf tomlConfig) airConfig() relay.AirConfig {
	return relay.AirConfig{
		VideoAddr:         localAddr(conf.Video.Port),
		TelemetryAddr:     localAddr(conf.Telemetry.Port),
		HeaderSize:        conf.Link.HeaderSize,
		Checksum:          conf.Link.Checksum,
		CompressTelemetry: conf.Telemetry.Compress,
		BeaconInterval:    conf.Beacon.Interval.Duration,
		StatsInterval:     conf.Status.StatsInterval.Duration,
	}
}

func (conf tomlConfig) groundConfig() relay.GroundConfig {
	return relay.GroundConfig{
		VideoAddr:     localAddr(conf.Video.Port),
		TelemetryAddr: localAddr(conf.Telemetry.Port),
		StatsInterval: conf.Status.StatsInterval.Duration,
	}
}

// setupLogging applies the Logging-configuration block to logrus. An unset level resets to info.
func setupLogging(conf logConf) {
	switch lvl, err := log.ParseLevel(conf.Level); {
	case conf.Level == "":
		log.SetLevel(log.InfoLevel)

	case err != nil:
		log.WithFields(log.Fields{
			"level":    conf.Level,
			"error":    err,
			"provided": "panic,fatal,error,warn,info,debug,trace",
		}).Warn("Failed to set log level. Please select one of the provided ones")

	default:
		log.SetLevel(lvl)
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.WithField("format", conf.Format).Warn("Unknown logging format")
	}
}
