// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML files. Pointer fields distinguish
// "absent" from zero so file values only overwrite what they name.
// Durations are spelled in milliseconds to match the environment knobs.
type fileConfig struct {
	Listen        *string `yaml:"listen"`
	MetricsListen *string `yaml:"metrics_listen"`

	Log struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`

	Ledger struct {
		Backend  *string `yaml:"backend"`
		Addr     *string `yaml:"addr"`
		Password *string `yaml:"password"`
		DB       *int    `yaml:"db"`
	} `yaml:"ledger"`

	Shadow struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
	} `yaml:"shadow"`

	Bus struct {
		Backend    *string `yaml:"backend"`
		AMQPURL    *string `yaml:"amqp_url"`
		QueueDepth *int    `yaml:"queue_depth"`
	} `yaml:"bus"`

	Limits struct {
		HoldTTLMSDefault       *int `yaml:"hold_ttl_ms_default"`
		HoldTTLMSMax           *int `yaml:"hold_ttl_ms_max"`
		HoldMaxTTLMS           *int `yaml:"hold_max_ttl_ms"`
		MaxSeatsPerRequest     *int `yaml:"max_seats_per_request"`
		OwnerMaxLength         *int `yaml:"owner_max_length"`
		IdempotencyTTLHours    *int `yaml:"idempotency_ttl_hours"`
		LedgerCommandTimeoutMS *int `yaml:"ledger_command_timeout_ms"`
		LedgerOpTimeoutMS      *int `yaml:"ledger_operation_timeout_ms"`
		ConvertTimeoutMS       *int `yaml:"convert_timeout_ms"`
	} `yaml:"limits"`

	Reaper struct {
		IntervalMS *int `yaml:"interval_ms"`
		GraceMS    *int `yaml:"grace_ms"`
	} `yaml:"reaper"`

	Rate struct {
		Burst   *int `yaml:"burst"`
		WindowS *int `yaml:"window_s"`
	} `yaml:"rate"`

	Telemetry struct {
		Enabled      *bool    `yaml:"enabled"`
		Endpoint     *string  `yaml:"endpoint"`
		ExporterType *string  `yaml:"exporter_type"`
		SamplingRate *float64 `yaml:"sampling_rate"`
	} `yaml:"telemetry"`
}

// applyFile overlays a strictly parsed YAML file onto cfg.
// Unknown fields are rejected to surface misconfiguration early.
func applyFile(cfg *Config, path string) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var fc fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}

	mergeFile(cfg, &fc)
	return nil
}

func mergeFile(dst *Config, src *fileConfig) {
	setString(&dst.Listen, src.Listen)
	setString(&dst.MetricsListen, src.MetricsListen)
	setString(&dst.Log.Level, src.Log.Level)

	setString(&dst.Ledger.Backend, src.Ledger.Backend)
	setString(&dst.Ledger.Addr, src.Ledger.Addr)
	setString(&dst.Ledger.Password, src.Ledger.Password)
	setInt(&dst.Ledger.DB, src.Ledger.DB)

	setString(&dst.Shadow.Backend, src.Shadow.Backend)
	setString(&dst.Shadow.Path, src.Shadow.Path)

	setString(&dst.Bus.Backend, src.Bus.Backend)
	setString(&dst.Bus.AMQPURL, src.Bus.AMQPURL)
	setInt(&dst.Bus.QueueDepth, src.Bus.QueueDepth)

	setMillis(&dst.Limits.TTLDefault, src.Limits.HoldTTLMSDefault)
	setMillis(&dst.Limits.TTLMax, src.Limits.HoldTTLMSMax)
	setMillis(&dst.Limits.HoldLifeMax, src.Limits.HoldMaxTTLMS)
	setInt(&dst.Limits.MaxSeatsPerRequest, src.Limits.MaxSeatsPerRequest)
	setInt(&dst.Limits.OwnerMaxLength, src.Limits.OwnerMaxLength)
	if src.Limits.IdempotencyTTLHours != nil {
		dst.Limits.IdempotencyTTL = time.Duration(*src.Limits.IdempotencyTTLHours) * time.Hour
	}
	setMillis(&dst.Limits.LedgerCommandTimeout, src.Limits.LedgerCommandTimeoutMS)
	setMillis(&dst.Limits.LedgerOperationTimeout, src.Limits.LedgerOpTimeoutMS)
	setMillis(&dst.Limits.ConvertTimeout, src.Limits.ConvertTimeoutMS)

	setMillis(&dst.Reaper.Interval, src.Reaper.IntervalMS)
	setMillis(&dst.Reaper.Grace, src.Reaper.GraceMS)

	setInt(&dst.Rate.Burst, src.Rate.Burst)
	if src.Rate.WindowS != nil {
		dst.Rate.Window = time.Duration(*src.Rate.WindowS) * time.Second
	}

	if src.Telemetry.Enabled != nil {
		dst.Telemetry.Enabled = *src.Telemetry.Enabled
	}
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&dst.Telemetry.ExporterType, src.Telemetry.ExporterType)
	if src.Telemetry.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *src.Telemetry.SamplingRate
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setMillis(dst *time.Duration, src *int) {
	if src != nil {
		*dst = time.Duration(*src) * time.Millisecond
	}
}
