package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/grid-x/elemer"
)

type fileConfig struct {
	Ports    []string          `toml:"ports"`
	Baud     int               `toml:"baud"`
	Address  uint              `toml:"address"`
	Type     string            `toml:"type"`
	Policy   elemer.LinkPolicy `toml:"policy"`
	Driver   string            `toml:"driver"`
	DTR      bool              `toml:"dtr"`
	RTS      bool              `toml:"rts"`
	Timeout  string            `toml:"timeout"`
	LogLevel string            `toml:"log_level"`
}

// loadConfig applies the keys defined in the TOML file at path to opt,
// except those named in explicit, which were given on the command line.
func loadConfig(path string, opt *option, explicit map[string]bool) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	use := func(key, flagName string) bool {
		return meta.IsDefined(key) && !explicit[flagName]
	}

	if use("ports", "port") {
		opt.ports = normalizePorts(raw.Ports)
	}
	if use("baud", "baud") {
		opt.baud = raw.Baud
	}
	if use("address", "address") {
		opt.address = raw.Address
	}
	if use("type", "type") {
		opt.device = strings.TrimSpace(raw.Type)
	}
	if use("policy", "policy") {
		opt.policy = raw.Policy.String()
	}
	if use("driver", "driver") {
		opt.driver = strings.TrimSpace(raw.Driver)
	}
	if use("dtr", "dtr") {
		opt.dtr = raw.DTR
	}
	if use("rts", "rts") {
		opt.rts = raw.RTS
	}
	if use("timeout", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return fmt.Errorf("parse timeout: %w", err)
		}
		opt.timeout = d
	}
	if use("log_level", "log-level") {
		opt.logLevel = strings.TrimSpace(raw.LogLevel)
	}
	return nil
}

func normalizePorts(in []string) []string {
	var out []string
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
